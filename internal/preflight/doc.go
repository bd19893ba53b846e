// Package preflight provides readiness checks for the directories, external
// binaries, and remote services bilisub depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs every failure, so a missing
//     recognizer or an unwritable output directory is reported before the
//     first task runs rather than in its failure record.
//   - The CLI "bilisub doctor" command renders the same results as a table.
//
// Binary checks are gated by configuration: whisper and ffmpeg are required
// only when the recognition fallback is enabled, yt-dlp only when it is the
// audio fetcher.
package preflight
