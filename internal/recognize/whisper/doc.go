// Package whisper implements the acquire.Recognizer collaborator by driving
// the openai-whisper command line tool.
//
// Each call writes the audio to a private temp directory, runs whisper with
// JSON output, and converts its segments into cues. Segments whose
// no_speech_prob exceeds the configured threshold are dropped; the rest get
// confidence 1 - no_speech_prob.
package whisper
