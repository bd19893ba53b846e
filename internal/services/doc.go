// Package services defines shared error and context plumbing consumed by the
// acquisition, runner, and workflow packages.
//
// Key responsibilities:
//   - Context helpers that stamp task IDs, stage names, client IDs, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper for stage-scoped messages.
//   - The error kind taxonomy persisted on failed tasks, with classification
//     helpers that decide whether a failure is worth retrying.
//
// Collaborator adapters should return KindError values (via Classify) so the
// runner can make retry decisions without knowing which adapter failed.
package services
