// Package workflow drives tasks through the subtitle pipeline.
//
// The Manager owns a bounded runner and the lifecycle store. Each admitted
// task runs acquisition, synthesis, and rendering in that order, reporting
// progress to the store and re-reading the task's status between stages so a
// cancel persisted by another process is honored at the next checkpoint.
// Failures are classified into the store's error kinds; a daemon shutdown
// leaves the task processing so the next start can requeue it.
//
// RunBatch reuses the same machinery over an in-memory store for the CLI's
// one-shot mode.
package workflow
