// Package runner executes work items under a fixed concurrency limit.
//
// It provides the pieces the workflow composes:
//   - Runner: a FIFO queue drained by a fixed pool of workers, with per-item
//     wall-clock timeouts and cooperative cancellation through context causes
//   - Result and Retry: an explicit Ok/Retryable/Fatal result consumed by a
//     generic retry combinator with exponential backoff and jitter
//   - Pacer and PacedTransport: a per-endpoint minimum interval between
//     outward requests, shared by every worker
//   - Caller: the acquire.Gate implementation that wraps collaborator calls
//     in the retry combinator
package runner
