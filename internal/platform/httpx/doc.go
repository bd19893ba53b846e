// Package httpx builds the HTTP client shared by platform collaborators.
//
// The client rotates user agents from a small pool unless one is configured,
// routes through an optional proxy (with keep-alive disabled so rotating
// proxies see fresh connections), paces requests per host through
// runner.PacedTransport, and replays idempotent requests a bounded number
// of times on transport errors. Status codes are not retried here; Check
// classifies them into services failure kinds and the runner's retry policy
// decides.
package httpx
