// Package daemon coordinates the long-running bilisub service process.
//
// It wires configuration, queue storage, the workflow manager, and the HTTP
// API into a single lifecycle with flock-based locking to prevent two
// instances from sharing one state directory. Preflight checks run at
// startup and are kept for status reporting.
//
// Keep orchestration logic here: task processing lives in workflow and
// request handling in api, while the daemon focuses on startup, shutdown
// ordering, and high level coordination.
package daemon
