// Package daemon coordinates the long-running clipforge process.
//
// It wires configuration, the pipeline database, the coordinator, the
// worker pool, and the HTTP API into a single lifecycle with
// flock-based locking to prevent multiple instances.
//
// Keep orchestration logic here: pipeline semantics live in their
// respective packages while the daemon focuses on startup, shutdown,
// and high level coordination.
package daemon
