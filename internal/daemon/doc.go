// Package daemon coordinates the long-running dracin process.
//
// It wires the catalog, the progress ledger, the priority queue, the session
// gateway, and the acquisition worker into a single lifecycle with
// flock-based locking to prevent multiple instances, and serves the local
// HTTP control API for status, prioritization, artifact listing, and
// interactive login.
//
// Keep orchestration logic here: acquisition steps live in the worker and
// the daemon focuses on startup, shutdown, and high level coordination.
package daemon
