// Package server is the thin TCP front-end: it owns no storage logic of
// its own, only the accept loop, per-connection framing, and dispatch of
// decoded requests onto a worker pool.
package server
