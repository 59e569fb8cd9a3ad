// Package kv is the default storage engine: an append-only log of Set and
// Remove records plus an in-memory index mapping each live key to its
// most recent record's location. Writes go through a single writer;
// reads go through a sharded index lookup and a per-handle file read, so
// gets never block on or contend with concurrent gets.
package kv
