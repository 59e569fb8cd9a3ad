// Package bolt is the "sled"-named engine option: a single bbolt file
// instead of a hand-rolled log, for operators who want crash safety from
// a battle-tested embedded btree rather than this module's own
// compaction logic.
package bolt
