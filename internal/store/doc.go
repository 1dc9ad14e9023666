// Package store persists sandbox snapshots.
//
// A File holds one snapshot as zstd-compressed JSON. Writes go to a
// temporary file that is renamed into place, and both reads and writes
// hold an advisory lock on a sibling ".lock" file so several processes can
// share a path.
package store
