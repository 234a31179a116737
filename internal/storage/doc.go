// Package storage persists scheduler snapshots and the fire journal.
//
// It currently supports:
//   - Snapshot save/load (latest snapshot only)
//   - Fire journal appends and tail reads
package storage
