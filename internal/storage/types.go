package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "file": snapshot file + JSON Lines fire journal
//   - "sqlite": SQLite database file
//   - "postgres": PostgreSQL via DSN
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string        // file, sqlite
	DSN         string        // postgres
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// FireRecord is one journaled fire.
//
// Task ids and instants are uint64; SQL drivers store them bit-cast to
// int64 since neither backend has an unsigned 64-bit column.
type FireRecord struct {
	TaskID      uint64    `json:"task_id"`
	Payload     []byte    `json:"payload"`
	ScheduledAt uint64    `json:"scheduled_at"` // ns since epoch
	FiredAt     time.Time `json:"fired_at"`
	Remaining   string    `json:"remaining"`
	Retired     bool      `json:"retired,omitempty"`
}

// maxFireRows bounds the SQL fire tables; older rows are pruned.
const maxFireRows = 10000
