package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	logx "weekcron/pkg/logx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshot (
	id       INTEGER PRIMARY KEY CHECK (id = 1),
	blob     BLOB    NOT NULL,
	saved_at TEXT    NOT NULL
);
CREATE TABLE IF NOT EXISTS fires (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id      INTEGER NOT NULL,
	payload      BLOB,
	scheduled_at INTEGER NOT NULL,
	fired_at     TEXT    NOT NULL,
	remaining    TEXT    NOT NULL,
	retired      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS fires_task_id ON fires(task_id);
`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	opCount    atomic.Uint64
	pruneEvery uint64
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, pruneEvery: 500}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) SaveSnapshot(ctx context.Context, blob []byte) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshot(id, blob, saved_at) VALUES(1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET blob=excluded.blob, saved_at=excluded.saved_at`,
		blob, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) LoadSnapshot(ctx context.Context) ([]byte, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, ErrDisabled
	}
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT blob FROM snapshot WHERE id = 1`).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return blob, true, nil
}

func (s *sqliteStore) AppendFire(ctx context.Context, r FireRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if r.FiredAt.IsZero() {
		r.FiredAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fires(task_id, payload, scheduled_at, fired_at, remaining, retired)
		 VALUES(?,?,?,?,?,?)`,
		int64(r.TaskID), r.Payload, int64(r.ScheduledAt),
		r.FiredAt.UTC().Format(time.RFC3339Nano), r.Remaining, r.Retired,
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		if perr := s.pruneFires(pctx); perr != nil {
			s.log.Debug("fires prune failed", logx.Err(perr))
		}
		cancel()
	}
	return err
}

func (s *sqliteStore) RecentFires(ctx context.Context, n int) ([]FireRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, payload, scheduled_at, fired_at, remaining, retired
		 FROM fires ORDER BY seq DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FireRecord
	for rows.Next() {
		var (
			r         FireRecord
			id, sched int64
			firedAt   string
		)
		if err := rows.Scan(&id, &r.Payload, &sched, &firedAt, &r.Remaining, &r.Retired); err != nil {
			return nil, err
		}
		r.TaskID, r.ScheduledAt = uint64(id), uint64(sched)
		r.FiredAt, _ = time.Parse(time.RFC3339Nano, firedAt)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reverseFires(out)
	return out, nil
}

func (s *sqliteStore) pruneFires(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM fires WHERE seq <= (SELECT MAX(seq) FROM fires) - ?`, maxFireRows)
	return err
}

func reverseFires(rs []FireRecord) {
	for i, j := 0, len(rs)-1; i < j; i, j = i+1, j-1 {
		rs[i], rs[j] = rs[j], rs[i]
	}
}
