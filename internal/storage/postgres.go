package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	logx "weekcron/pkg/logx"
)

var sleep = time.Sleep

const (
	pgCreateTables = `
CREATE TABLE IF NOT EXISTS weekcron_snapshot (
	id       SMALLINT PRIMARY KEY CHECK (id = 1),
	blob     BYTEA       NOT NULL,
	saved_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS weekcron_fires (
	seq          BIGSERIAL PRIMARY KEY,
	task_id      BIGINT      NOT NULL,
	payload      BYTEA,
	scheduled_at BIGINT      NOT NULL,
	fired_at     TIMESTAMPTZ NOT NULL,
	remaining    TEXT        NOT NULL,
	retired      BOOLEAN     NOT NULL DEFAULT FALSE
);`
	pgUpsertSnapshot = `INSERT INTO weekcron_snapshot(id, blob, saved_at) VALUES(1, $1, $2)
ON CONFLICT (id) DO UPDATE SET blob = EXCLUDED.blob, saved_at = EXCLUDED.saved_at`
	pgSelectSnapshot = `SELECT blob FROM weekcron_snapshot WHERE id = 1`
	pgInsertFire     = `INSERT INTO weekcron_fires(task_id, payload, scheduled_at, fired_at, remaining, retired)
VALUES($1, $2, $3, $4, $5, $6)`
	pgSelectFires = `SELECT task_id, payload, scheduled_at, fired_at, remaining, retired
FROM weekcron_fires ORDER BY seq DESC LIMIT $1`
	pgPruneFires = `DELETE FROM weekcron_fires WHERE seq <= (SELECT MAX(seq) FROM weekcron_fires) - $1`
)

// A pgxConn is a *pgxpool.Pool or anything shaped like it.
type pgxConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type pgStore struct {
	conn    pgxConn
	closeFn func()
	log     logx.Logger

	appends atomic.Uint64
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	st, err := newPgStore(ctx, pool, log)
	if err != nil {
		pool.Close()
		return nil, err
	}
	st.closeFn = pool.Close
	return st, nil
}

// newPgStore creates the tables, retrying with exponential backoff while the
// server comes up.
func newPgStore(ctx context.Context, conn pgxConn, log logx.Logger) (*pgStore, error) {
	var err error
	for n := range 3 {
		_, err = conn.Exec(ctx, pgCreateTables)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			break
		}
		d := time.Duration(math.Pow(2, float64(n))) * time.Second
		log.Warn("postgres not ready, retrying", logx.Duration("in", d), logx.Err(err))
		sleep(d)
	}
	if err != nil {
		return nil, fmt.Errorf("could not create tables: %w", err)
	}
	return &pgStore{conn: conn, log: log}, nil
}

func (s *pgStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
		s.closeFn = nil
	}
	return nil
}

func (s *pgStore) SaveSnapshot(ctx context.Context, blob []byte) error {
	if _, err := s.conn.Exec(ctx, pgUpsertSnapshot, blob, time.Now().UTC()); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *pgStore) LoadSnapshot(ctx context.Context) ([]byte, bool, error) {
	var blob []byte
	err := s.conn.QueryRow(ctx, pgSelectSnapshot).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load snapshot: %w", err)
	}
	return blob, true, nil
}

func (s *pgStore) AppendFire(ctx context.Context, r FireRecord) error {
	if r.FiredAt.IsZero() {
		r.FiredAt = time.Now()
	}
	_, err := s.conn.Exec(ctx, pgInsertFire,
		int64(r.TaskID), r.Payload, int64(r.ScheduledAt), r.FiredAt.UTC(), r.Remaining, r.Retired)
	if err != nil {
		return fmt.Errorf("append fire: %w", err)
	}
	if s.appends.Add(1)%500 == 0 {
		if _, err := s.conn.Exec(ctx, pgPruneFires, maxFireRows); err != nil {
			s.log.Debug("fires prune failed", logx.Err(err))
		}
	}
	return nil
}

func (s *pgStore) RecentFires(ctx context.Context, n int) ([]FireRecord, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.conn.Query(ctx, pgSelectFires, n)
	if err != nil {
		return nil, fmt.Errorf("recent fires: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (FireRecord, error) {
		var (
			r         FireRecord
			id, sched int64
		)
		err := row.Scan(&id, &r.Payload, &sched, &r.FiredAt, &r.Remaining, &r.Retired)
		r.TaskID, r.ScheduledAt = uint64(id), uint64(sched)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("recent fires: %w", err)
	}
	reverseFires(out)
	return out, nil
}
