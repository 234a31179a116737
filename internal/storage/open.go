package storage

import (
	"context"
	"errors"
	"strings"

	logx "weekcron/pkg/logx"
)

// Store is the persistence API used by the app host.
type Store interface {
	SaveSnapshot(ctx context.Context, blob []byte) error
	// LoadSnapshot returns the latest snapshot. ok is false when none was
	// ever saved.
	LoadSnapshot(ctx context.Context) (blob []byte, ok bool, err error)
	AppendFire(ctx context.Context, r FireRecord) error
	// RecentFires returns up to n of the newest records, oldest first.
	RecentFires(ctx context.Context, n int) ([]FireRecord, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("driver", driver))

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(ctx, cfg, log)
	case "postgres", "postgresql", "pgx":
		return openPostgres(ctx, cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
