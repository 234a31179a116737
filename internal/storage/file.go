package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "weekcron/pkg/logx"
)

// fileStore keeps everything next to a path prefix.
//
// Files:
//   - <prefix>.snapshot.bin (latest snapshot, replaced atomically)
//   - <prefix>.fires.jsonl  (append-only JSON Lines)
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	firesPath    string
	firesFile    *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	firesPath := prefix + ".fires.jsonl"
	ff, err := os.OpenFile(firesPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	// A crash mid-save leaves a stale tmp behind.
	_ = os.Remove(prefix + ".snapshot.bin.tmp")

	return &fileStore{
		log:          log,
		snapshotPath: prefix + ".snapshot.bin",
		firesPath:    firesPath,
		firesFile:    ff,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.firesFile == nil {
		return nil
	}
	err := s.firesFile.Close()
	s.firesFile = nil
	return err
}

// SaveSnapshot writes blob to a tmp file, fsyncs it and renames it over the
// previous snapshot, so a reader sees either the old or the new one.
func (s *fileStore) SaveSnapshot(ctx context.Context, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.firesFile == nil {
		return ErrClosed
	}

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(blob); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if d, err := os.Open(filepath.Dir(s.snapshotPath)); err == nil {
		if err := d.Sync(); err != nil {
			s.log.Debug("snapshot dir sync failed", logx.Err(err))
		}
		_ = d.Close()
	}
	return nil
}

func (s *fileStore) LoadSnapshot(ctx context.Context) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(s.snapshotPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *fileStore) AppendFire(ctx context.Context, r FireRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.firesFile == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.firesFile).Encode(r)
}

func (s *fileStore) RecentFires(ctx context.Context, n int) ([]FireRecord, error) {
	if n <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.firesPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ring := make([]FireRecord, 0, n)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var r FireRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			// torn tail after a crash
			continue
		}
		if len(ring) == n {
			copy(ring, ring[1:])
			ring = ring[:n-1]
		}
		ring = append(ring, r)
	}
	return ring, sc.Err()
}
