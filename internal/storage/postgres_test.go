package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	logx "weekcron/pkg/logx"
)

type query struct {
	Sql string
	Arg []any
}

type fakeConn struct {
	queries []query

	execErrs []error
	row      []any
	rowErr   error
}

func (c *fakeConn) Exec(_ context.Context, sql string, a ...any) (tag pgconn.CommandTag, err error) {
	if len(c.execErrs) > len(c.queries) {
		err = c.execErrs[len(c.queries)]
	}
	c.queries = append(c.queries, query{sql, a})
	return
}

func (c *fakeConn) QueryRow(_ context.Context, sql string, a ...any) pgx.Row {
	c.queries = append(c.queries, query{sql, a})
	return &fakeRow{contents: c.row, err: c.rowErr}
}

func (c *fakeConn) Query(_ context.Context, sql string, a ...any) (pgx.Rows, error) {
	c.queries = append(c.queries, query{sql, a})
	return nil, errors.New("not supported by fake")
}

type fakeRow struct {
	contents []any
	err      error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(r.contents[i]))
	}
	return nil
}

var queryOpts = []cmp.Option{
	cmpopts.IgnoreTypes(time.Time{}),
}

func swap[T any](t *testing.T, orig *T, with T) {
	t.Helper()
	o := *orig
	t.Cleanup(func() { *orig = o })
	*orig = with
}

// Tests below swap the package-level sleep and must not run in parallel.

func TestNewPgStore(t *testing.T) {
	conn := new(fakeConn)

	_, err := newPgStore(context.Background(), conn, logx.Nop())

	if err != nil {
		t.Errorf("newPgStore(conn) = _, %q, want <nil>", err)
	}
	want := []query{{pgCreateTables, nil}}
	if got := conn.queries; !cmp.Equal(got, want, queryOpts...) {
		t.Errorf("queries -want +got\n%s", cmp.Diff(want, got, queryOpts...))
	}
}

func TestNewPgStoreConnectionSlow(t *testing.T) {
	conn := new(fakeConn)
	pgErr := errors.New("pgx error")
	conn.execErrs = []error{pgErr, pgErr, nil}
	sleeps := []time.Duration{}
	swap(t, &sleep, func(d time.Duration) { sleeps = append(sleeps, d) })

	_, err := newPgStore(context.Background(), conn, logx.Nop())

	if err != nil {
		t.Errorf("newPgStore(conn) = _, %q, want <nil>", err)
	}
	if got := len(conn.queries); got != 3 {
		t.Errorf("create attempts = %d, want 3", got)
	}
	wantSleeps := []time.Duration{time.Second, 2 * time.Second}
	if !cmp.Equal(sleeps, wantSleeps) {
		t.Errorf("sleeps -want +got\n%s", cmp.Diff(wantSleeps, sleeps))
	}
}

func TestNewPgStoreConnectionFail(t *testing.T) {
	conn := new(fakeConn)
	pgErr := errors.New("pgx error")
	conn.execErrs = []error{pgErr, pgErr, pgErr}
	sleeps := []time.Duration{}
	swap(t, &sleep, func(d time.Duration) { sleeps = append(sleeps, d) })

	_, err := newPgStore(context.Background(), conn, logx.Nop())

	if !errors.Is(err, pgErr) {
		t.Errorf("newPgStore(conn) = _, %v, want %q", err, pgErr)
	}
	wantSleeps := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if !cmp.Equal(sleeps, wantSleeps) {
		t.Errorf("sleeps -want +got\n%s", cmp.Diff(wantSleeps, sleeps))
	}
}

func TestPgStoreSnapshot(t *testing.T) {
	ctx := context.Background()
	conn := new(fakeConn)
	st := &pgStore{conn: conn, log: logx.Nop()}

	if err := st.SaveSnapshot(ctx, []byte("blob")); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	conn.row = []any{[]byte("blob")}
	got, ok, err := st.LoadSnapshot(ctx)
	if err != nil || !ok || string(got) != "blob" {
		t.Fatalf("LoadSnapshot = %q, %v, %v", got, ok, err)
	}
	want := []query{
		{pgUpsertSnapshot, []any{[]byte("blob"), time.Time{}}},
		{pgSelectSnapshot, nil},
	}
	if !cmp.Equal(conn.queries, want, queryOpts...) {
		t.Errorf("queries -want +got\n%s", cmp.Diff(want, conn.queries, queryOpts...))
	}

	conn.rowErr = pgx.ErrNoRows
	if _, ok, err := st.LoadSnapshot(ctx); ok || err != nil {
		t.Fatalf("LoadSnapshot with no rows = _, %v, %v, want false, <nil>", ok, err)
	}
	conn.rowErr = errors.New("conn reset")
	if _, _, err := st.LoadSnapshot(ctx); err == nil {
		t.Fatalf("LoadSnapshot swallowed error")
	}
}

func TestPgStoreAppendFire(t *testing.T) {
	conn := new(fakeConn)
	st := &pgStore{conn: conn, log: logx.Nop()}
	firedAt := time.Date(2022, 2, 7, 0, 0, 1, 0, time.UTC)

	err := st.AppendFire(context.Background(), FireRecord{
		TaskID: 1 << 63, Payload: []byte("Ann"), ScheduledAt: 42, FiredAt: firedAt, Remaining: "2",
	})

	if err != nil {
		t.Fatalf("AppendFire: %v", err)
	}
	want := []query{{pgInsertFire, []any{int64(-1 << 63), []byte("Ann"), int64(42), firedAt, "2", false}}}
	if !cmp.Equal(conn.queries, want) {
		t.Errorf("queries -want +got\n%s", cmp.Diff(want, conn.queries))
	}
}
