package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"weekcron/internal/config"
	"weekcron/internal/task/calendar"
	"weekcron/internal/task/queue"
)

type testEnv struct {
	dir     string
	cfgPath string
	state   string // storage path prefix
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	return &testEnv{
		dir:     dir,
		cfgPath: filepath.Join(dir, "weekcron.json"),
		state:   filepath.Join(dir, "data", "state"),
	}
}

func (e *testEnv) baseConfig() *config.Config {
	return &config.Config{
		Logging: config.LoggingConfig{
			Level: "debug",
			File:  config.LoggingFile{Enabled: true, Path: filepath.Join(e.dir, "weekcron.log")},
		},
		Storage: &config.StorageConfig{Driver: "file", Path: e.state},
	}
}

func (e *testEnv) write(t *testing.T, cfg *config.Config) {
	t.Helper()
	b, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(e.cfgPath, b, 0o600); err != nil {
		t.Fatal(err)
	}
}

func stopCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func payloads(tasks []queue.Task) []string {
	var out []string
	for _, t := range tasks {
		out = append(out, string(t.Payload))
	}
	return out
}

func TestFreshStateIsSeededOnceAndRestored(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	cfg := env.baseConfig()
	cfg.Greetings = []config.GreetingConfig{{Weekday: "mon", Name: "Alice"}, {Weekday: "friday", Name: "Bob"}}
	env.write(t, cfg)

	a, err := New(context.Background(), env.cfgPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Restored() {
		t.Fatalf("first run reports restored state")
	}
	first := a.Scheduler().List()
	if diff := cmp.Diff([]string{"Alice", "Bob"}, payloads(first)); diff != "" {
		t.Fatalf("seeded -want +got\n%s", diff)
	}
	if first[0].NextFire.Weekday() != calendar.Mon || first[1].NextFire.Weekday() != calendar.Fri {
		t.Fatalf("weekdays = %v, %v", first[0].NextFire.Weekday(), first[1].NextFire.Weekday())
	}
	if err := a.Stop(stopCtx(t), StopSIGTERM); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// A restored state ignores greetings from config.
	cfg.Greetings = append(cfg.Greetings, config.GreetingConfig{Weekday: "sun", Name: "Cy"})
	env.write(t, cfg)
	b, err := New(context.Background(), env.cfgPath)
	if err != nil {
		t.Fatalf("New (restart): %v", err)
	}
	defer b.Stop(stopCtx(t), StopUnknown)
	if !b.Restored() {
		t.Fatalf("second run did not restore")
	}
	if diff := cmp.Diff(first, b.Scheduler().List()); diff != "" {
		t.Fatalf("restored -want +got\n%s", diff)
	}
	id, err := b.Scheduler().Enqueue([]byte("Dan"), queue.Interval{Iterations: queue.Times(1)})
	if err != nil || id != 3 {
		t.Fatalf("Enqueue after restore = %d, %v, want 3", id, err)
	}
}

func TestCorruptSnapshotIsFatal(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	env.write(t, env.baseConfig())
	if err := os.MkdirAll(filepath.Dir(env.state), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(env.state+".snapshot.bin", []byte("WKCR\x01\xc1\xc1"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := New(context.Background(), env.cfgPath); !errors.Is(err, queue.ErrCorruptSnapshot) {
		t.Fatalf("New = %v, want %v", err, queue.ErrCorruptSnapshot)
	}
	if _, err := InspectSnapshot(context.Background(), env.cfgPath); !errors.Is(err, queue.ErrCorruptSnapshot) {
		t.Fatalf("InspectSnapshot = %v, want %v", err, queue.ErrCorruptSnapshot)
	}
}

func TestInvalidGreetingIsFatal(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	cfg := env.baseConfig()
	cfg.Storage = nil
	cfg.Greetings = []config.GreetingConfig{{Weekday: "tue", Name: "  "}}
	env.write(t, cfg)
	if _, err := New(context.Background(), env.cfgPath); err == nil {
		t.Fatalf("New accepted a blank name")
	}
}

func TestRunGreetsJournalsAndCheckpoints(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	env.write(t, env.baseConfig())

	var out bytes.Buffer
	a, err := New(context.Background(), env.cfgPath, WithOutput(&out))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sched := a.Scheduler()
	if _, err := sched.Enqueue([]byte("Dora"), queue.Interval{Iterations: queue.Times(1)}); err != nil {
		t.Fatal(err)
	}
	if _, err := sched.Enqueue([]byte("Eve"), queue.Interval{Period: 1, Iterations: queue.Times(2)}); err != nil {
		t.Fatal(err)
	}
	fires := sched.TickNow(ctx, calendar.Now())
	if len(fires) != 2 {
		t.Fatalf("fired %d, want 2", len(fires))
	}
	if err := a.Stop(stopCtx(t), StopSIGINT); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got, want := out.String(), "Hello, Dora\nHello, Eve\n"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}

	recs, err := RecentFires(context.Background(), env.cfgPath, 10)
	if err != nil {
		t.Fatalf("RecentFires: %v", err)
	}
	if len(recs) != 2 || string(recs[0].Payload) != "Dora" || !recs[0].Retired || recs[1].Remaining != "1" {
		t.Fatalf("journal = %+v", recs)
	}

	ins, err := InspectSnapshot(context.Background(), env.cfgPath)
	if err != nil {
		t.Fatalf("InspectSnapshot: %v", err)
	}
	if !ins.Found || ins.NextID != 3 || len(ins.Tasks) != 1 || string(ins.Tasks[0].Payload) != "Eve" {
		t.Fatalf("inspection = %+v", ins)
	}
}

func TestApplyConfigUpdatesScheduler(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	cfg := env.baseConfig()
	env.write(t, cfg)
	a, err := New(context.Background(), env.cfgPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Stop(stopCtx(t), StopUnknown)

	next := env.baseConfig()
	next.Scheduler.CatchUp = "burst"
	next.Scheduler.BurstCap = 4
	a.applyConfig(cfg, next)
	if got := a.state.CatchUp(); got != queue.CatchUpBurst {
		t.Fatalf("CatchUp() = %v, want burst", got)
	}

	// An invalid tick keeps the previous scheduler config.
	bad := env.baseConfig()
	bad.Scheduler.Tick = "every now and then"
	a.applyConfig(next, bad)
	if got := a.Scheduler().Status().Tick; got == "every now and then" {
		t.Fatalf("invalid tick applied")
	}
}

func TestInspectWithoutStorage(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	cfg := env.baseConfig()
	cfg.Storage = &config.StorageConfig{Driver: "none"}
	env.write(t, cfg)
	if _, err := InspectSnapshot(context.Background(), env.cfgPath); !errors.Is(err, ErrNoStorage) {
		t.Fatalf("InspectSnapshot = %v, want %v", err, ErrNoStorage)
	}
}

func TestDequeueSeededGreetingSurvivesRestart(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	cfg := env.baseConfig()
	cfg.Greetings = []config.GreetingConfig{{Weekday: "mon", Name: "Alice"}, {Weekday: "tue", Name: "Bob"}}
	env.write(t, cfg)

	a, err := New(context.Background(), env.cfgPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Stop(stopCtx(t), StopSIGTERM); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	got, ok, err := DequeueTask(context.Background(), env.cfgPath, 1)
	if err != nil || !ok || string(got.Payload) != "Alice" {
		t.Fatalf("DequeueTask(1) = %+v, %v, %v", got, ok, err)
	}
	if _, ok, err := DequeueTask(context.Background(), env.cfgPath, 1); err != nil || ok {
		t.Fatalf("second DequeueTask(1) = _, %v, %v, want false, <nil>", ok, err)
	}
	id, err := GreetTask(context.Background(), env.cfgPath, calendar.Sun, "Cy")
	if err != nil || id != 3 {
		t.Fatalf("GreetTask = %d, %v, want 3", id, err)
	}

	b, err := New(context.Background(), env.cfgPath)
	if err != nil {
		t.Fatalf("New (restart): %v", err)
	}
	defer b.Stop(stopCtx(t), StopUnknown)
	tasks := b.Scheduler().List()
	if diff := cmp.Diff([]string{"Bob", "Cy"}, payloads(tasks)); diff != "" {
		t.Fatalf("restored -want +got\n%s", diff)
	}
	if tasks[1].NextFire.Weekday() != calendar.Sun {
		t.Fatalf("Cy fires on %v, want Sun", tasks[1].NextFire.Weekday())
	}
}

func TestEditNeverSavedTableSeedsGreetings(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	cfg := env.baseConfig()
	cfg.Greetings = []config.GreetingConfig{{Weekday: "wed", Name: "Wes"}}
	env.write(t, cfg)

	id, err := AddTask(context.Background(), env.cfgPath, []byte("once"), queue.Interval{Delay: uint64(time.Hour), Iterations: queue.Times(1)})
	if err != nil || id != 2 {
		t.Fatalf("AddTask = %d, %v, want 2", id, err)
	}
	if _, err := AddTask(context.Background(), env.cfgPath, []byte("bad"), queue.Interval{Iterations: queue.Forever()}); !errors.Is(err, queue.ErrInvalidInterval) {
		t.Fatalf("AddTask(invalid) = %v, want %v", err, queue.ErrInvalidInterval)
	}
	ins, err := InspectSnapshot(context.Background(), env.cfgPath)
	if err != nil {
		t.Fatalf("InspectSnapshot: %v", err)
	}
	if diff := cmp.Diff([]string{"Wes", "once"}, payloads(ins.Tasks)); diff != "" {
		t.Fatalf("stored -want +got\n%s", diff)
	}
	if ins.NextID != 3 {
		t.Fatalf("NextID = %d, want 3", ins.NextID)
	}
}

func TestDequeueMissingTaskOnEmptyStoreWritesNothing(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	env.write(t, env.baseConfig())
	if _, ok, err := DequeueTask(context.Background(), env.cfgPath, 7); err != nil || ok {
		t.Fatalf("DequeueTask = _, %v, %v, want false, <nil>", ok, err)
	}
	ins, err := InspectSnapshot(context.Background(), env.cfgPath)
	if err != nil || ins.Found {
		t.Fatalf("InspectSnapshot = %+v, %v, want nothing stored", ins, err)
	}
}
