package queue

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"weekcron/internal/task/calendar"
)

func payloadStrings(fires []Fire) []string {
	var out []string
	for _, p := range Payloads(fires) {
		out = append(out, string(p))
	}
	return out
}

func TestTickFiniteScenario(t *testing.T) {
	t.Parallel()
	s := New(fixedClock(0))
	id, err := s.Enqueue([]byte("A"), Interval{Delay: 100, Period: 50, Iterations: Times(3)})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	steps := []struct {
		now       calendar.Instant
		want      []string
		remaining uint64 // 0 means retired
		nextFire  calendar.Instant
	}{
		{now: 0, want: nil, remaining: 3, nextFire: 100},
		{now: 100, want: []string{"A"}, remaining: 2, nextFire: 150},
		{now: 140, want: nil, remaining: 2, nextFire: 150},
		{now: 150, want: []string{"A"}, remaining: 1, nextFire: 200},
		{now: 200, want: []string{"A"}, remaining: 0},
		{now: 200, want: nil, remaining: 0},
	}
	for i, st := range steps {
		got := payloadStrings(s.Tick(st.now))
		if !cmp.Equal(got, st.want) {
			t.Fatalf("step %d: Tick(%d) -want +got\n%s", i, st.now, cmp.Diff(st.want, got))
		}
		tasks := s.List()
		if st.remaining == 0 {
			if len(tasks) != 0 {
				t.Fatalf("step %d: task still listed: %+v", i, tasks)
			}
			continue
		}
		if len(tasks) != 1 || tasks[0].ID != id {
			t.Fatalf("step %d: List() = %+v", i, tasks)
		}
		if tasks[0].Remaining.Count != st.remaining || tasks[0].NextFire != st.nextFire {
			t.Fatalf("step %d: remaining=%d next=%d, want %d, %d",
				i, tasks[0].Remaining.Count, tasks[0].NextFire, st.remaining, st.nextFire)
		}
	}
}

func TestTickInfiniteCollapsesMissedPeriods(t *testing.T) {
	t.Parallel()
	s := New(fixedClock(0))
	if _, err := s.Enqueue([]byte("inf"), Interval{Period: 10, Iterations: Forever()}); err != nil {
		t.Fatal(err)
	}

	fires := s.Tick(0)
	if len(fires) != 1 {
		t.Fatalf("Tick(0) fired %d times, want 1", len(fires))
	}
	if got := s.List()[0].NextFire; got != 10 {
		t.Fatalf("NextFire = %d, want 10", got)
	}

	fires = s.Tick(1000)
	if len(fires) != 1 {
		t.Fatalf("Tick(1000) fired %d times, want 1", len(fires))
	}
	if got := s.List()[0].NextFire; got != 20 {
		t.Fatalf("NextFire = %d, want 20 (anchored to schedule)", got)
	}
	if !fires[0].Remaining.Infinite || fires[0].Retired {
		t.Fatalf("fire = %+v, want infinite, not retired", fires[0])
	}
}

func TestTickFiresExactlyNTimes(t *testing.T) {
	t.Parallel()
	spacings := []calendar.Instant{1, 7, 50, 333, 10_000}
	for _, step := range spacings {
		s := New(fixedClock(0))
		if _, err := s.Enqueue([]byte("n"), Interval{Delay: 3, Period: 5, Iterations: Times(4)}); err != nil {
			t.Fatal(err)
		}
		total := 0
		for now := calendar.Instant(0); now < 200_000; now += step {
			total += len(s.Tick(now))
		}
		if total != 4 {
			t.Fatalf("step %d: fired %d times, want 4", step, total)
		}
		if s.Len() != 0 {
			t.Fatalf("step %d: task not retired", step)
		}
	}
}

func TestTickOrdersByID(t *testing.T) {
	t.Parallel()
	s := New(fixedClock(0))
	for _, p := range []string{"c", "a", "b"} {
		if _, err := s.Enqueue([]byte(p), Interval{Delay: 10, Iterations: Times(1)}); err != nil {
			t.Fatal(err)
		}
	}
	// A later task with an earlier fire time still sorts by id.
	if _, err := s.EnqueueAt(0, []byte("d"), Interval{Iterations: Times(1)}); err != nil {
		t.Fatal(err)
	}
	fires := s.Tick(10)
	want := []string{"c", "a", "b", "d"}
	if got := payloadStrings(fires); !cmp.Equal(got, want) {
		t.Fatalf("Tick -want +got\n%s", cmp.Diff(want, got))
	}
	for i, f := range fires {
		if f.TaskID != TaskID(i+1) || !f.Retired {
			t.Fatalf("fire %d = %+v", i, f)
		}
	}
}

func TestTickFireCarriesScheduledInstant(t *testing.T) {
	t.Parallel()
	s := New(fixedClock(0))
	if _, err := s.Enqueue([]byte("x"), Interval{Delay: 100, Period: 50, Iterations: Times(2)}); err != nil {
		t.Fatal(err)
	}
	fires := s.Tick(130)
	want := []Fire{{TaskID: 1, Payload: []byte("x"), ScheduledAt: 100, Remaining: Times(1)}}
	if !cmp.Equal(fires, want) {
		t.Fatalf("Tick -want +got\n%s", cmp.Diff(want, fires))
	}
}

func TestTickBurstPolicy(t *testing.T) {
	t.Parallel()
	s := New(fixedClock(0), WithCatchUp(CatchUpBurst), WithBurstCap(3))
	if _, err := s.Enqueue([]byte("inf"), Interval{Period: 10, Iterations: Forever()}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Enqueue([]byte("fin"), Interval{Period: 10, Iterations: Times(2)}); err != nil {
		t.Fatal(err)
	}

	// 0,10,20,30,40 are all due at 45: five missed periods.
	fires := s.Tick(45)
	want := []string{"inf", "inf", "inf", "fin", "fin"}
	if got := payloadStrings(fires); !cmp.Equal(got, want) {
		t.Fatalf("Tick(45) -want +got\n%s", cmp.Diff(want, got))
	}
	if got := []calendar.Instant{fires[0].ScheduledAt, fires[1].ScheduledAt, fires[2].ScheduledAt}; !cmp.Equal(got, []calendar.Instant{0, 10, 20}) {
		t.Fatalf("scheduled instants = %v", got)
	}
	tasks := s.List()
	if len(tasks) != 1 || tasks[0].NextFire != 30 {
		t.Fatalf("List() = %+v, want only inf with NextFire=30", tasks)
	}

	// Switching back to collapse at runtime.
	s.SetCatchUp(CatchUpCollapse, 0)
	if n := len(s.Tick(1000)); n != 1 {
		t.Fatalf("collapse Tick fired %d, want 1", n)
	}
}
