package queue

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"weekcron/internal/task/calendar"
)

// State owns every task and the id allocator.
type State struct {
	mu sync.Mutex

	now      func() calendar.Instant
	catchUp  CatchUp
	burstCap int

	nextID TaskID
	tasks  map[TaskID]*Task
}

// New returns an empty State. The first allocated id is 1.
func New(opts ...Option) *State {
	s := &State{
		now:    calendar.Now,
		nextID: 1,
		tasks:  map[TaskID]*Task{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetCatchUp changes the catch-up policy for subsequent ticks.
func (s *State) SetCatchUp(c CatchUp, burstCap int) {
	s.mu.Lock()
	s.catchUp = c
	s.burstCap = burstCap
	s.mu.Unlock()
}

// CatchUp returns the current catch-up policy.
func (s *State) CatchUp() CatchUp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catchUp
}

// Enqueue registers payload with iv, using the State's clock as now.
func (s *State) Enqueue(payload []byte, iv Interval) (TaskID, error) {
	return s.EnqueueAt(s.now(), payload, iv)
}

// EnqueueAt registers payload with iv relative to now. On error nothing
// changes, the id allocator included.
func (s *State) EnqueueAt(now calendar.Instant, payload []byte, iv Interval) (TaskID, error) {
	if err := iv.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.tasks[id] = &Task{
		ID:        id,
		Payload:   bytes.Clone(payload),
		Interval:  iv,
		NextFire:  now.Add(iv.Delay),
		Remaining: iv.Iterations,
	}
	return id, nil
}

// EnqueueWeekly registers payload to fire at every start of weekday (UTC),
// beginning with the next one. A weekday outside Mon..Sun is rejected with
// ErrInvalidInterval.
func (s *State) EnqueueWeekly(weekday calendar.Weekday, payload []byte) (TaskID, error) {
	if !weekday.Valid() {
		return 0, fmt.Errorf("%w: weekday %d", ErrInvalidInterval, weekday)
	}
	now := s.now()
	return s.EnqueueAt(now, payload, Interval{
		Delay:      calendar.NanosUntil(now, weekday),
		Period:     calendar.NanosInWeek,
		Iterations: Forever(),
	})
}

// Dequeue removes the task with id. A missing id is not an error.
func (s *State) Dequeue(id TaskID) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	delete(s.tasks, id)
	return t.clone(), true
}

// Get returns a copy of the task with id.
func (s *State) Get(id TaskID) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	return t.clone(), true
}

// List returns copies of all tasks in ascending id order.
func (s *State) List() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.tasks))
	for _, id := range s.sortedIDsLocked() {
		out = append(out, s.tasks[id].clone())
	}
	return out
}

// Len returns the number of tasks.
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// NextID returns the id the next Enqueue will allocate.
func (s *State) NextID() TaskID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextID
}

func (s *State) sortedIDsLocked() []TaskID {
	ids := make([]TaskID, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
