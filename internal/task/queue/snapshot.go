package queue

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"weekcron/internal/task/calendar"
)

// Snapshot layout: 4-byte magic, 1-byte version, MessagePack body.
const (
	snapshotMagic   = "WKCR"
	SnapshotVersion = 1
	headerLen       = len(snapshotMagic) + 1
)

type snapshotBody struct {
	NextID uint64         `msgpack:"next_id"`
	Tasks  []snapshotTask `msgpack:"tasks"`
}

type snapshotTask struct {
	ID           uint64 `msgpack:"id"`
	Payload      []byte `msgpack:"payload"`
	Delay        uint64 `msgpack:"delay"`
	Period       uint64 `msgpack:"period"`
	IterCount    uint64 `msgpack:"iter_count"`
	IterInfinite bool   `msgpack:"iter_infinite"`
	NextFire     uint64 `msgpack:"next_fire"`
	RemCount     uint64 `msgpack:"rem_count"`
	RemInfinite  bool   `msgpack:"rem_infinite"`
}

// Snapshot serializes every task and the id allocator.
func (s *State) Snapshot() ([]byte, error) {
	s.mu.Lock()
	body := snapshotBody{
		NextID: uint64(s.nextID),
		Tasks:  make([]snapshotTask, 0, len(s.tasks)),
	}
	for _, id := range s.sortedIDsLocked() {
		t := s.tasks[id]
		body.Tasks = append(body.Tasks, snapshotTask{
			ID:           uint64(t.ID),
			Payload:      bytes.Clone(t.Payload),
			Delay:        t.Interval.Delay,
			Period:       t.Interval.Period,
			IterCount:    t.Interval.Iterations.Count,
			IterInfinite: t.Interval.Iterations.Infinite,
			NextFire:     uint64(t.NextFire),
			RemCount:     t.Remaining.Count,
			RemInfinite:  t.Remaining.Infinite,
		})
	}
	s.mu.Unlock()

	b, err := msgpack.Marshal(&body)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	out := make([]byte, 0, headerLen+len(b))
	out = append(out, snapshotMagic...)
	out = append(out, SnapshotVersion)
	return append(out, b...), nil
}

// Restore builds a new State from a snapshot. Any structural problem is
// reported as ErrCorruptSnapshot.
func Restore(b []byte, opts ...Option) (*State, error) {
	s := New(opts...)
	if err := s.Load(b); err != nil {
		return nil, err
	}
	return s, nil
}

// Load replaces the whole state with the snapshot in b. On error the
// current state is left untouched.
func (s *State) Load(b []byte) error {
	nextID, tasks, err := decodeSnapshot(b)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.nextID = nextID
	s.tasks = tasks
	s.mu.Unlock()
	return nil
}

func decodeSnapshot(b []byte) (TaskID, map[TaskID]*Task, error) {
	if len(b) < headerLen || string(b[:len(snapshotMagic)]) != snapshotMagic {
		return 0, nil, fmt.Errorf("%w: bad header", ErrCorruptSnapshot)
	}
	if v := b[len(snapshotMagic)]; v != SnapshotVersion {
		return 0, nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, v)
	}
	var body snapshotBody
	if err := msgpack.Unmarshal(b[headerLen:], &body); err != nil {
		return 0, nil, fmt.Errorf("%w: decode: %v", ErrCorruptSnapshot, err)
	}
	if body.NextID == 0 {
		return 0, nil, fmt.Errorf("%w: id allocator is zero", ErrCorruptSnapshot)
	}

	tasks := make(map[TaskID]*Task, len(body.Tasks))
	for _, st := range body.Tasks {
		t := &Task{
			ID:      TaskID(st.ID),
			Payload: st.Payload,
			Interval: Interval{
				Delay:      st.Delay,
				Period:     st.Period,
				Iterations: Iterations{Count: st.IterCount, Infinite: st.IterInfinite},
			},
			NextFire:  calendar.Instant(st.NextFire),
			Remaining: Iterations{Count: st.RemCount, Infinite: st.RemInfinite},
		}
		if err := validateRestored(t, TaskID(body.NextID)); err != nil {
			return 0, nil, err
		}
		if _, dup := tasks[t.ID]; dup {
			return 0, nil, fmt.Errorf("%w: duplicate task id %d", ErrCorruptSnapshot, t.ID)
		}
		tasks[t.ID] = t
	}
	return TaskID(body.NextID), tasks, nil
}

func validateRestored(t *Task, nextID TaskID) error {
	if t.ID == 0 || t.ID >= nextID {
		return fmt.Errorf("%w: task id %d outside allocated range [1,%d)", ErrCorruptSnapshot, t.ID, nextID)
	}
	if err := t.Interval.Validate(); err != nil {
		return fmt.Errorf("%w: task %d: %v", ErrCorruptSnapshot, t.ID, err)
	}
	rem, reg := t.Remaining, t.Interval.Iterations
	if rem.Infinite != reg.Infinite {
		return fmt.Errorf("%w: task %d: remaining %s does not match iterations %s", ErrCorruptSnapshot, t.ID, rem, reg)
	}
	if !rem.Infinite && (rem.Count == 0 || rem.Count > reg.Count) {
		return fmt.Errorf("%w: task %d: remaining %d outside [1,%d]", ErrCorruptSnapshot, t.ID, rem.Count, reg.Count)
	}
	if t.Interval.Period == 0 && rem.Repeats() {
		return fmt.Errorf("%w: task %d: zero period with %s remaining", ErrCorruptSnapshot, t.ID, rem)
	}
	return nil
}
