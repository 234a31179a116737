package queue

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInterval = errors.New("invalid scheduling interval")
	ErrCorruptSnapshot = errors.New("corrupt snapshot")
)

// Iterations is either a finite fire count or infinite.
// The zero value is a finite count of 0, which is never a valid budget.
type Iterations struct {
	Count    uint64
	Infinite bool
}

// Times returns a finite iteration budget of n fires.
func Times(n uint64) Iterations { return Iterations{Count: n} }

// Forever returns an infinite iteration budget.
func Forever() Iterations { return Iterations{Infinite: true} }

// Repeats reports whether more than one fire is possible.
func (it Iterations) Repeats() bool { return it.Infinite || it.Count > 1 }

func (it Iterations) String() string {
	if it.Infinite {
		return "inf"
	}
	return fmt.Sprintf("%d", it.Count)
}

// Interval describes when a task fires. Durations are nanoseconds.
//
// Period is unused when the task fires only once.
type Interval struct {
	Delay      uint64
	Period     uint64
	Iterations Iterations
}

// Validate reports ErrInvalidInterval when the interval cannot produce a
// well-defined schedule.
func (iv Interval) Validate() error {
	if !iv.Iterations.Infinite && iv.Iterations.Count == 0 {
		return fmt.Errorf("%w: iterations must be positive or infinite", ErrInvalidInterval)
	}
	if iv.Period == 0 && iv.Iterations.Repeats() {
		return fmt.Errorf("%w: period must be > 0 when iterations is %s", ErrInvalidInterval, iv.Iterations)
	}
	return nil
}
