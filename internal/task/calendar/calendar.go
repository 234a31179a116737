// Package calendar converts weekday requests into nanosecond offsets.
//
// All instants are nanoseconds since the Unix epoch in UTC. There is no
// timezone support: "start of day" always means 00:00:00 UTC.
package calendar

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	NanosInDay  uint64 = 1_000_000_000 * 60 * 60 * 24
	NanosInWeek uint64 = NanosInDay * 7
)

// 1970-01-01 was a Thursday (ordinal 4 with Mon=1).
const epochOrdinalOffset = 3

// Instant is an unsigned count of nanoseconds since the Unix epoch (UTC).
type Instant uint64

// Now returns the current wall-clock instant.
func Now() Instant { return FromTime(time.Now()) }

// FromTime converts t to an Instant. Times before the epoch clamp to 0.
func FromTime(t time.Time) Instant {
	n := t.UnixNano()
	if n < 0 {
		return 0
	}
	return Instant(n)
}

// Time converts i to a UTC time.Time. Instants beyond the int64 range
// (after year 2262) clamp to the largest representable time.
func (i Instant) Time() time.Time {
	if uint64(i) > math.MaxInt64 {
		return time.Unix(0, math.MaxInt64).UTC()
	}
	return time.Unix(0, int64(i)).UTC()
}

// Add returns i+d, saturating at the maximum Instant.
func (i Instant) Add(d uint64) Instant {
	if uint64(i) > math.MaxUint64-d {
		return Instant(math.MaxUint64)
	}
	return i + Instant(d)
}

// StartOfDay returns midnight UTC of i's calendar day.
func (i Instant) StartOfDay() Instant {
	return i - Instant(uint64(i)%NanosInDay)
}

// Weekday returns the day of the week of i.
func (i Instant) Weekday() Weekday {
	days := uint64(i) / NanosInDay
	return Weekday((days+epochOrdinalOffset)%7 + 1)
}

func (i Instant) String() string {
	return i.Time().Format(time.RFC3339Nano)
}

// Weekday is a day of the week with ordinals Mon=1 .. Sun=7.
type Weekday uint8

const (
	Mon Weekday = iota + 1
	Tue
	Wed
	Thu
	Fri
	Sat
	Sun
)

var weekdayNames = [...]string{"", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

func (w Weekday) String() string {
	if w < Mon || w > Sun {
		return fmt.Sprintf("Weekday(%d)", uint8(w))
	}
	return weekdayNames[w]
}

// Valid reports whether w is one of Mon..Sun.
func (w Weekday) Valid() bool { return w >= Mon && w <= Sun }

// ParseWeekday accepts short or long English names, case-insensitive.
func ParseWeekday(s string) (Weekday, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	for w := Mon; w <= Sun; w++ {
		if v == strings.ToLower(weekdayNames[w]) || v == strings.ToLower(time.Weekday(int(w)%7).String()) {
			return w, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q (use mon..sun)", s)
}

// FromTimeWeekday maps a time.Weekday (Sunday=0) to Weekday (Sun=7).
func FromTimeWeekday(d time.Weekday) Weekday {
	if d == time.Sunday {
		return Sun
	}
	return Weekday(d)
}

// NanosUntil returns the nanoseconds from now until the next 00:00 UTC that
// falls on target. When now is already on target the answer is one week out,
// never later the same day. The result is always in (0, NanosInWeek].
//
// A target outside Mon..Sun is reduced by its ordinal modulo 7 so the
// function stays total.
func NanosUntil(now Instant, target Weekday) uint64 {
	elapsed := uint64(now) % NanosInDay
	cur := int(now.Weekday())
	tgt := int(target) % 7
	if tgt == 0 {
		tgt = int(Sun)
	}

	daysAhead := tgt - cur
	if daysAhead == 0 {
		daysAhead = 7
	}
	if daysAhead < 0 {
		daysAhead += 7
	}
	return uint64(daysAhead)*NanosInDay - elapsed
}

// NextStart returns the instant of the next start of target after now.
func NextStart(now Instant, target Weekday) Instant {
	return now.Add(NanosUntil(now, target))
}
