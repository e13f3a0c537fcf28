package domain

import (
	"fmt"
	"sort"
	"time"
)

// Slot is a derived candidate start time. It is never persisted.
type Slot struct {
	Start           ClockTime
	DurationMinutes int
}

func (s Slot) End() ClockTime {
	return s.Start.Add(s.DurationMinutes)
}

// EffectiveIntervals resolves the open hours for date: the override if one
// exists, the weekly template otherwise.
func EffectiveIntervals(res Resource, date time.Time, override *DateOverride) []Interval {
	if override != nil {
		if override.IsClosed() {
			return nil
		}
		return override.Intervals
	}
	return res.Template[date.Weekday()]
}

// GenerateSlots expands the resource's hours for date into candidate start
// times. Malformed intervals are skipped and reported in errs; they never abort
// generation of the remaining intervals.
func GenerateSlots(res Resource, date time.Time, override *DateOverride, durationMinutes int) (slots []Slot, errs []error) {
	if durationMinutes <= 0 {
		return nil, []error{validationError("service duration must be positive")}
	}
	step := res.Granularity()

	ivs := append([]Interval(nil), EffectiveIntervals(res, date, override)...)
	sort.Slice(ivs, func(i, j int) bool { return ivs[i].Start < ivs[j].Start })

	last := ClockTime(-1)
	for _, iv := range ivs {
		if err := iv.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		for t := iv.Start; t.Add(durationMinutes) <= iv.End; t = t.Add(step) {
			// stored intervals are disjoint; this only guards hand-edited rows
			if t <= last {
				continue
			}
			slots = append(slots, Slot{Start: t, DurationMinutes: durationMinutes})
			last = t
		}
	}
	return slots, errs
}

// IsGeneratedSlot reports whether start is one of the candidates GenerateSlots
// would emit for date.
func IsGeneratedSlot(res Resource, date time.Time, override *DateOverride, start ClockTime, durationMinutes int) error {
	slots, _ := GenerateSlots(res, date, override, durationMinutes)
	for _, s := range slots {
		if s.Start == start {
			return nil
		}
	}
	return validationError(fmt.Sprintf("%s for %d minutes is outside business hours on %s", start, durationMinutes, DateKey(date)))
}

// SubtractOccupied drops every slot overlapping an occupied booking. Bookings
// must already be filtered to the active ones for the same resource and date.
func SubtractOccupied(slots []Slot, occupied []Booking) []Slot {
	free := make([]Slot, 0, len(slots))
	for _, s := range slots {
		taken := false
		for _, b := range occupied {
			if Overlaps(b.Start, b.DurationMinutes, s.Start, s.DurationMinutes) {
				taken = true
				break
			}
		}
		if !taken {
			free = append(free, s)
		}
	}
	return free
}
