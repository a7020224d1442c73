package schedule

import (
	"time"

	"gigflow/internal/models"
)

// Slot is a concrete time range on the calendar.
type Slot struct {
	Start time.Time
	End   time.Time
}

// NewSlot builds a slot for one event day. An end at or before the start means
// the event runs into the next day.
func NewSlot(date, start, end string, loc *time.Location) (Slot, bool) {
	if loc == nil {
		loc = time.Local
	}
	from, ok := at(date, start, loc)
	if !ok {
		return Slot{}, false
	}
	to, ok := at(date, end, loc)
	if !ok {
		return Slot{}, false
	}
	if !to.After(from) {
		to = to.Add(24 * time.Hour)
	}
	return Slot{Start: from, End: to}, true
}

// SlotOf returns the slot of a gig with a complete schedule.
func SlotOf(g *models.Gig, loc *time.Location) (Slot, bool) {
	if !HasCompleteSchedule(g) {
		return Slot{}, false
	}
	return NewSlot(g.EventDate, g.StartTime, g.EndTime, loc)
}

// Overlaps reports whether the two half-open ranges intersect.
func (s Slot) Overlaps(other Slot) bool {
	return s.Start.Before(other.End) && other.Start.Before(s.End)
}

// Duration of the slot.
func (s Slot) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// FindConflicts returns the blocks that overlap the gig's slot. Blocks created
// for the gig itself are skipped. A gig without a complete schedule has no conflicts.
func FindConflicts(g *models.Gig, blocks []models.CalendarBlock, loc *time.Location) []models.CalendarBlock {
	slot, ok := SlotOf(g, loc)
	if !ok {
		return nil
	}
	var conflicts []models.CalendarBlock
	for _, b := range blocks {
		if b.GigID != 0 && b.GigID == g.ID {
			continue
		}
		other, ok := NewSlot(b.Date, b.StartTime, b.EndTime, loc)
		if !ok {
			continue
		}
		if slot.Overlaps(other) {
			conflicts = append(conflicts, b)
		}
	}
	return conflicts
}
