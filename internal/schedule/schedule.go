// Package schedule holds the time half of the marketplace rules: time-of-day
// arithmetic, date display, calendar slots and the history window for
// finished gigs. Nothing here reads the wall clock.
package schedule

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"gigflow/internal/models"
	"gigflow/internal/money"
)

const (
	minutesPerDay = 24 * 60
	dateLayout    = "2006-01-02"
	displayLayout = "02/01/2006"
)

var ErrInvalidTime = errors.New("invalid time of day")

// ParseClock returns the minutes since midnight for "HH:MM" (seconds are accepted and dropped).
func ParseClock(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour()*60 + t.Minute(), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
}

// FormatClock renders minutes since midnight as zero-padded "HH:MM", wrapping around the day.
func FormatClock(minutes int) string {
	m := ((minutes % minutesPerDay) + minutesPerDay) % minutesPerDay
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// AddDuration computes the end time of an event that starts at start and lasts
// hours, wrapping past midnight: AddDuration("23:30", 2) == "01:30".
func AddDuration(start string, hours float64) (string, error) {
	begin, err := ParseClock(start)
	if err != nil {
		return "", err
	}
	if math.IsNaN(hours) || math.IsInf(hours, 0) {
		return "", fmt.Errorf("%w: duration %v", ErrInvalidTime, hours)
	}
	delta := math.Mod(math.Round(hours*60), minutesPerDay)
	return FormatClock(begin + int(delta)), nil
}

// ParseDate reads the date part of an ISO date or date-time as a calendar day in loc.
// The time part is ignored so a UTC offset can never move the day.
func ParseDate(raw string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	s := strings.TrimSpace(raw)
	if i := strings.IndexAny(s, "T "); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return time.Time{}, false
	}
	d, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// FormatDate renders raw as "dd/mm/yyyy", or money.ToBeArranged when it is empty or invalid.
func FormatDate(raw string, loc *time.Location) string {
	d, ok := ParseDate(raw, loc)
	if !ok {
		return money.ToBeArranged
	}
	return d.Format(displayLayout)
}

// HasCompleteSchedule reports whether date, start and end are all set.
// Calendars can only be blocked for such gigs.
func HasCompleteSchedule(g *models.Gig) bool {
	if g == nil {
		return false
	}
	return strings.TrimSpace(g.EventDate) != "" &&
		strings.TrimSpace(g.StartTime) != "" &&
		strings.TrimSpace(g.EndTime) != ""
}

// at combines a calendar date with a time of day in loc.
func at(date, clock string, loc *time.Location) (time.Time, bool) {
	d, ok := ParseDate(date, loc)
	if !ok {
		return time.Time{}, false
	}
	minutes, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(d.Year(), d.Month(), d.Day(), minutes/60, minutes%60, 0, 0, loc), true
}

// HistoryAnchorDate picks the moment a finished gig is aged from: the last
// update, else the end of the event day, else creation.
func HistoryAnchorDate(g *models.Gig, loc *time.Location) (time.Time, bool) {
	if g == nil {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	if !g.UpdatedAt.IsZero() {
		return g.UpdatedAt, true
	}
	if g.EventDate != "" {
		end := g.EndTime
		if _, err := ParseClock(end); err != nil {
			end = models.DefaultEndTime
		}
		if t, ok := at(g.EventDate, end, loc); ok {
			return t, true
		}
	}
	if !g.CreatedAt.IsZero() {
		return g.CreatedAt, true
	}
	return time.Time{}, false
}

// IsInHistoryWindow reports whether a closed or cancelled gig finished within
// the last windowDays days before now. Anchors in the future never match.
// A non-positive windowDays means the default of 14.
func IsInHistoryWindow(g *models.Gig, now time.Time, windowDays int) bool {
	if g == nil || !g.Status.IsTerminal() {
		return false
	}
	if windowDays <= 0 {
		windowDays = models.DefaultHistoryWindowDays
	}
	anchor, ok := HistoryAnchorDate(g, now.Location())
	if !ok {
		return false
	}
	age := now.Sub(anchor)
	return age >= 0 && age <= time.Duration(windowDays)*24*time.Hour
}

// Views splits a gig list the way the marketplace screens show it.
type Views struct {
	Active  []models.Gig `json:"active"`
	History []models.Gig `json:"history"`
	All     []models.Gig `json:"all"`
}

// ComposeViews keeps input order in every view. All is Active followed by
// History; the two never share a gig because History only holds terminal gigs.
func ComposeViews(gigs []models.Gig, now time.Time, windowDays int) Views {
	v := Views{
		Active:  []models.Gig{},
		History: []models.Gig{},
	}
	for i := range gigs {
		switch {
		case !gigs[i].Status.IsTerminal():
			v.Active = append(v.Active, gigs[i])
		case IsInHistoryWindow(&gigs[i], now, windowDays):
			v.History = append(v.History, gigs[i])
		}
	}
	v.All = make([]models.Gig, 0, len(v.Active)+len(v.History))
	v.All = append(v.All, v.Active...)
	v.All = append(v.All, v.History...)
	return v
}
