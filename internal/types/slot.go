// README: Promised fulfilment slot (calendar date + wall-clock time of day).
package types

import (
	"errors"
	"strings"
	"time"
)

const (
	SlotDateLayout = "2006-01-02"
	SlotTimeLayout = "15:04"
)

var ErrInvalidSlot = errors.New("invalid slot")

// Slot is stored the way clients submit it: a date and a time of day, no zone.
type Slot struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

func (s *Slot) IsZero() bool {
	return s == nil || (strings.TrimSpace(s.Date) == "" && strings.TrimSpace(s.Time) == "")
}

// At resolves the slot to an instant in loc. Seconds in the time are accepted.
func (s *Slot) At(loc *time.Location) (time.Time, error) {
	if s.IsZero() {
		return time.Time{}, ErrInvalidSlot
	}
	if loc == nil {
		loc = time.Local
	}
	day, err := time.ParseInLocation(SlotDateLayout, strings.TrimSpace(s.Date), loc)
	if err != nil {
		return time.Time{}, ErrInvalidSlot
	}
	clock := strings.TrimSpace(s.Time)
	layout := SlotTimeLayout
	if strings.Count(clock, ":") == 2 {
		layout = "15:04:05"
	}
	tod, err := time.Parse(layout, clock)
	if err != nil {
		return time.Time{}, ErrInvalidSlot
	}
	return time.Date(day.Year(), day.Month(), day.Day(), tod.Hour(), tod.Minute(), tod.Second(), 0, loc), nil
}

// SlotAt is the inverse of At, used by tests and seeders.
func SlotAt(t time.Time) *Slot {
	return &Slot{Date: t.Format(SlotDateLayout), Time: t.Format("15:04:05")}
}
