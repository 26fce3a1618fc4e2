// Package window gates when new table validations may start. The check is
// consulted before a run and before each table is dispatched; work already in
// flight is never interrupted.
package window

import (
	"fmt"
	"strings"
	"time"

	"github.com/crossval/crossval/internal/config"
)

// Window is a time-of-day range restricted to a set of weekdays.
// A nil Window is always open.
type Window struct {
	start    int // minutes since midnight
	end      int
	weekdays map[time.Weekday]bool
}

var dayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// FromConfig builds a Window from configuration. Returns nil for a nil
// config (no window configured). An empty weekday list allows every day.
func FromConfig(wc *config.WindowConfig) (*Window, error) {
	if wc == nil {
		return nil, nil
	}

	start, err := parseClock(wc.Start)
	if err != nil {
		return nil, fmt.Errorf("run window start: %w", err)
	}
	end, err := parseClock(wc.End)
	if err != nil {
		return nil, fmt.Errorf("run window end: %w", err)
	}

	w := &Window{start: start, end: end, weekdays: make(map[time.Weekday]bool)}
	if len(wc.Weekdays) == 0 {
		for d := time.Sunday; d <= time.Saturday; d++ {
			w.weekdays[d] = true
		}
		return w, nil
	}
	for _, name := range wc.Weekdays {
		d, ok := dayNames[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", name)
		}
		w.weekdays[d] = true
	}
	return w, nil
}

// Contains reports whether t falls inside the window.
func (w *Window) Contains(t time.Time) bool {
	if w == nil {
		return true
	}
	if !w.weekdays[t.Weekday()] {
		return false
	}

	minute := t.Hour()*60 + t.Minute()
	if w.start <= w.end {
		return minute >= w.start && minute <= w.end
	}
	// Window crosses midnight.
	return minute >= w.start || minute <= w.end
}

// Until returns how long after t the window next opens. Zero when t is
// already inside the window.
func (w *Window) Until(t time.Time) time.Duration {
	if w.Contains(t) {
		return 0
	}

	// Walk forward at most a week to the next allowed opening.
	for daysAhead := 0; daysAhead <= 7; daysAhead++ {
		day := t.AddDate(0, 0, daysAhead)
		if !w.weekdays[day.Weekday()] {
			continue
		}
		opening := time.Date(day.Year(), day.Month(), day.Day(), w.start/60, w.start%60, 0, 0, t.Location())
		if opening.After(t) {
			return opening.Sub(t)
		}
	}
	return 0
}

func parseClock(s string) (int, error) {
	parsed, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q (expected HH:MM)", s)
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}
