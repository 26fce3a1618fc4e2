package window

import (
	"testing"
	"time"

	"github.com/crossval/crossval/internal/config"
)

// 2024-01-15 is a Monday.
func monday(hour, min int) time.Time {
	return time.Date(2024, 1, 15, hour, min, 0, 0, time.UTC)
}

func mustWindow(t *testing.T, wc *config.WindowConfig) *Window {
	t.Helper()
	w, err := FromConfig(wc)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	return w
}

func TestNilWindowAlwaysOpen(t *testing.T) {
	w := mustWindow(t, nil)
	if w != nil {
		t.Fatalf("nil config must yield nil window, got %+v", w)
	}
	if !w.Contains(monday(3, 0)) {
		t.Error("nil window must contain every instant")
	}
}

func TestContainsSameDayRange(t *testing.T) {
	w := mustWindow(t, &config.WindowConfig{Start: "09:00", End: "17:00"})

	cases := []struct {
		at   time.Time
		want bool
	}{
		{monday(9, 0), true},
		{monday(14, 0), true},
		{monday(17, 0), true},
		{monday(8, 59), false},
		{monday(20, 0), false},
	}
	for _, tc := range cases {
		if got := w.Contains(tc.at); got != tc.want {
			t.Errorf("Contains(%s) = %v, want %v", tc.at.Format("15:04"), got, tc.want)
		}
	}
}

func TestContainsMidnightCrossing(t *testing.T) {
	w := mustWindow(t, &config.WindowConfig{Start: "22:00", End: "02:00"})

	cases := []struct {
		at   time.Time
		want bool
	}{
		{monday(23, 0), true},
		{monday(1, 0), true},
		{monday(22, 0), true},
		{monday(2, 0), true},
		{monday(3, 0), false},
		{monday(12, 0), false},
	}
	for _, tc := range cases {
		if got := w.Contains(tc.at); got != tc.want {
			t.Errorf("Contains(%s) = %v, want %v", tc.at.Format("15:04"), got, tc.want)
		}
	}
}

func TestContainsWeekdayRestriction(t *testing.T) {
	w := mustWindow(t, &config.WindowConfig{
		Start:    "00:00",
		End:      "23:59",
		Weekdays: []string{"Saturday", "Sunday"},
	})

	if w.Contains(monday(12, 0)) {
		t.Error("Monday must be outside a weekend-only window")
	}
	saturday := time.Date(2024, 1, 13, 12, 0, 0, 0, time.UTC)
	if !w.Contains(saturday) {
		t.Error("Saturday noon must be inside a weekend-only window")
	}
}

func TestFromConfigRejectsBadInput(t *testing.T) {
	if _, err := FromConfig(&config.WindowConfig{Start: "25:00", End: "17:00"}); err == nil {
		t.Error("expected error for invalid start time")
	}
	if _, err := FromConfig(&config.WindowConfig{Start: "09:00", End: "17:00", Weekdays: []string{"Funday"}}); err == nil {
		t.Error("expected error for unknown weekday")
	}
}

func TestUntil(t *testing.T) {
	w := mustWindow(t, &config.WindowConfig{Start: "22:00", End: "02:00"})

	if d := w.Until(monday(23, 0)); d != 0 {
		t.Errorf("Until inside window = %s, want 0", d)
	}
	if d := w.Until(monday(20, 0)); d != 2*time.Hour {
		t.Errorf("Until(20:00) = %s, want 2h", d)
	}

	weekend := mustWindow(t, &config.WindowConfig{
		Start:    "10:00",
		End:      "12:00",
		Weekdays: []string{"Saturday"},
	})
	// Monday noon to Saturday 10:00 is 4 days and 22 hours.
	if d := weekend.Until(monday(12, 0)); d != 4*24*time.Hour+22*time.Hour {
		t.Errorf("Until next Saturday = %s", d)
	}
}
