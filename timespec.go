package main

import (
	"fmt"
	"strings"
	"time"
)

const gridDateLayout = "2006-01-02"

// ResolveDateSpec turns a symbolic date spec ("today"/"tomorrow") or an
// explicit YYYY-MM-DD date into the calendar date string shown on the
// reservation grid. Resolution happens at call time, so "tomorrow" keeps
// meaning tomorrow across midnight.
func ResolveDateSpec(spec string, now time.Time) (string, error) {
	spec = strings.ToLower(strings.TrimSpace(spec))

	switch spec {
	case "today":
		return now.Format(gridDateLayout), nil
	case "tomorrow":
		return now.AddDate(0, 0, 1).Format(gridDateLayout), nil
	}

	if t, err := time.ParseInLocation(gridDateLayout, spec, now.Location()); err == nil {
		return t.Format(gridDateLayout), nil
	}

	return "", fmt.Errorf("%w: date must be today, tomorrow or YYYY-MM-DD, got %q", ErrConfig, spec)
}

// NextRelease returns the next occurrence of the "HH:MM" wall-clock
// moment after now. The portal releases next-day inventory once per day,
// so a release time in the past rolls over to tomorrow.
func NextRelease(hhmm string, now time.Time) (time.Time, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(hhmm))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: release_time must be HH:MM (e.g. 21:00), got %q", ErrConfig, hhmm)
	}

	release := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
	if !release.After(now) {
		release = release.AddDate(0, 0, 1)
	}
	return release, nil
}
