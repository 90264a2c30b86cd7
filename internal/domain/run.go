package domain

import (
	"fmt"
	"strconv"
	"time"
)

// Run identifies one scheduled forecast start time, aligned to the product's
// run cadence. Immutable once parsed.
type Run struct {
	time.Time
}

// ParseRun accepts either a full YYYYMMDDHH timestamp or a bare run hour
// (resolved against today in UTC). An empty value picks the most recent run
// that should be complete, assuming results trail the run start by two
// hours.
func ParseRun(value string, d Domain, now time.Time) (Run, error) {
	now = now.UTC()
	if value == "" {
		return latestAvailableRun(d, now), nil
	}
	if len(value) == 10 {
		t, err := time.Parse("2006010215", value)
		if err != nil {
			return Run{}, fmt.Errorf("domain: parse run %q: %w", value, err)
		}
		return Run{t}, nil
	}
	hour, err := strconv.Atoi(value)
	if err != nil || hour < 0 || hour > 23 {
		return Run{}, fmt.Errorf("domain: run must be YYYYMMDDHH or an hour 0-23, got %q", value)
	}
	t := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if t.After(now) {
		t = t.AddDate(0, 0, -1)
	}
	return Run{t}, nil
}

func latestAvailableRun(d Domain, now time.Time) Run {
	stride := 24 / d.RunsPerDay()
	// Allow the publication lag before assuming a run exists.
	t := now.Add(-2 * time.Hour)
	hour := t.Hour() / stride * stride
	return Run{time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, time.UTC)}
}

// Hour is the run hour of day (0-23).
func (r Run) Hour() int { return r.Time.UTC().Hour() }

// Timestamp formats the run identity as YYYYMMDDHH.
func (r Run) Timestamp() string { return r.Time.UTC().Format("2006010215") }

// ValidTime returns the wall-clock time a forecast step is valid for.
func (r Run) ValidTime(forecastSeconds int) time.Time {
	return r.Time.Add(time.Duration(forecastSeconds) * time.Second)
}
