// Package quota implements per-caller admission control over fixed UTC
// windows. A caller is admitted only when every configured window (by
// default one daily and one hourly) still has capacity; an admitted request
// counts against all of them at once.
package quota

import (
	"fmt"
	"time"
)

// Window is a fixed-window granularity aligned to UTC.
type Window int

const (
	// Hourly windows start at the top of each UTC clock hour.
	Hourly Window = iota
	// Daily windows start at UTC midnight.
	Daily
)

// String returns the window name used in logs, metrics and errors.
func (w Window) String() string {
	switch w {
	case Hourly:
		return "hourly"
	case Daily:
		return "daily"
	default:
		return fmt.Sprintf("window(%d)", int(w))
	}
}

// Start returns the start of the window containing t.
func (w Window) Start(t time.Time) time.Time {
	t = t.UTC()
	switch w {
	case Daily:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	default:
		return t.Truncate(time.Hour)
	}
}

// End returns the end (exclusive) of the window containing t.
func (w Window) End(t time.Time) time.Time {
	start := w.Start(t)
	if w == Daily {
		return start.AddDate(0, 0, 1)
	}
	return start.Add(time.Hour)
}

// Limit caps the number of admitted requests per caller within a window.
type Limit struct {
	Window Window
	Max    int
}

// DefaultLimits returns the daily and hourly caps in the order they are
// checked. A non-positive cap leaves that window out.
func DefaultLimits(daily, hourly int) []Limit {
	var limits []Limit
	if daily > 0 {
		limits = append(limits, Limit{Window: Daily, Max: daily})
	}
	if hourly > 0 {
		limits = append(limits, Limit{Window: Hourly, Max: hourly})
	}
	return limits
}
