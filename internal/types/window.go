package types

import (
	"fmt"
	"strings"
)

// Window is a named date-range filter for usage queries
type Window int

const (
	WindowToday Window = iota
	WindowWeekly
	WindowMonthly
	WindowLifetime
)

// Lookback returns how many days before today the window starts, -1 for no lower bound
func (w Window) Lookback() int {
	switch w {
	case WindowToday:
		return 0
	case WindowWeekly:
		return 7
	case WindowMonthly:
		return 30
	default:
		return -1
	}
}

// Valid reports whether w is a known window
func (w Window) Valid() bool {
	return w >= WindowToday && w <= WindowLifetime
}

func (w Window) String() string {
	switch w {
	case WindowToday:
		return "today"
	case WindowWeekly:
		return "weekly"
	case WindowMonthly:
		return "monthly"
	case WindowLifetime:
		return "lifetime"
	default:
		return fmt.Sprintf("window(%d)", int(w))
	}
}

// ParseWindow parses the user-facing window names
func ParseWindow(s string) (Window, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "today", "daily", "day":
		return WindowToday, nil
	case "week", "weekly", "7d":
		return WindowWeekly, nil
	case "month", "monthly", "30d":
		return WindowMonthly, nil
	case "lifetime", "all":
		return WindowLifetime, nil
	default:
		return 0, fmt.Errorf("unknown window %q", s)
	}
}

// DateRange is an inclusive range of YYYY-MM-DD dates. Empty bounds are open.
type DateRange struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// Contains reports whether date falls inside the range
func (r DateRange) Contains(date string) bool {
	if r.From != "" && date < r.From {
		return false
	}
	if r.To != "" && date > r.To {
		return false
	}
	return true
}
