package types

import (
	"fmt"
	"time"
)

// EventKind identifies a raw input event
type EventKind string

const (
	EventKey         EventKind = "key"
	EventMouseMove   EventKind = "mouse_move"
	EventLeftClick   EventKind = "left_click"
	EventRightClick  EventKind = "right_click"
	EventMiddleClick EventKind = "middle_click"
	EventScroll      EventKind = "scroll"
)

// EventKinds lists every supported kind
var EventKinds = []EventKind{EventKey, EventMouseMove, EventLeftClick, EventRightClick, EventMiddleClick, EventScroll}

// Valid reports whether k is a supported kind
func (k EventKind) Valid() bool {
	for _, known := range EventKinds {
		if k == known {
			return true
		}
	}
	return false
}

// InputEvent is a raw telemetry event.
// KeyCode is used by key events, Distance by mouse_move and scroll events.
type InputEvent struct {
	Timestamp time.Time `json:"ts"`
	Kind      EventKind `json:"kind"`
	KeyCode   string    `json:"key,omitempty"`
	Distance  float64   `json:"distance,omitempty"`
}

// Delta converts the event into the hourly measure increment it produces
func (e InputEvent) Delta() (Measures, error) {
	switch e.Kind {
	case EventKey:
		return Measures{KeyCount: 1}, nil
	case EventMouseMove:
		return Measures{MouseDistance: e.Distance}, nil
	case EventLeftClick:
		return Measures{LeftClicks: 1}, nil
	case EventRightClick:
		return Measures{RightClicks: 1}, nil
	case EventMiddleClick:
		return Measures{MiddleClicks: 1}, nil
	case EventScroll:
		return Measures{ScrollDistance: e.Distance}, nil
	default:
		return Measures{}, fmt.Errorf("unknown event kind %q", e.Kind)
	}
}
