package canvas

import (
	"errors"
	"fmt"
)

// ErrUnknownEvent is returned for an event type Apply does not handle.
var ErrUnknownEvent = errors.New("unknown event type")

// EventType names a pointer or tool event.
type EventType string

const (
	EventDown  EventType = "down"
	EventMove  EventType = "move"
	EventUp    EventType = "up"
	EventLeave EventType = "leave"
	EventColor EventType = "color"
	EventWidth EventType = "width"
	EventClear EventType = "clear"
)

// Event is one entry of a pointer stream as sent by a client. X and Y are
// client coordinates; OriginX and OriginY are the client position of the
// surface's top-left corner and are subtracted before drawing.
type Event struct {
	Type    EventType `json:"type"`
	X       float64   `json:"x,omitempty"`
	Y       float64   `json:"y,omitempty"`
	OriginX float64   `json:"origin_x,omitempty"`
	OriginY float64   `json:"origin_y,omitempty"`
	Color   string    `json:"color,omitempty"`
	Width   int       `json:"width,omitempty"`
}

// Point returns the event position in surface-local coordinates.
func (e Event) Point() Point {
	return Point{X: e.X - e.OriginX, Y: e.Y - e.OriginY}
}

// Outcome reports what an event did to the surface.
type Outcome struct {
	State    State  `json:"state"`
	Painted  bool   `json:"painted"`
	Segments int    `json:"segments"`
	Ignored  string `json:"ignored,omitempty"`
}

// Apply feeds one event to the surface. Move, up and leave events that
// arrive without an active stroke are ignored and reported in Outcome.Ignored.
func Apply(s *Surface, ev Event) (Outcome, error) {
	var ignored error

	switch ev.Type {
	case EventDown:
		s.Begin(ev.Point())
	case EventMove:
		before := s.segments
		if !s.Extend(ev.Point()) {
			ignored = ErrInvalidOperation
		}
		out := outcome(s, ignored)
		out.Painted = s.segments > before
		return out, nil
	case EventUp, EventLeave:
		if !s.End() {
			ignored = ErrInvalidOperation
		}
	case EventColor:
		if err := s.SetColor(ev.Color); err != nil {
			return outcome(s, nil), err
		}
	case EventWidth:
		if err := s.SetWidth(ev.Width); err != nil {
			return outcome(s, nil), err
		}
	case EventClear:
		s.Clear()
	default:
		return outcome(s, nil), fmt.Errorf("%w %q", ErrUnknownEvent, ev.Type)
	}
	return outcome(s, ignored), nil
}

// Replay applies events in order and stops at the first error.
func Replay(s *Surface, events []Event) error {
	for i, ev := range events {
		if _, err := Apply(s, ev); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
	}
	return nil
}

func outcome(s *Surface, ignored error) Outcome {
	out := Outcome{State: s.state, Segments: s.segments}
	if ignored != nil {
		out.Ignored = ignored.Error()
	}
	return out
}
