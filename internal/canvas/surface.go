// Package canvas turns pointer samples into round-capped strokes on a fixed
// size raster and exports the raster as PNG.
//
// A Surface is not safe for concurrent use. It is meant to be driven by one
// event stream; callers that share a Surface must serialise access.
package canvas

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/gogpu/gg"
	"github.com/lucasb-eyer/go-colorful"
)

const (
	DefaultWidth  = 600
	DefaultHeight = 400

	MinLineWidth     = 1
	MaxLineWidth     = 30
	DefaultLineWidth = 5
	DefaultColor     = "#000000"
)

var (
	// ErrInvalidOperation marks events that need an active stroke but
	// arrived while the surface was idle. Such events are ignored.
	ErrInvalidOperation = errors.New("invalid operation: no active stroke")

	// ErrInvalidSurface is returned when exporting a surface of zero area.
	ErrInvalidSurface = errors.New("invalid surface: zero area")

	ErrInvalidColor = errors.New("invalid color")
	ErrInvalidWidth = errors.New("invalid line width")
)

// State is the stroke capture state.
type State int

const (
	Idle State = iota
	Stroking
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Stroking:
		return "stroking"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name written by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = Idle
	case "stroking":
		*s = Stroking
	default:
		return fmt.Errorf("unknown stroke state %q", b)
	}
	return nil
}

// Point is a position in surface-local coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Surface is a raster drawing area with a single stroke cursor.
type Surface struct {
	width, height int
	dc            *gg.Context

	state   State
	session []Point

	colorHex  string
	color     color.Color
	lineWidth int

	segments int
	err      error
}

// New creates a transparent surface. A non-positive dimension yields a
// zero-area surface which accepts events but cannot be exported.
func New(width, height int) *Surface {
	s := &Surface{
		width:     width,
		height:    height,
		colorHex:  DefaultColor,
		color:     color.Black,
		lineWidth: DefaultLineWidth,
	}
	if width > 0 && height > 0 {
		s.dc = gg.NewContext(width, height)
		s.dc.SetLineCap(gg.LineCapRound)
		s.dc.SetLineJoin(gg.LineJoinRound)
	}
	return s
}

// Width returns the surface width in pixels.
func (s *Surface) Width() int { return s.width }

// Height returns the surface height in pixels.
func (s *Surface) Height() int { return s.height }

// State returns the current stroke state.
func (s *Surface) State() State { return s.state }

// Color returns the colour applied to the next segment.
func (s *Surface) Color() string { return s.colorHex }

// LineWidth returns the width applied to the next segment.
func (s *Surface) LineWidth() int { return s.lineWidth }

// Segments returns how many segments were painted since creation.
func (s *Surface) Segments() int { return s.segments }

// SessionPoints returns the points recorded for the active stroke.
func (s *Surface) SessionPoints() []Point {
	return append([]Point(nil), s.session...)
}

// Err returns the first rasterizer failure, if any.
func (s *Surface) Err() error { return s.err }

// Begin starts a stroke at p. Nothing is painted until the next Extend.
// Beginning while a stroke is active restarts the stroke at p.
func (s *Surface) Begin(p Point) {
	s.state = Stroking
	s.session = append(s.session[:0], p)
}

// Extend appends p to the active stroke and paints the segment from the
// previous point. It reports false, painting nothing, when no stroke is
// active. A zero-length segment is recorded but leaves no mark.
func (s *Surface) Extend(p Point) bool {
	if s.state != Stroking {
		return false
	}
	prev := s.session[len(s.session)-1]
	s.session = append(s.session, p)
	s.segments++

	if s.dc == nil || prev == p {
		return true
	}
	s.dc.SetColor(s.color)
	s.dc.SetLineWidth(float64(s.lineWidth))
	s.dc.MoveTo(prev.X, prev.Y)
	s.dc.LineTo(p.X, p.Y)
	if err := s.dc.Stroke(); err != nil && s.err == nil {
		s.err = fmt.Errorf("stroke segment: %w", err)
	}
	return true
}

// End finishes the active stroke. It reports false when already idle.
func (s *Surface) End() bool {
	if s.state != Stroking {
		return false
	}
	s.state = Idle
	s.session = s.session[:0]
	return true
}

// SetColor sets the colour of subsequent segments. Accepts #rgb and #rrggbb.
func (s *Surface) SetColor(hex string) error {
	c, err := colorful.Hex(hex)
	if err != nil {
		return fmt.Errorf("%w %q", ErrInvalidColor, hex)
	}
	s.colorHex = hex
	s.color = c
	return nil
}

// SetWidth sets the width of subsequent segments.
func (s *Surface) SetWidth(w int) error {
	if w < MinLineWidth || w > MaxLineWidth {
		return fmt.Errorf("%w %d (allowed %d-%d)", ErrInvalidWidth, w, MinLineWidth, MaxLineWidth)
	}
	s.lineWidth = w
	return nil
}

// Clear blanks the raster and drops a pending stroke error. Stroke state,
// colour and width are kept, so an active stroke keeps painting from its
// last point.
func (s *Surface) Clear() {
	if s.dc != nil {
		s.dc.Clear()
	}
	s.err = nil
}

// Close releases the raster. The surface must not be used afterwards.
func (s *Surface) Close() {
	if s.dc != nil {
		s.dc.Close()
		s.dc = nil
	}
}

// Image returns a copy of the current raster.
func (s *Surface) Image() (image.Image, error) {
	if s.dc == nil {
		return nil, ErrInvalidSurface
	}
	if err := s.dc.FlushGPU(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}
	return s.dc.Image(), nil
}

// Export encodes the painted pixels as PNG. It never finalises the active
// stroke and does not change the surface.
func (s *Surface) Export() ([]byte, error) {
	if s.dc == nil {
		return nil, ErrInvalidSurface
	}
	if s.err != nil {
		return nil, s.err
	}
	if err := s.dc.FlushGPU(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}
	var buf bytes.Buffer
	if err := s.dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// DataURI returns Export wrapped as a data:image/png;base64 URI.
func (s *Surface) DataURI() (string, error) {
	data, err := s.Export()
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}
