package canvas

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventPointSubtractsOrigin(t *testing.T) {
	ev := Event{Type: EventMove, X: 130, Y: 95, OriginX: 100, OriginY: 80}
	assert.Equal(t, Point{X: 30, Y: 15}, ev.Point())
}

func TestApplyStroke(t *testing.T) {
	s := New(100, 100)

	out, err := Apply(s, Event{Type: EventMove, X: 5, Y: 5})
	require.NoError(t, err)
	assert.Equal(t, ErrInvalidOperation.Error(), out.Ignored)
	assert.False(t, out.Painted)

	out, err = Apply(s, Event{Type: EventDown, X: 10, Y: 10})
	require.NoError(t, err)
	assert.Equal(t, Stroking, out.State)
	assert.False(t, out.Painted)

	out, err = Apply(s, Event{Type: EventMove, X: 20, Y: 20})
	require.NoError(t, err)
	assert.True(t, out.Painted)
	assert.Equal(t, 1, out.Segments)
	assert.Empty(t, out.Ignored)

	out, err = Apply(s, Event{Type: EventLeave})
	require.NoError(t, err)
	assert.Equal(t, Idle, out.State)

	out, err = Apply(s, Event{Type: EventUp})
	require.NoError(t, err)
	assert.Equal(t, ErrInvalidOperation.Error(), out.Ignored)
}

func TestApplySettings(t *testing.T) {
	s := New(10, 10)

	_, err := Apply(s, Event{Type: EventColor, Color: "#4ECDC4"})
	require.NoError(t, err)
	assert.Equal(t, "#4ECDC4", s.Color())

	_, err = Apply(s, Event{Type: EventWidth, Width: 12})
	require.NoError(t, err)
	assert.Equal(t, 12, s.LineWidth())

	_, err = Apply(s, Event{Type: EventWidth, Width: 99})
	assert.ErrorIs(t, err, ErrInvalidWidth)

	_, err = Apply(s, Event{Type: EventColor, Color: "blue"})
	assert.ErrorIs(t, err, ErrInvalidColor)

	_, err = Apply(s, Event{Type: "zoom"})
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestReplayFromJSON(t *testing.T) {
	script := `[
		{"type":"color","color":"#ea384c"},
		{"type":"width","width":8},
		{"type":"down","x":110,"y":110,"origin_x":100,"origin_y":100},
		{"type":"move","x":150,"y":110,"origin_x":100,"origin_y":100},
		{"type":"move","x":150,"y":150,"origin_x":100,"origin_y":100},
		{"type":"up"},
		{"type":"move","x":190,"y":190,"origin_x":100,"origin_y":100}
	]`
	var events []Event
	require.NoError(t, json.Unmarshal([]byte(script), &events))

	s := New(100, 100)
	require.NoError(t, Replay(s, events))
	assert.Equal(t, 2, s.Segments())
	assert.Equal(t, Idle, s.State())

	img := decode(t, mustExport(t, s))
	assert.NotZero(t, alphaAt(img, 30, 10))
	assert.NotZero(t, alphaAt(img, 50, 30))
}

func TestReplayStopsAtError(t *testing.T) {
	s := New(10, 10)
	err := Replay(s, []Event{{Type: EventDown}, {Type: "wiggle"}, {Type: EventUp}})
	assert.ErrorIs(t, err, ErrUnknownEvent)
	assert.Equal(t, Stroking, s.State())
}

func TestOutcomeJSON(t *testing.T) {
	data, err := json.Marshal(Outcome{State: Stroking, Painted: true, Segments: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"stroking","painted":true,"segments":3}`, string(data))
}

func TestOutcomeJSONRoundTrip(t *testing.T) {
	for _, st := range []State{Idle, Stroking} {
		in := Outcome{State: st, Painted: true, Segments: 2, Ignored: ErrInvalidOperation.Error()}
		data, err := json.Marshal(in)
		require.NoError(t, err)

		var out Outcome
		require.NoError(t, json.Unmarshal(data, &out))
		assert.Equal(t, in, out)
	}

	var out Outcome
	assert.ErrorContains(t, json.Unmarshal([]byte(`{"state":"drawing"}`), &out), "unknown stroke state")
}
