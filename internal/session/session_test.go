package session

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pr-poehali-dev/speech-parts-drawing/internal/canvas"
	"github.com/pr-poehali-dev/speech-parts-drawing/internal/catalog"
)

func newManager(t *testing.T, maxBoards int) *Manager {
	t.Helper()
	m := NewManager(Options{Width: 100, Height: 80, MaxSide: 1000, MaxBoards: maxBoards})
	t.Cleanup(m.Close)
	return m
}

func TestCreate(t *testing.T) {
	m := newManager(t, 0)

	b, err := m.Create(0, 0, "#F97316", 8)
	require.NoError(t, err)
	info := b.Info()
	assert.Equal(t, 100, info.Width)
	assert.Equal(t, 80, info.Height)
	assert.Equal(t, "#F97316", info.Color)
	assert.Equal(t, 8, info.LineWidth)
	assert.Equal(t, canvas.Idle, info.State)

	t.Run("invalid size", func(t *testing.T) {
		_, err := m.Create(0, 10, "", 0)
		assert.ErrorIs(t, err, ErrInvalidSize)
		_, err = m.Create(2000, 10, "", 0)
		assert.ErrorIs(t, err, ErrInvalidSize)
	})

	t.Run("invalid settings", func(t *testing.T) {
		_, err := m.Create(10, 10, "nope", 0)
		assert.ErrorIs(t, err, canvas.ErrInvalidColor)
		_, err = m.Create(10, 10, "", 31)
		assert.ErrorIs(t, err, canvas.ErrInvalidWidth)
	})

	assert.Len(t, m.List(), 1)
}

func TestMaxBoards(t *testing.T) {
	m := newManager(t, 1)
	_, err := m.Create(10, 10, "", 0)
	require.NoError(t, err)
	_, err = m.Create(10, 10, "", 0)
	assert.ErrorIs(t, err, ErrTooManyBoards)
}

func TestGetDelete(t *testing.T) {
	m := newManager(t, 0)
	b, err := m.Create(10, 10, "", 0)
	require.NoError(t, err)

	got, err := m.Get(b.ID())
	require.NoError(t, err)
	assert.Same(t, b, got)

	require.NoError(t, m.Delete(b.ID()))
	_, err = m.Get(b.ID())
	assert.ErrorIs(t, err, ErrBoardNotFound)
	assert.ErrorIs(t, m.Delete(b.ID()), ErrBoardNotFound)

	// a handle kept by a caller stops working once deleted
	err = b.Do(func(*canvas.Surface) error { return nil })
	assert.ErrorIs(t, err, ErrBoardNotFound)
}

func TestApplySerialisesEvents(t *testing.T) {
	m := newManager(t, 0)
	b, err := m.Create(100, 100, "", 0)
	require.NoError(t, err)

	_, err = b.Apply(canvas.Event{Type: canvas.EventDown, X: 1, Y: 1})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := b.Apply(canvas.Event{Type: canvas.EventMove, X: float64(i + 2), Y: float64(i + 2)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, b.Info().Segments)
}

func TestSelectPart(t *testing.T) {
	m := newManager(t, 0)
	b, err := m.Create(10, 10, "", 0)
	require.NoError(t, err)

	assert.ErrorIs(t, b.SelectPart("gerund"), catalog.ErrUnknownPart)
	require.NoError(t, b.SelectPart("verb"))
	assert.Equal(t, "verb", b.PartID())
	require.NoError(t, b.SelectPart(""))
	assert.Empty(t, b.PartID())
}

func TestCaptureUsesSelectionAtCaptureTime(t *testing.T) {
	m := newManager(t, 0)
	b, err := m.Create(20, 20, "", 0)
	require.NoError(t, err)

	_, err = b.Capture()
	assert.ErrorIs(t, err, ErrNoPart)

	require.NoError(t, b.SelectPart("noun"))
	first, err := b.Capture()
	require.NoError(t, err)
	assert.Equal(t, "Существительное", first.Label)
	assert.Equal(t, "noun", first.PartID)
	assert.NotEmpty(t, first.PNG)

	require.NoError(t, b.SelectPart("adverb"))
	assert.Equal(t, "Существительное", first.Label)

	second, err := b.Capture()
	require.NoError(t, err)
	assert.Equal(t, "Наречие", second.Label)
}

func TestDoPropagatesErrors(t *testing.T) {
	m := newManager(t, 0)
	b, err := m.Create(10, 10, "", 0)
	require.NoError(t, err)

	boom := errors.New("boom")
	assert.ErrorIs(t, b.Do(func(*canvas.Surface) error { return boom }), boom)
}
