package canvas

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func isBlank(img image.Image) bool {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0 {
				return false
			}
		}
	}
	return true
}

func alphaAt(img image.Image, x, y int) uint32 {
	_, _, _, a := img.At(x, y).RGBA()
	return a
}

func TestNewSurfaceDefaults(t *testing.T) {
	s := New(DefaultWidth, DefaultHeight)
	assert.Equal(t, 600, s.Width())
	assert.Equal(t, 400, s.Height())
	assert.Equal(t, Idle, s.State())
	assert.Equal(t, DefaultColor, s.Color())
	assert.Equal(t, DefaultLineWidth, s.LineWidth())

	data, err := s.Export()
	require.NoError(t, err)
	img := decode(t, data)
	assert.Equal(t, image.Rect(0, 0, 600, 400), img.Bounds())
	assert.True(t, isBlank(img))
}

func TestStateMachine(t *testing.T) {
	s := New(100, 100)

	assert.False(t, s.Extend(Point{10, 10}), "extend while idle")
	assert.False(t, s.End(), "end while idle")
	assert.Equal(t, Idle, s.State())

	s.Begin(Point{0, 0})
	assert.Equal(t, Stroking, s.State())
	assert.True(t, s.Extend(Point{10, 10}))
	assert.Equal(t, Stroking, s.State())

	assert.True(t, s.End())
	assert.Equal(t, Idle, s.State())
	assert.False(t, s.End(), "second end is a no-op")
	assert.Equal(t, Idle, s.State())
}

func TestSegmentCountIgnoresPointsOutsideSession(t *testing.T) {
	s := New(200, 200)

	s.Extend(Point{1, 1})
	s.Extend(Point{2, 2})

	s.Begin(Point{10, 10})
	for i := 1; i <= 5; i++ {
		s.Extend(Point{10 + float64(i)*10, 10})
	}
	assert.Len(t, s.SessionPoints(), 6)
	s.End()

	s.Extend(Point{100, 100})

	s.Begin(Point{10, 50})
	s.Extend(Point{50, 50})
	s.End()

	assert.Equal(t, 6, s.Segments())
	assert.Empty(t, s.SessionPoints())
}

func TestSingleBeginPaintsNothing(t *testing.T) {
	s := New(50, 50)
	s.Begin(Point{25, 25})
	s.End()

	data, err := s.Export()
	require.NoError(t, err)
	assert.True(t, isBlank(decode(t, data)))
}

func TestColorChangeAffectsOnlyLaterSegments(t *testing.T) {
	s := New(40, 40)
	require.NoError(t, s.SetWidth(5))

	s.Begin(Point{0, 0})
	require.NoError(t, s.SetColor("#ff0000"))
	s.Extend(Point{10, 10})
	require.NoError(t, s.SetColor("#0000ff"))
	s.Extend(Point{20, 20})
	s.End()

	img := decode(t, mustExport(t, s))

	r, g, b, a := img.At(5, 5).RGBA()
	assert.Greater(t, a, uint32(0xc000))
	assert.Greater(t, r, uint32(0xc000))
	assert.Less(t, g, uint32(0x4000))
	assert.Less(t, b, uint32(0x4000))

	r, g, b, a = img.At(15, 15).RGBA()
	assert.Greater(t, a, uint32(0xc000))
	assert.Less(t, r, uint32(0x4000))
	assert.Less(t, g, uint32(0x4000))
	assert.Greater(t, b, uint32(0xc000))
}

func TestWidthChangeAffectsOnlyLaterSegments(t *testing.T) {
	s := New(100, 60)
	require.NoError(t, s.SetWidth(2))

	s.Begin(Point{10, 30})
	s.Extend(Point{40, 30})
	require.NoError(t, s.SetWidth(20))
	s.Extend(Point{90, 30})
	s.End()

	img := decode(t, mustExport(t, s))
	assert.Zero(t, alphaAt(img, 25, 38), "thin segment stays thin")
	assert.NotZero(t, alphaAt(img, 70, 38), "thick segment covers wider band")
}

func TestSettingsValidation(t *testing.T) {
	s := New(10, 10)

	assert.ErrorIs(t, s.SetWidth(0), ErrInvalidWidth)
	assert.ErrorIs(t, s.SetWidth(31), ErrInvalidWidth)
	assert.Equal(t, DefaultLineWidth, s.LineWidth())
	assert.NoError(t, s.SetWidth(1))
	assert.NoError(t, s.SetWidth(30))

	assert.ErrorIs(t, s.SetColor("red"), ErrInvalidColor)
	assert.ErrorIs(t, s.SetColor(""), ErrInvalidColor)
	assert.Equal(t, DefaultColor, s.Color())
	assert.NoError(t, s.SetColor("#9b87f5"))
	assert.NoError(t, s.SetColor("#FFF"))
	assert.Equal(t, "#FFF", s.Color())
}

func TestClearThenExportIsBlank(t *testing.T) {
	s := New(80, 80)
	s.Begin(Point{5, 5})
	s.Extend(Point{70, 70})
	s.Extend(Point{5, 70})
	s.End()
	require.False(t, isBlank(decode(t, mustExport(t, s))))

	s.Clear()
	assert.True(t, isBlank(decode(t, mustExport(t, s))))

	fresh := New(80, 80)
	assert.Equal(t, mustExport(t, fresh), mustExport(t, s))
}

func TestClearKeepsSettingsAndActiveStroke(t *testing.T) {
	s := New(100, 20)
	require.NoError(t, s.SetColor("#00ff00"))
	require.NoError(t, s.SetWidth(6))

	s.Begin(Point{10, 10})
	s.Extend(Point{50, 10})
	s.Clear()
	assert.Equal(t, Stroking, s.State())
	assert.Equal(t, "#00ff00", s.Color())
	assert.Equal(t, 6, s.LineWidth())

	s.Extend(Point{90, 10})
	img := decode(t, mustExport(t, s))
	assert.Zero(t, alphaAt(img, 30, 10), "pixels painted before clear are gone")
	assert.NotZero(t, alphaAt(img, 70, 10), "stroke continues from last point")
}

func TestExportIsIdempotent(t *testing.T) {
	s := New(60, 60)
	s.Begin(Point{1, 1})
	s.Extend(Point{59, 30})

	first := mustExport(t, s)
	second := mustExport(t, s)
	assert.Equal(t, first, second)
	assert.Equal(t, Stroking, s.State(), "export does not finish the stroke")
	assert.Equal(t, 1, s.Segments())
}

func TestExportIncludesActiveStrokeSegments(t *testing.T) {
	s := New(60, 60)
	s.Begin(Point{10, 30})
	s.Extend(Point{50, 30})

	img := decode(t, mustExport(t, s))
	assert.NotZero(t, alphaAt(img, 30, 30))
}

func TestDegenerateSegment(t *testing.T) {
	s := New(100, 100)
	s.Clear()
	s.Begin(Point{50, 50})
	assert.True(t, s.Extend(Point{50, 50}))
	assert.Equal(t, 1, s.Segments())

	data, err := s.Export()
	require.NoError(t, err)
	assert.True(t, isBlank(decode(t, data)))
}

func TestZeroAreaSurface(t *testing.T) {
	for _, dims := range [][2]int{{0, 400}, {600, 0}, {0, 0}, {-1, 10}} {
		s := New(dims[0], dims[1])
		s.Begin(Point{1, 1})
		assert.True(t, s.Extend(Point{2, 2}))
		s.Clear()
		s.End()

		_, err := s.Export()
		assert.ErrorIs(t, err, ErrInvalidSurface)
		_, err = s.DataURI()
		assert.ErrorIs(t, err, ErrInvalidSurface)
		_, err = s.Image()
		assert.ErrorIs(t, err, ErrInvalidSurface)
	}
}

func TestClearDropsStrokeError(t *testing.T) {
	s := New(20, 20)
	s.err = errors.New("stroke segment: rasterizer failed")
	_, err := s.Export()
	assert.ErrorContains(t, err, "rasterizer failed")

	s.Clear()
	data, err := s.Export()
	require.NoError(t, err)
	assert.True(t, isBlank(decode(t, data)))
}

func TestClosedSurface(t *testing.T) {
	s := New(20, 20)
	mustExport(t, s)
	s.Close()
	s.Close()

	_, err := s.Export()
	assert.ErrorIs(t, err, ErrInvalidSurface)
}

func TestDataURI(t *testing.T) {
	s := New(20, 20)
	uri, err := s.DataURI()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, "data:image/png;base64,"))
	require.NoError(t, err)
	assert.Equal(t, mustExport(t, s), raw)
}

func mustExport(t *testing.T, s *Surface) []byte {
	t.Helper()
	data, err := s.Export()
	require.NoError(t, err)
	return data
}
