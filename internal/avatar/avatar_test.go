package avatar

import (
	"bytes"
	"image/png"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pr-poehali-dev/speech-parts-drawing/internal/catalog"
	"github.com/pr-poehali-dev/speech-parts-drawing/internal/domain"
)

func TestComposeCopiesPartData(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a, err := Compose(Draft{PartID: "verb", Name: " Весёлый Глагол ", Emoji: "⚡"}, now)
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "verb", a.PartID)
	assert.Equal(t, "Глагол", a.PartLabel)
	assert.Equal(t, "Весёлый Глагол", a.Name)
	assert.Equal(t, "#F97316", a.Color)
	assert.Equal(t, now, a.CreatedAt)
}

func TestComposeValidation(t *testing.T) {
	_, err := Compose(Draft{}, time.Now())
	require.ErrorIs(t, err, ErrIncompleteDraft)
	assert.Contains(t, err.Error(), "part_id, name, emoji")

	_, err = Compose(Draft{PartID: "noun", Name: "Кот"}, time.Now())
	require.ErrorIs(t, err, ErrIncompleteDraft)
	assert.Contains(t, err.Error(), "emoji")

	_, err = Compose(Draft{PartID: "particle", Name: "Же", Emoji: "🙂"}, time.Now())
	assert.ErrorIs(t, err, catalog.ErrUnknownPart)
}

func TestRandomIsDeterministicForSeed(t *testing.T) {
	a := NewRandomizer(rand.New(rand.NewPCG(7, 11)))
	b := NewRandomizer(rand.New(rand.NewPCG(7, 11)))

	for i := 0; i < 10; i++ {
		da, err := a.Random("adjective")
		require.NoError(t, err)
		db, err := b.Random("adjective")
		require.NoError(t, err)
		assert.Equal(t, da, db)
	}
}

func TestRandomDraftShape(t *testing.T) {
	r := NewRandomizer(rand.New(rand.NewPCG(1, 2)))
	d, err := r.Random("noun")
	require.NoError(t, err)

	assert.Equal(t, "noun", d.PartID)
	assert.True(t, strings.HasSuffix(d.Name, " Существительное"), d.Name)
	assert.Contains(t, namePrefixes, strings.TrimSuffix(d.Name, " Существительное"))
	assert.Contains(t, catalog.EmojiOptions(), d.Emoji)
	assert.Contains(t, d.Description, "Существительное")

	a, err := Compose(d, time.Now())
	require.NoError(t, err)
	assert.Equal(t, d.Emoji, a.Emoji)

	_, err = r.Random("")
	assert.ErrorIs(t, err, catalog.ErrUnknownPart)
}

func TestBadge(t *testing.T) {
	data, err := Badge(&domain.Avatar{Color: "#0EA5E9"}, 64)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())

	r, g, b, a := img.At(32, 32).RGBA()
	assert.Greater(t, a, uint32(0xf000))
	assert.InDelta(t, 0x0e, r>>8, 2)
	assert.InDelta(t, 0xa5, g>>8, 2)
	assert.InDelta(t, 0xe9, b>>8, 2)

	_, err = Badge(&domain.Avatar{Color: "#000"}, 0)
	assert.Error(t, err)
}

func TestBadgeIsPlainSwatch(t *testing.T) {
	data, err := Badge(&domain.Avatar{Color: "#F97316", Emoji: "🦊"}, 48)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	centre := img.At(24, 24)
	for _, p := range [][2]int{{16, 16}, {32, 16}, {16, 32}, {32, 32}, {24, 10}} {
		assert.Equal(t, centre, img.At(p[0], p[1]), "pixel %v", p)
	}
}
