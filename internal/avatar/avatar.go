package avatar

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/gogpu/gg"
	"github.com/google/uuid"

	"github.com/pr-poehali-dev/speech-parts-drawing/internal/catalog"
	"github.com/pr-poehali-dev/speech-parts-drawing/internal/domain"
)

// ErrIncompleteDraft is returned when a draft lacks a required field.
var ErrIncompleteDraft = errors.New("incomplete avatar draft")

var namePrefixes = []string{"Супер", "Мега", "Крутой", "Весёлый", "Умный", "Быстрый", "Яркий"}

// Draft holds the composer form fields
type Draft struct {
	PartID      string `json:"part_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Emoji       string `json:"emoji"`
}

// Compose validates a draft and turns it into an avatar. Colour and label are
// copied from the catalog so later catalog edits do not touch saved avatars.
func Compose(d Draft, now time.Time) (*domain.Avatar, error) {
	var missing []string
	if strings.TrimSpace(d.PartID) == "" {
		missing = append(missing, "part_id")
	}
	if strings.TrimSpace(d.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(d.Emoji) == "" {
		missing = append(missing, "emoji")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrIncompleteDraft, strings.Join(missing, ", "))
	}

	part, err := catalog.Get(d.PartID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, d.PartID)
	}

	return &domain.Avatar{
		ID:          uuid.New().String(),
		PartID:      part.ID,
		PartLabel:   part.Name,
		Name:        strings.TrimSpace(d.Name),
		Description: strings.TrimSpace(d.Description),
		Emoji:       d.Emoji,
		Color:       part.Color,
		CreatedAt:   now,
	}, nil
}

// Randomizer fills drafts from a caller-supplied random source
type Randomizer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomizer creates a Randomizer. A nil source is seeded from the runtime.
func NewRandomizer(rng *rand.Rand) *Randomizer {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Randomizer{rng: rng}
}

// Random picks an emoji and a name for the given part of speech.
func (r *Randomizer) Random(partID string) (Draft, error) {
	part, err := catalog.Get(partID)
	if err != nil {
		return Draft{}, fmt.Errorf("%w: %s", err, partID)
	}
	emoji := catalog.EmojiOptions()

	r.mu.Lock()
	prefix := namePrefixes[r.rng.IntN(len(namePrefixes))]
	pick := emoji[r.rng.IntN(len(emoji))]
	r.mu.Unlock()

	return Draft{
		PartID:      part.ID,
		Name:        prefix + " " + part.Name,
		Description: fmt.Sprintf("Уникальная аватарка для части речи %q", part.Name),
		Emoji:       pick,
	}, nil
}

// Badge renders the avatar's background swatch: a rounded square PNG in the
// avatar colour. The emoji is not drawn; clients overlay Avatar.Emoji on top,
// since a colour emoji font is not available to the rasterizer.
func Badge(a *domain.Avatar, size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("badge size %d", size)
	}
	dc := gg.NewContext(size, size)
	defer dc.Close()

	s := float64(size)
	dc.SetHexColor(a.Color)
	dc.DrawRoundedRectangle(0, 0, s, s, s/4)
	if err := dc.Fill(); err != nil {
		return nil, fmt.Errorf("fill badge: %w", err)
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode badge: %w", err)
	}
	return buf.Bytes(), nil
}
