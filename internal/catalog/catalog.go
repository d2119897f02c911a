// Package catalog holds the canonical reference data for the parts of speech
// shown in the gallery, the avatar composer and the drawing board.
package catalog

import (
	"errors"
	"strings"

	"golang.org/x/text/cases"

	"github.com/pr-poehali-dev/speech-parts-drawing/internal/domain"
)

// ErrUnknownPart is returned when an id or name matches no part of speech.
var ErrUnknownPart = errors.New("unknown part of speech")

var parts = []domain.SpeechPart{
	{
		ID:          "noun",
		Name:        "Существительное",
		Description: "Обозначает предмет, человека или явление",
		Color:       "#9b87f5",
		Emoji:       "📦",
		Icon:        "Box",
		Examples:    []string{"дом", "кошка", "радость", "учитель", "книга", "счастье"},
		Independent: true,
	},
	{
		ID:          "verb",
		Name:        "Глагол",
		Description: "Обозначает действие или состояние",
		Color:       "#F97316",
		Emoji:       "⚡",
		Icon:        "Zap",
		Examples:    []string{"бежать", "читать", "думать", "спать"},
		Independent: true,
	},
	{
		ID:          "adjective",
		Name:        "Прилагательное",
		Description: "Описывает признаки предмета",
		Color:       "#0EA5E9",
		Emoji:       "🎨",
		Icon:        "Palette",
		Examples:    []string{"красивый", "большой", "умный", "весёлый", "красный"},
		Independent: true,
	},
	{
		ID:          "adverb",
		Name:        "Наречие",
		Description: "Описывает признак действия",
		Color:       "#D946EF",
		Emoji:       "🚀",
		Icon:        "Gauge",
		Examples:    []string{"быстро", "хорошо", "вчера", "очень", "весело", "громко"},
		Independent: true,
	},
	{
		ID:          "pronoun",
		Name:        "Местоимение",
		Description: "Указывает на предмет, не называя его",
		Color:       "#8B5CF6",
		Emoji:       "👤",
		Icon:        "Users",
		Examples:    []string{"я", "ты", "он", "она", "этот", "мой"},
		Independent: true,
	},
	{
		ID:          "preposition",
		Name:        "Предлог",
		Description: "Связывает слова в предложении",
		Color:       "#0FA0CE",
		Emoji:       "🔗",
		Icon:        "Link",
		Examples:    []string{"в", "на", "под", "над", "из"},
	},
	{
		ID:          "conjunction",
		Name:        "Союз",
		Description: "Соединяет слова и предложения",
		Color:       "#ea384c",
		Emoji:       "➕",
		Icon:        "Plus",
		Examples:    []string{"и", "а", "но", "или", "потому что", "чтобы"},
	},
	{
		ID:          "interjection",
		Name:        "Междометие",
		Description: "Выражает эмоции и чувства",
		Color:       "#FEC6A1",
		Emoji:       "💬",
		Icon:        "MessageCircle",
		Examples:    []string{"ах!", "ой!", "ура!", "эх!", "браво!", "ух!"},
	},
}

// palette is the set of brush colours offered next to the drawing board.
var palette = []string{
	"#9b87f5", "#F97316", "#0EA5E9", "#D946EF",
	"#8B5CF6", "#0FA0CE", "#ea384c", "#FEC6A1",
	"#000000", "#FFFFFF", "#FF6B6B", "#4ECDC4",
}

var emojiOptions = []string{
	"😀", "😎", "🤓", "🥳", "🤩", "😇", "🤠", "🥰", "😊", "🙂",
	"🐶", "🐱", "🦊", "🐻", "🐼", "🦁", "🐯", "🐨", "🐰", "🦄",
	"🌟", "⭐", "✨", "💫", "🌈", "🎨", "🎭", "🎪", "🎯", "🎲",
	"📚", "📖", "✏️", "🖍️", "🖊️", "📝", "🎓", "🏆", "🎁", "🎉",
}

// All returns every part of speech in display order. The result is a copy.
func All() []domain.SpeechPart {
	out := make([]domain.SpeechPart, len(parts))
	for i, p := range parts {
		out[i] = clone(p)
	}
	return out
}

// Get returns the part of speech with the given id.
func Get(id string) (domain.SpeechPart, error) {
	for _, p := range parts {
		if p.ID == id {
			return clone(p), nil
		}
	}
	return domain.SpeechPart{}, ErrUnknownPart
}

// Lookup matches an id or a Russian name, ignoring case.
func Lookup(query string) (domain.SpeechPart, error) {
	fold := cases.Fold()
	q := fold.String(strings.TrimSpace(query))
	if q == "" {
		return domain.SpeechPart{}, ErrUnknownPart
	}
	for _, p := range parts {
		if q == p.ID || q == fold.String(p.Name) {
			return clone(p), nil
		}
	}
	return domain.SpeechPart{}, ErrUnknownPart
}

// Palette returns the brush colours offered on the drawing board.
func Palette() []string {
	return append([]string(nil), palette...)
}

// EmojiOptions returns the emoji a user can pick for an avatar.
func EmojiOptions() []string {
	return append([]string(nil), emojiOptions...)
}

func clone(p domain.SpeechPart) domain.SpeechPart {
	p.Examples = append([]string(nil), p.Examples...)
	return p
}
