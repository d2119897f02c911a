package domain

import "time"

// SpeechPart is one grammatical category shown as a gallery card
type SpeechPart struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Color       string   `json:"color"`
	Emoji       string   `json:"emoji"`
	Icon        string   `json:"icon"`
	Examples    []string `json:"examples"`
	Independent bool     `json:"independent"`
	AvatarURL   string   `json:"avatar_url,omitempty"`
}

// Drawing is a saved snapshot of a board, encoded as PNG
type Drawing struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	PartID    string    `json:"part_id,omitempty"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	PNG       []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Avatar is an emoji+colour composite created for a part of speech
type Avatar struct {
	ID          string    `json:"id"`
	PartID      string    `json:"part_id"`
	PartLabel   string    `json:"part_label"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Emoji       string    `json:"emoji"`
	Color       string    `json:"color"`
	CreatedAt   time.Time `json:"created_at"`
}

// PartAvatar links a part of speech to a remotely generated image
type PartAvatar struct {
	PartID    string    `json:"part_id"`
	URL       string    `json:"url"`
	UpdatedAt time.Time `json:"updated_at"`
}
