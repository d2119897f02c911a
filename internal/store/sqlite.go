package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pr-poehali-dev/speech-parts-drawing/internal/domain"
)

// MemoryDSN keeps the database for the lifetime of the process only.
const MemoryDSN = ":memory:"

//go:embed schema.sql
var schema string

// ErrNotFound is returned when a drawing or avatar does not exist
var ErrNotFound = errors.New("not found")

// Store handles database operations
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens the database at dsn and initialises the schema. An empty dsn
// means MemoryDSN.
func New(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = MemoryDSN
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// every new connection to :memory: is a fresh empty database
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveDrawing stores a PNG snapshot and returns the saved drawing
func (s *Store) SaveDrawing(label, partID string, png []byte, width, height int) (*domain.Drawing, error) {
	if len(png) == 0 {
		return nil, fmt.Errorf("save drawing: empty image")
	}
	d := &domain.Drawing{
		ID:        uuid.New().String(),
		Label:     label,
		PartID:    partID,
		Width:     width,
		Height:    height,
		PNG:       append([]byte(nil), png...),
		CreatedAt: s.now().UTC(),
	}

	_, err := s.db.Exec(
		"INSERT INTO drawings (id, label, part_id, width, height, png, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		d.ID, d.Label, d.PartID, d.Width, d.Height, d.PNG, d.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert drawing: %w", err)
	}
	return d, nil
}

// GetDrawing retrieves a drawing with its image
func (s *Store) GetDrawing(id string) (*domain.Drawing, error) {
	var d domain.Drawing
	err := s.db.QueryRow(
		"SELECT id, label, part_id, width, height, png, created_at FROM drawings WHERE id = ?",
		id,
	).Scan(&d.ID, &d.Label, &d.PartID, &d.Width, &d.Height, &d.PNG, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("drawing %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get drawing: %w", err)
	}
	return &d, nil
}

// ListDrawings returns drawings newest first. Images are loaded only when
// withImages is set.
func (s *Store) ListDrawings(withImages bool) ([]domain.Drawing, error) {
	cols := "id, label, part_id, width, height, created_at"
	if withImages {
		cols = "id, label, part_id, width, height, created_at, png"
	}
	rows, err := s.db.Query("SELECT " + cols + " FROM drawings ORDER BY seq DESC")
	if err != nil {
		return nil, fmt.Errorf("list drawings: %w", err)
	}
	defer rows.Close()

	drawings := []domain.Drawing{}
	for rows.Next() {
		var d domain.Drawing
		dest := []any{&d.ID, &d.Label, &d.PartID, &d.Width, &d.Height, &d.CreatedAt}
		if withImages {
			dest = append(dest, &d.PNG)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan drawing: %w", err)
		}
		drawings = append(drawings, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list drawings: %w", err)
	}
	return drawings, nil
}

// DeleteDrawing removes a drawing from the gallery
func (s *Store) DeleteDrawing(id string) error {
	return s.deleteByID("drawings", id)
}

// SaveAvatar stores a composed avatar
func (s *Store) SaveAvatar(a *domain.Avatar) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO avatars (id, part_id, part_label, name, description, emoji, color, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.PartID, a.PartLabel, a.Name, a.Description, a.Emoji, a.Color, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert avatar: %w", err)
	}
	return nil
}

// GetAvatar retrieves one avatar by ID
func (s *Store) GetAvatar(id string) (*domain.Avatar, error) {
	var a domain.Avatar
	err := s.db.QueryRow(
		`SELECT id, part_id, part_label, name, description, emoji, color, created_at
		 FROM avatars WHERE id = ?`,
		id,
	).Scan(&a.ID, &a.PartID, &a.PartLabel, &a.Name, &a.Description, &a.Emoji, &a.Color, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("avatar %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get avatar: %w", err)
	}
	return &a, nil
}

// ListAvatars returns avatars newest first, optionally filtered by part
func (s *Store) ListAvatars(partID string) ([]domain.Avatar, error) {
	query := `SELECT id, part_id, part_label, name, description, emoji, color, created_at FROM avatars`
	var args []any
	if partID != "" {
		query += " WHERE part_id = ?"
		args = append(args, partID)
	}
	query += " ORDER BY seq DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list avatars: %w", err)
	}
	defer rows.Close()

	avatars := []domain.Avatar{}
	for rows.Next() {
		var a domain.Avatar
		if err := rows.Scan(&a.ID, &a.PartID, &a.PartLabel, &a.Name, &a.Description, &a.Emoji, &a.Color, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan avatar: %w", err)
		}
		avatars = append(avatars, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list avatars: %w", err)
	}
	return avatars, nil
}

// DeleteAvatar removes an avatar
func (s *Store) DeleteAvatar(id string) error {
	return s.deleteByID("avatars", id)
}

// SetPartAvatar records the generated image for a part, replacing any
// previous one
func (s *Store) SetPartAvatar(partID, url string) (*domain.PartAvatar, error) {
	pa := &domain.PartAvatar{PartID: partID, URL: url, UpdatedAt: s.now().UTC()}
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO part_avatars (part_id, url, updated_at) VALUES (?, ?, ?)",
		pa.PartID, pa.URL, pa.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("set part avatar: %w", err)
	}
	return pa, nil
}

// PartAvatars returns generated image URLs keyed by part ID
func (s *Store) PartAvatars() (map[string]domain.PartAvatar, error) {
	rows, err := s.db.Query("SELECT part_id, url, updated_at FROM part_avatars")
	if err != nil {
		return nil, fmt.Errorf("list part avatars: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.PartAvatar)
	for rows.Next() {
		var pa domain.PartAvatar
		if err := rows.Scan(&pa.PartID, &pa.URL, &pa.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan part avatar: %w", err)
		}
		out[pa.PartID] = pa
	}
	return out, rows.Err()
}

func (s *Store) deleteByID(table, id string) error {
	res, err := s.db.Exec("DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	return nil
}
