package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pr-poehali-dev/speech-parts-drawing/internal/canvas"
	"github.com/pr-poehali-dev/speech-parts-drawing/internal/catalog"
)

var (
	ErrBoardNotFound = errors.New("board not found")
	ErrTooManyBoards = errors.New("too many open boards")
	ErrInvalidSize   = errors.New("invalid board size")
	ErrNoPart        = errors.New("no part of speech selected")
)

// Options configures a Manager
type Options struct {
	Width, Height int
	MaxSide       int
	MaxBoards     int
	Logger        *zap.Logger
}

// Manager owns the open drawing boards
type Manager struct {
	mu     sync.RWMutex
	boards map[string]*Board
	opts   Options
	log    *zap.Logger
}

// NewManager creates an empty Manager
func NewManager(opts Options) *Manager {
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = canvas.DefaultWidth, canvas.DefaultHeight
	}
	if opts.MaxSide <= 0 {
		opts.MaxSide = 4096
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Manager{
		boards: make(map[string]*Board),
		opts:   opts,
		log:    opts.Logger.Named("session"),
	}
}

// Create opens a board. Zero width and height select the configured default
// size; an empty colour or zero line width keeps the surface defaults.
func (m *Manager) Create(width, height int, color string, lineWidth int) (*Board, error) {
	if width == 0 && height == 0 {
		width, height = m.opts.Width, m.opts.Height
	}
	if width <= 0 || height <= 0 || width > m.opts.MaxSide || height > m.opts.MaxSide {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}

	s := canvas.New(width, height)
	if color != "" {
		if err := s.SetColor(color); err != nil {
			s.Close()
			return nil, err
		}
	}
	if lineWidth != 0 {
		if err := s.SetWidth(lineWidth); err != nil {
			s.Close()
			return nil, err
		}
	}

	b := &Board{
		id:        uuid.New().String(),
		createdAt: time.Now().UTC(),
		surface:   s,
	}

	m.mu.Lock()
	if m.opts.MaxBoards > 0 && len(m.boards) >= m.opts.MaxBoards {
		m.mu.Unlock()
		s.Close()
		return nil, ErrTooManyBoards
	}
	m.boards[b.id] = b
	m.mu.Unlock()

	m.log.Debug("board created", zap.String("board", b.id), zap.Int("width", width), zap.Int("height", height))
	return b, nil
}

// Get returns an open board
func (m *Manager) Get(id string) (*Board, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.boards[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBoardNotFound, id)
	}
	return b, nil
}

// Delete closes a board and releases its raster
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	b, ok := m.boards[id]
	delete(m.boards, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrBoardNotFound, id)
	}

	b.mu.Lock()
	b.surface.Close()
	b.closed = true
	b.mu.Unlock()

	m.log.Debug("board deleted", zap.String("board", id))
	return nil
}

// List returns info for every open board, oldest first
func (m *Manager) List() []Info {
	m.mu.RLock()
	boards := make([]*Board, 0, len(m.boards))
	for _, b := range m.boards {
		boards = append(boards, b)
	}
	m.mu.RUnlock()

	infos := make([]Info, 0, len(boards))
	for _, b := range boards {
		infos = append(infos, b.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// Close releases every board
func (m *Manager) Close() {
	m.mu.Lock()
	boards := m.boards
	m.boards = make(map[string]*Board)
	m.mu.Unlock()

	for _, b := range boards {
		b.mu.Lock()
		b.surface.Close()
		b.closed = true
		b.mu.Unlock()
	}
}

// Board is one drawing surface plus the part of speech it is labelled with
type Board struct {
	id        string
	createdAt time.Time

	mu      sync.Mutex
	surface *canvas.Surface
	partID  string
	closed  bool
}

// Info is a read-only view of a board
type Info struct {
	ID        string       `json:"id"`
	Width     int          `json:"width"`
	Height    int          `json:"height"`
	State     canvas.State `json:"state"`
	Color     string       `json:"color"`
	LineWidth int          `json:"line_width"`
	Segments  int          `json:"segments"`
	PartID    string       `json:"part_id,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// Capture is the board content at one instant, ready to be saved
type Capture struct {
	PNG    []byte
	PartID string
	Label  string
	Width  int
	Height int
}

// ID returns the board identifier
func (b *Board) ID() string { return b.id }

// Do runs fn with exclusive access to the surface
func (b *Board) Do(fn func(*canvas.Surface) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("%w: %s", ErrBoardNotFound, b.id)
	}
	return fn(b.surface)
}

// Apply feeds one pointer event to the surface
func (b *Board) Apply(ev canvas.Event) (canvas.Outcome, error) {
	var out canvas.Outcome
	err := b.Do(func(s *canvas.Surface) error {
		var err error
		out, err = canvas.Apply(s, ev)
		return err
	})
	return out, err
}

// SelectPart labels the board with a part of speech. An empty id clears the
// selection.
func (b *Board) SelectPart(id string) error {
	if id != "" {
		part, err := catalog.Get(id)
		if err != nil {
			return fmt.Errorf("%w: %s", err, id)
		}
		id = part.ID
	}
	b.mu.Lock()
	b.partID = id
	b.mu.Unlock()
	return nil
}

// PartID returns the selected part of speech
func (b *Board) PartID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.partID
}

// Info returns a snapshot of the board state
func (b *Board) Info() Info {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Info{
		ID:        b.id,
		Width:     b.surface.Width(),
		Height:    b.surface.Height(),
		State:     b.surface.State(),
		Color:     b.surface.Color(),
		LineWidth: b.surface.LineWidth(),
		Segments:  b.surface.Segments(),
		PartID:    b.partID,
		CreatedAt: b.createdAt,
	}
}

// Capture exports the surface together with the label selected right now.
// It requires a selected part.
func (b *Board) Capture() (*Capture, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("%w: %s", ErrBoardNotFound, b.id)
	}
	if b.partID == "" {
		return nil, ErrNoPart
	}
	part, err := catalog.Get(b.partID)
	if err != nil {
		return nil, err
	}
	data, err := b.surface.Export()
	if err != nil {
		return nil, fmt.Errorf("export board: %w", err)
	}
	return &Capture{
		PNG:    data,
		PartID: part.ID,
		Label:  part.Name,
		Width:  b.surface.Width(),
		Height: b.surface.Height(),
	}, nil
}
