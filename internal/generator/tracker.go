package generator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrRequestPending is returned when an entity already has a request in flight.
var ErrRequestPending = errors.New("generation already in progress")

// State of the last generation request for an entity.
type State int

const (
	Idle State = iota
	Pending
	Settled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Settled:
		return "settled"
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
	case "pending":
		*s = Pending
	case "settled":
		*s = Settled
	default:
		return fmt.Errorf("unknown request state %q", b)
	}
	return nil
}

// Status is a snapshot of an entity's request state. For Settled, OK tells
// success from failure.
type Status struct {
	Entity    string    `json:"entity"`
	State     State     `json:"state"`
	OK        bool      `json:"ok"`
	ImageURL  string    `json:"image_url,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

type entry struct {
	status Status
	cancel context.CancelFunc
}

// Tracker allows at most one outstanding request per entity
type Tracker struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
	wg      sync.WaitGroup
}

// NewTracker creates an empty Tracker
func NewTracker() *Tracker {
	return &Tracker{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Run executes fn as the request for entity. It fails with ErrRequestPending
// while a previous request for the same entity has not settled. The context
// passed to fn is cancelled by Cancel.
func (t *Tracker) Run(ctx context.Context, entity string, fn func(context.Context) (string, error)) (string, error) {
	runCtx, e, err := t.begin(ctx, entity)
	if err != nil {
		return "", err
	}
	return t.call(runCtx, entity, e, fn)
}

// Start is Run in the background. The pending check happens before Start
// returns; Wait blocks until every started request has settled.
func (t *Tracker) Start(ctx context.Context, entity string, fn func(context.Context) (string, error)) error {
	runCtx, e, err := t.begin(ctx, entity)
	if err != nil {
		return err
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.call(runCtx, entity, e, fn)
	}()
	return nil
}

// Wait blocks until all requests launched by Start have settled.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

func (t *Tracker) begin(ctx context.Context, entity string) (context.Context, *entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[entity]; ok && e.status.State == Pending {
		return nil, nil, ErrRequestPending
	}
	runCtx, cancel := context.WithCancel(ctx)
	e := &entry{
		status: Status{Entity: entity, State: Pending, UpdatedAt: t.now()},
		cancel: cancel,
	}
	t.entries[entity] = e
	return runCtx, e, nil
}

// call runs fn and always settles the entry. A panic in fn settles it as a
// failure.
func (t *Tracker) call(ctx context.Context, entity string, e *entry, fn func(context.Context) (string, error)) (url string, err error) {
	defer func() {
		if r := recover(); r != nil {
			url, err = "", fmt.Errorf("generation panicked: %v", r)
		}
		t.settle(entity, e, url, err)
	}()
	return fn(ctx)
}

func (t *Tracker) settle(entity string, e *entry, url string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e.cancel()
	e.cancel = nil
	e.status = Status{Entity: entity, State: Settled, OK: err == nil, ImageURL: url, UpdatedAt: t.now()}
	if err != nil {
		e.status.ImageURL = ""
		e.status.Error = err.Error()
	}
}

// Cancel aborts the pending request for entity. It reports whether one was
// pending.
func (t *Tracker) Cancel(entity string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[entity]
	if !ok || e.status.State != Pending || e.cancel == nil {
		return false
	}
	e.cancel()
	return true
}

// Status returns the latest state for entity.
func (t *Tracker) Status(entity string) Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[entity]; ok {
		return e.status
	}
	return Status{Entity: entity, State: Idle}
}
