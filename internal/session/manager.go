package session

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// ErrNotFound is returned for unknown or destroyed session IDs.
var ErrNotFound = errors.New("session not found")

// Info describes a live session.
type Info struct {
	ID      uuid.UUID `json:"id"`
	Created time.Time `json:"created"`
	Records int       `json:"records"`
}

type entry struct {
	agg     *Aggregator
	created time.Time
}

// Manager owns the live sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*entry
	clock    clock.Clock
}

// NewManager creates a manager. A nil clk uses the wall clock.
func NewManager(clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.New()
	}
	return &Manager{sessions: make(map[uuid.UUID]*entry), clock: clk}
}

// Create starts a new empty session.
func (m *Manager) Create() (uuid.UUID, *Aggregator) {
	id := uuid.New()
	e := &entry{agg: NewAggregator(), created: m.clock.Now()}

	m.mu.Lock()
	m.sessions[id] = e
	m.mu.Unlock()

	return id, e.agg
}

// Get returns the session's aggregator.
func (m *Manager) Get(id uuid.UUID) (*Aggregator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.agg, nil
}

// Lookup parses id and returns the session's aggregator.
func (m *Manager) Lookup(id string) (uuid.UUID, *Aggregator, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	agg, err := m.Get(parsed)
	return parsed, agg, err
}

// Destroy removes a session. In-flight requests on it can no longer commit.
func (m *Manager) Destroy(id uuid.UUID) error {
	m.mu.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.agg.Clear()
	return nil
}

// List returns the live sessions, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	infos := lo.MapToSlice(m.sessions, func(id uuid.UUID, e *entry) Info {
		return Info{ID: id, Created: e.created, Records: e.agg.Len()}
	})
	m.mu.RUnlock()

	slices.SortFunc(infos, func(a, b Info) int {
		if c := a.Created.Compare(b.Created); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
	return infos
}
