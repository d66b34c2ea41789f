package archive

import (
	"context"
	"sync"

	"github.com/mkells/vigil/internal/event"
	"github.com/mkells/vigil/internal/session"
)

// MemorySink is an in-memory Sink for demo mode and tests.
type MemorySink struct {
	mu       sync.RWMutex
	events   map[string][]*event.Event // sessionID → events
	sessions map[string]session.Summary
}

// NewMemorySink creates an empty in-memory archive.
func NewMemorySink() *MemorySink {
	return &MemorySink{
		events:   make(map[string][]*event.Event),
		sessions: make(map[string]session.Summary),
	}
}

func (m *MemorySink) StoreEvent(ctx context.Context, ev *event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[ev.SessionID] = append(m.events[ev.SessionID], ev)
	return nil
}

func (m *MemorySink) UpdateSession(ctx context.Context, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.Summarize()
	return nil
}

// RecentEvents returns up to limit most recent archived events for a
// session, oldest first.
func (m *MemorySink) RecentEvents(ctx context.Context, sessionID string, limit int) ([]*event.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.events[sessionID]
	start := len(all) - limit
	if limit <= 0 || start < 0 {
		start = 0
	}
	out := make([]*event.Event, len(all)-start)
	copy(out, all[start:])
	return out, nil
}

// EventCount returns the number of archived events for a session.
func (m *MemorySink) EventCount(sessionID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events[sessionID])
}
