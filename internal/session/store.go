package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mkells/vigil/internal/event"
)

// ResurrectPolicy decides what happens when an ended session id comes back.
type ResurrectPolicy string

const (
	// PolicyReject refuses events and connections for an ended session id.
	PolicyReject ResurrectPolicy = "reject"
	// PolicyReuse clears the end marker and resumes the existing timeline.
	PolicyReuse ResurrectPolicy = "reuse"
)

// ParseResurrectPolicy validates a configured policy string.
func ParseResurrectPolicy(s string) (ResurrectPolicy, error) {
	switch ResurrectPolicy(s) {
	case PolicyReject, PolicyReuse:
		return ResurrectPolicy(s), nil
	case "":
		return PolicyReject, nil
	default:
		return "", fmt.Errorf("invalid resurrect policy %q (want reject or reuse)", s)
	}
}

// Store holds all live session state. Mutations on one session id are
// serialized by a per-entry mutex; the outer map lock is only held long
// enough to find or insert the entry, so different ids proceed in parallel.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	policy   ResurrectPolicy
	now      func() time.Time
}

type entry struct {
	mu sync.Mutex
	s  *Session
}

// NewStore creates an empty session store with the given resurrect policy.
func NewStore(policy ResurrectPolicy) *Store {
	return &Store{
		sessions: make(map[string]*entry),
		policy:   policy,
		now:      time.Now,
	}
}

// WithClock overrides the store clock (for tests).
func (st *Store) WithClock(now func() time.Time) *Store {
	st.now = now
	return st
}

func (st *Store) get(id string) (*entry, bool) {
	st.mu.RLock()
	e, ok := st.sessions[id]
	st.mu.RUnlock()
	return e, ok
}

func newSession(id, displayName string, now time.Time) *Session {
	if displayName == "" {
		displayName = "anonymous"
	}
	return &Session{
		ID:          id,
		DisplayName: displayName,
		StartTime:   now,
		RiskScore:   0,
		Status:      StatusActive,
	}
}

// Create registers a new session. Returns ErrSessionExists if the id is
// already live, or ErrSessionEnded for an ended id under the reject policy.
func (st *Store) Create(id, displayName string) (*Session, error) {
	st.mu.Lock()
	e, ok := st.sessions[id]
	if !ok {
		e = &entry{s: newSession(id, displayName, st.now())}
		st.sessions[id] = e
		st.mu.Unlock()
		return e.s.snapshot(), nil
	}
	st.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.s.Ended() {
		return nil, ErrSessionExists
	}
	if st.policy == PolicyReject {
		return nil, ErrSessionEnded
	}
	e.s.EndTime = nil
	return e.s.snapshot(), nil
}

// GetOrCreate resolves a session, lazily creating it for a first-seen id.
// This is the live-connection path; administrative reads use Get instead.
// The created flag reports whether a new session was constructed.
func (st *Store) GetOrCreate(id, displayName string) (*Session, bool, error) {
	if e, ok := st.get(id); ok {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.s.Ended() {
			if st.policy == PolicyReject {
				return nil, false, ErrSessionEnded
			}
			e.s.EndTime = nil
		}
		return e.s.snapshot(), false, nil
	}

	st.mu.Lock()
	e, ok := st.sessions[id]
	if !ok {
		e = &entry{s: newSession(id, displayName, st.now())}
		st.sessions[id] = e
		st.mu.Unlock()
		return e.s.snapshot(), true, nil
	}
	st.mu.Unlock()

	// Lost the race to another creator; treat as existing.
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.s.Ended() && st.policy == PolicyReject {
		return nil, false, ErrSessionEnded
	}
	e.s.EndTime = nil
	return e.s.snapshot(), false, nil
}

// Get returns a snapshot of the session, or ErrSessionNotFound.
func (st *Store) Get(id string) (*Session, error) {
	e, ok := st.get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s.snapshot(), nil
}

// Mutate runs fn on the live session under its entry lock and returns a
// snapshot of the result. This is how the ingestion pipeline linearizes
// append → rescore → reclassify for one session id.
func (st *Store) Mutate(id string, fn func(*Session) error) (*Session, error) {
	e, ok := st.get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := fn(e.s); err != nil {
		return nil, err
	}
	return e.s.snapshot(), nil
}

// AppendEvent appends an event in arrival order. It deliberately does not
// rescore; scoring stays the caller's job so the store carries no knowledge
// of the decay model.
func (st *Store) AppendEvent(id string, ev *event.Event) (*Session, error) {
	return st.Mutate(id, func(s *Session) error {
		if s.Ended() {
			return ErrSessionEnded
		}
		s.Events = append(s.Events, ev)
		return nil
	})
}

// UpdateScoreAndStatus sets the current score and status.
func (st *Store) UpdateScoreAndStatus(id string, score int, status Status) (*Session, error) {
	return st.Mutate(id, func(s *Session) error {
		s.RiskScore = score
		s.Status = status
		return nil
	})
}

// MarkManualFlag marks the session FLAGGED. Sticky until ClearManualFlag
// or End.
func (st *Store) MarkManualFlag(id string) (*Session, error) {
	return st.Mutate(id, func(s *Session) error {
		if s.Ended() {
			return ErrSessionEnded
		}
		s.Flagged = true
		s.Status = StatusFlagged
		return nil
	})
}

// ClearManualFlag removes the manual flag. The caller reclassifies from the
// score afterwards.
func (st *Store) ClearManualFlag(id string) (*Session, error) {
	return st.Mutate(id, func(s *Session) error {
		s.Flagged = false
		return nil
	})
}

// MarkTransportState records a transport-observed DISCONNECTED or ERROR
// state. A manual flag is never overwritten.
func (st *Store) MarkTransportState(id string, status Status) (*Session, error) {
	if status != StatusDisconnected && status != StatusError {
		return nil, fmt.Errorf("not a transport state: %s", status)
	}
	return st.Mutate(id, func(s *Session) error {
		if s.Ended() || s.Flagged {
			return nil
		}
		s.Status = status
		return nil
	})
}

// End marks the session ended and clears the manual flag. Further events are
// subject to the resurrect policy.
func (st *Store) End(id string) (*Session, error) {
	return st.Mutate(id, func(s *Session) error {
		if s.Ended() {
			return ErrSessionEnded
		}
		t := st.now()
		s.EndTime = &t
		s.Flagged = false
		return nil
	})
}

// ListActive returns summaries of all non-ended sessions ordered by start
// time, then id (a stable, implementation-defined order).
func (st *Store) ListActive() []Summary {
	st.mu.RLock()
	entries := make([]*entry, 0, len(st.sessions))
	for _, e := range st.sessions {
		entries = append(entries, e)
	}
	st.mu.RUnlock()

	out := make([]Summary, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.s.Ended() {
			out = append(out, e.s.Summarize())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// ActiveCount returns the number of non-ended sessions.
func (st *Store) ActiveCount() int {
	return len(st.ListActive())
}

// ActiveSessionIDs returns the ids of all non-ended sessions.
func (st *Store) ActiveSessionIDs() []string {
	active := st.ListActive()
	ids := make([]string, len(active))
	for i, s := range active {
		ids[i] = s.ID
	}
	return ids
}
