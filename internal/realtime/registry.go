// Package realtime delivers live session updates to proctoring viewers.
//
// Viewers hold one WebSocket connection each, keyed to a single session.
// The registry routes every update to exactly the connections watching that
// session, never to a sibling session, and self-heals by evicting
// connections that fail to accept a send.
package realtime

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mkells/vigil/internal/metrics"
)

// ConnID is an opaque handle issued at registration. Connections are keyed
// by id, not by object identity.
type ConnID int64

// Sender is the outbound half of a viewer connection. Send must not block
// indefinitely; returning an error marks the connection dead.
type Sender interface {
	Send(payload []byte) error
	Close()
}

// Registry tracks live viewer connections per session. The forward index
// (session → connections) and reverse index (connection → session) are
// mutated together under one lock, so concurrent observers always see them
// consistent.
type Registry struct {
	mu       sync.RWMutex
	bySess   map[string]map[ConnID]Sender
	sessions map[ConnID]string
	nextID   atomic.Int64
	logger   *slog.Logger

	totalConns atomic.Int64
	totalSends atomic.Int64
}

// NewRegistry creates an empty connection registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		bySess:   make(map[string]map[ConnID]Sender),
		sessions: make(map[ConnID]string),
		logger:   logger,
	}
}

// Register adds a connection under a session and returns its handle.
func (r *Registry) Register(sessionID string, s Sender) ConnID {
	id := ConnID(r.nextID.Add(1))
	r.mu.Lock()
	set, ok := r.bySess[sessionID]
	if !ok {
		set = make(map[ConnID]Sender)
		r.bySess[sessionID] = set
	}
	set[id] = s
	r.sessions[id] = sessionID
	n := len(r.sessions)
	r.mu.Unlock()

	r.totalConns.Add(1)
	metrics.ActiveViewerConnections.Set(float64(n))
	r.logger.Info("viewer connected", "session", sessionID, "conn", int64(id), "total", n)
	return id
}

// Rebind moves a connection to a different session (last-registered wins).
func (r *Registry) Rebind(id ConnID, sessionID string) {
	r.mu.Lock()
	prev, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	s := r.bySess[prev][id]
	r.removeLocked(id)
	set, ok := r.bySess[sessionID]
	if !ok {
		set = make(map[ConnID]Sender)
		r.bySess[sessionID] = set
	}
	set[id] = s
	r.sessions[id] = sessionID
	r.mu.Unlock()
}

// Unregister removes a single connection. Removing an absent connection is
// a no-op.
func (r *Registry) Unregister(id ConnID) {
	r.mu.Lock()
	sessionID, ok := r.sessions[id]
	if ok {
		r.removeLocked(id)
	}
	n := len(r.sessions)
	r.mu.Unlock()

	if ok {
		metrics.ActiveViewerConnections.Set(float64(n))
		r.logger.Info("viewer disconnected", "session", sessionID, "conn", int64(id), "total", n)
	}
}

// UnregisterSession removes every connection for a session and closes them.
// Idempotent: an unknown session is a no-op.
func (r *Registry) UnregisterSession(sessionID string) {
	r.mu.Lock()
	set := r.bySess[sessionID]
	senders := make([]Sender, 0, len(set))
	for id, s := range set {
		senders = append(senders, s)
		delete(r.sessions, id)
	}
	delete(r.bySess, sessionID)
	n := len(r.sessions)
	r.mu.Unlock()

	for _, s := range senders {
		s.Close()
	}
	if len(senders) > 0 {
		metrics.ActiveViewerConnections.Set(float64(n))
		r.logger.Info("session viewers closed", "session", sessionID, "closed", len(senders))
	}
}

// CloseSession is UnregisterSession under the name the pipeline uses after
// broadcasting a shutdown notice.
func (r *Registry) CloseSession(sessionID string) {
	r.UnregisterSession(sessionID)
}

// removeLocked deletes a connection from both indexes. Caller holds r.mu.
func (r *Registry) removeLocked(id ConnID) {
	sessionID, ok := r.sessions[id]
	if !ok {
		return
	}
	delete(r.sessions, id)
	if set, ok := r.bySess[sessionID]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(r.bySess, sessionID)
		}
	}
}

// SendToSession delivers a payload to every live connection for the
// session. A failed send on one connection evicts that connection without
// affecting its siblings. Sending to a session with no viewers is a no-op.
func (r *Registry) SendToSession(sessionID string, payload []byte) {
	r.mu.RLock()
	targets := make(map[ConnID]Sender, len(r.bySess[sessionID]))
	for id, s := range r.bySess[sessionID] {
		targets[id] = s
	}
	r.mu.RUnlock()

	for id, s := range targets {
		r.totalSends.Add(1)
		if err := s.Send(payload); err != nil {
			r.evict(id, s, err)
		}
	}
}

// BroadcastAll delivers a payload to every connection across all sessions,
// with the same per-connection failure isolation.
func (r *Registry) BroadcastAll(payload []byte) {
	r.mu.RLock()
	targets := make(map[ConnID]Sender, len(r.sessions))
	for id, sessionID := range r.sessions {
		targets[id] = r.bySess[sessionID][id]
	}
	r.mu.RUnlock()

	for id, s := range targets {
		r.totalSends.Add(1)
		if err := s.Send(payload); err != nil {
			r.evict(id, s, err)
		}
	}
}

func (r *Registry) evict(id ConnID, s Sender, err error) {
	metrics.BroadcastEvictionsTotal.Inc()
	r.logger.Warn("send failed, evicting viewer", "conn", int64(id), "error", err)
	r.Unregister(id)
	s.Close()
}

// SessionFor returns the session a connection is registered under.
func (r *Registry) SessionFor(id ConnID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessionID, ok := r.sessions[id]
	return sessionID, ok
}

// ConnectionCount returns the total number of live connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// SessionConnectionCount returns the live connection count for a session.
func (r *Registry) SessionConnectionCount(sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySess[sessionID])
}

// ConnectedSessionCount returns how many sessions have at least one viewer.
func (r *Registry) ConnectedSessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySess)
}

// Stats returns registry statistics for the admin surface.
func (r *Registry) Stats() map[string]any {
	r.mu.RLock()
	conns := len(r.sessions)
	sessions := len(r.bySess)
	r.mu.RUnlock()

	return map[string]any{
		"connections":       conns,
		"connectedSessions": sessions,
		"totalConnections":  r.totalConns.Load(),
		"totalSends":        r.totalSends.Load(),
	}
}
