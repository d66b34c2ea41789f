package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/mkells/vigil/internal/event"
	"github.com/mkells/vigil/internal/logging"
	"github.com/mkells/vigil/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Allow non-browser clients
		}
		host := r.Host
		return origin == "http://"+host || origin == "https://"+host
	},
}

// MaxConnections caps concurrent viewer connections.
const MaxConnections = 10000

// Ingestor is the hub's view of the ingestion pipeline. Heartbeats and
// pings never reach it; only behavioral observations do.
type Ingestor interface {
	// Connect resolves (lazily creating) the session for a new viewer and
	// returns its snapshot. session.ErrSessionEnded means the id is
	// retired under the reject policy.
	Connect(ctx context.Context, sessionID string) (*session.Session, error)

	// Observe runs one observation through the full pipeline.
	Observe(ctx context.Context, sessionID string, obs event.Observation) error

	// ViewerGone reports that a session's last viewer dropped. abnormal
	// distinguishes transport errors from clean closes.
	ViewerGone(ctx context.Context, sessionID string, abnormal bool)
}

// Hub owns the WebSocket surface: upgrades, per-connection pumps, inbound
// protocol dispatch, and the connection registry.
type Hub struct {
	registry *Registry
	ingestor Ingestor
	logger   *slog.Logger
	done     chan struct{}
	maxConns int
}

// NewHub creates a hub around a registry. The ingestor is attached later by
// the server wiring, after the pipeline exists.
func NewHub(registry *Registry, logger *slog.Logger) *Hub {
	return &Hub{
		registry: registry,
		logger:   logger,
		done:     make(chan struct{}),
		maxConns: MaxConnections,
	}
}

// SetIngestor attaches the ingestion pipeline. Must be called before the
// first upgrade.
func (h *Hub) SetIngestor(in Ingestor) {
	h.ingestor = in
}

// Registry exposes the connection registry for the admin surface.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Shutdown rejects further upgrades and closes every live connection.
func (h *Hub) Shutdown() {
	select {
	case <-h.done:
		return
	default:
	}
	close(h.done)

	h.registry.mu.Lock()
	senders := make([]Sender, 0, len(h.registry.sessions))
	for id, sessionID := range h.registry.sessions {
		senders = append(senders, h.registry.bySess[sessionID][id])
	}
	h.registry.sessions = make(map[ConnID]string)
	h.registry.bySess = make(map[string]map[ConnID]Sender)
	h.registry.mu.Unlock()

	for _, s := range senders {
		s.Close()
	}
	h.logger.Info("realtime hub stopped", "closed", len(senders))
}

// HandleWebSocket upgrades a viewer connection for the given session id,
// sends the initial session snapshot, and starts the connection pumps.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request, sessionID string) {
	select {
	case <-h.done:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	if h.registry.ConnectionCount() >= h.maxConns {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	// Resolve the session before upgrading so retired ids fail with a
	// plain HTTP status instead of a half-open socket.
	snap, err := h.ingestor.Connect(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionEnded) {
			http.Error(w, "session has ended", http.StatusGone)
			return
		}
		h.logger.Error("session resolve failed", "session", sessionID, "error", err)
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "session", sessionID, "error", err)
		return
	}

	client := newClient(h, conn, sessionID)
	client.id = h.registry.Register(sessionID, client)

	go client.writePump()
	go client.readPump()

	// Initial full snapshot, delivered only to the new viewer.
	_ = client.Send(SessionState(snap))
}

// handleInbound dispatches one decoded frame from a viewer.
func (h *Hub) handleInbound(c *Client, raw []byte) {
	msg, err := DecodeInbound(raw)
	if err != nil {
		_ = c.Send(ErrorMessage("malformed message: expected a JSON object"))
		return
	}

	switch msg.Kind {
	case KindHeartbeat:
		_ = c.Send(HeartbeatAck())
	case KindPing:
		_ = c.Send(Pong())
	case KindObservation:
		if err := h.ingestor.Observe(context.Background(), c.sessionID, msg.Observation); err != nil {
			if errors.Is(err, session.ErrSessionEnded) {
				_ = c.Send(ErrorMessage("session has ended"))
				return
			}
			logging.WithSession(h.logger, c.sessionID).Error("observation rejected", "error", err)
			_ = c.Send(ErrorMessage("observation could not be processed"))
		}
	case KindUnrecognized:
		_ = c.Send(Ack(msg.Type))
	}
}

// viewerGone is called from readPump after unregistration. Only the last
// viewer leaving flips the session's transport state.
func (h *Hub) viewerGone(sessionID string, abnormal bool) {
	if h.ingestor == nil {
		return
	}
	if h.registry.SessionConnectionCount(sessionID) > 0 {
		return
	}
	h.ingestor.ViewerGone(context.Background(), sessionID, abnormal)
}
