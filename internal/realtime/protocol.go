package realtime

import (
	"encoding/json"
	"time"

	"github.com/mkells/vigil/internal/event"
	"github.com/mkells/vigil/internal/scoring"
	"github.com/mkells/vigil/internal/session"
)

// Inbound message kinds. Every inbound frame decodes to exactly one of
// these; unknown tags become KindUnrecognized rather than falling through.
type Kind int

const (
	KindHeartbeat Kind = iota
	KindPing
	KindObservation
	KindUnrecognized
)

// Inbound is a decoded viewer-to-server message.
type Inbound struct {
	Kind        Kind
	Type        string
	Observation event.Observation
}

// DefaultConfidence is assumed when a payload omits confidence.
const DefaultConfidence = 0.5

// envelope is the wire shape of an inbound frame. Behavioral payloads carry
// the observation either as the top-level type or under eventType when sent
// as a generic suspicious_event.
type envelope struct {
	Type       string         `json:"type"`
	EventType  string         `json:"eventType"`
	Confidence *float64       `json:"confidence"`
	Severity   string         `json:"severity"`
	Details    map[string]any `json:"details"`
}

// DecodeInbound parses a raw frame into a closed message variant. A JSON
// error is the caller's cue to reply with an error message; the connection
// stays open.
func DecodeInbound(raw []byte) (*Inbound, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}

	switch env.Type {
	case "heartbeat":
		return &Inbound{Kind: KindHeartbeat, Type: env.Type}, nil
	case "ping":
		return &Inbound{Kind: KindPing, Type: env.Type}, nil
	}

	tag := env.Type
	if tag == "suspicious_event" {
		// Generic envelope; the actual tag rides in eventType. Unknown
		// tags are still scored (at the default weight), so they pass
		// through as observations.
		tag = env.EventType
		if tag == "" {
			return &Inbound{Kind: KindUnrecognized, Type: env.Type}, nil
		}
	} else if !event.Known(event.Type(tag)) {
		return &Inbound{Kind: KindUnrecognized, Type: env.Type}, nil
	}

	conf := DefaultConfidence
	if env.Confidence != nil {
		conf = *env.Confidence
	}

	return &Inbound{
		Kind: KindObservation,
		Type: env.Type,
		Observation: event.Observation{
			Type:       event.Type(tag),
			Confidence: conf,
			Severity:   event.ParseSeverity(env.Severity),
			Details:    env.Details,
		},
	}, nil
}

// RecentWindow bounds the trailing events and flags carried in update
// payloads.
const RecentWindow = 10

// outbound is the wire shape of a server-to-viewer message.
type outbound struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

func marshal(msgType string, data any) []byte {
	payload, _ := json.Marshal(outbound{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	return payload
}

// SessionState carries the full session snapshot, sent once on connect.
func SessionState(s *session.Session) []byte {
	return marshal("session_state", s)
}

// SessionUpdate carries the newly ingested event plus current score,
// status, proctor advice, and a bounded trailing window of recent events
// and flags.
func SessionUpdate(s *session.Session, ev *event.Event) []byte {
	return marshal("session_update", map[string]any{
		"event":           ev,
		"riskScore":       s.RiskScore,
		"status":          s.Status,
		"totalEvents":     len(s.Events),
		"recentEvents":    s.RecentEvents(RecentWindow),
		"recentFlags":     s.RecentFlags(RecentWindow),
		"recommendations": scoring.Recommendations(s.Events),
	})
}

// SessionFlagged announces a manual flag on the session's own channel.
func SessionFlagged(s *session.Session) []byte {
	return marshal("session_flagged", map[string]any{
		"sessionId": s.ID,
		"riskScore": s.RiskScore,
		"status":    s.Status,
	})
}

// SessionUnflagged announces a manual unflag.
func SessionUnflagged(s *session.Session) []byte {
	return marshal("session_unflagged", map[string]any{
		"sessionId": s.ID,
		"riskScore": s.RiskScore,
		"status":    s.Status,
	})
}

// SessionEnded is the clean shutdown notice sent before connections close.
func SessionEnded(s *session.Session) []byte {
	return marshal("session_ended", map[string]any{
		"sessionId": s.ID,
		"riskScore": s.RiskScore,
		"status":    s.Status,
		"endTime":   s.EndTime,
	})
}

// HeartbeatAck replies to a heartbeat without entering the pipeline.
func HeartbeatAck() []byte {
	return marshal("heartbeat_ack", nil)
}

// Pong replies to a ping without entering the pipeline.
func Pong() []byte {
	return marshal("pong", nil)
}

// Ack acknowledges an unrecognized message type. Never silently dropped.
func Ack(receivedType string) []byte {
	return marshal("ack", map[string]any{
		"received": receivedType,
		"scored":   false,
	})
}

// ErrorMessage carries a human-readable reason. Internal state never leaks
// through here.
func ErrorMessage(reason string) []byte {
	return marshal("error", map[string]any{"message": reason})
}
