// Package session owns the authoritative in-memory state of every active
// exam session: identity, event timeline, current risk score and status.
//
// The store is the single writer surface for session state. Mutations on one
// session id are serialized; different ids never block each other. External
// persistence is a write-behind sink elsewhere; nothing here reads from it.
package session

import (
	"errors"
	"time"

	"github.com/mkells/vigil/internal/event"
)

var (
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionEnded    = errors.New("session has ended")
)

// Status is the discrete trust state of a session.
type Status string

const (
	// StatusActive is reachable only before the first scored event exists.
	StatusActive Status = "ACTIVE"

	// Score-driven ladder.
	StatusLowRisk      Status = "LOW_RISK"
	StatusModerateRisk Status = "MODERATE_RISK"
	StatusHighRisk     Status = "HIGH_RISK"

	// StatusFlagged is reachable only via explicit manual action and is
	// sticky: automatic score-driven transitions never leave it.
	StatusFlagged Status = "FLAGGED"

	// Transport-observed states, not score-driven.
	StatusDisconnected Status = "DISCONNECTED"
	StatusError        Status = "ERROR"
)

// Flag records a moment the session crossed into high-risk territory.
type Flag struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
	Score       int       `json:"score"`
}

// Session is the unit of proctoring state for one exam attempt.
type Session struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"displayName"`
	StartTime   time.Time      `json:"startTime"`
	EndTime     *time.Time     `json:"endTime,omitempty"`
	RiskScore   int            `json:"riskScore"`
	Status      Status         `json:"status"`
	Flagged     bool           `json:"flagged"`
	Events      []*event.Event `json:"events"`
	Flags       []*Flag        `json:"flags"`
}

// Ended reports whether the session has been explicitly ended.
func (s *Session) Ended() bool {
	return s.EndTime != nil
}

// RecentEvents returns up to n most recent events, oldest first.
func (s *Session) RecentEvents(n int) []*event.Event {
	if n <= 0 || len(s.Events) == 0 {
		return nil
	}
	start := len(s.Events) - n
	if start < 0 {
		start = 0
	}
	out := make([]*event.Event, len(s.Events)-start)
	copy(out, s.Events[start:])
	return out
}

// RecentFlags returns up to n most recent flags, oldest first.
func (s *Session) RecentFlags(n int) []*Flag {
	if n <= 0 || len(s.Flags) == 0 {
		return nil
	}
	start := len(s.Flags) - n
	if start < 0 {
		start = 0
	}
	out := make([]*Flag, len(s.Flags)-start)
	copy(out, s.Flags[start:])
	return out
}

// snapshot returns a defensive copy. Events and flags are immutable once
// appended, so copying the slices is enough.
func (s *Session) snapshot() *Session {
	cp := *s
	if s.EndTime != nil {
		t := *s.EndTime
		cp.EndTime = &t
	}
	cp.Events = make([]*event.Event, len(s.Events))
	copy(cp.Events, s.Events)
	cp.Flags = make([]*Flag, len(s.Flags))
	copy(cp.Flags, s.Flags)
	return &cp
}

// Summary is the bounded session view returned by list endpoints.
type Summary struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"displayName"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	RiskScore   int        `json:"riskScore"`
	Status      Status     `json:"status"`
	EventCount  int        `json:"eventCount"`
}

// Summarize converts a session into its bounded list view.
func (s *Session) Summarize() Summary {
	return Summary{
		ID:          s.ID,
		DisplayName: s.DisplayName,
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
		RiskScore:   s.RiskScore,
		Status:      s.Status,
		EventCount:  len(s.Events),
	}
}
