// Package event defines the closed set of behavioral observation types,
// their base severity weights, and the Event record attributed to a session.
//
// Observations arrive pre-classified from external detectors (face landmark
// tracking, audio analysis, browser instrumentation). This package only
// models the (type, confidence, severity, details) consumption contract;
// it knows nothing about pixels or audio samples.
package event

import (
	"strings"
	"time"

	"github.com/mkells/vigil/internal/idgen"
)

// Type tags one kind of behavioral observation.
type Type string

const (
	// Gaze tracking
	GazeLeft  Type = "gaze_left"
	GazeRight Type = "gaze_right"
	GazeUp    Type = "gaze_up"
	GazeDown  Type = "gaze_down"

	// Head pose
	HeadTurnLeft  Type = "head_turn_left"
	HeadTurnRight Type = "head_turn_right"
	HeadTilt      Type = "head_tilt"

	// Face detection
	MultipleFaces Type = "multiple_faces"
	NoFace        Type = "no_face"
	PhoneDetected Type = "phone_detected"

	// Audio
	SpeechDetected Type = "speech_detected"
	MultipleVoices Type = "multiple_voices"
	BannedKeywords Type = "banned_keywords"

	// Screen / application focus
	TabSwitch          Type = "tab_switch"
	WindowBlur         Type = "window_blur"
	CopyPaste          Type = "copy_paste"
	RightClick         Type = "right_click"
	KeyboardShortcut   Type = "keyboard_shortcut"
	ScreenShareStopped Type = "screen_share_stopped"

	// Movement
	SuspiciousMovement Type = "suspicious_movement"
)

// DefaultWeight is the contribution weight for unrecognized observation
// kinds. Unknown tags must never crash ingestion; they just score minimally.
const DefaultWeight = 1

// baseWeights maps each known type to its fixed base weight (1–15).
// Read-only process-wide configuration, loaded once, never mutated.
var baseWeights = map[Type]int{
	GazeLeft:           2,
	GazeRight:          2,
	GazeUp:             1,
	GazeDown:           3,
	HeadTurnLeft:       2,
	HeadTurnRight:      2,
	HeadTilt:           1,
	MultipleFaces:      8,
	NoFace:             5,
	PhoneDetected:      10,
	SpeechDetected:     3,
	MultipleVoices:     7,
	BannedKeywords:     15,
	TabSwitch:          6,
	WindowBlur:         4,
	CopyPaste:          8,
	RightClick:         3,
	KeyboardShortcut:   5,
	ScreenShareStopped: 12,
	SuspiciousMovement: 4,
}

// BaseWeight returns the base weight for a type. Unknown tags map to
// DefaultWeight rather than failing.
func BaseWeight(t Type) int {
	if w, ok := baseWeights[t]; ok {
		return w
	}
	return DefaultWeight
}

// Known reports whether t is a recognized observation type.
func Known(t Type) bool {
	_, ok := baseWeights[t]
	return ok
}

// Types returns all recognized observation types.
func Types() []Type {
	out := make([]Type, 0, len(baseWeights))
	for t := range baseWeights {
		out = append(out, t)
	}
	return out
}

// Severity grades how serious a single observation is.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Multiplier returns the fixed scoring multiplier for a severity.
// Unrecognized severities score as MEDIUM (1.0).
func (s Severity) Multiplier() float64 {
	switch s {
	case SeverityLow:
		return 0.5
	case SeverityMedium:
		return 1.0
	case SeverityHigh:
		return 1.5
	case SeverityCritical:
		return 2.0
	default:
		return 1.0
	}
}

// ParseSeverity normalizes a wire severity string. Empty or unknown values
// default to LOW, matching the inbound payload contract.
func ParseSeverity(s string) Severity {
	switch Severity(strings.ToUpper(strings.TrimSpace(s))) {
	case SeverityMedium:
		return SeverityMedium
	case SeverityHigh:
		return SeverityHigh
	case SeverityCritical:
		return SeverityCritical
	default:
		return SeverityLow
	}
}

// Observation is the raw classified signal handed over by an external
// detector before it is stamped and attributed to a session.
type Observation struct {
	Type       Type           `json:"type"`
	Confidence float64        `json:"confidence"`
	Severity   Severity       `json:"severity"`
	Details    map[string]any `json:"details"`
}

// Event is one classified behavioral observation attributed to a session.
// Immutable once created; owned exclusively by the session it belongs to.
type Event struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"sessionId"`
	Timestamp  time.Time      `json:"timestamp"`
	Type       Type           `json:"type"`
	Confidence float64        `json:"confidence"`
	Severity   Severity       `json:"severity"`
	Details    map[string]any `json:"details"`
}

// New stamps an observation into an Event with a server-assigned id and
// timestamp. Client-supplied timestamps are never trusted for ordering or
// decay; receipt time is authoritative.
func New(sessionID string, obs Observation, now time.Time) *Event {
	conf := obs.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	details := obs.Details
	if details == nil {
		details = map[string]any{}
	}
	return &Event{
		ID:         idgen.WithPrefix("evt_"),
		SessionID:  sessionID,
		Timestamp:  now,
		Type:       obs.Type,
		Confidence: conf,
		Severity:   obs.Severity,
		Details:    details,
	}
}
