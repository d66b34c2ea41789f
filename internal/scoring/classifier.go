package scoring

import "github.com/mkells/vigil/internal/session"

// Default status thresholds. Comparisons are strict: a score of exactly 8
// is LOW_RISK and exactly 16 is HIGH_RISK.
const (
	DefaultModerateThreshold = 8
	DefaultHighThreshold     = 15
)

// Classifier derives a session status from a score and the manual-flag bit.
// There is no other hidden state.
type Classifier struct {
	moderate int
	high     int
}

// NewClassifier creates a classifier with the default thresholds.
func NewClassifier() *Classifier {
	return &Classifier{
		moderate: DefaultModerateThreshold,
		high:     DefaultHighThreshold,
	}
}

// WithThresholds overrides the moderate and high thresholds.
func (c *Classifier) WithThresholds(moderate, high int) *Classifier {
	c.moderate = moderate
	c.high = high
	return c
}

// Classify maps (score, flagged, scored) to a status.
//
// FLAGGED is sticky: while the manual flag is set, no score drop reverts the
// status. A session that has never scored an event stays ACTIVE; the first
// classification after any event moves it permanently onto the three-tier
// ladder.
func (c *Classifier) Classify(score int, flagged, scored bool) session.Status {
	if flagged {
		return session.StatusFlagged
	}
	if !scored {
		return session.StatusActive
	}
	switch {
	case score > c.high:
		return session.StatusHighRisk
	case score > c.moderate:
		return session.StatusModerateRisk
	default:
		return session.StatusLowRisk
	}
}
