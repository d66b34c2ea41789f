// Package scoring turns a session's event timeline into a bounded risk
// score and a discrete status.
//
// Both computations are pure functions of their inputs, so re-scoring after
// a manual flag or a backfilled event is deterministic and repeatable.
package scoring

import (
	"time"

	"github.com/mkells/vigil/internal/event"
)

const (
	// DefaultWindow is the trailing span over which events contribute.
	// Events at or beyond the window boundary are dropped entirely.
	DefaultWindow = 10 * time.Minute

	// decayFloor keeps an in-window event at no less than 30% of its full
	// weight, no matter how close to the boundary it is.
	decayFloor = 0.3

	// repeatThreshold is how many same-type events are tolerated in the
	// window before the frequency surcharge kicks in.
	repeatThreshold = 3

	// repeatPenalty is the linear per-repeat surcharge factor.
	repeatPenalty = 0.5

	// MaxScore caps the risk score.
	MaxScore = 100
)

// Scorer computes risk scores over windowed event timelines.
type Scorer struct {
	window time.Duration
}

// NewScorer creates a scorer with the default 10-minute decay window.
func NewScorer() *Scorer {
	return &Scorer{window: DefaultWindow}
}

// WithWindow overrides the decay window.
func (sc *Scorer) WithWindow(w time.Duration) *Scorer {
	if w > 0 {
		sc.window = w
	}
	return sc
}

// Window returns the configured decay window.
func (sc *Scorer) Window() time.Duration {
	return sc.window
}

// Score evaluates the event timeline at reference time now.
//
// Per surviving event: weight × confidence × severity multiplier × time
// factor, where the time factor decays linearly to a 0.3 floor. Types that
// repeat more than three times in the window add a linear surcharge of
// weight × (count−3) × 0.5. The total is truncated to an integer and
// clamped to [0, 100].
func (sc *Scorer) Score(events []*event.Event, now time.Time) int {
	if len(events) == 0 {
		return 0
	}

	windowSecs := sc.window.Seconds()
	total := 0.0
	counts := make(map[event.Type]int)

	for _, ev := range events {
		elapsed := now.Sub(ev.Timestamp).Seconds()
		if elapsed < 0 {
			elapsed = 0
		}
		if elapsed >= windowSecs {
			continue // outside the window, including the exact boundary
		}

		timeFactor := 1 - elapsed/windowSecs
		if timeFactor < decayFloor {
			timeFactor = decayFloor
		}

		weight := float64(event.BaseWeight(ev.Type))
		total += weight * ev.Confidence * ev.Severity.Multiplier() * timeFactor
		counts[ev.Type]++
	}

	// Frequency surcharge: spamming a single suspicious action scores
	// extra even when each instance decays.
	for t, count := range counts {
		if count > repeatThreshold {
			total += float64(event.BaseWeight(t)) * float64(count-repeatThreshold) * repeatPenalty
		}
	}

	score := int(total)
	if score < 0 {
		score = 0
	}
	if score > MaxScore {
		score = MaxScore
	}
	return score
}
