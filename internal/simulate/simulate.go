// Package simulate generates synthetic observations for development and
// demos. It periodically injects a weighted-random observation into one
// active session that has at least one live viewer, so generated traffic is
// always visible somewhere.
package simulate

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/mkells/vigil/internal/event"
)

// SessionSource lists candidate sessions for injection.
type SessionSource interface {
	ActiveSessionIDs() []string
}

// ViewerCounter reports live viewer connections per session.
type ViewerCounter interface {
	SessionConnectionCount(sessionID string) int
}

// Ingestor accepts generated observations.
type Ingestor interface {
	Observe(ctx context.Context, sessionID string, obs event.Observation) error
}

// Generator drives the mock observation loop.
type Generator struct {
	sessions SessionSource
	viewers  ViewerCounter
	ingestor Ingestor
	logger   *slog.Logger
	interval time.Duration
	rng      *rand.Rand
}

// New creates a generator. interval is the time between injections.
func New(sessions SessionSource, viewers ViewerCounter, ingestor Ingestor,
	interval time.Duration, logger *slog.Logger) *Generator {
	return &Generator{
		sessions: sessions,
		viewers:  viewers,
		ingestor: ingestor,
		logger:   logger,
		interval: interval,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// scenario weights the generated mix toward low-signal events so that demo
// sessions mostly hover in LOW_RISK with occasional spikes.
type scenario struct {
	typ      event.Type
	severity event.Severity
	weight   int
}

var scenarios = []scenario{
	{event.GazeLeft, event.SeverityLow, 20},
	{event.GazeRight, event.SeverityLow, 20},
	{event.GazeDown, event.SeverityMedium, 10},
	{event.HeadTurnLeft, event.SeverityLow, 10},
	{event.HeadTurnRight, event.SeverityLow, 10},
	{event.WindowBlur, event.SeverityMedium, 8},
	{event.TabSwitch, event.SeverityMedium, 6},
	{event.SpeechDetected, event.SeverityMedium, 5},
	{event.NoFace, event.SeverityHigh, 3},
	{event.CopyPaste, event.SeverityHigh, 3},
	{event.PhoneDetected, event.SeverityCritical, 2},
	{event.MultipleFaces, event.SeverityCritical, 1},
}

var totalScenarioWeight = func() int {
	total := 0
	for _, s := range scenarios {
		total += s.weight
	}
	return total
}()

// Run injects observations until ctx is cancelled.
func (g *Generator) Run(ctx context.Context) {
	g.logger.Info("mock event generator started", "interval", g.interval)
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("mock event generator stopped")
			return
		case <-ticker.C:
			g.tick(ctx)
		}
	}
}

func (g *Generator) tick(ctx context.Context) {
	target := g.pickSession()
	if target == "" {
		return
	}

	obs := g.pickObservation()
	if err := g.ingestor.Observe(ctx, target, obs); err != nil {
		g.logger.Warn("mock observation rejected", "session", target, "error", err)
		return
	}
	g.logger.Debug("mock observation injected",
		"session", target, "type", obs.Type, "severity", obs.Severity)
}

// pickSession returns a random active session with live viewers, or "".
func (g *Generator) pickSession() string {
	ids := g.sessions.ActiveSessionIDs()
	candidates := ids[:0:0]
	for _, id := range ids {
		if g.viewers.SessionConnectionCount(id) > 0 {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	return candidates[g.rng.Intn(len(candidates))]
}

func (g *Generator) pickObservation() event.Observation {
	n := g.rng.Intn(totalScenarioWeight)
	var chosen scenario
	for _, s := range scenarios {
		if n < s.weight {
			chosen = s
			break
		}
		n -= s.weight
	}

	return event.Observation{
		Type:       chosen.typ,
		Confidence: 0.5 + g.rng.Float64()*0.5,
		Severity:   chosen.severity,
		Details:    map[string]any{"simulated": true},
	}
}
