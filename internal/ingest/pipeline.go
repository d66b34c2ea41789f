// Package ingest orchestrates the per-observation pipeline:
// validate → append → rescore → reclassify → persist (best-effort) →
// broadcast.
//
// The pipeline is the only writer of session score and status. Runs for the
// same session are linearized by the store's per-session lock; different
// sessions proceed fully in parallel. Persistence never sits on the
// critical path: a degraded archive costs an audit record, not a live
// update.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mkells/vigil/internal/archive"
	"github.com/mkells/vigil/internal/event"
	"github.com/mkells/vigil/internal/idgen"
	"github.com/mkells/vigil/internal/logging"
	"github.com/mkells/vigil/internal/metrics"
	"github.com/mkells/vigil/internal/realtime"
	"github.com/mkells/vigil/internal/scoring"
	"github.com/mkells/vigil/internal/session"
)

// ErrInvalidObservation rejects a payload missing its type tag.
var ErrInvalidObservation = errors.New("observation has no type")

// persistTimeout bounds each write-behind archive call.
const persistTimeout = 5 * time.Second

// Broadcaster is the pipeline's view of the connection registry.
type Broadcaster interface {
	SendToSession(sessionID string, payload []byte)
	BroadcastAll(payload []byte)
	CloseSession(sessionID string)
}

// Pipeline ties the session store, scorer, classifier, archive, and
// broadcaster together.
type Pipeline struct {
	store      *session.Store
	scorer     *scoring.Scorer
	classifier *scoring.Classifier
	sink       archive.Sink
	broadcast  Broadcaster
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a pipeline.
func New(store *session.Store, scorer *scoring.Scorer, classifier *scoring.Classifier,
	sink archive.Sink, broadcast Broadcaster, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		store:      store,
		scorer:     scorer,
		classifier: classifier,
		sink:       sink,
		broadcast:  broadcast,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the pipeline clock (for tests).
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// Store exposes the session store for the admin surface.
func (p *Pipeline) Store() *session.Store {
	return p.store
}

// ArchivedEvents reads a session's audit trail from the archive, for
// sessions the live store no longer holds (after a restart, for example).
// Returns nothing when the sink has no read side.
func (p *Pipeline) ArchivedEvents(ctx context.Context, sessionID string, limit int) ([]*event.Event, error) {
	reader, ok := p.sink.(archive.EventReader)
	if !ok {
		return nil, nil
	}
	return reader.RecentEvents(ctx, sessionID, limit)
}

// Connect resolves the session for a new viewer connection, lazily creating
// it for a first-seen id. A session sitting in a transport-observed state
// (DISCONNECTED/ERROR) is moved back onto the score-driven ladder.
func (p *Pipeline) Connect(ctx context.Context, sessionID string) (*session.Session, error) {
	snap, created, err := p.store.GetOrCreate(sessionID, "")
	if err != nil {
		return nil, err
	}
	if created {
		p.logger.Info("session created on first contact", "session", sessionID)
		metrics.ActiveSessions.Set(float64(p.store.ActiveCount()))
		p.persistSession(snap)
		return snap, nil
	}

	if snap.Status == session.StatusDisconnected || snap.Status == session.StatusError {
		snap, err = p.store.Mutate(sessionID, func(s *session.Session) error {
			s.Status = p.classifier.Classify(s.RiskScore, s.Flagged, len(s.Events) > 0)
			return nil
		})
		if err != nil {
			return nil, err
		}
		p.logger.Info("session reconnected", "session", sessionID, "status", snap.Status)
	}
	return snap, nil
}

// Observe runs one behavioral observation through the full pipeline.
func (p *Pipeline) Observe(ctx context.Context, sessionID string, obs event.Observation) error {
	if obs.Type == "" {
		return ErrInvalidObservation
	}

	// First-seen session ids on a live connection are legitimate.
	if _, _, err := p.store.GetOrCreate(sessionID, ""); err != nil {
		return err
	}

	ev := event.New(sessionID, obs, p.now())

	snap, err := p.store.Mutate(sessionID, func(s *session.Session) error {
		if s.Ended() {
			return session.ErrSessionEnded
		}
		s.Events = append(s.Events, ev)

		start := time.Now()
		score := p.scorer.Score(s.Events, p.now())
		metrics.ScoringDuration.Observe(time.Since(start).Seconds())

		status := p.classifier.Classify(score, s.Flagged, true)

		// Record a flag-trail entry when the score climbs into
		// high-risk territory.
		if !s.Flagged && status == session.StatusHighRisk && s.Status != session.StatusHighRisk {
			s.Flags = append(s.Flags, &session.Flag{
				ID:          idgen.WithPrefix("flg_"),
				Timestamp:   p.now(),
				Description: fmt.Sprintf("risk score exceeded high threshold: %d", score),
				Score:       score,
			})
		}

		s.RiskScore = score
		s.Status = status
		return nil
	})
	if err != nil {
		return err
	}

	metrics.EventsIngestedTotal.WithLabelValues(string(ev.Type)).Inc()

	p.persistEvent(ev, snap)
	p.broadcast.SendToSession(sessionID, realtime.SessionUpdate(snap, ev))

	logging.WithSession(p.logger, sessionID).Debug("event ingested",
		"type", ev.Type,
		"score", snap.RiskScore,
		"status", snap.Status,
	)
	return nil
}

// StartSession explicitly creates a session. An empty id is assigned one.
func (p *Pipeline) StartSession(ctx context.Context, sessionID, displayName string) (*session.Session, error) {
	if sessionID == "" {
		sessionID = idgen.WithPrefix("ses_")
	}
	snap, err := p.store.Create(sessionID, displayName)
	if err != nil {
		return nil, err
	}
	metrics.ActiveSessions.Set(float64(p.store.ActiveCount()))
	p.persistSession(snap)
	p.logger.Info("session started", "session", snap.ID, "display_name", snap.DisplayName)
	return snap, nil
}

// EndSession ends a session, notifies its viewers, and closes their
// connections.
func (p *Pipeline) EndSession(ctx context.Context, sessionID string) (*session.Session, error) {
	snap, err := p.store.End(sessionID)
	if err != nil {
		return nil, err
	}
	metrics.ActiveSessions.Set(float64(p.store.ActiveCount()))

	p.broadcast.SendToSession(sessionID, realtime.SessionEnded(snap))
	p.broadcast.CloseSession(sessionID)

	p.persistSession(snap)
	p.logger.Info("session ended", "session", sessionID, "final_score", snap.RiskScore)
	return snap, nil
}

// FlagSession manually flags a session. Sticky until unflag or end.
func (p *Pipeline) FlagSession(ctx context.Context, sessionID string) (*session.Session, error) {
	snap, err := p.store.MarkManualFlag(sessionID)
	if err != nil {
		return nil, err
	}
	metrics.SessionsFlaggedTotal.Inc()

	p.broadcast.SendToSession(sessionID, realtime.SessionFlagged(snap))
	p.persistSession(snap)
	p.logger.Info("session flagged", "session", sessionID)
	return snap, nil
}

// UnflagSession clears the manual flag and reclassifies from the current
// score.
func (p *Pipeline) UnflagSession(ctx context.Context, sessionID string) (*session.Session, error) {
	if _, err := p.store.ClearManualFlag(sessionID); err != nil {
		return nil, err
	}
	snap, err := p.store.Mutate(sessionID, func(s *session.Session) error {
		s.Status = p.classifier.Classify(s.RiskScore, false, len(s.Events) > 0)
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.broadcast.SendToSession(sessionID, realtime.SessionUnflagged(snap))
	p.persistSession(snap)
	p.logger.Info("session unflagged", "session", sessionID, "status", snap.Status)
	return snap, nil
}

// ViewerGone records a transport-observed state after a session's last
// viewer dropped. Scoring state is untouched; viewer presence is not a
// behavioral signal.
func (p *Pipeline) ViewerGone(ctx context.Context, sessionID string, abnormal bool) {
	state := session.StatusDisconnected
	if abnormal {
		state = session.StatusError
	}
	snap, err := p.store.MarkTransportState(sessionID, state)
	if err != nil {
		if !errors.Is(err, session.ErrSessionNotFound) {
			p.logger.Warn("transport state update failed", "session", sessionID, "error", err)
		}
		return
	}
	p.persistSession(snap)
	p.logger.Info("session viewers gone", "session", sessionID, "state", snap.Status)
}

// persistEvent fires a write-behind archive write for an event and its
// session snapshot. Failures are logged and counted, nothing more.
func (p *Pipeline) persistEvent(ev *event.Event, snap *session.Session) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := p.sink.StoreEvent(ctx, ev); err != nil {
			metrics.PersistFailuresTotal.WithLabelValues("store_event").Inc()
			p.logger.Warn("failed to archive event", "event", ev.ID, "error", err)
		}
		if err := p.sink.UpdateSession(ctx, snap); err != nil {
			metrics.PersistFailuresTotal.WithLabelValues("update_session").Inc()
			p.logger.Warn("failed to archive session", "session", snap.ID, "error", err)
		}
	}()
}

func (p *Pipeline) persistSession(snap *session.Session) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := p.sink.UpdateSession(ctx, snap); err != nil {
			metrics.PersistFailuresTotal.WithLabelValues("update_session").Inc()
			p.logger.Warn("failed to archive session", "session", snap.ID, "error", err)
		}
	}()
}
