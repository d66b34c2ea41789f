package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mkells/vigil/internal/event"
	"github.com/mkells/vigil/internal/session"
)

// PostgresSink persists sessions and events in PostgreSQL.
type PostgresSink struct {
	db *sql.DB
}

// NewPostgresSink creates a PostgreSQL-backed archive.
func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

// Migrate creates the archive tables if they don't exist. The canonical
// schema also ships as a goose migration under migrations/.
func (p *PostgresSink) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			id           VARCHAR(64) PRIMARY KEY,
			display_name VARCHAR(200) NOT NULL,
			start_time   TIMESTAMPTZ NOT NULL,
			end_time     TIMESTAMPTZ,
			risk_score   INTEGER NOT NULL DEFAULT 0 CHECK (risk_score >= 0 AND risk_score <= 100),
			status       VARCHAR(20) NOT NULL DEFAULT 'ACTIVE',
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS events (
			id          VARCHAR(36) PRIMARY KEY,
			session_id  VARCHAR(64) NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL,
			event_type  VARCHAR(40) NOT NULL,
			confidence  NUMERIC(4,3) NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
			severity    VARCHAR(10) NOT NULL,
			details     JSONB NOT NULL DEFAULT '{}'
		);

		CREATE INDEX IF NOT EXISTS idx_events_session
			ON events (session_id, occurred_at DESC);
	`)
	return err
}

func (p *PostgresSink) StoreEvent(ctx context.Context, ev *event.Event) error {
	detailsJSON, err := json.Marshal(ev.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal details: %w", err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO events (id, session_id, occurred_at, event_type, confidence, severity, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`,
		ev.ID,
		ev.SessionID,
		ev.Timestamp,
		string(ev.Type),
		ev.Confidence,
		string(ev.Severity),
		detailsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to store event: %w", err)
	}
	return nil
}

func (p *PostgresSink) UpdateSession(ctx context.Context, s *session.Session) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO sessions (id, display_name, start_time, end_time, risk_score, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE SET
			end_time   = EXCLUDED.end_time,
			risk_score = EXCLUDED.risk_score,
			status     = EXCLUDED.status,
			updated_at = NOW()
	`,
		s.ID,
		s.DisplayName,
		s.StartTime,
		s.EndTime,
		s.RiskScore,
		string(s.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit most recent archived events for a
// session, oldest first. Only the admin surface reads this; live scoring
// works from the in-memory timeline.
func (p *PostgresSink) RecentEvents(ctx context.Context, sessionID string, limit int) ([]*event.Event, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, session_id, occurred_at, event_type, confidence, severity, details
		FROM events
		WHERE session_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*event.Event
	for rows.Next() {
		var ev event.Event
		var occurredAt time.Time
		var detailsJSON []byte

		if err := rows.Scan(&ev.ID, &ev.SessionID, &occurredAt, &ev.Type, &ev.Confidence, &ev.Severity, &detailsJSON); err != nil {
			continue
		}
		ev.Timestamp = occurredAt
		ev.Details = make(map[string]any)
		_ = json.Unmarshal(detailsJSON, &ev.Details)
		result = append(result, &ev)
	}

	// Reverse to oldest-first for display parity with the live timeline.
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result, nil
}
