// Package archive is the write-behind persistence sink for sessions and
// events.
//
// The in-memory session store stays authoritative; everything here is
// best-effort audit trail. A failed write is logged and counted, never
// surfaced to viewers, and never rolls back live state. Live scoring never
// reads from the archive.
package archive

import (
	"context"

	"github.com/mkells/vigil/internal/event"
	"github.com/mkells/vigil/internal/session"
)

// Sink persists events and session snapshots.
type Sink interface {
	StoreEvent(ctx context.Context, ev *event.Event) error
	UpdateSession(ctx context.Context, s *session.Session) error
}

// EventReader is the optional read side of a Sink. Only the admin audit
// path uses it, for sessions the live store no longer holds.
type EventReader interface {
	RecentEvents(ctx context.Context, sessionID string, limit int) ([]*event.Event, error)
}
