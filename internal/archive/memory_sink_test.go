package archive

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/mkells/vigil/internal/event"
	"github.com/mkells/vigil/internal/session"
)

func TestMemorySinkStoreAndRead(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ev := &event.Event{
			ID:        fmt.Sprintf("evt_%d", i),
			SessionID: "ses_1",
			Timestamp: time.Now(),
			Type:      event.TabSwitch,
		}
		if err := sink.StoreEvent(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}

	if sink.EventCount("ses_1") != 5 {
		t.Errorf("count = %d, want 5", sink.EventCount("ses_1"))
	}

	recent, err := sink.RecentEvents(ctx, "ses_1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 3 {
		t.Fatalf("recent length = %d, want 3", len(recent))
	}
	// Oldest first within the returned slice.
	if recent[0].ID != "evt_2" || recent[2].ID != "evt_4" {
		t.Errorf("recent = [%s .. %s], want [evt_2 .. evt_4]", recent[0].ID, recent[2].ID)
	}
}

func TestMemorySinkUpdateSession(t *testing.T) {
	sink := NewMemorySink()
	s := &session.Session{ID: "ses_1", RiskScore: 12, Status: session.StatusModerateRisk}

	if err := sink.UpdateSession(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	// Upsert semantics: a second write replaces the first.
	s.RiskScore = 20
	if err := sink.UpdateSession(context.Background(), s); err != nil {
		t.Fatal(err)
	}
}

func TestMemorySinkUnknownSession(t *testing.T) {
	sink := NewMemorySink()

	recent, err := sink.RecentEvents(context.Background(), "ses_ghost", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 0 {
		t.Errorf("recent = %d events, want 0", len(recent))
	}
	if sink.EventCount("ses_ghost") != 0 {
		t.Error("count should be 0")
	}
}
