package simulate

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mkells/vigil/internal/event"
)

type fakeSessions struct {
	ids []string
}

func (f *fakeSessions) ActiveSessionIDs() []string { return f.ids }

type fakeViewers struct {
	counts map[string]int
}

func (f *fakeViewers) SessionConnectionCount(id string) int { return f.counts[id] }

type fakeIngestor struct {
	mu       sync.Mutex
	observed []string
}

func (f *fakeIngestor) Observe(ctx context.Context, sessionID string, obs event.Observation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observed = append(f.observed, sessionID)
	return nil
}

func (f *fakeIngestor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.observed)
}

func testGenerator(sessions *fakeSessions, viewers *fakeViewers, ing *fakeIngestor) *Generator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(sessions, viewers, ing, time.Millisecond, logger)
}

func TestTickTargetsWatchedSessionsOnly(t *testing.T) {
	sessions := &fakeSessions{ids: []string{"ses_watched", "ses_unwatched"}}
	viewers := &fakeViewers{counts: map[string]int{"ses_watched": 1}}
	ing := &fakeIngestor{}
	g := testGenerator(sessions, viewers, ing)

	for i := 0; i < 20; i++ {
		g.tick(context.Background())
	}

	if ing.count() != 20 {
		t.Fatalf("observations = %d, want 20", ing.count())
	}
	for _, id := range ing.observed {
		if id != "ses_watched" {
			t.Fatalf("observation went to %q, want only ses_watched", id)
		}
	}
}

func TestTickNoCandidatesIsNoop(t *testing.T) {
	sessions := &fakeSessions{ids: []string{"ses_a"}}
	viewers := &fakeViewers{counts: map[string]int{}} // no viewers anywhere
	ing := &fakeIngestor{}
	g := testGenerator(sessions, viewers, ing)

	g.tick(context.Background())
	if ing.count() != 0 {
		t.Errorf("observations = %d, want 0", ing.count())
	}
}

func TestPickObservationAlwaysValid(t *testing.T) {
	g := testGenerator(&fakeSessions{}, &fakeViewers{}, &fakeIngestor{})

	for i := 0; i < 100; i++ {
		obs := g.pickObservation()
		if !event.Known(obs.Type) {
			t.Fatalf("generated unknown type %q", obs.Type)
		}
		if obs.Confidence < 0.5 || obs.Confidence > 1.0 {
			t.Fatalf("confidence %v out of [0.5, 1.0]", obs.Confidence)
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	sessions := &fakeSessions{}
	viewers := &fakeViewers{}
	ing := &fakeIngestor{}
	g := testGenerator(sessions, viewers, ing)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		g.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("generator did not stop on cancel")
	}
}
