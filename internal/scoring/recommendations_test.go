package scoring

import (
	"testing"
	"time"

	"github.com/mkells/vigil/internal/event"
)

func mkTypedEvents(types ...event.Type) []*event.Event {
	out := make([]*event.Event, len(types))
	for i, t := range types {
		out[i] = &event.Event{
			ID:        "evt_test",
			SessionID: "ses_test",
			Timestamp: time.Now(),
			Type:      t,
		}
	}
	return out
}

func TestRecommendationsEmpty(t *testing.T) {
	if got := Recommendations(nil); len(got) != 0 {
		t.Errorf("advice for no events = %v, want none", got)
	}
}

func TestRecommendationsGroupFiresOnce(t *testing.T) {
	// Both gaze directions map to the same advice line.
	got := Recommendations(mkTypedEvents(event.GazeLeft, event.GazeRight, event.GazeLeft))
	if len(got) != 1 {
		t.Fatalf("advice = %v, want exactly 1 line", got)
	}
	if got[0] != "Student frequently looking away from screen" {
		t.Errorf("advice = %q", got[0])
	}
}

func TestRecommendationsIgnoresEventsOutsideWindow(t *testing.T) {
	// A phone sighting buried under ten newer events no longer drives
	// the advice.
	types := []event.Type{event.PhoneDetected}
	for i := 0; i < 10; i++ {
		types = append(types, event.GazeLeft)
	}
	got := Recommendations(mkTypedEvents(types...))
	for _, line := range got {
		if line == "Mobile device detected in view" {
			t.Errorf("stale phone sighting surfaced: %v", got)
		}
	}
}

func TestRecommendationsCapped(t *testing.T) {
	got := Recommendations(mkTypedEvents(
		event.GazeLeft,
		event.MultipleFaces,
		event.SpeechDetected,
		event.TabSwitch,
		event.CopyPaste,
		event.PhoneDetected,
		event.BannedKeywords,
	))
	if len(got) != 5 {
		t.Fatalf("advice length = %d, want capped at 5", len(got))
	}
}

func TestRecommendationsUnadvisedTypes(t *testing.T) {
	got := Recommendations(mkTypedEvents(event.HeadTilt, event.SuspiciousMovement))
	if len(got) != 0 {
		t.Errorf("advice = %v, want none for unadvised types", got)
	}
}
