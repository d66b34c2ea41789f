package realtime

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
)

// fakeSender records payloads and can be told to fail.
type fakeSender struct {
	mu       sync.Mutex
	payloads [][]byte
	fail     bool
	closed   bool
}

func (f *fakeSender) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("send buffer full")
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeSender) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeSender) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func testRegistry() *Registry {
	return NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSendToSessionIsolation(t *testing.T) {
	r := testRegistry()

	a1, a2 := &fakeSender{}, &fakeSender{}
	b1, b2 := &fakeSender{}, &fakeSender{}
	r.Register("ses_a", a1)
	r.Register("ses_a", a2)
	r.Register("ses_b", b1)
	r.Register("ses_b", b2)

	r.SendToSession("ses_a", []byte("update-a"))

	for _, s := range []*fakeSender{a1, a2} {
		if s.count() != 1 {
			t.Errorf("session a viewer got %d payloads, want 1", s.count())
		}
	}
	for _, s := range []*fakeSender{b1, b2} {
		if s.count() != 0 {
			t.Errorf("session b viewer got %d payloads, want 0", s.count())
		}
	}
}

func TestSendToSessionNoViewersIsNoop(t *testing.T) {
	r := testRegistry()
	r.SendToSession("ses_ghost", []byte("hello"))

	if r.ConnectionCount() != 0 {
		t.Error("no connections should exist")
	}
}

func TestFailedSendEvictsOnlyThatConnection(t *testing.T) {
	r := testRegistry()

	good := &fakeSender{}
	bad := &fakeSender{fail: true}
	r.Register("ses_a", good)
	badID := r.Register("ses_a", bad)

	r.SendToSession("ses_a", []byte("one"))

	if good.count() != 1 {
		t.Errorf("healthy viewer got %d payloads, want 1", good.count())
	}
	if !bad.isClosed() {
		t.Error("failed viewer should be closed")
	}
	if _, ok := r.SessionFor(badID); ok {
		t.Error("failed viewer should be unregistered")
	}
	if r.SessionConnectionCount("ses_a") != 1 {
		t.Errorf("remaining count = %d, want 1", r.SessionConnectionCount("ses_a"))
	}

	// Later sends keep flowing to the survivor.
	r.SendToSession("ses_a", []byte("two"))
	if good.count() != 2 {
		t.Errorf("healthy viewer got %d payloads, want 2", good.count())
	}
}

func TestBroadcastAll(t *testing.T) {
	r := testRegistry()

	a, b := &fakeSender{}, &fakeSender{}
	r.Register("ses_a", a)
	r.Register("ses_b", b)

	r.BroadcastAll([]byte("notice"))

	if a.count() != 1 || b.count() != 1 {
		t.Errorf("counts = (%d, %d), want (1, 1)", a.count(), b.count())
	}
}

func TestUnregisterIdempotent(t *testing.T) {
	r := testRegistry()

	s := &fakeSender{}
	id := r.Register("ses_a", s)

	r.Unregister(id)
	r.Unregister(id) // second removal is a no-op
	r.Unregister(ConnID(9999))

	if r.ConnectionCount() != 0 {
		t.Errorf("count = %d, want 0", r.ConnectionCount())
	}
	if r.ConnectedSessionCount() != 0 {
		t.Error("empty session should be pruned from the forward index")
	}
}

func TestUnregisterSessionClosesAll(t *testing.T) {
	r := testRegistry()

	a1, a2, b := &fakeSender{}, &fakeSender{}, &fakeSender{}
	r.Register("ses_a", a1)
	r.Register("ses_a", a2)
	r.Register("ses_b", b)

	r.UnregisterSession("ses_a")

	if !a1.isClosed() || !a2.isClosed() {
		t.Error("session a viewers should be closed")
	}
	if b.isClosed() {
		t.Error("session b viewer should be untouched")
	}
	if r.SessionConnectionCount("ses_a") != 0 {
		t.Error("session a should have no connections")
	}

	// Unknown session is a no-op.
	r.UnregisterSession("ses_ghost")
}

func TestRebind(t *testing.T) {
	r := testRegistry()

	s := &fakeSender{}
	id := r.Register("ses_a", s)
	r.Rebind(id, "ses_b")

	if got, _ := r.SessionFor(id); got != "ses_b" {
		t.Errorf("SessionFor = %q, want ses_b", got)
	}

	r.SendToSession("ses_a", []byte("a"))
	r.SendToSession("ses_b", []byte("b"))
	if s.count() != 1 {
		t.Errorf("payload count = %d, want 1 (only ses_b)", s.count())
	}

	// Rebinding an unknown connection is a no-op.
	r.Rebind(ConnID(9999), "ses_c")
}

func TestIndexesStayConsistent(t *testing.T) {
	r := testRegistry()

	var ids []ConnID
	for i := 0; i < 10; i++ {
		ids = append(ids, r.Register("ses_a", &fakeSender{}))
	}
	for _, id := range ids[:5] {
		r.Unregister(id)
	}

	if r.ConnectionCount() != 5 {
		t.Errorf("reverse index size = %d, want 5", r.ConnectionCount())
	}
	if r.SessionConnectionCount("ses_a") != 5 {
		t.Errorf("forward index size = %d, want 5", r.SessionConnectionCount("ses_a"))
	}
	for _, id := range ids[5:] {
		if got, ok := r.SessionFor(id); !ok || got != "ses_a" {
			t.Errorf("SessionFor(%d) = (%q, %v)", id, got, ok)
		}
	}
}

func TestStats(t *testing.T) {
	r := testRegistry()
	r.Register("ses_a", &fakeSender{})
	r.Register("ses_a", &fakeSender{})
	r.SendToSession("ses_a", []byte("x"))

	stats := r.Stats()
	if stats["connections"] != 2 {
		t.Errorf("connections = %v, want 2", stats["connections"])
	}
	if stats["connectedSessions"] != 1 {
		t.Errorf("connectedSessions = %v, want 1", stats["connectedSessions"])
	}
	if stats["totalSends"].(int64) != 2 {
		t.Errorf("totalSends = %v, want 2", stats["totalSends"])
	}
}
