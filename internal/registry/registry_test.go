package registry

import (
	"errors"
	"testing"

	"overlaycast/internal/logging"
)

// fakeSubscriber records deliveries and can be told to fail
type fakeSubscriber struct {
	received [][]byte
	fail     bool
	closed   bool
}

func (f *fakeSubscriber) Send(message []byte) error {
	if f.fail {
		return errors.New("send failed")
	}
	f.received = append(f.received, message)
	return nil
}

func (f *fakeSubscriber) Close() error {
	f.closed = true
	return nil
}

func newTestRegistry() *Registry {
	return New(logging.NewLogger())
}

func TestBroadcastIsolation(t *testing.T) {
	r := newTestRegistry()
	follow1 := &fakeSubscriber{}
	follow2 := &fakeSubscriber{}
	other := &fakeSubscriber{}
	r.Register("follow", follow1)
	r.Register("follow", follow2)
	r.Register("all", other)

	delivered, failed := r.Broadcast("follow", []byte("hi"))
	if delivered != 2 || failed != 0 {
		t.Fatalf("expected 2 delivered 0 failed, got %d/%d", delivered, failed)
	}
	if len(follow1.received) != 1 || len(follow2.received) != 1 {
		t.Fatalf("expected both follow subscribers to receive the message")
	}
	if len(other.received) != 0 {
		t.Fatalf("subscriber on another filter key must not receive the message")
	}
}

func TestBroadcastFaultIsolation(t *testing.T) {
	r := newTestRegistry()
	good1 := &fakeSubscriber{}
	bad := &fakeSubscriber{fail: true}
	good2 := &fakeSubscriber{}
	r.Register("k", good1)
	r.Register("k", bad)
	r.Register("k", good2)

	delivered, failed := r.Broadcast("k", []byte("msg"))
	if delivered != 2 || failed != 1 {
		t.Fatalf("expected 2 delivered 1 failed, got %d/%d", delivered, failed)
	}
	if len(good1.received) != 1 || len(good2.received) != 1 {
		t.Fatalf("healthy subscribers must still receive the message")
	}
	if !bad.closed {
		t.Fatalf("failed subscriber must be closed")
	}
	if r.Len("k") != 2 {
		t.Fatalf("failed subscriber must leave the registry, got %d", r.Len("k"))
	}

	// The dropped subscriber receives nothing on later broadcasts
	bad.fail = false
	r.Broadcast("k", []byte("again"))
	if len(bad.received) != 0 {
		t.Fatalf("dropped subscriber must not receive later broadcasts")
	}
}

func TestBroadcastUnknownFilterKey(t *testing.T) {
	r := newTestRegistry()
	delivered, failed := r.Broadcast("nobody", []byte("msg"))
	if delivered != 0 || failed != 0 {
		t.Fatalf("broadcast to unknown filter key must be a no-op")
	}
}

func TestUnregisterPrunesEmptyBucket(t *testing.T) {
	r := newTestRegistry()
	sub := &fakeSubscriber{}
	r.Register("solo", sub)
	if got := r.FilterKeys(); len(got) != 1 || got[0] != "solo" {
		t.Fatalf("expected [solo], got %v", got)
	}

	r.Unregister(sub)
	if got := r.FilterKeys(); len(got) != 0 {
		t.Fatalf("expected empty key set after last unregister, got %v", got)
	}

	// Unregistering twice is safe
	r.Unregister(sub)
}

func TestUnregisterKeepsSiblings(t *testing.T) {
	r := newTestRegistry()
	a := &fakeSubscriber{}
	b := &fakeSubscriber{}
	r.Register("k", a)
	r.Register("k", b)

	r.Unregister(a)
	if r.Len("k") != 1 {
		t.Fatalf("expected one subscriber left, got %d", r.Len("k"))
	}
	if _, _ = r.Broadcast("k", []byte("m")); len(b.received) != 1 {
		t.Fatalf("remaining subscriber must still receive broadcasts")
	}
	if len(a.received) != 0 {
		t.Fatalf("unregistered subscriber must not receive broadcasts")
	}
}

func TestStats(t *testing.T) {
	r := newTestRegistry()
	r.Register("a", &fakeSubscriber{})
	r.Register("a", &fakeSubscriber{})
	r.Register("b", &fakeSubscriber{})

	stats := r.Stats()
	if stats["a"] != 2 || stats["b"] != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}
}

func TestPerSubscriberOrdering(t *testing.T) {
	r := newTestRegistry()
	sub := &fakeSubscriber{}
	r.Register("k", sub)

	r.Broadcast("k", []byte("first"))
	r.Broadcast("k", []byte("second"))
	r.Broadcast("k", []byte("third"))

	want := []string{"first", "second", "third"}
	if len(sub.received) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(sub.received))
	}
	for i, msg := range want {
		if string(sub.received[i]) != msg {
			t.Fatalf("message %d out of order: got %q want %q", i, sub.received[i], msg)
		}
	}
}
