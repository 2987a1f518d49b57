package broadcast

import (
	"errors"
	"sync"
	"testing"

	"github.com/mkade/foreman/internal/protocol"
)

// fakeSink records delivered events.
type fakeSink struct {
	id   string
	mu   sync.Mutex
	got  []protocol.Event
	fail bool
}

func (f *fakeSink) ID() string { return f.id }

func (f *fakeSink) Send(ev protocol.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("send failed")
	}
	f.got = append(f.got, ev)
	return nil
}

func (f *fakeSink) events() []protocol.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Event(nil), f.got...)
}

func TestBroadcastReachesAllSinks(t *testing.T) {
	b := New()
	c1 := &fakeSink{id: "c1"}
	c2 := &fakeSink{id: "c2"}
	b.RegisterSink(c1)
	b.RegisterSink(c2)

	b.Broadcast(protocol.EventDaemonReady, nil, "")

	if len(c1.events()) != 1 || len(c2.events()) != 1 {
		t.Errorf("deliveries = %d/%d, want 1/1", len(c1.events()), len(c2.events()))
	}
}

func TestBroadcastToSessionScoping(t *testing.T) {
	b := New()
	c1 := &fakeSink{id: "c1"}
	c2 := &fakeSink{id: "c2"}
	c3 := &fakeSink{id: "c3"}
	b.RegisterSink(c1)
	b.RegisterSink(c2)
	b.RegisterSink(c3)

	b.SubscribeToSession("c1", "s1")
	b.SubscribeToSession("c2", "s1")
	b.SubscribeToSession("c3", "s2")

	b.BroadcastToSession("s1", protocol.EventWorkflowProgress, map[string]int{"pct": 50})

	if len(c1.events()) != 1 || len(c2.events()) != 1 {
		t.Errorf("s1 subscribers got %d/%d deliveries, want 1/1", len(c1.events()), len(c2.events()))
	}
	if len(c3.events()) != 0 {
		t.Errorf("s2-only subscriber received %d s1 events", len(c3.events()))
	}
	if ev := c1.events()[0]; ev.SessionID != "s1" {
		t.Errorf("event session = %q, want s1", ev.SessionID)
	}
}

func TestBroadcastRoutesScopedEventsToSubscribers(t *testing.T) {
	b := New()
	subscribed := &fakeSink{id: "c1"}
	other := &fakeSink{id: "c2"}
	b.RegisterSink(subscribed)
	b.RegisterSink(other)
	b.SubscribeToSession("c1", "s1")

	// A session-scoped event name with a session id routes through the
	// subscriber set even via the broad entry point.
	b.Broadcast(protocol.EventTaskReady, map[string]string{"taskId": "t1"}, "s1")
	if len(subscribed.events()) != 1 {
		t.Errorf("subscriber deliveries = %d, want 1", len(subscribed.events()))
	}
	if len(other.events()) != 0 {
		t.Errorf("unsubscribed sink received %d scoped events", len(other.events()))
	}

	// System-scoped events still reach every sink.
	b.Broadcast(protocol.EventDaemonReady, nil, "s1")
	if len(other.events()) != 1 {
		t.Errorf("system event deliveries to c2 = %d, want 1", len(other.events()))
	}
}

func TestBroadcastToSessionFallback(t *testing.T) {
	b := New()
	c1 := &fakeSink{id: "c1"}
	b.RegisterSink(c1)

	// No subscribers for s1: event falls back to all sinks.
	b.BroadcastToSession("s1", protocol.EventTaskCompleted, nil)

	if len(c1.events()) != 1 {
		t.Errorf("fallback deliveries = %d, want 1", len(c1.events()))
	}
}

func TestSubscriptionSymmetry(t *testing.T) {
	b := New()
	b.SubscribeToSession("c1", "s1")
	b.SubscribeToSession("c1", "s2")
	b.SubscribeToSession("c2", "s1")

	check := func() {
		for _, conn := range []string{"c1", "c2"} {
			for _, sess := range b.Subscriptions(conn) {
				found := false
				for _, c := range b.Subscribers(sess) {
					if c == conn {
						found = true
					}
				}
				if !found {
					t.Errorf("edge %s<->%s missing from session index", conn, sess)
				}
			}
		}
	}
	check()

	b.UnsubscribeFromSession("c1", "s1")
	check()
	if subs := b.Subscribers("s1"); len(subs) != 1 || subs[0] != "c2" {
		t.Errorf("s1 subscribers = %v, want [c2]", subs)
	}
}

func TestUnsubscribeConnectionFullCleanup(t *testing.T) {
	b := New()
	c1 := &fakeSink{id: "c1"}
	b.RegisterSink(c1)
	b.SubscribeToSession("c1", "s1")
	b.SubscribeToSession("c1", "s2")

	b.UnsubscribeConnection("c1")

	if subs := b.Subscriptions("c1"); len(subs) != 0 {
		t.Errorf("connection subscriptions = %v, want none", subs)
	}
	for _, sess := range []string{"s1", "s2"} {
		if subs := b.Subscribers(sess); len(subs) != 0 {
			t.Errorf("session %s subscribers = %v, want none", sess, subs)
		}
	}
	if b.Stats().Sinks != 0 {
		t.Error("sink should be removed on disconnect")
	}
}

func TestUnsubscribeSessionFullCleanup(t *testing.T) {
	b := New()
	b.SubscribeToSession("c1", "s1")
	b.SubscribeToSession("c2", "s1")
	b.SubscribeToSession("c2", "s2")

	b.UnsubscribeSession("s1")

	if subs := b.Subscribers("s1"); len(subs) != 0 {
		t.Errorf("s1 subscribers = %v, want none", subs)
	}
	if subs := b.Subscriptions("c1"); len(subs) != 0 {
		t.Errorf("c1 subscriptions = %v, want none", subs)
	}
	if subs := b.Subscriptions("c2"); len(subs) != 1 || subs[0] != "s2" {
		t.Errorf("c2 subscriptions = %v, want [s2]", subs)
	}
}

func TestFailingSinkDoesNotBlockOthers(t *testing.T) {
	b := New()
	bad := &fakeSink{id: "bad", fail: true}
	good := &fakeSink{id: "good"}
	b.RegisterSink(bad)
	b.RegisterSink(good)

	b.Broadcast(protocol.EventDaemonReady, nil, "")

	if len(good.events()) != 1 {
		t.Error("healthy sink should still receive the event")
	}
}

func TestStats(t *testing.T) {
	b := New()
	c1 := &fakeSink{id: "c1"}
	b.RegisterSink(c1)

	b.Broadcast(protocol.EventDaemonReady, nil, "")
	b.Broadcast(protocol.EventDaemonReady, nil, "")
	b.BroadcastToSession("s1", protocol.EventTaskCompleted, nil)

	st := b.Stats()
	if st.TotalBroadcasts != 3 {
		t.Errorf("total = %d, want 3", st.TotalBroadcasts)
	}
	if st.PerEvent[protocol.EventDaemonReady] != 2 {
		t.Errorf("daemon.ready count = %d, want 2", st.PerEvent[protocol.EventDaemonReady])
	}
	if st.LastEvent != protocol.EventTaskCompleted {
		t.Errorf("last event = %q, want %q", st.LastEvent, protocol.EventTaskCompleted)
	}
	if st.LastEventAt.IsZero() {
		t.Error("last event timestamp should be set")
	}
}
