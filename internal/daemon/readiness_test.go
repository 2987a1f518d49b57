package daemon

import (
	"testing"
	"time"

	"github.com/mkade/foreman/internal/protocol"
)

func TestReadinessReplaysRecordedProgress(t *testing.T) {
	r := newReadiness(10)

	r.set(StateCheckingDependencies, "checking dependencies")
	r.Record(protocol.Event{
		Event:     protocol.EventDaemonInitializing,
		Data:      map[string]interface{}{"recoveredSessions": 2},
		Timestamp: time.Now(),
	})
	r.set(StateReady, "listening")

	replay := r.Replay()
	if len(replay) != 3 {
		t.Fatalf("Replay() returned %d events, want 3", len(replay))
	}
	if replay[1].Event != protocol.EventDaemonInitializing {
		t.Errorf("recorded event out of order: %q", replay[1].Event)
	}
	data, ok := replay[1].Data.(map[string]interface{})
	if !ok || data["recoveredSessions"] != 2 {
		t.Errorf("recorded event data = %#v", replay[1].Data)
	}
}

func TestReadinessRingEvictsOldest(t *testing.T) {
	r := newReadiness(3)
	for i := 0; i < 5; i++ {
		r.Record(protocol.Event{Event: protocol.EventDaemonInitializing, Data: i})
	}
	replay := r.Replay()
	if len(replay) != 3 {
		t.Fatalf("Replay() returned %d events, want 3", len(replay))
	}
	if replay[0].Data != 2 || replay[2].Data != 4 {
		t.Errorf("ring kept wrong window: first=%v last=%v", replay[0].Data, replay[2].Data)
	}
}
