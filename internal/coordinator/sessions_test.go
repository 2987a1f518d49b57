package coordinator

import (
	"testing"
	"time"

	"github.com/mkade/foreman/internal/state"
	"github.com/mkade/foreman/pkg/models"
)

func newSessionManager(t *testing.T) *SessionManager {
	t.Helper()
	db, err := state.Open(state.Path(t.TempDir()))
	if err != nil {
		t.Fatalf("state.Open() error = %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSessionManager(db)
}

func TestGetReturnsDetachedCopy(t *testing.T) {
	m := newSessionManager(t)
	s, err := m.Create("isolate reads")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got.Status = models.SessionStatusCancelled
	got.Requirement = "scribbled"
	got.Revisions = append(got.Revisions, models.PlanRevision{Version: 99})

	stored, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.Status != models.SessionStatusDebating {
		t.Errorf("caller mutation leaked into registry: status = %s", stored.Status)
	}
	if stored.Requirement != "isolate reads" {
		t.Errorf("caller mutation leaked into registry: requirement = %q", stored.Requirement)
	}
	if len(stored.Revisions) != 0 {
		t.Errorf("caller mutation leaked into registry: %d revisions", len(stored.Revisions))
	}
}

func TestListReturnsDetachedCopies(t *testing.T) {
	m := newSessionManager(t)
	if _, err := m.Create("first"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	for _, s := range m.List() {
		s.Requirement = "clobbered"
	}
	if m.List()[0].Requirement != "first" {
		t.Error("List() handed out a live session pointer")
	}
}

func TestAttachRevisionKeepsReturnedHistoryDetached(t *testing.T) {
	m := newSessionManager(t)
	s, err := m.Create("revise the plan")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := m.AttachRevision(s.ID, models.PlanRevision{
		Version:   1,
		Path:      "plans/rev1.md",
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("AttachRevision() error = %v", err)
	}
	got.Revisions[0].Path = "plans/hijacked.md"

	stored, _ := m.Get(s.ID)
	if stored.Revisions[0].Path != "plans/rev1.md" {
		t.Errorf("revision history shared with caller: %q", stored.Revisions[0].Path)
	}
}
