package pool

import (
	"testing"
	"time"

	"github.com/mkade/foreman/internal/protocol"
	"github.com/mkade/foreman/pkg/models"
)

func TestNewPoolAllAvailable(t *testing.T) {
	p := New(3)
	defer p.Close()

	if p.Size() != 3 {
		t.Fatalf("size = %d, want 3", p.Size())
	}
	names := p.AvailableNames()
	if len(names) != 3 {
		t.Fatalf("available = %v, want 3 names", names)
	}
	if names[0] != "Alex" || names[1] != "Betty" || names[2] != "Cleo" {
		t.Errorf("roster order = %v", names)
	}
}

func TestAllocateReleaseCycle(t *testing.T) {
	p := New(3, WithCooldown(20*time.Millisecond))
	defer p.Close()

	if err := p.Allocate("Alex", "s1", "wf1", "engineer"); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if len(p.AvailableNames()) != 2 {
		t.Errorf("available = %d, want 2", len(p.AvailableNames()))
	}
	bench := p.Bench("")
	if len(bench) != 1 || bench[0].Name != "Alex" {
		t.Fatalf("bench = %v, want [Alex]", bench)
	}
	if bench[0].SessionID != "s1" || bench[0].WorkflowID != "wf1" || bench[0].RoleID != "engineer" {
		t.Errorf("allocation context lost: %+v", bench[0])
	}

	// Double allocation fails.
	if err := p.Allocate("Alex", "s2", "wf2", "engineer"); err == nil {
		t.Error("allocating a non-available agent should fail")
	}

	if err := p.Release("Alex", "completed"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	a, _ := p.Get("Alex")
	if a.State != models.AgentStateResting {
		t.Fatalf("state = %s, want resting", a.State)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		a, _ = p.Get("Alex")
		if a.State == models.AgentStateAvailable {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("agent never returned to available after cooldown")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAllocateStampsCoordinatorID(t *testing.T) {
	p := New(2, WithCooldown(time.Millisecond))
	defer p.Close()
	p.BindCoordinator("coordinator-7f")

	if err := p.Allocate("Alex", "s1", "wf1", "engineer"); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	a, _ := p.Get("Alex")
	if a.CoordinatorID != "coordinator-7f" {
		t.Fatalf("CoordinatorID = %q, want coordinator-7f", a.CoordinatorID)
	}

	if err := p.Release("Alex", "done"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	a, _ = p.Get("Alex")
	if a.CoordinatorID != "" {
		t.Errorf("CoordinatorID not cleared on release: %q", a.CoordinatorID)
	}
}

func TestMarkBusy(t *testing.T) {
	p := New(2)
	defer p.Close()

	if err := p.MarkBusy("Alex", "s1_T1"); err == nil {
		t.Error("MarkBusy on an available agent should fail")
	}

	p.Allocate("Alex", "s1", "wf1", "engineer")
	if err := p.MarkBusy("Alex", "s1_T1"); err != nil {
		t.Fatalf("MarkBusy: %v", err)
	}
	busy := p.BusyAgents()
	if len(busy) != 1 || busy[0].TaskID != "s1_T1" {
		t.Errorf("busy = %+v", busy)
	}
}

func TestPoolClosure(t *testing.T) {
	p := New(3, WithCooldown(time.Hour))
	defer p.Close()

	p.Allocate("Alex", "s1", "wf1", "engineer")
	p.MarkBusy("Alex", "s1_T1")
	p.Allocate("Betty", "s1", "wf2", "engineer")
	p.Release("Betty", "done")

	seen := map[models.AgentState]bool{}
	for _, a := range p.Agents() {
		if !a.State.Valid() {
			t.Errorf("agent %s in unknown state %q", a.Name, a.State)
		}
		seen[a.State] = true
	}
	counts := p.Counts()
	total := 0
	for _, n := range counts {
		total += n
	}
	if total != 3 {
		t.Errorf("state buckets total %d, want 3", total)
	}
	_ = seen
}

func TestResizeGrow(t *testing.T) {
	p := New(2)
	defer p.Close()

	added, removed, err := p.Resize(4)
	if err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if len(added) != 2 || len(removed) != 0 {
		t.Errorf("added=%v removed=%v", added, removed)
	}
	if p.Size() != 4 {
		t.Errorf("size = %d, want 4", p.Size())
	}
}

func TestResizeShrinkSkipsBusyAndAllocated(t *testing.T) {
	p := New(3)
	defer p.Close()

	p.Allocate("Alex", "s1", "wf1", "engineer")
	p.MarkBusy("Alex", "s1_T1")
	p.Allocate("Betty", "s1", "wf2", "engineer")

	// Only Cleo is removable; shrinking to 1 would need two removals.
	if _, _, err := p.Resize(1); err == nil {
		t.Fatal("shrink should fail without enough removable agents")
	}

	_, removed, err := p.Resize(2)
	if err != nil {
		t.Fatalf("Resize(2): %v", err)
	}
	if len(removed) != 1 || removed[0] != "Cleo" {
		t.Errorf("removed = %v, want [Cleo]", removed)
	}
	for _, a := range p.Agents() {
		if a.Name == "Alex" && a.State != models.AgentStateBusy {
			t.Error("busy agent must survive shrink")
		}
		if a.Name == "Betty" && a.State != models.AgentStateAllocated {
			t.Error("allocated agent must survive shrink")
		}
	}
}

func TestReleaseAllBestEffort(t *testing.T) {
	p := New(3, WithCooldown(time.Hour))
	defer p.Close()

	p.Allocate("Alex", "s1", "wf1", "engineer")
	p.Allocate("Betty", "s1", "wf2", "engineer")
	p.MarkBusy("Betty", "s1_T1")

	released := p.ReleaseAll("shutdown")
	if len(released) != 2 {
		t.Fatalf("released = %v, want 2 agents", released)
	}
	for _, name := range released {
		a, _ := p.Get(name)
		if a.State != models.AgentStateResting {
			t.Errorf("agent %s state = %s, want resting", name, a.State)
		}
	}
}

func TestAllocateAny(t *testing.T) {
	p := New(1)
	defer p.Close()

	name, err := p.AllocateAny("s1", "wf1", "engineer")
	if err != nil {
		t.Fatalf("AllocateAny: %v", err)
	}
	if name != "Alex" {
		t.Errorf("name = %s, want Alex", name)
	}

	_, err = p.AllocateAny("s1", "wf2", "engineer")
	if err == nil {
		t.Fatal("expected Unavailable with an empty pool")
	}
	if protocol.CodeOf(err) != protocol.CodeUnavailable {
		t.Errorf("code = %s, want Unavailable", protocol.CodeOf(err))
	}
}

func TestAllocateUnknownRole(t *testing.T) {
	p := New(1)
	defer p.Close()

	if err := p.Allocate("Alex", "s1", "wf1", "astronaut"); err == nil {
		t.Error("allocating with an unknown role should fail")
	}
}

func TestOnAvailableCallback(t *testing.T) {
	ch := make(chan string, 1)
	p := New(1, WithCooldown(10*time.Millisecond), WithOnAvailable(func(name string) { ch <- name }))
	defer p.Close()

	p.Allocate("Alex", "s1", "wf1", "engineer")
	p.Release("Alex", "done")

	select {
	case name := <-ch:
		if name != "Alex" {
			t.Errorf("callback name = %s, want Alex", name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("onAvailable callback never fired")
	}
}
