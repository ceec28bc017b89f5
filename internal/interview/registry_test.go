package interview

import (
	"context"
	"testing"

	"github.com/MrWong99/kolloq/internal/question"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	store := newScript(t, []string{"s1"})
	factory := func(id string) *Controller {
		return NewController(id, store, &scriptedDetector{}, offlineGateway())
	}
	return NewRegistry(factory, nil, nil)
}

func TestRegistry_GetIsIdempotent(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	a := r.Get(context.Background(), "uid-1")
	b := r.Get(context.Background(), "uid-1")
	if a != b {
		t.Fatal("Get must return the same session for the same id")
	}
	if a.ID() != "uid-1" {
		t.Fatalf("session id = %q", a.ID())
	}
}

func TestRegistry_HasAndReset(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	if r.Has("uid-1") {
		t.Fatal("no session should exist yet")
	}
	r.Get(context.Background(), "uid-1")
	if !r.Has("uid-1") {
		t.Fatal("session should exist after Get")
	}

	r.Reset(context.Background(), "uid-1")
	if r.Has("uid-1") {
		t.Fatal("session should be gone after Reset")
	}
}

func TestRegistry_ResetDiscardsState(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	old := r.Get(context.Background(), "uid-1")
	old.End(context.Background())

	r.Reset(context.Background(), "uid-1")
	fresh := r.Get(context.Background(), "uid-1")
	if fresh == old {
		t.Fatal("Reset must discard the old controller")
	}
	if fresh.State() != StateRunning {
		t.Fatalf("fresh session state = %v, want running", fresh.State())
	}
}

func TestRegistry_StartAllocatesFreshSessions(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	id1, c1 := r.Start(context.Background())
	id2, c2 := r.Start(context.Background())

	if id1 == "" || id1 == id2 {
		t.Fatalf("ids = %q, %q, want distinct non-empty", id1, id2)
	}
	if c1 == c2 {
		t.Fatal("Start must build a controller per id")
	}
	if !r.Has(id1) || !r.Has(id2) {
		t.Fatal("started sessions should be registered")
	}
}

func TestRegistry_InfoListsSortedIDs(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	r.Get(context.Background(), "b")
	r.Get(context.Background(), "a")

	info := r.Info()
	if info.ActiveSessions != 2 {
		t.Fatalf("active = %d, want 2", info.ActiveSessions)
	}
	if info.IDs[0] != "a" || info.IDs[1] != "b" {
		t.Fatalf("ids = %v, want sorted", info.IDs)
	}
}

func TestRegistry_FactoryBindsCurrentScript(t *testing.T) {
	t.Parallel()

	store := question.NewStore(nil)
	factory := func(id string) *Controller {
		return NewController(id, store, &scriptedDetector{}, offlineGateway())
	}
	r := NewRegistry(factory, nil, nil)

	store.LoadScript([]string{"Domanda?"})
	store.SetMetadata(store.Generation(), 0, "tema", []string{"s1"}, nil, nil, nil, nil, nil)

	_, c := r.Start(context.Background())
	turn, err := c.CurrentQuestion(context.Background())
	if err != nil {
		t.Fatalf("CurrentQuestion: %v", err)
	}
	if turn.Type != TurnMain {
		t.Fatalf("turn = %+v, want the loaded question", turn)
	}
}
