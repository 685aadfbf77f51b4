package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"switchboard/internal/domain"
)

type fakeAgent struct {
	name string
	kind domain.AgentKind
}

func (f *fakeAgent) Name() string                       { return f.name }
func (f *fakeAgent) Kind() domain.AgentKind             { return f.kind }
func (f *fakeAgent) CanHandle(_ *domain.Request) bool   { return true }
func (f *fakeAgent) Handle(_ context.Context, _ *domain.Request) (*domain.AgentResult, error) {
	return &domain.AgentResult{Success: true}, nil
}

func TestRegisterAndGet(t *testing.T) {
	r := New(nil)
	if err := r.Register(&fakeAgent{name: "analyzer", kind: domain.KindAnalyzer}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	got, err := r.Get("analyzer")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name() != "analyzer" {
		t.Errorf("Name = %q, want %q", got.Name(), "analyzer")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := New(nil)
	a := &fakeAgent{name: "analyzer", kind: domain.KindAnalyzer}
	if err := r.Register(a); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(a); !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestRegisterInvalid(t *testing.T) {
	r := New(nil)
	if err := r.Register(nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("nil agent: expected ErrInvalidInput, got %v", err)
	}
	if err := r.Register(&fakeAgent{name: ""}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("empty name: expected ErrInvalidInput, got %v", err)
	}
}

func TestGetNotFound(t *testing.T) {
	r := New(nil)
	if _, err := r.Get("missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	r := New(nil)
	r.Register(&fakeAgent{name: "chat", kind: domain.KindChat})
	if err := r.Remove("chat"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := r.Get("chat"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound after remove, got %v", err)
	}
	if err := r.Remove("chat"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("double remove: expected ErrNotFound, got %v", err)
	}
}

func TestSnapshotPreservesRegistrationOrder(t *testing.T) {
	r := New(nil)
	r.Register(&fakeAgent{name: "chat", kind: domain.KindChat})
	r.Register(&fakeAgent{name: "analyzer", kind: domain.KindAnalyzer})
	r.Register(&fakeAgent{name: "refactor", kind: domain.KindRefactor})

	snap := r.Snapshot()
	want := []string{"chat", "analyzer", "refactor"}
	if len(snap) != len(want) {
		t.Fatalf("Snapshot len = %d, want %d", len(snap), len(want))
	}
	for i, name := range want {
		if snap[i].Name() != name {
			t.Errorf("Snapshot[%d] = %q, want %q", i, snap[i].Name(), name)
		}
	}
}

func TestFindByKind(t *testing.T) {
	r := New(nil)
	r.Register(&fakeAgent{name: "chat", kind: domain.KindChat})
	r.Register(&fakeAgent{name: "refactor-a", kind: domain.KindRefactor})
	r.Register(&fakeAgent{name: "refactor-b", kind: domain.KindRefactor})

	a, ok := r.FindByKind(domain.KindRefactor)
	if !ok {
		t.Fatal("FindByKind should find a refactor agent")
	}
	if a.Name() != "refactor-a" {
		t.Errorf("FindByKind = %q, want first registered %q", a.Name(), "refactor-a")
	}

	if _, ok := r.FindByKind(domain.KindFormatter); ok {
		t.Error("FindByKind should report false for absent kind")
	}
}

func TestConcurrentRegisterAndSnapshot(t *testing.T) {
	r := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			r.Register(&fakeAgent{name: fmt.Sprintf("agent-%d", n), kind: domain.KindChat})
			r.Snapshot()
			r.Len()
		}(i)
	}
	wg.Wait()
	if r.Len() != 20 {
		t.Errorf("Len = %d, want 20", r.Len())
	}
}
