package locator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

type svc struct {
	name   string
	log    *[]string
	failOn bool
}

func (s *svc) Shutdown(context.Context) error {
	*s.log = append(*s.log, s.name)
	if s.failOn {
		return errors.New("stuck")
	}
	return nil
}

func TestGet_NotFound(t *testing.T) {
	l := New()
	if _, err := l.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRegisterInstance(t *testing.T) {
	l := New()
	l.RegisterInstance("a", 42)
	v, err := l.Get("a")
	if err != nil || v != 42 {
		t.Fatalf("expected 42, got %v (%v)", v, err)
	}
	if !l.Has("a") {
		t.Error("expected Has to report true")
	}
}

func TestRegisterFactory_LazySingleton(t *testing.T) {
	l := New()
	var builds atomic.Int32
	l.RegisterFactory("s", func() (any, error) {
		builds.Add(1)
		return &svc{name: "s"}, nil
	})
	if builds.Load() != 0 {
		t.Fatal("factory invoked before first Get")
	}

	var wg sync.WaitGroup
	results := make([]any, 8)
	for i := range results {
		wg.Go(func() { results[i], _ = l.Get("s") })
	}
	wg.Wait()
	if builds.Load() != 1 {
		t.Errorf("expected 1 build, got %d", builds.Load())
	}
	for _, r := range results {
		if r != results[0] {
			t.Fatal("expected the same instance from every Get")
		}
	}
}

func TestRegisterFactory_ErrorCached(t *testing.T) {
	l := New()
	calls := 0
	l.RegisterFactory("bad", func() (any, error) { calls++; return nil, errors.New("no disk") })
	if _, err := l.Get("bad"); err == nil {
		t.Fatal("expected build error")
	}
	if _, err := l.Get("bad"); err == nil || calls != 1 {
		t.Errorf("expected cached failure, calls=%d err=%v", calls, err)
	}
}

func TestResolve(t *testing.T) {
	l := New()
	l.RegisterInstance("n", 7)
	if v, err := Resolve[int](l, "n"); err != nil || v != 7 {
		t.Fatalf("expected 7, got %v (%v)", v, err)
	}
	if _, err := Resolve[string](l, "n"); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch, got %v", err)
	}
}

func TestUnregisterAndNames(t *testing.T) {
	l := New()
	l.RegisterInstance("a", 1)
	l.RegisterFactory("b", func() (any, error) { return 2, nil })
	l.RegisterInstance("c", 3)
	if !l.Unregister("a") || l.Unregister("a") {
		t.Error("unexpected Unregister result")
	}
	got := l.Names()
	if fmt.Sprint(got) != "[{b factory false} {c instance true}]" {
		t.Errorf("unexpected names %v", got)
	}
}

func TestShutdownAll_ReverseOrderBestEffort(t *testing.T) {
	var calls []string
	l := New()
	l.RegisterInstance("first", &svc{name: "first", log: &calls})
	l.RegisterInstance("plain", 5)
	l.RegisterInstance("second", &svc{name: "second", log: &calls, failOn: true})
	l.RegisterFactory("unbuilt", func() (any, error) { return &svc{name: "unbuilt", log: &calls}, nil })

	err := l.ShutdownAll(context.Background())
	if err == nil {
		t.Fatal("expected joined error from failing service")
	}
	if fmt.Sprint(calls) != "[second first]" {
		t.Errorf("expected [second first], got %v", calls)
	}
}
