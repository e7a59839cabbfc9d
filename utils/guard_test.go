package utils

import (
	"context"
	"errors"
	"testing"
)

func TestGuard_RecoversPanic(t *testing.T) {
	err := Guard(func() error { panic("kaboom") })
	if err == nil {
		t.Fatal("expected error from panic")
	}
}

func TestGuard_PassesError(t *testing.T) {
	want := errors.New("x")
	if err := Guard(func() error { return want }); !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestSafeNotify_ContinuesAfterFailure(t *testing.T) {
	var calls []int
	cbs := []func() error{
		func() error { calls = append(calls, 0); panic("first") },
		func() error { calls = append(calls, 1); return errors.New("second") },
		func() error { calls = append(calls, 2); return nil },
	}
	SafeNotify(context.Background(), "test", cbs, func(cb func() error) error { return cb() })
	if len(calls) != 3 {
		t.Fatalf("expected all 3 callbacks invoked, got %v", calls)
	}
}
