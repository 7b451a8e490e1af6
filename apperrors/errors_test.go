package apperrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfWrapped(t *testing.T) {
	base := errors.New("boom")
	err := fmt.Errorf("outer: %w", Wrap(RemoteStore, "events.Create", base))

	if got := KindOf(err); got != RemoteStore {
		t.Fatalf("KindOf = %q, want %q", got, RemoteStore)
	}
	if !errors.Is(err, base) {
		t.Fatal("expected wrapped error to unwrap to base")
	}
	if !Is(err, RemoteStore) || Is(err, Validation) {
		t.Fatal("Is reported the wrong kind")
	}
}

func TestKindOfPlainError(t *testing.T) {
	if got := KindOf(errors.New("x")); got != Internal {
		t.Fatalf("KindOf = %q, want %q", got, Internal)
	}
	if Is(nil, Internal) {
		t.Fatal("nil error must not match any kind")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(Auth, "op", nil) != nil {
		t.Fatal("Wrap(nil) must be nil")
	}
}

func TestMessage(t *testing.T) {
	if got := Message(New(Validation, "op", "title is required")); got != "title is required" {
		t.Fatalf("Message = %q", got)
	}
	if got := Message(Wrap(RemoteAuth, "op", errors.New("email taken"))); got != "email taken" {
		t.Fatalf("Message = %q", got)
	}
}
