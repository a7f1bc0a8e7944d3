package artifact

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryArchiveRoundTrip(t *testing.T) {
	a := NewMemoryArchive()
	ctx := context.Background()

	if err := a.Put(ctx, "conv-1", "req-1/input.txt", []byte("Error: boom")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := a.Get(ctx, "conv-1", "req-1/input.txt")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "Error: boom" {
		t.Fatalf("unexpected content %q", got)
	}
}

func TestMemoryArchiveNotFound(t *testing.T) {
	a := NewMemoryArchive()
	if _, err := a.Get(context.Background(), "conv-1", "missing.txt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryArchiveListIsScopedAndSorted(t *testing.T) {
	a := NewMemoryArchive()
	ctx := context.Background()
	_ = a.Put(ctx, "conv-1", "req-2/input.txt", []byte("b"))
	_ = a.Put(ctx, "conv-1", "req-1/input.txt", []byte("a"))
	_ = a.Put(ctx, "conv-2", "req-9/input.txt", []byte("c"))

	names, err := a.List(ctx, "conv-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 2 || names[0] != "req-1/input.txt" || names[1] != "req-2/input.txt" {
		t.Fatalf("unexpected listing %v", names)
	}
}

func TestMemoryArchiveRejectsEmptyKeys(t *testing.T) {
	a := NewMemoryArchive()
	if err := a.Put(context.Background(), "", "input.txt", nil); err == nil {
		t.Fatalf("expected error for empty conversation id")
	}
	if err := a.Put(context.Background(), "conv-1", "", nil); err == nil {
		t.Fatalf("expected error for empty name")
	}
}
