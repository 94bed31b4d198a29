package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestMemoryStore_ExpiryAndSave(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	ctx := context.Background()

	if err := s.Create(ctx, "a", State{UserID: 1, Username: "alice"}, time.Minute); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	st, err := s.Get(ctx, "a")
	if err != nil || st.Username != "alice" {
		t.Fatalf("Get = %+v, %v", st, err)
	}

	if err := s.Save(ctx, "a", State{UserID: 1, Username: "alicia"}); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	now = now.Add(2 * time.Minute)

	if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired session, got %v", err)
	}

	if err := s.Save(ctx, "a", State{UserID: 1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Save must not resurrect an expired id, got %v", err)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.Create(ctx, "a", State{Flashes: []Flash{{Category: "info", Message: "hi"}}}, time.Minute)

	st, _ := s.Get(ctx, "a")
	st.Flashes[0].Message = "mutated"

	again, _ := s.Get(ctx, "a")
	if again.Flashes[0].Message != "hi" {
		t.Fatalf("store leaked internal slice: %+v", again.Flashes)
	}
}

func TestMemoryStore_Sweep(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	_ = s.Create(ctx, "old", State{}, time.Second)
	now = now.Add(time.Hour)

	for i := 0; i < sweepEvery; i++ {
		_ = s.Create(ctx, fmt.Sprintf("s%d", i), State{}, time.Hour)
	}

	if _, ok := s.m["old"]; ok {
		t.Fatalf("expected expired entry to be swept")
	}
}
