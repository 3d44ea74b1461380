package storage

import (
	"context"
	"errors"
	"testing"
)

func TestInMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	created, err := store.CreateSession(ctx, Session{Screen: ScreenHome})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if created.ID == "" {
		t.Fatal("CreateSession() did not assign an ID")
	}

	updated, err := store.UpdateSession(ctx, created.ID, func(s Session) (Session, error) {
		s.Screen = ScreenResult
		s.GeneratedImages = []string{"a", "b"}
		s.Analysis = &Analysis{Rating: 87, ImageGenerationPrompts: []string{"p1", "p2"}}
		return s, nil
	})
	if err != nil {
		t.Fatalf("UpdateSession() error = %v", err)
	}
	if updated.Screen != ScreenResult {
		t.Errorf("Screen = %q, want result", updated.Screen)
	}

	// Mutating the returned copy must not leak into the store.
	updated.GeneratedImages[0] = "mutated"
	updated.Analysis.ImageGenerationPrompts[0] = "mutated"

	got, err := store.GetSession(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.GeneratedImages[0] != "a" || got.Analysis.ImageGenerationPrompts[0] != "p1" {
		t.Errorf("stored session changed through a returned copy: %+v", got)
	}

	if err := store.DeleteSession(ctx, created.ID); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if _, err := store.GetSession(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSession() after delete error = %v, want ErrNotFound", err)
	}
}

func TestInMemoryStoreUpdateErrors(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	if _, err := store.UpdateSession(ctx, "missing", func(s Session) (Session, error) { return s, nil }); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateSession(missing) error = %v, want ErrNotFound", err)
	}

	created, _ := store.CreateSession(ctx, Session{Screen: ScreenHome})
	boom := errors.New("boom")
	if _, err := store.UpdateSession(ctx, created.ID, func(s Session) (Session, error) {
		s.Screen = ScreenLoading
		return s, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("UpdateSession() error = %v, want boom", err)
	}

	got, _ := store.GetSession(ctx, created.ID)
	if got.Screen != ScreenHome {
		t.Errorf("failed update was persisted: screen = %q", got.Screen)
	}
}

func TestNewStoreDefaultsToMemory(t *testing.T) {
	store, err := NewStore(context.Background(), Options{})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer store.Close()
	if _, ok := store.(*InMemoryStore); !ok {
		t.Errorf("NewStore() = %T, want *InMemoryStore", store)
	}
}
