package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() error: %v", err)
		}
	})
	return s
}

func TestPutAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Put(ctx, Object{Name: "holiday-photos", Ownership: OwnershipOwned})
	if err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if created.ID == "" {
		t.Fatal("Put() assigned no ID")
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Name != "holiday-photos" || got.Ownership != OwnershipOwned {
		t.Errorf("Get() = %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not persisted")
	}
	if got.ExpiresAt != nil {
		t.Errorf("ExpiresAt = %v, want nil", got.ExpiresAt)
	}
}

func TestPutLinked(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Put(ctx, Object{
		Name:       "shared-folder",
		Ownership:  OwnershipLinked,
		LinkedPath: "exports/shared",
	})
	if err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LinkedPath != "exports/shared" {
		t.Errorf("LinkedPath = %q", got.LinkedPath)
	}
}

func TestPutValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cases := []Object{
		{Ownership: OwnershipOwned},                                              // no name
		{Name: "x", Ownership: "borrowed"},                                       // bad ownership
		{Name: "x", Ownership: OwnershipLinked, LinkedPath: "/absolute/path"},    // absolute link
		{Name: "x", Ownership: OwnershipLinked, LinkedPath: "../escapes"},        // escaping link
		{Name: "x", Ownership: OwnershipLinked},                                  // empty link
		{Name: "x", Ownership: OwnershipOwned, LinkedPath: "/should/not/be/set"}, // owned with link
	}
	for i, obj := range cases {
		if _, err := s.Put(ctx, obj); !errors.Is(err, ErrInvalidObject) {
			t.Errorf("case %d: error = %v, want ErrInvalidObject", i, err)
		}
	}
}

func TestGetUnknown(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestResolveExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	expired, err := s.Put(ctx, Object{Name: "old", Ownership: OwnershipOwned, ExpiresAt: &past})
	if err != nil {
		t.Fatal(err)
	}

	// Expired shares look exactly like unknown ones.
	if _, err := s.Resolve(ctx, expired.ID, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(expired) error = %v, want ErrNotFound", err)
	}

	// But Get still sees them, for the admin tooling.
	if _, err := s.Get(ctx, expired.ID); err != nil {
		t.Errorf("Get(expired) error = %v", err)
	}

	future := time.Now().Add(time.Hour)
	live, err := s.Put(ctx, Object{Name: "fresh", Ownership: OwnershipOwned, ExpiresAt: &future})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Resolve(ctx, live.ID, ""); err != nil {
		t.Errorf("Resolve(live) error = %v", err)
	}
}

func TestResolveUnlistedKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	obj, err := s.Put(ctx, Object{Name: "secret", Ownership: OwnershipOwned, UnlistedKey: "s3cret"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Resolve(ctx, obj.ID, ""); !errors.Is(err, ErrForbidden) {
		t.Errorf("Resolve without key error = %v, want ErrForbidden", err)
	}
	if _, err := s.Resolve(ctx, obj.ID, "wrong"); !errors.Is(err, ErrForbidden) {
		t.Errorf("Resolve with wrong key error = %v, want ErrForbidden", err)
	}
	if _, err := s.Resolve(ctx, obj.ID, "s3cret"); err != nil {
		t.Errorf("Resolve with key error = %v", err)
	}
}

func TestListVisibility(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	seed := []Object{
		{Name: "bravo", Ownership: OwnershipOwned},
		{Name: "alpha", Ownership: OwnershipOwned},
		{Name: "hidden", Ownership: OwnershipOwned, UnlistedKey: "k"},
		{Name: "stale", Ownership: OwnershipOwned, ExpiresAt: &past},
	}
	for _, obj := range seed {
		if _, err := s.Put(ctx, obj); err != nil {
			t.Fatal(err)
		}
	}

	visible, err := s.List(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(visible) != 2 {
		t.Fatalf("List() returned %d objects, want 2", len(visible))
	}
	if visible[0].Name != "alpha" || visible[1].Name != "bravo" {
		t.Errorf("List() order = %q, %q", visible[0].Name, visible[1].Name)
	}

	all, err := s.List(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Errorf("List(includeHidden) returned %d objects, want 4", len(all))
	}
}

func TestRemove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	obj, err := s.Put(ctx, Object{Name: "gone-soon", Ownership: OwnershipOwned})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Remove(ctx, obj.ID); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if _, err := s.Get(ctx, obj.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Remove() error = %v, want ErrNotFound", err)
	}
	if err := s.Remove(ctx, obj.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Remove() error = %v, want ErrNotFound", err)
	}
}

func TestSetExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	obj, err := s.Put(ctx, Object{Name: "temp", Ownership: OwnershipOwned})
	if err != nil {
		t.Fatal(err)
	}

	past := time.Now().Add(-time.Minute)
	if err := s.SetExpiry(ctx, obj.ID, &past); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Resolve(ctx, obj.ID, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve() after expiry error = %v, want ErrNotFound", err)
	}

	// Clearing the expiry revives the object.
	if err := s.SetExpiry(ctx, obj.ID, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Resolve(ctx, obj.ID, ""); err != nil {
		t.Errorf("Resolve() after clearing expiry error = %v", err)
	}

	if err := s.SetExpiry(ctx, "unknown", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetExpiry(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestPruneExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	if _, err := s.Put(ctx, Object{Name: "dead", Ownership: OwnershipOwned, ExpiresAt: &past}); err != nil {
		t.Fatal(err)
	}
	keep, err := s.Put(ctx, Object{Name: "alive", Ownership: OwnershipOwned})
	if err != nil {
		t.Fatal(err)
	}

	pruned, err := s.PruneExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if pruned != 1 {
		t.Errorf("PruneExpired() = %d, want 1", pruned)
	}
	if _, err := s.Get(ctx, keep.ID); err != nil {
		t.Errorf("surviving object gone: %v", err)
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "registry.db")
	ctx := context.Background()

	s1, err := New(ctx, dbPath)
	if err != nil {
		t.Fatal(err)
	}
	obj, err := s1.Put(ctx, Object{Name: "durable", Ownership: OwnershipOwned})
	if err != nil {
		t.Fatal(err)
	}
	if err := s1.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := New(ctx, dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := s2.Close(); err != nil {
			t.Errorf("Close() error: %v", err)
		}
	}()

	got, err := s2.Get(ctx, obj.ID)
	if err != nil {
		t.Fatalf("Get() after reopen error: %v", err)
	}
	if got.Name != "durable" {
		t.Errorf("Name = %q after reopen", got.Name)
	}
}
