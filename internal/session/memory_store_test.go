package session

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreCreateAndLookup(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	sess := Session{SessionID: "s1", TokenHash: "hash1", Status: StatusActive, ExpiresAt: time.Now().Add(time.Hour)}

	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	got, err := store.LookupByTokenHash(ctx, "hash1")
	if err != nil {
		t.Fatalf("LookupByTokenHash() error = %v", err)
	}
	if got.SessionID != "s1" {
		t.Errorf("SessionID = %q, want s1", got.SessionID)
	}
}

func TestMemoryStoreLookupNotFound(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.LookupByTokenHash(context.Background(), "missing"); err != ErrNotFound {
		t.Errorf("LookupByTokenHash() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreRevoke(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.Create(ctx, Session{SessionID: "s1", TokenHash: "h1", Status: StatusActive})

	if err := store.Revoke(ctx, "s1"); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	got, _ := store.LookupByTokenHash(ctx, "h1")
	if got.Status != StatusRevoked {
		t.Errorf("Status after Revoke() = %q, want revoked", got.Status)
	}
}

func TestMemoryStoreRotateIsAtomicFromCallerPerspective(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	old := Session{SessionID: "old", TokenHash: "old-hash", Status: StatusActive, ExpiresAt: time.Now().Add(time.Hour)}
	store.Create(ctx, old)

	next := Session{SessionID: "new", TokenHash: "new-hash", Status: StatusActive, ExpiresAt: time.Now().Add(time.Hour)}
	if err := store.Rotate(ctx, "old", next); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}

	oldAfter, _ := store.LookupByTokenHash(ctx, "old-hash")
	if oldAfter.Status != StatusRevoked {
		t.Error("old session not revoked after Rotate()")
	}
	newAfter, err := store.LookupByTokenHash(ctx, "new-hash")
	if err != nil || newAfter.Status != StatusActive {
		t.Errorf("new session not active after Rotate(): err=%v status=%v", err, newAfter.Status)
	}
}

func TestMemoryStoreDeleteExpired(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.Create(ctx, Session{SessionID: "expired", TokenHash: "h1", ExpiresAt: time.Now().Add(-time.Hour)})
	store.Create(ctx, Session{SessionID: "live", TokenHash: "h2", ExpiresAt: time.Now().Add(time.Hour)})

	n, err := store.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteExpired() removed %d, want 1", n)
	}
	if _, err := store.LookupByTokenHash(ctx, "h2"); err != nil {
		t.Error("live session was incorrectly removed")
	}
}

func TestMemoryStorePurgeRevokedOlderThan(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	old := Session{SessionID: "s1", TokenHash: "h1", Status: StatusRevoked, CreatedAt: time.Now().Add(-60 * 24 * time.Hour)}
	recent := Session{SessionID: "s2", TokenHash: "h2", Status: StatusRevoked, CreatedAt: time.Now()}
	store.Create(ctx, old)
	store.Create(ctx, recent)

	n, err := store.PurgeRevokedOlderThan(ctx, time.Now().Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("PurgeRevokedOlderThan() error = %v", err)
	}
	if n != 1 {
		t.Errorf("PurgeRevokedOlderThan() removed %d, want 1", n)
	}
}
