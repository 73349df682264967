package directory

import (
	"context"
	"errors"
	"testing"
)

// TestUpsertThenGetRoundTrip verifies a stored key can be fetched back for
// the same username.
func TestUpsertThenGetRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	stored, err := store.Upsert(ctx, "alice", "bG9uZ2tleQ==")
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if stored.Username != "alice" || stored.PublicKeyB64 != "bG9uZ2tleQ==" {
		t.Errorf("stored record = %+v", stored)
	}
	if stored.UpdatedAt.IsZero() {
		t.Error("upsert did not set the timestamp")
	}

	fetched, err := store.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if fetched.PublicKeyB64 != "bG9uZ2tleQ==" {
		t.Errorf("fetched key = %q, want bG9uZ2tleQ==", fetched.PublicKeyB64)
	}
}

// TestUpsertOverwritesExistingKey verifies a second upload replaces the
// stored key material rather than appending.
func TestUpsertOverwritesExistingKey(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Upsert(ctx, "alice", "oldkey"); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	if _, err := store.Upsert(ctx, "alice", "newkey"); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	rec, err := store.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if rec.PublicKeyB64 != "newkey" {
		t.Errorf("key material = %q, want newkey", rec.PublicKeyB64)
	}
}

// TestGetUnknownUsernameNotFound verifies a lookup for a username with no
// record fails with ErrNotFound rather than returning an empty record.
func TestGetUnknownUsernameNotFound(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestUpsertMissingFieldsStoresNothing verifies validation failures reject
// the upsert and leave the store untouched.
func TestUpsertMissingFieldsStoresNothing(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	cases := []struct{ username, key string }{
		{"", "somekey"},
		{"bob", ""},
		{"", ""},
	}

	for _, c := range cases {
		if _, err := store.Upsert(ctx, c.username, c.key); !errors.Is(err, ErrMissingFields) {
			t.Errorf("Upsert(%q, %q): expected ErrMissingFields, got %v", c.username, c.key, err)
		}
	}

	if _, err := store.Get(ctx, "bob"); !errors.Is(err, ErrNotFound) {
		t.Errorf("rejected upsert left a record behind: %v", err)
	}
}
