package artifacts

import (
	"context"
	"strings"
	"testing"
)

func TestFileStorePutGetRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	data := []byte(`{"sale_id":"s_1","org_id":"org_1"}`)
	hash, err := store.Put(ctx, data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !strings.HasPrefix(hash, "sha256:") {
		t.Fatalf("hash missing sha256 prefix: %s", hash)
	}

	got, err := store.Get(ctx, hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("round trip mismatch: %q", got)
	}
}

func TestFileStorePutIsIdempotent(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	h1, err := store.Put(ctx, []byte("same payload"))
	if err != nil {
		t.Fatalf("first Put: %v", err)
	}
	h2, err := store.Put(ctx, []byte("same payload"))
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("hashes differ: %s vs %s", h1, h2)
	}
}

func TestFileStoreExistsAndDelete(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	hash, err := store.Put(ctx, []byte("ephemeral"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	ok, err := store.Exists(ctx, hash)
	if err != nil || !ok {
		t.Fatalf("Exists = (%v, %v), want (true, nil)", ok, err)
	}

	if err := store.Delete(ctx, hash); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	ok, err = store.Exists(ctx, hash)
	if err != nil || ok {
		t.Fatalf("Exists after delete = (%v, %v), want (false, nil)", ok, err)
	}

	// Deleting a missing artifact is not an error.
	if err := store.Delete(ctx, hash); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestFileStoreRejectsMalformedHash(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	for _, hash := range []string{"", "abc123", "sha256:", "sha256:not-hex", "md5:deadbeef"} {
		if _, err := store.Get(ctx, hash); err == nil {
			t.Errorf("Get(%q): expected error", hash)
		}
		if _, err := store.Exists(ctx, hash); err == nil {
			t.Errorf("Exists(%q): expected error", hash)
		}
	}
}

func TestFileStoreGetMissing(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	_, err = store.Get(context.Background(), "sha256:"+strings.Repeat("ab", 32))
	if err == nil {
		t.Fatal("expected error for missing artifact")
	}
}
