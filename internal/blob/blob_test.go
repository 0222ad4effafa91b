package blob

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"nrelay/internal/config"
	"nrelay/internal/relay"
)

const testChecksum = "cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc"

// storeUnderTest runs the shared BlobStore contract against an implementation.
func storeUnderTest(t *testing.T, store relay.BlobStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("put and get", func(t *testing.T) {
		content := "hello blob"
		err := store.Put(ctx, testChecksum, strings.NewReader(content), int64(len(content)))
		if err != nil {
			t.Fatalf("Put: %v", err)
		}

		var buf bytes.Buffer
		if err := store.Get(ctx, testChecksum, &buf); err != nil {
			t.Fatalf("Get: %v", err)
		}
		if buf.String() != content {
			t.Errorf("Get = %q, want %q", buf.String(), content)
		}
	})

	t.Run("put is idempotent", func(t *testing.T) {
		content := "hello blob"
		err := store.Put(ctx, testChecksum, strings.NewReader(content), int64(len(content)))
		if err != nil {
			t.Fatalf("second Put: %v", err)
		}
	})

	t.Run("size mismatch rejected", func(t *testing.T) {
		err := store.Put(ctx, "d"+testChecksum[1:], strings.NewReader("short"), 1000)
		if err == nil {
			t.Error("Put with wrong size succeeded")
		}
	})

	t.Run("exists", func(t *testing.T) {
		ok, err := store.Exists(ctx, testChecksum)
		if err != nil {
			t.Fatalf("Exists: %v", err)
		}
		if !ok {
			t.Error("stored blob reported absent")
		}

		ok, err = store.Exists(ctx, "e"+testChecksum[1:])
		if err != nil {
			t.Fatalf("Exists: %v", err)
		}
		if ok {
			t.Error("absent blob reported present")
		}
	})

	t.Run("get missing", func(t *testing.T) {
		var buf bytes.Buffer
		if err := store.Get(ctx, "e"+testChecksum[1:], &buf); err == nil {
			t.Error("Get of missing blob succeeded")
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := store.Delete(ctx, testChecksum); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		ok, err := store.Exists(ctx, testChecksum)
		if err != nil {
			t.Fatalf("Exists: %v", err)
		}
		if ok {
			t.Error("deleted blob still present")
		}

		// Deleting again is a no-op.
		if err := store.Delete(ctx, testChecksum); err != nil {
			t.Errorf("second Delete: %v", err)
		}
	})

	t.Run("validate setup", func(t *testing.T) {
		if err := store.ValidateSetup(ctx); err != nil {
			t.Errorf("ValidateSetup: %v", err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	storeUnderTest(t, NewMemoryStore())
}

func TestFileSystemStore(t *testing.T) {
	store, err := NewFileSystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemStore: %v", err)
	}
	storeUnderTest(t, store)
}

func TestFileSystemStore_BadRoot(t *testing.T) {
	if _, err := NewFileSystemStore("/proc/nonexistent/blob-root"); err == nil {
		t.Error("expected error creating store under unwritable root")
	}
}

func TestNewStoreFromConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		store, err := NewStoreFromConfig(ctx, config.BlobConfig{Type: "memory"})
		if err != nil {
			t.Fatalf("NewStoreFromConfig: %v", err)
		}
		if _, ok := store.(*MemoryStore); !ok {
			t.Errorf("store type = %T, want *MemoryStore", store)
		}
	})

	t.Run("filesystem requires root", func(t *testing.T) {
		if _, err := NewStoreFromConfig(ctx, config.BlobConfig{Type: "filesystem"}); err == nil {
			t.Error("expected error for filesystem store without fs_root")
		}
	})

	t.Run("s3 requires bucket", func(t *testing.T) {
		if _, err := NewStoreFromConfig(ctx, config.BlobConfig{Type: "s3"}); err == nil {
			t.Error("expected error for s3 store without bucket")
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		if _, err := NewStoreFromConfig(ctx, config.BlobConfig{Type: "tape"}); err == nil {
			t.Error("expected error for unknown blob store type")
		}
	})
}

func TestS3Store_Key(t *testing.T) {
	s := &S3Store{bucket: "b", prefix: ""}
	if got := s.key(testChecksum); got != testChecksum {
		t.Errorf("key without prefix = %q", got)
	}
	s.prefix = "media"
	if got := s.key(testChecksum); got != "media/"+testChecksum {
		t.Errorf("key with prefix = %q", got)
	}
}
