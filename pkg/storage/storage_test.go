package storage

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
)

// backends returns one of each Backend implementation for shared tests.
func backends(t *testing.T) map[string]Backend {
	t.Helper()

	sqlite, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "gatekeeper.db"))
	if err != nil {
		t.Fatalf("failed to create sqlite backend: %v", err)
	}

	return map[string]Backend{
		"memory": NewMemoryBackend(),
		"sqlite": sqlite,
	}
}

func TestBackend_SetGetDelete(t *testing.T) {
	ctx := context.Background()

	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer b.Close()

			// Missing key
			_, ok, err := b.Get(ctx, "missing")
			if err != nil {
				t.Fatalf("get missing: %v", err)
			}
			if ok {
				t.Fatal("missing key reported as present")
			}

			// Set then get
			if err := b.Set(ctx, KeySettings, []byte("envelope")); err != nil {
				t.Fatalf("set: %v", err)
			}
			got, ok, err := b.Get(ctx, KeySettings)
			if err != nil || !ok {
				t.Fatalf("get after set: ok=%v err=%v", ok, err)
			}
			if !bytes.Equal(got, []byte("envelope")) {
				t.Errorf("got %q, want %q", got, "envelope")
			}

			// Overwrite
			if err := b.Set(ctx, KeySettings, []byte("envelope-2")); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			got, _, _ = b.Get(ctx, KeySettings)
			if !bytes.Equal(got, []byte("envelope-2")) {
				t.Errorf("overwrite not visible, got %q", got)
			}

			// Delete
			if err := b.Delete(ctx, KeySettings); err != nil {
				t.Fatalf("delete: %v", err)
			}
			_, ok, _ = b.Get(ctx, KeySettings)
			if ok {
				t.Error("key still present after delete")
			}

			// Deleting a missing key is a no-op
			if err := b.Delete(ctx, "missing"); err != nil {
				t.Errorf("delete missing key: %v", err)
			}
		})
	}
}

func TestBackend_ClosedErrors(t *testing.T) {
	ctx := context.Background()

	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := b.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}
			if _, _, err := b.Get(ctx, "k"); err != ErrClosed {
				t.Errorf("Get after close: err = %v, want ErrClosed", err)
			}
			if err := b.Set(ctx, "k", nil); err != ErrClosed {
				t.Errorf("Set after close: err = %v, want ErrClosed", err)
			}
		})
	}
}

func TestSQLiteBackend_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "gatekeeper.db")

	b, err := NewSQLiteBackend(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := b.Set(ctx, KeyInstanceID, []byte("instance-a")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	b2, err := NewSQLiteBackend(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b2.Close()

	got, ok, err := b2.Get(ctx, KeyInstanceID)
	if err != nil || !ok {
		t.Fatalf("get after reopen: ok=%v err=%v", ok, err)
	}
	if string(got) != "instance-a" {
		t.Errorf("got %q, want %q", got, "instance-a")
	}
}

func TestNewSQLiteBackend_EmptyPath(t *testing.T) {
	if _, err := NewSQLiteBackend(""); err == nil {
		t.Fatal("expected error for empty db path")
	}
}
