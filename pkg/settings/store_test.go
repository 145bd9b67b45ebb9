package settings

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"spai-hq/gatekeeper/pkg/storage"
)

// newTestStore builds a store over a fresh memory backend with a
// controllable clock.
func newTestStore(t *testing.T) (*Store, *storage.MemoryBackend, *time.Time) {
	t.Helper()

	backend := storage.NewMemoryBackend()
	now := time.UnixMilli(1700000000000)

	store, err := NewStore(context.Background(), StoreConfig{
		Backend:        backend,
		OperatorSecret: "test-secret",
		Now:            func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, backend, &now
}

func TestStore_FirstReadCreatesDefaults(t *testing.T) {
	ctx := context.Background()
	store, backend, _ := newTestStore(t)

	snap, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if snap.Locked || snap.Tampered {
		t.Errorf("fresh read: locked=%v tampered=%v, want false/false", snap.Locked, snap.Tampered)
	}
	if snap.Settings.Version != SettingsVersion {
		t.Errorf("version = %d, want %d", snap.Settings.Version, SettingsVersion)
	}
	if !snap.Settings.Schedule.Mon.Enabled || snap.Settings.Schedule.Sat.Enabled {
		t.Error("default schedule should enable weekdays and disable weekends")
	}

	// The defaults were persisted as an envelope.
	raw, ok, err := backend.Get(ctx, storage.KeySettings)
	if err != nil || !ok {
		t.Fatalf("envelope not persisted: ok=%v err=%v", ok, err)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("persisted record is not an envelope: %v", err)
	}
	if env.V != EnvelopeVersion {
		t.Errorf("envelope version = %d, want %d", env.V, EnvelopeVersion)
	}
}

func TestStore_UpdatePersistsAndValidatesPatterns(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)

	updated, err := store.Update(ctx, func(prev Settings) Settings {
		prev.BlacklistPatterns = []string{`^example\.com$`}
		return prev
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(updated.BlacklistPatterns) != 1 {
		t.Fatalf("blacklist not applied: %+v", updated.BlacklistPatterns)
	}

	// Invalid pattern rejects the whole update.
	var patternErr *PatternError
	got, err := store.Update(ctx, func(prev Settings) Settings {
		prev.WhitelistPatterns = []string{`ok`, `([`}
		return prev
	})
	if !errors.As(err, &patternErr) {
		t.Fatalf("update with invalid pattern: err = %v, want PatternError", err)
	}
	if len(got.WhitelistPatterns) != 0 {
		t.Error("rejected update leaked into returned settings")
	}

	snap, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(snap.Settings.WhitelistPatterns) != 0 {
		t.Error("rejected update was persisted")
	}
	if len(snap.Settings.BlacklistPatterns) != 1 {
		t.Error("earlier valid update was lost")
	}
}

func TestStore_StrictModeLocksUpdates(t *testing.T) {
	ctx := context.Background()
	store, _, nowPtr := newTestStore(t)

	updated, err := store.EnableStrictMode(ctx, 0, 2)
	if err != nil {
		t.Fatalf("enable strict: %v", err)
	}
	if !updated.StrictMode.Enabled || updated.StrictMode.ExpiresAt == nil {
		t.Fatalf("strict mode not applied: %+v", updated.StrictMode)
	}
	wantExpiry := nowPtr.Add(2 * time.Hour).UnixMilli()
	if *updated.StrictMode.ExpiresAt != wantExpiry {
		t.Errorf("expiry = %d, want %d", *updated.StrictMode.ExpiresAt, wantExpiry)
	}

	// Mutation is refused while locked; the unchanged settings come back.
	got, err := store.Update(ctx, func(prev Settings) Settings {
		prev.BlacklistPatterns = []string{`x`}
		return prev
	})
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("update while locked: err = %v, want ErrLocked", err)
	}
	if len(got.BlacklistPatterns) != 0 {
		t.Error("locked update modified settings")
	}

	// Extending strict mode while locked is also refused.
	if _, err := store.EnableStrictMode(ctx, 7, 0); !errors.Is(err, ErrLocked) {
		t.Errorf("extend while locked: err = %v, want ErrLocked", err)
	}
}

func TestStore_StrictModeLazyExpiry(t *testing.T) {
	ctx := context.Background()
	store, _, nowPtr := newTestStore(t)

	if _, err := store.EnableStrictMode(ctx, 0, 1); err != nil {
		t.Fatalf("enable strict: %v", err)
	}

	snap, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !snap.Locked {
		t.Fatal("store should be locked before expiry")
	}

	// Advance past the deadline; the next read disables strict mode.
	*nowPtr = nowPtr.Add(61 * time.Minute)

	snap, err = store.Get(ctx)
	if err != nil {
		t.Fatalf("get after expiry: %v", err)
	}
	if snap.Locked {
		t.Error("store still locked after expiry")
	}
	if snap.Settings.StrictMode.Enabled {
		t.Error("strict mode still enabled after expiry")
	}
	if snap.Settings.StrictMode.ExpiresAt != nil {
		t.Error("expiry timestamp not cleared")
	}

	// Updates work again.
	if _, err := store.Update(ctx, func(p Settings) Settings { return p }); err != nil {
		t.Errorf("update after expiry: %v", err)
	}
}

func TestStore_TamperFallsBackToLastValid(t *testing.T) {
	ctx := context.Background()
	store, backend, _ := newTestStore(t)
	var tampers int
	store.onTamper = func() { tampers++ }

	if _, err := store.Update(ctx, func(prev Settings) Settings {
		prev.BlacklistPatterns = []string{`^known\.good$`}
		return prev
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	// Corrupt the persisted envelope.
	raw, _, _ := backend.Get(ctx, storage.KeySettings)
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	env.MAC = "AAAA" + env.MAC[4:]
	corrupted, _ := json.Marshal(env)
	if err := backend.Set(ctx, storage.KeySettings, corrupted); err != nil {
		t.Fatalf("set corrupted: %v", err)
	}

	snap, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("get never raises on tamper, got %v", err)
	}
	if !snap.Tampered {
		t.Fatal("tampered flag not set")
	}
	if len(snap.Settings.BlacklistPatterns) != 1 || snap.Settings.BlacklistPatterns[0] != `^known\.good$` {
		t.Errorf("fallback is not the last valid settings: %+v", snap.Settings)
	}
	if tampers != 1 {
		t.Errorf("tamper callback fired %d times, want 1", tampers)
	}

	// A later write repairs the envelope.
	if _, err := store.Update(ctx, func(p Settings) Settings { return p }); err != nil {
		t.Fatalf("repairing update: %v", err)
	}
	snap, err = store.Get(ctx)
	if err != nil || snap.Tampered {
		t.Errorf("store not repaired after write: tampered=%v err=%v", snap.Tampered, err)
	}
}

func TestStore_TamperBeforeAnyValidReadUsesDefaults(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend()
	if err := backend.Set(ctx, storage.KeySettings, []byte(`{"v":1,"salt":"x","iv":"y","cipherText":"z","mac":"w"}`)); err != nil {
		t.Fatalf("seed garbage: %v", err)
	}

	store, err := NewStore(ctx, StoreConfig{Backend: backend, OperatorSecret: "s"})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	snap, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !snap.Tampered {
		t.Error("tampered flag not set for garbage envelope")
	}
	if snap.Settings.Version != SettingsVersion {
		t.Error("fallback should be defaults when no valid read ever happened")
	}
}

func TestStore_InstanceIDStableAcrossStores(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend()

	a, err := NewStore(ctx, StoreConfig{Backend: backend, OperatorSecret: "s"})
	if err != nil {
		t.Fatalf("store a: %v", err)
	}
	if _, err := a.Get(ctx); err != nil {
		t.Fatalf("get a: %v", err)
	}

	// A second store over the same backend derives the same keys and can
	// read what the first wrote.
	b, err := NewStore(ctx, StoreConfig{Backend: backend, OperatorSecret: "s"})
	if err != nil {
		t.Fatalf("store b: %v", err)
	}
	snap, err := b.Get(ctx)
	if err != nil {
		t.Fatalf("get b: %v", err)
	}
	if snap.Tampered {
		t.Error("second store could not authenticate the first store's envelope")
	}
}
