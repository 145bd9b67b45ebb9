package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"spai-hq/gatekeeper/pkg/storage"
)

// ErrLocked is returned by Update while strict mode is enabled and
// unexpired. The unchanged settings accompany the error.
var ErrLocked = errors.New("settings: locked by strict mode")

// PatternError reports a non-compiling regex pattern in an update.
// An invalid pattern rejects the whole update; nothing is written.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %v", e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error { return e.Err }

// Snapshot is what a settings read returns.
type Snapshot struct {
	// Settings is the current (or fallback) configuration.
	Settings Settings `json:"settings"`

	// Locked reports whether mutation is currently refused.
	Locked bool `json:"locked"`

	// Tampered reports whether this read fell back to last-known-good
	// settings because the persisted envelope failed authentication.
	Tampered bool `json:"tampered"`
}

// Store owns the settings object. All mutation goes through Update; reads
// lazily expire strict mode and recover from tamper without raising.
type Store struct {
	backend storage.Backend
	box     *cipherBox
	logger  *slog.Logger

	// now is injectable for tests
	now func() time.Time

	// mu serializes read-modify-write cycles against the backend
	mu sync.Mutex

	// lastValid is the most recent successfully decrypted settings,
	// used as the tamper fallback
	lastValid Settings
	hasValid  bool

	// onTamper, if set, is notified whenever a read detects tamper
	onTamper func()
}

// StoreConfig configures a settings store.
type StoreConfig struct {
	// Backend is the persistence layer. Required.
	Backend storage.Backend

	// OperatorSecret is the operator-supplied half of the key-derivation
	// secret. The runtime instance id is appended to it.
	OperatorSecret string

	// Logger for structured logging. Defaults to slog.Default.
	Logger *slog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time

	// OnTamper is called (without the store lock held) when a read
	// detects a tampered envelope. Optional; used for metrics.
	OnTamper func()
}

// NewStore creates a settings store. The runtime instance id is read from
// the backend, minted on first use.
func NewStore(ctx context.Context, cfg StoreConfig) (*Store, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("settings: backend is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	instanceID, err := resolveInstanceID(ctx, cfg.Backend)
	if err != nil {
		return nil, fmt.Errorf("settings: failed to resolve instance id: %w", err)
	}

	return &Store{
		backend:  cfg.Backend,
		box:      newCipherBox(cfg.OperatorSecret, instanceID),
		logger:   logger,
		now:      now,
		onTamper: cfg.OnTamper,
	}, nil
}

// resolveInstanceID loads the persisted instance id, minting one on first use.
func resolveInstanceID(ctx context.Context, backend storage.Backend) (string, error) {
	raw, ok, err := backend.Get(ctx, storage.KeyInstanceID)
	if err != nil {
		return "", err
	}
	if ok {
		return string(raw), nil
	}

	id := uuid.NewString()
	if err := backend.Set(ctx, storage.KeyInstanceID, []byte(id)); err != nil {
		return "", err
	}
	return id, nil
}

// Get reads the settings.
//
// If no record exists yet, defaults are created and persisted. A tampered
// envelope falls back to the last-known-valid settings (or defaults) and
// sets the Tampered flag instead of failing. Strict mode that has passed
// its deadline is disabled and persisted as part of the read.
func (s *Store) Get(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	snap, err := s.getLocked(ctx)
	s.mu.Unlock()

	if err == nil && snap.Tampered && s.onTamper != nil {
		s.onTamper()
	}
	return snap, err
}

func (s *Store) getLocked(ctx context.Context) (Snapshot, error) {
	raw, ok, err := s.backend.Get(ctx, storage.KeySettings)
	if err != nil {
		return Snapshot{}, fmt.Errorf("settings: read failed: %w", err)
	}

	if !ok {
		def := Default(s.now())
		if err := s.persistLocked(ctx, def); err != nil {
			return Snapshot{}, err
		}
		s.lastValid = def
		s.hasValid = true
		return Snapshot{Settings: def}, nil
	}

	var env Envelope
	current, decErr := Settings{}, error(nil)
	if err := json.Unmarshal(raw, &env); err != nil {
		decErr = ErrTampered
	} else {
		current, decErr = s.box.Open(&env)
	}

	if decErr != nil {
		// Tamper: recover locally, surface a flag, never raise. The
		// fallback's lock state intentionally ignores expiry; a
		// tampered store must not become writable through the
		// fallback path.
		fallback := s.lastValid
		if !s.hasValid {
			fallback = Default(s.now())
		}
		s.logger.Warn("settings envelope failed authentication, using fallback",
			"has_last_valid", s.hasValid,
		)
		return Snapshot{
			Settings: fallback,
			Locked:   fallback.StrictMode.Enabled,
			Tampered: true,
		}, nil
	}

	now := s.now()
	if current.StrictMode.Enabled && current.StrictMode.ExpiresAt != nil && *current.StrictMode.ExpiresAt <= now.UnixMilli() {
		current.StrictMode = StrictMode{Enabled: false, ExpiresAt: nil}
		if err := s.persistLocked(ctx, current); err != nil {
			// The in-memory view is already expired; the write is
			// retried on the next mutation.
			s.logger.Warn("failed to persist strict-mode expiry", "error", err)
		}
		s.logger.Info("strict mode expired")
	}

	s.lastValid = current
	s.hasValid = true
	return Snapshot{Settings: current, Locked: current.lockedAt(now)}, nil
}

// Update applies a mutation to the current settings and persists the result.
//
// While strict mode is active, the mutation is refused: the unchanged
// settings are returned together with ErrLocked. Pattern lists in the
// resulting settings must compile; any invalid pattern rejects the whole
// update with a PatternError.
func (s *Store) Update(ctx context.Context, apply func(Settings) Settings) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.getLocked(ctx)
	if err != nil {
		return Settings{}, err
	}
	if snap.Locked {
		return snap.Settings, ErrLocked
	}

	next := apply(snap.Settings)

	for _, p := range next.WhitelistPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return snap.Settings, &PatternError{Pattern: p, Err: err}
		}
	}
	for _, p := range next.BlacklistPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return snap.Settings, &PatternError{Pattern: p, Err: err}
		}
	}

	if err := s.persistLocked(ctx, next); err != nil {
		return snap.Settings, err
	}
	s.lastValid = next
	s.hasValid = true
	return next, nil
}

// EnableStrictMode turns on the time lock for the given duration, computing
// an absolute expiry from now. Negative components count as zero. Enabling
// goes through Update, so an already-locked store refuses to extend.
func (s *Store) EnableStrictMode(ctx context.Context, days, hours int) (Settings, error) {
	if days < 0 {
		days = 0
	}
	if hours < 0 {
		hours = 0
	}
	expiresAt := s.now().Add(time.Duration(days)*24*time.Hour + time.Duration(hours)*time.Hour).UnixMilli()

	updated, err := s.Update(ctx, func(prev Settings) Settings {
		prev.StrictMode = StrictMode{Enabled: true, ExpiresAt: &expiresAt}
		return prev
	})
	if err != nil {
		return updated, err
	}

	s.logger.Info("strict mode enabled",
		"days", days,
		"hours", hours,
		"expires_at", time.UnixMilli(expiresAt),
	)
	return updated, nil
}

// Locked reports whether mutation is currently refused.
func (s *Store) Locked(ctx context.Context) (bool, error) {
	snap, err := s.Get(ctx)
	if err != nil {
		return false, err
	}
	return snap.Locked, nil
}

// persistLocked seals and writes settings. Callers hold s.mu.
func (s *Store) persistLocked(ctx context.Context, st Settings) error {
	env, err := s.box.Seal(st)
	if err != nil {
		return fmt.Errorf("settings: seal failed: %w", err)
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("settings: encode failed: %w", err)
	}
	if err := s.backend.Set(ctx, storage.KeySettings, raw); err != nil {
		return fmt.Errorf("settings: write failed: %w", err)
	}
	return nil
}
