package storage

import (
	"context"
	"errors"
)

// Well-known storage keys.
const (
	// KeySettings holds the encrypted settings envelope.
	KeySettings = "secure-settings-v1"

	// KeyInstanceID holds the runtime instance identifier mixed into the
	// settings-store key derivation secret.
	KeyInstanceID = "instance-id"

	// KeyStateSnapshot holds the best-effort ephemeral-state snapshot.
	KeyStateSnapshot = "ephemeral-state-v1"
)

// ErrClosed is returned by operations on a closed backend.
var ErrClosed = errors.New("storage: backend is closed")

// Backend is the persistence contract.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Get retrieves the value for a key.
	// The second return is false when the key does not exist.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value under a key, overwriting any existing value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes a key. No-op when the key does not exist.
	Delete(ctx context.Context, key string) error

	// Close releases resources. The backend must not be used afterwards.
	Close() error
}
