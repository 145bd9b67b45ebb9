// Package settings persists the single versioned configuration object under
// authenticated encryption.
//
// The persisted record is an envelope of {format version, salt, nonce,
// ciphertext, MAC}. Keys are derived per write from an operator secret plus
// the runtime instance id via PBKDF2; the derived material splits into an
// AES-256-GCM key and a separate HMAC-SHA256 key. Every write uses a fresh
// salt and nonce, so identical settings never produce identical ciphertext.
//
// MAC or decryption failure is treated as tamper, not as a fatal error: the
// store falls back to the last-known-valid settings (or defaults) and
// surfaces a tampered flag to callers.
//
// Strict mode is a time lock on mutation: Update refuses to apply changes
// while strict mode is enabled and unexpired, and the lock auto-expires
// lazily on the next read once the deadline has passed.
package settings
