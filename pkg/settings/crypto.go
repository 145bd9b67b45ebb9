package settings

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// EnvelopeVersion is the encryption format version.
	EnvelopeVersion = 1

	// kdfIterations is the PBKDF2 iteration count.
	kdfIterations = 250000

	// kdfOutputBytes is the derived key material size: 32 bytes for the
	// AES-256-GCM key plus 32 bytes for the HMAC-SHA256 key.
	kdfOutputBytes = 64

	saltBytes  = 16
	nonceBytes = 12

	// fallbackSecret keys the store when neither an operator secret nor an
	// instance id is available. Matching grants no protection beyond
	// obscurity, which is the documented floor for an empty secret.
	fallbackSecret = "spai-fallback"
)

// ErrTampered marks a MAC or decryption failure on the persisted envelope.
var ErrTampered = errors.New("settings: envelope failed authentication")

// Envelope is the persisted authenticated-encryption record. Salt, nonce
// and ciphertext are base64; the MAC covers the version byte followed by
// the base64 text of salt, nonce and ciphertext, in that order.
type Envelope struct {
	V          int    `json:"v"`
	Salt       string `json:"salt"`
	Nonce      string `json:"iv"`
	CipherText string `json:"cipherText"`
	MAC        string `json:"mac"`
}

// derivedKeys is one PBKDF2 output split into its two halves.
type derivedKeys struct {
	aesKey []byte
	macKey []byte
}

// cipherBox derives and caches keys and seals/opens envelopes.
// The cache is keyed by base64 salt; each persisted envelope carries its own
// salt, so the cache stays small (one live entry plus recent writes).
type cipherBox struct {
	secret string

	mu    sync.Mutex
	cache map[string]derivedKeys
}

// newCipherBox builds a cipher box over the composed secret
// (operator-supplied value + runtime instance id).
func newCipherBox(operatorSecret, instanceID string) *cipherBox {
	secret := operatorSecret + instanceID
	if secret == "" {
		secret = fallbackSecret
	}
	return &cipherBox{
		secret: secret,
		cache:  make(map[string]derivedKeys),
	}
}

// keysFor derives (or recalls) the key pair for a base64 salt.
func (c *cipherBox) keysFor(saltB64 string) (derivedKeys, error) {
	c.mu.Lock()
	if keys, ok := c.cache[saltB64]; ok {
		c.mu.Unlock()
		return keys, nil
	}
	c.mu.Unlock()

	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return derivedKeys{}, fmt.Errorf("invalid salt encoding: %w", err)
	}

	material := pbkdf2.Key([]byte(c.secret), salt, kdfIterations, kdfOutputBytes, sha256.New)
	keys := derivedKeys{aesKey: material[:32], macKey: material[32:]}

	c.mu.Lock()
	c.cache[saltB64] = keys
	c.mu.Unlock()
	return keys, nil
}

// macInput assembles the exact byte sequence the MAC covers.
func macInput(version int, saltB64, nonceB64, cipherB64 string) []byte {
	out := make([]byte, 0, 1+len(saltB64)+len(nonceB64)+len(cipherB64))
	out = append(out, byte(version))
	out = append(out, saltB64...)
	out = append(out, nonceB64...)
	out = append(out, cipherB64...)
	return out
}

// Seal encrypts settings into a fresh envelope. Every call draws a new salt
// and nonce, so sealing identical settings twice yields distinct envelopes.
func (c *cipherBox) Seal(s Settings) (*Envelope, error) {
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	nonce := make([]byte, nonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	saltB64 := base64.StdEncoding.EncodeToString(salt)
	keys, err := c.keysFor(saltB64)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(keys.aesKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode settings: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)
	nonceB64 := base64.StdEncoding.EncodeToString(nonce)
	cipherB64 := base64.StdEncoding.EncodeToString(ciphertext)

	mac := hmac.New(sha256.New, keys.macKey)
	mac.Write(macInput(EnvelopeVersion, saltB64, nonceB64, cipherB64))

	return &Envelope{
		V:          EnvelopeVersion,
		Salt:       saltB64,
		Nonce:      nonceB64,
		CipherText: cipherB64,
		MAC:        base64.StdEncoding.EncodeToString(mac.Sum(nil)),
	}, nil
}

// Open verifies and decrypts an envelope.
//
// Any failure — unknown version, bad encoding, MAC mismatch, or an AEAD
// open failure — returns ErrTampered. Callers treat tamper as a recoverable
// condition, never a fatal one, so no detail beyond the sentinel leaks out.
func (c *cipherBox) Open(env *Envelope) (Settings, error) {
	if env == nil || env.V != EnvelopeVersion {
		return Settings{}, ErrTampered
	}

	keys, err := c.keysFor(env.Salt)
	if err != nil {
		return Settings{}, ErrTampered
	}

	expected, err := base64.StdEncoding.DecodeString(env.MAC)
	if err != nil {
		return Settings{}, ErrTampered
	}
	mac := hmac.New(sha256.New, keys.macKey)
	mac.Write(macInput(env.V, env.Salt, env.Nonce, env.CipherText))
	if !hmac.Equal(mac.Sum(nil), expected) {
		return Settings{}, ErrTampered
	}

	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil || len(nonce) != nonceBytes {
		return Settings{}, ErrTampered
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.CipherText)
	if err != nil {
		return Settings{}, ErrTampered
	}

	block, err := aes.NewCipher(keys.aesKey)
	if err != nil {
		return Settings{}, ErrTampered
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return Settings{}, ErrTampered
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Settings{}, ErrTampered
	}

	var s Settings
	if err := json.Unmarshal(plaintext, &s); err != nil {
		return Settings{}, ErrTampered
	}
	return s, nil
}
