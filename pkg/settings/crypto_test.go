package settings

import (
	"encoding/base64"
	"errors"
	"reflect"
	"testing"
	"time"
)

func testSettings() Settings {
	s := Default(time.UnixMilli(1700000000000))
	s.BlacklistPatterns = []string{`^example\.com$`}
	s.WhitelistPatterns = []string{`^docs\.`}
	return s
}

func TestCipherBox_RoundTrip(t *testing.T) {
	box := newCipherBox("operator-secret", "instance-1")
	original := testSettings()

	env, err := box.Seal(original)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	got, err := box.Open(env)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !reflect.DeepEqual(got, original) {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, original)
	}
}

func TestCipherBox_NonDeterministicCiphertext(t *testing.T) {
	box := newCipherBox("operator-secret", "instance-1")
	s := testSettings()

	a, err := box.Seal(s)
	if err != nil {
		t.Fatalf("seal a: %v", err)
	}
	b, err := box.Seal(s)
	if err != nil {
		t.Fatalf("seal b: %v", err)
	}

	if a.Salt == b.Salt {
		t.Error("two seals reused a salt")
	}
	if a.Nonce == b.Nonce {
		t.Error("two seals reused a nonce")
	}
	if a.CipherText == b.CipherText {
		t.Error("identical plaintext produced identical ciphertext")
	}
}

// flipByte flips one bit of one byte in a base64 string's decoded form.
func flipByte(t *testing.T, b64 string, idx int) string {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	raw[idx%len(raw)] ^= 0x01
	return base64.StdEncoding.EncodeToString(raw)
}

func TestCipherBox_TamperDetection(t *testing.T) {
	box := newCipherBox("operator-secret", "instance-1")

	tests := []struct {
		name   string
		mutate func(env *Envelope)
	}{
		{"flipped MAC byte", func(env *Envelope) { env.MAC = flipByte(t, env.MAC, 0) }},
		{"flipped ciphertext byte", func(env *Envelope) { env.CipherText = flipByte(t, env.CipherText, 3) }},
		{"flipped nonce byte", func(env *Envelope) { env.Nonce = flipByte(t, env.Nonce, 1) }},
		{"flipped salt byte", func(env *Envelope) { env.Salt = flipByte(t, env.Salt, 2) }},
		{"unknown version", func(env *Envelope) { env.V = 99 }},
		{"garbage mac encoding", func(env *Envelope) { env.MAC = "not base64!!!" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := box.Seal(testSettings())
			if err != nil {
				t.Fatalf("seal: %v", err)
			}
			tt.mutate(env)

			if _, err := box.Open(env); !errors.Is(err, ErrTampered) {
				t.Errorf("Open on mutated envelope: err = %v, want ErrTampered", err)
			}
		})
	}
}

func TestCipherBox_WrongSecret(t *testing.T) {
	env, err := newCipherBox("secret-a", "instance-1").Seal(testSettings())
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	if _, err := newCipherBox("secret-b", "instance-1").Open(env); !errors.Is(err, ErrTampered) {
		t.Errorf("opening with wrong secret: err = %v, want ErrTampered", err)
	}
	if _, err := newCipherBox("secret-a", "instance-2").Open(env); !errors.Is(err, ErrTampered) {
		t.Errorf("opening with wrong instance id: err = %v, want ErrTampered", err)
	}
}

func TestCipherBox_EmptySecretFallsBack(t *testing.T) {
	// An empty operator secret plus empty instance id still produces a
	// working box; the fallback constant keys it.
	box := newCipherBox("", "")
	env, err := box.Seal(testSettings())
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := box.Open(env); err != nil {
		t.Fatalf("open: %v", err)
	}
}
