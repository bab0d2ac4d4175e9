package crypto

import (
	"errors"
	"strings"
	"testing"
)

const testSecret = "unit-test-secret"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := New(testSecret)
	cases := []string{
		"42.5",
		"-950",
		"hello world",
		"",
		"unicode: äöü €",
		strings.Repeat("x", 4096),
	}
	for i, plain := range cases {
		enc, err := c.EncryptText(plain)
		if err != nil {
			t.Fatalf("case %d encrypt: %v", i, err)
		}
		if !strings.Contains(enc, Delimiter) {
			t.Fatalf("case %d missing delimiter in %q", i, enc)
		}
		if plain != "" && strings.Contains(enc, plain) {
			t.Fatalf("case %d ciphertext leaks plaintext", i)
		}
		dec, err := c.DecryptText(enc)
		if err != nil {
			t.Fatalf("case %d decrypt: %v", i, err)
		}
		if dec != plain {
			t.Fatalf("case %d round trip: got %q, want %q", i, dec, plain)
		}
	}
}

func TestEncryptIsRandomized(t *testing.T) {
	c := New(testSecret)
	a, err := c.EncryptText("same input")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	b, err := c.EncryptText("same input")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if a == b {
		t.Fatalf("two encryptions produced identical output")
	}
}

func TestKeyDerivationIsDeterministic(t *testing.T) {
	enc, err := New(testSecret).EncryptText("persisted earlier")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	// A codec built later from the same secret must read old data.
	dec, err := New(testSecret).DecryptText(enc)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if dec != "persisted earlier" {
		t.Fatalf("got %q", dec)
	}
}

func TestWrongKeyDoesNotRoundTrip(t *testing.T) {
	enc, err := New(testSecret).EncryptText("amount")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	dec, err := New("other-secret").DecryptText(enc)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if dec == "amount" {
		t.Fatalf("decryption with wrong key must not yield plaintext")
	}
}

func TestDecryptLegacyPlaintextFallback(t *testing.T) {
	c := New(testSecret)
	got, err := c.DecryptText("12.34")
	if err != nil {
		t.Fatalf("legacy value must not error: %v", err)
	}
	if got != "12.34" {
		t.Fatalf("legacy value must pass through unchanged, got %q", got)
	}
}

func TestDecryptMalformedLenient(t *testing.T) {
	c := New(testSecret)
	for i, bad := range []string{"nothex:zzzz", "abcd:nothex", "short:00"} {
		got, err := c.DecryptText(bad)
		if err != nil {
			t.Fatalf("case %d lenient decrypt must not error: %v", i, err)
		}
		if got != bad {
			t.Fatalf("case %d expected passthrough, got %q", i, got)
		}
	}
}

func TestDecryptStrict(t *testing.T) {
	c := NewStrict(testSecret)
	for i, bad := range []string{"12.34", "nothex:zzzz", "abcd:00"} {
		if _, err := c.DecryptText(bad); !errors.Is(err, ErrDecryptionFailed) {
			t.Fatalf("case %d expected ErrDecryptionFailed, got %v", i, err)
		}
	}

	// Well-formed ciphertext still round-trips in strict mode.
	enc, err := c.EncryptText("strict ok")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	dec, err := c.DecryptText(enc)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if dec != "strict ok" {
		t.Fatalf("got %q", dec)
	}
}

func TestNumberRoundTrip(t *testing.T) {
	c := New(testSecret)
	cases := []float64{0, 42.5, -950, 0.01, 123456789.99, -0.001}
	for i, n := range cases {
		enc, err := c.EncryptNumber(n)
		if err != nil {
			t.Fatalf("case %d encrypt: %v", i, err)
		}
		got, err := c.DecryptNumber(enc)
		if err != nil {
			t.Fatalf("case %d decrypt: %v", i, err)
		}
		if got != n {
			t.Fatalf("case %d round trip: got %v, want %v", i, got, n)
		}
	}
}

func TestDecryptNumberCorruptDefaultsToZero(t *testing.T) {
	c := New(testSecret)
	enc, err := c.EncryptText("definitely not a number")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	got, err := c.DecryptNumber(enc)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got != 0 {
		t.Fatalf("corrupt numeric field must degrade to 0, got %v", got)
	}
}
