package digest

import (
	"bytes"
	"testing"
)

func testKey() []byte {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestSealOpenRoundTrip(t *testing.T) {
	codec, err := NewCodec(testKey())
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}

	plaintext := []byte(`{"hello":"world"}`)
	aad := []byte("session-123")

	sealed, err := codec.Seal(plaintext, aad)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	opened, err := codec.Open(sealed, aad)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Errorf("expected round-trip plaintext, got %s", opened)
	}
}

func TestOpenFailsOnWrongAssociatedData(t *testing.T) {
	codec, _ := NewCodec(testKey())
	sealed, _ := codec.Seal([]byte("secret"), []byte("session-a"))

	if _, err := codec.Open(sealed, []byte("session-b")); err != ErrAuthFailure {
		t.Errorf("expected ErrAuthFailure, got %v", err)
	}
}

func TestOpenFailsOnTamperedCiphertext(t *testing.T) {
	codec, _ := NewCodec(testKey())
	sealed, _ := codec.Seal([]byte("secret"), []byte("aad"))
	sealed[len(sealed)-1] ^= 0xFF

	if _, err := codec.Open(sealed, []byte("aad")); err != ErrAuthFailure {
		t.Errorf("expected ErrAuthFailure, got %v", err)
	}
}

func TestOpenFailsOnWrongKey(t *testing.T) {
	codec, _ := NewCodec(testKey())
	sealed, _ := codec.Seal([]byte("secret"), []byte("aad"))

	otherKey := testKey()
	otherKey[0] ^= 0xFF
	other, _ := NewCodec(otherKey)

	if _, err := other.Open(sealed, []byte("aad")); err != ErrAuthFailure {
		t.Errorf("expected ErrAuthFailure, got %v", err)
	}
}

func TestNewCodecRejectsWrongKeySize(t *testing.T) {
	if _, err := NewCodec([]byte("too short")); err == nil {
		t.Error("expected error for undersized key")
	}
}

func TestSealProducesRandomNoncePerCall(t *testing.T) {
	codec, _ := NewCodec(testKey())
	a, _ := codec.Seal([]byte("same plaintext"), nil)
	b, _ := codec.Seal([]byte("same plaintext"), nil)
	if bytes.Equal(a, b) {
		t.Error("expected distinct ciphertexts from distinct random nonces")
	}
}
