package crypto

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeyLength)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return key
}

// TestDeriveKey tests the Argon2id key derivation function
func TestDeriveKey(t *testing.T) {
	password := []byte("archive-passphrase")
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		t.Fatalf("failed to generate salt: %v", err)
	}

	key := DeriveKey(password, salt)
	if len(key) != KeyLength {
		t.Errorf("DeriveKey() returned key of length %d, want %d", len(key), KeyLength)
	}
	if !bytes.Equal(key, DeriveKey(password, salt)) {
		t.Error("DeriveKey() with same inputs should produce identical keys")
	}
	if bytes.Equal(key, DeriveKey([]byte("other"), salt)) {
		t.Error("DeriveKey() with different password should produce different key")
	}
}

// TestEncryptDecryptRoundTrip tests raw AES-256-GCM round trips
func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := testKey(t)

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"empty", []byte{}},
		{"short", []byte("a")},
		{"binary", []byte{0x00, 0xff, 0x10, 0x80}},
		{"large", bytes.Repeat([]byte("x"), 64*1024)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ciphertext, nonce, err := Encrypt(key, tt.plaintext)
			if err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if len(nonce) != NonceLength {
				t.Errorf("Encrypt() nonce length = %d, want %d", len(nonce), NonceLength)
			}
			got, err := Decrypt(key, ciphertext, nonce)
			if err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(got, tt.plaintext) {
				t.Errorf("Decrypt() = %x, want %x", got, tt.plaintext)
			}
		})
	}
}

// TestEncryptInvalidKeyLength tests that non-32-byte keys are rejected
func TestEncryptInvalidKeyLength(t *testing.T) {
	for _, n := range []int{0, 16, 24, 31, 33} {
		_, _, err := Encrypt(make([]byte, n), []byte("x"))
		if !errors.Is(err, ErrInvalidKeyLength) {
			t.Errorf("Encrypt() with %d-byte key error = %v, want %v", n, err, ErrInvalidKeyLength)
		}
	}
}

// TestDecryptErrors tests the sentinel errors returned by Decrypt
func TestDecryptErrors(t *testing.T) {
	key := testKey(t)
	ciphertext, nonce, err := Encrypt(key, []byte("payload"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	tampered := append([]byte(nil), ciphertext...)
	tampered[0] ^= 0x01

	tests := []struct {
		name       string
		key        []byte
		ciphertext []byte
		nonce      []byte
		wantErr    error
	}{
		{"short key", key[:16], ciphertext, nonce, ErrInvalidKeyLength},
		{"short nonce", key, ciphertext, nonce[:8], ErrInvalidNonceLength},
		{"too short", key, ciphertext[:4], nonce, ErrCiphertextTooShort},
		{"tampered", key, tampered, nonce, ErrDecryptionFailed},
		{"wrong key", testKey(t), ciphertext, nonce, ErrDecryptionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decrypt(tt.key, tt.ciphertext, tt.nonce)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Decrypt() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestSecureWipe tests that SecureWipe zeroes the slice
func TestSecureWipe(t *testing.T) {
	data := []byte("master key material")
	SecureWipe(data)
	for i, b := range data {
		if b != 0 {
			t.Fatalf("SecureWipe() byte %d = %x, want 0", i, b)
		}
	}
	SecureWipe(nil)
}
