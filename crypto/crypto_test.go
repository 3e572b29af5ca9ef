package crypto

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"testing"
)

func testKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestNewAESEncryptorKeyValidation(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr string
	}{
		{"empty key", "", "encryption key is empty"},
		{"not base64", "not-base64!!!", "base64 decode failed"},
		{"wrong length", base64.StdEncoding.EncodeToString([]byte("short")), "must be 32 bytes"},
		{"valid", testKey(t), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAESEncryptor(tt.key)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatal(err)
	}

	plaintext := []byte("oauth-refresh-token-abc123")
	ciphertext, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(ciphertext, plaintext) {
		t.Fatal("ciphertext contains the plaintext")
	}

	got, err := enc.Decrypt(ciphertext)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip got %q, want %q", got, plaintext)
	}
}

func TestEncryptProducesFreshNonce(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatal(err)
	}
	a, err := enc.Encrypt([]byte("same message"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := enc.Encrypt([]byte("same message"))
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a, b) {
		t.Fatal("two encryptions of the same plaintext must differ")
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatal(err)
	}
	ciphertext, err := enc.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	ciphertext[len(ciphertext)-1] ^= 0xff
	if _, err := enc.Decrypt(ciphertext); err == nil {
		t.Fatal("tampered ciphertext must not decrypt")
	}
}

func TestDecryptRejectsShortCiphertext(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := enc.Decrypt([]byte{1, 2, 3}); err == nil {
		t.Fatal("short ciphertext must not decrypt")
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	encA, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatal(err)
	}
	encB, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatal(err)
	}
	ciphertext, err := encA.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := encB.Decrypt(ciphertext); err == nil {
		t.Fatal("decrypting with a different key must fail")
	}
}

func TestStringHelpersPassEmptyThrough(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatal(err)
	}

	out, err := EncryptString(enc, "")
	if err != nil || out != "" {
		t.Fatalf("EncryptString empty = (%q, %v), want empty passthrough", out, err)
	}
	out, err = DecryptString(enc, "")
	if err != nil || out != "" {
		t.Fatalf("DecryptString empty = (%q, %v), want empty passthrough", out, err)
	}

	cipher, err := EncryptString(enc, "token-value")
	if err != nil {
		t.Fatal(err)
	}
	plain, err := DecryptString(enc, cipher)
	if err != nil {
		t.Fatal(err)
	}
	if plain != "token-value" {
		t.Fatalf("string round trip got %q", plain)
	}
}
