// Package nostrsecret stores the Zap rail's signing key in a small
// AES-GCM envelope on disk, decrypted with a passphrase supplied via
// NOSTR_NSEC_FILE_PASSWORD. No secret-box/AEAD library is present
// anywhere in the reference pack, so this is built from stdlib crypto
// primitives, in the spirit of go-ethereum's own accounts/keystore
// package (whose encryption format wasn't retrieved in this pack).
package nostrsecret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
)

// Save encrypts a 32-byte secp256k1 secret key with a key derived from
// password and writes it to path.
func Save(path string, secret [32]byte, password string) error {
	block, err := aes.NewCipher(deriveKey(password))
	if err != nil {
		return fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("init gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nonce, nonce, secret[:], nil)
	if err := os.WriteFile(path, ciphertext, 0o600); err != nil {
		return fmt.Errorf("write secret file %q: %w", path, err)
	}
	return nil
}

// Load decrypts the secret key at path using password.
func Load(path string, password string) ([32]byte, error) {
	var out [32]byte
	data, err := os.ReadFile(path)
	if err != nil {
		return out, fmt.Errorf("read secret file %q: %w", path, err)
	}
	block, err := aes.NewCipher(deriveKey(password))
	if err != nil {
		return out, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return out, fmt.Errorf("init gcm: %w", err)
	}
	if len(data) < gcm.NonceSize() {
		return out, fmt.Errorf("secret file %q truncated", path)
	}
	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return out, fmt.Errorf("decrypt secret file %q (wrong password?): %w", path, err)
	}
	if len(plaintext) != 32 {
		return out, fmt.Errorf("decrypted secret has length %d, want 32", len(plaintext))
	}
	copy(out[:], plaintext)
	return out, nil
}

func deriveKey(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	return sum[:]
}
