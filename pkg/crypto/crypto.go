// Package crypto implements the envelope encryption, key derivation and
// checksum primitives used by the backup/restore pipeline: AES-256-GCM with
// a nonce-prepended on-disk format, PBKDF2-HMAC-SHA256 key derivation, and
// streamed SHA-256 checksums.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const pbkdf2Iterations = 100000

// DeriveKey derives a 32-byte AES-256 key from a passphrase and salt via
// PBKDF2-HMAC-SHA256. The salt must be per-deployment, never the fixed
// string a naive port would reuse; see pkg/catalog for where the salt is
// generated and persisted on first run.
func DeriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, 32, sha256.New)
}

// SecretsManager encrypts and decrypts data with a single AES-256-GCM key,
// used both for Server credential envelopes and for backup content
// encryption.
type SecretsManager struct {
	key []byte
}

// NewSecretsManager wraps a 32-byte AES-256 key.
func NewSecretsManager(key []byte) (*SecretsManager, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes for AES-256, got %d", len(key))
	}
	return &SecretsManager{key: key}, nil
}

// Encrypt returns 12-byte random nonce prepended to GCM ciphertext+tag.
func (sm *SecretsManager) Encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(sm.key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt splits the nonce off the front of ciphertext and opens the rest.
func (sm *SecretsManager) Decrypt(ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(sm.key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ct := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

// EncryptStream reads r fully, encrypts it with Encrypt, and writes the
// result to w. Backup payloads are bounded by temp-file size in the
// pipeline, so whole-buffer GCM sealing (rather than a chunked AEAD
// construction) keeps this symmetric with Decrypt and DeriveKey's 32-byte
// contract.
func (sm *SecretsManager) EncryptStream(w io.Writer, r io.Reader) error {
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read plaintext: %w", err)
	}
	ciphertext, err := sm.Encrypt(plaintext)
	if err != nil {
		return err
	}
	_, err = w.Write(ciphertext)
	return err
}

// DecryptStream is the inverse of EncryptStream.
func (sm *SecretsManager) DecryptStream(w io.Writer, r io.Reader) error {
	ciphertext, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read ciphertext: %w", err)
	}
	plaintext, err := sm.Decrypt(ciphertext)
	if err != nil {
		return err
	}
	_, err = w.Write(plaintext)
	return err
}

// ChecksumReader streams r in 4 KiB chunks through SHA-256 and returns the
// hex digest prefixed with "sha256:".
func ChecksumReader(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, 4096)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("checksum: %w", err)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}
