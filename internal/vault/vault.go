// Package vault encrypts authcore's persisted records with a
// session-scoped symmetric key. The key is random, generated on first
// use, and exists only to avoid storing tokens in the clear on a shared
// device; it is never derived from user-guessable material and never
// leaves the device.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"

	autherrors "github.com/vetfolio/authcore/internal/errors"
)

const (
	// masterKeyLen is the raw key material generated on first use and
	// exported to the session-scoped key slot (32 bytes, AES-256).
	masterKeyLen = 32

	// aeadKeyLen is the derived AES-GCM key length.
	aeadKeyLen = 32

	// hkdfInfo separates the AEAD key from any future subkey derived
	// from the same master material.
	hkdfInfo = "authcore record aead v1"
)

// KeyStore is the session-scoped storage area holding the exported
// vault key. Implemented by the bbolt store; swapped for a fake in
// tests.
type KeyStore interface {
	VaultKey() []byte
	SetVaultKey(key []byte) error
	DeleteVaultKey() error
}

// Vault performs authenticated encryption of opaque string payloads.
// Blobs are base64(12-byte IV || ciphertext+GCM tag) in a single string.
type Vault struct {
	keys KeyStore

	mu  sync.Mutex
	gcm cipher.AEAD
}

// New creates a vault backed by the given key store. No key material is
// generated until the first Encrypt or Decrypt call, so constructing a
// vault for a user who never logs in leaves no key behind.
func New(keys KeyStore) *Vault {
	return &Vault{keys: keys}
}

// Encrypt seals plaintext under the session key, drawing a fresh IV.
// Two calls with identical plaintext never produce identical blobs.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	gcm, err := v.aead(true)
	if err != nil {
		return "", err
	}

	iv := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generating IV: %w", err)
	}

	ct := gcm.Seal(nil, iv, []byte(plaintext), nil)
	blob := make([]byte, len(iv)+len(ct))
	copy(blob, iv)
	copy(blob[len(iv):], ct)

	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt opens a blob produced by Encrypt. Any failure (malformed
// base64, truncated data, authentication tag mismatch, missing key) is
// reported as ErrDecryption. It never returns partial plaintext.
func (v *Vault) Decrypt(blob string) (string, error) {
	gcm, err := v.aead(false)
	if err != nil {
		return "", err
	}

	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("%w: decoding blob: %v", autherrors.ErrDecryption, err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) <= nonceSize {
		return "", fmt.Errorf("%w: blob too short (%d bytes)", autherrors.ErrDecryption, len(data))
	}

	plain, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", autherrors.ErrDecryption)
	}

	return string(plain), nil
}

// ClearKey deletes the stored key material and drops the cached cipher,
// permanently invalidating every previously encrypted blob. Used on
// logout.
func (v *Vault) ClearKey() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.gcm = nil

	if err := v.keys.DeleteVaultKey(); err != nil {
		return fmt.Errorf("deleting vault key: %w", err)
	}

	return nil
}

// aead returns the cached AEAD, importing the stored key or, when
// generate is true, creating and exporting a fresh one. A process
// restart mid-flow re-imports the same key, so in-flight artifacts
// survive. When generate is false and no key exists, decryption fails
// closed with ErrDecryption.
func (v *Vault) aead(generate bool) (cipher.AEAD, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.gcm != nil {
		return v.gcm, nil
	}

	master := v.keys.VaultKey()
	if len(master) == 0 {
		if !generate {
			return nil, fmt.Errorf("%w: no vault key", autherrors.ErrDecryption)
		}

		master = make([]byte, masterKeyLen)
		if _, err := rand.Read(master); err != nil {
			return nil, fmt.Errorf("generating vault key: %w", err)
		}

		if err := v.keys.SetVaultKey(master); err != nil {
			return nil, fmt.Errorf("exporting vault key: %w", err)
		}
	}

	if len(master) != masterKeyLen {
		return nil, fmt.Errorf("%w: stored key has invalid length %d", autherrors.ErrDecryption, len(master))
	}

	aeadKey, err := deriveKey(master, []byte(hkdfInfo), aeadKeyLen)
	if err != nil {
		return nil, fmt.Errorf("deriving AEAD key: %w", err)
	}

	block, err := aes.NewCipher(aeadKey)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	// The cipher retains its own key schedule; drop the derived bytes.
	zero(aeadKey)

	v.gcm = gcm

	return gcm, nil
}

// deriveKey derives keyLen bytes from the master key via HKDF-SHA256.
func deriveKey(master, info []byte, keyLen int) ([]byte, error) {
	r := hkdf.New(sha256.New, master, nil, info)

	out := make([]byte, keyLen)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}

	return out, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
