// Package store persists authcore's durable records in a bbolt
// database. Everything needed after the browser navigates away must be
// committed here before navigation begins; the resuming process treats
// this store as the sole source of truth.
//
// Three independently clearable records are kept, plus the
// session-scoped vault key:
//
//   - artifacts: encrypted PKCE artifacts, single slot, short-lived
//   - tokens:    encrypted session token material
//   - profile:   plaintext user profile (contains no secrets)
//   - key:       exported vault key; destroyed on logout
package store

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// storeDirPerm is the permission mode for the state directory (~/.authcore/).
	storeDirPerm = fs.FileMode(0o700)

	// storeFilePerm is the permission mode for the database file.
	storeFilePerm = fs.FileMode(0o600)

	// storeOpenTimeout is the maximum time to wait for the bolt database lock.
	storeOpenTimeout = 5 * time.Second
)

var (
	artifactsBucket = []byte("artifacts")
	tokensBucket    = []byte("tokens")
	profileBucket   = []byte("profile")
	sessionBucket   = []byte("session")

	// slotKey is the single record key within each bucket. Only one
	// login attempt and one session exist per storage area at a time.
	slotKey = []byte("current")

	vaultKeyKey = []byte("vault_key")
)

// Store wraps a bbolt database for all persistent authentication state.
type Store struct {
	db *bolt.DB
}

// Open opens the store at the given path, creating the file and all
// buckets if they do not exist.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), storeDirPerm); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := bolt.Open(path, storeFilePerm, &bolt.Options{Timeout: storeOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening store db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{artifactsBucket, tokensBucket, profileBucket, sessionBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing store db: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetArtifacts overwrites the single artifact slot with an encrypted
// blob. Starting a second login attempt silently supersedes the first.
func (s *Store) SetArtifacts(blob string) error {
	return s.put(artifactsBucket, slotKey, []byte(blob))
}

// Artifacts returns the encrypted artifact blob, or "" when the slot is
// empty.
func (s *Store) Artifacts() string {
	return string(s.get(artifactsBucket, slotKey))
}

// DeleteArtifacts clears the artifact slot. Idempotent.
func (s *Store) DeleteArtifacts() error {
	return s.delete(artifactsBucket, slotKey)
}

// SetTokens overwrites the encrypted session token record.
func (s *Store) SetTokens(blob string) error {
	return s.put(tokensBucket, slotKey, []byte(blob))
}

// Tokens returns the encrypted token blob, or "" when absent.
func (s *Store) Tokens() string {
	return string(s.get(tokensBucket, slotKey))
}

// DeleteTokens clears the token record. Idempotent.
func (s *Store) DeleteTokens() error {
	return s.delete(tokensBucket, slotKey)
}

// SetProfile overwrites the plaintext user profile record. The profile
// contains no secrets; tokens never go through this record.
func (s *Store) SetProfile(data []byte) error {
	return s.put(profileBucket, slotKey, data)
}

// Profile returns the profile record, or nil when absent.
func (s *Store) Profile() []byte {
	return s.get(profileBucket, slotKey)
}

// DeleteProfile clears the profile record. Idempotent.
func (s *Store) DeleteProfile() error {
	return s.delete(profileBucket, slotKey)
}

// SetVaultKey persists exported vault key material in the
// session-scoped slot.
func (s *Store) SetVaultKey(key []byte) error {
	return s.put(sessionBucket, vaultKeyKey, key)
}

// VaultKey returns the exported vault key, or nil when absent.
func (s *Store) VaultKey() []byte {
	return s.get(sessionBucket, vaultKeyKey)
}

// DeleteVaultKey destroys the stored key material, permanently
// invalidating every previously encrypted blob.
func (s *Store) DeleteVaultKey() error {
	return s.delete(sessionBucket, vaultKeyKey)
}

// Wipe clears all three records and the vault key in one transaction.
// Used on logout to guarantee no partial state survives.
func (s *Store) Wipe() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(artifactsBucket).Delete(slotKey); err != nil {
			return err
		}

		if err := tx.Bucket(tokensBucket).Delete(slotKey); err != nil {
			return err
		}

		if err := tx.Bucket(profileBucket).Delete(slotKey); err != nil {
			return err
		}

		return tx.Bucket(sessionBucket).Delete(vaultKeyKey)
	})
}

func (s *Store) put(bucket, key, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(key, value)
	})
}

func (s *Store) get(bucket, key []byte) []byte {
	var out []byte

	_ = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucket).Get(key)
		if v != nil {
			out = make([]byte, len(v))
			copy(out, v)
		}

		return nil
	})

	return out
}

func (s *Store) delete(bucket, key []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete(key)
	})
}
