package security

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"
)

var (
	ErrKeyNotFound = errors.New("security: key id not found")
	ErrKeyRetired  = errors.New("security: key retired past grace period")
)

// keyRecord is one generation of a named key.
type keyRecord struct {
	material  []byte
	current   bool
	retiredAt time.Time // zero while current
}

// KeyRing stores symmetric keys by id with rotation: Rotate mints fresh
// material under a new generation id, marks the old one non-current, and
// retains it for decryption until the grace period elapses.
type KeyRing struct {
	grace time.Duration

	mu   sync.RWMutex
	keys map[string]*keyRecord
	gen  map[string]int // base id -> current generation counter
}

func NewKeyRing(grace time.Duration) *KeyRing {
	if grace <= 0 {
		grace = 24 * time.Hour
	}
	return &KeyRing{
		grace: grace,
		keys:  make(map[string]*keyRecord),
		gen:   make(map[string]int),
	}
}

// Generate mints a fresh 32-byte key under keyID and marks it current.
func (r *KeyRing) Generate(keyID string) error {
	material := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, material); err != nil {
		return fmt.Errorf("security: generate key: %w", err)
	}
	r.mu.Lock()
	r.keys[keyID] = &keyRecord{material: material, current: true}
	r.mu.Unlock()
	return nil
}

// Current returns the active key material for keyID.
func (r *KeyRing) Current(keyID string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.keys[keyID]
	if !ok || !rec.current {
		return nil, ErrKeyNotFound
	}
	return rec.material, nil
}

// ForDecrypt returns key material for keyID whether current or retired,
// as long as a retired key is still inside the grace period.
func (r *KeyRing) ForDecrypt(keyID string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.keys[keyID]
	if !ok {
		return nil, ErrKeyNotFound
	}
	if !rec.current && time.Since(rec.retiredAt) > r.grace {
		return nil, ErrKeyRetired
	}
	return rec.material, nil
}

// Rotate mints fresh material under a new generation id ("<keyID>.g<N>"),
// marks the old record non-current (retained for decrypt until grace
// period), and returns the new id.
func (r *KeyRing) Rotate(keyID string) (string, error) {
	material := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, material); err != nil {
		return "", fmt.Errorf("security: rotate key: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.keys[keyID]
	if !ok {
		return "", ErrKeyNotFound
	}
	old.current = false
	old.retiredAt = time.Now()

	r.gen[keyID]++
	newID := fmt.Sprintf("%s.g%d", keyID, r.gen[keyID])
	r.keys[newID] = &keyRecord{material: material, current: true}
	return newID, nil
}

// Sweep drops retired keys past the grace period. Returns the count removed.
func (r *KeyRing) Sweep() int {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, rec := range r.keys {
		if !rec.current && now.Sub(rec.retiredAt) > r.grace {
			delete(r.keys, id)
			removed++
		}
	}
	return removed
}

// DeriveGroupKey derives a 32-byte group key from the group's master
// secret and its stable per-group salt. The salt is persisted alongside
// the group record (model.Group.KeySalt) and never regenerated per call:
// a fresh salt each call would make encrypt and decrypt disagree.
func DeriveGroupKey(master, salt []byte, groupID string) ([]byte, error) {
	if len(salt) == 0 {
		return nil, errors.New("security: group key requires the stored salt")
	}
	kdf := hkdf.New(sha256.New, master, salt, []byte("group:"+groupID))
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("security: derive group key: %w", err)
	}
	return key, nil
}
