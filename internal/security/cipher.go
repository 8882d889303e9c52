// Package security provides the chat core's cipher surface: an AES-GCM
// implementation with per-message nonces, a rotating key ring, stable-salt
// group key derivation, and signature verifier selection by the algorithm
// bound to the sender's key.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

var (
	ErrInvalidKeySize  = errors.New("security: key must be 32 bytes")
	ErrCiphertextShort = errors.New("security: ciphertext shorter than nonce")
)

// Cipher is the symmetric contract: encrypt(plain, key, iv) -> ct,
// decrypt(ct, key, iv) -> plain. Implementations are AEADs; the "iv" is
// the per-message nonce and is carried as the ciphertext prefix when the
// caller passes a nil nonce to Encrypt.
type Cipher interface {
	Encrypt(plain, key, nonce []byte) ([]byte, error)
	Decrypt(ct, key, nonce []byte) ([]byte, error)
}

// AESGCM is the production Cipher: AES-256-GCM with a fresh random nonce
// per message.
type AESGCM struct{}

func aeadFor(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("security: new cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plain under key. With a nil nonce a fresh random one is
// generated and prefixed to the returned ciphertext; with an explicit
// nonce the caller owns transport of it.
func (AESGCM) Encrypt(plain, key, nonce []byte) ([]byte, error) {
	aead, err := aeadFor(key)
	if err != nil {
		return nil, err
	}

	if nonce == nil {
		nonce = make([]byte, aead.NonceSize())
		if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
			return nil, fmt.Errorf("security: nonce: %w", err)
		}
		return append(nonce, aead.Seal(nil, nonce, plain, nil)...), nil
	}
	return aead.Seal(nil, nonce, plain, nil), nil
}

// Decrypt opens ct. With a nil nonce the nonce is read from the ciphertext
// prefix, matching Encrypt's nil-nonce form.
func (AESGCM) Decrypt(ct, key, nonce []byte) ([]byte, error) {
	aead, err := aeadFor(key)
	if err != nil {
		return nil, err
	}

	if nonce == nil {
		if len(ct) < aead.NonceSize() {
			return nil, ErrCiphertextShort
		}
		nonce, ct = ct[:aead.NonceSize()], ct[aead.NonceSize():]
	}
	return aead.Open(nil, nonce, ct, nil)
}
