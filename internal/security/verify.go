package security

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
)

// EncryptionType tags the algorithm bound to a sender's public key. The
// verifier is always selected by this tag, never hardcoded to one
// algorithm.
type EncryptionType int8

const (
	EncryptionRSA EncryptionType = iota + 1
	EncryptionEd25519
)

func (t EncryptionType) String() string {
	switch t {
	case EncryptionRSA:
		return "rsa"
	case EncryptionEd25519:
		return "ed25519"
	default:
		return "unknown"
	}
}

var ErrUnknownEncryptionType = errors.New("security: unknown encryption type")

// Verifier checks a signature over a message with a sender's public key.
type Verifier interface {
	Verify(pub crypto.PublicKey, message, sig []byte) error
}

type rsaVerifier struct{}

func (rsaVerifier) Verify(pub crypto.PublicKey, message, sig []byte) error {
	key, ok := pub.(*rsa.PublicKey)
	if !ok {
		return errors.New("security: not an RSA public key")
	}
	digest := sha256.Sum256(message)
	return rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], sig)
}

type ed25519Verifier struct{}

func (ed25519Verifier) Verify(pub crypto.PublicKey, message, sig []byte) error {
	key, ok := pub.(ed25519.PublicKey)
	if !ok {
		return errors.New("security: not an Ed25519 public key")
	}
	if !ed25519.Verify(key, message, sig) {
		return errors.New("security: ed25519 signature mismatch")
	}
	return nil
}

// VerifierFor selects the verifier matching the algorithm bound to the
// sender's key.
func VerifierFor(t EncryptionType) (Verifier, error) {
	switch t {
	case EncryptionRSA:
		return rsaVerifier{}, nil
	case EncryptionEd25519:
		return ed25519Verifier{}, nil
	default:
		return nil, ErrUnknownEncryptionType
	}
}
