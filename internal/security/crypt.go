// Package security encrypts provider credentials at rest via NaCl
// secretbox authenticated encryption, keyed by the operator-provided
// secrets-crypt key (spec.md §6, §7 CryptError).
package security

import (
	"crypto/rand"
	"encoding/base64"
	"io"

	ierr "github.com/ledgerbase/billing/internal/errors"
	"golang.org/x/crypto/nacl/secretbox"
)

const keySize = 32

// Crypter seals and opens small secrets (provider API keys, OAuth
// tokens) with a single shared key. It never logs plaintext or key
// material.
type Crypter struct {
	key [keySize]byte
}

// NewCrypter decodes a base64-encoded 32-byte key, the shape
// CryptConfig.SecretKeyBase64 carries (spec.md §6: "secrets-crypt key").
func NewCrypter(secretKeyBase64 string) (*Crypter, error) {
	raw, err := base64.StdEncoding.DecodeString(secretKeyBase64)
	if err != nil {
		return nil, ierr.WithError(err).WithHint("secret key is not valid base64").Mark(ierr.ErrCrypt).Err()
	}
	if len(raw) != keySize {
		return nil, ierr.NewError("secret key has wrong length").
			WithHintf("expected %d bytes, got %d", keySize, len(raw)).
			Mark(ierr.ErrCrypt).Err()
	}
	var c Crypter
	copy(c.key[:], raw)
	return &c, nil
}

// Seal encrypts plaintext, returning a base64 string safe to store in a
// text column: a random 24-byte nonce prepended to the sealed box.
func (c *Crypter) Seal(plaintext []byte) (string, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", ierr.WithError(err).WithHint("failed to generate nonce").Mark(ierr.ErrCrypt).Err()
	}
	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, &c.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a string produced by Seal, rejecting anything whose
// authentication tag doesn't match (tampered or wrong-key ciphertext).
func (c *Crypter) Open(encoded string) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ierr.WithError(err).WithHint("ciphertext is not valid base64").Mark(ierr.ErrCrypt).Err()
	}
	if len(sealed) < 24 {
		return nil, ierr.NewError("ciphertext too short").Mark(ierr.ErrCrypt).Err()
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])

	plaintext, ok := secretbox.Open(nil, sealed[24:], &nonce, &c.key)
	if !ok {
		return nil, ierr.NewError("decryption failed").
			WithHint("ciphertext is tampered or was sealed with a different key").
			Mark(ierr.ErrCrypt).Err()
	}
	return plaintext, nil
}
