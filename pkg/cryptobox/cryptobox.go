// Package cryptobox wraps the NaCl box construction (X25519 key agreement
// with XSalsa20-Poly1305) used to secure the deeplink wallet protocol.
package cryptobox

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/box"
)

const (
	// KeySize is the byte length of X25519 public and secret keys.
	KeySize = 32

	// NonceSize is the byte length of a box nonce.
	NonceSize = 24

	// Overhead is the Poly1305 tag length added to every ciphertext.
	Overhead = box.Overhead
)

// Keypair is an ephemeral X25519 keypair.
type Keypair struct {
	Public [KeySize]byte
	Secret [KeySize]byte
}

// GenerateKeypair creates a fresh X25519 keypair.
func GenerateKeypair() (*Keypair, error) {
	pub, sec, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &Keypair{Public: *pub, Secret: *sec}, nil
}

// NewNonce returns a fresh random nonce. A nonce must never be reused with
// the same key pair.
func NewNonce() ([NonceSize]byte, error) {
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nonce, fmt.Errorf("generate nonce: %w", err)
	}
	return nonce, nil
}

// Seal encrypts and authenticates plaintext for theirPublic using ourSecret.
// The ciphertext is len(plaintext)+Overhead bytes.
func Seal(plaintext []byte, nonce [NonceSize]byte, theirPublic, ourSecret [KeySize]byte) []byte {
	return box.Seal(nil, plaintext, &nonce, &theirPublic, &ourSecret)
}

// Open authenticates and decrypts ciphertext produced by Seal. It returns
// false on any authentication failure; callers must treat that as final for
// the current key material, never as a condition to retry with the same nonce.
func Open(ciphertext []byte, nonce [NonceSize]byte, theirPublic, ourSecret [KeySize]byte) ([]byte, bool) {
	return box.Open(nil, ciphertext, &nonce, &theirPublic, &ourSecret)
}

// KeyFromBytes copies a raw 32-byte key into a fixed-size key array.
func KeyFromBytes(b []byte) ([KeySize]byte, error) {
	var key [KeySize]byte
	if len(b) != KeySize {
		return key, fmt.Errorf("invalid key length: %d", len(b))
	}
	copy(key[:], b)
	return key, nil
}

// NonceFromBytes copies a raw 24-byte nonce into a fixed-size nonce array.
func NonceFromBytes(b []byte) ([NonceSize]byte, error) {
	var nonce [NonceSize]byte
	if len(b) != NonceSize {
		return nonce, fmt.Errorf("invalid nonce length: %d", len(b))
	}
	copy(nonce[:], b)
	return nonce, nil
}
