package cryptobox

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen_RoundTrip(t *testing.T) {
	alice, err := GenerateKeypair()
	require.NoError(t, err)
	bob, err := GenerateKeypair()
	require.NoError(t, err)

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{name: "empty", plaintext: []byte{}},
		{name: "short", plaintext: []byte("hi")},
		{name: "json payload", plaintext: []byte(`{"session":"abc","message":"3yZe7d"}`)},
		{name: "binary", plaintext: []byte{0x00, 0xff, 0x10, 0x80, 0x7f}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nonce, err := NewNonce()
			require.NoError(t, err)

			ciphertext := Seal(tt.plaintext, nonce, bob.Public, alice.Secret)
			assert.Equal(t, len(tt.plaintext)+Overhead, len(ciphertext))

			// Bob opens with Alice's public key and his own secret. An
			// empty box opens to a nil slice, so compare contents.
			plaintext, ok := Open(ciphertext, nonce, alice.Public, bob.Secret)
			require.True(t, ok)
			assert.True(t, bytes.Equal(tt.plaintext, plaintext))
		})
	}
}

func TestOpen_TamperRejection(t *testing.T) {
	alice, err := GenerateKeypair()
	require.NoError(t, err)
	bob, err := GenerateKeypair()
	require.NoError(t, err)

	nonce, err := NewNonce()
	require.NoError(t, err)

	plaintext := []byte("the challenge to sign")
	ciphertext := Seal(plaintext, nonce, bob.Public, alice.Secret)

	// Flipping any single byte, including the tag bytes, must fail closed.
	for i := range ciphertext {
		tampered := make([]byte, len(ciphertext))
		copy(tampered, ciphertext)
		tampered[i] ^= 0x01

		out, ok := Open(tampered, nonce, alice.Public, bob.Secret)
		assert.False(t, ok, "byte %d", i)
		assert.Nil(t, out, "byte %d", i)
	}
}

func TestOpen_WrongKeyOrNonce(t *testing.T) {
	alice, err := GenerateKeypair()
	require.NoError(t, err)
	bob, err := GenerateKeypair()
	require.NoError(t, err)
	eve, err := GenerateKeypair()
	require.NoError(t, err)

	nonce, err := NewNonce()
	require.NoError(t, err)

	ciphertext := Seal([]byte("secret"), nonce, bob.Public, alice.Secret)

	_, ok := Open(ciphertext, nonce, alice.Public, eve.Secret)
	assert.False(t, ok, "wrong secret key must not open the box")

	otherNonce, err := NewNonce()
	require.NoError(t, err)
	_, ok = Open(ciphertext, otherNonce, alice.Public, bob.Secret)
	assert.False(t, ok, "wrong nonce must not open the box")
}

func TestKeyFromBytes(t *testing.T) {
	_, err := KeyFromBytes(make([]byte, 31))
	assert.Error(t, err)

	raw := make([]byte, KeySize)
	raw[0] = 0x42
	key, err := KeyFromBytes(raw)
	require.NoError(t, err)
	assert.Equal(t, byte(0x42), key[0])
}

func TestNonceFromBytes(t *testing.T) {
	_, err := NonceFromBytes(make([]byte, 12))
	assert.Error(t, err)

	raw := make([]byte, NonceSize)
	raw[23] = 0x7
	nonce, err := NonceFromBytes(raw)
	require.NoError(t, err)
	assert.Equal(t, byte(0x7), nonce[23])
}
