package challenge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateChallenge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/auth/challenge", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "addr-1", body["address"])

		json.NewEncoder(w).Encode(map[string]string{"challenge": "sign in to lumeo: 42"})
	}))
	defer srv.Close()

	chal, err := New(srv.URL).GenerateChallenge(context.Background(), "addr-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("sign in to lumeo: 42"), chal)
}

func TestGenerateChallenge_EmptyChallenge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	_, err := New(srv.URL).GenerateChallenge(context.Background(), "addr-1")
	assert.Error(t, err)
}

func TestCompleteLogin(t *testing.T) {
	sig := []byte("ed25519-signature")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/auth/login", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "challenge-text", body["challenge"])
		assert.Equal(t, base58.Encode(sig), body["signature"])
		assert.Equal(t, "phantom", body["wallet_client_type"])

		json.NewEncoder(w).Encode(User{ID: "u1", Address: "addr-1", Username: "ada"})
	}))
	defer srv.Close()

	user, err := New(srv.URL).CompleteLogin(context.Background(), "challenge-text", sig, "phantom")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "ada", user.Username)
}

func TestCompleteLogin_BackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := New(srv.URL).CompleteLogin(context.Background(), "c", []byte("s"), "phantom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
