// Package challenge is the client for the backend sign-in-with-wallet
// collaborator: it fetches the text challenge a wallet signs and completes the
// login with the produced signature. The protocol engine never calls this
// directly; callers pass GenerateChallenge through as the challenge closure.
package challenge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mr-tron/base58"
)

const defaultTimeout = 15 * time.Second

// User is the backend's account record returned on login.
type User struct {
	ID       string `json:"id"`
	Address  string `json:"address"`
	Username string `json:"username"`
}

// Client talks to the backend auth endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a challenge client for a backend base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// GenerateChallenge asks the backend for the challenge text to sign for an
// address.
func (c *Client) GenerateChallenge(ctx context.Context, address string) ([]byte, error) {
	body := map[string]string{"address": address}

	var resp struct {
		Challenge string `json:"challenge"`
	}
	if err := c.post(ctx, "/api/v1/auth/challenge", body, &resp); err != nil {
		return nil, fmt.Errorf("generate challenge: %w", err)
	}
	if resp.Challenge == "" {
		return nil, fmt.Errorf("generate challenge: backend returned empty challenge")
	}
	return []byte(resp.Challenge), nil
}

// CompleteLogin submits the signed challenge and returns the logged-in user.
func (c *Client) CompleteLogin(ctx context.Context, chal string, signature []byte, clientType string) (*User, error) {
	body := map[string]string{
		"challenge":          chal,
		"signature":          base58.Encode(signature),
		"wallet_client_type": clientType,
	}

	var user User
	if err := c.post(ctx, "/api/v1/auth/login", body, &user); err != nil {
		return nil, fmt.Errorf("complete login: %w", err)
	}
	return &user, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("backend returned %d: %s", resp.StatusCode, raw)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
