package deeplink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/lumeo-social/walletbridge/internal/credstore"
	"github.com/lumeo-social/walletbridge/pkg/cryptobox"
)

// FlowState tracks where the redirect protocol stands. The response to each
// launch arrives through a fresh process entry, so the state is persisted and
// only ever advances forward; clearing is the single way back to idle.
type FlowState string

const (
	StateIdle            FlowState = "IDLE"
	StateAwaitingConnect FlowState = "AWAITING_CONNECT"
	StateAwaitingSign    FlowState = "AWAITING_SIGN"
)

// Session is the persisted continuation record for one deeplink flow. At most
// one session exists at a time; starting a new connect supersedes any session
// still awaiting a sign response from another wallet.
type Session struct {
	Keypair          cryptobox.Keypair
	WalletPublicKey  [cryptobox.KeySize]byte
	SessionToken     string
	ConnectedAddress string
	FlowState        FlowState
	PendingMessage   []byte
	WalletBaseURL    string
	WalletPackage    string
}

// persistedSession is the durable JSON form. Key material is base58 so the
// record survives any string-typed store.
type persistedSession struct {
	DappPublicKey    string `json:"dapp_public_key"`
	DappSecretKey    string `json:"dapp_secret_key"`
	WalletPublicKey  string `json:"wallet_public_key,omitempty"`
	SessionToken     string `json:"session_token,omitempty"`
	ConnectedAddress string `json:"connected_address,omitempty"`
	FlowState        string `json:"flow_state"`
	PendingMessage   string `json:"pending_message,omitempty"`
	WalletBaseURL    string `json:"wallet_base_url"`
	WalletPackage    string `json:"wallet_package,omitempty"`
}

func saveSession(ctx context.Context, creds *credstore.Credentials, s *Session) error {
	rec := persistedSession{
		DappPublicKey:    base58.Encode(s.Keypair.Public[:]),
		DappSecretKey:    base58.Encode(s.Keypair.Secret[:]),
		SessionToken:     s.SessionToken,
		ConnectedAddress: s.ConnectedAddress,
		FlowState:        string(s.FlowState),
		WalletBaseURL:    s.WalletBaseURL,
		WalletPackage:    s.WalletPackage,
	}
	if s.WalletPublicKey != ([cryptobox.KeySize]byte{}) {
		rec.WalletPublicKey = base58.Encode(s.WalletPublicKey[:])
	}
	if len(s.PendingMessage) > 0 {
		rec.PendingMessage = base58.Encode(s.PendingMessage)
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode deeplink session: %w", err)
	}
	if err := creds.SetDeeplinkSession(ctx, string(raw)); err != nil {
		return fmt.Errorf("persist deeplink session: %w", err)
	}
	return nil
}

// loadSession returns nil when no session is persisted.
func loadSession(ctx context.Context, creds *credstore.Credentials) (*Session, error) {
	raw, err := creds.DeeplinkSession(ctx)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}

	var rec persistedSession
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode deeplink session: %w", err)
	}

	s := &Session{
		SessionToken:     rec.SessionToken,
		ConnectedAddress: rec.ConnectedAddress,
		FlowState:        FlowState(rec.FlowState),
		WalletBaseURL:    rec.WalletBaseURL,
		WalletPackage:    rec.WalletPackage,
	}

	pub, err := decodeKey(rec.DappPublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode session public key: %w", err)
	}
	sec, err := decodeKey(rec.DappSecretKey)
	if err != nil {
		return nil, fmt.Errorf("decode session secret key: %w", err)
	}
	s.Keypair = cryptobox.Keypair{Public: pub, Secret: sec}

	if rec.WalletPublicKey != "" {
		s.WalletPublicKey, err = decodeKey(rec.WalletPublicKey)
		if err != nil {
			return nil, fmt.Errorf("decode wallet public key: %w", err)
		}
	}
	if rec.PendingMessage != "" {
		s.PendingMessage, err = base58.Decode(rec.PendingMessage)
		if err != nil {
			return nil, fmt.Errorf("decode pending message: %w", err)
		}
	}

	return s, nil
}

func decodeKey(encoded string) ([cryptobox.KeySize]byte, error) {
	raw, err := base58.Decode(encoded)
	if err != nil {
		return [cryptobox.KeySize]byte{}, err
	}
	return cryptobox.KeyFromBytes(raw)
}
