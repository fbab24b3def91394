// Package deeplink drives the URL-redirect wallet protocol: each step is a
// wallet-app launch followed by a redirect callback, potentially across an app
// restart, so the flow state is a persisted continuation record rather than an
// in-memory task. Payloads are sealed with an X25519 NaCl box.
package deeplink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/lumeo-social/walletbridge/internal/credstore"
	"github.com/lumeo-social/walletbridge/internal/logger"
	"github.com/lumeo-social/walletbridge/internal/walletid"
	"github.com/lumeo-social/walletbridge/pkg/cryptobox"
	"github.com/lumeo-social/walletbridge/pkg/walleterr"
)

// Wallet-side callback error code for a user declining the request.
const codeUserRejected = 4001

const encryptionKeyParamSuffix = "_encryption_public_key"

// URLOpener dispatches an outbound wallet URL. Fire-and-forget; the reply
// arrives later as a redirect callback.
type URLOpener interface {
	OpenURL(ctx context.Context, rawURL string) error
}

// URLOpenerFunc adapts a function to the URLOpener interface.
type URLOpenerFunc func(ctx context.Context, rawURL string) error

// OpenURL calls the wrapped function.
func (f URLOpenerFunc) OpenURL(ctx context.Context, rawURL string) error {
	return f(ctx, rawURL)
}

// Config holds the deeplink client parameters.
type Config struct {
	// AppURL identifies the dapp to the wallet on connect.
	AppURL string

	// RedirectScheme is the custom URI scheme the wallet redirects back to.
	RedirectScheme string

	// Cluster names the chain cluster passed on connect.
	Cluster string
}

// ConnectResult is the outcome of a completed connect round trip.
type ConnectResult struct {
	Address    string
	WalletName string
	ClientType string
}

// Client drives the connect/sign flow. All state lives in the persisted
// session; the client itself is stateless and safe for concurrent use, though
// the protocol allows only one in-flight session device-wide.
type Client struct {
	cfg    Config
	creds  *credstore.Credentials
	opener URLOpener
}

// New creates a deeplink client.
func New(cfg Config, creds *credstore.Credentials, opener URLOpener) *Client {
	return &Client{cfg: cfg, creds: creds, opener: opener}
}

// StartConnect begins a connect flow against a wallet. A fresh keypair is
// generated per attempt and the session is persisted before the launch, since
// the response may arrive after process death. Any prior session, including
// one still awaiting a sign response from a different wallet, is superseded.
func (c *Client) StartConnect(ctx context.Context, walletBaseURL, walletPackage string) error {
	keypair, err := cryptobox.GenerateKeypair()
	if err != nil {
		return walleterr.Unknown(err)
	}

	s := &Session{
		Keypair:       *keypair,
		FlowState:     StateAwaitingConnect,
		WalletBaseURL: walletBaseURL,
		WalletPackage: walletPackage,
	}
	if err := saveSession(ctx, c.creds, s); err != nil {
		return walleterr.Unknown(err)
	}

	q := url.Values{}
	q.Set("app_url", c.cfg.AppURL)
	q.Set("dapp_encryption_public_key", base58.Encode(s.Keypair.Public[:]))
	q.Set("redirect_link", c.redirectLink("on_connect"))
	q.Set("cluster", c.cfg.Cluster)

	connectURL := fmt.Sprintf("%s/connect?%s", strings.TrimRight(walletBaseURL, "/"), q.Encode())
	logger.Info(ctx, "launching wallet connect", "wallet_base_url", walletBaseURL)

	if err := c.opener.OpenURL(ctx, connectURL); err != nil {
		// The wallet was never launched, so no callback can ever arrive for
		// this session. Drop it rather than strand the flow in
		// AWAITING_CONNECT.
		c.ClearSession(ctx)
		return walleterr.Classify(fmt.Errorf("launch connect url: %w", err))
	}
	return nil
}

// HandleConnectResponse completes the connect round trip from the redirect
// callback. An errorCode parameter short-circuits to a typed failure without
// touching the session; a callback with no session awaiting connect is a
// stale or replayed intent and is rejected without mutating state.
func (c *Client) HandleConnectResponse(ctx context.Context, callbackURL string) (*ConnectResult, error) {
	s, err := loadSession(ctx, c.creds)
	if err != nil {
		return nil, walleterr.Unknown(err)
	}
	if s == nil || s.FlowState != StateAwaitingConnect {
		return nil, walleterr.SessionTerminated()
	}

	params, err := callbackParams(callbackURL)
	if err != nil {
		return nil, walleterr.Unknown(err)
	}
	if werr := callbackError(params); werr != nil {
		return nil, werr
	}

	walletPub, nonce, data, err := decodeCallbackCrypto(params)
	if err != nil {
		return nil, walleterr.Unknown(err)
	}

	plaintext, ok := cryptobox.Open(data, nonce, walletPub, s.Keypair.Secret)
	if !ok {
		// Stale key material; wipe the session so nothing retries against it.
		c.ClearSession(ctx)
		return nil, walleterr.Unknown(fmt.Errorf("connect response failed authentication"))
	}

	var payload struct {
		PublicKey string `json:"public_key"`
		Session   string `json:"session"`
	}
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		c.ClearSession(ctx)
		return nil, walleterr.Unknown(fmt.Errorf("decode connect payload: %w", err))
	}

	s.WalletPublicKey = walletPub
	s.ConnectedAddress = payload.PublicKey
	s.SessionToken = payload.Session
	s.FlowState = StateAwaitingSign
	if err := saveSession(ctx, c.creds, s); err != nil {
		return nil, walleterr.Unknown(err)
	}

	id := walletid.Resolve(s.WalletBaseURL, s.WalletPackage)
	logger.Info(ctx, "deeplink connect completed",
		"address", s.ConnectedAddress, "wallet", id.DisplayName)

	return &ConnectResult{
		Address:    s.ConnectedAddress,
		WalletName: id.DisplayName,
		ClientType: id.ClientType,
	}, nil
}

// signPayload is the sealed body of a sign-message launch.
type signPayload struct {
	Session string `json:"session"`
	Message string `json:"message"`
	Display string `json:"display"`
}

// StartSignMessage launches the sign step for a connected session. The
// message is persisted before the launch so the flow can resume after a
// process restart.
func (c *Client) StartSignMessage(ctx context.Context, message []byte) error {
	s, err := loadSession(ctx, c.creds)
	if err != nil {
		return walleterr.Unknown(err)
	}
	if s == nil || s.FlowState != StateAwaitingSign {
		return walleterr.SessionTerminated()
	}

	s.PendingMessage = message
	if err := saveSession(ctx, c.creds, s); err != nil {
		return walleterr.Unknown(err)
	}

	nonce, err := cryptobox.NewNonce()
	if err != nil {
		return walleterr.Unknown(err)
	}

	raw, err := json.Marshal(signPayload{
		Session: s.SessionToken,
		Message: base58.Encode(message),
		Display: "utf8",
	})
	if err != nil {
		return walleterr.Unknown(fmt.Errorf("encode sign payload: %w", err))
	}
	sealed := cryptobox.Seal(raw, nonce, s.WalletPublicKey, s.Keypair.Secret)

	q := url.Values{}
	q.Set("dapp_encryption_public_key", base58.Encode(s.Keypair.Public[:]))
	q.Set("nonce", base58.Encode(nonce[:]))
	q.Set("redirect_link", c.redirectLink("on_sign_message"))
	q.Set("payload", base58.Encode(sealed))

	signURL := fmt.Sprintf("%s/signMessage?%s", strings.TrimRight(s.WalletBaseURL, "/"), q.Encode())
	logger.Info(ctx, "launching wallet sign", "wallet_base_url", s.WalletBaseURL)

	if err := c.opener.OpenURL(ctx, signURL); err != nil {
		// The sign request never reached the wallet. Unstage the message but
		// keep the connected session so the caller can retry.
		s.PendingMessage = nil
		if saveErr := saveSession(ctx, c.creds, s); saveErr != nil {
			logger.Warn(ctx, "unstage pending message", "error", saveErr)
		}
		return walleterr.Classify(fmt.Errorf("launch sign url: %w", err))
	}
	return nil
}

// HandleSignResponse completes the sign round trip and returns the signature
// bytes. The session is cleared on success and on permanent failure so no
// later callback can decrypt against a superseded keypair.
func (c *Client) HandleSignResponse(ctx context.Context, callbackURL string) ([]byte, error) {
	s, err := loadSession(ctx, c.creds)
	if err != nil {
		return nil, walleterr.Unknown(err)
	}
	if s == nil || s.FlowState != StateAwaitingSign {
		return nil, walleterr.SessionTerminated()
	}

	params, err := callbackParams(callbackURL)
	if err != nil {
		return nil, walleterr.Unknown(err)
	}
	if werr := callbackError(params); werr != nil {
		return nil, werr
	}

	nonceRaw, err := base58.Decode(params.Get("nonce"))
	if err != nil {
		return nil, walleterr.Unknown(fmt.Errorf("decode nonce: %w", err))
	}
	nonce, err := cryptobox.NonceFromBytes(nonceRaw)
	if err != nil {
		return nil, walleterr.Unknown(err)
	}
	data, err := base58.Decode(params.Get("data"))
	if err != nil {
		return nil, walleterr.Unknown(fmt.Errorf("decode data: %w", err))
	}

	plaintext, ok := cryptobox.Open(data, nonce, s.WalletPublicKey, s.Keypair.Secret)
	if !ok {
		c.ClearSession(ctx)
		return nil, walleterr.Unknown(fmt.Errorf("sign response failed authentication"))
	}

	var payload struct {
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		c.ClearSession(ctx)
		return nil, walleterr.Unknown(fmt.Errorf("decode sign payload: %w", err))
	}

	signature, err := base58.Decode(payload.Signature)
	if err != nil {
		c.ClearSession(ctx)
		return nil, walleterr.Unknown(fmt.Errorf("decode signature: %w", err))
	}

	c.ClearSession(ctx)
	return signature, nil
}

// ConnectedAddress returns the address of the session awaiting sign, or ""
// when no connected session exists.
func (c *Client) ConnectedAddress(ctx context.Context) (string, error) {
	s, err := loadSession(ctx, c.creds)
	if err != nil {
		return "", err
	}
	if s == nil || s.FlowState != StateAwaitingSign {
		return "", nil
	}
	return s.ConnectedAddress, nil
}

// ClearSession wipes the persisted session and returns the flow to idle.
func (c *Client) ClearSession(ctx context.Context) {
	if err := c.creds.RemoveDeeplinkSession(ctx); err != nil {
		logger.Warn(ctx, "clear deeplink session", "error", err)
	}
}

func (c *Client) redirectLink(step string) string {
	return fmt.Sprintf("%s://wallet/%s", c.cfg.RedirectScheme, step)
}

func callbackParams(callbackURL string) (url.Values, error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return nil, fmt.Errorf("parse callback url: %w", err)
	}
	return u.Query(), nil
}

// callbackError maps an errorCode callback parameter to a typed failure, or
// nil when the callback is a success.
func callbackError(params url.Values) *walleterr.Error {
	codeStr := params.Get("errorCode")
	if codeStr == "" {
		return nil
	}
	code, err := strconv.ParseInt(codeStr, 10, 64)
	if err != nil {
		code = 0
	}
	msg := params.Get("errorMessage")

	if code == codeUserRejected {
		return walleterr.UserCancelled()
	}
	return walleterr.WalletRejected(code, msg)
}

// decodeCallbackCrypto extracts the wallet public key, nonce and ciphertext
// from a success callback. Provider-prefixed key parameter names (for example
// phantom_encryption_public_key) are normalized by suffix matching.
func decodeCallbackCrypto(params url.Values) (pub [cryptobox.KeySize]byte, nonce [cryptobox.NonceSize]byte, data []byte, err error) {
	var pubEncoded string
	for name := range params {
		if strings.HasSuffix(name, encryptionKeyParamSuffix) {
			pubEncoded = params.Get(name)
			break
		}
	}
	if pubEncoded == "" {
		return pub, nonce, nil, fmt.Errorf("callback missing wallet encryption public key")
	}

	pubRaw, err := base58.Decode(pubEncoded)
	if err != nil {
		return pub, nonce, nil, fmt.Errorf("decode wallet public key: %w", err)
	}
	if pub, err = cryptobox.KeyFromBytes(pubRaw); err != nil {
		return pub, nonce, nil, err
	}

	nonceRaw, err := base58.Decode(params.Get("nonce"))
	if err != nil {
		return pub, nonce, nil, fmt.Errorf("decode nonce: %w", err)
	}
	if nonce, err = cryptobox.NonceFromBytes(nonceRaw); err != nil {
		return pub, nonce, nil, err
	}

	data, err = base58.Decode(params.Get("data"))
	if err != nil {
		return pub, nonce, nil, fmt.Errorf("decode data: %w", err)
	}
	return pub, nonce, data, nil
}
