// Package mwa drives the local-socket wallet association protocol: open an
// association handle, launch the wallet app, complete the session handshake,
// run the requested RPCs, and release the handle on every exit path.
package mwa

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/lumeo-social/walletbridge/internal/credstore"
	"github.com/lumeo-social/walletbridge/internal/logger"
	"github.com/lumeo-social/walletbridge/internal/metrics"
	"github.com/lumeo-social/walletbridge/internal/walletid"
	"github.com/lumeo-social/walletbridge/pkg/walleterr"
)

// MaxReauthAttempts bounds consecutive reauthorization failures before a
// signing call stops trying the stored token and performs a full authorize.
const MaxReauthAttempts = 3

// AuthResult is the outcome of a completed (re)authorization.
type AuthResult struct {
	Address       string
	AuthToken     string
	WalletURIBase string
	WalletName    string
	ClientType    string
}

// ChallengeFunc produces the message to sign for a just-authorized address.
type ChallengeFunc func(ctx context.Context, address string) ([]byte, error)

// Config holds the MWA client parameters.
type Config struct {
	IdentityName string
	IdentityURI  string
	Chain        string

	AssociationTimeout         time.Duration
	ExtendedAssociationTimeout time.Duration
	HandshakeTimeout           time.Duration

	// ExcludedServices lists packages that register the association scheme
	// but never complete a session (background TEE/system services).
	ExcludedServices []string

	// HardwareWallets lists packages whose users confirm on hardware; they
	// get the extended association timeout.
	HardwareWallets []string

	// Endpoint overrides the association dial address (tests only).
	Endpoint string
}

// Client is the MWA session client. Each call opens an independent
// association handle; the credential store and the resolved-handler cache are
// the only state shared across concurrent calls.
type Client struct {
	cfg      Config
	creds    *credstore.Credentials
	registry AppRegistry
	launcher Launcher

	excluded map[string]bool
	hardware map[string]bool

	// handlerCache remembers which installed package would answer a generic
	// launch; "" means ambiguous (more than one known wallet installed).
	handlerCache *walletid.TTLCache[string]

	reauthFailures atomic.Int32
}

// New creates an MWA client.
func New(cfg Config, creds *credstore.Credentials, registry AppRegistry, launcher Launcher) *Client {
	if cfg.AssociationTimeout <= 0 {
		cfg.AssociationTimeout = 30 * time.Second
	}
	if cfg.ExtendedAssociationTimeout <= 0 {
		cfg.ExtendedAssociationTimeout = 60 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 45 * time.Second
	}

	c := &Client{
		cfg:          cfg,
		creds:        creds,
		registry:     registry,
		launcher:     launcher,
		excluded:     make(map[string]bool),
		hardware:     make(map[string]bool),
		handlerCache: walletid.NewTTLCache[string](walletid.DefaultCacheTTL),
	}
	for _, pkg := range cfg.ExcludedServices {
		c.excluded[pkg] = true
	}
	for _, pkg := range cfg.HardwareWallets {
		c.hardware[pkg] = true
	}
	return c
}

// ResetSession zeroes the reauthorization failure counter. Called at the
// start of a new logical login.
func (c *Client) ResetSession() {
	c.reauthFailures.Store(0)
	c.handlerCache.Invalidate()
}

// Authorize performs a full authorization against the wallet, optionally
// targeting a specific package.
func (c *Client) Authorize(ctx context.Context, targetPkg string) (*AuthResult, error) {
	var result *AuthResult
	err := c.withSession(ctx, targetPkg, func(ctx context.Context, s *session) error {
		res, err := s.authorize(ctx, c.identity(), c.cfg.Chain)
		if err != nil {
			return err
		}
		c.reauthFailures.Store(0)
		result, err = c.persistAuth(ctx, res, s.resolvedPkg)
		return err
	})
	if err != nil {
		return nil, walleterr.Classify(err)
	}
	return result, nil
}

// AuthorizeAndSignMessage authorizes, obtains the challenge for the
// authorized address, and signs it within the same association. A failing
// challenge provider yields MessageProviderFailed carrying the completed
// authorization so the caller can retry signing without re-authorizing.
func (c *Client) AuthorizeAndSignMessage(ctx context.Context, targetPkg string, challenge ChallengeFunc) (*AuthResult, []byte, error) {
	var (
		result    *AuthResult
		signature []byte
	)
	err := c.withSession(ctx, targetPkg, func(ctx context.Context, s *session) error {
		res, err := s.authorize(ctx, c.identity(), c.cfg.Chain)
		if err != nil {
			return err
		}
		c.reauthFailures.Store(0)
		result, err = c.persistAuth(ctx, res, s.resolvedPkg)
		if err != nil {
			return err
		}

		msg, err := challenge(ctx, result.Address)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			return walleterr.MessageProviderFailed(partialFrom(result), err)
		}

		signature, err = s.signMessages(ctx, result.Address, msg)
		return err
	})
	if err != nil {
		return nil, nil, walleterr.Classify(err)
	}
	return result, signature, nil
}

// SignMessage signs a detached message, reauthorizing with the stored token
// when possible and falling back to a full authorization otherwise.
func (c *Client) SignMessage(ctx context.Context, msg []byte, targetPkg string) ([]byte, error) {
	var signature []byte
	err := c.withSession(ctx, targetPkg, func(ctx context.Context, s *session) error {
		auth, err := c.ensureAuthorized(ctx, s)
		if err != nil {
			return err
		}
		signature, err = s.signMessages(ctx, auth.Address, msg)
		return err
	})
	if err != nil {
		return nil, walleterr.Classify(err)
	}
	return signature, nil
}

// SignTransaction signs a serialized transaction payload, with the same
// reauthorize-then-authorize policy as SignMessage.
func (c *Client) SignTransaction(ctx context.Context, tx []byte, targetPkg string) ([]byte, error) {
	var signed []byte
	err := c.withSession(ctx, targetPkg, func(ctx context.Context, s *session) error {
		if _, err := c.ensureAuthorized(ctx, s); err != nil {
			return err
		}
		var err error
		signed, err = s.signTransactions(ctx, tx)
		return err
	})
	if err != nil {
		return nil, walleterr.Classify(err)
	}
	return signed, nil
}

// session is one association lifecycle with its resolved launch target.
type session struct {
	handle      *assocHandle
	resolvedPkg string
}

// withSession runs fn inside a fresh association. The handle is released on
// every exit path, typed failure and panic included.
func (c *Client) withSession(ctx context.Context, targetPkg string, fn func(context.Context, *session) error) error {
	target, resolvedPkg, err := c.resolveTarget(targetPkg)
	if err != nil {
		return err
	}

	cfg := assocConfig{
		associationTimeout: c.associationTimeoutFor(targetPkg),
		handshakeTimeout:   c.cfg.HandshakeTimeout,
		uriPrefix:          c.storedURIBase(ctx, targetPkg, resolvedPkg),
		endpoint:           c.cfg.Endpoint,
	}

	handle, err := associate(ctx, cfg, c.launcher, target)
	if err != nil {
		return err
	}
	defer handle.Close()

	return fn(ctx, &session{handle: handle, resolvedPkg: resolvedPkg})
}

// associationTimeoutFor selects the extended timeout for hardware-confirmed
// wallet classes.
func (c *Client) associationTimeoutFor(targetPkg string) time.Duration {
	if c.hardware[targetPkg] {
		return c.cfg.ExtendedAssociationTimeout
	}
	return c.cfg.AssociationTimeout
}

// resolveTarget picks the launch target. A specific wallet resolves to its
// exact handler when installed, preferring component-level targeting; if its
// handler is missing the launch falls back to unconstrained. An untargeted
// launch is always unconstrained, but the would-be generic handler is cached
// for display-name fallback; while that entry is fresh the installed-app
// enumeration is skipped entirely.
func (c *Client) resolveTarget(targetPkg string) (*AppInfo, string, error) {
	if targetPkg == "" {
		if cached, ok := c.handlerCache.Get(); ok {
			return nil, cached, nil
		}
	}

	handlers := c.usableHandlers()
	if len(handlers) == 0 {
		return nil, "", walleterr.ErrNoHandler
	}

	if targetPkg != "" {
		for i := range handlers {
			if handlers[i].Package == targetPkg {
				return &handlers[i], targetPkg, nil
			}
		}
		// Target not installed under that package: unconstrained launch,
		// the OS may present a chooser.
		return nil, "", nil
	}

	return nil, c.genericHandler(handlers), nil
}

// storedURIBase returns the wallet URI base recorded by an earlier
// authorization, so a previously-connected wallet is launched directly. The
// lookup is package-keyed; a targeted launch never falls back to another
// wallet's record. Untargeted launches with no resolved package may use the
// base stored under the last-used address, since that wallet answered the
// previous generic launch.
func (c *Client) storedURIBase(ctx context.Context, targetPkg, resolvedPkg string) string {
	pkg := targetPkg
	if pkg == "" {
		pkg = resolvedPkg
	}
	if pkg != "" {
		base, err := c.creds.WalletURIBaseForPackage(ctx, pkg)
		if err != nil {
			logger.Debug(ctx, "stored uri base lookup failed", "package", pkg, "error", err)
			return ""
		}
		if base != "" || targetPkg != "" {
			return base
		}
	}

	address, err := c.creds.LastUsedAddress(ctx)
	if err != nil || address == "" {
		return ""
	}
	base, err := c.creds.WalletURIBaseForAddress(ctx, address)
	if err != nil {
		return ""
	}
	return base
}

// usableHandlers enumerates scheme handlers minus excluded background
// services, preferring component-level entries per package.
func (c *Client) usableHandlers() []AppInfo {
	all := c.registry.HandlersForScheme(AssociationScheme)
	byPkg := make(map[string]AppInfo)
	order := make([]string, 0, len(all))
	for _, h := range all {
		if h.Service || c.excluded[h.Package] {
			continue
		}
		existing, seen := byPkg[h.Package]
		if !seen {
			byPkg[h.Package] = h
			order = append(order, h.Package)
			continue
		}
		if existing.Component == "" && h.Component != "" {
			byPkg[h.Package] = h
		}
	}

	out := make([]AppInfo, 0, len(order))
	for _, pkg := range order {
		out = append(out, byPkg[pkg])
	}
	return out
}

// genericHandler returns the package a generic launch would reach, or ""
// when that is ambiguous (more than one known wallet installed). The answer
// is cached with a TTL because app enumeration is expensive.
func (c *Client) genericHandler(handlers []AppInfo) string {
	var known []string
	for _, h := range handlers {
		if _, ok := walletid.FromPackage(h.Package); ok {
			known = append(known, h.Package)
		}
	}

	resolved := ""
	if len(known) == 1 {
		resolved = known[0]
	}
	c.handlerCache.Set(resolved)
	return resolved
}

// ensureAuthorized reauthorizes with the stored token when one exists and
// the failure counter is under the bound; otherwise (or when reauthorization
// fails) it performs a full authorization and resets the counter.
func (c *Client) ensureAuthorized(ctx context.Context, s *session) (*AuthResult, error) {
	address, err := c.creds.LastUsedAddress(ctx)
	if err != nil {
		return nil, err
	}

	if address != "" {
		token, err := c.creds.AuthToken(ctx, address)
		if err != nil {
			return nil, err
		}
		if token != "" && int(c.reauthFailures.Load()) < MaxReauthAttempts {
			res, err := s.reauthorize(ctx, c.identity(), token)
			if err == nil {
				// The failure streak is broken.
				c.reauthFailures.Store(0)
				return c.persistAuth(ctx, res, s.resolvedPkg)
			}
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			failures := c.reauthFailures.Add(1)
			metrics.ReauthFallback()
			logger.Warn(ctx, "reauthorization failed, falling back to full authorize",
				"address", address, "consecutive_failures", failures, "error", err)
		}
	}

	res, err := s.authorize(ctx, c.identity(), c.cfg.Chain)
	if err != nil {
		return nil, err
	}
	c.reauthFailures.Store(0)
	return c.persistAuth(ctx, res, s.resolvedPkg)
}

// persistAuth stores the rotated token and URI base and resolves the wallet
// identity for the caller.
func (c *Client) persistAuth(ctx context.Context, res *authorizeResult, resolvedPkg string) (*AuthResult, error) {
	if len(res.Accounts) == 0 {
		return nil, fmt.Errorf("authorize response carried no accounts")
	}
	address := res.Accounts[0].Address

	if err := c.creds.SetAuthToken(ctx, address, res.AuthToken); err != nil {
		return nil, err
	}
	if res.WalletURIBase != "" {
		if err := c.creds.SetWalletURIBaseForAddress(ctx, address, res.WalletURIBase); err != nil {
			return nil, err
		}
		if resolvedPkg != "" {
			if err := c.creds.SetWalletURIBaseForPackage(ctx, resolvedPkg, res.WalletURIBase); err != nil {
				return nil, err
			}
		}
	}

	id := walletid.Resolve(res.WalletURIBase, resolvedPkg)
	return &AuthResult{
		Address:       address,
		AuthToken:     res.AuthToken,
		WalletURIBase: res.WalletURIBase,
		WalletName:    id.DisplayName,
		ClientType:    id.ClientType,
	}, nil
}

func (c *Client) identity() identityJSON {
	return identityJSON{Name: c.cfg.IdentityName, URI: c.cfg.IdentityURI}
}

func partialFrom(res *AuthResult) *walleterr.PartialAuth {
	return &walleterr.PartialAuth{
		Address:       res.Address,
		AuthToken:     res.AuthToken,
		WalletURIBase: res.WalletURIBase,
		WalletName:    res.WalletName,
		ClientType:    res.ClientType,
	}
}

// RPC payloads.

type identityJSON struct {
	Name string `json:"name"`
	URI  string `json:"uri"`
}

type authorizeParams struct {
	Identity  identityJSON `json:"identity"`
	Chain     string       `json:"chain"`
	AuthToken *string      `json:"auth_token"`
}

type reauthorizeParams struct {
	Identity  identityJSON `json:"identity"`
	AuthToken string       `json:"auth_token"`
}

type accountJSON struct {
	Address string `json:"address"`
	Label   string `json:"label,omitempty"`
}

type authorizeResult struct {
	AuthToken     string        `json:"auth_token"`
	Accounts      []accountJSON `json:"accounts"`
	WalletURIBase string        `json:"wallet_uri_base,omitempty"`
}

type signMessagesParams struct {
	Addresses []string `json:"addresses"`
	Payloads  []string `json:"payloads"`
}

type signTransactionsParams struct {
	Payloads []string `json:"payloads"`
}

type signResult struct {
	SignedPayloads []string `json:"signed_payloads"`
}

func (s *session) authorize(ctx context.Context, id identityJSON, chain string) (*authorizeResult, error) {
	var result authorizeResult
	err := s.handle.conn.call(ctx, "authorize", authorizeParams{
		Identity: id,
		Chain:    chain,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *session) reauthorize(ctx context.Context, id identityJSON, token string) (*authorizeResult, error) {
	var result authorizeResult
	err := s.handle.conn.call(ctx, "reauthorize", reauthorizeParams{
		Identity:  id,
		AuthToken: token,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *session) signMessages(ctx context.Context, address string, msg []byte) ([]byte, error) {
	var result signResult
	err := s.handle.conn.call(ctx, "sign_messages", signMessagesParams{
		Addresses: []string{address},
		Payloads:  []string{base64.StdEncoding.EncodeToString(msg)},
	}, &result)
	if err != nil {
		return nil, err
	}
	return decodeSinglePayload(result, "sign_messages")
}

func (s *session) signTransactions(ctx context.Context, tx []byte) ([]byte, error) {
	var result signResult
	err := s.handle.conn.call(ctx, "sign_transactions", signTransactionsParams{
		Payloads: []string{base64.StdEncoding.EncodeToString(tx)},
	}, &result)
	if err != nil {
		return nil, err
	}
	return decodeSinglePayload(result, "sign_transactions")
}

func decodeSinglePayload(result signResult, method string) ([]byte, error) {
	if len(result.SignedPayloads) == 0 {
		return nil, fmt.Errorf("%s response carried no payloads", method)
	}
	payload, err := base64.StdEncoding.DecodeString(result.SignedPayloads[0])
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", method, err)
	}
	return payload, nil
}
