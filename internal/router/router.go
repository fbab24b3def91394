// Package router is the top-level protocol facade. It picks the protocol per
// target wallet, throttles wallet launches, pre-validates transactions, and
// exposes one authorize/sign contract regardless of the path taken.
package router

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/lumeo-social/walletbridge/internal/credstore"
	"github.com/lumeo-social/walletbridge/internal/deeplink"
	"github.com/lumeo-social/walletbridge/internal/logger"
	"github.com/lumeo-social/walletbridge/internal/metrics"
	"github.com/lumeo-social/walletbridge/internal/mwa"
	"github.com/lumeo-social/walletbridge/internal/txverify"
	"github.com/lumeo-social/walletbridge/pkg/walleterr"
)

// walletRoute carries the launch coordinates for a known wallet brand.
type walletRoute struct {
	pkg     string
	baseURL string
}

// knownRoutes maps a client type to its package and deeplink base URL.
var knownRoutes = map[string]walletRoute{
	"phantom":  {pkg: "app.phantom", baseURL: "https://phantom.app/ul/v1"},
	"solflare": {pkg: "com.solflare.mobile", baseURL: "https://solflare.com/ul/v1"},
}

// VerifyFunc pre-validates a serialized transaction before signing.
type VerifyFunc func(unsignedTxBase64, expectedFeePayer string) error

// Config holds the router parameters.
type Config struct {
	// DeeplinkWallets lists client types routed over the redirect protocol
	// instead of the association protocol.
	DeeplinkWallets []string

	// LaunchInterval throttles wallet-app launches; rapid-fire launches make
	// the OS drop intents. Zero means one launch per second.
	LaunchInterval time.Duration

	// Verify overrides transaction pre-validation (tests). Nil uses the
	// standard verifier.
	Verify VerifyFunc
}

// AuthResult is the uniform outcome of an authorization over either protocol.
type AuthResult = mwa.AuthResult

// Router selects and drives the protocol clients.
type Router struct {
	mwa       *mwa.Client
	dl        *deeplink.Client
	creds     *credstore.Credentials
	callbacks deeplink.CallbackSource

	deeplinkSet map[string]bool
	limiter     *rate.Limiter
	verify      VerifyFunc
}

// New creates a router over the two protocol clients.
func New(cfg Config, mwaClient *mwa.Client, dlClient *deeplink.Client, creds *credstore.Credentials, callbacks deeplink.CallbackSource) *Router {
	interval := cfg.LaunchInterval
	if interval <= 0 {
		interval = time.Second
	}
	verify := cfg.Verify
	if verify == nil {
		verify = txverify.Verify
	}

	r := &Router{
		mwa:         mwaClient,
		dl:          dlClient,
		creds:       creds,
		callbacks:   callbacks,
		deeplinkSet: make(map[string]bool),
		limiter:     rate.NewLimiter(rate.Every(interval), 1),
		verify:      verify,
	}
	for _, w := range cfg.DeeplinkWallets {
		r.deeplinkSet[strings.ToLower(w)] = true
	}
	return r
}

// usesDeeplink reports whether a wallet is routed over the redirect protocol.
func (r *Router) usesDeeplink(wallet string) bool {
	return r.deeplinkSet[strings.ToLower(wallet)]
}

// packageFor maps a wallet name to its package for MWA targeting. An unknown
// name is assumed to already be a package identifier; empty stays empty.
func packageFor(wallet string) string {
	if route, ok := knownRoutes[strings.ToLower(wallet)]; ok {
		return route.pkg
	}
	return wallet
}

// Authorize obtains proof of address ownership from a wallet. An empty wallet
// routes to MWA with generic handler resolution.
func (r *Router) Authorize(ctx context.Context, wallet string) (result *AuthResult, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOperation(r.protocolFor(wallet), "authorize", start, err) }()

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if r.usesDeeplink(wallet) {
		return r.deeplinkConnect(ctx, wallet)
	}
	return r.mwa.Authorize(ctx, packageFor(wallet))
}

// AuthorizeAndSignMessage authorizes and signs the provided challenge in one
// flow. A failing challenge provider yields MessageProviderFailed carrying the
// completed authorization.
func (r *Router) AuthorizeAndSignMessage(ctx context.Context, wallet string, challenge mwa.ChallengeFunc) (result *AuthResult, signature []byte, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveOperation(r.protocolFor(wallet), "authorize_and_sign", start, err)
	}()

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}

	if !r.usesDeeplink(wallet) {
		return r.mwa.AuthorizeAndSignMessage(ctx, packageFor(wallet), challenge)
	}

	result, err = r.deeplinkConnect(ctx, wallet)
	if err != nil {
		return nil, nil, err
	}

	msg, err := challenge(ctx, result.Address)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, nil, err
		}
		return nil, nil, walleterr.MessageProviderFailed(&walleterr.PartialAuth{
			Address:    result.Address,
			WalletName: result.WalletName,
			ClientType: result.ClientType,
		}, err)
	}

	signature, err = r.deeplinkSign(ctx, msg)
	if err != nil {
		return nil, nil, err
	}
	return result, signature, nil
}

// SignMessage signs a detached message.
func (r *Router) SignMessage(ctx context.Context, msg []byte, wallet string) (signature []byte, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOperation(r.protocolFor(wallet), "sign_message", start, err) }()

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if r.usesDeeplink(wallet) {
		return r.deeplinkSign(ctx, msg)
	}
	return r.mwa.SignMessage(ctx, msg, packageFor(wallet))
}

// SignTransaction pre-validates and signs a serialized transaction. The
// transaction is checked against the active address before any wallet is
// launched; validation failure aborts the flow.
func (r *Router) SignTransaction(ctx context.Context, tx []byte, wallet string) (signed []byte, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOperation(r.protocolFor(wallet), "sign_transaction", start, err) }()

	feePayer, err := r.activeAddress(ctx, wallet)
	if err != nil {
		return nil, walleterr.Unknown(err)
	}
	if err := r.verify(base64.StdEncoding.EncodeToString(tx), feePayer); err != nil {
		return nil, walleterr.Unknown(fmt.Errorf("transaction rejected before signing: %w", err))
	}

	if r.usesDeeplink(wallet) {
		// The redirect protocol carries no transaction flow.
		return nil, walleterr.Unknown(fmt.Errorf("transaction signing is not supported over the redirect protocol"))
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.mwa.SignTransaction(ctx, tx, packageFor(wallet))
}

// ResetSession clears per-login protocol state: the reauthorization counter,
// the resolved-handler cache and any in-flight deeplink session.
func (r *Router) ResetSession(ctx context.Context) {
	r.mwa.ResetSession()
	r.dl.ClearSession(ctx)
	logger.Info(ctx, "protocol session state reset")
}

// Logout wipes every stored credential.
func (r *Router) Logout(ctx context.Context) error {
	r.ResetSession(ctx)
	return r.creds.Clear(ctx)
}

func (r *Router) protocolFor(wallet string) string {
	if r.usesDeeplink(wallet) {
		return "deeplink"
	}
	return "mwa"
}

// activeAddress returns the address a transaction is expected to pay from:
// the connected deeplink address, or the last MWA-authorized address. Empty
// when no session exists yet; verification then skips the fee-payer check.
func (r *Router) activeAddress(ctx context.Context, wallet string) (string, error) {
	if r.usesDeeplink(wallet) {
		return r.dl.ConnectedAddress(ctx)
	}
	return r.creds.LastUsedAddress(ctx)
}

// deeplinkConnect runs the connect round trip: launch, await the redirect
// callback, complete the handshake.
func (r *Router) deeplinkConnect(ctx context.Context, wallet string) (*AuthResult, error) {
	route, ok := knownRoutes[strings.ToLower(wallet)]
	if !ok {
		return nil, walleterr.NoWalletInstalled()
	}

	if err := r.dl.StartConnect(ctx, route.baseURL, route.pkg); err != nil {
		return nil, err
	}

	callbackURL, err := r.callbacks.Await(ctx)
	if err != nil {
		return nil, err
	}

	res, err := r.dl.HandleConnectResponse(ctx, callbackURL)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		Address:       res.Address,
		WalletURIBase: route.baseURL,
		WalletName:    res.WalletName,
		ClientType:    res.ClientType,
	}, nil
}

// deeplinkSign runs the sign round trip against the connected session.
func (r *Router) deeplinkSign(ctx context.Context, msg []byte) ([]byte, error) {
	if err := r.dl.StartSignMessage(ctx, msg); err != nil {
		return nil, err
	}
	callbackURL, err := r.callbacks.Await(ctx)
	if err != nil {
		return nil, err
	}
	return r.dl.HandleSignResponse(ctx, callbackURL)
}
