// Package credstore persists wallet credentials: reauthorization tokens,
// wallet URI bases and the in-flight deeplink session. Values are encrypted
// at rest through a keyring provider; an unencrypted in-memory store is the
// fallback when encrypted-store initialization fails.
package credstore

import (
	"context"
	"fmt"
)

// Persisted key layout. These names are load-bearing: an in-flight deeplink
// session may span an app upgrade, so they must stay stable.
const (
	keyAuthTokenPrefix  = "auth_token_"
	keyLastUsedAddress  = "last_used_address"
	keyURIBasePrefix    = "wallet_uri_base_"
	keyURIBasePkgPrefix = "wallet_uri_base_pkg_"
	keyDeeplinkSession  = "deeplink_session"
)

// Store is durable key-value persistence. Get returns ("", nil) for a
// missing key. Clear wipes every key in one atomic operation.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Close() error
}

// Credentials layers the typed wallet credential operations over a Store.
type Credentials struct {
	store Store
}

// NewCredentials wraps a Store.
func NewCredentials(store Store) *Credentials {
	return &Credentials{store: store}
}

// Store exposes the underlying store.
func (c *Credentials) Store() Store { return c.store }

// AuthToken returns the reauthorization token stored for an address, or ""
// when none exists.
func (c *Credentials) AuthToken(ctx context.Context, address string) (string, error) {
	return c.store.Get(ctx, keyAuthTokenPrefix+address)
}

// SetAuthToken stores a reauthorization token for an address and marks the
// address as last used so later calls can find the token without knowing the
// address in advance.
func (c *Credentials) SetAuthToken(ctx context.Context, address, token string) error {
	if err := c.store.Put(ctx, keyAuthTokenPrefix+address, token); err != nil {
		return fmt.Errorf("store auth token: %w", err)
	}
	if err := c.store.Put(ctx, keyLastUsedAddress, address); err != nil {
		return fmt.Errorf("store last used address: %w", err)
	}
	return nil
}

// RemoveAuthToken drops the token for an address.
func (c *Credentials) RemoveAuthToken(ctx context.Context, address string) error {
	return c.store.Remove(ctx, keyAuthTokenPrefix+address)
}

// LastUsedAddress returns the most recently authorized address, or "".
func (c *Credentials) LastUsedAddress(ctx context.Context) (string, error) {
	return c.store.Get(ctx, keyLastUsedAddress)
}

// WalletURIBaseForAddress returns the wallet URI base stored for an address.
func (c *Credentials) WalletURIBaseForAddress(ctx context.Context, address string) (string, error) {
	return c.store.Get(ctx, keyURIBasePrefix+address)
}

// SetWalletURIBaseForAddress stores the wallet URI base under an address.
func (c *Credentials) SetWalletURIBaseForAddress(ctx context.Context, address, uriBase string) error {
	return c.store.Put(ctx, keyURIBasePrefix+address, uriBase)
}

// WalletURIBaseForPackage returns the wallet URI base stored for a package.
// Keys are namespaced per package so one wallet's URI base can never be used
// to launch a different wallet.
func (c *Credentials) WalletURIBaseForPackage(ctx context.Context, pkg string) (string, error) {
	return c.store.Get(ctx, keyURIBasePkgPrefix+pkg)
}

// SetWalletURIBaseForPackage stores the wallet URI base under a package.
func (c *Credentials) SetWalletURIBaseForPackage(ctx context.Context, pkg, uriBase string) error {
	return c.store.Put(ctx, keyURIBasePkgPrefix+pkg, uriBase)
}

// DeeplinkSession returns the serialized in-flight deeplink session, or "".
func (c *Credentials) DeeplinkSession(ctx context.Context) (string, error) {
	return c.store.Get(ctx, keyDeeplinkSession)
}

// SetDeeplinkSession persists the serialized deeplink session.
func (c *Credentials) SetDeeplinkSession(ctx context.Context, serialized string) error {
	return c.store.Put(ctx, keyDeeplinkSession, serialized)
}

// RemoveDeeplinkSession drops the persisted deeplink session.
func (c *Credentials) RemoveDeeplinkSession(ctx context.Context) error {
	return c.store.Remove(ctx, keyDeeplinkSession)
}

// Clear removes every stored credential (logout).
func (c *Credentials) Clear(ctx context.Context) error {
	return c.store.Clear(ctx)
}
