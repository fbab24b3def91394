package walletid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromURIBase(t *testing.T) {
	tests := []struct {
		name        string
		uriBase     string
		wantName    string
		wantClient  string
		wantOK      bool
	}{
		{
			name:       "known host",
			uriBase:    "https://phantom.app/ul/v1",
			wantName:   "Phantom Wallet",
			wantClient: "phantom",
			wantOK:     true,
		},
		{
			name:       "known host with www",
			uriBase:    "https://www.solflare.com/ul",
			wantName:   "Solflare Wallet",
			wantClient: "solflare",
			wantOK:     true,
		},
		{
			name:       "unknown host falls back to TLD strip",
			uriBase:    "https://espresso.cash/wallet",
			wantName:   "Espresso Wallet",
			wantClient: "espresso",
			wantOK:     true,
		},
		{
			name:    "no host",
			uriBase: "not a url",
			wantOK:  false,
		},
		{
			name:    "empty",
			uriBase: "",
			wantOK:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := FromURIBase(tt.uriBase)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantName, id.DisplayName)
				assert.Equal(t, tt.wantClient, id.ClientType)
			}
		})
	}
}

func TestFromPackage(t *testing.T) {
	id, ok := FromPackage("app.phantom")
	assert.True(t, ok)
	assert.Equal(t, "Phantom Wallet", id.DisplayName)
	assert.Equal(t, "phantom", id.ClientType)

	_, ok = FromPackage("com.never.heard.of")
	assert.False(t, ok)
}

func TestWalletSuffixNotDuplicated(t *testing.T) {
	// Brand names that already carry "wallet" keep their name as-is.
	id := identityFor("Best Wallet")
	assert.Equal(t, "Best Wallet", id.DisplayName)
	assert.Equal(t, "best_wallet", id.ClientType)
}

func TestResolve_Precedence(t *testing.T) {
	// URI base wins over package.
	id := Resolve("https://solflare.com/ul", "app.phantom")
	assert.Equal(t, "Solflare Wallet", id.DisplayName)

	// Package is the secondary source.
	id = Resolve("", "app.phantom")
	assert.Equal(t, "Phantom Wallet", id.DisplayName)

	// Placeholder when nothing resolves.
	id = Resolve("", "")
	assert.Equal(t, Placeholder, id)
}

func TestTTLCache(t *testing.T) {
	c := NewTTLCache[string](5 * time.Second)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	_, ok := c.Get()
	assert.False(t, ok)

	c.Set("app.phantom")
	v, ok := c.Get()
	assert.True(t, ok)
	assert.Equal(t, "app.phantom", v)

	// Fresh just inside the TTL.
	now = now.Add(5 * time.Second)
	_, ok = c.Get()
	assert.True(t, ok)

	// Stale beyond it.
	now = now.Add(time.Millisecond)
	_, ok = c.Get()
	assert.False(t, ok)

	c.Set("com.solflare.mobile")
	c.Invalidate()
	_, ok = c.Get()
	assert.False(t, ok)
}
