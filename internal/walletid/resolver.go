// Package walletid maps wallet URI hosts and package identifiers to display
// names and normalized client-type tags. Pure lookup tables plus two
// fallback heuristics; no I/O.
package walletid

import (
	"net/url"
	"strings"
)

// Identity is a resolved wallet identity.
type Identity struct {
	// DisplayName is the user-facing wallet name, always carrying a
	// "Wallet" suffix.
	DisplayName string

	// ClientType is the normalized lowercase brand tag sent to the backend
	// as login metadata.
	ClientType string
}

// Placeholder is returned when neither host nor package resolve.
var Placeholder = Identity{DisplayName: "Wallet", ClientType: "unknown"}

// hostNames maps walletUriBase hosts to brand names.
var hostNames = map[string]string{
	"phantom.app":                "Phantom",
	"solflare.com":               "Solflare",
	"backpack.app":               "Backpack",
	"glow.app":                   "Glow",
	"ultimate.app":               "Ultimate",
	"espressocash.com":           "Espresso Cash",
	"seedvault.solanamobile.com": "Seed Vault",
}

// packageNames maps installed-app package identifiers to brand names.
var packageNames = map[string]string{
	"app.phantom":                "Phantom",
	"com.solflare.mobile":        "Solflare",
	"app.backpack.mobile":        "Backpack",
	"com.luma.wallet.prod":       "Glow",
	"com.ultimate.app":           "Ultimate",
	"com.solanamobile.seedvault": "Seed Vault",
}

// FromURIBase resolves an identity from a walletUriBase URL. This is the
// primary source: the URI base comes back in the authorize response and
// names the wallet that actually answered.
func FromURIBase(uriBase string) (Identity, bool) {
	u, err := url.Parse(uriBase)
	if err != nil || u.Host == "" {
		return Identity{}, false
	}
	return FromHost(u.Host)
}

// FromHost resolves an identity from a bare host. Unknown hosts fall back to
// stripping the TLD and title-casing the first label.
func FromHost(host string) (Identity, bool) {
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	if host == "" {
		return Identity{}, false
	}

	if name, ok := hostNames[host]; ok {
		return identityFor(name), true
	}

	// Fallback heuristic: "espresso.cash" -> "Espresso".
	label := strings.SplitN(host, ".", 2)[0]
	if label == "" {
		return Identity{}, false
	}
	return identityFor(titleCase(label)), true
}

// FromPackage resolves an identity from a package identifier. Secondary
// source, used when no URI base is available.
func FromPackage(pkg string) (Identity, bool) {
	name, ok := packageNames[strings.ToLower(pkg)]
	if !ok {
		return Identity{}, false
	}
	return identityFor(name), true
}

// Resolve applies the full precedence: URI base host, then package, then the
// generic placeholder.
func Resolve(uriBase, pkg string) Identity {
	if id, ok := FromURIBase(uriBase); ok {
		return id
	}
	if id, ok := FromPackage(pkg); ok {
		return id
	}
	return Placeholder
}

// identityFor derives the display name and client type from a brand name,
// appending the "Wallet" suffix unless the name already carries one.
func identityFor(name string) Identity {
	display := name
	if !strings.Contains(strings.ToLower(name), "wallet") {
		display = name + " Wallet"
	}
	return Identity{
		DisplayName: display,
		ClientType:  strings.ToLower(strings.ReplaceAll(name, " ", "_")),
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
