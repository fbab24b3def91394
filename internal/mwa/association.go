package mwa

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/lumeo-social/walletbridge/internal/logger"
)

// AssociationScheme is the URI scheme wallet apps register to accept
// association requests.
const AssociationScheme = "solana-wallet"

const (
	dialRetryInterval = 200 * time.Millisecond
	portRangeStart    = 49152
	portRangeSize     = 16384
)

// AppInfo describes one installed app able to handle the association scheme.
type AppInfo struct {
	// Package is the app's package identifier.
	Package string

	// Component is the exact handler component within the package, when
	// known. Component-level targeting avoids mis-routed launches on
	// devices where two apps share a package prefix.
	Component string

	// Service marks background services that register the scheme but never
	// answer an association; launching one guarantees a timeout.
	Service bool
}

// AppRegistry enumerates installed handlers for a URI scheme.
type AppRegistry interface {
	HandlersForScheme(scheme string) []AppInfo
}

// Launcher dispatches a wallet launch URI. The dispatch is fire-and-forget;
// the reply arrives over the association socket, never through the launcher.
type Launcher interface {
	Launch(ctx context.Context, uri string, target *AppInfo) error
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context, uri string, target *AppInfo) error

// Launch calls the wrapped function.
func (f LauncherFunc) Launch(ctx context.Context, uri string, target *AppInfo) error {
	return f(ctx, uri, target)
}

// assocConfig carries the per-session association parameters.
type assocConfig struct {
	associationTimeout time.Duration
	handshakeTimeout   time.Duration

	// uriPrefix is the wallet URI base stored from an earlier authorization.
	// When set, the launch URI targets that wallet app directly instead of
	// going out over the bare association scheme.
	uriPrefix string

	// endpoint overrides the dial address; used by tests to point the
	// handle at a fake wallet endpoint.
	endpoint string
}

// assocHandle is one association lifecycle: launch URI, socket, handshake,
// RPC connection. Close is safe to call on every exit path.
type assocHandle struct {
	token string
	port  int
	conn  *rpcConn
	ws    *websocket.Conn

	closeOnce sync.Once
}

// associate opens the association: generate the token and port, dispatch the
// wallet launch, dial the local socket until the wallet answers, then run the
// handshake under its own independent timeout.
func associate(ctx context.Context, cfg assocConfig, launcher Launcher, target *AppInfo) (*assocHandle, error) {
	h := &assocHandle{
		token: uuid.NewString(),
		port:  portRangeStart + rand.Intn(portRangeSize),
	}

	launchURI := associationURI(h.token, h.port, cfg.uriPrefix)
	if err := launcher.Launch(ctx, launchURI, target); err != nil {
		return nil, fmt.Errorf("dispatch wallet launch: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.associationTimeout)
	defer cancel()

	endpoint := cfg.endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("ws://127.0.0.1:%d/%s", h.port, AssociationScheme)
	}

	ws, err := dialWithRetry(dialCtx, endpoint)
	if err != nil {
		return nil, err
	}
	h.ws = ws
	h.conn = newRPCConn(ws)

	// The handshake timer is independent of the association timer: the user
	// may take a while to get through the wallet's own unlock screen.
	hsCtx, cancelHS := context.WithTimeout(ctx, cfg.handshakeTimeout)
	defer cancelHS()

	if err := h.handshake(hsCtx); err != nil {
		h.Close()
		return nil, err
	}

	return h, nil
}

// associationURI builds the local association launch URI, routed through the
// stored wallet URI base when one is known.
func associationURI(token string, port int, uriPrefix string) string {
	q := url.Values{}
	q.Set("association", token)
	q.Set("port", fmt.Sprintf("%d", port))
	if uriPrefix != "" {
		return fmt.Sprintf("%s/v1/associate/local?%s", strings.TrimRight(uriPrefix, "/"), q.Encode())
	}
	return fmt.Sprintf("%s:/v1/associate/local?%s", AssociationScheme, q.Encode())
}

// dialWithRetry dials the wallet's local socket until it comes up or the
// association timer elapses.
func dialWithRetry(ctx context.Context, endpoint string) (*websocket.Conn, error) {
	for {
		ws, _, err := websocket.Dial(ctx, endpoint, nil)
		if err == nil {
			return ws, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(dialRetryInterval):
		}
	}
}

type helloParams struct {
	AssociationToken string `json:"association_token"`
	ProtocolVersion  string `json:"protocol_version"`
}

type helloResult struct {
	ProtocolVersion string `json:"protocol_version"`
}

// handshake exchanges hello frames and verifies the wallet speaks v1.
func (h *assocHandle) handshake(ctx context.Context) error {
	var result helloResult
	err := h.conn.call(ctx, "hello", helloParams{
		AssociationToken: h.token,
		ProtocolVersion:  "v1",
	}, &result)
	if err != nil {
		return fmt.Errorf("session handshake: %w", err)
	}
	if result.ProtocolVersion != "v1" {
		return fmt.Errorf("session handshake: unsupported protocol version %q", result.ProtocolVersion)
	}
	return nil
}

// Close releases the association socket. Idempotent; invoked on every exit
// path of a session.
func (h *assocHandle) Close() {
	h.closeOnce.Do(func() {
		if h.ws != nil {
			if err := h.ws.Close(websocket.StatusNormalClosure, "session complete"); err != nil {
				logger.Debug(context.Background(), "association close", "error", err)
			}
		}
	})
}
