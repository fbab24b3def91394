package router

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumeo-social/walletbridge/internal/credstore"
	"github.com/lumeo-social/walletbridge/internal/deeplink"
	"github.com/lumeo-social/walletbridge/internal/mwa"
	"github.com/lumeo-social/walletbridge/pkg/cryptobox"
	"github.com/lumeo-social/walletbridge/pkg/walleterr"
)

const (
	testAddress = "7S3P4HxJpyyigGzodYwHtCxZyUQe9JiBMHyRWXArAaKv"
	testToken   = "tok-1"
)

// mwaEndpoint is a minimal association endpoint: hello, authorize,
// reauthorize and sign methods all succeed.
func mwaEndpoint(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		ctx := r.Context()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var req struct {
				ID     uint64 `json:"id"`
				Method string `json:"method"`
			}
			if err := json.Unmarshal(data, &req); err != nil {
				return
			}

			var result any
			switch req.Method {
			case "hello":
				result = map[string]string{"protocol_version": "v1"}
			case "authorize", "reauthorize":
				result = map[string]any{
					"auth_token":      testToken,
					"accounts":        []map[string]string{{"address": testAddress}},
					"wallet_uri_base": "https://phantom.app/ul/v1",
				}
			case "sign_messages", "sign_transactions":
				result = map[string]any{
					"signed_payloads": []string{base64.StdEncoding.EncodeToString([]byte("sig"))},
				}
			}

			raw, _ := json.Marshal(result)
			resp, _ := json.Marshal(map[string]any{
				"jsonrpc": "2.0", "id": req.ID, "result": json.RawMessage(raw),
			})
			if err := conn.Write(ctx, websocket.MessageText, resp); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type registry struct{}

func (registry) HandlersForScheme(string) []mwa.AppInfo {
	return []mwa.AppInfo{{Package: "app.phantom"}, {Package: "com.solflare.mobile"}}
}

// launchRecorder counts wallet launches across both protocols.
type launchRecorder struct {
	launches []string
}

func (l *launchRecorder) Launch(_ context.Context, uri string, _ *mwa.AppInfo) error {
	l.launches = append(l.launches, uri)
	return nil
}

func (l *launchRecorder) OpenURL(_ context.Context, rawURL string) error {
	l.launches = append(l.launches, rawURL)
	return nil
}

type fixture struct {
	router    *Router
	creds     *credstore.Credentials
	launches  *launchRecorder
	callbacks deeplink.ChannelCallbacks
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	creds := credstore.NewCredentials(credstore.NewMemory())
	launches := &launchRecorder{}
	callbacks := make(deeplink.ChannelCallbacks, 1)

	mwaClient := mwa.New(mwa.Config{
		IdentityName:       "Lumeo",
		IdentityURI:        "https://lumeo.social",
		Chain:              "solana:mainnet-beta",
		AssociationTimeout: 2 * time.Second,
		HandshakeTimeout:   2 * time.Second,
		Endpoint:           mwaEndpoint(t).URL,
	}, creds, registry{}, launches)

	dlClient := deeplink.New(deeplink.Config{
		AppURL:         "https://lumeo.social",
		RedirectScheme: "lumeo",
		Cluster:        "mainnet-beta",
	}, creds, launches)

	if cfg.LaunchInterval == 0 {
		cfg.LaunchInterval = time.Millisecond
	}
	return &fixture{
		router:    New(cfg, mwaClient, dlClient, creds, callbacks),
		creds:     creds,
		launches:  launches,
		callbacks: callbacks,
	}
}

// connectCallback builds a wallet-side connect response against the dapp key
// found in the last launched URL.
func connectCallback(t *testing.T, launchURL string) string {
	t.Helper()

	u, err := url.Parse(launchURL)
	require.NoError(t, err)
	dappPubRaw, err := base58.Decode(u.Query().Get("dapp_encryption_public_key"))
	require.NoError(t, err)
	dappPub, err := cryptobox.KeyFromBytes(dappPubRaw)
	require.NoError(t, err)

	walletKP, err := cryptobox.GenerateKeypair()
	require.NoError(t, err)
	nonce, err := cryptobox.NewNonce()
	require.NoError(t, err)

	payload, _ := json.Marshal(map[string]string{
		"public_key": testAddress,
		"session":    "session-1",
	})
	sealed := cryptobox.Seal(payload, nonce, dappPub, walletKP.Secret)

	return fmt.Sprintf("lumeo://wallet/on_connect?wallet_encryption_public_key=%s&nonce=%s&data=%s",
		base58.Encode(walletKP.Public[:]), base58.Encode(nonce[:]), base58.Encode(sealed))
}

func TestAuthorize_RoutesToMwaByDefault(t *testing.T) {
	f := newFixture(t, Config{DeeplinkWallets: []string{"phantom"}})

	res, err := f.router.Authorize(context.Background(), "solflare")
	require.NoError(t, err)
	assert.Equal(t, testAddress, res.Address)
	assert.Equal(t, testToken, res.AuthToken)

	// The launch went over the association scheme, not a wallet URL.
	require.NotEmpty(t, f.launches.launches)
	assert.True(t, strings.HasPrefix(f.launches.launches[0], "solana-wallet:"))
}

func TestAuthorize_RoutesDeeplinkWalletToDeeplink(t *testing.T) {
	f := newFixture(t, Config{DeeplinkWallets: []string{"phantom"}})
	ctx := context.Background()

	done := make(chan struct{})
	var res *AuthResult
	var err error
	go func() {
		defer close(done)
		res, err = f.router.Authorize(ctx, "phantom")
	}()

	// Wait for the connect launch, then feed the redirect callback.
	require.Eventually(t, func() bool { return len(f.launches.launches) > 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, f.launches.launches[0], "https://phantom.app/ul/v1/connect?")
	f.callbacks <- connectCallback(t, f.launches.launches[0])

	<-done
	require.NoError(t, err)
	assert.Equal(t, testAddress, res.Address)
	assert.Equal(t, "Phantom Wallet", res.WalletName)
	assert.Empty(t, res.AuthToken)
}

func TestAuthorize_UnknownDeeplinkWallet(t *testing.T) {
	f := newFixture(t, Config{DeeplinkWallets: []string{"obscurewallet"}})

	_, err := f.router.Authorize(context.Background(), "obscurewallet")
	assert.Equal(t, walleterr.KindNoWalletInstalled, walleterr.KindOf(err))
}

func TestSignTransaction_VerificationAbortsBeforeLaunch(t *testing.T) {
	verifyErr := errors.New("fee payer mismatch")
	var gotFeePayer string
	f := newFixture(t, Config{
		Verify: func(txB64, feePayer string) error {
			gotFeePayer = feePayer
			return verifyErr
		},
	})

	ctx := context.Background()
	require.NoError(t, f.creds.SetAuthToken(ctx, testAddress, testToken))

	_, err := f.router.SignTransaction(ctx, []byte("tx-bytes"), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, verifyErr)
	assert.Equal(t, walleterr.KindUnknown, walleterr.KindOf(err))
	assert.Equal(t, testAddress, gotFeePayer)

	// The wallet was never launched.
	assert.Empty(t, f.launches.launches)
}

func TestSignTransaction_VerifiedThenSigned(t *testing.T) {
	var verified string
	f := newFixture(t, Config{
		Verify: func(txB64, feePayer string) error {
			verified = txB64
			return nil
		},
	})

	tx := []byte("serialized-tx")
	signed, err := f.router.SignTransaction(context.Background(), tx, "")
	require.NoError(t, err)
	assert.Equal(t, []byte("sig"), signed)
	assert.Equal(t, base64.StdEncoding.EncodeToString(tx), verified)
}

func TestSignTransaction_DeeplinkWalletUnsupported(t *testing.T) {
	f := newFixture(t, Config{
		DeeplinkWallets: []string{"phantom"},
		Verify:          func(string, string) error { return nil },
	})

	_, err := f.router.SignTransaction(context.Background(), []byte("tx"), "phantom")
	require.Error(t, err)
	assert.Equal(t, walleterr.KindUnknown, walleterr.KindOf(err))
	assert.Empty(t, f.launches.launches)
}

func TestSignMessage_RoutesToMwa(t *testing.T) {
	f := newFixture(t, Config{})

	sig, err := f.router.SignMessage(context.Background(), []byte("msg"), "")
	require.NoError(t, err)
	assert.Equal(t, []byte("sig"), sig)
}

func TestAuthorizeAndSignMessage_DeeplinkProviderFailure(t *testing.T) {
	f := newFixture(t, Config{DeeplinkWallets: []string{"phantom"}})
	ctx := context.Background()

	boom := errors.New("backend down")
	done := make(chan struct{})
	var err error
	go func() {
		defer close(done)
		_, _, err = f.router.AuthorizeAndSignMessage(ctx, "phantom",
			func(context.Context, string) ([]byte, error) { return nil, boom })
	}()

	require.Eventually(t, func() bool { return len(f.launches.launches) > 0 }, 2*time.Second, 10*time.Millisecond)
	f.callbacks <- connectCallback(t, f.launches.launches[0])

	<-done
	require.Equal(t, walleterr.KindMessageProviderFailed, walleterr.KindOf(err))
	var we *walleterr.Error
	require.ErrorAs(t, err, &we)
	require.NotNil(t, we.Partial)
	assert.Equal(t, testAddress, we.Partial.Address)
}

func TestCancellationPropagatesFromDeeplinkWait(t *testing.T) {
	f := newFixture(t, Config{DeeplinkWallets: []string{"phantom"}})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	// No callback ever arrives; cancellation must abort the wait untyped.
	_, err := f.router.Authorize(ctx, "phantom")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, walleterr.KindOf(err))
}

func TestLogoutClearsCredentials(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	require.NoError(t, f.creds.SetAuthToken(ctx, testAddress, testToken))
	require.NoError(t, f.router.Logout(ctx))

	token, err := f.creds.AuthToken(ctx, testAddress)
	require.NoError(t, err)
	assert.Empty(t, token)

	addr, err := f.creds.LastUsedAddress(ctx)
	require.NoError(t, err)
	assert.Empty(t, addr)
}
