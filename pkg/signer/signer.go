// Package signer defines the abstract signing contract callers consume.
// Protocol selection happens once, when a variant is constructed; nothing
// downstream inspects which wallet backs a Signer.
package signer

import (
	"context"
	"fmt"

	"github.com/lumeo-social/walletbridge/internal/deeplink"
	"github.com/lumeo-social/walletbridge/internal/mwa"
	"github.com/lumeo-social/walletbridge/pkg/walleterr"
)

// Signer obtains signatures from a user-controlled wallet. Implementations
// never hold the private key.
type Signer interface {
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)
	SignTransaction(ctx context.Context, tx []byte) ([]byte, error)
}

// MwaSigner signs through the local-socket association protocol.
type MwaSigner struct {
	client    *mwa.Client
	targetPkg string
}

// NewMwa creates a signer bound to an MWA client, optionally targeting a
// specific wallet package.
func NewMwa(client *mwa.Client, targetPkg string) *MwaSigner {
	return &MwaSigner{client: client, targetPkg: targetPkg}
}

// SignMessage signs a detached message.
func (s *MwaSigner) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	return s.client.SignMessage(ctx, msg, s.targetPkg)
}

// SignTransaction signs a serialized transaction.
func (s *MwaSigner) SignTransaction(ctx context.Context, tx []byte) ([]byte, error) {
	return s.client.SignTransaction(ctx, tx, s.targetPkg)
}

// DeeplinkSigner signs through the URL-redirect protocol. It requires a
// connected session; the launch-and-callback round trip is bridged by the
// callback source.
type DeeplinkSigner struct {
	client    *deeplink.Client
	callbacks deeplink.CallbackSource
}

// NewDeeplink creates a signer bound to a deeplink client.
func NewDeeplink(client *deeplink.Client, callbacks deeplink.CallbackSource) *DeeplinkSigner {
	return &DeeplinkSigner{client: client, callbacks: callbacks}
}

// SignMessage launches the sign step and blocks until the redirect callback
// arrives.
func (s *DeeplinkSigner) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	if err := s.client.StartSignMessage(ctx, msg); err != nil {
		return nil, err
	}
	callbackURL, err := s.callbacks.Await(ctx)
	if err != nil {
		return nil, err
	}
	return s.client.HandleSignResponse(ctx, callbackURL)
}

// SignTransaction is not part of the redirect protocol's sign flow.
func (s *DeeplinkSigner) SignTransaction(ctx context.Context, tx []byte) ([]byte, error) {
	return nil, walleterr.Unknown(fmt.Errorf("transaction signing is not supported over the redirect protocol"))
}

// SignFunc is one signing primitive of an embedded-wallet SDK.
type SignFunc func(ctx context.Context, payload []byte) ([]byte, error)

// CustodialSigner adapts an embedded-custodial-wallet SDK's function pair to
// the Signer contract. SDK failures pass through the standard classifier so
// callers see the same taxonomy as for external wallets.
type CustodialSigner struct {
	signMessage     SignFunc
	signTransaction SignFunc
}

// NewCustodial wraps an SDK's message and transaction signing functions.
func NewCustodial(signMessage, signTransaction SignFunc) *CustodialSigner {
	return &CustodialSigner{signMessage: signMessage, signTransaction: signTransaction}
}

// SignMessage signs through the SDK.
func (s *CustodialSigner) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	sig, err := s.signMessage(ctx, msg)
	if err != nil {
		return nil, walleterr.Classify(err)
	}
	return sig, nil
}

// SignTransaction signs through the SDK.
func (s *CustodialSigner) SignTransaction(ctx context.Context, tx []byte) ([]byte, error) {
	signed, err := s.signTransaction(ctx, tx)
	if err != nil {
		return nil, walleterr.Classify(err)
	}
	return signed, nil
}

var (
	_ Signer = (*MwaSigner)(nil)
	_ Signer = (*DeeplinkSigner)(nil)
	_ Signer = (*CustodialSigner)(nil)
)
