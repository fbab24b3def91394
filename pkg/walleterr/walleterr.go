// Package walleterr defines the closed error taxonomy for wallet protocol
// failures and the single classification boundary that produces it.
//
// Typed errors are created only by the constructors and Classify in this
// package; protocol clients never build them ad hoc.
package walleterr

import (
	"errors"
	"fmt"
)

// Kind identifies one member of the closed wallet error taxonomy.
type Kind int

const (
	// KindNoWalletInstalled means no installed app can handle the wallet launch.
	KindNoWalletInstalled Kind = iota + 1

	// KindUserCancelled means the user dismissed or declined the wallet prompt.
	KindUserCancelled

	// KindSessionTerminated means the wallet closed the session mid-flight.
	KindSessionTerminated

	// KindTimeout means the association or handshake timer elapsed.
	KindTimeout

	// KindWalletRejected means the wallet answered the RPC with an error.
	KindWalletRejected

	// KindMessageProviderFailed means authorization succeeded but producing
	// the message to sign failed; the partial authorization is reusable.
	KindMessageProviderFailed

	// KindUnknown is every failure the ordered rules could not place.
	KindUnknown
)

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNoWalletInstalled:
		return "no_wallet_installed"
	case KindUserCancelled:
		return "user_cancelled"
	case KindSessionTerminated:
		return "session_terminated"
	case KindTimeout:
		return "timeout"
	case KindWalletRejected:
		return "wallet_rejected"
	case KindMessageProviderFailed:
		return "message_provider_failed"
	case KindUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// PartialAuth carries the result of a completed authorize step so callers can
// retry signing without re-authorizing.
type PartialAuth struct {
	Address       string
	AuthToken     string
	WalletURIBase string
	WalletName    string
	ClientType    string
}

// Error is the tagged wallet protocol error. Code and Message are set for
// KindWalletRejected; Partial is set for KindMessageProviderFailed; Cause is
// set where an underlying error exists.
type Error struct {
	Kind    Kind
	Code    int64
	Message string
	Partial *PartialAuth
	Cause   error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindWalletRejected:
		return fmt.Sprintf("%s: code=%d %s", e.Kind, e.Code, e.Message)
	case KindMessageProviderFailed, KindUnknown:
		if e.Cause != nil {
			return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
		}
	}
	return e.Kind.String()
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Recoverable reports whether the caller may retry the operation.
func (e *Error) Recoverable() bool {
	switch e.Kind {
	case KindUserCancelled, KindSessionTerminated, KindTimeout,
		KindWalletRejected, KindMessageProviderFailed:
		return true
	default:
		return false
	}
}

// NoWalletInstalled reports that no wallet app could handle the launch.
func NoWalletInstalled() *Error {
	return &Error{Kind: KindNoWalletInstalled}
}

// UserCancelled reports that the user declined the wallet prompt.
func UserCancelled() *Error {
	return &Error{Kind: KindUserCancelled}
}

// SessionTerminated reports that the wallet ended the session.
func SessionTerminated() *Error {
	return &Error{Kind: KindSessionTerminated}
}

// Timeout reports that a protocol timer elapsed.
func Timeout() *Error {
	return &Error{Kind: KindTimeout}
}

// WalletRejected reports an RPC-level rejection from the wallet.
func WalletRejected(code int64, message string) *Error {
	return &Error{Kind: KindWalletRejected, Code: code, Message: message}
}

// MessageProviderFailed reports that the message provider failed after a
// completed authorization.
func MessageProviderFailed(partial *PartialAuth, cause error) *Error {
	return &Error{Kind: KindMessageProviderFailed, Partial: partial, Cause: cause}
}

// Unknown reports an unclassifiable failure.
func Unknown(cause error) *Error {
	return &Error{Kind: KindUnknown, Cause: cause}
}

// KindOf returns the kind of err if it is (or wraps) a taxonomy error, or
// zero otherwise.
func KindOf(err error) Kind {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind
	}
	return 0
}
