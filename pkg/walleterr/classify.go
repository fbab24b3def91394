package walleterr

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ErrNoHandler is returned by protocol clients when no installed app resolves
// for the wallet launch URI. Classify maps it to KindNoWalletInstalled.
var ErrNoHandler = errors.New("no installed handler for wallet launch")

// RPCError is implemented by transport errors that carry a wallet-side
// JSON-RPC error code. Classify maps them to KindWalletRejected.
type RPCError interface {
	error
	RPCCode() int64
}

// Classify maps a raw transport or SDK failure onto the closed taxonomy
// using ordered rules. Context cancellation is never classified: it is
// returned unchanged so callers can tell runtime cancellation apart from
// wallet failure. Errors that are already taxonomy members pass through.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var we *Error
	if errors.As(err, &we) {
		return we
	}

	var rpcErr RPCError
	if errors.As(err, &rpcErr) {
		return WalletRejected(rpcErr.RPCCode(), rpcErr.Error())
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "cancel", "declined", "denied"):
		return UserCancelled()
	case containsAny(msg, "session", "terminated", "disconnect"):
		return SessionTerminated()
	case isTimeout(err) || strings.Contains(msg, "timeout"):
		return Timeout()
	case errors.Is(err, ErrNoHandler):
		return NoWalletInstalled()
	default:
		return Unknown(err)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
