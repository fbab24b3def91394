package walleterr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRPCError struct {
	code int64
	msg  string
}

func (e *fakeRPCError) Error() string  { return e.msg }
func (e *fakeRPCError) RPCCode() int64 { return e.code }

type fakeNetTimeout struct{}

func (fakeNetTimeout) Error() string   { return "i/o wait expired" }
func (fakeNetTimeout) Timeout() bool   { return true }
func (fakeNetTimeout) Temporary() bool { return false }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{
			name: "rpc error becomes wallet rejected",
			err:  &fakeRPCError{code: -3, msg: "not signed"},
			want: KindWalletRejected,
		},
		{
			name: "wrapped rpc error",
			err:  fmt.Errorf("authorize: %w", &fakeRPCError{code: -1, msg: "auth failed"}),
			want: KindWalletRejected,
		},
		{
			name: "user cancel substring",
			err:  errors.New("request was cancelled by the user"),
			want: KindUserCancelled,
		},
		{
			name: "declined substring",
			err:  errors.New("the wallet declined the request"),
			want: KindUserCancelled,
		},
		{
			name: "session terminated substring",
			err:  errors.New("session terminated by peer"),
			want: KindSessionTerminated,
		},
		{
			name: "disconnect substring",
			err:  errors.New("websocket disconnect during read"),
			want: KindSessionTerminated,
		},
		{
			name: "deadline exceeded",
			err:  fmt.Errorf("handshake: %w", context.DeadlineExceeded),
			want: KindTimeout,
		},
		{
			name: "net timeout type",
			err:  fmt.Errorf("dial: %w", fakeNetTimeout{}),
			want: KindTimeout,
		},
		{
			name: "timeout substring",
			err:  errors.New("operation hit internal timeout"),
			want: KindTimeout,
		},
		{
			name: "no handler sentinel",
			err:  fmt.Errorf("resolve launch target: %w", ErrNoHandler),
			want: KindNoWalletInstalled,
		},
		{
			name: "anything else",
			err:  errors.New("unexpected frame"),
			want: KindUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			assert.Equal(t, tt.want, KindOf(got))
		})
	}
}

func TestClassify_NilAndCancellation(t *testing.T) {
	assert.NoError(t, Classify(nil))

	// Cancellation is never reinterpreted as a typed failure.
	err := Classify(context.Canceled)
	assert.Equal(t, context.Canceled, err)

	wrapped := fmt.Errorf("await callback: %w", context.Canceled)
	assert.Equal(t, wrapped, Classify(wrapped))
}

func TestClassify_PassesExistingErrorsThrough(t *testing.T) {
	orig := WalletRejected(-3, "not signed")
	assert.Same(t, orig, Classify(orig).(*Error))

	wrapped := fmt.Errorf("sign: %w", orig)
	var we *Error
	require.ErrorAs(t, Classify(wrapped), &we)
	assert.Equal(t, KindWalletRejected, we.Kind)
}

func TestClassify_RPCErrorCarriesCode(t *testing.T) {
	err := Classify(&fakeRPCError{code: -2, msg: "invalid payloads"})
	var we *Error
	require.ErrorAs(t, err, &we)
	assert.Equal(t, int64(-2), we.Code)
	assert.Equal(t, "invalid payloads", we.Message)
}

func TestClassify_CancelRuleBeatsTimeoutRule(t *testing.T) {
	// Ordered rules: a message matching both cancel and timeout classes
	// resolves to the earlier rule.
	err := Classify(errors.New("cancelled while waiting for timeout"))
	assert.Equal(t, KindUserCancelled, KindOf(err))
}

func TestErrorShape(t *testing.T) {
	cause := errors.New("root cause")
	err := Unknown(cause)
	assert.ErrorIs(t, err, cause)
	assert.False(t, err.Recoverable())

	partial := &PartialAuth{Address: "addr", AuthToken: "tok"}
	mpf := MessageProviderFailed(partial, cause)
	assert.True(t, mpf.Recoverable())
	assert.Equal(t, partial, mpf.Partial)
	assert.ErrorIs(t, mpf, cause)

	assert.True(t, UserCancelled().Recoverable())
	assert.True(t, Timeout().Recoverable())
	assert.True(t, SessionTerminated().Recoverable())
	assert.True(t, WalletRejected(-3, "no").Recoverable())
	assert.False(t, NoWalletInstalled().Recoverable())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "no_wallet_installed", KindNoWalletInstalled.String())
	assert.Equal(t, "user_cancelled", KindUserCancelled.String())
	assert.Equal(t, "message_provider_failed", KindMessageProviderFailed.String())
	assert.Equal(t, "unknown", KindUnknown.String())
}
