package deeplink

import "context"

// CallbackSource delivers redirect callback URLs to a waiting operation. The
// host application feeds it from its URI entry point; Await blocks until a
// callback arrives or ctx is done.
type CallbackSource interface {
	Await(ctx context.Context) (string, error)
}

// ChannelCallbacks is a channel-backed CallbackSource.
type ChannelCallbacks chan string

// Await receives the next callback URL.
func (c ChannelCallbacks) Await(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case url := <-c:
		return url, nil
	}
}
