package outbox

import "context"

// Publisher appends one event to the target stream.
//
// A non-nil error counts as exactly one failed attempt; retry policy lives
// entirely in the Relay, so implementations must not retry internally. A
// timeout or otherwise ambiguous outcome must be reported as an error, never
// as success, since the message may or may not have reached the stream.
type Publisher interface {
	// Publish serializes the event into a stream message and appends it.
	Publish(ctx context.Context, event Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event Event) error

// Publish implements Publisher.
func (fn PublisherFunc) Publish(ctx context.Context, event Event) error {
	return fn(ctx, event)
}
