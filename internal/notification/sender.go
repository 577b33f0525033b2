package notification

import "context"

// Sender delivers rendered content to one address over one channel.
// A nil error means the provider accepted the message.
type Sender interface {
	Send(ctx context.Context, address string, content Content) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, address string, content Content) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, address string, content Content) error {
	return f(ctx, address, content)
}

// Pusher delivers a newly created notification to the owner's live sessions.
// Push must not block on slow clients.
type Pusher interface {
	Push(userID string, n *Notification)
}

// Senders maps each external channel to its provider adapter. In-app needs
// no sender: the stored record is the delivery.
type Senders map[Channel]Sender
