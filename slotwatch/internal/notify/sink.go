package notify

import "context"

// Sink delivers messages to one backend (chat webhook, stdout).
type Sink interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}
