// Package transport adapts chat platforms to the dispatcher: inbound updates
// become queued text and button events, and each adapter implements
// model.Messenger for the outbound side.
package transport

import (
	"SurveyBot/model"
	"context"
	"sync"
)

// EventHandler queues normalized inbound events. Both calls return at once;
// done, when not nil, runs after the event was handled.
type EventHandler interface {
	PostText(ctx context.Context, sender model.Sender, text string, done func(error))
	PostButton(ctx context.Context, sender model.Sender, buttonID string, done func(error))
}

// buttonAck is a button press being handled. At most one notice is raised per
// press; on Telegram an unclaimed press is answered empty afterwards.
type buttonAck struct {
	id        string
	recipient int64
	// ref is the platform object needed to answer, if the id is not enough.
	ref any
	// message identifies the message carrying the pressed button.
	message any

	mu      sync.Mutex
	claimed bool
}

// claim reports whether the caller is the one to answer the press.
func (a *buttonAck) claim() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.claimed {
		return false
	}
	a.claimed = true
	return true
}

type ackKey struct{}

func withAck(ctx context.Context, ack *buttonAck) context.Context {
	return context.WithValue(ctx, ackKey{}, ack)
}

// pressedMessage returns the message whose button recipient pressed, when ctx
// carries that press. Edits go there rather than to the newest message.
func pressedMessage(ctx context.Context, recipient int64) (any, bool) {
	ack, ok := ctx.Value(ackKey{}).(*buttonAck)
	if !ok || ack.recipient != recipient || ack.message == nil {
		return nil, false
	}
	return ack.message, true
}

// ackFor returns the unanswered press of recipient carried by ctx, if any.
func ackFor(ctx context.Context, recipient int64) *buttonAck {
	ack, ok := ctx.Value(ackKey{}).(*buttonAck)
	if !ok || ack.recipient != recipient {
		return nil
	}
	return ack
}
