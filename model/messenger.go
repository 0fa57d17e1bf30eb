package model

import (
	"context"
	"strings"
)

// Sender identifies the author of an inbound event.
type Sender struct {
	ID          int64
	DisplayName string
	Handle      string
}

// Header renders the sender as "Display Name (@handle)", or just the display
// name when no handle is set.
func (s Sender) Header() string {
	name := strings.TrimSpace(s.DisplayName)
	handle := strings.TrimPrefix(strings.TrimSpace(s.Handle), "@")
	if handle == "" {
		return name
	}
	return name + " (@" + handle + ")"
}

// Button is either a callback button (Data) or a link (URL).
type Button struct {
	Text string
	Data string
	URL  string
}

type Keyboard [][]Button

// Row is a convenience for a keyboard with a single row.
func Row(buttons ...Button) Keyboard {
	if len(buttons) == 0 {
		return nil
	}
	return Keyboard{buttons}
}

type OutgoingMessage struct {
	Text     string
	Buttons  Keyboard
	Markdown bool
}

type SendOption func(*OutgoingMessage)

func WithButtons(kb Keyboard) SendOption {
	return func(m *OutgoingMessage) { m.Buttons = kb }
}

// WithMarkdown marks the text as MarkdownV2. Callers must escape user text.
func WithMarkdown() SendOption {
	return func(m *OutgoingMessage) { m.Markdown = true }
}

func BuildMessage(text string, opts ...SendOption) OutgoingMessage {
	msg := OutgoingMessage{Text: text}
	for _, opt := range opts {
		opt(&msg)
	}
	return msg
}

// Messenger is the outbound side of a chat transport.
type Messenger interface {
	SendText(ctx context.Context, recipient int64, text string, opts ...SendOption) error
	// EditDisplayedText replaces the last prompt shown to recipient. Transports
	// that cannot edit fall back to sending a new message.
	EditDisplayedText(ctx context.Context, recipient int64, text string, buttons Keyboard) error
	// Notify shows a short transient notice, e.g. a popup on the pressed button.
	Notify(ctx context.Context, recipient int64, text string) error
	// MaxMessageLength is the longest text a single message may carry.
	MaxMessageLength() int
}
