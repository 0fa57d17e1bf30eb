// Package transporttest provides a recording model.Messenger for tests.
package transporttest

import (
	"SurveyBot/model"
	"context"
	"sync"
)

const (
	KindSend   = "send"
	KindEdit   = "edit"
	KindNotify = "notify"
)

// Delivery is one recorded outbound call.
type Delivery struct {
	Kind      string
	Recipient int64
	Text      string
	Buttons   model.Keyboard
	Markdown  bool
}

// ButtonData flattens the callback ids of every button, row by row.
func (d Delivery) ButtonData() []string {
	var out []string
	for _, row := range d.Buttons {
		for _, b := range row {
			if b.Data != "" {
				out = append(out, b.Data)
			}
		}
	}
	return out
}

// Messenger records every call. Recipients registered with FailFor get an
// error instead; failed calls are not recorded.
type Messenger struct {
	mu        sync.Mutex
	log       []Delivery
	failures  map[int64]error
	maxLength int
}

func NewMessenger() *Messenger {
	return &Messenger{failures: make(map[int64]error), maxLength: 4096}
}

func (m *Messenger) SetMaxLength(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxLength = n
}

func (m *Messenger) FailFor(recipient int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, recipient)
		return
	}
	m.failures[recipient] = err
}

func (m *Messenger) SendText(_ context.Context, recipient int64, text string, opts ...model.SendOption) error {
	msg := model.BuildMessage(text, opts...)
	return m.record(Delivery{Kind: KindSend, Recipient: recipient, Text: msg.Text, Buttons: msg.Buttons, Markdown: msg.Markdown})
}

func (m *Messenger) EditDisplayedText(_ context.Context, recipient int64, text string, buttons model.Keyboard) error {
	return m.record(Delivery{Kind: KindEdit, Recipient: recipient, Text: text, Buttons: buttons})
}

func (m *Messenger) Notify(_ context.Context, recipient int64, text string) error {
	return m.record(Delivery{Kind: KindNotify, Recipient: recipient, Text: text})
}

func (m *Messenger) MaxMessageLength() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxLength
}

func (m *Messenger) record(d Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failures[d.Recipient]; ok {
		return err
	}
	m.log = append(m.log, d)
	return nil
}

// All returns every recorded delivery in call order.
func (m *Messenger) All() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Delivery, len(m.log))
	copy(out, m.log)
	return out
}

// To returns the deliveries addressed to recipient.
func (m *Messenger) To(recipient int64) []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Delivery
	for _, d := range m.log {
		if d.Recipient == recipient {
			out = append(out, d)
		}
	}
	return out
}

// Last returns the latest delivery addressed to recipient.
func (m *Messenger) Last(recipient int64) (Delivery, bool) {
	sent := m.To(recipient)
	if len(sent) == 0 {
		return Delivery{}, false
	}
	return sent[len(sent)-1], true
}

func (m *Messenger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log = nil
}
