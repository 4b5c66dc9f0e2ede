package mqtt

import (
	"context"
	"sync"
)

// Message is one publish recorded by FakeSink.
type Message struct {
	Topic    string
	Payload  string
	Retained bool
}

// FakeSink records publishes for test assertions.
type FakeSink struct {
	mu sync.Mutex

	connected    bool
	connectCalls int
	messages     []Message
	closed       bool

	// ConnectError, if set, makes Connect fail.
	ConnectError error

	// PublishError, if set, will be returned by Publish.
	PublishError error
}

// NewFakeSink creates a disconnected FakeSink.
func NewFakeSink() *FakeSink {
	return &FakeSink{}
}

// Connect counts the attempt and connects unless ConnectError is set.
func (f *FakeSink) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
	if f.ConnectError != nil {
		return f.ConnectError
	}
	f.connected = true
	return nil
}

// IsConnected reports the simulated session state.
func (f *FakeSink) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// SetConnected forces the session state, e.g. to simulate a dropped link.
func (f *FakeSink) SetConnected(connected bool) {
	f.mu.Lock()
	f.connected = connected
	f.mu.Unlock()
}

// SetConnectError changes the result of later Connect calls.
func (f *FakeSink) SetConnectError(err error) {
	f.mu.Lock()
	f.ConnectError = err
	f.mu.Unlock()
}

// Publish records the message.
func (f *FakeSink) Publish(topic string, payload []byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return ErrNotConnected
	}
	if f.PublishError != nil {
		return f.PublishError
	}
	f.messages = append(f.messages, Message{Topic: topic, Payload: string(payload), Retained: retained})
	return nil
}

// Close marks the sink closed and disconnected.
func (f *FakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.connected = false
	return nil
}

// ConnectCalls returns how many times Connect was called.
func (f *FakeSink) ConnectCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectCalls
}

// Messages returns a copy of every recorded message in order.
func (f *FakeSink) Messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.messages...)
}

// Payloads returns the payloads published on topic in order.
func (f *FakeSink) Payloads(topic string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.messages {
		if m.Topic == topic {
			out = append(out, m.Payload)
		}
	}
	return out
}

// Closed reports whether Close was called.
func (f *FakeSink) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Reset clears recorded messages and counters.
func (f *FakeSink) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = nil
	f.connectCalls = 0
	f.closed = false
	f.ConnectError = nil
	f.PublishError = nil
}
