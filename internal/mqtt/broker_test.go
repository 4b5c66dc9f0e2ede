package mqtt

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureHook records every message the broker accepts.
type captureHook struct {
	mochi.HookBase

	mu   sync.Mutex
	msgs []Message
}

func (h *captureHook) ID() string {
	return "capture"
}

func (h *captureHook) Provides(b byte) bool {
	return b == mochi.OnPublished
}

func (h *captureHook) OnPublished(_ *mochi.Client, pk packets.Packet) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, Message{
		Topic:    pk.TopicName,
		Payload:  string(pk.Payload),
		Retained: pk.FixedHeader.Retain,
	})
}

func (h *captureHook) messages() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Message(nil), h.msgs...)
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

// startBroker runs an in-process broker. The returned stop function may be
// called early; cleanup calls it again harmlessly.
func startBroker(t *testing.T) (func(), string, *captureHook) {
	t.Helper()
	addr := freeAddr(t)

	server := mochi.New(nil)
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))

	capture := new(captureHook)
	require.NoError(t, server.AddHook(capture, nil))

	require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		ID:      "t1",
		Address: addr,
	})))
	require.NoError(t, server.Serve())

	stop := sync.OnceFunc(func() { server.Close() })
	t.Cleanup(stop)

	return stop, "tcp://" + addr, capture
}

func testOptions(broker, id string) Options {
	return Options{
		Broker:         broker,
		ClientID:       id,
		KeepAlive:      5 * time.Second,
		ConnectTimeout: 2 * time.Second,
		WillTopic:      "room/status",
		WillPayload:    []byte(StatusOffline),
	}
}

func sinkFactories() map[string]func(Options) Sink {
	logger := discardLogger()
	return map[string]func(Options) Sink{
		"mqtt3": func(o Options) Sink { return NewPaho3Sink(o, logger) },
		"mqtt5": func(o Options) Sink { return NewPaho5Sink(o, logger) },
	}
}

func TestSinkPublishesToBroker(t *testing.T) {
	for name, newSink := range sinkFactories() {
		t.Run(name, func(t *testing.T) {
			_, broker, capture := startBroker(t)

			sink := newSink(testOptions(broker, "room-sensor-"+name))
			require.NoError(t, sink.Connect(context.Background()))
			t.Cleanup(func() { sink.Close() })
			assert.True(t, sink.IsConnected())

			require.NoError(t, sink.Publish("room/status", []byte(StatusOnline), true))
			require.NoError(t, sink.Publish("room/temperature", []byte("21.50"), false))

			require.Eventually(t, func() bool { return len(capture.messages()) == 2 }, 5*time.Second, 10*time.Millisecond)
			assert.Equal(t, []Message{
				{Topic: "room/status", Payload: "Online", Retained: true},
				{Topic: "room/temperature", Payload: "21.50"},
			}, capture.messages())
		})
	}
}

func TestSinkConnectFailsWithoutBroker(t *testing.T) {
	addr := freeAddr(t)
	for name, newSink := range sinkFactories() {
		t.Run(name, func(t *testing.T) {
			sink := newSink(testOptions("tcp://"+addr, "room-sensor-"+name))
			assert.Error(t, sink.Connect(context.Background()))
			assert.False(t, sink.IsConnected())
		})
	}
}

func TestSinkDetectsBrokerLoss(t *testing.T) {
	for name, newSink := range sinkFactories() {
		t.Run(name, func(t *testing.T) {
			stop, broker, _ := startBroker(t)

			sink := newSink(testOptions(broker, "room-sensor-"+name))
			require.NoError(t, sink.Connect(context.Background()))
			t.Cleanup(func() { sink.Close() })

			stop()
			require.Eventually(t, func() bool { return !sink.IsConnected() }, 5*time.Second, 10*time.Millisecond)

			assert.ErrorIs(t, sink.Publish("room/temperature", []byte("1.00"), false), ErrNotConnected)
		})
	}
}

func TestSinkReconnects(t *testing.T) {
	for name, newSink := range sinkFactories() {
		t.Run(name, func(t *testing.T) {
			_, broker, capture := startBroker(t)

			sink := newSink(testOptions(broker, "room-sensor-"+name))
			require.NoError(t, sink.Connect(context.Background()))
			require.NoError(t, sink.Close())
			assert.False(t, sink.IsConnected())

			require.NoError(t, sink.Connect(context.Background()))
			t.Cleanup(func() { sink.Close() })
			require.NoError(t, sink.Publish("room/status", []byte(StatusReconnected), true))

			require.Eventually(t, func() bool { return len(capture.messages()) == 1 }, 5*time.Second, 10*time.Millisecond)
			assert.Equal(t, "Reconnected", capture.messages()[0].Payload)
		})
	}
}
