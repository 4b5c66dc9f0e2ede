package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/eclipse/paho.golang/paho"
)

// Paho5Sink publishes over MQTT 5. Each Connect dials a fresh network
// connection and builds a new client; a lost session is never resumed.
type Paho5Sink struct {
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	client    *paho.Client
	gen       atomic.Uint64
	connected atomic.Bool
}

// NewPaho5Sink creates a sink. No connection is made until Connect.
func NewPaho5Sink(o Options, logger *slog.Logger) *Paho5Sink {
	return &Paho5Sink{opts: o, logger: logger}
}

// Connect makes one connection attempt.
func (s *Paho5Sink) Connect(ctx context.Context) error {
	u, err := url.Parse(s.opts.Broker)
	if err != nil {
		return fmt.Errorf("parse broker url: %w", err)
	}

	if s.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.ConnectTimeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", u.Host)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}

	// Callbacks from an earlier client must not mark a newer session down.
	gen := s.gen.Add(1)
	lost := func(reason string, err error) {
		if s.gen.Load() != gen {
			return
		}
		if s.connected.Swap(false) {
			s.logger.Warn("mqtt connection lost", "reason", reason, "error", err)
		}
	}

	client := paho.NewClient(paho.ClientConfig{
		ClientID: s.opts.ClientID,
		Conn:     conn,
		OnClientError: func(err error) {
			lost("client error", err)
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			lost("server disconnect", fmt.Errorf("reason code %d", d.ReasonCode))
		},
	})

	cp := &paho.Connect{
		ClientID:   s.opts.ClientID,
		KeepAlive:  uint16(s.opts.KeepAlive.Seconds()),
		CleanStart: true,
	}
	if s.opts.WillTopic != "" {
		cp.WillMessage = &paho.WillMessage{
			Topic:   s.opts.WillTopic,
			Payload: s.opts.WillPayload,
			QoS:     1,
			Retain:  true,
		}
	}

	ca, err := client.Connect(ctx, cp)
	if err != nil {
		conn.Close()
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("connect to broker: %w", ErrTimeout)
		}
		return fmt.Errorf("connect to broker: %w", err)
	}
	if ca.ReasonCode >= 0x80 {
		conn.Close()
		return fmt.Errorf("connect to broker: refused with reason code %d", ca.ReasonCode)
	}

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
	s.connected.Store(true)
	return nil
}

// IsConnected reports whether the session is up.
func (s *Paho5Sink) IsConnected() bool {
	return s.connected.Load()
}

// Publish sends a QoS 0 message.
func (s *Paho5Sink) Publish(topic string, payload []byte, retained bool) error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil || !s.connected.Load() {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	_, err := client.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     0,
		Retain:  retained,
		Payload: payload,
	})
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("publish %s: %w", topic, ErrTimeout)
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close sends a normal disconnect.
func (s *Paho5Sink) Close() error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()

	s.gen.Add(1)
	if client == nil || !s.connected.Swap(false) {
		return nil
	}
	if err := client.Disconnect(&paho.Disconnect{ReasonCode: 0}); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	return nil
}
