package mqtt

import (
	"context"
	"fmt"
	"log/slog"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Paho3Sink publishes over MQTT 3.1.1.
type Paho3Sink struct {
	client paho.Client
	logger *slog.Logger
}

// NewPaho3Sink creates a sink. No connection is made until Connect.
func NewPaho3Sink(o Options, logger *slog.Logger) *Paho3Sink {
	s := &Paho3Sink{logger: logger}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetCleanSession(true).
		SetKeepAlive(o.KeepAlive).
		SetConnectTimeout(o.ConnectTimeout).
		SetWriteTimeout(publishTimeout).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			s.logger.Warn("mqtt connection lost", "error", err)
		})

	if o.WillTopic != "" {
		// QoS 1 so the broker stores the will reliably.
		opts.SetBinaryWill(o.WillTopic, o.WillPayload, 1, true)
	}

	s.client = paho.NewClient(opts)
	return s
}

// Connect makes one connection attempt, bounded by the connect timeout
// and ctx.
func (s *Paho3Sink) Connect(ctx context.Context) error {
	token := s.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	return nil
}

// IsConnected reports whether the session is up.
func (s *Paho3Sink) IsConnected() bool {
	return s.client.IsConnectionOpen()
}

// Publish sends a QoS 0 message.
func (s *Paho3Sink) Publish(topic string, payload []byte, retained bool) error {
	if !s.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	token := s.client.Publish(topic, 0, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: %w", topic, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (s *Paho3Sink) Close() error {
	if s.client.IsConnected() {
		s.client.Disconnect(250)
	}
	return nil
}
