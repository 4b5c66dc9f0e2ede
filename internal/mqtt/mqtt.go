// Package mqtt is the telemetry sink: a thin connect / publish layer over an
// MQTT broker with abstraction for testing. Reconnection is driven by the
// caller; the clients here never retry on their own.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sweeney/room-sensor/internal/config"
)

var (
	// ErrNotConnected is returned by Publish when there is no live session.
	ErrNotConnected = errors.New("mqtt: not connected")
	// ErrTimeout is returned when the broker does not answer in time.
	ErrTimeout = errors.New("mqtt: timeout")
)

// Sink publishes telemetry to a broker.
type Sink interface {
	// Connect makes one connection attempt. It does not retry.
	Connect(ctx context.Context) error

	// IsConnected reports whether the session is currently up.
	IsConnected() bool

	// Publish sends one fire-and-forget (QoS 0) message.
	Publish(topic string, payload []byte, retained bool) error

	// Close disconnects from the broker.
	Close() error
}

// Options configures a sink.
type Options struct {
	Broker         string
	ClientID       string
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	// WillTopic receives WillPayload, retained, if the session drops
	// without a clean disconnect. Empty disables the will.
	WillTopic   string
	WillPayload []byte
}

// publishTimeout bounds a single QoS 0 write.
const publishTimeout = 5 * time.Second

// NewSink builds the sink selected by cfg.Protocol. The will is the
// retained Offline status under cfg.TopicPrefix.
func NewSink(cfg config.MQTTConfig, logger *slog.Logger) (Sink, error) {
	opts := Options{
		Broker:         cfg.Broker,
		ClientID:       cfg.ClientID,
		KeepAlive:      cfg.KeepAlive,
		ConnectTimeout: cfg.ConnectTimeout,
		WillTopic:      NewTopics(cfg.TopicPrefix).Status,
		WillPayload:    []byte(StatusOffline),
	}
	if opts.ClientID == "" {
		return nil, errors.New("mqtt: client id is required")
	}

	logger = logger.With("broker", cfg.Broker, "client_id", cfg.ClientID)
	switch cfg.Protocol {
	case config.ProtocolMQTT3, "":
		return NewPaho3Sink(opts, logger), nil
	case config.ProtocolMQTT5:
		return NewPaho5Sink(opts, logger), nil
	}
	return nil, fmt.Errorf("mqtt: unknown protocol %q", cfg.Protocol)
}
