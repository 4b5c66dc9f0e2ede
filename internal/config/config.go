// Package config handles room-sensor configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Detector modes.
const (
	ModeCrossing = "crossing" // two sensors, directional entry/exit
	ModePresence = "presence" // one sensor, presence only
)

// MQTT protocol versions.
const (
	ProtocolMQTT3 = "mqtt3"
	ProtocolMQTT5 = "mqtt5"
)

// ErrNoConfig is returned by FindConfig when no file exists on the search path.
var ErrNoConfig = errors.New("no config file found")

// DefaultSearchPaths returns the config file search order.
// Then: ./room-sensor.yaml, ~/.config/room-sensor/config.yaml, /etc/room-sensor/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"room-sensor.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "room-sensor", "config.yaml"))
	}

	paths = append(paths, "/etc/room-sensor/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists,
// or ErrNoConfig.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", ErrNoConfig
}

// Config holds all room-sensor configuration.
type Config struct {
	MQTT       MQTTConfig      `yaml:"mqtt"`
	Detector   DetectorConfig  `yaml:"detector"`
	GPIO       GPIOConfig      `yaml:"gpio"`
	Climate    ClimateConfig   `yaml:"climate"`
	Light      LightConfig     `yaml:"light"`
	Thresholds ThresholdConfig `yaml:"thresholds"`
	Queues     QueueConfig     `yaml:"queues"`
	HTTPAddr   string          `yaml:"http_addr"` // empty disables the status server
	LogLevel   string          `yaml:"log_level"`
	LogFormat  string          `yaml:"log_format"` // text or json
}

// MQTTConfig defines the telemetry sink connection.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Protocol string `yaml:"protocol"`
	// ClientID must be unique per device. Empty derives one from the
	// machine identity.
	ClientID        string        `yaml:"client_id"`
	KeepAlive       time.Duration `yaml:"keep_alive"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	ReconnectDelay  time.Duration `yaml:"reconnect_backoff"`
	PublishInterval time.Duration `yaml:"publish_interval"`
	TopicPrefix     string        `yaml:"topic_prefix"`
	Heartbeat       time.Duration `yaml:"heartbeat"` // 0 disables
}

// DetectorConfig defines the doorway detector tunables.
type DetectorConfig struct {
	Mode     string        `yaml:"mode"`
	Poll     time.Duration `yaml:"poll"`
	Debounce time.Duration `yaml:"debounce"`
	Timeout  time.Duration `yaml:"sequence_timeout"`
}

// GPIOConfig defines the GPIO chip and BCM line offsets.
type GPIOConfig struct {
	Chip     string `yaml:"chip"`
	OuterPin int    `yaml:"outer_pin"`
	InnerPin int    `yaml:"inner_pin"` // unused in presence mode
	// IndicatorPin drives the occupancy LED. Negative disables it.
	IndicatorPin int `yaml:"indicator_pin"`
}

// ClimateConfig defines the temperature/humidity sensor.
type ClimateConfig struct {
	// Device is the IIO device directory exposing in_temp_input and
	// in_humidityrelative_input. Empty disables climate sampling.
	Device string        `yaml:"device"`
	Period time.Duration `yaml:"period"`
}

// LightConfig defines the light-dependent resistor ADC channel.
type LightConfig struct {
	// Device is the raw ADC value file. Empty disables light sampling.
	Device    string        `yaml:"device"`
	Period    time.Duration `yaml:"period"`
	FullScale int           `yaml:"full_scale"`
}

// RangeConfig is an inclusive acceptable band.
type RangeConfig struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// ThresholdConfig defines the alert bands.
type ThresholdConfig struct {
	Temperature RangeConfig `yaml:"temperature"`
	Humidity    RangeConfig `yaml:"humidity"`
}

// QueueConfig defines the capacity of each inter-task queue.
type QueueConfig struct {
	Temperature int `yaml:"temperature"`
	Humidity    int `yaml:"humidity"`
	Light       int `yaml:"light"`
	Crossing    int `yaml:"crossing"`
	// CrossingPolicy is drop or overwrite.
	CrossingPolicy string `yaml:"crossing_policy"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		MQTT: MQTTConfig{
			Broker:          "tcp://192.168.1.200:1883",
			Protocol:        ProtocolMQTT3,
			KeepAlive:       15 * time.Second,
			ConnectTimeout:  10 * time.Second,
			ReconnectDelay:  5 * time.Second,
			PublishInterval: 100 * time.Millisecond,
			TopicPrefix:     "sala",
			Heartbeat:       15 * time.Minute,
		},
		Detector: DetectorConfig{
			Mode:     ModeCrossing,
			Poll:     50 * time.Millisecond,
			Debounce: 200 * time.Millisecond,
			Timeout:  2 * time.Second,
		},
		GPIO: GPIOConfig{
			Chip:         "gpiochip0",
			OuterPin:     17,
			InnerPin:     27,
			IndicatorPin: 22,
		},
		Climate: ClimateConfig{
			Device: "/sys/bus/iio/devices/iio:device0",
			Period: 5 * time.Second,
		},
		Light: LightConfig{
			Device:    "/sys/bus/iio/devices/iio:device1/in_voltage0_raw",
			Period:    5 * time.Second,
			FullScale: 4095,
		},
		Thresholds: ThresholdConfig{
			Temperature: RangeConfig{Min: 20, Max: 25},
			Humidity:    RangeConfig{Min: 40, Max: 60},
		},
		Queues: QueueConfig{
			Temperature:    5,
			Humidity:       5,
			Light:          5,
			Crossing:       10,
			CrossingPolicy: "drop",
		},
		HTTPAddr:  ":80",
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads configuration from a YAML file. Fields absent from the file
// keep their Default values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// maxKeepAlive is the largest keep-alive the MQTT CONNECT packet can carry
// (a 16-bit count of seconds).
const maxKeepAlive = 65535 * time.Second

// Validate checks for values the daemon cannot run with.
func (c Config) Validate() error {
	var errs []error

	if c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required"))
	}
	switch c.MQTT.Protocol {
	case ProtocolMQTT3, ProtocolMQTT5:
	default:
		errs = append(errs, fmt.Errorf("mqtt.protocol %q (valid: mqtt3, mqtt5)", c.MQTT.Protocol))
	}
	positive := map[string]time.Duration{
		"mqtt.keep_alive":           c.MQTT.KeepAlive,
		"mqtt.connect_timeout":      c.MQTT.ConnectTimeout,
		"mqtt.reconnect_backoff":    c.MQTT.ReconnectDelay,
		"mqtt.publish_interval":     c.MQTT.PublishInterval,
		"detector.poll":             c.Detector.Poll,
		"detector.sequence_timeout": c.Detector.Timeout,
		"climate.period":            c.Climate.Period,
		"light.period":              c.Light.Period,
	}
	for name, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", name, d))
		}
	}
	if c.MQTT.KeepAlive > maxKeepAlive {
		errs = append(errs, fmt.Errorf("mqtt.keep_alive must be at most %v, got %v", maxKeepAlive, c.MQTT.KeepAlive))
	}
	if c.MQTT.Heartbeat < 0 {
		errs = append(errs, fmt.Errorf("mqtt.heartbeat must not be negative, got %v", c.MQTT.Heartbeat))
	}
	if c.Detector.Debounce < 0 {
		errs = append(errs, fmt.Errorf("detector.debounce must not be negative, got %v", c.Detector.Debounce))
	}
	switch c.Detector.Mode {
	case ModeCrossing, ModePresence:
	default:
		errs = append(errs, fmt.Errorf("detector.mode %q (valid: crossing, presence)", c.Detector.Mode))
	}
	if c.Light.FullScale <= 0 {
		errs = append(errs, fmt.Errorf("light.full_scale must be positive, got %d", c.Light.FullScale))
	}
	if c.Thresholds.Temperature.Min > c.Thresholds.Temperature.Max {
		errs = append(errs, errors.New("thresholds.temperature: min exceeds max"))
	}
	if c.Thresholds.Humidity.Min > c.Thresholds.Humidity.Max {
		errs = append(errs, errors.New("thresholds.humidity: min exceeds max"))
	}
	capacities := map[string]int{
		"queues.temperature": c.Queues.Temperature,
		"queues.humidity":    c.Queues.Humidity,
		"queues.light":       c.Queues.Light,
		"queues.crossing":    c.Queues.Crossing,
	}
	for name, n := range capacities {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, n))
		}
	}
	switch c.Queues.CrossingPolicy {
	case "", "drop", "overwrite":
	default:
		errs = append(errs, fmt.Errorf("queues.crossing_policy %q (valid: drop, overwrite)", c.Queues.CrossingPolicy))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format %q (valid: text, json)", c.LogFormat))
	}

	return errors.Join(errs...)
}
