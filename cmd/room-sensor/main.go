// Command room-sensor samples room climate and light, counts people through
// a doorway and publishes everything to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/room-sensor/internal/config"
	"github.com/sweeney/room-sensor/internal/gpio"
	"github.com/sweeney/room-sensor/internal/logic"
	"github.com/sweeney/room-sensor/internal/mqtt"
	"github.com/sweeney/room-sensor/internal/queue"
	"github.com/sweeney/room-sensor/internal/sensor"
	"github.com/sweeney/room-sensor/internal/status"
	"github.com/sweeney/room-sensor/internal/tasks"
	"github.com/sweeney/room-sensor/internal/telemetry"
	"github.com/sweeney/room-sensor/internal/web"
)

type flags struct {
	configPath string
	broker     string
	httpAddr   string
	logLevel   string
	printState bool
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "Path to YAML config (default: search ./room-sensor.yaml, ~/.config/room-sensor/config.yaml, /etc/room-sensor/config.yaml)")
	flag.StringVar(&f.broker, "broker", "", "MQTT broker address (overrides config)")
	flag.StringVar(&f.httpAddr, "http", "", `HTTP status address (overrides config, "off" disables)`)
	flag.StringVar(&f.logLevel, "log-level", "", "Log level: trace, debug, info, warn, error (overrides config)")
	flag.BoolVar(&f.printState, "print-state", false, "Print current sensor state and exit")

	flag.Parse()

	if err := run(f); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig finds and loads the config file, falling back to defaults
// when none exists, then applies flag overrides. It returns the path used,
// or "" for defaults.
func loadConfig(f flags) (config.Config, string, error) {
	cfg := config.Default()
	path, err := config.FindConfig(f.configPath)
	switch {
	case errors.Is(err, config.ErrNoConfig):
		path = ""
	case err != nil:
		return cfg, "", err
	default:
		if cfg, err = config.Load(path); err != nil {
			return cfg, path, err
		}
	}

	if f.broker != "" {
		cfg.MQTT.Broker = f.broker
	}
	switch f.httpAddr {
	case "":
	case "off":
		cfg.HTTPAddr = ""
	default:
		cfg.HTTPAddr = f.httpAddr
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return cfg, path, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, path, nil
}

func run(f flags) error {
	cfg, path, err := loadConfig(f)
	if err != nil {
		return err
	}

	logger, err := config.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if path == "" {
		logger.Info("no config file found, using defaults")
	} else {
		logger.Info("loaded config", "path", path)
	}

	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = mqtt.ClientID("room-sensor")
	}

	// Initialize GPIO
	pins := []int{cfg.GPIO.OuterPin}
	if cfg.Detector.Mode == config.ModeCrossing {
		pins = append(pins, cfg.GPIO.InnerPin)
	}
	lines, err := gpio.NewRealReader(cfg.GPIO.Chip, pins...)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer lines.Close()

	climate, light := discoverSensors(cfg, logger)

	// Print state mode
	if f.printState {
		return printState(os.Stdout, cfg.Detector.Mode, lines, climate, light)
	}

	var indicator gpio.Indicator
	if cfg.GPIO.IndicatorPin >= 0 {
		ind, err := gpio.NewRealIndicator(cfg.GPIO.Chip, cfg.GPIO.IndicatorPin)
		if err != nil {
			logger.Warn("indicator unavailable", "pin", cfg.GPIO.IndicatorPin, "error", err)
		} else {
			indicator = ind
			defer ind.Close()
		}
	}

	crossingPolicy, err := queue.ParsePolicy(cfg.Queues.CrossingPolicy)
	if err != nil {
		return err
	}
	queues := telemetry.Queues{
		Temperature: queue.New[logic.Sample]("temperature", cfg.Queues.Temperature, queue.Block, logger),
		Humidity:    queue.New[logic.Sample]("humidity", cfg.Queues.Humidity, queue.Block, logger),
		Light:       queue.New[logic.Sample]("light", cfg.Queues.Light, queue.Block, logger),
	}
	if cfg.Detector.Mode == config.ModeCrossing {
		queues.Crossing = queue.New[logic.CrossingEvent]("crossing", cfg.Queues.Crossing, crossingPolicy, logger)
	} else {
		queues.Presence = queue.New[logic.PresenceEvent]("presence", cfg.Queues.Crossing, crossingPolicy, logger)
	}

	tracker := status.NewTracker(time.Now(), statusConfig(cfg))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	sink, err := mqtt.NewSink(cfg.MQTT, logger)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}

	publisher := telemetry.New(telemetry.Config{
		ReconnectDelay: cfg.MQTT.ReconnectDelay,
		Heartbeat:      cfg.MQTT.Heartbeat,
		Temperature:    logic.Range{Min: cfg.Thresholds.Temperature.Min, Max: cfg.Thresholds.Temperature.Max},
		Humidity:       logic.Range{Min: cfg.Thresholds.Humidity.Min, Max: cfg.Thresholds.Humidity.Max},
		Topics:         mqtt.NewTopics(cfg.MQTT.TopicPrefix),
	}, sink, queues, tracker, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	// Start HTTP status server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, logger)
		publisher.Observe(func(topic, payload string, at time.Time) {
			srv.Broadcast(web.Message{Topic: topic, Payload: payload, Timestamp: at})
		})
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				// The status page is optional; keep sampling without it.
				logger.Error("http server error", "error", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		logger.Info("http status server listening", "addr", cfg.HTTPAddr)
	}

	if climate != nil {
		startSampler(ctx, g, tasks.NewSampler(logic.KindTemperature, cfg.Climate.Period, climate.Temperature(), queues.Temperature, logger))
		startSampler(ctx, g, tasks.NewSampler(logic.KindHumidity, cfg.Climate.Period, climate.Humidity(), queues.Humidity, logger))
	}
	if light != nil {
		startSampler(ctx, g, tasks.NewSampler(logic.KindLight, cfg.Light.Period, light, queues.Light, logger))
	}

	var detector *tasks.DetectorTask
	if cfg.Detector.Mode == config.ModeCrossing {
		detector = tasks.NewCrossingTask(lines, logic.CrossingConfig{
			Debounce: cfg.Detector.Debounce,
			Timeout:  cfg.Detector.Timeout,
		}, queues.Crossing, tracker, logger)
	} else {
		detector = tasks.NewPresenceTask(lines, cfg.Detector.Debounce, queues.Presence, logger)
	}
	startTicking(ctx, g, cfg.Detector.Poll, detector.Run)

	if indicator != nil {
		startTicking(ctx, g, cfg.Detector.Poll, tasks.NewIndicatorTask(indicator, tracker, logger).Run)
	}

	startTicking(ctx, g, cfg.MQTT.PublishInterval, publisher.Run)

	g.Go(func() error {
		refreshNetwork(ctx, tracker, time.Minute)
		return nil
	})

	logger.Info("started",
		"mode", cfg.Detector.Mode,
		"poll", cfg.Detector.Poll,
		"debounce", cfg.Detector.Debounce,
		"sequence_timeout", cfg.Detector.Timeout,
		"broker", cfg.MQTT.Broker,
		"protocol", cfg.MQTT.Protocol,
		"client_id", cfg.MQTT.ClientID,
		"heartbeat", cfg.MQTT.Heartbeat)

	err = g.Wait()
	if s := context.Cause(ctx); s != nil {
		logger.Info("shutting down", "cause", s)
	}
	return err
}

func startSampler(ctx context.Context, g *errgroup.Group, s *tasks.Sampler) {
	g.Go(func() error { return s.Run(ctx) })
}

// startTicking runs fn with its own ticker at interval.
func startTicking(ctx context.Context, g *errgroup.Group, interval time.Duration, fn func(context.Context, <-chan time.Time) error) {
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		return fn(ctx, ticker.C)
	})
}

// discoverSensors probes each configured analog sensor once. Sensors that
// do not answer are skipped for the life of the process.
func discoverSensors(cfg config.Config, logger *slog.Logger) (*sensor.Climate, *sensor.Light) {
	var (
		climate *sensor.Climate
		light   *sensor.Light
	)
	if cfg.Climate.Device != "" {
		c := sensor.NewClimate(cfg.Climate.Device)
		if err := c.Probe(); err != nil {
			logger.Warn("climate sensor not detected, skipping", "device", cfg.Climate.Device, "error", err)
		} else {
			logger.Info("climate sensor detected", "device", cfg.Climate.Device)
			climate = c
		}
	}
	if cfg.Light.Device != "" {
		l := sensor.NewLight(cfg.Light.Device, cfg.Light.FullScale)
		if err := l.Probe(); err != nil {
			logger.Warn("light sensor not detected, skipping", "device", cfg.Light.Device, "error", err)
		} else {
			logger.Info("light sensor detected", "device", cfg.Light.Device)
			light = l
		}
	}
	return climate, light
}

func statusConfig(cfg config.Config) status.Config {
	return status.Config{
		Mode:              cfg.Detector.Mode,
		PollMs:            cfg.Detector.Poll.Milliseconds(),
		DebounceMs:        cfg.Detector.Debounce.Milliseconds(),
		SequenceTimeoutMs: cfg.Detector.Timeout.Milliseconds(),
		PublishMs:         cfg.MQTT.PublishInterval.Milliseconds(),
		HeartbeatMs:       cfg.MQTT.Heartbeat.Milliseconds(),
		Broker:            cfg.MQTT.Broker,
		Protocol:          cfg.MQTT.Protocol,
		ClientID:          cfg.MQTT.ClientID,
		TopicPrefix:       cfg.MQTT.TopicPrefix,
		HTTPAddr:          cfg.HTTPAddr,
		Temperature:       logic.Range{Min: cfg.Thresholds.Temperature.Min, Max: cfg.Thresholds.Temperature.Max},
		Humidity:          logic.Range{Min: cfg.Thresholds.Humidity.Min, Max: cfg.Thresholds.Humidity.Max},
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

func refreshNetwork(ctx context.Context, tracker *status.Tracker, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if net := readNetworkInfo(); net != nil {
				tracker.SetNetwork(net)
			}
		}
	}
}
