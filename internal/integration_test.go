package internal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

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

var startTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

const pollInterval = 100 * time.Millisecond

// pipeline wires the detector, queues, publisher and status tracker
// together with fakes at the edges, the same way main does.
type pipeline struct {
	lines     *gpio.FakeReader
	sink      *mqtt.FakeSink
	queues    telemetry.Queues
	tracker   *status.Tracker
	detector  *tasks.DetectorTask
	publisher *telemetry.Publisher
	topics    mqtt.Topics
	logger    *slog.Logger
}

func newPipeline(t *testing.T, samples []gpio.Sample) *pipeline {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	topics := mqtt.NewTopics("room")
	queues := telemetry.Queues{
		Temperature: queue.New[logic.Sample]("temperature", 5, queue.Block, logger),
		Humidity:    queue.New[logic.Sample]("humidity", 5, queue.Block, logger),
		Light:       queue.New[logic.Sample]("light", 5, queue.Block, logger),
		Crossing:    queue.New[logic.CrossingEvent]("crossing", 10, queue.DropNewest, logger),
	}
	tracker := status.NewTracker(startTime, status.Config{Mode: "crossing"})
	lines := gpio.NewFakeReader(samples)
	sink := mqtt.NewFakeSink()

	detector := tasks.NewCrossingTask(lines, logic.CrossingConfig{
		Debounce: 200 * time.Millisecond,
		Timeout:  2 * time.Second,
	}, queues.Crossing, tracker, logger)

	publisher := telemetry.New(telemetry.Config{
		ReconnectDelay: 5 * time.Second,
		Heartbeat:      time.Hour,
		Temperature:    logic.Range{Min: 20, Max: 25},
		Humidity:       logic.Range{Min: 40, Max: 60},
		Topics:         topics,
	}, sink, queues, tracker, logger)

	return &pipeline{
		lines:     lines,
		sink:      sink,
		queues:    queues,
		tracker:   tracker,
		detector:  detector,
		publisher: publisher,
		topics:    topics,
		logger:    logger,
	}
}

// run simulates the main loop: one detector poll and one publisher step
// per sample.
func (p *pipeline) run(n int) {
	for i := 0; i < n; i++ {
		now := startTime.Add(time.Duration(i) * pollInterval)
		p.detector.Poll(now)
		p.publisher.Step(context.Background(), now)
	}
}

func last(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[len(values)-1]
}

// TestIntegrationEntry walks a person in: outer at 0ms, inner at 500ms.
func TestIntegrationEntry(t *testing.T) {
	samples := []gpio.Sample{
		gpio.Doorway(true, false),  // t=0 outer interrupted
		gpio.Doorway(true, false),  // t=100ms
		gpio.Doorway(true, false),  // t=200ms
		gpio.Doorway(true, false),  // t=300ms
		gpio.Doorway(true, false),  // t=400ms
		gpio.Doorway(true, true),   // t=500ms inner interrupted
		gpio.Doorway(false, true),  // t=600ms
		gpio.Doorway(false, false), // t=700ms clear
	}
	p := newPipeline(t, samples)
	p.run(len(samples))

	if got := p.sink.Payloads(p.topics.Status); len(got) != 1 || got[0] != mqtt.StatusOnline {
		t.Errorf("status: got %v, want [Online]", got)
	}
	if got := p.sink.Payloads(p.topics.Entry); len(got) != 1 || got[0] != mqtt.Detected {
		t.Errorf("entry: got %v, want [DETECTED]", got)
	}
	if got := p.sink.Payloads(p.topics.Exit); len(got) != 0 {
		t.Errorf("exit: got %v, want none", got)
	}
	if got := last(p.sink.Payloads(p.topics.OccupantCount)); got != "1" {
		t.Errorf("occupant-count: got %q, want 1", got)
	}
	if got := last(p.sink.Payloads(p.topics.Occupancy)); got != logic.LabelOccupied {
		t.Errorf("occupancy: got %q, want OCCUPIED", got)
	}

	snap := p.tracker.Snapshot()
	if snap.Count != 1 || !snap.Occupied {
		t.Errorf("tracker: count=%d occupied=%v, want 1/true", snap.Count, snap.Occupied)
	}
	if snap.Crossings.Entries != 1 {
		t.Errorf("tracker entries: got %d, want 1", snap.Crossings.Entries)
	}
}

// TestIntegrationExitFromEmptyRoom verifies the count clamps at zero.
func TestIntegrationExitFromEmptyRoom(t *testing.T) {
	samples := []gpio.Sample{
		gpio.Doorway(false, true),  // t=0 inner interrupted
		gpio.Doorway(false, true),  // t=100ms
		gpio.Doorway(false, true),  // t=200ms
		gpio.Doorway(true, true),   // t=300ms outer interrupted
		gpio.Doorway(false, false), // t=400ms
	}
	p := newPipeline(t, samples)
	p.run(len(samples))

	if got := p.sink.Payloads(p.topics.Exit); len(got) != 1 {
		t.Fatalf("exit: got %v, want one DETECTED", got)
	}
	if got := last(p.sink.Payloads(p.topics.OccupantCount)); got != "0" {
		t.Errorf("occupant-count: got %q, want 0", got)
	}
	if got := last(p.sink.Payloads(p.topics.Occupancy)); got != logic.LabelVacant {
		t.Errorf("occupancy: got %q, want VACANT", got)
	}
}

// TestIntegrationEntryThenExit brings the room back to vacant.
func TestIntegrationEntryThenExit(t *testing.T) {
	samples := []gpio.Sample{
		gpio.Doorway(true, false),  // t=0
		gpio.Doorway(true, true),   // t=100ms entry
		gpio.Doorway(false, false), // t=200ms
		gpio.Doorway(false, false), // t=300ms
		gpio.Doorway(false, false), // t=400ms
		gpio.Doorway(false, true),  // t=500ms
		gpio.Doorway(true, true),   // t=600ms exit
		gpio.Doorway(false, false), // t=700ms
	}
	p := newPipeline(t, samples)
	p.run(len(samples))

	counts := p.sink.Payloads(p.topics.OccupantCount)
	if len(counts) != 2 || counts[0] != "1" || counts[1] != "0" {
		t.Errorf("occupant-count: got %v, want [1 0]", counts)
	}
	if p.publisher.Occupancy().Count != 0 {
		t.Errorf("occupancy count: got %d, want 0", p.publisher.Occupancy().Count)
	}
}

// TestIntegrationSequenceTimeout verifies an abandoned sequence publishes
// nothing.
func TestIntegrationSequenceTimeout(t *testing.T) {
	samples := make([]gpio.Sample, 0, 30)
	samples = append(samples, gpio.Doorway(true, false))
	for i := 0; i < 25; i++ {
		samples = append(samples, gpio.Doorway(false, false))
	}
	p := newPipeline(t, samples)
	p.run(len(samples))

	if got := p.sink.Payloads(p.topics.Entry); len(got) != 0 {
		t.Errorf("entry: got %v, want none", got)
	}
	if got := p.tracker.Snapshot().Crossings.Abandoned; got != 1 {
		t.Errorf("abandoned: got %d, want 1", got)
	}
}

// TestIntegrationEventsHeldWhileDisconnected verifies crossings queue up
// during an outage and drain after the reconnect.
func TestIntegrationEventsHeldWhileDisconnected(t *testing.T) {
	samples := []gpio.Sample{
		gpio.Doorway(true, false),
		gpio.Doorway(true, true), // entry while broker down
		gpio.Doorway(false, false),
	}
	p := newPipeline(t, samples)
	p.sink.SetConnectError(errors.New("connection refused"))
	p.run(len(samples))

	if n := len(p.sink.Messages()); n != 0 {
		t.Fatalf("published %d messages while disconnected", n)
	}
	if got := p.queues.Crossing.Len(); got != 1 {
		t.Fatalf("crossing queue: got %d, want 1", got)
	}

	p.sink.SetConnectError(nil)
	p.publisher.Step(context.Background(), startTime.Add(10*time.Second))

	if got := p.sink.Payloads(p.topics.Entry); len(got) != 1 {
		t.Errorf("entry after reconnect: got %v, want one", got)
	}
	if got := p.queues.Crossing.Len(); got != 0 {
		t.Errorf("crossing queue after drain: got %d, want 0", got)
	}
}

// TestIntegrationClimateAlert runs a real sampler against a fake sensor
// reading 26.5 °C.
func TestIntegrationClimateAlert(t *testing.T) {
	p := newPipeline(t, []gpio.Sample{gpio.Doorway(false, false)})
	sampler := tasks.NewSampler(logic.KindTemperature, 10*time.Millisecond, sensor.NewFake(26.5), p.queues.Temperature, p.logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sampler.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for p.queues.Temperature.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("sampler produced no sample")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("sampler: %v", err)
	}

	p.publisher.Step(context.Background(), startTime)

	if got := p.sink.Payloads(p.topics.Temperature); len(got) == 0 || got[0] != "26.50" {
		t.Errorf("temperature: got %v, want 26.50 first", got)
	}
	if got := p.sink.Payloads(p.topics.Alerts); len(got) == 0 || got[0] != "Temperature out of range (26.50 °C)" {
		t.Errorf("alerts: got %v", got)
	}
	if got := p.sink.Payloads(p.topics.Cooling); len(got) == 0 || got[0] != "ON" {
		t.Errorf("cooling-suggestion: got %v, want ON", got)
	}
}

// TestIntegrationStatusPage checks the HTTP view reflects the pipeline.
func TestIntegrationStatusPage(t *testing.T) {
	samples := []gpio.Sample{
		gpio.Doorway(true, false),
		gpio.Doorway(true, true),
		gpio.Doorway(false, false),
	}
	p := newPipeline(t, samples)
	p.queues.Humidity.TrySend(logic.Sample{Kind: logic.KindHumidity, Value: 72, ProducedAt: startTime})

	srv := web.New(":0", p.tracker, p.logger)
	var broadcast []string
	p.publisher.Observe(func(topic, payload string, at time.Time) {
		broadcast = append(broadcast, topic)
	})
	p.run(len(samples))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/index.json", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code: got %d", rec.Code)
	}

	var parsed status.StatusJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Occupancy.Count != 1 {
		t.Errorf("count: got %d, want 1", parsed.Status.Occupancy.Count)
	}
	if parsed.Status.Occupancy.State != logic.LabelOccupied {
		t.Errorf("state: got %q", parsed.Status.Occupancy.State)
	}
	if parsed.Status.Readings.Humidity == nil || *parsed.Status.Readings.Humidity != 72 {
		t.Errorf("humidity: got %v, want 72", parsed.Status.Readings.Humidity)
	}
	if !parsed.Status.MQTT.Connected {
		t.Error("expected mqtt connected")
	}
	if parsed.Status.Counters.Alerts != 1 {
		t.Errorf("alerts: got %d, want 1", parsed.Status.Counters.Alerts)
	}
	if len(broadcast) == 0 {
		t.Error("observer saw no publishes")
	}
}

// TestIntegrationShutdown publishes the retained Offline status.
func TestIntegrationShutdown(t *testing.T) {
	p := newPipeline(t, []gpio.Sample{gpio.Doorway(false, false)})
	p.run(1)

	if err := p.publisher.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	msgs := p.sink.Messages()
	final := msgs[len(msgs)-1]
	if final.Topic != p.topics.Status || final.Payload != mqtt.StatusOffline || !final.Retained {
		t.Errorf("final message: got %+v, want retained Offline on status", final)
	}
	if !p.sink.Closed() {
		t.Error("sink not closed")
	}
}
