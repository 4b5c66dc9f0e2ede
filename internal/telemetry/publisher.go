// Package telemetry moves queued readings and doorway events to the MQTT
// sink. The Publisher is the only consumer of every queue and the only
// owner of the sink connection.
package telemetry

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/sweeney/room-sensor/internal/logic"
	"github.com/sweeney/room-sensor/internal/mqtt"
	"github.com/sweeney/room-sensor/internal/queue"
	"github.com/sweeney/room-sensor/internal/status"
)

// Config holds the publisher tunables.
type Config struct {
	// ReconnectDelay is the minimum time between connection attempts.
	ReconnectDelay time.Duration
	// Heartbeat is the status snapshot interval. 0 disables it.
	Heartbeat   time.Duration
	Temperature logic.Range
	Humidity    logic.Range
	Topics      mqtt.Topics
}

// Queues are the inputs drained by the publisher. A nil queue is skipped.
type Queues struct {
	Temperature *queue.Queue[logic.Sample]
	Humidity    *queue.Queue[logic.Sample]
	Light       *queue.Queue[logic.Sample]
	Crossing    *queue.Queue[logic.CrossingEvent]
	Presence    *queue.Queue[logic.PresenceEvent]
}

// Observer is called after every successful publish.
type Observer func(topic, payload string, at time.Time)

// Publisher runs the connect / drain / publish cycle.
type Publisher struct {
	cfg     Config
	sink    mqtt.Sink
	queues  Queues
	tracker *status.Tracker
	logger  *slog.Logger

	observers []Observer

	// Owned by the Step goroutine.
	connected     bool
	everConnected bool
	attempted     bool
	lastAttempt   time.Time
	lastHeartbeat time.Time
	occupancy     logic.Occupancy

	mu    sync.Mutex
	stats status.Counters
}

// New creates a publisher in the disconnected state.
func New(cfg Config, sink mqtt.Sink, queues Queues, tracker *status.Tracker, logger *slog.Logger) *Publisher {
	return &Publisher{
		cfg:     cfg,
		sink:    sink,
		queues:  queues,
		tracker: tracker,
		logger:  logger.With("task", "publisher"),
	}
}

// Observe registers fn to be called after every successful publish. It
// must be called before Run.
func (p *Publisher) Observe(fn Observer) {
	p.observers = append(p.observers, fn)
}

// Run steps on every tick until ctx is cancelled, then publishes the
// Offline status and closes the sink.
func (p *Publisher) Run(ctx context.Context, tick <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return p.Shutdown()
		case t := <-tick:
			p.Step(ctx, t)
		}
	}
}

// Step runs one iteration at time now. While disconnected it only
// considers a reconnect and never drains. While connected it drains at
// most one item from each queue.
func (p *Publisher) Step(ctx context.Context, now time.Time) {
	if p.lastHeartbeat.IsZero() {
		p.lastHeartbeat = now
	}
	if p.ensureConnected(ctx, now) {
		p.drain(now)
		p.heartbeat(now)
	}
	p.syncStatus()
}

// Connected reports the publisher's view of the sink connection.
func (p *Publisher) Connected() bool {
	return p.connected
}

// Occupancy returns the aggregated occupancy.
func (p *Publisher) Occupancy() logic.Occupancy {
	return p.occupancy
}

// Stats returns a copy of the running counters.
func (p *Publisher) Stats() status.Counters {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Shutdown publishes the retained Offline status if connected and closes
// the sink.
func (p *Publisher) Shutdown() error {
	if p.connected && p.sink.IsConnected() {
		p.publish(p.cfg.Topics.Status, mqtt.StatusOffline, true, time.Now())
	}
	p.connected = false
	p.tracker.SetMQTTConnected(false)
	p.logger.Info("publisher stopped", "published", p.Stats().Published)
	return p.sink.Close()
}

func (p *Publisher) ensureConnected(ctx context.Context, now time.Time) bool {
	if p.connected {
		if p.sink.IsConnected() {
			return true
		}
		p.connected = false
		// Loss counts as an attempt so the next try waits a full delay.
		p.lastAttempt = now
		p.tracker.SetMQTTConnected(false)
		p.logger.Warn("mqtt disconnected", "retry_in", p.cfg.ReconnectDelay)
		return false
	}

	if p.attempted && now.Sub(p.lastAttempt) < p.cfg.ReconnectDelay {
		return false
	}

	p.attempted = true
	p.lastAttempt = now
	p.count(func(s *status.Counters) { s.ConnectAttempts++ })

	if err := p.sink.Connect(ctx); err != nil {
		p.logger.Warn("mqtt connect failed", "error", err, "retry_in", p.cfg.ReconnectDelay)
		return false
	}

	p.connected = true
	p.tracker.SetMQTTConnected(true)

	announce := mqtt.StatusOnline
	if p.everConnected {
		announce = mqtt.StatusReconnected
	}
	p.everConnected = true
	p.logger.Info("mqtt connected", "status", announce)
	p.publish(p.cfg.Topics.Status, announce, true, now)
	return true
}

// drain takes at most one item from each queue in a fixed order.
func (p *Publisher) drain(now time.Time) {
	for _, q := range []*queue.Queue[logic.Sample]{p.queues.Temperature, p.queues.Humidity, p.queues.Light} {
		if q == nil {
			continue
		}
		if s, ok := q.TryReceive(); ok {
			p.count(func(c *status.Counters) { c.Drained++ })
			p.handleSample(s, now)
		}
	}
	if p.queues.Crossing != nil {
		if ev, ok := p.queues.Crossing.TryReceive(); ok {
			p.count(func(c *status.Counters) { c.Drained++ })
			p.handleCrossing(ev, now)
		}
	}
	if p.queues.Presence != nil {
		if ev, ok := p.queues.Presence.TryReceive(); ok {
			p.count(func(c *status.Counters) { c.Drained++ })
			p.handlePresence(ev, now)
		}
	}
}

func (p *Publisher) handleSample(s logic.Sample, now time.Time) {
	p.publish(p.cfg.Topics.Reading(s.Kind), logic.FormatReading(s.Value), false, now)
	p.tracker.RecordReading(s.Kind, s.Value, s.ProducedAt)

	switch s.Kind {
	case logic.KindTemperature:
		verdict := logic.CheckTemperature(s.Value, p.cfg.Temperature)
		if verdict.OutOfRange {
			p.alert(logic.TemperatureAlert(s.Value), now)
		}
		if verdict.Cooling != logic.CoolingNone {
			p.publish(p.cfg.Topics.Cooling, verdict.Cooling.String(), false, now)
			p.tracker.SetCooling(verdict.Cooling.String())
		}
	case logic.KindHumidity:
		if logic.CheckHumidity(s.Value, p.cfg.Humidity) {
			p.alert(logic.HumidityAlert(s.Value), now)
		}
	}
}

func (p *Publisher) alert(text string, now time.Time) {
	p.count(func(c *status.Counters) { c.Alerts++ })
	p.logger.Info("alert", "text", text)
	p.publish(p.cfg.Topics.Alerts, text, false, now)
}

func (p *Publisher) handleCrossing(ev logic.CrossingEvent, now time.Time) {
	p.occupancy = p.occupancy.Apply(ev.Direction)
	p.tracker.SetOccupancy(p.occupancy)

	p.publish(p.cfg.Topics.Crossing(ev.Direction), mqtt.Detected, false, now)
	p.publish(p.cfg.Topics.OccupantCount, strconv.Itoa(p.occupancy.Count), false, now)
	p.publish(p.cfg.Topics.Occupancy, p.occupancy.Label(), false, now)
	p.logger.Info("occupancy updated",
		"direction", ev.Direction.String(), "count", p.occupancy.Count, "state", p.occupancy.Label())
}

func (p *Publisher) handlePresence(ev logic.PresenceEvent, now time.Time) {
	p.tracker.SetPresence(ev.Present)

	marker := mqtt.Clear
	if ev.Present {
		marker = mqtt.Detected
	}
	p.publish(p.cfg.Topics.Presence, marker, false, now)
	p.publish(p.cfg.Topics.Occupancy, logic.OccupancyLabel(ev.Present), false, now)
}

func (p *Publisher) heartbeat(now time.Time) {
	if p.cfg.Heartbeat <= 0 || now.Sub(p.lastHeartbeat) < p.cfg.Heartbeat {
		return
	}
	p.lastHeartbeat = now
	p.syncStatus()
	snap := p.tracker.Snapshot()
	p.logger.Info("heartbeat", "uptime", snap.Uptime().Truncate(time.Second), "count", snap.Count)
	p.publish(p.cfg.Topics.Heartbeat, string(status.FormatStatusEvent(snap, "HEARTBEAT")), false, now)
}

func (p *Publisher) publish(topic, payload string, retained bool, now time.Time) {
	if err := p.sink.Publish(topic, []byte(payload), retained); err != nil {
		p.count(func(c *status.Counters) { c.PublishErrors++ })
		p.logger.Warn("publish failed", "topic", topic, "error", err)
		return
	}
	p.count(func(c *status.Counters) { c.Published++ })
	p.logger.Debug("published", "topic", topic, "payload", payload)
	for _, fn := range p.observers {
		fn(topic, payload, now)
	}
}

func (p *Publisher) count(fn func(*status.Counters)) {
	p.mu.Lock()
	fn(&p.stats)
	p.mu.Unlock()
}

func (p *Publisher) syncStatus() {
	p.tracker.SetCounters(p.Stats())

	var qs []status.QueueStat
	qs = appendQueueStat(qs, p.queues.Temperature)
	qs = appendQueueStat(qs, p.queues.Humidity)
	qs = appendQueueStat(qs, p.queues.Light)
	qs = appendQueueStat(qs, p.queues.Crossing)
	qs = appendQueueStat(qs, p.queues.Presence)
	p.tracker.SetQueues(qs)
}

func appendQueueStat[T any](qs []status.QueueStat, q *queue.Queue[T]) []status.QueueStat {
	if q == nil {
		return qs
	}
	return append(qs, status.QueueStat{Name: q.Name(), Len: q.Len(), Cap: q.Cap(), Dropped: q.Dropped()})
}
