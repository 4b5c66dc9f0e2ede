// Package status holds the live state of the room-sensor daemon behind a
// single RWMutex. The telemetry publisher is the only writer of occupancy;
// the indicator task, HTTP handlers and the heartbeat only read.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/room-sensor/internal/logic"
)

// HistoryLen is the number of temperature and humidity points kept for the
// status page chart.
const HistoryLen = 20

// NetworkInfo contains network state written by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Mode              string
	PollMs            int64
	DebounceMs        int64
	SequenceTimeoutMs int64
	PublishMs         int64
	HeartbeatMs       int64
	Broker            string
	Protocol          string
	ClientID          string
	TopicPrefix       string
	HTTPAddr          string
	Temperature       logic.Range
	Humidity          logic.Range
}

// Reading is the latest value drained for one sensor kind.
type Reading struct {
	Value float64
	At    time.Time
}

// Valid reports whether a reading has been recorded.
func (r Reading) Valid() bool {
	return !r.At.IsZero()
}

// Point is one entry in a reading history.
type Point struct {
	Time  time.Time
	Value float64
}

// Counters are the publisher's running totals.
type Counters struct {
	Drained         uint64
	Published       uint64
	PublishErrors   uint64
	ConnectAttempts uint64
	Alerts          uint64
}

// QueueStat describes one event queue.
type QueueStat struct {
	Name    string
	Len     int
	Cap     int
	Dropped uint64
}

// Snapshot is a point-in-time view of daemon state. Slices are copies and
// safe to use after the lock is released.
type Snapshot struct {
	Count     int
	Occupied  bool
	Present   bool
	Phase     logic.Phase
	Crossings logic.CrossingCounts

	Temperature Reading
	Humidity    Reading
	Light       Reading
	Cooling     string

	TemperatureHistory []Point
	HumidityHistory    []Point

	Counters Counters
	Queues   []QueueStat

	MQTTConnected bool
	LastConnected time.Time
	StartTime     time.Time
	Now           time.Time
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Label returns OCCUPIED or VACANT.
func (s Snapshot) Label() string {
	return logic.OccupancyLabel(s.Occupied)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// SetOccupancy stores the aggregated occupancy.
func (t *Tracker) SetOccupancy(o logic.Occupancy) {
	t.mu.Lock()
	t.snap.Count = o.Count
	t.snap.Occupied = o.Occupied()
	t.mu.Unlock()
}

// SetPresence stores the single-sensor presence state. Presence also
// drives the occupied flag.
func (t *Tracker) SetPresence(present bool) {
	t.mu.Lock()
	t.snap.Present = present
	t.snap.Occupied = present
	t.mu.Unlock()
}

// Occupied reports the occupied flag without copying the snapshot.
func (t *Tracker) Occupied() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap.Occupied
}

// SetDetector stores the crossing detector's phase and counts.
func (t *Tracker) SetDetector(phase logic.Phase, counts logic.CrossingCounts) {
	t.mu.Lock()
	t.snap.Phase = phase
	t.snap.Crossings = counts
	t.mu.Unlock()
}

// RecordReading stores the latest value for kind and appends temperature
// and humidity to their bounded history.
func (t *Tracker) RecordReading(kind logic.SensorKind, v float64, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := Reading{Value: v, At: at}
	switch kind {
	case logic.KindTemperature:
		t.snap.Temperature = r
		t.snap.TemperatureHistory = appendPoint(t.snap.TemperatureHistory, Point{at, v})
	case logic.KindHumidity:
		t.snap.Humidity = r
		t.snap.HumidityHistory = appendPoint(t.snap.HumidityHistory, Point{at, v})
	case logic.KindLight:
		t.snap.Light = r
	}
}

func appendPoint(h []Point, p Point) []Point {
	h = append(h, p)
	if len(h) > HistoryLen {
		h = append(h[:0:0], h[len(h)-HistoryLen:]...)
	}
	return h
}

// SetCooling stores the last cooling suggestion (ON/OFF).
func (t *Tracker) SetCooling(s string) {
	t.mu.Lock()
	t.snap.Cooling = s
	t.mu.Unlock()
}

// SetCounters stores the publisher counters.
func (t *Tracker) SetCounters(c Counters) {
	t.mu.Lock()
	t.snap.Counters = c
	t.mu.Unlock()
}

// SetQueues stores per-queue statistics.
func (t *Tracker) SetQueues(qs []QueueStat) {
	t.mu.Lock()
	t.snap.Queues = append([]QueueStat(nil), qs...)
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status. A transition to
// connected records the time.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	if connected && !t.snap.MQTTConnected {
		t.snap.LastConnected = t.now()
	}
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.TemperatureHistory = append([]Point(nil), t.snap.TemperatureHistory...)
	s.HumidityHistory = append([]Point(nil), t.snap.HumidityHistory...)
	s.Queues = append([]QueueStat(nil), t.snap.Queues...)
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
