package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Mode          string        `json:"mode"`
	Occupancy     OccupancyJSON `json:"occupancy"`
	Readings      ReadingsJSON  `json:"readings"`
	History       HistoryJSON   `json:"history"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Counters      CountersJSON  `json:"counters"`
	Queues        []QueueJSON   `json:"queues"`
	Network       *NetworkJSON  `json:"network,omitempty"`
	Config        ConfigJSON    `json:"config"`
}

// OccupancyJSON reports the occupant count and detector state.
type OccupancyJSON struct {
	Count     int    `json:"count"`
	State     string `json:"state"`
	Present   bool   `json:"present"`
	Phase     string `json:"phase"`
	Entries   int    `json:"entries"`
	Exits     int    `json:"exits"`
	Late      int    `json:"late"`
	Abandoned int    `json:"abandoned"`
}

// ReadingsJSON holds the latest sensor values. Missing readings are null.
type ReadingsJSON struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Light       *float64 `json:"light"`
	Cooling     string   `json:"cooling_suggestion,omitempty"`
}

// PointJSON is one history entry.
type PointJSON struct {
	Timestamp string  `json:"timestamp"`
	Value     float64 `json:"value"`
}

// HistoryJSON holds recent temperature and humidity values, oldest first.
type HistoryJSON struct {
	Temperature []PointJSON `json:"temperature"`
	Humidity    []PointJSON `json:"humidity"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected     bool   `json:"connected"`
	Broker        string `json:"broker"`
	ClientID      string `json:"client_id"`
	LastConnected string `json:"last_connected,omitempty"`
}

// CountersJSON is the JSON representation of publisher counters.
type CountersJSON struct {
	Drained         uint64 `json:"drained"`
	Published       uint64 `json:"published"`
	PublishErrors   uint64 `json:"publish_errors"`
	ConnectAttempts uint64 `json:"connect_attempts"`
	Alerts          uint64 `json:"alerts"`
}

// QueueJSON is the JSON representation of one queue.
type QueueJSON struct {
	Name    string `json:"name"`
	Len     int    `json:"len"`
	Cap     int    `json:"cap"`
	Dropped uint64 `json:"dropped"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// RangeJSON is a threshold band.
type RangeJSON struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs            int64     `json:"poll_ms"`
	DebounceMs        int64     `json:"debounce_ms"`
	SequenceTimeoutMs int64     `json:"sequence_timeout_ms"`
	PublishMs         int64     `json:"publish_ms"`
	HeartbeatMs       int64     `json:"heartbeat_ms"`
	Protocol          string    `json:"protocol"`
	TopicPrefix       string    `json:"topic_prefix"`
	HTTPAddr          string    `json:"http_addr"`
	Temperature       RangeJSON `json:"temperature_range"`
	Humidity          RangeJSON `json:"humidity_range"`
}

func optional(r Reading) *float64 {
	if !r.Valid() {
		return nil
	}
	v := r.Value
	return &v
}

func points(ps []Point) []PointJSON {
	out := make([]PointJSON, 0, len(ps))
	for _, p := range ps {
		out = append(out, PointJSON{Timestamp: p.Time.UTC().Format(time.RFC3339), Value: p.Value})
	}
	return out
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Mode: snap.Config.Mode,
		Occupancy: OccupancyJSON{
			Count:     snap.Count,
			State:     snap.Label(),
			Present:   snap.Present,
			Phase:     snap.Phase.String(),
			Entries:   snap.Crossings.Entries,
			Exits:     snap.Crossings.Exits,
			Late:      snap.Crossings.Late,
			Abandoned: snap.Crossings.Abandoned,
		},
		Readings: ReadingsJSON{
			Temperature: optional(snap.Temperature),
			Humidity:    optional(snap.Humidity),
			Light:       optional(snap.Light),
			Cooling:     snap.Cooling,
		},
		History: HistoryJSON{
			Temperature: points(snap.TemperatureHistory),
			Humidity:    points(snap.HumidityHistory),
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT: MQTTStatus{
			Connected: snap.MQTTConnected,
			Broker:    snap.Config.Broker,
			ClientID:  snap.Config.ClientID,
		},
		Counters: CountersJSON{
			Drained:         snap.Counters.Drained,
			Published:       snap.Counters.Published,
			PublishErrors:   snap.Counters.PublishErrors,
			ConnectAttempts: snap.Counters.ConnectAttempts,
			Alerts:          snap.Counters.Alerts,
		},
		Queues: make([]QueueJSON, 0, len(snap.Queues)),
		Config: ConfigJSON{
			PollMs:            snap.Config.PollMs,
			DebounceMs:        snap.Config.DebounceMs,
			SequenceTimeoutMs: snap.Config.SequenceTimeoutMs,
			PublishMs:         snap.Config.PublishMs,
			HeartbeatMs:       snap.Config.HeartbeatMs,
			Protocol:          snap.Config.Protocol,
			TopicPrefix:       snap.Config.TopicPrefix,
			HTTPAddr:          snap.Config.HTTPAddr,
			Temperature:       RangeJSON{Min: snap.Config.Temperature.Min, Max: snap.Config.Temperature.Max},
			Humidity:          RangeJSON{Min: snap.Config.Humidity.Min, Max: snap.Config.Humidity.Max},
		},
	}
	if !snap.LastConnected.IsZero() {
		inner.MQTT.LastConnected = snap.LastConnected.UTC().Format(time.RFC3339)
	}
	for _, q := range snap.Queues {
		inner.Queues = append(inner.Queues, QueueJSON{Name: q.Name, Len: q.Len, Cap: q.Cap, Dropped: q.Dropped})
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the compact JSON status published on the
// heartbeat topic.
func FormatStatusEvent(snap Snapshot, event string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
