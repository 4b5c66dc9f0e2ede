package mqtt

import "github.com/sweeney/room-sensor/internal/logic"

// Payloads with fixed text.
const (
	StatusOnline      = "Online"
	StatusReconnected = "Reconnected"
	StatusOffline     = "Offline"
	Detected          = "DETECTED"
	Clear             = "CLEAR"
)

// Topics is the full topic table under one prefix.
type Topics struct {
	Status        string
	Temperature   string
	Humidity      string
	Light         string
	Alerts        string
	Cooling       string
	Entry         string
	Exit          string
	OccupantCount string
	Occupancy     string
	Presence      string
	Heartbeat     string
}

// NewTopics returns the topic table rooted at prefix. An empty prefix
// yields bare topic names.
func NewTopics(prefix string) Topics {
	t := func(name string) string {
		if prefix == "" {
			return name
		}
		return prefix + "/" + name
	}
	return Topics{
		Status:        t("status"),
		Temperature:   t("temperature"),
		Humidity:      t("humidity"),
		Light:         t("light"),
		Alerts:        t("alerts"),
		Cooling:       t("cooling-suggestion"),
		Entry:         t("entry"),
		Exit:          t("exit"),
		OccupantCount: t("occupant-count"),
		Occupancy:     t("occupancy"),
		Presence:      t("presence"),
		Heartbeat:     t("heartbeat"),
	}
}

// Reading returns the topic for a sensor kind.
func (t Topics) Reading(kind logic.SensorKind) string {
	switch kind {
	case logic.KindTemperature:
		return t.Temperature
	case logic.KindHumidity:
		return t.Humidity
	case logic.KindLight:
		return t.Light
	}
	return ""
}

// Crossing returns the directional marker topic for d.
func (t Topics) Crossing(d logic.Direction) string {
	if d == logic.Exit {
		return t.Exit
	}
	return t.Entry
}
