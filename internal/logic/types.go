// Package logic contains pure business logic for room occupancy and climate alerting.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// Direction is the signed result of a completed crossing.
type Direction int

const (
	Entry Direction = 1
	Exit  Direction = -1
)

func (d Direction) String() string {
	switch d {
	case Entry:
		return "ENTRY"
	case Exit:
		return "EXIT"
	}
	return "UNKNOWN"
}

// CrossingEvent is emitted once per completed outer/inner sequence.
type CrossingEvent struct {
	Direction Direction
	Timestamp time.Time
}

// SensorKind identifies the physical quantity carried by a Sample.
type SensorKind string

const (
	KindTemperature SensorKind = "temperature"
	KindHumidity    SensorKind = "humidity"
	KindLight       SensorKind = "light"
)

// Sample is a single sensor reading.
type Sample struct {
	Kind       SensorKind
	Value      float64
	ProducedAt time.Time
}

// Phase is the crossing detector's sequence state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseOuterArmed
	PhaseInnerArmed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseOuterArmed:
		return "OUTER_ARMED"
	case PhaseInnerArmed:
		return "INNER_ARMED"
	}
	return "UNKNOWN"
}

// Input represents a single sample of both proximity sensors.
type Input struct {
	Outer bool // true = beam interrupted (already inverted from raw active-low GPIO)
	Inner bool
	Time  time.Time
}

// CrossingCounts tracks detector outcomes since startup.
type CrossingCounts struct {
	Entries   int
	Exits     int
	Late      int // opposite edge arrived after the sequence timeout
	Abandoned int // armed phase expired with no opposite edge
}
