package logic

import "time"

// PresenceEvent is emitted when the debounced state of a single presence
// sensor changes.
type PresenceEvent struct {
	Present   bool
	Timestamp time.Time
}

// channelState tracks debounce state for a single binary sensor.
type channelState struct {
	// Current stable (debounced) state
	Stable bool
	// Pending state during debounce
	Pending bool
	// Whether Pending holds a state under observation
	HasPending bool
	// Time when pending state was first observed
	PendingSince time.Time
	// Whether we have established a baseline
	Baselined bool
}

// PresenceDetector debounces a single presence sensor. It is used when only
// one binary sensor is fitted and direction cannot be inferred.
type PresenceDetector struct {
	debounce time.Duration
	ch       channelState
}

// NewPresenceDetector creates a presence detector with the given debounce duration.
func NewPresenceDetector(debounce time.Duration) *PresenceDetector {
	return &PresenceDetector{debounce: debounce}
}

// Process takes a new sample and returns an event if the stable state changed.
// No event is returned until a baseline has been established.
func (p *PresenceDetector) Process(active bool, now time.Time) (PresenceEvent, bool) {
	ch := &p.ch

	// First time seeing this channel
	if !ch.Baselined {
		if !ch.HasPending || ch.Pending != active {
			// Start observing, or state changed during baseline: restart
			ch.Pending = active
			ch.HasPending = true
			ch.PendingSince = now
			return PresenceEvent{}, false
		}

		if now.Sub(ch.PendingSince) >= p.debounce {
			ch.Stable = active
			ch.Baselined = true
			ch.HasPending = false
		}
		return PresenceEvent{}, false
	}

	if active == ch.Stable {
		// No change from stable state, clear any pending
		ch.HasPending = false
		return PresenceEvent{}, false
	}

	if !ch.HasPending || ch.Pending != active {
		ch.Pending = active
		ch.HasPending = true
		ch.PendingSince = now
		return PresenceEvent{}, false
	}

	if now.Sub(ch.PendingSince) >= p.debounce {
		ch.Stable = active
		ch.HasPending = false
		return PresenceEvent{Present: active, Timestamp: now}, true
	}

	return PresenceEvent{}, false
}

// IsBaselined returns whether the detector has established a baseline.
func (p *PresenceDetector) IsBaselined() bool {
	return p.ch.Baselined
}

// Present returns the current stable state.
func (p *PresenceDetector) Present() bool {
	return p.ch.Stable
}
