package logic

import "time"

// CrossingConfig holds the detector tunables.
type CrossingConfig struct {
	// Debounce is the minimum time between two honored edges of the same sensor.
	Debounce time.Duration
	// Timeout bounds the wait in an armed phase for the opposite sensor.
	Timeout time.Duration
}

// edgeState tracks edge detection for a single binary sensor.
type edgeState struct {
	prev     bool
	lastEdge time.Time
	honored  bool // whether lastEdge is valid
}

// CrossingDetector fuses an outer and an inner proximity sensor into
// directional crossing events. Outer then inner is an entry; inner then
// outer is an exit. It is owned by a single task and is not safe for
// concurrent use.
type CrossingDetector struct {
	cfg     CrossingConfig
	phase   Phase
	armedAt time.Time
	outer   edgeState
	inner   edgeState
	counts  CrossingCounts
}

// NewCrossingDetector creates a detector in the idle phase. Both sensors are
// assumed inactive before the first sample, so a sensor that is already
// interrupted on the first poll produces an edge.
func NewCrossingDetector(cfg CrossingConfig) *CrossingDetector {
	return &CrossingDetector{cfg: cfg}
}

// Process takes a new sample of both sensors and returns a crossing event if
// this sample completed a valid sequence.
func (d *CrossingDetector) Process(input Input) (CrossingEvent, bool) {
	outerEdge := d.edge(&d.outer, input.Outer, input.Time)
	innerEdge := d.edge(&d.inner, input.Inner, input.Time)

	var (
		event   CrossingEvent
		emitted bool
	)

	// Outer is evaluated before inner, so edges on both sensors in the same
	// poll from idle read as outer-then-inner.
	if outerEdge {
		switch d.phase {
		case PhaseIdle:
			d.arm(PhaseOuterArmed, input.Time)
		case PhaseInnerArmed:
			event, emitted = d.complete(Exit, input.Time)
		}
	}

	if innerEdge {
		switch d.phase {
		case PhaseIdle:
			d.arm(PhaseInnerArmed, input.Time)
		case PhaseOuterArmed:
			event, emitted = d.complete(Entry, input.Time)
		}
	}

	if d.phase != PhaseIdle && input.Time.Sub(d.armedAt) > d.cfg.Timeout {
		d.phase = PhaseIdle
		d.counts.Abandoned++
	}

	return event, emitted
}

// edge reports whether the sensor went from inactive to active on this sample
// and the edge falls outside the sensor's debounce window.
func (d *CrossingDetector) edge(s *edgeState, active bool, now time.Time) bool {
	rising := active && !s.prev
	s.prev = active
	if !rising {
		return false
	}
	if s.honored && now.Sub(s.lastEdge) < d.cfg.Debounce {
		return false
	}
	s.lastEdge = now
	s.honored = true
	return true
}

func (d *CrossingDetector) arm(phase Phase, now time.Time) {
	d.phase = phase
	d.armedAt = now
}

// complete returns to idle and emits an event if the opposite edge arrived
// within the sequence timeout.
func (d *CrossingDetector) complete(dir Direction, now time.Time) (CrossingEvent, bool) {
	elapsed := now.Sub(d.armedAt)
	d.phase = PhaseIdle
	if elapsed > d.cfg.Timeout {
		d.counts.Late++
		return CrossingEvent{}, false
	}
	if dir == Entry {
		d.counts.Entries++
	} else {
		d.counts.Exits++
	}
	return CrossingEvent{Direction: dir, Timestamp: now}, true
}

// Phase returns the current sequence phase.
func (d *CrossingDetector) Phase() Phase {
	return d.phase
}

// Counts returns detector outcome counts since startup.
func (d *CrossingDetector) Counts() CrossingCounts {
	return d.counts
}
