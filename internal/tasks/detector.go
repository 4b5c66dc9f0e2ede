package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sweeney/room-sensor/internal/config"
	"github.com/sweeney/room-sensor/internal/gpio"
	"github.com/sweeney/room-sensor/internal/logic"
	"github.com/sweeney/room-sensor/internal/queue"
)

// DetectorState receives the crossing detector's phase and counts after
// every poll. *status.Tracker implements it.
type DetectorState interface {
	SetDetector(phase logic.Phase, counts logic.CrossingCounts)
}

// DetectorTask polls the doorway sensors and feeds either the two-sensor
// crossing detector or the single-sensor presence detector. Events are
// enqueued without waiting: a full queue drops (or overwrites, per its
// policy) rather than delaying the next poll.
type DetectorTask struct {
	reader gpio.Reader
	logger *slog.Logger
	now    func() time.Time

	crossing  *logic.CrossingDetector
	crossings *queue.Queue[logic.CrossingEvent]
	state     DetectorState

	presence  *logic.PresenceDetector
	presences *queue.Queue[logic.PresenceEvent]

	baselineSent bool
	readFailing  bool
}

// NewCrossingTask creates a detector task for two sensors, outer first.
func NewCrossingTask(reader gpio.Reader, cfg logic.CrossingConfig, q *queue.Queue[logic.CrossingEvent], state DetectorState, logger *slog.Logger) *DetectorTask {
	return &DetectorTask{
		reader:    reader,
		logger:    logger.With("task", "detector"),
		now:       time.Now,
		crossing:  logic.NewCrossingDetector(cfg),
		crossings: q,
		state:     state,
	}
}

// NewPresenceTask creates a detector task for a single presence sensor.
func NewPresenceTask(reader gpio.Reader, debounce time.Duration, q *queue.Queue[logic.PresenceEvent], logger *slog.Logger) *DetectorTask {
	return &DetectorTask{
		reader:    reader,
		logger:    logger.With("task", "presence"),
		now:       time.Now,
		presence:  logic.NewPresenceDetector(debounce),
		presences: q,
	}
}

// Run polls on every tick until ctx is cancelled.
func (d *DetectorTask) Run(ctx context.Context, tick <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			d.Poll(d.now())
		}
	}
}

// Poll reads the sensors once and runs the detector at time t.
func (d *DetectorTask) Poll(t time.Time) {
	lines, err := d.read()
	if err != nil {
		if !d.readFailing {
			d.logger.Warn("gpio read failed", "error", err)
			d.readFailing = true
		}
		return
	}
	if d.readFailing {
		d.logger.Info("gpio read recovered")
		d.readFailing = false
	}

	if d.crossing != nil {
		d.pollCrossing(lines, t)
		return
	}
	d.pollPresence(lines, t)
}

func (d *DetectorTask) read() ([]bool, error) {
	lines, err := d.reader.Read()
	if err != nil {
		return nil, err
	}
	want := 1
	if d.crossing != nil {
		want = 2
	}
	if len(lines) < want {
		return nil, fmt.Errorf("read %d lines, want %d", len(lines), want)
	}
	return lines, nil
}

func (d *DetectorTask) pollCrossing(lines []bool, t time.Time) {
	before := d.crossing.Counts()
	ev, ok := d.crossing.Process(logic.Input{Outer: lines[0], Inner: lines[1], Time: t})
	after := d.crossing.Counts()

	if after.Abandoned > before.Abandoned {
		d.logger.Debug("detector: sequence timeout")
	}
	if after.Late > before.Late {
		d.logger.Debug("detector: late edge ignored")
	}
	if ok {
		d.logger.Info("crossing detected", "direction", ev.Direction.String())
		if !d.crossings.TrySend(ev) {
			d.logger.Warn("crossing event dropped", "direction", ev.Direction.String())
		}
	}
	d.logger.Log(context.Background(), config.LevelTrace, "detector poll",
		"outer", lines[0], "inner", lines[1], "phase", d.crossing.Phase().String())

	if d.state != nil {
		d.state.SetDetector(d.crossing.Phase(), after)
	}
}

func (d *DetectorTask) pollPresence(lines []bool, t time.Time) {
	ev, ok := d.presence.Process(lines[0], t)
	if !ok && !d.baselineSent && d.presence.IsBaselined() {
		// The baseline itself is reported once so consumers start in sync.
		ev, ok = logic.PresenceEvent{Present: d.presence.Present(), Timestamp: t}, true
	}
	if !ok {
		return
	}
	d.baselineSent = true
	d.logger.Info("presence changed", "present", ev.Present)
	if !d.presences.TrySend(ev) {
		d.logger.Warn("presence event dropped", "present", ev.Present)
	}
}
