package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/sweeney/room-sensor/internal/gpio"
)

// OccupancySource reports whether the room is occupied. *status.Tracker
// implements it.
type OccupancySource interface {
	Occupied() bool
}

// IndicatorTask mirrors the occupied flag onto an output line.
type IndicatorTask struct {
	out    gpio.Indicator
	source OccupancySource
	logger *slog.Logger

	written bool
	last    bool
	failing bool
}

// NewIndicatorTask creates an indicator task.
func NewIndicatorTask(out gpio.Indicator, source OccupancySource, logger *slog.Logger) *IndicatorTask {
	return &IndicatorTask{
		out:    out,
		source: source,
		logger: logger.With("task", "indicator"),
	}
}

// Run refreshes the output on every tick until ctx is cancelled, then
// switches it off.
func (i *IndicatorTask) Run(ctx context.Context, tick <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			if err := i.out.Set(false); err != nil {
				i.logger.Warn("indicator off failed", "error", err)
			}
			return nil
		case <-tick:
			i.Refresh()
		}
	}
}

// Refresh writes the current flag if it changed since the last
// successful write.
func (i *IndicatorTask) Refresh() {
	on := i.source.Occupied()
	if i.written && on == i.last {
		return
	}
	if err := i.out.Set(on); err != nil {
		if !i.failing {
			i.logger.Warn("indicator write failed", "error", err)
			i.failing = true
		}
		return
	}
	i.failing = false
	i.written = true
	i.last = on
	i.logger.Debug("indicator set", "on", on)
}
