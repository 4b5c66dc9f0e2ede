// Package tasks contains the producer-side periodic tasks: climate and
// light samplers, the doorway detector and the occupancy indicator.
package tasks

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/sweeney/room-sensor/internal/config"
	"github.com/sweeney/room-sensor/internal/logic"
	"github.com/sweeney/room-sensor/internal/queue"
	"github.com/sweeney/room-sensor/internal/sensor"
)

// Sampler reads one sensor on a fixed period and enqueues each valid
// reading. Wake times are computed from the start time, so a slow read or
// a blocked send does not push later samples back.
type Sampler struct {
	kind   logic.SensorKind
	period time.Duration
	reader sensor.Reader
	queue  *queue.Queue[logic.Sample]
	logger *slog.Logger

	now       func() time.Time
	waitUntil func(ctx context.Context, deadline time.Time) bool
}

// NewSampler creates a sampler for kind.
func NewSampler(kind logic.SensorKind, period time.Duration, reader sensor.Reader, q *queue.Queue[logic.Sample], logger *slog.Logger) *Sampler {
	return &Sampler{
		kind:      kind,
		period:    period,
		reader:    reader,
		queue:     q,
		logger:    logger.With("sampler", string(kind)),
		now:       time.Now,
		waitUntil: sleepUntil,
	}
}

// Run samples until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) error {
	s.logger.Info("sampler started", "period", s.period)
	next := s.now()
	for {
		if err := s.sample(ctx); err != nil {
			return nil
		}
		next = next.Add(s.period)
		if !s.waitUntil(ctx, next) {
			return nil
		}
	}
}

// sample takes one reading. It returns an error only when ctx ends while
// the queue is full.
func (s *Sampler) sample(ctx context.Context) error {
	v, ok := s.reader.Read()
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		s.logger.Debug("sample skipped")
		return nil
	}
	sample := logic.Sample{Kind: s.kind, Value: v, ProducedAt: s.now()}
	s.logger.Log(ctx, config.LevelTrace, "sample", "value", v)
	return s.queue.Send(ctx, sample)
}

// sleepUntil blocks until deadline or ctx ends. A deadline in the past
// returns immediately.
func sleepUntil(ctx context.Context, deadline time.Time) bool {
	d := time.Until(deadline)
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
