package tasks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/room-sensor/internal/gpio"
	"github.com/sweeney/room-sensor/internal/logic"
	"github.com/sweeney/room-sensor/internal/queue"
	"github.com/sweeney/room-sensor/internal/sensor"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock advances by step on every call.
type fakeClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.t
	c.t = c.t.Add(c.step)
	return t
}

func TestSamplerFixedReferenceDeadlines(t *testing.T) {
	q := queue.New[logic.Sample]("temperature", 10, queue.Block, discardLogger())
	s := NewSampler(logic.KindTemperature, time.Second, sensor.NewFake(21.5), q, discardLogger())

	// Every clock read costs 700ms, as if each sensor read were slow.
	s.now = (&fakeClock{t: t0, step: 700 * time.Millisecond}).Now

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var deadlines []time.Time
	s.waitUntil = func(ctx context.Context, deadline time.Time) bool {
		deadlines = append(deadlines, deadline)
		if len(deadlines) == 3 {
			cancel()
			return false
		}
		return true
	}

	require.NoError(t, s.Run(ctx))

	assert.Equal(t, []time.Time{
		t0.Add(1 * time.Second),
		t0.Add(2 * time.Second),
		t0.Add(3 * time.Second),
	}, deadlines)
	assert.Equal(t, 3, q.Len())
}

func TestSamplerSkipsFaults(t *testing.T) {
	q := queue.New[logic.Sample]("humidity", 10, queue.Block, discardLogger())
	s := NewSampler(logic.KindHumidity, time.Second, sensor.NewFake(40, math.NaN(), 42), q, discardLogger())
	s.now = func() time.Time { return t0 }

	calls := 0
	s.waitUntil = func(context.Context, time.Time) bool {
		calls++
		return calls < 3
	}

	require.NoError(t, s.Run(context.Background()))

	var got []float64
	for {
		sample, ok := q.TryReceive()
		if !ok {
			break
		}
		assert.Equal(t, logic.KindHumidity, sample.Kind)
		assert.Equal(t, t0, sample.ProducedAt)
		got = append(got, sample.Value)
	}
	assert.Equal(t, []float64{40, 42}, got, "the NaN cycle is dropped without retry")
}

func TestSamplerDropsNonFiniteReadings(t *testing.T) {
	for name, v := range map[string]float64{
		"nan":  math.NaN(),
		"+inf": math.Inf(1),
		"-inf": math.Inf(-1),
	} {
		t.Run(name, func(t *testing.T) {
			q := queue.New[logic.Sample]("temperature", 5, queue.Block, discardLogger())
			reader := sensor.ReaderFunc(func() (float64, bool) { return v, true })
			s := NewSampler(logic.KindTemperature, time.Second, reader, q, discardLogger())

			require.NoError(t, s.sample(context.Background()))
			assert.Equal(t, 0, q.Len(), "a non-finite reading is skipped even when reported as valid")
		})
	}
}

func TestSamplerBlocksOnFullQueue(t *testing.T) {
	q := queue.New[logic.Sample]("light", 1, queue.Block, discardLogger())
	reader := sensor.NewFake(10, 20, 30)
	s := NewSampler(logic.KindLight, time.Millisecond, reader, q, discardLogger())
	s.waitUntil = func(ctx context.Context, _ time.Time) bool { return ctx.Err() == nil }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// The second reading cannot be queued, so the task stays blocked.
	require.Eventually(t, func() bool { return reader.Reads() == 2 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, reader.Reads())
	assert.Equal(t, 1, q.Len())

	// Freeing the slot lets the blocked reading through.
	v, ok := q.TryReceive()
	require.True(t, ok)
	assert.Equal(t, float64(10), v.Value)
	require.Eventually(t, func() bool { return reader.Reads() == 3 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sampler did not stop after cancel")
	}
}

type recordingState struct {
	phase  logic.Phase
	counts logic.CrossingCounts
	calls  int
}

func (r *recordingState) SetDetector(p logic.Phase, c logic.CrossingCounts) {
	r.phase = p
	r.counts = c
	r.calls++
}

func newCrossingTask(samples []gpio.Sample, capacity int) (*DetectorTask, *queue.Queue[logic.CrossingEvent], *recordingState) {
	q := queue.New[logic.CrossingEvent]("crossing", capacity, queue.DropNewest, discardLogger())
	state := &recordingState{}
	cfg := logic.CrossingConfig{Debounce: 200 * time.Millisecond, Timeout: 2 * time.Second}
	return NewCrossingTask(gpio.NewFakeReader(samples), cfg, q, state, discardLogger()), q, state
}

func TestDetectorTaskEntry(t *testing.T) {
	task, q, state := newCrossingTask([]gpio.Sample{
		gpio.Doorway(false, false),
		gpio.Doorway(true, false),
		gpio.Doorway(false, true),
	}, 10)

	task.Poll(t0)
	task.Poll(t0)
	assert.Equal(t, logic.PhaseOuterArmed, state.phase)
	task.Poll(t0.Add(500 * time.Millisecond))

	ev, ok := q.TryReceive()
	require.True(t, ok)
	assert.Equal(t, logic.Entry, ev.Direction)
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, logic.PhaseIdle, state.phase)
	assert.Equal(t, 1, state.counts.Entries)
	assert.Equal(t, 3, state.calls)
}

func TestDetectorTaskDropsOnFullQueue(t *testing.T) {
	var samples []gpio.Sample
	for i := 0; i < 3; i++ {
		samples = append(samples, gpio.Doorway(false, false), gpio.Doorway(false, true), gpio.Doorway(true, false))
	}
	task, q, _ := newCrossingTask(samples, 1)

	at := t0
	for range samples {
		task.Poll(at)
		at = at.Add(300 * time.Millisecond)
	}

	assert.Equal(t, 1, q.Len())
	assert.Equal(t, uint64(2), q.Dropped())
	ev, _ := q.TryReceive()
	assert.Equal(t, logic.Exit, ev.Direction)
}

func TestDetectorTaskReadErrors(t *testing.T) {
	task, q, state := newCrossingTask([]gpio.Sample{{true}}, 10)

	// One line is not enough for the crossing detector.
	task.Poll(t0)
	assert.True(t, task.readFailing)
	assert.Equal(t, 0, state.calls)

	reader := task.reader.(*gpio.FakeReader)
	reader.Samples = []gpio.Sample{gpio.Doorway(false, false)}
	reader.Reset()
	reader.ReadError = errors.New("line busy")
	task.Poll(t0)
	assert.True(t, task.readFailing)

	reader.ReadError = nil
	task.Poll(t0)
	assert.False(t, task.readFailing)
	assert.Equal(t, 1, state.calls)
	assert.Equal(t, 0, q.Len())
}

func TestDetectorTaskRun(t *testing.T) {
	task, q, _ := newCrossingTask([]gpio.Sample{
		gpio.Doorway(false, false),
		gpio.Doorway(false, true),
		gpio.Doorway(true, false),
	}, 10)
	times := []time.Time{t0, t0.Add(100 * time.Millisecond), t0.Add(400 * time.Millisecond)}
	i := 0
	task.now = func() time.Time {
		at := times[i]
		if i < len(times)-1 {
			i++
		}
		return at
	}

	ctx, cancel := context.WithCancel(context.Background())
	tick := make(chan time.Time)
	done := make(chan error, 1)
	go func() { done <- task.Run(ctx, tick) }()

	for range times {
		tick <- time.Time{}
	}
	cancel()
	require.NoError(t, <-done)

	ev, ok := q.TryReceive()
	require.True(t, ok)
	assert.Equal(t, logic.Exit, ev.Direction)
}

func TestPresenceTask(t *testing.T) {
	q := queue.New[logic.PresenceEvent]("presence", 10, queue.DropNewest, discardLogger())
	reader := gpio.NewFakeReader([]gpio.Sample{{true}, {true}, {false}, {false}})
	task := NewPresenceTask(reader, 200*time.Millisecond, q, discardLogger())

	task.Poll(t0)
	assert.Equal(t, 0, q.Len(), "no event before the baseline settles")

	task.Poll(t0.Add(200 * time.Millisecond))
	ev, ok := q.TryReceive()
	require.True(t, ok, "baseline is reported once")
	assert.True(t, ev.Present)

	task.Poll(t0.Add(300 * time.Millisecond))
	assert.Equal(t, 0, q.Len())
	task.Poll(t0.Add(500 * time.Millisecond))
	ev, ok = q.TryReceive()
	require.True(t, ok)
	assert.False(t, ev.Present)

	task.Poll(t0.Add(600 * time.Millisecond))
	assert.Equal(t, 0, q.Len(), "baseline is not re-sent")
}

type flag struct {
	mu sync.Mutex
	on bool
}

func (f *flag) Occupied() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.on
}

func (f *flag) set(on bool) {
	f.mu.Lock()
	f.on = on
	f.mu.Unlock()
}

func TestIndicatorMirrorsOccupancy(t *testing.T) {
	out := gpio.NewFakeIndicator()
	src := &flag{}
	ind := NewIndicatorTask(out, src, discardLogger())

	ind.Refresh()
	ind.Refresh()
	src.set(true)
	ind.Refresh()
	ind.Refresh()
	src.set(false)
	ind.Refresh()

	assert.Equal(t, []bool{false, true, false}, out.Writes(), "only changes are written")
	assert.False(t, out.On())
}

func TestIndicatorRetriesAfterError(t *testing.T) {
	out := gpio.NewFakeIndicator()
	src := &flag{on: true}
	ind := NewIndicatorTask(out, src, discardLogger())

	out.SetError = errors.New("line released")
	ind.Refresh()
	assert.Empty(t, out.Writes())

	out.SetError = nil
	ind.Refresh()
	assert.Equal(t, []bool{true}, out.Writes())
}

func TestIndicatorRunTurnsOffOnCancel(t *testing.T) {
	out := gpio.NewFakeIndicator()
	src := &flag{on: true}
	ind := NewIndicatorTask(out, src, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	tick := make(chan time.Time)
	done := make(chan error, 1)
	go func() { done <- ind.Run(ctx, tick) }()

	tick <- time.Time{}
	require.Eventually(t, out.On, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.False(t, out.On())
}
