package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sicko7947/reelflow"
)

func makeUnits(n int) []Unit {
	units := make([]Unit, n)
	for i := range units {
		units[i] = Unit{Key: reelflow.UnitKey(reelflow.StageImages, i+1), Index: i + 1}
	}
	return units
}

func TestController_BoundedParallelRespectsLimit(t *testing.T) {
	c := NewController(reelflow.ConcurrencyConfig{
		Discipline:  reelflow.DisciplineBoundedParallel,
		MaxParallel: 3,
	}, instantSleep)

	var inFlight, peak, done atomic.Int32
	err := c.Run(context.Background(), makeUnits(10), func(ctx context.Context, unit Unit) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		done.Add(1)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(10), done.Load())
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestController_SequentialSpacing(t *testing.T) {
	var (
		mu     sync.Mutex
		events []string
	)
	sleep := func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		events = append(events, "sleep:"+d.String())
		mu.Unlock()
		return nil
	}
	c := NewController(reelflow.ConcurrencyConfig{
		Discipline: reelflow.DisciplineSequentialSpaced,
		Spacing:    1500 * time.Millisecond,
	}, sleep)

	err := c.Run(context.Background(), makeUnits(3), func(ctx context.Context, unit Unit) error {
		mu.Lock()
		events = append(events, unit.Key)
		mu.Unlock()
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{
		"IMAGES#1", "sleep:1.5s", "IMAGES#2", "sleep:1.5s", "IMAGES#3",
	}, events)
}

func TestController_SequentialStopsOnError(t *testing.T) {
	c := NewController(reelflow.ConcurrencyConfig{Discipline: reelflow.DisciplineSequentialSpaced}, instantSleep)
	stop := errors.New("stop")

	var ran []int
	err := c.Run(context.Background(), makeUnits(4), func(ctx context.Context, unit Unit) error {
		ran = append(ran, unit.Index)
		if unit.Index == 2 {
			return stop
		}
		return nil
	})

	assert.ErrorIs(t, err, stop)
	assert.Equal(t, []int{1, 2}, ran)
}

func TestController_BoundedStopsLaunchingOnError(t *testing.T) {
	c := NewController(reelflow.ConcurrencyConfig{
		Discipline:  reelflow.DisciplineBoundedParallel,
		MaxParallel: 1,
	}, instantSleep)
	stop := errors.New("stop")

	var launched atomic.Int32
	err := c.Run(context.Background(), makeUnits(5), func(ctx context.Context, unit Unit) error {
		launched.Add(1)
		if unit.Index == 2 {
			return stop
		}
		return nil
	})

	assert.ErrorIs(t, err, stop)
	assert.Equal(t, int32(2), launched.Load())
}

func TestController_InFlightUnitsKeepParentContext(t *testing.T) {
	c := NewController(reelflow.ConcurrencyConfig{
		Discipline:  reelflow.DisciplineBoundedParallel,
		MaxParallel: 2,
	}, instantSleep)
	stop := errors.New("stop")

	started := make(chan struct{})
	var slowCtxErr error
	err := c.Run(context.Background(), makeUnits(2), func(ctx context.Context, unit Unit) error {
		if unit.Index == 1 {
			close(started)
			time.Sleep(20 * time.Millisecond)
			slowCtxErr = ctx.Err()
			return nil
		}
		<-started
		return stop
	})

	assert.ErrorIs(t, err, stop)
	assert.NoError(t, slowCtxErr, "abort must not cancel units already in flight")
}

func TestController_CancelledContext(t *testing.T) {
	for _, d := range []reelflow.Discipline{reelflow.DisciplineBoundedParallel, reelflow.DisciplineSequentialSpaced} {
		t.Run(string(d), func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			c := NewController(reelflow.ConcurrencyConfig{Discipline: d, MaxParallel: 2}, instantSleep)
			var ran atomic.Int32
			err := c.Run(ctx, makeUnits(3), func(ctx context.Context, unit Unit) error {
				ran.Add(1)
				return nil
			})

			assert.ErrorIs(t, err, context.Canceled)
			assert.Equal(t, int32(0), ran.Load())
		})
	}
}

func TestController_RateLimit(t *testing.T) {
	c := NewController(reelflow.ConcurrencyConfig{
		Discipline:  reelflow.DisciplineBoundedParallel,
		MaxParallel: 4,
		RateLimit:   50,
		RateBurst:   1,
	}, instantSleep)

	start := time.Now()
	err := c.Run(context.Background(), makeUnits(4), func(ctx context.Context, unit Unit) error {
		return nil
	})

	require.NoError(t, err)
	// Three waits of 20ms after the initial burst token
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestController_RateLimitPastDeadline(t *testing.T) {
	for _, d := range []reelflow.Discipline{reelflow.DisciplineBoundedParallel, reelflow.DisciplineSequentialSpaced} {
		t.Run(string(d), func(t *testing.T) {
			c := NewController(reelflow.ConcurrencyConfig{
				Discipline:  d,
				MaxParallel: 4,
				RateLimit:   1,
				RateBurst:   1,
			}, instantSleep)
			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()

			var ran atomic.Int32
			err := c.Run(ctx, makeUnits(3), func(ctx context.Context, unit Unit) error {
				ran.Add(1)
				return nil
			})

			require.Error(t, err, "units left unlaunched must surface an error")
			assert.Equal(t, int32(1), ran.Load())
		})
	}
}

func TestController_BoundedAllFinishedBeforeCancel(t *testing.T) {
	c := NewController(reelflow.ConcurrencyConfig{
		Discipline:  reelflow.DisciplineBoundedParallel,
		MaxParallel: 1,
	}, instantSleep)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ran atomic.Int32
	err := c.Run(ctx, makeUnits(3), func(ctx context.Context, unit Unit) error {
		if ran.Add(1) == 3 {
			cancel()
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, int32(3), ran.Load())
}

func TestController_UnknownDiscipline(t *testing.T) {
	c := NewController(reelflow.ConcurrencyConfig{Discipline: "FANOUT"}, nil)
	err := c.Run(context.Background(), makeUnits(1), func(ctx context.Context, unit Unit) error {
		return nil
	})
	assert.Error(t, err)
}

func TestController_NoUnits(t *testing.T) {
	c := NewController(reelflow.ConcurrencyConfig{Discipline: "FANOUT"}, nil)
	assert.NoError(t, c.Run(context.Background(), nil, nil))
}
