package engine

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sicko7947/reelflow"
)

// Unit identifies one piece of work within a stage
type Unit struct {
	Key   string
	Index int
}

// UnitFunc runs a single unit. A non-nil error stops the controller from
// launching further units; units already in flight are left to finish.
type UnitFunc func(ctx context.Context, unit Unit) error

// Controller governs how many units of a stage run at once and how they are spaced
type Controller struct {
	cfg     reelflow.ConcurrencyConfig
	limiter *rate.Limiter
	sleep   reelflow.Sleeper
}

// NewController builds a controller for cfg. A nil sleeper uses timers.
func NewController(cfg reelflow.ConcurrencyConfig, sleep reelflow.Sleeper) *Controller {
	if sleep == nil {
		sleep = reelflow.SleepContext
	}
	c := &Controller{cfg: cfg, sleep: sleep}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c
}

// Run executes fn over units under the configured discipline. It returns the
// first error a unit reported, or the context or rate limiter error when
// some unit was never launched.
func (c *Controller) Run(ctx context.Context, units []Unit, fn UnitFunc) error {
	if len(units) == 0 {
		return nil
	}

	switch c.cfg.Discipline {
	case reelflow.DisciplineSequentialSpaced:
		return c.runSequential(ctx, units, fn)
	case reelflow.DisciplineBoundedParallel, "":
		return c.runBounded(ctx, units, fn)
	default:
		return fmt.Errorf("unknown discipline %q", c.cfg.Discipline)
	}
}

func (c *Controller) runBounded(ctx context.Context, units []Unit, fn UnitFunc) error {
	limit := c.cfg.MaxParallel
	if limit < 1 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var (
		started  atomic.Int64
		admitErr error
	)
	for _, unit := range units {
		if gctx.Err() != nil {
			break
		}
		if err := c.admit(gctx); err != nil {
			admitErr = err
			break
		}

		// Go blocks while the group is full, so re-check the abort signal
		// once a slot frees up. In-flight units keep the parent context.
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			started.Add(1)
			return fn(ctx, unit)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if int(started.Load()) == len(units) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return admitErr
}

func (c *Controller) runSequential(ctx context.Context, units []Unit, fn UnitFunc) error {
	for i, unit := range units {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 && c.cfg.Spacing > 0 {
			if err := c.sleep(ctx, c.cfg.Spacing); err != nil {
				return err
			}
		}
		if err := c.admit(ctx); err != nil {
			return err
		}
		if err := fn(ctx, unit); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) admit(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}
