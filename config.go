package reelflow

import (
	"fmt"
	"time"
)

// RetryPolicy bounds how often a fallible unit operation is attempted.
// The last DelaySchedule entry repeats once the schedule runs out.
type RetryPolicy struct {
	MaxAttempts   int             `json:"maxAttempts"`
	DelaySchedule []time.Duration `json:"delaySchedule"`
}

// Delay returns the wait before the retry following attempt (1-based).
// Attempt 1 failing waits DelaySchedule[0], attempt 2 waits DelaySchedule[1], and so on.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if len(p.DelaySchedule) == 0 || attempt < 1 {
		return 0
	}
	idx := attempt - 1
	if idx > len(p.DelaySchedule)-1 {
		idx = len(p.DelaySchedule) - 1
	}
	return p.DelaySchedule[idx]
}

// Validate checks the policy is usable
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	for i, d := range p.DelaySchedule {
		if d < 0 {
			return fmt.Errorf("delay schedule entry %d is negative", i)
		}
	}
	return nil
}

// Discipline selects how a stage's units are scheduled
type Discipline string

const (
	// DisciplineBoundedParallel runs up to MaxParallel units at once
	DisciplineBoundedParallel Discipline = "BOUNDED_PARALLEL"
	// DisciplineSequentialSpaced runs one unit at a time with Spacing between them
	DisciplineSequentialSpaced Discipline = "SEQUENTIAL_SPACED"
)

// ConcurrencyConfig configures a stage's concurrency controller
type ConcurrencyConfig struct {
	Discipline  Discipline
	MaxParallel int
	Spacing     time.Duration

	// Optional token bucket applied before each launch. Zero disables it.
	RateLimit float64
	RateBurst int
}

// Validate checks the discipline parameters
func (c ConcurrencyConfig) Validate() error {
	switch c.Discipline {
	case DisciplineBoundedParallel:
		if c.MaxParallel < 1 {
			return fmt.Errorf("bounded-parallel requires max parallel >= 1, got %d", c.MaxParallel)
		}
	case DisciplineSequentialSpaced:
		if c.Spacing < 0 {
			return fmt.Errorf("spacing must not be negative")
		}
	default:
		return fmt.Errorf("unknown discipline %q", c.Discipline)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	return nil
}

// FailurePolicy decides how unit failures roll up into a stage outcome
type FailurePolicy string

const (
	// FailureRequireAll fails the stage when any unit fails
	FailureRequireAll FailurePolicy = "REQUIRE_ALL"
	// FailureBestEffort tolerates failed units when at least one succeeded
	FailureBestEffort FailurePolicy = "BEST_EFFORT"
)

// StageConfig holds the per-stage execution parameters
type StageConfig struct {
	Retry         RetryPolicy
	Concurrency   ConcurrencyConfig
	FailurePolicy FailurePolicy

	// Stop launching new units once one fails with a fatal request error
	AbortOnFatal bool

	// Per-attempt timeout around each provider call. Zero means no timeout.
	UnitTimeout time.Duration
}

// Validate checks every part of the stage config
func (c StageConfig) Validate() error {
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("invalid retry policy: %w", err)
	}
	if err := c.Concurrency.Validate(); err != nil {
		return fmt.Errorf("invalid concurrency: %w", err)
	}
	switch c.FailurePolicy {
	case FailureRequireAll, FailureBestEffort:
	default:
		return fmt.Errorf("unknown failure policy %q", c.FailurePolicy)
	}
	if c.UnitTimeout < 0 {
		return fmt.Errorf("unit timeout must not be negative")
	}
	return nil
}

// DefaultStageConfig provides sensible defaults
var DefaultStageConfig = StageConfig{
	Retry: RetryPolicy{
		MaxAttempts:   3,
		DelaySchedule: []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second},
	},
	Concurrency: ConcurrencyConfig{
		Discipline:  DisciplineBoundedParallel,
		MaxParallel: 1,
	},
	FailurePolicy: FailureRequireAll,
	AbortOnFatal:  true,
	UnitTimeout:   2 * time.Minute,
}

// NewStageConfig applies options on top of DefaultStageConfig
func NewStageConfig(opts ...StageOption) StageConfig {
	cfg := DefaultStageConfig
	cfg.Retry.DelaySchedule = append([]time.Duration(nil), DefaultStageConfig.Retry.DelaySchedule...)
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// StageOption allows functional configuration of a stage
type StageOption func(*StageConfig)

// WithRetryPolicy sets max attempts and the delay schedule
func WithRetryPolicy(maxAttempts int, schedule ...time.Duration) StageOption {
	return func(c *StageConfig) {
		c.Retry = RetryPolicy{MaxAttempts: maxAttempts, DelaySchedule: schedule}
	}
}

// WithBoundedParallel runs up to n units concurrently
func WithBoundedParallel(n int) StageOption {
	return func(c *StageConfig) {
		c.Concurrency.Discipline = DisciplineBoundedParallel
		c.Concurrency.MaxParallel = n
	}
}

// WithSequentialSpacing runs units one at a time, waiting spacing after each
func WithSequentialSpacing(spacing time.Duration) StageOption {
	return func(c *StageConfig) {
		c.Concurrency.Discipline = DisciplineSequentialSpaced
		c.Concurrency.MaxParallel = 1
		c.Concurrency.Spacing = spacing
	}
}

// WithRateLimit caps unit launches to perSecond with the given burst
func WithRateLimit(perSecond float64, burst int) StageOption {
	return func(c *StageConfig) {
		c.Concurrency.RateLimit = perSecond
		c.Concurrency.RateBurst = burst
	}
}

// WithFailurePolicy sets how unit failures roll up
func WithFailurePolicy(policy FailurePolicy) StageOption {
	return func(c *StageConfig) {
		c.FailurePolicy = policy
	}
}

// WithAbortOnFatal toggles abort-on-first-fatal
func WithAbortOnFatal(abort bool) StageOption {
	return func(c *StageConfig) {
		c.AbortOnFatal = abort
	}
}

// WithUnitTimeout sets the per-attempt provider timeout
func WithUnitTimeout(d time.Duration) StageOption {
	return func(c *StageConfig) {
		c.UnitTimeout = d
	}
}
