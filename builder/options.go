package builder

import (
	"time"

	"github.com/sicko7947/reelflow"
)

// PipelineOption is a functional option for configuring pipelines
type PipelineOption func(*reelflow.Pipeline)

// WithVersion sets the pipeline version
func WithVersion(version string) PipelineOption {
	return func(p *reelflow.Pipeline) {
		p.SetVersion(version)
	}
}

// WithStageOptions layers stage options onto one stage's configuration
func WithStageOptions(stage reelflow.StageName, opts ...reelflow.StageOption) PipelineOption {
	return func(p *reelflow.Pipeline) {
		cfg := p.StageConfig(stage)
		for _, opt := range opts {
			opt(&cfg)
		}
		p.SetStageConfig(stage, cfg)
	}
}

// WithRetryEverywhere sets the same retry policy on every stage
func WithRetryEverywhere(maxAttempts int, schedule ...time.Duration) PipelineOption {
	return func(p *reelflow.Pipeline) {
		for _, stage := range p.Stages() {
			WithStageOptions(stage, reelflow.WithRetryPolicy(maxAttempts, schedule...))(p)
		}
	}
}

// ApplyOptions applies a list of options to a pipeline
func ApplyOptions(p *reelflow.Pipeline, opts ...PipelineOption) {
	for _, opt := range opts {
		opt(p)
	}
}
