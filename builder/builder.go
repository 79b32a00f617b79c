package builder

import (
	"errors"
	"fmt"
	"time"

	"github.com/sicko7947/reelflow"
)

// Recommended per-stage disciplines applied by NewPipeline. Image backends
// tolerate concurrency; speech backends throttle on request rate.
var (
	DefaultImageParallelism = 4
	DefaultAudioSpacing     = 1500 * time.Millisecond
)

// PipelineBuilder provides a fluent API for building pipelines
type PipelineBuilder struct {
	pipeline  *reelflow.Pipeline
	providers reelflow.Providers
	errs      []error
}

// NewPipeline creates a new pipeline builder over the standard stage order
func NewPipeline(name string) *PipelineBuilder {
	b := &PipelineBuilder{
		pipeline: reelflow.NewPipeline(name, reelflow.Providers{}),
	}
	b.Stage(reelflow.StageImages, reelflow.WithBoundedParallel(DefaultImageParallelism))
	b.Stage(reelflow.StageAudio, reelflow.WithSequentialSpacing(DefaultAudioSpacing))
	return b
}

// WithVersion sets the pipeline version
func (b *PipelineBuilder) WithVersion(version string) *PipelineBuilder {
	b.pipeline.SetVersion(version)
	return b
}

// WithScriptProviders appends script generators to the SCRIPT fallback chain
func (b *PipelineBuilder) WithScriptProviders(gens ...reelflow.ScriptGenerator) *PipelineBuilder {
	b.providers.Script = append(b.providers.Script, gens...)
	return b
}

// WithImageProviders appends image generators to the IMAGES fallback chain
func (b *PipelineBuilder) WithImageProviders(gens ...reelflow.ImageGenerator) *PipelineBuilder {
	b.providers.Images = append(b.providers.Images, gens...)
	return b
}

// WithAudioProviders appends audio generators to the AUDIO fallback chain
func (b *PipelineBuilder) WithAudioProviders(gens ...reelflow.AudioGenerator) *PipelineBuilder {
	b.providers.Audio = append(b.providers.Audio, gens...)
	return b
}

// WithAssemblers appends video assemblers to the ASSEMBLY fallback chain
func (b *PipelineBuilder) WithAssemblers(asms ...reelflow.VideoAssembler) *PipelineBuilder {
	b.providers.Assembly = append(b.providers.Assembly, asms...)
	return b
}

// Stage applies options on top of the stage's current configuration
//
// Example:
//
//	builder.NewPipeline("shorts").
//	    Stage(reelflow.StageImages,
//	        reelflow.WithBoundedParallel(8),
//	        reelflow.WithFailurePolicy(reelflow.FailureBestEffort))
func (b *PipelineBuilder) Stage(stage reelflow.StageName, opts ...reelflow.StageOption) *PipelineBuilder {
	if b.pipeline.StageIndex(stage) < 0 {
		b.errs = append(b.errs, fmt.Errorf("unknown stage %s", stage))
		return b
	}
	cfg := b.pipeline.StageConfig(stage)
	for _, opt := range opts {
		opt(&cfg)
	}
	b.pipeline.SetStageConfig(stage, cfg)
	return b
}

// WithStageConfig replaces a stage's configuration wholesale
func (b *PipelineBuilder) WithStageConfig(stage reelflow.StageName, cfg reelflow.StageConfig) *PipelineBuilder {
	if b.pipeline.StageIndex(stage) < 0 {
		b.errs = append(b.errs, fmt.Errorf("unknown stage %s", stage))
		return b
	}
	b.pipeline.SetStageConfig(stage, cfg)
	return b
}

// Apply runs functional options against the pipeline being built
func (b *PipelineBuilder) Apply(opts ...PipelineOption) *PipelineBuilder {
	ApplyOptions(b.pipeline, opts...)
	return b
}

// Build finalizes and validates the pipeline
func (b *PipelineBuilder) Build() (*reelflow.Pipeline, error) {
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("invalid pipeline: %w", errors.Join(b.errs...))
	}

	b.pipeline.SetProviders(b.providers)
	if err := ValidatePipeline(b.pipeline); err != nil {
		return nil, err
	}

	return b.pipeline, nil
}

// MustBuild finalizes and validates the pipeline, panics on error
func (b *PipelineBuilder) MustBuild() *reelflow.Pipeline {
	p, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build pipeline: %v", err))
	}
	return p
}
