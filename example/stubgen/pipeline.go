package stubgen

import (
	"time"

	"github.com/sicko7947/reelflow"
	"github.com/sicko7947/reelflow/builder"
)

// PipelineConfig configures the demo pipeline
type PipelineConfig struct {
	Latency       time.Duration
	FailureRate   float64
	ImageParallel int
	AudioSpacing  time.Duration

	// PrimaryImagesDown takes the primary image backend offline so every
	// image is served by the fallback
	PrimaryImagesDown bool

	// Tuning is applied last, over the flags above
	Tuning []builder.PipelineOption
}

// NewPipeline wires a primary and a fallback stub behind every capability
func NewPipeline(cfg PipelineConfig) (*reelflow.Pipeline, error) {
	primary := Options{Latency: cfg.Latency, FailureRate: cfg.FailureRate, Seed: "primary"}
	fallback := Options{Latency: cfg.Latency, FailureRate: cfg.FailureRate / 2, Seed: "fallback"}

	images := primary
	images.Unavailable = cfg.PrimaryImagesDown

	b := builder.NewPipeline("stub-shorts").
		WithVersion("1.0").
		WithScriptProviders(NewScriptWriter("scribe", primary), NewScriptWriter("scribe-lite", fallback)).
		WithImageProviders(NewImagePainter("canvas", images), NewImagePainter("canvas-backup", fallback)).
		WithAudioProviders(NewNarrator("voicebox", primary), NewNarrator("voicebox-backup", fallback)).
		WithAssemblers(NewAssembler("cutter", primary))

	if cfg.ImageParallel > 0 {
		b.Stage(reelflow.StageImages, reelflow.WithBoundedParallel(cfg.ImageParallel))
	}
	if cfg.AudioSpacing > 0 {
		b.Stage(reelflow.StageAudio, reelflow.WithSequentialSpacing(cfg.AudioSpacing))
	}

	return b.Apply(cfg.Tuning...).Build()
}
