package builder

import (
	"context"
	"testing"
	"time"

	"github.com/sicko7947/reelflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test providers
type testScript struct{ name string }

func (s testScript) Name() string { return s.name }
func (s testScript) Generate(context.Context, reelflow.JobSpec) (reelflow.ScriptArtifact, error) {
	return reelflow.ScriptArtifact{}, nil
}

type testScene struct{ name string }

func (s testScene) Name() string { return s.name }
func (s testScene) Generate(context.Context, reelflow.UnitRequest) (reelflow.ArtifactRef, error) {
	return reelflow.ArtifactRef{}, nil
}

type testAssembler struct{ name string }

func (a testAssembler) Name() string { return a.name }
func (a testAssembler) Assemble(context.Context, reelflow.AssemblyRequest) (reelflow.ArtifactRef, error) {
	return reelflow.ArtifactRef{}, nil
}

func complete(name string) *PipelineBuilder {
	return NewPipeline(name).
		WithScriptProviders(testScript{"scribe"}).
		WithImageProviders(testScene{"canvas"}).
		WithAudioProviders(testScene{"voicebox"}).
		WithAssemblers(testAssembler{"cutter"})
}

func TestNewPipeline_NoProviders(t *testing.T) {
	p, err := NewPipeline("empty").Build()

	require.Error(t, err)
	assert.Nil(t, p)
}

func TestPipelineBuilder_Defaults(t *testing.T) {
	p, err := complete("shorts").Build()
	require.NoError(t, err)

	assert.Equal(t, "shorts", p.Name())
	assert.Equal(t, reelflow.DefaultStageOrder, p.Stages())

	images := p.StageConfig(reelflow.StageImages).Concurrency
	assert.Equal(t, reelflow.DisciplineBoundedParallel, images.Discipline)
	assert.Equal(t, DefaultImageParallelism, images.MaxParallel)

	audio := p.StageConfig(reelflow.StageAudio).Concurrency
	assert.Equal(t, reelflow.DisciplineSequentialSpaced, audio.Discipline)
	assert.Equal(t, DefaultAudioSpacing, audio.Spacing)

	assert.Equal(t, reelflow.DefaultStageConfig, p.StageConfig(reelflow.StageScript))
}

func TestPipelineBuilder_WithVersion(t *testing.T) {
	p, err := complete("shorts").WithVersion("2.1.0").Build()

	require.NoError(t, err)
	assert.Equal(t, "2.1.0", p.Version())
}

func TestPipelineBuilder_Stage(t *testing.T) {
	p, err := complete("shorts").
		Stage(reelflow.StageImages,
			reelflow.WithBoundedParallel(8),
			reelflow.WithFailurePolicy(reelflow.FailureBestEffort)).
		Stage(reelflow.StageAudio, reelflow.WithUnitTimeout(30*time.Second)).
		Build()
	require.NoError(t, err)

	images := p.StageConfig(reelflow.StageImages)
	assert.Equal(t, 8, images.Concurrency.MaxParallel)
	assert.Equal(t, reelflow.FailureBestEffort, images.FailurePolicy)

	// Options layer on top of the builder defaults
	audio := p.StageConfig(reelflow.StageAudio)
	assert.Equal(t, 30*time.Second, audio.UnitTimeout)
	assert.Equal(t, DefaultAudioSpacing, audio.Concurrency.Spacing)
}

func TestPipelineBuilder_UnknownStage(t *testing.T) {
	_, err := complete("shorts").Stage("UPLOAD", reelflow.WithBoundedParallel(2)).Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown stage UPLOAD")

	_, err = complete("shorts").WithStageConfig("UPLOAD", reelflow.NewStageConfig()).Build()
	assert.Error(t, err)
}

func TestPipelineBuilder_InvalidStageConfig(t *testing.T) {
	_, err := complete("shorts").Stage(reelflow.StageImages, reelflow.WithBoundedParallel(0)).Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IMAGES")
}

func TestPipelineBuilder_MissingStageProviders(t *testing.T) {
	_, err := NewPipeline("shorts").
		WithScriptProviders(testScript{"scribe"}).
		WithImageProviders(testScene{"canvas"}).
		WithAssemblers(testAssembler{"cutter"}).
		Build()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUDIO")
}

func TestPipelineBuilder_ProviderNames(t *testing.T) {
	_, err := complete("shorts").WithImageProviders(testScene{"canvas"}).Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider canvas twice")

	_, err = complete("shorts").WithAudioProviders(testScene{""}).Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no name")

	// The same name may serve different stages
	_, err = complete("shorts").WithAudioProviders(testScene{"canvas"}).Build()
	assert.NoError(t, err)
}

func TestPipelineBuilder_FallbackOrder(t *testing.T) {
	p, err := complete("shorts").WithImageProviders(testScene{"canvas-backup"}).Build()
	require.NoError(t, err)

	images := p.Providers().Images
	require.Len(t, images, 2)
	assert.Equal(t, "canvas", images[0].Name())
	assert.Equal(t, "canvas-backup", images[1].Name())
}

func TestPipelineBuilder_Apply(t *testing.T) {
	p, err := complete("shorts").
		Apply(
			WithVersion("3"),
			WithRetryEverywhere(5, time.Second),
			WithStageOptions(reelflow.StageAssembly, reelflow.WithAbortOnFatal(false)),
		).
		Build()
	require.NoError(t, err)

	assert.Equal(t, "3", p.Version())
	for _, stage := range p.Stages() {
		retry := p.StageConfig(stage).Retry
		assert.Equal(t, 5, retry.MaxAttempts, "stage %s", stage)
		assert.Equal(t, []time.Duration{time.Second}, retry.DelaySchedule)
	}
	assert.False(t, p.StageConfig(reelflow.StageAssembly).AbortOnFatal)
}

func TestPipelineBuilder_MustBuild(t *testing.T) {
	assert.NotPanics(t, func() {
		complete("shorts").MustBuild()
	})
	assert.Panics(t, func() {
		NewPipeline("empty").MustBuild()
	})
}

func TestValidateStageOrder(t *testing.T) {
	assert.NoError(t, ValidateStageOrder(reelflow.DefaultStageOrder))

	swapped := []reelflow.StageName{reelflow.StageScript, reelflow.StageAudio, reelflow.StageImages, reelflow.StageAssembly}
	assert.Error(t, ValidateStageOrder(swapped))
	assert.Error(t, ValidateStageOrder(reelflow.DefaultStageOrder[:3]))
}
