package builder

import (
	"testing"
	"testing/fstest"
	"time"

	"github.com/sicko7947/reelflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tuningYAML = `
stages:
  IMAGES:
    maxParallel: 8
    failurePolicy: BEST_EFFORT
    unitTimeout: 45s
  AUDIO:
    spacing: 2s
    maxAttempts: 5
    delays: [1s, 3s]
    rateLimit: 0.5
    rateBurst: 2
`

func TestLoadTuning(t *testing.T) {
	fsys := fstest.MapFS{"tuning.yaml": &fstest.MapFile{Data: []byte(tuningYAML)}}

	opts, err := LoadTuning(fsys, "tuning.yaml")
	require.NoError(t, err)

	p, err := complete("shorts").Apply(opts...).Build()
	require.NoError(t, err)

	images := p.StageConfig(reelflow.StageImages)
	assert.Equal(t, 8, images.Concurrency.MaxParallel)
	assert.Equal(t, reelflow.DisciplineBoundedParallel, images.Concurrency.Discipline)
	assert.Equal(t, reelflow.FailureBestEffort, images.FailurePolicy)
	assert.Equal(t, 45*time.Second, images.UnitTimeout)
	assert.Equal(t, reelflow.DefaultStageConfig.Retry, images.Retry)

	audio := p.StageConfig(reelflow.StageAudio)
	assert.Equal(t, reelflow.DisciplineSequentialSpaced, audio.Concurrency.Discipline)
	assert.Equal(t, 2*time.Second, audio.Concurrency.Spacing)
	assert.Equal(t, 0.5, audio.Concurrency.RateLimit)
	assert.Equal(t, 2, audio.Concurrency.RateBurst)
	assert.Equal(t, reelflow.RetryPolicy{MaxAttempts: 5, DelaySchedule: []time.Duration{time.Second, 3 * time.Second}}, audio.Retry)

	assert.Equal(t, reelflow.DefaultStageConfig, p.StageConfig(reelflow.StageScript))
}

func TestParseTuning_Errors(t *testing.T) {
	_, err := ParseTuning([]byte("stages:\n  UPLOAD:\n    maxParallel: 2\n"))
	assert.ErrorContains(t, err, "unknown stage UPLOAD")

	_, err = ParseTuning([]byte("stages: [oops"))
	assert.ErrorContains(t, err, "parsing YAML")

	_, err = LoadTuning(fstest.MapFS{}, "missing.yaml")
	assert.Error(t, err)
}

func TestParseTuning_InvalidValuesFailBuild(t *testing.T) {
	opts, err := ParseTuning([]byte("stages:\n  IMAGES:\n    maxParallel: 0\n"))
	require.NoError(t, err)

	_, err = complete("shorts").Apply(opts...).Build()
	assert.Error(t, err)
}
