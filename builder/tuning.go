package builder

import (
	"fmt"
	"io/fs"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sicko7947/reelflow"
)

// TuningFile is the YAML layout for per-stage overrides. Unset fields keep
// the pipeline's current value.
//
//	stages:
//	  IMAGES:
//	    maxParallel: 8
//	    failurePolicy: BEST_EFFORT
//	  AUDIO:
//	    spacing: 2s
//	    maxAttempts: 5
//	    delays: [1s, 3s, 10s]
type TuningFile struct {
	Stages map[reelflow.StageName]StageTuning `yaml:"stages"`
}

// StageTuning mirrors reelflow.StageConfig with optional fields
type StageTuning struct {
	MaxAttempts   *int                    `yaml:"maxAttempts,omitempty"`
	Delays        []time.Duration         `yaml:"delays,omitempty"`
	Discipline    *reelflow.Discipline    `yaml:"discipline,omitempty"`
	MaxParallel   *int                    `yaml:"maxParallel,omitempty"`
	Spacing       *time.Duration          `yaml:"spacing,omitempty"`
	RateLimit     *float64                `yaml:"rateLimit,omitempty"`
	RateBurst     *int                    `yaml:"rateBurst,omitempty"`
	FailurePolicy *reelflow.FailurePolicy `yaml:"failurePolicy,omitempty"`
	AbortOnFatal  *bool                   `yaml:"abortOnFatal,omitempty"`
	UnitTimeout   *time.Duration          `yaml:"unitTimeout,omitempty"`
}

// LoadTuning reads a tuning file from fsys and returns it as pipeline options
func LoadTuning(fsys fs.FS, path string) ([]PipelineOption, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("reading tuning file: %w", err)
	}
	return ParseTuning(data)
}

// ParseTuning decodes YAML tuning data into pipeline options
func ParseTuning(data []byte) ([]PipelineOption, error) {
	var file TuningFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	for stage := range file.Stages {
		if !isKnownStage(stage) {
			return nil, fmt.Errorf("unknown stage %s in tuning file", stage)
		}
	}

	opts := make([]PipelineOption, 0, len(file.Stages))
	for _, stage := range reelflow.DefaultStageOrder {
		if t, ok := file.Stages[stage]; ok {
			opts = append(opts, WithStageOptions(stage, t.options()...))
		}
	}
	return opts, nil
}

func (t StageTuning) options() []reelflow.StageOption {
	var opts []reelflow.StageOption
	if t.MaxAttempts != nil || t.Delays != nil {
		opts = append(opts, func(c *reelflow.StageConfig) {
			if t.MaxAttempts != nil {
				c.Retry.MaxAttempts = *t.MaxAttempts
			}
			if t.Delays != nil {
				c.Retry.DelaySchedule = append([]time.Duration(nil), t.Delays...)
			}
		})
	}
	opts = append(opts, func(c *reelflow.StageConfig) {
		if t.Discipline != nil {
			c.Concurrency.Discipline = *t.Discipline
		}
		if t.MaxParallel != nil {
			c.Concurrency.MaxParallel = *t.MaxParallel
		}
		if t.Spacing != nil {
			c.Concurrency.Spacing = *t.Spacing
		}
		if t.RateLimit != nil {
			c.Concurrency.RateLimit = *t.RateLimit
		}
		if t.RateBurst != nil {
			c.Concurrency.RateBurst = *t.RateBurst
		}
	})
	if t.FailurePolicy != nil {
		opts = append(opts, reelflow.WithFailurePolicy(*t.FailurePolicy))
	}
	if t.AbortOnFatal != nil {
		opts = append(opts, reelflow.WithAbortOnFatal(*t.AbortOnFatal))
	}
	if t.UnitTimeout != nil {
		opts = append(opts, reelflow.WithUnitTimeout(*t.UnitTimeout))
	}
	return opts
}

func isKnownStage(stage reelflow.StageName) bool {
	for _, s := range reelflow.DefaultStageOrder {
		if s == stage {
			return true
		}
	}
	return false
}
