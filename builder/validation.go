package builder

import (
	"errors"
	"fmt"

	"github.com/sicko7947/reelflow"
)

// ValidatePipeline performs comprehensive validation on a pipeline
func ValidatePipeline(p *reelflow.Pipeline) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid pipeline: %w", err)
	}

	if err := ValidateStageOrder(p.Stages()); err != nil {
		return err
	}

	providers := p.Providers()
	var errs []error
	errs = append(errs, validateNames(reelflow.StageScript, names(providers.Script))...)
	errs = append(errs, validateNames(reelflow.StageImages, names(providers.Images))...)
	errs = append(errs, validateNames(reelflow.StageAudio, names(providers.Audio))...)
	errs = append(errs, validateNames(reelflow.StageAssembly, names(providers.Assembly))...)
	if len(errs) > 0 {
		return fmt.Errorf("invalid providers: %w", errors.Join(errs...))
	}

	return nil
}

// ValidateStageOrder checks that stages follow the standard order. Later
// stages consume earlier artifacts, so no stage may be skipped or moved.
func ValidateStageOrder(stages []reelflow.StageName) error {
	if len(stages) != len(reelflow.DefaultStageOrder) {
		return fmt.Errorf("pipeline must run %v, got %v", reelflow.DefaultStageOrder, stages)
	}
	for i, stage := range stages {
		if stage != reelflow.DefaultStageOrder[i] {
			return fmt.Errorf("stage %d is %s, want %s", i, stage, reelflow.DefaultStageOrder[i])
		}
	}
	return nil
}

type named interface {
	Name() string
}

func names[T named](items []T) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Name())
	}
	return out
}

// validateNames rejects empty and duplicate backend names; attempts are
// recorded per name so they must be distinguishable
func validateNames(stage reelflow.StageName, providerNames []string) []error {
	var errs []error
	seen := make(map[string]bool, len(providerNames))
	for _, name := range providerNames {
		if name == "" {
			errs = append(errs, fmt.Errorf("stage %s has a provider with no name", stage))
			continue
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("stage %s lists provider %s twice", stage, name))
		}
		seen[name] = true
	}
	return errs
}
