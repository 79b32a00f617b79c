package reelflow

import (
	"fmt"
	"time"
)

// Providers holds the ordered fallback chain of backends for each capability
type Providers struct {
	Script   []ScriptGenerator
	Images   []ImageGenerator
	Audio    []AudioGenerator
	Assembly []VideoAssembler
}

// Pipeline is the blueprint a workflow runs: the fixed stage order, the
// configuration of each stage and the providers serving it
type Pipeline struct {
	name    string
	version string

	// Stage order, fixed at build time
	stages []StageName

	// Per-stage execution config
	configs map[StageName]StageConfig

	providers Providers

	createdAt time.Time
}

// NewPipeline creates a pipeline over DefaultStageOrder with DefaultStageConfig everywhere
func NewPipeline(name string, providers Providers) *Pipeline {
	p := &Pipeline{
		name:      name,
		version:   "1.0",
		stages:    append([]StageName(nil), DefaultStageOrder...),
		configs:   make(map[StageName]StageConfig, len(DefaultStageOrder)),
		providers: providers,
		createdAt: time.Now(),
	}
	for _, stage := range p.stages {
		p.configs[stage] = NewStageConfig()
	}
	return p
}

// Name returns the pipeline name
func (p *Pipeline) Name() string {
	return p.name
}

// Version returns the pipeline version
func (p *Pipeline) Version() string {
	return p.version
}

// Stages returns the stage order
func (p *Pipeline) Stages() []StageName {
	return append([]StageName(nil), p.stages...)
}

// Providers returns the provider chains
func (p *Pipeline) Providers() Providers {
	return p.providers
}

// StageConfig returns the config for a stage
func (p *Pipeline) StageConfig(stage StageName) StageConfig {
	if cfg, ok := p.configs[stage]; ok {
		return cfg
	}
	return NewStageConfig()
}

// StageIndex returns the position of stage in the order, or -1
func (p *Pipeline) StageIndex(stage StageName) int {
	for i, s := range p.stages {
		if s == stage {
			return i
		}
	}
	return -1
}

// NextStage returns the stage after stage, or false when stage is last
func (p *Pipeline) NextStage(stage StageName) (StageName, bool) {
	i := p.StageIndex(stage)
	if i < 0 || i+1 >= len(p.stages) {
		return "", false
	}
	return p.stages[i+1], true
}

// SetVersion sets the pipeline version
func (p *Pipeline) SetVersion(version string) {
	p.version = version
}

// SetStageConfig replaces the config of a stage
func (p *Pipeline) SetStageConfig(stage StageName, cfg StageConfig) {
	p.configs[stage] = cfg
}

// SetProviders replaces the providers
func (p *Pipeline) SetProviders(providers Providers) {
	p.providers = providers
}

// Validate checks that every stage is configured and has at least one provider
func (p *Pipeline) Validate() error {
	if len(p.stages) == 0 {
		return fmt.Errorf("pipeline %s has no stages", p.name)
	}
	seen := make(map[StageName]bool, len(p.stages))
	for _, stage := range p.stages {
		if seen[stage] {
			return fmt.Errorf("stage %s appears twice", stage)
		}
		seen[stage] = true

		if err := p.StageConfig(stage).Validate(); err != nil {
			return fmt.Errorf("stage %s: %w", stage, err)
		}
		if p.providerCount(stage) == 0 {
			return fmt.Errorf("stage %s has no providers", stage)
		}
	}
	return nil
}

func (p *Pipeline) providerCount(stage StageName) int {
	switch stage {
	case StageScript:
		return len(p.providers.Script)
	case StageImages:
		return len(p.providers.Images)
	case StageAudio:
		return len(p.providers.Audio)
	case StageAssembly:
		return len(p.providers.Assembly)
	}
	return 0
}
