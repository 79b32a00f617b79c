package provider

import (
	"context"

	"github.com/sicko7947/reelflow"
)

// Scripts adapts script generators into chain backends
func Scripts(gens ...reelflow.ScriptGenerator) []Backend[reelflow.JobSpec, reelflow.ScriptArtifact] {
	backends := make([]Backend[reelflow.JobSpec, reelflow.ScriptArtifact], 0, len(gens))
	for _, g := range gens {
		backends = append(backends, Backend[reelflow.JobSpec, reelflow.ScriptArtifact]{
			Name: g.Name(),
			Call: func(ctx context.Context, spec reelflow.JobSpec) (reelflow.ScriptArtifact, error) {
				return g.Generate(ctx, spec)
			},
		})
	}
	return backends
}

// Images adapts image generators into chain backends
func Images(gens ...reelflow.ImageGenerator) []Backend[reelflow.UnitRequest, reelflow.ArtifactRef] {
	backends := make([]Backend[reelflow.UnitRequest, reelflow.ArtifactRef], 0, len(gens))
	for _, g := range gens {
		backends = append(backends, Backend[reelflow.UnitRequest, reelflow.ArtifactRef]{
			Name: g.Name(),
			Call: g.Generate,
		})
	}
	return backends
}

// Audio adapts audio generators into chain backends
func Audio(gens ...reelflow.AudioGenerator) []Backend[reelflow.UnitRequest, reelflow.ArtifactRef] {
	backends := make([]Backend[reelflow.UnitRequest, reelflow.ArtifactRef], 0, len(gens))
	for _, g := range gens {
		backends = append(backends, Backend[reelflow.UnitRequest, reelflow.ArtifactRef]{
			Name: g.Name(),
			Call: g.Generate,
		})
	}
	return backends
}

// Assemblers adapts video assemblers into chain backends
func Assemblers(gens ...reelflow.VideoAssembler) []Backend[reelflow.AssemblyRequest, reelflow.ArtifactRef] {
	backends := make([]Backend[reelflow.AssemblyRequest, reelflow.ArtifactRef], 0, len(gens))
	for _, g := range gens {
		backends = append(backends, Backend[reelflow.AssemblyRequest, reelflow.ArtifactRef]{
			Name: g.Name(),
			Call: g.Assemble,
		})
	}
	return backends
}
