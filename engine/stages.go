package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/sicko7947/reelflow"
	"github.com/sicko7947/reelflow/provider"
)

// chains holds one provider chain per capability
type chains struct {
	script   *provider.Chain[reelflow.JobSpec, reelflow.ScriptArtifact]
	images   *provider.Chain[reelflow.UnitRequest, reelflow.ArtifactRef]
	audio    *provider.Chain[reelflow.UnitRequest, reelflow.ArtifactRef]
	assembly *provider.Chain[reelflow.AssemblyRequest, reelflow.ArtifactRef]
}

func (e *Engine) buildChains() chains {
	opts := func(stage reelflow.StageName) []provider.Option {
		cfg := e.pipeline.StageConfig(stage)
		return []provider.Option{
			provider.WithLogger(e.logger.With().Str("stage", stage.String()).Logger()),
			provider.WithSleeper(e.sleep),
			provider.WithAttemptTimeout(cfg.UnitTimeout),
		}
	}
	p := e.pipeline.Providers()

	return chains{
		script: provider.NewChain(e.pipeline.StageConfig(reelflow.StageScript).Retry,
			provider.Scripts(p.Script...), opts(reelflow.StageScript)...),
		images: provider.NewChain(e.pipeline.StageConfig(reelflow.StageImages).Retry,
			provider.Images(p.Images...), opts(reelflow.StageImages)...),
		audio: provider.NewChain(e.pipeline.StageConfig(reelflow.StageAudio).Retry,
			provider.Audio(p.Audio...), opts(reelflow.StageAudio)...),
		assembly: provider.NewChain(e.pipeline.StageConfig(reelflow.StageAssembly).Retry,
			provider.Assemblers(p.Assembly...), opts(reelflow.StageAssembly)...),
	}
}

// definition returns the binding for a stage of the pipeline
func (e *Engine) definition(stage reelflow.StageName) (StageDefinition, error) {
	def := StageDefinition{Name: stage, Config: e.pipeline.StageConfig(stage)}

	switch stage {
	case reelflow.StageScript:
		def.Units = singleUnit(stage)
		def.Work = e.scriptWork
	case reelflow.StageImages:
		def.Units = sceneUnits(stage)
		def.Work = e.sceneWork(stage, e.chains.images)
	case reelflow.StageAudio:
		def.Units = sceneUnits(stage)
		def.Work = e.sceneWork(stage, e.chains.audio)
	case reelflow.StageAssembly:
		def.Units = singleUnit(stage)
		def.Work = e.assemblyWork
	default:
		return def, fmt.Errorf("no binding for stage %s", stage)
	}
	return def, nil
}

func singleUnit(stage reelflow.StageName) func(*reelflow.WorkflowState) ([]Unit, error) {
	return func(*reelflow.WorkflowState) ([]Unit, error) {
		return []Unit{{Key: reelflow.UnitKey(stage, 1), Index: 1}}, nil
	}
}

func sceneUnits(stage reelflow.StageName) func(*reelflow.WorkflowState) ([]Unit, error) {
	return func(s *reelflow.WorkflowState) ([]Unit, error) {
		if s.Script == nil || len(s.Script.Scenes) == 0 {
			return nil, fmt.Errorf("stage %s requires a script with scenes", stage)
		}
		units := make([]Unit, 0, len(s.Script.Scenes))
		for _, scene := range s.Script.Scenes {
			units = append(units, Unit{Key: reelflow.UnitKey(stage, scene.Number), Index: scene.Number})
		}
		return units, nil
	}
}

func (e *Engine) scriptWork(ctx context.Context, input *reelflow.WorkflowState, _ Unit) (UnitOutput, error) {
	script, result, err := e.chains.script.Invoke(ctx, input.Job)
	out := UnitOutput{Result: result}
	if err != nil {
		return out, err
	}
	if len(script.Scenes) == 0 {
		return out, reelflow.FatalRequest(result.ServedBy, "script has no scenes", nil)
	}

	if err := numberScenes(script.Scenes); err != nil {
		return out, reelflow.FatalRequest(result.ServedBy, err.Error(), nil)
	}
	if script.Title == "" {
		script.Title = input.Job.Title
	}

	out.Artifact = reelflow.ArtifactRef{
		URI:         fmt.Sprintf("script://%s", input.WorkflowID),
		ContentType: "application/json",
		Provider:    result.ServedBy,
	}
	if script.Ref != nil {
		out.Artifact = *script.Ref
	}
	out.Apply = func(s *reelflow.WorkflowState) {
		s.Script = &script
	}
	return out, nil
}

func (e *Engine) sceneWork(stage reelflow.StageName, chain *provider.Chain[reelflow.UnitRequest, reelflow.ArtifactRef]) UnitWork {
	return func(ctx context.Context, input *reelflow.WorkflowState, unit Unit) (UnitOutput, error) {
		scene, ok := input.Script.Scene(unit.Index)
		if !ok {
			return UnitOutput{}, reelflow.FatalRequest("", fmt.Sprintf("scene %d not in script", unit.Index), nil)
		}

		ref, result, err := chain.Invoke(ctx, reelflow.UnitRequest{
			WorkflowID: input.WorkflowID,
			Stage:      stage,
			Scene:      scene,
			VoiceID:    input.Job.VoiceID,
			Style:      input.Job.Style,
		})
		if err == nil && ref.Provider == "" {
			ref.Provider = result.ServedBy
		}
		return UnitOutput{Artifact: ref, Result: result}, err
	}
}

func (e *Engine) assemblyWork(ctx context.Context, input *reelflow.WorkflowState, _ Unit) (UnitOutput, error) {
	if input.Script == nil {
		return UnitOutput{}, reelflow.FatalRequest("", "assembly requires a script", nil)
	}

	req := reelflow.AssemblyRequest{
		WorkflowID: input.WorkflowID,
		Script:     *input.Script,
		Images:     make(map[int]reelflow.ArtifactRef, len(input.Script.Scenes)),
		Audio:      make(map[int]reelflow.ArtifactRef, len(input.Script.Scenes)),
	}

	var missing []string
	images := input.StageUnits(reelflow.StageImages)
	audio := input.StageUnits(reelflow.StageAudio)
	for _, scene := range input.Script.Scenes {
		if r := images[scene.Number]; r.Succeeded() && r.ArtifactRef != nil {
			req.Images[scene.Number] = *r.ArtifactRef
		} else {
			missing = append(missing, reelflow.UnitKey(reelflow.StageImages, scene.Number))
		}
		if r := audio[scene.Number]; r.Succeeded() && r.ArtifactRef != nil {
			req.Audio[scene.Number] = *r.ArtifactRef
		} else {
			missing = append(missing, reelflow.UnitKey(reelflow.StageAudio, scene.Number))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return UnitOutput{}, reelflow.FatalRequest("", fmt.Sprintf("missing upstream artifacts: %v", missing), nil)
	}

	ref, result, err := e.chains.assembly.Invoke(ctx, req)
	out := UnitOutput{Artifact: ref, Result: result}
	if err != nil {
		return out, err
	}
	if out.Artifact.Provider == "" {
		out.Artifact.Provider = result.ServedBy
	}
	out.Apply = func(s *reelflow.WorkflowState) {
		final := out.Artifact
		s.Output = &final
	}
	return out, nil
}

// numberScenes numbers scenes 1..n in order when the generator left every
// number unset. Otherwise the numbers must be exactly 1..n in any order, and
// scenes are sorted by number.
func numberScenes(scenes []reelflow.Scene) error {
	unset := 0
	for _, sc := range scenes {
		if sc.Number == 0 {
			unset++
		}
	}
	if unset == len(scenes) {
		for i := range scenes {
			scenes[i].Number = i + 1
		}
		return nil
	}

	seen := make(map[int]bool, len(scenes))
	for _, sc := range scenes {
		if sc.Number < 1 || sc.Number > len(scenes) {
			return fmt.Errorf("scene number %d outside 1..%d", sc.Number, len(scenes))
		}
		if seen[sc.Number] {
			return fmt.Errorf("duplicate scene number %d", sc.Number)
		}
		seen[sc.Number] = true
	}
	sort.Slice(scenes, func(i, j int) bool { return scenes[i].Number < scenes[j].Number })
	return nil
}
