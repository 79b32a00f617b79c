package reelflow

import (
	"context"
	"fmt"
	"strings"
)

// JobSpec is the caller's description of a media job
type JobSpec struct {
	Title      string            `json:"title"`
	Topic      string            `json:"topic"`
	// SceneCount is the number of scenes asked of the script generator; the
	// generated script decides how many units later stages run.
	SceneCount int               `json:"sceneCount"`
	VoiceID    string            `json:"voiceId,omitempty"`
	Style      string            `json:"style,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
}

// Validate checks the fields every stage depends on
func (j JobSpec) Validate() error {
	if strings.TrimSpace(j.Topic) == "" {
		return fmt.Errorf("%w: topic is required", ErrInvalidJob)
	}
	if j.SceneCount < 1 {
		return fmt.Errorf("%w: scene count must be at least 1, got %d", ErrInvalidJob, j.SceneCount)
	}
	return nil
}

func (j JobSpec) clone() JobSpec {
	if j.Tags == nil {
		return j
	}
	tags := make(map[string]string, len(j.Tags))
	for k, v := range j.Tags {
		tags[k] = v
	}
	j.Tags = tags
	return j
}

// ArtifactRef points at a generated artifact held by an external storage collaborator
type ArtifactRef struct {
	URI         string `json:"uri"`
	ContentType string `json:"contentType,omitempty"`
	Provider    string `json:"provider,omitempty"`
}

// Scene is one unit of narrative; images and audio are generated per scene
type Scene struct {
	Number          int     `json:"number"`
	Narration       string  `json:"narration"`
	ImagePrompt     string  `json:"imagePrompt"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
}

// ScriptArtifact is the output of the SCRIPT stage
type ScriptArtifact struct {
	Title  string       `json:"title"`
	Scenes []Scene      `json:"scenes"`
	Ref    *ArtifactRef `json:"ref,omitempty"`
}

// Scene returns the scene with the given 1-based number
func (s *ScriptArtifact) Scene(number int) (Scene, bool) {
	for _, sc := range s.Scenes {
		if sc.Number == number {
			return sc, true
		}
	}
	return Scene{}, false
}

// UnitRequest is what per-scene generators receive
type UnitRequest struct {
	WorkflowID string    `json:"workflowId"`
	Stage      StageName `json:"stage"`
	Scene      Scene     `json:"scene"`
	VoiceID    string    `json:"voiceId,omitempty"`
	Style      string    `json:"style,omitempty"`
}

// AssemblyRequest carries every upstream artifact into the assembler
type AssemblyRequest struct {
	WorkflowID string              `json:"workflowId"`
	Script     ScriptArtifact      `json:"script"`
	Images     map[int]ArtifactRef `json:"images"`
	Audio      map[int]ArtifactRef `json:"audio"`
}

// ScriptGenerator turns a job into a scene-by-scene script
type ScriptGenerator interface {
	Name() string
	Generate(ctx context.Context, spec JobSpec) (ScriptArtifact, error)
}

// ImageGenerator renders the image for one scene
type ImageGenerator interface {
	Name() string
	Generate(ctx context.Context, req UnitRequest) (ArtifactRef, error)
}

// AudioGenerator renders the narration for one scene
type AudioGenerator interface {
	Name() string
	Generate(ctx context.Context, req UnitRequest) (ArtifactRef, error)
}

// VideoAssembler composites all artifacts into the final video
type VideoAssembler interface {
	Name() string
	Assemble(ctx context.Context, req AssemblyRequest) (ArtifactRef, error)
}
