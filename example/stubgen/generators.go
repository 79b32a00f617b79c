// Package stubgen provides deterministic stand-ins for the four media
// capabilities. They simulate latency and inject retryable failures at a
// configured rate so the demo binary exercises retries, fallback and resume.
package stubgen

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/sicko7947/reelflow"
)

// Options shape every stub generator
type Options struct {
	// Latency is slept on every call
	Latency time.Duration

	// FailureRate in [0,1] is the share of calls failing retryably
	FailureRate float64

	// Unavailable makes every call fail with ProviderUnavailable
	Unavailable bool

	// Seed varies which calls fail
	Seed string

	// Sleep replaces the latency sleep (tests)
	Sleep reelflow.Sleeper
}

type base struct {
	name string
	opts Options

	mu    sync.Mutex
	calls map[string]int
}

func (b *base) init(name string, opts Options) {
	if opts.Sleep == nil {
		opts.Sleep = reelflow.SleepContext
	}
	b.name = name
	b.opts = opts
	b.calls = make(map[string]int)
}

// Name returns the provider name
func (b *base) Name() string { return b.name }

// Calls returns how many times key was requested
func (b *base) Calls(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[key]
}

// call simulates one provider round trip for key
func (b *base) call(ctx context.Context, key string) error {
	b.mu.Lock()
	b.calls[key]++
	n := b.calls[key]
	b.mu.Unlock()

	if b.opts.Latency > 0 {
		if err := b.opts.Sleep(ctx, b.opts.Latency); err != nil {
			return err
		}
	}
	if b.opts.Unavailable {
		return reelflow.Unavailable(b.name, "backend is offline", nil)
	}
	if b.shouldFail(key, n) {
		return reelflow.Retryable(b.name, fmt.Sprintf("simulated 503 on call %d", n), nil)
	}
	return nil
}

func (b *base) shouldFail(key string, n int) bool {
	if b.opts.FailureRate <= 0 {
		return false
	}
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%d", b.opts.Seed, b.name, key, n)
	return float64(h.Sum64())/math.MaxUint64 < b.opts.FailureRate
}

// ScriptWriter splits a topic into a fixed number of scenes
type ScriptWriter struct{ base }

// NewScriptWriter creates a script stub
func NewScriptWriter(name string, opts Options) *ScriptWriter {
	g := &ScriptWriter{}
	g.init(name, opts)
	return g
}

func (w *ScriptWriter) Generate(ctx context.Context, job reelflow.JobSpec) (reelflow.ScriptArtifact, error) {
	if job.SceneCount < 1 {
		return reelflow.ScriptArtifact{}, reelflow.FatalRequest(w.name, "scene count must be positive", nil)
	}
	if err := w.call(ctx, job.Topic); err != nil {
		return reelflow.ScriptArtifact{}, err
	}

	script := reelflow.ScriptArtifact{Title: job.Title}
	if script.Title == "" && job.Topic != "" {
		script.Title = strings.ToUpper(job.Topic[:1]) + job.Topic[1:]
	}
	for i := 1; i <= job.SceneCount; i++ {
		script.Scenes = append(script.Scenes, reelflow.Scene{
			Number:          i,
			Narration:       fmt.Sprintf("Part %d of %d about %s.", i, job.SceneCount, job.Topic),
			ImagePrompt:     fmt.Sprintf("%s, scene %d, %s style", job.Topic, i, styleOr(job.Style)),
			DurationSeconds: 5,
		})
	}
	return script, nil
}

// ImagePainter returns a fake image reference per scene
type ImagePainter struct{ base }

// NewImagePainter creates an image stub
func NewImagePainter(name string, opts Options) *ImagePainter {
	g := &ImagePainter{}
	g.init(name, opts)
	return g
}

func (p *ImagePainter) Generate(ctx context.Context, req reelflow.UnitRequest) (reelflow.ArtifactRef, error) {
	if strings.TrimSpace(req.Scene.ImagePrompt) == "" {
		return reelflow.ArtifactRef{}, reelflow.FatalRequest(p.name, "empty image prompt", nil)
	}
	if err := p.call(ctx, unitKey(req)); err != nil {
		return reelflow.ArtifactRef{}, err
	}
	return reelflow.ArtifactRef{
		URI:         fmt.Sprintf("stub://%s/%s/image-%02d.png", p.name, req.WorkflowID, req.Scene.Number),
		ContentType: "image/png",
		Provider:    p.name,
	}, nil
}

// Narrator returns a fake voice-over reference per scene
type Narrator struct{ base }

// NewNarrator creates an audio stub
func NewNarrator(name string, opts Options) *Narrator {
	g := &Narrator{}
	g.init(name, opts)
	return g
}

func (n *Narrator) Generate(ctx context.Context, req reelflow.UnitRequest) (reelflow.ArtifactRef, error) {
	if strings.TrimSpace(req.Scene.Narration) == "" {
		return reelflow.ArtifactRef{}, reelflow.FatalRequest(n.name, "empty narration", nil)
	}
	if err := n.call(ctx, unitKey(req)); err != nil {
		return reelflow.ArtifactRef{}, err
	}
	return reelflow.ArtifactRef{
		URI:         fmt.Sprintf("stub://%s/%s/voice-%02d.mp3", n.name, req.WorkflowID, req.Scene.Number),
		ContentType: "audio/mpeg",
		Provider:    n.name,
	}, nil
}

// Assembler returns a fake final video reference
type Assembler struct{ base }

// NewAssembler creates an assembly stub
func NewAssembler(name string, opts Options) *Assembler {
	g := &Assembler{}
	g.init(name, opts)
	return g
}

func (a *Assembler) Assemble(ctx context.Context, req reelflow.AssemblyRequest) (reelflow.ArtifactRef, error) {
	if len(req.Images) != len(req.Script.Scenes) || len(req.Audio) != len(req.Script.Scenes) {
		return reelflow.ArtifactRef{}, reelflow.FatalRequest(a.name,
			fmt.Sprintf("need %d images and clips, got %d and %d", len(req.Script.Scenes), len(req.Images), len(req.Audio)), nil)
	}
	if err := a.call(ctx, req.WorkflowID); err != nil {
		return reelflow.ArtifactRef{}, err
	}
	return reelflow.ArtifactRef{
		URI:         fmt.Sprintf("stub://%s/%s/final.mp4", a.name, req.WorkflowID),
		ContentType: "video/mp4",
		Provider:    a.name,
	}, nil
}

func unitKey(req reelflow.UnitRequest) string {
	return fmt.Sprintf("%s/%s", req.WorkflowID, reelflow.UnitKey(req.Stage, req.Scene.Number))
}

func styleOr(style string) string {
	if style == "" {
		return "cinematic"
	}
	return style
}

// Compile-time capability checks
var (
	_ reelflow.ScriptGenerator = (*ScriptWriter)(nil)
	_ reelflow.ImageGenerator  = (*ImagePainter)(nil)
	_ reelflow.AudioGenerator  = (*Narrator)(nil)
	_ reelflow.VideoAssembler  = (*Assembler)(nil)
)
