package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sicko7947/reelflow"
	"github.com/sicko7947/reelflow/store"
)

var testTime = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func instantSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

// fakeScript writes one scene per requested scene
type fakeScript struct {
	name string
	err  error

	// numbers overrides the generated scene numbers, one per scene
	numbers []int

	mu    sync.Mutex
	calls int
}

func (f *fakeScript) Name() string { return f.name }

func (f *fakeScript) Generate(ctx context.Context, spec reelflow.JobSpec) (reelflow.ScriptArtifact, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return reelflow.ScriptArtifact{}, f.err
	}
	script := reelflow.ScriptArtifact{Title: spec.Title}
	count := spec.SceneCount
	if f.numbers != nil {
		count = len(f.numbers)
	}
	for i := 1; i <= count; i++ {
		number := i
		if f.numbers != nil {
			number = f.numbers[i-1]
		}
		script.Scenes = append(script.Scenes, reelflow.Scene{
			Number:      number,
			Narration:   fmt.Sprintf("narration %d", i),
			ImagePrompt: fmt.Sprintf("prompt %d", i),
		})
	}
	return script, nil
}

func (f *fakeScript) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeScene serves images or audio. fail decides the error for the n-th call of a scene.
type fakeScene struct {
	name string

	mu    sync.Mutex
	fail  func(scene, call int) error
	block func(ctx context.Context, scene int) error
	calls map[int]int
}

func newFakeScene(name string) *fakeScene {
	return &fakeScene{name: name, calls: make(map[int]int)}
}

func (f *fakeScene) Name() string { return f.name }

func (f *fakeScene) Generate(ctx context.Context, req reelflow.UnitRequest) (reelflow.ArtifactRef, error) {
	f.mu.Lock()
	f.calls[req.Scene.Number]++
	call := f.calls[req.Scene.Number]
	fail := f.fail
	block := f.block
	f.mu.Unlock()

	if block != nil {
		if err := block(ctx, req.Scene.Number); err != nil {
			return reelflow.ArtifactRef{}, err
		}
	}
	if fail != nil {
		if err := fail(req.Scene.Number, call); err != nil {
			return reelflow.ArtifactRef{}, err
		}
	}
	return reelflow.ArtifactRef{
		URI: fmt.Sprintf("%s://%s/%s/%d", f.name, req.WorkflowID, req.Stage, req.Scene.Number),
	}, nil
}

func (f *fakeScene) SetFail(fn func(scene, call int) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fn
}

func (f *fakeScene) Calls(scene int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[scene]
}

func (f *fakeScene) Total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

type fakeAssembler struct {
	mu    sync.Mutex
	calls int
	last  reelflow.AssemblyRequest
}

func (f *fakeAssembler) Name() string { return "cutter" }

func (f *fakeAssembler) Assemble(ctx context.Context, req reelflow.AssemblyRequest) (reelflow.ArtifactRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = req
	return reelflow.ArtifactRef{URI: "video://" + req.WorkflowID, ContentType: "video/mp4"}, nil
}

func (f *fakeAssembler) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// alwaysFail returns the same error for every call of the given scene
func alwaysFail(scene int, err error) func(int, int) error {
	return func(s, _ int) error {
		if s == scene {
			return err
		}
		return nil
	}
}

type harness struct {
	script    *fakeScript
	images    *fakeScene
	audio     *fakeScene
	assembler *fakeAssembler
	store     reelflow.CheckpointStore
	pipeline  *reelflow.Pipeline
}

func newHarness() *harness {
	h := &harness{
		script:    &fakeScript{name: "scribe"},
		images:    newFakeScene("canvas"),
		audio:     newFakeScene("voicebox"),
		assembler: &fakeAssembler{},
		store:     store.NewMemoryStore(),
	}
	h.pipeline = reelflow.NewPipeline("test", h.providers())
	return h
}

func (h *harness) providers() reelflow.Providers {
	return reelflow.Providers{
		Script:   []reelflow.ScriptGenerator{h.script},
		Images:   []reelflow.ImageGenerator{h.images},
		Audio:    []reelflow.AudioGenerator{h.audio},
		Assembly: []reelflow.VideoAssembler{h.assembler},
	}
}

func (h *harness) engine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	base := []EngineOption{
		WithLogger(zerolog.Nop()),
		WithSleeper(instantSleep),
		WithClock(func() time.Time { return testTime }),
	}
	eng, err := NewEngine(h.store, h.pipeline, append(base, opts...)...)
	require.NoError(t, err)
	return eng
}

func (h *harness) load(t *testing.T, id string) *reelflow.WorkflowState {
	t.Helper()
	state, err := h.store.Load(context.Background(), id)
	require.NoError(t, err)
	return state
}

// recordingStore keeps a copy of every state saved
type recordingStore struct {
	reelflow.CheckpointStore

	mu    sync.Mutex
	saves []*reelflow.WorkflowState
}

func (s *recordingStore) Save(ctx context.Context, state *reelflow.WorkflowState) error {
	if err := s.CheckpointStore.Save(ctx, state); err != nil {
		return err
	}
	s.mu.Lock()
	s.saves = append(s.saves, state.Clone())
	s.mu.Unlock()
	return nil
}

func (s *recordingStore) Saves() []*reelflow.WorkflowState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*reelflow.WorkflowState(nil), s.saves...)
}

var errDiskFull = errors.New("disk full")

// failingStore rejects saves matching failWhen
type failingStore struct {
	reelflow.CheckpointStore
	failWhen func(state *reelflow.WorkflowState) bool
}

func (s *failingStore) Save(ctx context.Context, state *reelflow.WorkflowState) error {
	if s.failWhen(state) {
		return &reelflow.StoreError{Op: "save", WorkflowID: state.WorkflowID, Err: errDiskFull}
	}
	return s.CheckpointStore.Save(ctx, state)
}
