package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sicko7947/reelflow"
)

var fixedTime = time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)

func stateFixture(id string, status reelflow.WorkflowStatus, updated time.Time) *reelflow.WorkflowState {
	return &reelflow.WorkflowState{
		WorkflowID:      id,
		Status:          status,
		CurrentStage:    reelflow.StageImages,
		CompletedStages: []reelflow.StageName{reelflow.StageScript},
		TotalUnits:      3,
		UnitResults: map[string]*reelflow.UnitResult{
			"IMAGES#1": {
				Stage:          reelflow.StageImages,
				Index:          1,
				Status:         reelflow.UnitStatusSucceeded,
				ArtifactRef:    &reelflow.ArtifactRef{URI: "s3://bucket/img-1.png", ContentType: "image/png", Provider: "primary"},
				Attempts:       2,
				Provider:       "primary",
				ProvidersTried: []string{"primary"},
				UpdatedAt:      updated,
			},
			"IMAGES#2": {
				Stage:          reelflow.StageImages,
				Index:          2,
				Status:         reelflow.UnitStatusFailed,
				Attempts:       6,
				LastError:      "provider chain exhausted",
				ProvidersTried: []string{"primary", "backup"},
				UpdatedAt:      updated,
			},
		},
		Job: reelflow.JobSpec{
			Title:      "Deep sea",
			Topic:      "bioluminescence",
			SceneCount: 3,
			VoiceID:    "narrator-1",
			Tags:       map[string]string{"channel": "science"},
		},
		Script: &reelflow.ScriptArtifact{
			Title: "Deep sea",
			Scenes: []reelflow.Scene{
				{Number: 1, Narration: "Down we go", ImagePrompt: "dark water"},
				{Number: 2, Narration: "Lights appear", ImagePrompt: "glowing fish"},
				{Number: 3, Narration: "The floor", ImagePrompt: "sea floor", DurationSeconds: 4.5},
			},
		},
		CreatedAt: fixedTime,
		UpdatedAt: updated,
	}
}

type storeFactory func(t *testing.T) reelflow.CheckpointStore

func storeFactories() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) reelflow.CheckpointStore {
			return NewMemoryStore()
		},
		"file": func(t *testing.T) reelflow.CheckpointStore {
			s, err := NewFileStore(t.TempDir())
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T) reelflow.CheckpointStore {
			s, err := NewSQLiteStore(context.Background(), SQLiteConfig{
				DBPath: filepath.Join(t.TempDir(), "checkpoints.db"),
			})
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"dynamodb": func(t *testing.T) reelflow.CheckpointStore {
			return NewDynamoDBStore(newFakeDynamoDB(), "checkpoints")
		},
	}
}

func TestCheckpointStore_RoundTrip(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			state := stateFixture("wf-1", reelflow.WorkflowStatusRunning, fixedTime.Add(time.Minute))
			require.NoError(t, s.Save(ctx, state))

			loaded, err := s.Load(ctx, "wf-1")
			require.NoError(t, err)
			assert.Equal(t, state, loaded)
		})
	}
}

func TestCheckpointStore_SaveReplaces(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			state := stateFixture("wf-1", reelflow.WorkflowStatusRunning, fixedTime)
			require.NoError(t, s.Save(ctx, state))

			state.Status = reelflow.WorkflowStatusFailed
			state.Error = reelflow.NewWorkflowError(reelflow.ErrCodeStageFailed, "stage IMAGES: 2 of 3 units succeeded", reelflow.StageImages, fixedTime)
			state.UpdatedAt = fixedTime.Add(time.Second)
			require.NoError(t, s.Save(ctx, state))

			loaded, err := s.Load(ctx, "wf-1")
			require.NoError(t, err)
			assert.Equal(t, reelflow.WorkflowStatusFailed, loaded.Status)
			require.NotNil(t, loaded.Error)
			assert.Equal(t, reelflow.ErrCodeStageFailed, loaded.Error.Code)

			all, err := s.List(ctx, reelflow.ListFilter{})
			require.NoError(t, err)
			assert.Len(t, all, 1)
		})
	}
}

func TestCheckpointStore_LoadNotFound(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)

			_, err := s.Load(context.Background(), "missing")
			require.Error(t, err)
			assert.ErrorIs(t, err, reelflow.ErrNotFound)

			var storeErr *reelflow.StoreError
			require.ErrorAs(t, err, &storeErr)
			assert.Equal(t, "missing", storeErr.WorkflowID)
		})
	}
}

func TestCheckpointStore_List(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			require.NoError(t, s.Save(ctx, stateFixture("wf-a", reelflow.WorkflowStatusCompleted, fixedTime.Add(1*time.Minute))))
			require.NoError(t, s.Save(ctx, stateFixture("wf-b", reelflow.WorkflowStatusFailed, fixedTime.Add(2*time.Minute))))
			require.NoError(t, s.Save(ctx, stateFixture("wf-c", reelflow.WorkflowStatusCompleted, fixedTime.Add(3*time.Minute))))

			all, err := s.List(ctx, reelflow.ListFilter{})
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "wf-c", all[0].WorkflowID, "newest first")
			assert.Equal(t, "wf-b", all[1].WorkflowID)
			assert.Equal(t, "wf-a", all[2].WorkflowID)

			completed, err := s.List(ctx, reelflow.ListFilter{Status: reelflow.ToPtr(reelflow.WorkflowStatusCompleted)})
			require.NoError(t, err)
			require.Len(t, completed, 2)
			for _, sum := range completed {
				assert.Equal(t, reelflow.WorkflowStatusCompleted, sum.Status)
			}

			limited, err := s.List(ctx, reelflow.ListFilter{Limit: 1})
			require.NoError(t, err)
			require.Len(t, limited, 1)
			assert.Equal(t, "wf-c", limited[0].WorkflowID)

			sum := all[0]
			assert.Equal(t, "Deep sea", sum.Title)
			assert.Equal(t, reelflow.StageImages, sum.CurrentStage)
			assert.Equal(t, 3, sum.TotalUnits)
			assert.Equal(t, 1, sum.SucceededUnits)
			assert.Equal(t, 1, sum.FailedUnits)
		})
	}
}

func TestCheckpointStore_ConcurrentWorkflows(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					id := fmt.Sprintf("wf-%d", i)
					for n := 0; n < 5; n++ {
						state := stateFixture(id, reelflow.WorkflowStatusRunning, fixedTime.Add(time.Duration(n)*time.Second))
						state.TotalUnits = n
						assert.NoError(t, s.Save(ctx, state))
					}
				}(i)
			}
			wg.Wait()

			for i := 0; i < 8; i++ {
				loaded, err := s.Load(ctx, fmt.Sprintf("wf-%d", i))
				require.NoError(t, err)
				assert.Equal(t, 4, loaded.TotalUnits)
			}
		})
	}
}

func TestCheckpointStore_SaveRejectsMissingID(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			err := s.Save(context.Background(), &reelflow.WorkflowState{Status: reelflow.WorkflowStatusPending})
			assert.Error(t, err)
		})
	}
}
