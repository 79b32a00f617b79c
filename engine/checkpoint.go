package engine

import (
	"context"
	"sync"

	"github.com/sicko7947/reelflow"
)

// checkpointer owns the in-memory copy of one workflow's state. Every mutation is
// applied to a clone, saved, and only then becomes the current state, so a failed
// write never leaves an unpersisted change visible.
type checkpointer struct {
	mu    sync.Mutex
	store reelflow.CheckpointStore
	state *reelflow.WorkflowState
	clock reelflow.Clock
}

func newCheckpointer(store reelflow.CheckpointStore, state *reelflow.WorkflowState, clock reelflow.Clock) *checkpointer {
	return &checkpointer{store: store, state: state, clock: clock}
}

// Snapshot returns a copy of the last persisted state
func (c *checkpointer) Snapshot() *reelflow.WorkflowState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Update applies mutate and persists the result before acknowledging it.
// Saves outlive cancellation of ctx so completed work is still recorded on shutdown.
func (c *checkpointer) Update(ctx context.Context, mutate func(s *reelflow.WorkflowState)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.state.Clone()
	if next.UnitResults == nil {
		next.UnitResults = make(map[string]*reelflow.UnitResult)
	}
	mutate(next)
	next.UpdatedAt = c.clock()

	if err := c.store.Save(context.WithoutCancel(ctx), next); err != nil {
		return err
	}
	c.state = next
	return nil
}
