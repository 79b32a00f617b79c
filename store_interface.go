package reelflow

import "context"

// CheckpointStore defines durable persistence for workflow checkpoints.
// Implementations must make Save an atomic replace per workflow id, serialize
// writes to the same id and allow concurrent access to different ids.
type CheckpointStore interface {
	// Save atomically replaces the record for state.WorkflowID
	Save(ctx context.Context, state *WorkflowState) error

	// Load returns ErrNotFound or ErrCorrupt (wrapped in *StoreError) on failure
	Load(ctx context.Context, workflowID string) (*WorkflowState, error)

	// List returns summaries, newest first
	List(ctx context.Context, filter ListFilter) ([]WorkflowSummary, error)
}

// ListFilter defines filtering criteria for List
type ListFilter struct {
	Status *WorkflowStatus
	Limit  int
}

// Matches reports whether a summary passes the status filter
func (f ListFilter) Matches(status WorkflowStatus) bool {
	return f.Status == nil || *f.Status == status
}
