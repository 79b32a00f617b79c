package store

import (
	"context"
	"sync"

	"github.com/sicko7947/reelflow"
)

// MemoryStore implements reelflow.CheckpointStore using in-memory storage (for testing).
// Records are kept in their encoded form so every Load is a real decode.
type MemoryStore struct {
	records map[string][]byte
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory checkpoint store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string][]byte),
	}
}

func (s *MemoryStore) Save(ctx context.Context, state *reelflow.WorkflowState) error {
	data, err := encodeEnvelope(state)
	if err != nil {
		return &reelflow.StoreError{Op: "save", WorkflowID: workflowIDOf(state), Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[state.WorkflowID] = data
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, workflowID string) (*reelflow.WorkflowState, error) {
	s.mu.RLock()
	data, exists := s.records[workflowID]
	s.mu.RUnlock()

	if !exists {
		return nil, reelflow.NotFound("load", workflowID)
	}
	return decodeEnvelope("load", workflowID, data)
}

func (s *MemoryStore) List(ctx context.Context, filter reelflow.ListFilter) ([]reelflow.WorkflowSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]reelflow.WorkflowSummary, 0, len(s.records))
	for id, data := range s.records {
		state, err := decodeEnvelope("list", id, data)
		if err != nil {
			return nil, err
		}
		if !filter.Matches(state.Status) {
			continue
		}
		summaries = append(summaries, state.Summary())
	}

	return sortAndLimit(summaries, filter.Limit), nil
}

// Len returns the number of stored workflows
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func workflowIDOf(state *reelflow.WorkflowState) string {
	if state == nil {
		return ""
	}
	return state.WorkflowID
}
