// Package store provides persistence implementations for workflow checkpoints.
// The CheckpointStore interface is defined in the parent reelflow package
// (../store_interface.go) to avoid import cycles between the reelflow
// and store packages.
//
// This package contains concrete implementations:
//   - MemoryStore: In-memory backend for testing
//   - FileStore: One JSON document per workflow, replaced atomically on disk
//   - SQLiteStore: Embedded database backend with versioned migrations
//   - DynamoDBStore: AWS DynamoDB backend
//
// Every backend persists the same checksummed JSON encoding (codec.go), so a
// damaged record is reported as reelflow.ErrCorrupt instead of being defaulted.
package store

import (
	"sort"

	"github.com/sicko7947/reelflow"
)

// Compile-time interface checks
var (
	_ reelflow.CheckpointStore = (*MemoryStore)(nil)
	_ reelflow.CheckpointStore = (*FileStore)(nil)
	_ reelflow.CheckpointStore = (*SQLiteStore)(nil)
	_ reelflow.CheckpointStore = (*DynamoDBStore)(nil)
)

// sortAndLimit orders summaries newest first and applies the filter limit
func sortAndLimit(summaries []reelflow.WorkflowSummary, limit int) []reelflow.WorkflowSummary {
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].UpdatedAt.Equal(summaries[j].UpdatedAt) {
			return summaries[i].WorkflowID < summaries[j].WorkflowID
		}
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries
}
