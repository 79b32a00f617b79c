package store

import (
	"fmt"
	"time"
)

// DynamoDB schema constants for single-table design
const (
	// Table attributes
	AttrPK         = "PK"
	AttrSK         = "SK"
	AttrGSI1PK     = "GSI1PK"
	AttrGSI1SK     = "GSI1SK"
	AttrEntityType = "entity_type"
	AttrData       = "data"
	AttrChecksum   = "checksum"

	// Entity types
	EntityTypeCheckpoint = "Checkpoint"

	// Index names
	IndexStatusIndex = "GSI1"
)

// sortKeyTimeFormat is fixed width so GSI1SK orders lexicographically by time
const sortKeyTimeFormat = "2006-01-02T15:04:05.000000000Z"

// Key builders for single-table design

// Checkpoint keys: PK=WORKFLOW#{workflowID}, SK=CHECKPOINT
func checkpointPK(workflowID string) string {
	return fmt.Sprintf("WORKFLOW#%s", workflowID)
}

func checkpointSK() string {
	return "CHECKPOINT"
}

// Status index keys: GSI1PK=STATUS#{status}, GSI1SK={updatedAt}#{workflowID}
func checkpointGSI1PK(status string) string {
	return fmt.Sprintf("STATUS#%s", status)
}

func checkpointGSI1SK(updatedAt time.Time, workflowID string) string {
	return fmt.Sprintf("%s#%s", updatedAt.UTC().Format(sortKeyTimeFormat), workflowID)
}
