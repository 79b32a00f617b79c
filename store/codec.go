package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sicko7947/reelflow"
)

// codecVersion is bumped when the envelope layout changes
const codecVersion = 1

// envelope is the on-disk form of a checkpoint: the state document plus a
// checksum of its exact bytes
type envelope struct {
	Version  int             `json:"version"`
	Checksum string          `json:"checksum"`
	State    json.RawMessage `json:"state"`
}

// marshalState returns the JSON document for state and its checksum
func marshalState(state *reelflow.WorkflowState) ([]byte, string, error) {
	if state == nil {
		return nil, "", errors.New("state is nil")
	}
	if state.WorkflowID == "" {
		return nil, "", errors.New("state has no workflow id")
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal workflow state: %w", err)
	}
	return payload, checksum(payload), nil
}

// unmarshalState verifies payload against sum and decodes it. Any mismatch or
// parse failure is reported as corrupt.
func unmarshalState(op, workflowID string, payload []byte, sum string) (*reelflow.WorkflowState, error) {
	if got := checksum(payload); got != sum {
		return nil, reelflow.Corrupt(op, workflowID, fmt.Errorf("checksum mismatch: stored %q, computed %q", sum, got))
	}

	var state reelflow.WorkflowState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, reelflow.Corrupt(op, workflowID, err)
	}
	if state.WorkflowID != workflowID {
		return nil, reelflow.Corrupt(op, workflowID, fmt.Errorf("record holds workflow %q", state.WorkflowID))
	}
	if !state.Status.Valid() {
		return nil, reelflow.Corrupt(op, workflowID, fmt.Errorf("unknown status %q", state.Status))
	}
	return &state, nil
}

// encodeEnvelope serializes state into a self-verifying document
func encodeEnvelope(state *reelflow.WorkflowState) ([]byte, error) {
	payload, sum, err := marshalState(state)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(envelope{Version: codecVersion, Checksum: sum, State: payload})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkpoint envelope: %w", err)
	}
	return data, nil
}

// decodeEnvelope is the inverse of encodeEnvelope
func decodeEnvelope(op, workflowID string, data []byte) (*reelflow.WorkflowState, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, reelflow.Corrupt(op, workflowID, err)
	}
	if env.Version != codecVersion {
		return nil, reelflow.Corrupt(op, workflowID, fmt.Errorf("unsupported envelope version %d", env.Version))
	}
	return unmarshalState(op, workflowID, env.State, env.Checksum)
}

func checksum(payload []byte) string {
	h := sha256.Sum256(payload)
	return hex.EncodeToString(h[:])
}
