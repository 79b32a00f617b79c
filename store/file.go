package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/moby/sys/atomicwriter"

	"github.com/sicko7947/reelflow"
)

const (
	fileStoreSubdir = "workflow"
	fileStoreExt    = ".json"
)

// FileStore keeps one checkpoint document per workflow under <dir>/workflow/.
// Writes go to a temporary file that is renamed over the old record, so a
// reader sees either the previous checkpoint or the new one.
type FileStore struct {
	dir   string
	locks sync.Map // workflowID -> *sync.Mutex
}

// NewFileStore creates the checkpoint directory if needed
func NewFileStore(dir string) (*FileStore, error) {
	root := filepath.Join(dir, fileStoreSubdir)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &FileStore{dir: root}, nil
}

// Dir returns the directory holding checkpoint documents
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) Save(ctx context.Context, state *reelflow.WorkflowState) error {
	id := workflowIDOf(state)
	path, err := s.path(id)
	if err != nil {
		return &reelflow.StoreError{Op: "save", WorkflowID: id, Err: err}
	}
	data, err := encodeEnvelope(state)
	if err != nil {
		return &reelflow.StoreError{Op: "save", WorkflowID: id, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return &reelflow.StoreError{Op: "save", WorkflowID: id, Err: err}
	}

	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	if err := atomicwriter.WriteFile(path, data, 0o644); err != nil {
		return &reelflow.StoreError{Op: "save", WorkflowID: id, Err: fmt.Errorf("failed to write checkpoint: %w", err)}
	}
	return nil
}

func (s *FileStore) Load(ctx context.Context, workflowID string) (*reelflow.WorkflowState, error) {
	path, err := s.path(workflowID)
	if err != nil {
		return nil, &reelflow.StoreError{Op: "load", WorkflowID: workflowID, Err: err}
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, reelflow.NotFound("load", workflowID)
	}
	if err != nil {
		return nil, &reelflow.StoreError{Op: "load", WorkflowID: workflowID, Err: fmt.Errorf("failed to read checkpoint: %w", err)}
	}
	return decodeEnvelope("load", workflowID, data)
}

func (s *FileStore) List(ctx context.Context, filter reelflow.ListFilter) ([]reelflow.WorkflowSummary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &reelflow.StoreError{Op: "list", Err: fmt.Errorf("failed to read checkpoint directory: %w", err)}
	}

	var summaries []reelflow.WorkflowSummary
	for _, entry := range entries {
		name := entry.Name()
		// Skip temporary files left by interrupted writes
		if entry.IsDir() || !strings.HasSuffix(name, fileStoreExt) || strings.HasPrefix(name, ".") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		state, err := s.Load(ctx, strings.TrimSuffix(name, fileStoreExt))
		if errors.Is(err, reelflow.ErrNotFound) {
			continue // removed between ReadDir and Load
		}
		if err != nil {
			return nil, err
		}
		if filter.Matches(state.Status) {
			summaries = append(summaries, state.Summary())
		}
	}

	return sortAndLimit(summaries, filter.Limit), nil
}

func (s *FileStore) path(workflowID string) (string, error) {
	if workflowID == "" {
		return "", errors.New("workflow id is empty")
	}
	if strings.ContainsAny(workflowID, `/\`) || workflowID == "." || workflowID == ".." || strings.HasPrefix(workflowID, ".") {
		return "", fmt.Errorf("workflow id %q is not a valid file name", workflowID)
	}
	return filepath.Join(s.dir, workflowID+fileStoreExt), nil
}

func (s *FileStore) lock(workflowID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(workflowID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
