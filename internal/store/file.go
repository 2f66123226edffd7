package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cuongbtq/push-orchestrator/internal/job"
)

// FileStore persists the job map as a single JSON document on local disk.
// Writes go to a temp file in the same directory and are renamed into place.
type FileStore struct {
	path string
	mu   sync.Mutex
}

type fileState struct {
	Jobs map[string]job.Job `json:"jobs"`
}

// NewFileStore creates a file-backed store at the given path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the document; a missing or empty file is an empty map
func (s *FileStore) Load(ctx context.Context) (map[string]job.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.path == "" {
		return nil, errors.New("store path is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]job.Job), nil
		}
		return nil, fmt.Errorf("failed to read job store file: %w", err)
	}
	if len(data) == 0 {
		return make(map[string]job.Job), nil
	}

	var state fileState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse job store file: %w", err)
	}
	if state.Jobs == nil {
		state.Jobs = make(map[string]job.Job)
	}
	return state.Jobs, nil
}

// Save writes the full snapshot atomically
func (s *FileStore) Save(ctx context.Context, jobs map[string]job.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.path == "" {
		return errors.New("store path is required")
	}
	if jobs == nil {
		jobs = make(map[string]job.Job)
	}

	data, err := json.MarshalIndent(fileState{Jobs: jobs}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode jobs: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-jobs-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace job store file: %w", err)
	}
	return nil
}
