package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

type fileStore struct {
	dir string
}

// NewFileStore stores one JSON file per thread inside folder.
func NewFileStore(folder string) (*fileStore, error) {
	if err := os.MkdirAll(folder, 0755); err != nil {
		return nil, err
	}
	return &fileStore{dir: folder}, nil
}

func (s *fileStore) checkpointPath(id string) string {
	return filepath.Join(s.dir, filepath.Base(id)+".json")
}

// listThreadIDs lists all thread IDs (filenames without .json)
func (s *fileStore) listThreadIDs(context.Context) ([]string, error) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, f := range files {
		if !f.IsDir() && filepath.Ext(f.Name()) == ".json" {
			ids = append(ids, f.Name()[:len(f.Name())-len(".json")])
		}
	}
	return ids, nil
}

// Load reads a checkpoint from disk
func (s *fileStore) Load(_ context.Context, threadID string) (Checkpoint, error) {
	data, err := os.ReadFile(s.checkpointPath(threadID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Checkpoint{}, ErrCheckpointNotFound
		}
		return Checkpoint{}, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, err
	}
	return cp, nil
}

// Save writes a checkpoint to disk, replacing any previous one for the thread.
func (s *fileStore) Save(_ context.Context, cp Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return err
	}
	path := s.checkpointPath(cp.ThreadID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Delete removes a checkpoint file
func (s *fileStore) Delete(_ context.Context, threadID string) error {
	if err := os.Remove(s.checkpointPath(threadID)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrCheckpointNotFound
		}
		return err
	}
	return nil
}

func (s *fileStore) List(ctx context.Context) ([]Checkpoint, error) {
	return listCheckpoints(ctx, s)
}
