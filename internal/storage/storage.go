package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/busyness-collector/internal/types"
)

type Storage interface {
	Save(run *types.Run) error
	// Load returns the most recent run, or nil when nothing was saved yet.
	Load() (*types.Run, error)
	Close() error
}

func NewStorage(storageType string, path string) (Storage, error) {
	switch storageType {
	case "none", "":
		return NoopStorage{}, nil
	case "file":
		return NewFileStorage(path)
	case "sqlite":
		return NewSQLiteStorage(path)
	case "redis":
		return NewRedisStorage(path)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", storageType)
	}
}

// NoopStorage discards runs.
type NoopStorage struct{}

func (NoopStorage) Save(*types.Run) error     { return nil }
func (NoopStorage) Load() (*types.Run, error) { return nil, nil }
func (NoopStorage) Close() error              { return nil }

// fileHistoryLimit bounds how many runs the file backend retains.
const fileHistoryLimit = 20

// FileStorage keeps the most recent runs, newest first, in one JSON file.
type FileStorage struct {
	path  string
	limit int
	mu    sync.Mutex
}

type runFile struct {
	Runs []*types.Run `json:"runs"`
}

func NewFileStorage(path string) (*FileStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	return &FileStorage{path: path, limit: fileHistoryLimit}, nil
}

// Save prepends run to the stored history and drops the oldest entries
// beyond the limit. An unreadable file is reported, never overwritten.
func (f *FileStorage) Save(run *types.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	runs, err := f.read()
	if err != nil {
		return err
	}

	runs = append([]*types.Run{run}, runs...)
	if len(runs) > f.limit {
		runs = runs[:f.limit]
	}

	data, err := json.MarshalIndent(runFile{Runs: runs}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal runs: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace %s: %w", f.path, err)
	}
	return nil
}

func (f *FileStorage) Load() (*types.Run, error) {
	runs, err := f.History(1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return runs[0], nil
}

// History returns up to limit runs, newest first.
func (f *FileStorage) History(limit int) ([]*types.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	runs, err := f.read()
	if err != nil {
		return nil, err
	}
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (f *FileStorage) read() ([]*types.Run, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}

	var file runFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return file.Runs, nil
}

func (f *FileStorage) Close() error { return nil }
