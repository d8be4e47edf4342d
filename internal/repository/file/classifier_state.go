package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"gapsentry/internal/domain/classifier"
	"gapsentry/pkg/errors"
)

// Compile-time check
var _ classifier.Store = (*ClassifierStateRepository)(nil)

// ClassifierStateRepository keeps classifier state in a single JSON document
// on local disk. Writes go to a temporary sibling first and are renamed into
// place, so a crash mid-save leaves the previous state readable.
type ClassifierStateRepository struct {
	path string
}

// NewClassifierStateRepository creates a file-backed store at path
func NewClassifierStateRepository(path string) *ClassifierStateRepository {
	return &ClassifierStateRepository{path: path}
}

// Path returns the document location
func (r *ClassifierStateRepository) Path() string {
	return r.path
}

// Save writes state, creating the parent directory when needed
func (r *ClassifierStateRepository) Save(ctx context.Context, state classifier.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal classifier state")
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp state file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write temp state file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "sync temp state file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp state file")
	}

	if err := os.Rename(tmpName, r.path); err != nil {
		return errors.Wrapf(err, "replace %s", r.path)
	}
	return nil
}

// Load reads the saved state. A missing file means nothing was saved yet.
func (r *ClassifierStateRepository) Load(ctx context.Context) (*classifier.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", r.path)
	}

	var state classifier.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, errors.Wrapf(err, "decode %s", r.path)
	}
	return &state, nil
}
