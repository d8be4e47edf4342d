package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gapsentry/internal/domain/classifier"
	"gapsentry/pkg/errors"
)

func TestClassifierStateRepository_LoadMissing(t *testing.T) {
	repo := NewClassifierStateRepository(filepath.Join(t.TempDir(), "absent.json"))

	st, err := repo.Load(context.Background())
	assert.Nil(t, st)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestClassifierStateRepository_SaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "state.json")
	repo := NewClassifierStateRepository(path)
	ctx := context.Background()

	want := classifier.State{
		Weights:     [classifier.FeatureCount]float64{0.1, -0.2, 0.3, -0.4, 0.5, -0.6},
		Bias:        0.25,
		SampleCount: 42,
		UpdatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Save(ctx, want))

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want.Weights, got.Weights)
	assert.Equal(t, want.Bias, got.Bias)
	assert.Equal(t, want.SampleCount, got.SampleCount)
	assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt))

	// overwrite keeps only the latest state and leaves no temp files behind
	want.SampleCount = 43
	require.NoError(t, repo.Save(ctx, want))
	got, err = repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(43), got.SampleCount)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestClassifierStateRepository_CorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewClassifierStateRepository(path).Load(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, errors.ErrNotFound))
}

func TestClassifierStateRepository_UnwritableLocation(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	// parent "directory" is a regular file
	repo := NewClassifierStateRepository(filepath.Join(blocker, "state.json"))
	assert.Error(t, repo.Save(context.Background(), classifier.State{}))
}

func TestClassifierStateRepository_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	repo := NewClassifierStateRepository(filepath.Join(t.TempDir(), "state.json"))
	assert.ErrorIs(t, repo.Save(ctx, classifier.State{}), context.Canceled)
	_, err := repo.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
