package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gapsentry/internal/domain/classifier"
	"gapsentry/pkg/errors"
)

func newMockRepo(t *testing.T) (*ClassifierStateRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewClassifierStateRepository(sqlx.NewDb(db, "postgres"), "gap_classifier"), mock
}

func TestClassifierStateRepository_Save(t *testing.T) {
	repo, mock := newMockRepo(t)
	at := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO classifier_state")).
		WithArgs("gap_classifier", sqlmock.AnyArg(), 0.5, int64(12), at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Save(context.Background(), classifier.State{
		Weights:     [classifier.FeatureCount]float64{1, 2, 3, 4, 5, 6},
		Bias:        0.5,
		SampleCount: 12,
		UpdatedAt:   at,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassifierStateRepository_Load(t *testing.T) {
	repo, mock := newMockRepo(t)
	at := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"model_name", "weights", "bias", "sample_count", "updated_at"}).
		AddRow("gap_classifier", "{0.1,0.2,0.3,0.4,0.5,0.6}", -1.25, int64(99), at)
	mock.ExpectQuery(regexp.QuoteMeta("FROM classifier_state")).
		WithArgs("gap_classifier").
		WillReturnRows(rows)

	st, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [classifier.FeatureCount]float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}, st.Weights)
	assert.Equal(t, -1.25, st.Bias)
	assert.Equal(t, int64(99), st.SampleCount)
	assert.True(t, at.Equal(st.UpdatedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassifierStateRepository_LoadMissing(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM classifier_state")).
		WithArgs("gap_classifier").
		WillReturnRows(sqlmock.NewRows([]string{"model_name", "weights", "bias", "sample_count", "updated_at"}))

	st, err := repo.Load(context.Background())
	assert.Nil(t, st)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestClassifierStateRepository_LoadWrongWidth(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := sqlmock.NewRows([]string{"model_name", "weights", "bias", "sample_count", "updated_at"}).
		AddRow("gap_classifier", "{1,2,3}", 0.0, int64(1), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM classifier_state")).WillReturnRows(rows)

	_, err := repo.Load(context.Background())
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestClassifierStateRepository_EnsureSchema(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS classifier_state")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
