package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"gapsentry/internal/domain/classifier"
	"gapsentry/internal/metrics"
	"gapsentry/pkg/errors"
)

// ClassifierStateSchema creates the table the repository writes to
const ClassifierStateSchema = `
CREATE TABLE IF NOT EXISTS classifier_state (
	model_name   TEXT PRIMARY KEY,
	weights      DOUBLE PRECISION[] NOT NULL,
	bias         DOUBLE PRECISION NOT NULL,
	sample_count BIGINT NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
)`

// Compile-time check
var _ classifier.Store = (*ClassifierStateRepository)(nil)

// ClassifierStateRepository keeps one row per named model
type ClassifierStateRepository struct {
	db        DBTX
	modelName string
}

// NewClassifierStateRepository creates a repository for modelName
func NewClassifierStateRepository(db DBTX, modelName string) *ClassifierStateRepository {
	return &ClassifierStateRepository{db: db, modelName: modelName}
}

type classifierStateRow struct {
	ModelName   string          `db:"model_name"`
	Weights     pq.Float64Array `db:"weights"`
	Bias        float64         `db:"bias"`
	SampleCount int64           `db:"sample_count"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

// EnsureSchema creates the backing table if it does not exist
func (r *ClassifierStateRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, ClassifierStateSchema)
	return errors.Wrap(err, "create classifier_state")
}

// Save upserts the model row
func (r *ClassifierStateRepository) Save(ctx context.Context, state classifier.State) error {
	query := `
		INSERT INTO classifier_state (model_name, weights, bias, sample_count, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (model_name) DO UPDATE SET
			weights = EXCLUDED.weights,
			bias = EXCLUDED.bias,
			sample_count = EXCLUDED.sample_count,
			updated_at = EXCLUDED.updated_at`

	start := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		r.modelName,
		pq.Array(state.Weights[:]),
		state.Bias,
		state.SampleCount,
		state.UpdatedAt,
	)
	metrics.RecordDBQuery("postgres", "classifier_state_upsert", time.Since(start), err)
	return errors.Wrap(err, "upsert classifier_state")
}

// Load returns the model row, or errors.ErrNotFound when none was saved
func (r *ClassifierStateRepository) Load(ctx context.Context) (*classifier.State, error) {
	var row classifierStateRow

	query := `
		SELECT model_name, weights, bias, sample_count, updated_at
		FROM classifier_state
		WHERE model_name = $1`

	start := time.Now()
	err := r.db.GetContext(ctx, &row, query, r.modelName)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordDBQuery("postgres", "classifier_state_select", time.Since(start), nil)
		return nil, errors.ErrNotFound
	}
	if err != nil {
		metrics.RecordDBQuery("postgres", "classifier_state_select", time.Since(start), err)
		return nil, errors.Wrap(err, "select classifier_state")
	}
	metrics.RecordDBQuery("postgres", "classifier_state_select", time.Since(start), nil)

	if len(row.Weights) != classifier.FeatureCount {
		return nil, errors.Wrapf(errors.ErrInvalidInput,
			"stored model %q has %d weights, want %d", row.ModelName, len(row.Weights), classifier.FeatureCount)
	}

	state := classifier.State{
		Bias:        row.Bias,
		SampleCount: row.SampleCount,
		UpdatedAt:   row.UpdatedAt,
	}
	copy(state.Weights[:], row.Weights)
	return &state, nil
}
