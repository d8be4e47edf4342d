package redis

import (
	"context"

	redisadapter "gapsentry/internal/adapters/redis"
	"gapsentry/internal/domain/classifier"
)

// DefaultClassifierKey is where state lives when no model name is configured
const DefaultClassifierKey = "gapsentry:classifier:state"

// Compile-time check
var _ classifier.Store = (*ClassifierStateRepository)(nil)

// ClassifierStateRepository stores classifier state as one JSON value
type ClassifierStateRepository struct {
	client *redisadapter.Client
	key    string
}

// NewClassifierStateRepository creates a Redis-backed store.
// modelName namespaces the key so several models can share one database.
func NewClassifierStateRepository(client *redisadapter.Client, modelName string) *ClassifierStateRepository {
	key := DefaultClassifierKey
	if modelName != "" {
		key = "gapsentry:classifier:" + modelName
	}
	return &ClassifierStateRepository{client: client, key: key}
}

// Key returns the Redis key in use
func (r *ClassifierStateRepository) Key() string {
	return r.key
}

// Save overwrites the stored state. The value never expires.
func (r *ClassifierStateRepository) Save(ctx context.Context, state classifier.State) error {
	return r.client.SetJSON(ctx, r.key, state, 0)
}

// Load returns the stored state, or errors.ErrNotFound when the key is absent
func (r *ClassifierStateRepository) Load(ctx context.Context) (*classifier.State, error) {
	var state classifier.State
	if err := r.client.GetJSON(ctx, r.key, &state); err != nil {
		return nil, err
	}
	return &state, nil
}
