package classifier

import "context"

// Store persists classifier state. Load returns errors.ErrNotFound when no
// state has been saved yet.
type Store interface {
	Save(ctx context.Context, state State) error
	Load(ctx context.Context) (*State, error)
}
