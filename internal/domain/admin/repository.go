package admin

import "context"

type Repository interface {
	// Get returns the admin row; ErrNotInitiated when no row exists.
	Get(ctx context.Context) (*State, error)
	Save(ctx context.Context, s *State) error
}
