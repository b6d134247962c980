// Package state tracks multi-step bot dialogs per user.
package state

import "context"

// Storage defines the persistence contract for user dialog state.
type Storage interface {
	// GetState returns the current state or ErrStateNotFound.
	GetState(ctx context.Context, userID int64) (*UserState, error)
	// SetState saves the provided state for the specified user.
	SetState(ctx context.Context, userID int64, state *UserState) error
	// ClearState removes the state for the specified user.
	ClearState(ctx context.Context, userID int64) error
}
