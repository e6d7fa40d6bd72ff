package session

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("session not found")

// Store persists sessions keyed by user id. Implementations must return
// copies so callers never alias stored state.
type Store interface {
	// Get returns ErrNotFound when no session exists for userID.
	Get(ctx context.Context, userID string) (*Session, error)
	// Put creates or replaces the session.
	Put(ctx context.Context, s *Session) error
	// Delete removes the session; deleting a missing id is not an error.
	Delete(ctx context.Context, userID string) error
	// Count reports how many sessions are stored.
	Count(ctx context.Context) (int, error)
	Close() error
}
