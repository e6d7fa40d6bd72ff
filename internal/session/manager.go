package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var ErrMissingUserID = errors.New("user_id is required")

// Manager owns session lifecycle on top of a Store. Callers that mutate a
// session should hold Lock(userID) across the read-modify-write.
type Manager struct {
	store      Store
	maxHistory int
	now        func() time.Time

	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func NewManager(store Store, maxHistory int) *Manager {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Manager{
		store:      store,
		maxHistory: maxHistory,
		now:        func() time.Time { return time.Now().UTC() },
		locks:      make(map[string]*userLock),
	}
}

// MaxHistory reports the configured history bound.
func (m *Manager) MaxHistory() int { return m.maxHistory }

// GetOrCreate returns the stored session or persists a fresh one. Calling it
// twice for the same id yields the same session.
func (m *Manager) GetOrCreate(ctx context.Context, userID string) (*Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrMissingUserID
	}
	sess, err := m.store.Get(ctx, userID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	sess = New(userID, m.now())
	if err := m.store.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// Reset removes the session entirely. Resetting an unknown id is a no-op.
func (m *Manager) Reset(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrMissingUserID
	}
	if err := m.store.Delete(ctx, userID); err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	return nil
}

// AppendTurn adds a turn to s under the configured bound.
func (m *Manager) AppendTurn(s *Session, role Role, content string) {
	s.Append(role, content, m.maxHistory)
	s.UpdatedAt = m.now()
}

// Save persists s.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	return m.store.Put(ctx, s)
}

// ActiveCount reports the number of stored sessions.
func (m *Manager) ActiveCount(ctx context.Context) (int, error) {
	return m.store.Count(ctx)
}

// Lock serializes work for one user and returns the unlock func.
func (m *Manager) Lock(userID string) func() {
	m.mu.Lock()
	l, ok := m.locks[userID]
	if !ok {
		l = &userLock{}
		m.locks[userID] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, userID)
		}
		m.mu.Unlock()
	}
}
