package session

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore keeps sessions in a process-local map.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	onExpire func(*Session)
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*Session)}
}

func (s *InMemoryStore) Get(_ context.Context, userID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(sess), nil
}

func (s *InMemoryStore) Put(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.UserID] = clone(sess)
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}

func (s *InMemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), nil
}

func (s *InMemoryStore) Close() error { return nil }

// SetExpireHook registers a callback run for every session the janitor drops.
func (s *InMemoryStore) SetExpireHook(hook func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExpire = hook
}

// StartJanitor drops sessions idle for longer than idleTTL until ctx ends.
// A non-positive idleTTL disables expiry entirely.
func (s *InMemoryStore) StartJanitor(ctx context.Context, idleTTL, interval time.Duration) {
	if idleTTL <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.expireIdle(time.Now().UTC(), idleTTL)
			}
		}
	}()
}

func (s *InMemoryStore) expireIdle(now time.Time, idleTTL time.Duration) {
	var expired []*Session

	s.mu.Lock()
	for id, sess := range s.sessions {
		if now.Sub(sess.UpdatedAt) < idleTTL {
			continue
		}
		expired = append(expired, sess)
		delete(s.sessions, id)
	}
	hook := s.onExpire
	s.mu.Unlock()

	if hook != nil {
		for _, sess := range expired {
			hook(sess)
		}
	}
}
