package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateIsIdempotent(t *testing.T) {
	m := NewManager(NewInMemoryStore(), 20)
	ctx := context.Background()

	first, err := m.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, DefaultScenario, first.Scenario)
	assert.Empty(t, first.History)

	second, err := m.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	n, err := m.ActiveCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGetOrCreateRejectsBlankID(t *testing.T) {
	m := NewManager(NewInMemoryStore(), 20)
	_, err := m.GetOrCreate(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrMissingUserID)
}

func TestAppendTurnBoundsHistory(t *testing.T) {
	m := NewManager(NewInMemoryStore(), 20)
	sess := New("u1", time.Now())

	for i := 0; i < 25; i++ {
		m.AppendTurn(sess, RoleUser, fmt.Sprintf("m%d", i))
	}
	require.Len(t, sess.History, 20)
	assert.Equal(t, "m5", sess.History[0].Content)
	assert.Equal(t, "m24", sess.History[19].Content)
}

func TestAppendTurnKeepsSystemTurnPinned(t *testing.T) {
	m := NewManager(NewInMemoryStore(), 4)
	sess := New("u1", time.Now())
	m.AppendTurn(sess, RoleSystem, "prompt")

	for i := 0; i < 10; i++ {
		m.AppendTurn(sess, RoleUser, fmt.Sprintf("m%d", i))
	}
	require.Len(t, sess.History, 5)
	assert.Equal(t, RoleSystem, sess.History[0].Role)
	assert.Equal(t, "m6", sess.History[1].Content)
	assert.Equal(t, "m9", sess.History[4].Content)
}

func TestResetDropsSessionAndRenewsCreatedAt(t *testing.T) {
	m := NewManager(NewInMemoryStore(), 20)
	clock := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }
	ctx := context.Background()

	sess, err := m.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	sess.SetScenario("restaurant")
	m.AppendTurn(sess, RoleUser, "bonjour")
	require.NoError(t, m.Save(ctx, sess))

	require.NoError(t, m.Reset(ctx, "u1"))
	n, err := m.ActiveCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	clock = clock.Add(time.Minute)
	fresh, err := m.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, fresh.History)
	assert.Equal(t, DefaultScenario, fresh.Scenario)
	assert.True(t, fresh.CreatedAt.After(sess.CreatedAt))
}

func TestResetUnknownIsNoop(t *testing.T) {
	m := NewManager(NewInMemoryStore(), 20)
	require.NoError(t, m.Reset(context.Background(), "ghost"))
	require.NoError(t, m.Reset(context.Background(), "ghost"))
	assert.ErrorIs(t, m.Reset(context.Background(), ""), ErrMissingUserID)
}

func TestStoreReturnsCopies(t *testing.T) {
	store := NewInMemoryStore()
	m := NewManager(store, 20)
	ctx := context.Background()

	sess, err := m.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	m.AppendTurn(sess, RoleUser, "unsaved")

	stored, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, stored.History)
}

func TestLockSerializesPerUser(t *testing.T) {
	m := NewManager(NewInMemoryStore(), 100)
	ctx := context.Background()
	_, err := m.GetOrCreate(ctx, "u1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			unlock := m.Lock("u1")
			defer unlock()
			sess, err := m.GetOrCreate(ctx, "u1")
			if err != nil {
				return
			}
			m.AppendTurn(sess, RoleUser, fmt.Sprintf("m%d", i))
			_ = m.Save(ctx, sess)
		}(i)
	}
	wg.Wait()

	sess, err := m.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, sess.History, 20)

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Empty(t, m.locks)
}

func TestJanitorExpiresIdleSessions(t *testing.T) {
	store := NewInMemoryStore()
	now := time.Now().UTC()
	old := New("old", now.Add(-time.Hour))
	fresh := New("fresh", now)
	require.NoError(t, store.Put(context.Background(), old))
	require.NoError(t, store.Put(context.Background(), fresh))

	var expired []string
	store.SetExpireHook(func(s *Session) { expired = append(expired, s.UserID) })
	store.expireIdle(now, 30*time.Minute)

	assert.Equal(t, []string{"old"}, expired)
	n, _ := store.Count(context.Background())
	assert.Equal(t, 1, n)
}
