package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grievancebot/services/orchestrator/dialogue"
	"grievancebot/services/orchestrator/langpack"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newMemory(t *testing.T, clock *fakeClock) Store {
	t.Helper()
	s, err := NewStore(StoreTypeMemory, WithTTL(time.Minute), WithClock(clock.now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newRecord(widgetID string) *Record {
	return &Record{WidgetID: widgetID, Conversation: dialogue.NewSession(langpack.Hindi)}
}

func TestNewStoreValidation(t *testing.T) {
	_, err := NewStore(StoreTypeRedis)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewStore("etcd")
	assert.ErrorIs(t, err, ErrInvalidStoreType)
}

func TestMemoryCreateGet(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := newMemory(t, clock)

	got, err := s.Get(ctx, "w1")
	require.NoError(t, err)
	assert.Nil(t, got)

	rec := newRecord("w1")
	require.NoError(t, s.Create(ctx, rec))
	assert.Equal(t, int64(1), rec.Version)
	assert.ErrorIs(t, s.Create(ctx, newRecord("w1")), ErrAlreadyExists)

	got, err = s.Get(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.Conversation.ID, got.Conversation.ID)
	assert.Equal(t, langpack.Hindi, got.Conversation.Language)
	assert.Equal(t, clock.t, got.CreatedAt)
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := newMemory(t, &fakeClock{t: time.Now()})
	rec := newRecord("w1")
	require.NoError(t, s.Create(ctx, rec))

	rec.Conversation.State = dialogue.StateEnd
	got, err := s.Get(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, dialogue.StateStart, got.Conversation.State)
}

func TestMemoryOptimisticUpdate(t *testing.T) {
	ctx := context.Background()
	s := newMemory(t, &fakeClock{t: time.Now()})
	require.NoError(t, s.Create(ctx, newRecord("w1")))

	a, err := s.Get(ctx, "w1")
	require.NoError(t, err)
	b, err := s.Get(ctx, "w1")
	require.NoError(t, err)

	a.Conversation.State = dialogue.StateAwaitingRating
	require.NoError(t, s.Update(ctx, a))
	assert.Equal(t, int64(2), a.Version)

	b.Conversation.State = dialogue.StateEnd
	assert.ErrorIs(t, s.Update(ctx, b), ErrVersionConflict)

	got, err := s.Get(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, dialogue.StateAwaitingRating, got.Conversation.State)

	assert.ErrorIs(t, s.Update(ctx, newRecord("missing")), ErrNotFound)
}

func TestMemoryExpiryAndDelete(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Now()}
	s := newMemory(t, clock)
	require.NoError(t, s.Create(ctx, newRecord("w1")))
	require.NoError(t, s.Create(ctx, newRecord("w2")))

	clock.t = clock.t.Add(30 * time.Second)
	got, err := s.Get(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, got, "read refreshes the ttl")

	clock.t = clock.t.Add(45 * time.Second)
	got, err = s.Get(ctx, "w1")
	require.NoError(t, err)
	assert.NotNil(t, got)
	got, err = s.Get(ctx, "w2")
	require.NoError(t, err)
	assert.Nil(t, got, "w2 expired")

	require.NoError(t, s.Delete(ctx, "w1"))
	got, err = s.Get(ctx, "w1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
