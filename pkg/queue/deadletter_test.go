package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *DeadLetterStore {
	t.Helper()

	store, err := OpenDeadLetterStore(DeadLetterConfig{Enabled: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestDeadLetterStorePutEach(t *testing.T) {
	store := openTestStore(t)

	first := NewQueuedMessage(testMessage(t))
	second := NewQueuedMessage(testMessage(t))
	require.NoError(t, store.Put(first))
	require.NoError(t, store.Put(second))

	seen := map[string]bool{}
	err := store.Each(func(msg *QueuedMessage) error {
		seen[string(msg.Key())] = true
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, seen, 2)
	assert.True(t, seen[string(first.Key())])
	assert.True(t, seen[string(second.Key())])
}

func TestDeadLetterStoreRemove(t *testing.T) {
	store := openTestStore(t)

	msg := NewQueuedMessage(testMessage(t))
	require.NoError(t, store.Put(msg))
	require.NoError(t, store.Remove(msg.Key()))

	count := 0
	require.NoError(t, store.Each(func(*QueuedMessage) error {
		count++
		return nil
	}))
	assert.Zero(t, count)
}

func TestDeadLetterStorePersistence(t *testing.T) {
	dir := t.TempDir()

	store, err := OpenDeadLetterStore(DeadLetterConfig{Enabled: true, Path: dir})
	require.NoError(t, err)

	msg := NewQueuedMessage(testMessage(t))
	require.NoError(t, store.Put(msg))
	require.NoError(t, store.Close())

	reopened, err := OpenDeadLetterStore(DeadLetterConfig{Enabled: true, Path: dir})
	require.NoError(t, err)
	defer reopened.Close()

	var got *QueuedMessage
	require.NoError(t, reopened.Each(func(m *QueuedMessage) error {
		got = m
		return nil
	}))
	require.NotNil(t, got)
	assert.Equal(t, msg.Message, got.Message)
}
