package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinshu-im/jinshu/pkg/database"
	"github.com/jinshu-im/jinshu/pkg/protocol"
	"github.com/jinshu-im/jinshu/pkg/queue"
	"github.com/jinshu-im/jinshu/pkg/rpc"
)

func newArchiver(t *testing.T) *Archiver {
	t.Helper()
	db, err := database.Open(database.Config{
		Type:   database.TypeSQLite,
		SQLite: database.SQLiteConfig{Path: ":memory:"},
	}, Models()...)
	require.NoError(t, err)
	return NewArchiver(db)
}

func queuedMessage(t *testing.T, text string) (*queue.QueuedMessage, *protocol.Message) {
	t.Helper()
	content, err := protocol.DataContent("text/plain", []byte(text))
	require.NoError(t, err)
	original := &protocol.Message{
		ID:        protocol.NewUID(),
		Timestamp: 1700000000123,
		From:      protocol.NewUID(),
		To:        protocol.NewUID(),
		Content:   content,
	}
	wire, err := rpc.FromProtocol(original)
	require.NoError(t, err)
	return queue.NewQueuedMessage(wire), original
}

func TestHandleArchivesMessage(t *testing.T) {
	archiver := newArchiver(t)
	msg, original := queuedMessage(t, "for the record")

	result := archiver.Handle(context.Background(), "jinshu.dev", msg)
	require.True(t, result.IsOk(), result.Reason())

	var row ArchivedMessage
	require.NoError(t, archiver.db.First(&row, "id = ?", original.ID.String()).Error)
	assert.Equal(t, original.From.String(), row.From)
	assert.Equal(t, original.To.String(), row.To)
	assert.Equal(t, time.UnixMilli(1700000000123).UTC(), row.Timestamp.UTC())
	assert.Contains(t, row.Content, "Data")
	assert.NotZero(t, row.StoreTime)
}

func TestHandleMalformedPayload(t *testing.T) {
	archiver := newArchiver(t)
	msg, _ := queuedMessage(t, "broken")
	msg.Message.Content = []byte{0xff, 0x00}

	result := archiver.Handle(context.Background(), "jinshu.dev", msg)
	assert.False(t, result.IsOk())
	assert.False(t, result.IsFatal())
}

func TestHandleDuplicateStops(t *testing.T) {
	archiver := newArchiver(t)
	msg, _ := queuedMessage(t, "twice")

	require.True(t, archiver.Handle(context.Background(), "jinshu.dev", msg).IsOk())

	// A second insert with the same primary key fails at the database, which
	// must stop the consumer rather than silently drop messages.
	result := archiver.Handle(context.Background(), "jinshu.dev", msg)
	assert.True(t, result.IsFatal())
}
