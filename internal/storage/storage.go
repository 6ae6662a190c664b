// Package storage archives every message flowing through the broker into
// the relational store, so conversations survive delivery.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jinshu-im/jinshu/internal/logger"
	"github.com/jinshu-im/jinshu/pkg/queue"
)

// ArchivedMessage is one archived message row. Identifiers are stored in
// their 32-char hex form; the content as its JSON document.
type ArchivedMessage struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Timestamp time.Time `json:"timestamp"`
	From      string    `gorm:"column:sender" json:"from"`
	To        string    `gorm:"column:recipient" json:"to"`
	Content   string    `json:"content"`
	StoreTime time.Time `gorm:"autoCreateTime" json:"store_time"`
}

// Models returns the gorm models the archive migrates.
func Models() []any {
	return []any{&ArchivedMessage{}}
}

// Archiver consumes queued messages and writes archive rows. It implements
// queue.Handler.
type Archiver struct {
	db *gorm.DB
}

// NewArchiver builds the archiver over an opened database.
func NewArchiver(db *gorm.DB) *Archiver {
	return &Archiver{db: db}
}

// Handle implements queue.Handler. Malformed payloads are acknowledged and
// reported as failures; a database error stops the consumer so messages are
// not acknowledged while the archive is unavailable.
func (a *Archiver) Handle(ctx context.Context, _ string, msg *queue.QueuedMessage) queue.HandleResult {
	row, err := rowFromMessage(msg)
	if err != nil {
		logger.Warn("Discarding malformed message", "error", err)
		return queue.Failure("%s", err)
	}

	if err := a.db.WithContext(ctx).Create(row).Error; err != nil {
		logger.Error("Failed to archive message", "message_id", row.ID, "error", err)
		return queue.Fatal("archive message: %s", err)
	}

	logger.Debug("Message archived", "message_id", row.ID)
	return queue.Ok()
}

func rowFromMessage(msg *queue.QueuedMessage) (*ArchivedMessage, error) {
	parsed, err := msg.Message.ToProtocol()
	if err != nil {
		return nil, err
	}

	content, err := json.Marshal(&parsed.Content)
	if err != nil {
		return nil, fmt.Errorf("encode content: %w", err)
	}

	return &ArchivedMessage{
		ID:        parsed.ID.String(),
		Timestamp: time.UnixMilli(int64(parsed.Timestamp)).UTC(),
		From:      parsed.From.String(),
		To:        parsed.To.String(),
		Content:   string(content),
	}, nil
}
