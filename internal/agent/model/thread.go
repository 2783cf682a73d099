package model

import (
	"context"
	"time"

	"github.com/cloudwego/eino/schema"
)

// Thread statuses accepted by the thread service.
const (
	ThreadStatusRegular  = "regular"
	ThreadStatusArchived = "archived"
)

// Metadata keys persisted on a thread.
const (
	MetaUserID = "user_id"
	MetaTitle  = "title"
	MetaStatus = "status"
)

// Thread is a stored conversation.
type Thread struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	Metadata  map[string]string `json:"metadata"`
}

// ThreadMessage is one persisted turn.
type ThreadMessage struct {
	ID        string          `json:"id"`
	Role      schema.RoleType `json:"role"`
	Content   string          `json:"content"`
	CreatedAt time.Time       `json:"created_at"`
}

type ThreadRepository interface {
	// Create stores a new thread with the given metadata.
	Create(ctx context.Context, metadata map[string]string) (*Thread, error)

	// Get loads a thread; a missing thread yields errx.ErrThreadNotFound.
	Get(ctx context.Context, threadID string) (*Thread, error)

	// UpdateMetadata merges the given keys into the thread metadata.
	UpdateMetadata(ctx context.Context, threadID string, metadata map[string]string) error

	// Delete removes a thread, its messages and its user index entry.
	Delete(ctx context.Context, threadID string) error

	// ListByUser returns the user's threads, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*Thread, error)

	// AddMessage appends a message to the thread.
	AddMessage(ctx context.Context, threadID string, role schema.RoleType, content string) (*ThreadMessage, error)

	// LoadMessages returns all messages in chronological order.
	LoadMessages(ctx context.Context, threadID string) ([]ThreadMessage, error)

	// CountMessages returns the number of stored messages.
	CountMessages(ctx context.Context, threadID string) (int, error)
}
