package messaging

import "context"

type MessageRepository interface {
	// Append inserts m and fills in ID and Timestamp. Timestamps never go
	// backwards within a conversation.
	Append(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id int64) (*Message, error)
	// History returns the conversation between a and b, oldest first.
	History(ctx context.Context, a, b int64) ([]*Message, error)
	MarkRead(ctx context.Context, id int64) error
	UnreadCount(ctx context.Context, receiverID int64) (int, error)
}
