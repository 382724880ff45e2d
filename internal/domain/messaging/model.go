package messaging

import "time"

// MaxContentLength is the longest message body accepted, in characters.
const MaxContentLength = 1000

// Message is one persisted chat message. Only IsRead changes after Append.
type Message struct {
	ID         int64     `db:"id" json:"id"`
	SenderID   int64     `db:"sender_id" json:"sender_id"`
	ReceiverID int64     `db:"receiver_id" json:"receiver_id"`
	Content    string    `db:"content" json:"content"`
	IsRead     bool      `db:"is_read" json:"is_read"`
	Timestamp  time.Time `db:"timestamp" json:"timestamp"`
}

// ConversationKey identifies the unordered pair of users in a conversation.
type ConversationKey struct {
	Low, High int64
}

// KeyFor returns the same key for (a, b) and (b, a).
func KeyFor(a, b int64) ConversationKey {
	if a > b {
		a, b = b, a
	}
	return ConversationKey{Low: a, High: b}
}

// Involves reports whether userID is one of the two parties.
func (k ConversationKey) Involves(userID int64) bool {
	return k.Low == userID || k.High == userID
}
