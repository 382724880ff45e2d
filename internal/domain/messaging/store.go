package messaging

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/apperr"
	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/auth"
)

// Store validates and persists messages.
type Store struct {
	repo MessageRepository
}

func NewStore(repo MessageRepository) *Store {
	return &Store{repo: repo}
}

func validateParties(senderID, receiverID int64) error {
	if senderID <= 0 || receiverID <= 0 {
		return apperr.Validation("sender_id and receiver_id must be positive")
	}
	if senderID == receiverID {
		return apperr.Validation("cannot send a message to yourself")
	}
	return nil
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return apperr.Validation("content must not be empty")
	}
	if n := utf8.RuneCountInString(content); n > MaxContentLength {
		return apperr.Validation("content is %d characters, limit is %d", n, MaxContentLength)
	}
	return nil
}

// Append persists a new unread message. Nothing is written when validation
// fails.
func (s *Store) Append(ctx context.Context, senderID, receiverID int64, content string) (*Message, error) {
	if err := validateParties(senderID, receiverID); err != nil {
		return nil, err
	}
	if err := validateContent(content); err != nil {
		return nil, err
	}
	m := &Message{SenderID: senderID, ReceiverID: receiverID, Content: content}
	if err := s.repo.Append(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// History is symmetric in a and b.
func (s *Store) History(ctx context.Context, a, b int64) ([]*Message, error) {
	if err := validateParties(a, b); err != nil {
		return nil, err
	}
	k := KeyFor(a, b)
	msgs, err := s.repo.History(ctx, k.Low, k.High)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []*Message{}
	}
	return msgs, nil
}

// MarkRead is idempotent.
func (s *Store) MarkRead(ctx context.Context, id int64) error {
	if id <= 0 {
		return apperr.Validation("message id must be positive")
	}
	return s.repo.MarkRead(ctx, id)
}

// MarkReadAs marks a message read on behalf of its receiver.
func (s *Store) MarkReadAs(ctx context.Context, id auth.Identity, messageID int64) (*Message, error) {
	if messageID <= 0 {
		return nil, apperr.Validation("message id must be positive")
	}
	m, err := s.repo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m.ReceiverID != id.UserID {
		return nil, apperr.Forbidden("only the receiver can mark message %d read", messageID)
	}
	if err := s.repo.MarkRead(ctx, messageID); err != nil {
		return nil, err
	}
	m.IsRead = true
	return m, nil
}

func (s *Store) UnreadCount(ctx context.Context, userID int64) (int, error) {
	return s.repo.UnreadCount(ctx, userID)
}
