package messaging

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/apperr"
	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/db"
)

type messageRepoPG struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) MessageRepository {
	return &messageRepoPG{pool: pool}
}

const messageCols = `id, sender_id, receiver_id, content, is_read, timestamp`

func (r *messageRepoPG) scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	if err := row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.IsRead, &m.Timestamp); err != nil {
		return nil, err
	}
	return &m, nil
}

// lockKey maps a conversation to a pg_advisory_xact_lock key. Collisions only
// serialize two unrelated conversations.
func lockKey(k ConversationKey) int64 {
	h := fnv.New64a()
	h.Write([]byte(strconv.FormatInt(k.Low, 10) + ":" + strconv.FormatInt(k.High, 10)))
	return int64(h.Sum64())
}

func (r *messageRepoPG) Append(ctx context.Context, m *Message) error {
	return db.InTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey(KeyFor(m.SenderID, m.ReceiverID))); err != nil {
			return fmt.Errorf("lock conversation: %w", err)
		}
		// GREATEST ignores the NULL max of an empty conversation.
		err := tx.QueryRow(ctx, `
			INSERT INTO messages (sender_id, receiver_id, content, is_read, timestamp)
			SELECT $1, $2, $3, false, GREATEST(clock_timestamp(), MAX(timestamp))
			FROM messages
			WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
			RETURNING id, timestamp`,
			m.SenderID, m.ReceiverID, m.Content,
		).Scan(&m.ID, &m.Timestamp)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		m.IsRead = false
		return nil
	})
}

func (r *messageRepoPG) GetByID(ctx context.Context, id int64) (*Message, error) {
	m, err := r.scanMessage(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+messageCols+` FROM messages WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("message %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get message %d: %w", id, err)
	}
	return m, nil
}

func (r *messageRepoPG) History(ctx context.Context, a, b int64) ([]*Message, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+messageCols+` FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY timestamp, id`, a, b)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		m, err := r.scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (r *messageRepoPG) MarkRead(ctx context.Context, id int64) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE messages SET is_read = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark message %d read: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("message %d not found", id)
	}
	return nil
}

func (r *messageRepoPG) UnreadCount(ctx context.Context, receiverID int64) (int, error) {
	var n int
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE receiver_id = $1 AND NOT is_read`, receiverID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}
