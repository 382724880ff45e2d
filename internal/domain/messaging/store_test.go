package messaging

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/apperr"
	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/auth"
)

// -- Mock Message Repository --

type mockMessageRepo struct {
	mu      sync.Mutex
	nextID  int64
	msgs    map[int64]*Message
	lastTS  map[ConversationKey]time.Time
	appends int
}

func newMockMessageRepo() *mockMessageRepo {
	return &mockMessageRepo{
		msgs:   make(map[int64]*Message),
		lastTS: make(map[ConversationKey]time.Time),
	}
}

func (m *mockMessageRepo) Append(_ context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	k := KeyFor(msg.SenderID, msg.ReceiverID)
	ts := time.Now().UTC()
	if last := m.lastTS[k]; !ts.After(last) {
		ts = last.Add(time.Microsecond)
	}
	m.lastTS[k] = ts
	msg.ID = m.nextID
	msg.Timestamp = ts
	msg.IsRead = false
	cp := *msg
	m.msgs[msg.ID] = &cp
	m.appends++
	return nil
}

func (m *mockMessageRepo) GetByID(_ context.Context, id int64) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.msgs[id]
	if !ok {
		return nil, apperr.NotFound("message %d not found", id)
	}
	cp := *msg
	return &cp, nil
}

func (m *mockMessageRepo) History(_ context.Context, a, b int64) ([]*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := KeyFor(a, b)
	var out []*Message
	for _, msg := range m.msgs {
		if KeyFor(msg.SenderID, msg.ReceiverID) == k {
			cp := *msg
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (m *mockMessageRepo) MarkRead(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.msgs[id]
	if !ok {
		return apperr.NotFound("message %d not found", id)
	}
	msg.IsRead = true
	return nil
}

func (m *mockMessageRepo) UnreadCount(_ context.Context, receiverID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.msgs {
		if msg.ReceiverID == receiverID && !msg.IsRead {
			n++
		}
	}
	return n, nil
}

func (m *mockMessageRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appends
}

func TestStore_AppendThenHistory(t *testing.T) {
	repo := newMockMessageRepo()
	s := NewStore(repo)
	ctx := context.Background()

	if _, err := s.Append(ctx, 7, 9, "first"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before, _ := s.History(ctx, 7, 9)

	m, err := s.Append(ctx, 9, 7, "reply")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.ID == 0 || m.Timestamp.IsZero() || m.IsRead {
		t.Errorf("expected id, timestamp and unread flag to be set, got %+v", m)
	}

	after, err := s.History(ctx, 7, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(after) != len(before)+1 {
		t.Fatalf("expected exactly one new message, got %d -> %d", len(before), len(after))
	}
	last := after[len(after)-1]
	if last.ID != m.ID || last.Content != "reply" {
		t.Errorf("expected the new message last, got %+v", last)
	}
	for _, prev := range before {
		if last.Timestamp.Before(prev.Timestamp) {
			t.Errorf("new timestamp %s precedes %s", last.Timestamp, prev.Timestamp)
		}
	}
}

func TestStore_HistorySymmetric(t *testing.T) {
	s := NewStore(newMockMessageRepo())
	ctx := context.Background()

	s.Append(ctx, 7, 9, "a")
	s.Append(ctx, 9, 7, "b")
	s.Append(ctx, 7, 3, "other conversation")

	ab, _ := s.History(ctx, 7, 9)
	ba, _ := s.History(ctx, 9, 7)
	if len(ab) != 2 || len(ba) != 2 {
		t.Fatalf("expected 2 messages each way, got %d and %d", len(ab), len(ba))
	}
	for i := range ab {
		if ab[i].ID != ba[i].ID {
			t.Fatalf("history differs at %d: %d vs %d", i, ab[i].ID, ba[i].ID)
		}
	}
}

func TestStore_HistoryEmpty(t *testing.T) {
	s := NewStore(newMockMessageRepo())
	msgs, err := s.History(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgs == nil || len(msgs) != 0 {
		t.Errorf("expected empty non-nil history, got %v", msgs)
	}
}

func TestStore_AppendValidation(t *testing.T) {
	tests := []struct {
		name     string
		sender   int64
		receiver int64
		content  string
	}{
		{"empty content", 7, 9, ""},
		{"whitespace content", 7, 9, "   \n"},
		{"too long", 7, 9, strings.Repeat("x", MaxContentLength+1)},
		{"self", 7, 7, "hi"},
		{"zero sender", 0, 9, "hi"},
		{"negative receiver", 7, -1, "hi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockMessageRepo()
			_, err := NewStore(repo).Append(context.Background(), tt.sender, tt.receiver, tt.content)
			if !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if repo.count() != 0 {
				t.Error("nothing should be persisted on validation failure")
			}
		})
	}
}

func TestStore_AppendMaxLengthCountsCharacters(t *testing.T) {
	s := NewStore(newMockMessageRepo())
	content := strings.Repeat("é", MaxContentLength)
	if _, err := s.Append(context.Background(), 7, 9, content); err != nil {
		t.Fatalf("expected %d multibyte characters to be accepted, got %v", MaxContentLength, err)
	}
}

func TestStore_MarkRead(t *testing.T) {
	repo := newMockMessageRepo()
	s := NewStore(repo)
	ctx := context.Background()

	m, _ := s.Append(ctx, 7, 9, "hello")
	if err := s.MarkRead(ctx, m.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.MarkRead(ctx, m.ID); err != nil {
		t.Fatalf("second MarkRead should be a no-op, got %v", err)
	}
	got, _ := repo.GetByID(ctx, m.ID)
	if !got.IsRead {
		t.Error("expected message to be read")
	}

	if err := s.MarkRead(ctx, 999); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if err := s.MarkRead(ctx, 0); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestStore_MarkReadAs(t *testing.T) {
	s := NewStore(newMockMessageRepo())
	ctx := context.Background()
	m, _ := s.Append(ctx, 7, 9, "hello")

	if _, err := s.MarkReadAs(ctx, auth.Identity{UserID: 7, Role: auth.RolePatient}, m.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("sender must not mark read, got %v", err)
	}
	n, _ := s.UnreadCount(ctx, 9)
	if n != 1 {
		t.Fatalf("expected 1 unread, got %d", n)
	}

	got, err := s.MarkReadAs(ctx, auth.Identity{UserID: 9, Role: auth.RoleDoctor}, m.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsRead {
		t.Error("expected returned message to be read")
	}
	n, _ = s.UnreadCount(ctx, 9)
	if n != 0 {
		t.Errorf("expected 0 unread, got %d", n)
	}
}

func TestKeyFor(t *testing.T) {
	if KeyFor(9, 7) != KeyFor(7, 9) {
		t.Error("KeyFor must be symmetric")
	}
	k := KeyFor(9, 7)
	if k.Low != 7 || k.High != 9 {
		t.Errorf("unexpected key %+v", k)
	}
	if !k.Involves(7) || k.Involves(8) {
		t.Error("Involves mismatch")
	}
}

func TestLockKey_Symmetric(t *testing.T) {
	if lockKey(KeyFor(7, 9)) != lockKey(KeyFor(9, 7)) {
		t.Error("advisory lock key must not depend on direction")
	}
	if lockKey(KeyFor(7, 9)) == lockKey(KeyFor(7, 10)) {
		t.Error("expected distinct keys for distinct conversations")
	}
}
