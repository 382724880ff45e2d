package identity

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/apperr"
	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/auth"
)

// -- Mock User Repository --

type mockUserRepo struct {
	users map[int64]*User
}

func newMockUserRepo(users ...*User) *mockUserRepo {
	m := &mockUserRepo{users: make(map[int64]*User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *mockUserRepo) GetByID(_ context.Context, id int64) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.NotFound("user %d not found", id)
	}
	return u, nil
}

func (m *mockUserRepo) ListByRoles(_ context.Context, roles []auth.Role, limit, offset int) ([]*User, int, error) {
	var out []*User
	for _, u := range m.users {
		for _, r := range roles {
			if u.Role == r {
				out = append(out, u)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := len(out)
	if offset >= total {
		return []*User{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

type fakePresence map[int64]bool

func (p fakePresence) IsOnline(userID int64) bool { return p[userID] }

func seedUsers() *mockUserRepo {
	return newMockUserRepo(
		&User{ID: 1, Role: auth.RolePatient, FirstName: "Amina", LastName: "Idrissi", Email: "amina@example.com"},
		&User{ID: 2, Role: auth.RolePatient, FirstName: "Youssef", LastName: "Bennani", Email: "youssef@example.com"},
		&User{ID: 7, Role: auth.RoleDoctor, FirstName: "Sara", LastName: "Alaoui", Email: "sara@example.com"},
		&User{ID: 9, Role: auth.RoleNurse, FirstName: "Omar", LastName: "Tazi", Email: "omar@example.com"},
	)
}

func contactIDs(cs []*Contact) []int64 {
	ids := make([]int64, len(cs))
	for i, c := range cs {
		ids[i] = c.ID
	}
	return ids
}

func TestDirectory_ContactsByRole(t *testing.T) {
	dir := NewDirectory(seedUsers(), nil)

	tests := []struct {
		name string
		id   auth.Identity
		want []int64
	}{
		{"patient sees staff", auth.Identity{UserID: 1, Role: auth.RolePatient}, []int64{7, 9}},
		{"doctor sees patients and nurses", auth.Identity{UserID: 7, Role: auth.RoleDoctor}, []int64{1, 2, 9}},
		{"nurse sees doctors and patients", auth.Identity{UserID: 9, Role: auth.RoleNurse}, []int64{1, 2, 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			contacts, total, err := dir.Contacts(context.Background(), tt.id, 20, 0)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if total != len(tt.want) {
				t.Errorf("expected total %d, got %d", len(tt.want), total)
			}
			got := contactIDs(contacts)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("expected %v, got %v", tt.want, got)
				}
			}
		})
	}
}

func TestDirectory_ContactsOnlineFlag(t *testing.T) {
	dir := NewDirectory(seedUsers(), fakePresence{9: true})

	contacts, _, err := dir.Contacts(context.Background(), auth.Identity{UserID: 1, Role: auth.RolePatient}, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, c := range contacts {
		if want := c.ID == 9; c.Online != want {
			t.Errorf("user %d: expected online=%v, got %v", c.ID, want, c.Online)
		}
	}
}

func TestDirectory_ContactsPaginated(t *testing.T) {
	dir := NewDirectory(seedUsers(), nil)

	contacts, total, err := dir.Contacts(context.Background(), auth.Identity{UserID: 7, Role: auth.RoleDoctor}, 2, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 {
		t.Errorf("expected total 3, got %d", total)
	}
	if len(contacts) != 1 || contacts[0].ID != 9 {
		t.Errorf("expected only user 9 on the second page, got %v", contactIDs(contacts))
	}
}

func TestDirectory_ContactsUnknownRole(t *testing.T) {
	dir := NewDirectory(seedUsers(), nil)

	_, _, err := dir.Contacts(context.Background(), auth.Identity{UserID: 1, Role: "admin"}, 20, 0)
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestDirectory_GetByID(t *testing.T) {
	dir := NewDirectory(seedUsers(), nil)

	u, err := dir.GetByID(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.FullName() != "Sara Alaoui" {
		t.Errorf("expected Sara Alaoui, got %q", u.FullName())
	}

	if _, err := dir.GetByID(context.Background(), 404); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := dir.GetByID(context.Background(), 0); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestUser_FullName(t *testing.T) {
	tests := []struct {
		user User
		want string
	}{
		{User{FirstName: "Sara", LastName: "Alaoui"}, "Sara Alaoui"},
		{User{FirstName: "Sara"}, "Sara"},
		{User{LastName: "Alaoui"}, "Alaoui"},
		{User{}, ""},
	}
	for _, tt := range tests {
		if got := tt.user.FullName(); got != tt.want {
			t.Errorf("FullName() = %q, want %q", got, tt.want)
		}
	}
}
