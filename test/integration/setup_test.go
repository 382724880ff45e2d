package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/domain/identity"
	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/auth"
	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/db"
)

// testPool is shared by every test; each test truncates the tables it uses.
var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	if !dockerAvailable(ctx) {
		fmt.Fprintln(os.Stderr, "docker unavailable, skipping integration tests")
		os.Exit(0)
	}

	connStr, cleanup, err := startPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres: %v\n", err)
		os.Exit(1)
	}

	pool, err := db.NewPool(ctx, connStr, 10, 1)
	if err != nil {
		cleanup()
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}

	if _, err := db.NewMigrator(pool, findMigrationsDir()).Up(ctx, db.DefaultSchema); err != nil {
		pool.Close()
		cleanup()
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	testPool = pool
	code := m.Run()
	pool.Close()
	cleanup()
	os.Exit(code)
}

func findMigrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

func resetTables(t *testing.T, ctx context.Context) {
	t.Helper()
	if _, err := testPool.Exec(ctx,
		"TRUNCATE users, messages, schedule_appointments RESTART IDENTITY"); err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

func createUser(t *testing.T, ctx context.Context, role auth.Role, first, last string) *identity.User {
	t.Helper()
	u := &identity.User{Role: role, FirstName: first, LastName: last}
	u.Email = fmt.Sprintf("%s.%s@clinic.test", first, last)
	err := testPool.QueryRow(ctx,
		`INSERT INTO users (role, first_name, last_name, email) VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		string(role), first, last, u.Email,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		t.Fatalf("insert user %s %s: %v", first, last, err)
	}
	return u
}
