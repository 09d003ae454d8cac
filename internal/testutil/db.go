package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"taskpulse-backend/internal/db"
)

const (
	pgUser     = "tasks"
	pgPassword = "tasks"
	pgName     = "tasks"
)

// TestDB is a migrated Postgres running in a throwaway container.
type TestDB struct {
	DB         *sqlx.DB
	ConnString string
	container  testcontainers.Container
}

// SetupTestDB starts Postgres 15, applies the embedded migrations and
// registers cleanup. Integration tests are opt-in: they are skipped under
// -short and unless TASKS_INTEGRATION=1.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	if testing.Short() || os.Getenv("TASKS_INTEGRATION") != "1" {
		t.Skip("integration test: set TASKS_INTEGRATION=1 to run")
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:15",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     pgUser,
			"POSTGRES_PASSWORD": pgPassword,
			"POSTGRES_DB":       pgName,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatal(err)
	}
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		pgUser, pgPassword, host, port.Port(), pgName)

	var conn *sqlx.DB
	for i := 0; i < 10; i++ {
		if conn, err = db.Connect(connStr); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("Failed to connect to test DB: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.MigrateUp(connStr); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	return &TestDB{DB: conn, ConnString: connStr, container: container}
}
