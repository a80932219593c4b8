//go:build integration

package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sells-group/procurement-cli/internal/db"
)

const postgresImage = "postgres:16-alpine"

var (
	sharedPG     *db.Postgres
	sharedPGOnce sync.Once
	sharedPGErr  error
)

// GetPostgres returns a migrated Postgres database running in a container
// shared by every test in the run.
func GetPostgres(t *testing.T) *db.Postgres {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode (requires Docker)")
	}

	sharedPGOnce.Do(func() {
		sharedPG, sharedPGErr = setupPostgres(context.Background())
	})
	if sharedPGErr != nil {
		t.Fatalf("setup postgres container: %v", sharedPGErr)
	}
	return sharedPG
}

func setupPostgres(ctx context.Context) (*db.Postgres, error) {
	req := testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "procurement",
			"POSTGRES_USER":     "procurement",
			"POSTGRES_PASSWORD": "procurement",
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
		return nil, fmt.Errorf("start container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://procurement:procurement@%s:%s/procurement?sslmode=disable", host, port.Port())
	pg, err := db.OpenPostgres(ctx, connStr, nil)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, err
	}
	return pg, nil
}
