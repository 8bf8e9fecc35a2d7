//go:build integration

package storage

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/spherical/slide-creator/internal/config"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("slides"),
		tcpostgres.WithUsername("slides"),
		tcpostgres.WithPassword("slides"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestRunRepository_Postgres(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if os.Getenv("CI") == "" && !isDockerAvailable() {
		t.Skip("Docker not available")
	}

	ctx := context.Background()
	db, err := Open(config.DatabaseConfig{
		Driver: "postgres",
		Postgres: config.PostgresConfig{
			DSN:          startPostgres(t),
			MaxOpenConns: 5,
			MaxIdleConns: 2,
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.PingContext(ctx))

	repo := NewRunRepository(db)
	require.NoError(t, repo.EnsureSchema(ctx))
	require.NoError(t, repo.EnsureSchema(ctx))

	first := &Run{PDFPath: "a.pdf", OutputPath: "a.pptx", State: "START"}
	require.NoError(t, repo.Create(ctx, first))
	second := &Run{PDFPath: "b.pdf", OutputPath: "b.pptx", State: "START", StartedAt: first.StartedAt.Add(time.Second)}
	require.NoError(t, repo.Create(ctx, second))

	first.State = "HALT_UNSAFE"
	first.FailureReason = "unsafe_content"
	first.FailureMessage = "document flagged as unsafe"
	first.Metadata = json.RawMessage(`{"threat_level": "HIGH"}`)
	require.NoError(t, repo.Finish(ctx, first))

	got, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "HALT_UNSAFE", got.State)
	assert.Equal(t, "unsafe_content", got.FailureReason)
	assert.JSONEq(t, `{"threat_level": "HIGH"}`, string(got.Metadata))
	require.NotNil(t, got.FinishedAt)

	runs, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, first.ID, runs[1].ID)

	_, err = repo.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Finish(ctx, &Run{PDFPath: "c.pdf"}), ErrNotFound)
}

func isDockerAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		return false
	}
	defer provider.Close()

	_, err = provider.Client().Ping(ctx)
	return err == nil
}
