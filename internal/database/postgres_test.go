package database_test

import (
	"testing"
	"time"

	"apexdispatch/internal/database"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container backed test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := t.Context()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("dispatcher"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	var db *database.DB
	require.Eventually(t, func() bool {
		db, err = database.New(ctx, "postgres", dsn)
		return err == nil
	}, 30*time.Second, 500*time.Millisecond)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.RunMigrations(ctx))
	require.NoError(t, db.RunMigrations(ctx))

	runStoreSuite(t, db)
}
