package postgres

import (
	"context"
	"sync"
	"testing"

	"voicebroker/internal/testsupport"
)

var migrateOnce sync.Once

// newTestDB returns a rolled-back transaction on a migrated database.
// Skips when the integration environment is not configured.
func newTestDB(t *testing.T) *testsupport.PostgresTestHelper {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	helper := testsupport.NewTestPostgres(t)

	var err error
	migrateOnce.Do(func() {
		err = RunMigrations(context.Background(), helper.DB())
	})
	if err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	return helper
}
