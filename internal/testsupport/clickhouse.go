package testsupport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"voicebroker/internal/adapters/clickhouse"
)

// ClickHouseTestHelper manages cleanup for ClickHouse integration tests.
type ClickHouseTestHelper struct {
	client *clickhouse.Client
}

// NewClickHouseTestHelper creates a ClickHouse client from the integration environment.
func NewClickHouseTestHelper(t *testing.T) *ClickHouseTestHelper {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client, err := clickhouse.NewClient(context.Background(), LoadClickHouseConfigFromEnv(t))
	if err != nil {
		t.Fatalf("failed to connect to clickhouse: %v", err)
	}

	t.Cleanup(func() { _ = client.Close() })
	return &ClickHouseTestHelper{client: client}
}

// TempTableName returns a unique table name that is dropped after the test.
func (h *ClickHouseTestHelper) TempTableName(t *testing.T, prefix string) string {
	t.Helper()

	table := fmt.Sprintf("%s_test_%d", prefix, time.Now().UnixNano())
	t.Cleanup(func() {
		_ = h.client.Exec(context.Background(), fmt.Sprintf("DROP TABLE IF EXISTS %s", table))
	})
	return table
}

// Client exposes the raw ClickHouse client for queries.
func (h *ClickHouseTestHelper) Client() *clickhouse.Client {
	return h.client
}
