package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"voicebroker/internal/domain/analytics"
	"voicebroker/internal/metrics"
	"voicebroker/pkg/clickhouse"
	"voicebroker/pkg/errors"
	"voicebroker/pkg/logger"
)

// Compile-time check
var _ analytics.Repository = (*SessionAnalyticsRepository)(nil)

// DefaultSessionAnalyticsTable is the production table name
const DefaultSessionAnalyticsTable = "session_analytics"

// SessionAnalyticsRepository implements analytics.Repository for ClickHouse.
// Inserts go through a batch writer.
type SessionAnalyticsRepository struct {
	conn        driver.Conn
	table       string
	batchWriter *clickhouse.BatchWriter[*analytics.SessionRecord]
	log         *logger.Logger
}

// NewSessionAnalyticsRepository creates the repository. An empty table uses DefaultSessionAnalyticsTable.
func NewSessionAnalyticsRepository(conn driver.Conn, table string) *SessionAnalyticsRepository {
	if table == "" {
		table = DefaultSessionAnalyticsTable
	}

	repo := &SessionAnalyticsRepository{
		conn:  conn,
		table: table,
		log:   logger.Get().With("component", "session_analytics"),
	}

	repo.batchWriter = clickhouse.NewBatchWriter(clickhouse.BatchWriterConfig[*analytics.SessionRecord]{
		FlushFunc:    repo.flushBatch,
		TableName:    table,
		MaxBatchSize: 500,
		MaxAge:       5 * time.Second,
	})

	return repo
}

// EnsureSchema creates the table when missing
func (r *SessionAnalyticsRepository) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			event_id String,
			session_id String,
			user_id String,
			agent_id LowCardinality(String),
			client_type LowCardinality(String),
			status LowCardinality(String),
			reason LowCardinality(String),
			start_time DateTime64(3, 'UTC'),
			end_time DateTime64(3, 'UTC'),
			duration_seconds UInt32,
			usage_date String,
			created_at DateTime64(3, 'UTC')
		) ENGINE = ReplacingMergeTree(created_at)
		PARTITION BY toYYYYMM(end_time)
		ORDER BY (agent_id, end_time, session_id)`, r.table)

	if err := r.conn.Exec(ctx, query); err != nil {
		return errors.Wrapf(err, "failed to create table %s", r.table)
	}
	return nil
}

// Start begins the background flush loop
func (r *SessionAnalyticsRepository) Start(ctx context.Context) {
	r.batchWriter.Start(ctx)
}

// Stop flushes what is buffered and stops the flush loop
func (r *SessionAnalyticsRepository) Stop(ctx context.Context) error {
	return r.batchWriter.Stop(ctx)
}

// Flush writes buffered rows now
func (r *SessionAnalyticsRepository) Flush(ctx context.Context) error {
	return r.batchWriter.Flush(ctx)
}

// Store buffers a record
func (r *SessionAnalyticsRepository) Store(ctx context.Context, rec *analytics.SessionRecord) error {
	return r.batchWriter.Add(ctx, rec)
}

func (r *SessionAnalyticsRepository) flushBatch(ctx context.Context, batch []*analytics.SessionRecord) (err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("clickhouse", r.table+".insert", time.Since(start), err) }()

	query := fmt.Sprintf(`
		INSERT INTO %s (
			event_id, session_id, user_id, agent_id, client_type, status, reason,
			start_time, end_time, duration_seconds, usage_date, created_at
		)`, r.table)

	stmt, err := r.conn.PrepareBatch(ctx, query)
	if err != nil {
		return errors.Wrap(err, "failed to prepare batch")
	}
	defer stmt.Close()

	for _, rec := range batch {
		err = stmt.Append(
			rec.EventID, rec.SessionID, rec.UserID, rec.AgentID, rec.ClientType, rec.Status, rec.Reason,
			rec.StartTime, rec.EndTime, rec.DurationSeconds, rec.UsageDate, rec.CreatedAt,
		)
		if err != nil {
			return errors.Wrap(err, "failed to append to batch")
		}
	}

	if err = stmt.Send(); err != nil {
		return errors.Wrap(err, "failed to send batch")
	}

	r.log.Debugw("Batch inserted session analytics", "rows", len(batch), "duration", time.Since(start))
	return nil
}

// AgentUsage returns per-agent totals for sessions ended in [from, to)
func (r *SessionAnalyticsRepository) AgentUsage(ctx context.Context, from, to time.Time) (rows []analytics.AgentUsage, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("clickhouse", r.table+".agent_usage", time.Since(start), err) }()

	query := fmt.Sprintf(`
		SELECT
			agent_id,
			count() AS sessions,
			sum(toUInt64(duration_seconds)) AS total_seconds,
			avg(duration_seconds) AS avg_seconds
		FROM %s FINAL
		WHERE end_time >= ? AND end_time < ?
		GROUP BY agent_id
		ORDER BY total_seconds DESC`, r.table)

	if err = r.conn.Select(ctx, &rows, query, from, to); err != nil {
		return nil, errors.Wrap(err, "failed to query agent usage")
	}

	return rows, nil
}
