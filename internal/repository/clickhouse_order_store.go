package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/domain/models"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/domain/repository"
)

// execer is the subset of *sql.DB the store needs.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ClickHouseOrderStore mirrors ingested orders into a MergeTree table for
// ad-hoc analysis next to the CSV file.
type ClickHouseOrderStore struct {
	db    execer
	table string
	now   func() time.Time
}

// NewClickHouseOrderStore creates the store. The table must exist, see
// OrderTableSchema.
func NewClickHouseOrderStore(db *sql.DB, table string) *ClickHouseOrderStore {
	return newClickHouseOrderStore(db, table)
}

func newClickHouseOrderStore(db execer, table string) *ClickHouseOrderStore {
	return &ClickHouseOrderStore{db: db, table: table, now: time.Now}
}

// OrderTableSchema returns the DDL for the consumed orders table.
func OrderTableSchema(database, table string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
	ingested_at DateTime64(3),
	store_id String,
	total_price Decimal(18, 4),
	kafka_partition Int32,
	kafka_offset Int64
) ENGINE = ReplacingMergeTree
ORDER BY (kafka_partition, kafka_offset)`, database, table),
	}
}

// Append inserts one row. Redelivered messages share (partition, offset)
// and collapse on merge.
func (s *ClickHouseOrderStore) Append(ctx context.Context, e *models.OrderEvent) error {
	q := fmt.Sprintf("INSERT INTO %s (ingested_at, store_id, total_price, kafka_partition, kafka_offset) VALUES (?, ?, ?, ?, ?)", s.table)
	if _, err := s.db.ExecContext(ctx, q, s.now().UTC(), e.StoreID, e.TotalPrice, int32(e.Partition), e.Offset); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// Close is a no-op; the connection is owned by pkg/clickhouse.Client.
func (s *ClickHouseOrderStore) Close() error { return nil }

var _ repository.OrderStore = (*ClickHouseOrderStore)(nil)
