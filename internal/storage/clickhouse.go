package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/rewards-settlement/internal/config"
	"github.com/rewards-settlement/internal/models"
)

// ClickHouseDB wraps the ClickHouse connection
type ClickHouseDB struct {
	conn driver.Conn
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(cfg *config.ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:      10 * time.Second,
		MaxOpenConns:     10,
		MaxIdleConns:     5,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Conn returns the underlying ClickHouse connection
func (db *ClickHouseDB) Conn() driver.Conn {
	return db.conn
}

// Ping checks if the database is reachable
func (db *ClickHouseDB) Ping(ctx context.Context) error {
	return db.conn.Ping(ctx)
}

// EnsureAnalyticsSchema creates the analytics tables if they do not exist.
func (db *ClickHouseDB) EnsureAnalyticsSchema(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS transaction_history (
			subject_id String,
			chain_id Int64,
			tx_hash String,
			block_number UInt64,
			from_address String,
			to_address String,
			gas_used UInt64,
			gas_price String,
			gas_cost String,
			status String,
			block_timestamp Int64,
			created_at DateTime
		)
		ENGINE = ReplacingMergeTree(created_at)
		PARTITION BY chain_id
		ORDER BY (subject_id, chain_id, tx_hash)
	`
	if err := db.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create transaction_history table: %w", err)
	}
	return nil
}

// AnalyticsRepository mirrors reconciled transaction records into ClickHouse
// for reporting queries. Postgres stays the canonical ledger; rows here can
// be rebuilt from it at any time.
type AnalyticsRepository struct {
	db *ClickHouseDB
}

// NewAnalyticsRepository creates a new analytics repository
func NewAnalyticsRepository(db *ClickHouseDB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// MirrorRecords batch-inserts reconciled records. The ReplacingMergeTree key
// absorbs replays of the same (subject, chain, hash).
func (r *AnalyticsRepository) MirrorRecords(ctx context.Context, records []*models.OnchainTransactionRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO transaction_history (
			subject_id, chain_id, tx_hash, block_number, from_address, to_address,
			gas_used, gas_price, gas_cost, status, block_timestamp, created_at
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, record := range records {
		err := batch.Append(
			record.SubjectID,
			int64(record.ChainID),
			record.TxHash,
			record.BlockNumber,
			record.From,
			record.To,
			record.GasUsed,
			record.GasPrice,
			record.GasCost,
			string(record.Status),
			record.Timestamp,
			record.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to append record %s to batch: %w", record.TxHash, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}
