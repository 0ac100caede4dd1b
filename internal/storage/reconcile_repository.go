package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rewards-settlement/internal/models"
	"github.com/rewards-settlement/internal/types"
)

func millisToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// ReconcileRepository persists reconciliation watermarks and normalized
// on-chain transaction records.
type ReconcileRepository struct {
	db *PostgresDB
}

// NewReconcileRepository creates a new reconciliation repository
func NewReconcileRepository(db *PostgresDB) *ReconcileRepository {
	return &ReconcileRepository{db: db}
}

// LastPollEvent returns the most recent watermark for a subject on a chain,
// or nil when the subject has never been scanned.
func (r *ReconcileRepository) LastPollEvent(ctx context.Context, subjectID string, chainID types.ChainID) (*models.PollEvent, error) {
	query := `
		SELECT id, subject_id, chain_id, from_block_number, to_block_number, processed_at, process_time_ms
		FROM poll_events
		WHERE subject_id = $1 AND chain_id = $2
		ORDER BY to_block_number DESC
		LIMIT 1
	`

	var event models.PollEvent
	var processTimeMs int64
	err := r.db.Pool().QueryRow(ctx, query, subjectID, int64(chainID)).Scan(
		&event.ID,
		&event.SubjectID,
		&event.ChainID,
		&event.FromBlockNumber,
		&event.ToBlockNumber,
		&event.ProcessedAt,
		&processTimeMs,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last poll event: %w", err)
	}

	event.ProcessTime = millisToDuration(processTimeMs)
	return &event, nil
}

// CommitWindow writes the window's transaction records and the watermark in
// one transaction. Records insert with ON CONFLICT DO NOTHING on the
// (subject, tx hash) key, so overlapping scans are harmless; the watermark
// only advances if every record landed.
func (r *ReconcileRepository) CommitWindow(ctx context.Context, records []*models.OnchainTransactionRecord, event *models.PollEvent) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck // rollback after commit is a no-op

	recordQuery := `
		INSERT INTO onchain_transactions (
			subject_id, chain_id, tx_hash, block_number, from_address, to_address,
			gas_used, gas_price, gas_cost, status, block_timestamp, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (subject_id, tx_hash) DO NOTHING
	`

	for _, record := range records {
		_, err := tx.Exec(ctx, recordQuery,
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
			return fmt.Errorf("failed to insert transaction record %s: %w", record.TxHash, err)
		}
	}

	eventQuery := `
		INSERT INTO poll_events (
			id, subject_id, chain_id, from_block_number, to_block_number, processed_at, process_time_ms
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = tx.Exec(ctx, eventQuery,
		event.ID,
		event.SubjectID,
		int64(event.ChainID),
		event.FromBlockNumber,
		event.ToBlockNumber,
		event.ProcessedAt,
		event.ProcessTime.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert poll event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit window: %w", err)
	}
	return nil
}
