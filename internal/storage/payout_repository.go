package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/rewards-settlement/internal/errors"
	"github.com/rewards-settlement/internal/models"
	"github.com/rewards-settlement/internal/types"
)

// PayoutRepository persists payout contracts and recipient rows.
type PayoutRepository struct {
	db *PostgresDB
}

// NewPayoutRepository creates a new payout repository
func NewPayoutRepository(db *PostgresDB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

const payoutContractColumns = `
	id, week, partner_id, chain_id, contract_address, deploy_tx_hash, merkle_root,
	token_address, token_decimals, block_number, superseded_at, created_at
`

// ActiveContract returns the non-superseded contract for a (week, partner),
// or nil when none exists.
func (r *PayoutRepository) ActiveContract(ctx context.Context, week types.ISOWeek, partnerID string) (*models.PayoutContract, error) {
	query := `
		SELECT ` + payoutContractColumns + `
		FROM payout_contracts
		WHERE week = $1 AND partner_id = $2 AND superseded_at IS NULL
	`

	contract, err := r.scanContract(r.db.Pool().QueryRow(ctx, query, week.String(), partnerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active payout contract: %w", err)
	}
	return contract, nil
}

// ActiveContractExists reports whether a non-superseded contract exists for
// the (week, partner).
func (r *PayoutRepository) ActiveContractExists(ctx context.Context, week types.ISOWeek, partnerID string) (bool, error) {
	contract, err := r.ActiveContract(ctx, week, partnerID)
	if err != nil {
		return false, err
	}
	return contract != nil, nil
}

// ActiveContracts returns every non-superseded contract, the subject set the
// reconciliation worker scans.
func (r *PayoutRepository) ActiveContracts(ctx context.Context) ([]*models.PayoutContract, error) {
	query := `
		SELECT ` + payoutContractColumns + `
		FROM payout_contracts
		WHERE superseded_at IS NULL
		ORDER BY created_at ASC
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active payout contracts: %w", err)
	}
	defer rows.Close()

	var contracts []*models.PayoutContract
	for rows.Next() {
		contract, err := r.scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payout contract: %w", err)
		}
		contracts = append(contracts, contract)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payout contracts: %w", err)
	}
	return contracts, nil
}

// CreateWithPayouts writes the contract and all recipient rows in one
// transaction. The partial unique index on (week, partner_id) where
// superseded_at IS NULL is the idempotency guard; a violation surfaces as a
// conflict so concurrent creations lose cleanly.
func (r *PayoutRepository) CreateWithPayouts(ctx context.Context, contract *models.PayoutContract, payouts []*models.RewardPayout) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck // rollback after commit is a no-op

	contractQuery := `
		INSERT INTO payout_contracts (` + payoutContractColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = tx.Exec(ctx, contractQuery,
		contract.ID,
		contract.Week.String(),
		contract.PartnerID,
		int64(contract.ChainID),
		contract.ContractAddress,
		contract.DeployTxHash,
		contract.MerkleRoot,
		contract.TokenAddress,
		contract.TokenDecimals,
		contract.BlockNumber,
		contract.SupersededAt,
		contract.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewConflictError(
				fmt.Sprintf("payout contract already exists for week %s partner %s", contract.Week, contract.PartnerID))
		}
		return fmt.Errorf("failed to insert payout contract: %w", err)
	}

	payoutQuery := `
		INSERT INTO reward_payouts (
			id, contract_id, wallet_address, amount, leaf_index, claimed_at, claim_tx_hash, deleted_at, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for _, payout := range payouts {
		_, err := tx.Exec(ctx, payoutQuery,
			payout.ID,
			payout.ContractID,
			payout.WalletAddress,
			payout.Amount,
			payout.LeafIndex,
			payout.ClaimedAt,
			payout.ClaimTxHash,
			payout.DeletedAt,
			payout.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert reward payout for %s: %w", payout.WalletAddress, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit payout creation: %w", err)
	}
	return nil
}

// PayoutsForContract returns all recipient rows of a contract ordered by leaf
// index, the order the Merkle tree was built in.
func (r *PayoutRepository) PayoutsForContract(ctx context.Context, contractID string) ([]*models.RewardPayout, error) {
	query := `
		SELECT id, contract_id, wallet_address, amount, leaf_index, claimed_at, claim_tx_hash, deleted_at, created_at
		FROM reward_payouts
		WHERE contract_id = $1
		ORDER BY leaf_index ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reward payouts: %w", err)
	}
	defer rows.Close()

	return scanPayouts(rows)
}

// ClaimableReward is one unclaimed payout joined with its claim contract,
// everything a wallet needs to submit an on-chain claim.
type ClaimableReward struct {
	Payout          models.RewardPayout `json:"payout"`
	Week            types.ISOWeek       `json:"week"`
	PartnerID       string              `json:"partnerId"`
	ChainID         types.ChainID       `json:"chainId"`
	ContractAddress string              `json:"contractAddress"`
	MerkleRoot      string              `json:"merkleRoot"`
	TokenAddress    string              `json:"tokenAddress"`
	TokenDecimals   int                 `json:"tokenDecimals"`
}

// ClaimableByWallet returns the wallet's unclaimed payouts under active
// contracts, newest week first. Claimed, soft-deleted and superseded rows
// never appear.
func (r *PayoutRepository) ClaimableByWallet(ctx context.Context, wallet string) ([]*ClaimableReward, error) {
	if !types.ValidAddress(wallet) {
		return nil, apperrors.NewValidationError("wallet", "malformed address")
	}
	wallet = types.NormalizeAddress(wallet)

	query := `
		SELECT p.id, p.contract_id, p.wallet_address, p.amount, p.leaf_index,
			   p.claimed_at, p.claim_tx_hash, p.deleted_at, p.created_at,
			   c.week, c.partner_id, c.chain_id, c.contract_address, c.merkle_root,
			   c.token_address, c.token_decimals
		FROM reward_payouts p
		JOIN payout_contracts c ON c.id = p.contract_id
		WHERE p.wallet_address = $1
		  AND p.claimed_at IS NULL
		  AND p.deleted_at IS NULL
		  AND c.superseded_at IS NULL
		ORDER BY c.week DESC
	`

	rows, err := r.db.Pool().Query(ctx, query, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to query claimable payouts: %w", err)
	}
	defer rows.Close()

	var claimables []*ClaimableReward
	for rows.Next() {
		var c ClaimableReward
		var chainID int64
		if err := rows.Scan(
			&c.Payout.ID,
			&c.Payout.ContractID,
			&c.Payout.WalletAddress,
			&c.Payout.Amount,
			&c.Payout.LeafIndex,
			&c.Payout.ClaimedAt,
			&c.Payout.ClaimTxHash,
			&c.Payout.DeletedAt,
			&c.Payout.CreatedAt,
			&c.Week,
			&c.PartnerID,
			&chainID,
			&c.ContractAddress,
			&c.MerkleRoot,
			&c.TokenAddress,
			&c.TokenDecimals,
		); err != nil {
			return nil, fmt.Errorf("failed to scan claimable payout: %w", err)
		}
		c.ChainID = types.ChainID(chainID)
		claimables = append(claimables, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating claimable payouts: %w", err)
	}
	return claimables, nil
}

// MarkClaimed records a claim exactly once. The guarded update only touches
// an unclaimed, non-deleted row; zero rows affected means the payout was
// already claimed, deleted or never existed.
func (r *PayoutRepository) MarkClaimed(ctx context.Context, payoutID, claimTxHash string) error {
	if !types.ValidTxHash(claimTxHash) {
		return apperrors.NewValidationError("claimTxHash", "malformed transaction hash")
	}

	query := `
		UPDATE reward_payouts
		SET claimed_at = $2, claim_tx_hash = $3
		WHERE id = $1 AND claimed_at IS NULL AND deleted_at IS NULL
	`

	tag, err := r.db.Pool().Exec(ctx, query, payoutID, time.Now().UTC(), types.NormalizeAddress(claimTxHash))
	if err != nil {
		return fmt.Errorf("failed to mark payout claimed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewConflictError(fmt.Sprintf("payout %s is not claimable", payoutID))
	}
	return nil
}

// SupersedeContract marks a contract superseded, detaching it from the
// active (week, partner) slot so a corrected payout can be created.
func (r *PayoutRepository) SupersedeContract(ctx context.Context, contractID string) error {
	query := `
		UPDATE payout_contracts
		SET superseded_at = $2
		WHERE id = $1 AND superseded_at IS NULL
	`

	tag, err := r.db.Pool().Exec(ctx, query, contractID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to supersede payout contract: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewConflictError(fmt.Sprintf("contract %s is already superseded or missing", contractID))
	}
	return nil
}

func (r *PayoutRepository) scanContract(row pgx.Row) (*models.PayoutContract, error) {
	var contract models.PayoutContract
	var chainID int64
	err := row.Scan(
		&contract.ID,
		&contract.Week,
		&contract.PartnerID,
		&chainID,
		&contract.ContractAddress,
		&contract.DeployTxHash,
		&contract.MerkleRoot,
		&contract.TokenAddress,
		&contract.TokenDecimals,
		&contract.BlockNumber,
		&contract.SupersededAt,
		&contract.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	contract.ChainID = types.ChainID(chainID)
	return &contract, nil
}

func scanPayouts(rows pgx.Rows) ([]*models.RewardPayout, error) {
	var payouts []*models.RewardPayout
	for rows.Next() {
		var p models.RewardPayout
		if err := rows.Scan(
			&p.ID,
			&p.ContractID,
			&p.WalletAddress,
			&p.Amount,
			&p.LeafIndex,
			&p.ClaimedAt,
			&p.ClaimTxHash,
			&p.DeletedAt,
			&p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reward payout: %w", err)
		}
		payouts = append(payouts, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reward payouts: %w", err)
	}
	return payouts, nil
}
