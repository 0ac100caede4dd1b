package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/rewards-settlement/internal/errors"
	"github.com/rewards-settlement/internal/models"
	"github.com/rewards-settlement/internal/types"
)

// ContributionRepository reads the weekly gem aggregates, builder directory
// and NFT holdings consumed by the reward computation.
type ContributionRepository struct {
	db *PostgresDB
}

// NewContributionRepository creates a new contribution repository
func NewContributionRepository(db *PostgresDB) *ContributionRepository {
	return &ContributionRepository{db: db}
}

// ListApprovedForWeek returns the approved, non-deleted gem aggregates for a
// week. Unapproved and soft-deleted builders never enter a distribution.
func (r *ContributionRepository) ListApprovedForWeek(ctx context.Context, week types.ISOWeek) ([]*models.WeeklyContribution, error) {
	query := `
		SELECT builder_id, week, gems, commit_gems, pr_gems, streak_gems, first_pr_gems,
			   approved, deleted_at, created_at
		FROM weekly_contributions
		WHERE week = $1 AND approved = TRUE AND deleted_at IS NULL
		ORDER BY gems DESC, builder_id ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, week.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query weekly contributions: %w", err)
	}
	defer rows.Close()

	var contributions []*models.WeeklyContribution
	for rows.Next() {
		var c models.WeeklyContribution
		if err := rows.Scan(
			&c.BuilderID,
			&c.Week,
			&c.Gems,
			&c.CommitGems,
			&c.PRGems,
			&c.StreakGems,
			&c.FirstPRGems,
			&c.Approved,
			&c.DeletedAt,
			&c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan weekly contribution: %w", err)
		}
		contributions = append(contributions, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating weekly contributions: %w", err)
	}
	return contributions, nil
}

// Wallet resolves a builder's payout wallet address.
func (r *ContributionRepository) Wallet(ctx context.Context, builderID string) (string, error) {
	query := `SELECT wallet_address FROM builders WHERE id = $1 AND deleted_at IS NULL`

	var wallet string
	err := r.db.Pool().QueryRow(ctx, query, builderID).Scan(&wallet)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperrors.NewNotFoundError("builder", builderID)
		}
		return "", fmt.Errorf("failed to get builder wallet: %w", err)
	}
	return wallet, nil
}

// StatsForBuilder returns a builder's NFT minted supply and per-scout
// holdings, or nil when the builder has no NFT. A builder without an NFT
// still earns; the full reward just goes to the builder wallet.
func (r *ContributionRepository) StatsForBuilder(ctx context.Context, builderID string) (*models.BuilderNFTStats, error) {
	query := `SELECT nft_id, minted_supply FROM builder_nfts WHERE builder_id = $1`

	var nftID string
	var mintedSupply int64
	err := r.db.Pool().QueryRow(ctx, query, builderID).Scan(&nftID, &mintedSupply)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get builder nft: %w", err)
	}

	stats := &models.BuilderNFTStats{
		BuilderID:    builderID,
		MintedSupply: mintedSupply,
		Holdings:     make(map[string]int64),
	}

	holdingsQuery := `
		SELECT wallet_address, balance
		FROM nft_balances
		WHERE nft_id = $1 AND balance > 0
	`
	rows, err := r.db.Pool().Query(ctx, holdingsQuery, nftID)
	if err != nil {
		return nil, fmt.Errorf("failed to query nft holdings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var wallet string
		var balance int64
		if err := rows.Scan(&wallet, &balance); err != nil {
			return nil, fmt.Errorf("failed to scan nft holding: %w", err)
		}
		stats.Holdings[types.NormalizeAddress(wallet)] = balance
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nft holdings: %w", err)
	}
	return stats, nil
}

// UpsertContribution writes or replaces a builder's weekly aggregate. The
// aggregation jobs call this as weeks close; replays overwrite in place.
func (r *ContributionRepository) UpsertContribution(ctx context.Context, c *models.WeeklyContribution) error {
	if err := c.Week.Validate(); err != nil {
		return apperrors.NewValidationError("week", err.Error())
	}

	query := `
		INSERT INTO weekly_contributions (
			builder_id, week, gems, commit_gems, pr_gems, streak_gems, first_pr_gems, approved, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (builder_id, week) DO UPDATE SET
			gems = EXCLUDED.gems,
			commit_gems = EXCLUDED.commit_gems,
			pr_gems = EXCLUDED.pr_gems,
			streak_gems = EXCLUDED.streak_gems,
			first_pr_gems = EXCLUDED.first_pr_gems,
			approved = EXCLUDED.approved
	`

	_, err := r.db.Pool().Exec(ctx, query,
		c.BuilderID,
		c.Week.String(),
		c.Gems,
		c.CommitGems,
		c.PRGems,
		c.StreakGems,
		c.FirstPRGems,
		c.Approved,
		c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert weekly contribution: %w", err)
	}
	return nil
}
