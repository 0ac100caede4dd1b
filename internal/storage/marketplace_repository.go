package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	apperrors "github.com/rewards-settlement/internal/errors"
	"github.com/rewards-settlement/internal/marketplace"
	"github.com/rewards-settlement/internal/models"
	"github.com/rewards-settlement/internal/types"
)

// MarketplaceRepository persists listings, purchase events and NFT balances.
type MarketplaceRepository struct {
	db *PostgresDB
}

// NewMarketplaceRepository creates a new marketplace repository
func NewMarketplaceRepository(db *PostgresDB) *MarketplaceRepository {
	return &MarketplaceRepository{db: db}
}

const listingColumns = `
	id, nft_id, seller_wallet, amount, price, payment, season, status, buyer_wallet, completed_at, created_at
`

// GetListing returns a listing by id, or nil when it does not exist.
func (r *MarketplaceRepository) GetListing(ctx context.Context, listingID string) (*models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = $1`

	listing, err := scanListing(r.db.Pool().QueryRow(ctx, query, listingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return listing, nil
}

// WalletBelongsTo reports whether the wallet is registered to the account.
func (r *MarketplaceRepository) WalletBelongsTo(ctx context.Context, wallet, accountID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM account_wallets WHERE wallet_address = $1 AND account_id = $2)`

	var exists bool
	err := r.db.Pool().QueryRow(ctx, query, types.NormalizeAddress(wallet), accountID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check wallet ownership: %w", err)
	}
	return exists, nil
}

// ExecutePurchase completes a listing purchase atomically: it claims the
// listing with a guarded update on the open state, moves the NFT balance
// from seller to buyer, and records the purchase event. Any failure rolls
// the whole transfer back, so total supply per NFT is conserved.
func (r *MarketplaceRepository) ExecutePurchase(ctx context.Context, req *marketplace.PurchaseRequest) (*models.Listing, *models.PurchaseEvent, error) {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck // rollback after commit is a no-op

	now := time.Now().UTC()
	buyer := types.NormalizeAddress(req.BuyerWallet)

	// Claim the listing. Exactly one concurrent buyer can flip open to
	// completed; everyone else sees zero rows affected.
	claimQuery := `
		UPDATE listings
		SET status = $2, buyer_wallet = $3, completed_at = $4
		WHERE id = $1 AND status = $5
		RETURNING ` + listingColumns

	listing, err := scanListing(tx.QueryRow(ctx, claimQuery,
		req.ListingID,
		string(types.ListingCompleted),
		buyer,
		now,
		string(types.ListingOpen),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, apperrors.NewConflictError(
				fmt.Sprintf("listing %s is no longer open", req.ListingID))
		}
		return nil, nil, fmt.Errorf("failed to claim listing: %w", err)
	}

	// Debit the seller. The balance guard keeps holdings non-negative even
	// if the seller's balance drifted below the listed amount.
	debitQuery := `
		UPDATE nft_balances
		SET balance = balance - $3, updated_at = $4
		WHERE nft_id = $1 AND wallet_address = $2 AND balance >= $3
	`
	tag, err := tx.Exec(ctx, debitQuery, listing.NftID, listing.SellerWallet, listing.Amount, now)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to debit seller balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, nil, apperrors.NewConflictError(
			fmt.Sprintf("seller %s holds fewer than %d of nft %s", listing.SellerWallet, listing.Amount, listing.NftID))
	}

	creditQuery := `
		INSERT INTO nft_balances (nft_id, wallet_address, balance, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (nft_id, wallet_address) DO UPDATE SET
			balance = nft_balances.balance + EXCLUDED.balance,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := tx.Exec(ctx, creditQuery, listing.NftID, buyer, listing.Amount, now); err != nil {
		return nil, nil, fmt.Errorf("failed to credit buyer balance: %w", err)
	}

	event := &models.PurchaseEvent{
		ID:          uuid.NewString(),
		ListingID:   listing.ID,
		NftID:       listing.NftID,
		BuyerWallet: buyer,
		TxHash:      req.TxHash,
		Amount:      listing.Amount,
		Payment:     listing.Payment,
		Season:      listing.Season,
		CreatedAt:   now,
	}

	eventQuery := `
		INSERT INTO purchase_events (
			id, listing_id, nft_id, buyer_wallet, tx_hash, amount, payment, season, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = tx.Exec(ctx, eventQuery,
		event.ID,
		event.ListingID,
		event.NftID,
		event.BuyerWallet,
		event.TxHash,
		event.Amount,
		string(event.Payment),
		event.Season,
		event.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, nil, apperrors.NewConflictError(
				fmt.Sprintf("transaction %s is already recorded as a purchase", req.TxHash))
		}
		return nil, nil, fmt.Errorf("failed to insert purchase event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit purchase: %w", err)
	}
	return listing, event, nil
}

// PurchaseByTxHash returns the purchase event recorded for a transaction
// hash, or nil when the hash is unknown.
func (r *MarketplaceRepository) PurchaseByTxHash(ctx context.Context, txHash string) (*models.PurchaseEvent, error) {
	query := `
		SELECT id, listing_id, nft_id, buyer_wallet, tx_hash, amount, payment, season, created_at
		FROM purchase_events
		WHERE tx_hash = $1
	`

	var event models.PurchaseEvent
	var payment string
	err := r.db.Pool().QueryRow(ctx, query, types.NormalizeAddress(txHash)).Scan(
		&event.ID,
		&event.ListingID,
		&event.NftID,
		&event.BuyerWallet,
		&event.TxHash,
		&event.Amount,
		&payment,
		&event.Season,
		&event.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get purchase event: %w", err)
	}
	event.Payment = types.PaymentMethod(payment)
	return &event, nil
}

func scanListing(row pgx.Row) (*models.Listing, error) {
	var listing models.Listing
	var payment, status string
	err := row.Scan(
		&listing.ID,
		&listing.NftID,
		&listing.SellerWallet,
		&listing.Amount,
		&listing.Price,
		&payment,
		&listing.Season,
		&status,
		&listing.BuyerWallet,
		&listing.CompletedAt,
		&listing.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	listing.Payment = types.PaymentMethod(payment)
	listing.Status = types.ListingStatus(status)
	return &listing, nil
}
