// Package marketplace applies atomic ownership-ledger updates for
// secondary-market NFT purchases.
package marketplace

import (
	"context"
	"fmt"

	apperrors "github.com/rewards-settlement/internal/errors"
	"github.com/rewards-settlement/internal/logging"
	"github.com/rewards-settlement/internal/models"
	"github.com/rewards-settlement/internal/types"
)

// PurchaseRequest carries the validated inputs of a purchase execution.
type PurchaseRequest struct {
	ListingID   string
	BuyerWallet string
	TxHash      string
}

// Store is the transactional ledger behind the ownership ledger.
//
// ExecutePurchase must, in one storage transaction: complete the listing with
// a guarded update on the open state, record the purchase event, decrement
// the seller's balance and upsert-increment the buyer's. The single
// transaction is what conserves total supply under concurrent purchases; the
// per-listing completion guard is what prevents double-selling one listing.
type Store interface {
	GetListing(ctx context.Context, listingID string) (*models.Listing, error)
	WalletBelongsTo(ctx context.Context, wallet, accountID string) (bool, error)
	ExecutePurchase(ctx context.Context, req *PurchaseRequest) (*models.Listing, *models.PurchaseEvent, error)
}

// Ledger validates and applies secondary-market purchases.
type Ledger struct {
	store  Store
	logger *logging.Logger
}

// NewLedger creates an ownership ledger.
func NewLedger(store Store, logger *logging.Logger) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	return &Ledger{store: store, logger: logger.WithComponent("ownership-ledger")}, nil
}

// TransferOnPurchase completes a listing purchase. Preconditions are checked
// before any side effect; the balance mutation itself happens inside the
// store transaction so it either fully applies or not at all.
func (l *Ledger) TransferOnPurchase(ctx context.Context, listingID, buyerAccountID, buyerWallet, txHash string) (*models.Listing, *models.PurchaseEvent, error) {
	if !types.ValidAddress(buyerWallet) {
		return nil, nil, apperrors.NewValidationError("buyerWallet", "malformed address")
	}
	if !types.ValidTxHash(txHash) {
		return nil, nil, apperrors.NewValidationError("txHash", "malformed transaction hash")
	}
	buyerWallet = types.NormalizeAddress(buyerWallet)

	owns, err := l.store.WalletBelongsTo(ctx, buyerWallet, buyerAccountID)
	if err != nil {
		return nil, nil, err
	}
	if !owns {
		return nil, nil, apperrors.NewValidationError("buyerWallet",
			fmt.Sprintf("wallet %s does not belong to account %s", buyerWallet, buyerAccountID))
	}

	listing, err := l.store.GetListing(ctx, listingID)
	if err != nil {
		return nil, nil, err
	}
	if listing == nil {
		return nil, nil, apperrors.NewNotFoundError("listing", listingID)
	}
	if listing.Status != types.ListingOpen {
		return nil, nil, apperrors.NewConflictError(
			fmt.Sprintf("listing %s is %s", listingID, listing.Status))
	}

	// The open-state check above is a fast path; ExecutePurchase re-checks
	// under the transaction, so two concurrent buyers cannot both win.
	completed, event, err := l.store.ExecutePurchase(ctx, &PurchaseRequest{
		ListingID:   listingID,
		BuyerWallet: buyerWallet,
		TxHash:      types.NormalizeAddress(txHash),
	})
	if err != nil {
		return nil, nil, err
	}

	l.logger.WithFields(map[string]any{
		"listing": listingID,
		"nft":     completed.NftID,
		"buyer":   buyerWallet,
		"amount":  completed.Amount,
	}).Info("listing purchased, balances transferred")

	return completed, event, nil
}
