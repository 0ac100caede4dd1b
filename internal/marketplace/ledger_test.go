package marketplace

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/rewards-settlement/internal/errors"
	"github.com/rewards-settlement/internal/logging"
	"github.com/rewards-settlement/internal/models"
	"github.com/rewards-settlement/internal/types"
)

const (
	buyerWallet  = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	sellerWallet = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	purchaseHash = "0xdd00000000000000000000000000000000000000000000000000000000000001"
)

type fakeLedgerStore struct {
	listings map[string]*models.Listing
	wallets  map[string]string

	executed    []*PurchaseRequest
	executeErr  error
	walletErr   error
	listingsErr error
}

func newFakeLedgerStore() *fakeLedgerStore {
	return &fakeLedgerStore{
		listings: make(map[string]*models.Listing),
		wallets:  make(map[string]string),
	}
}

func (s *fakeLedgerStore) GetListing(_ context.Context, listingID string) (*models.Listing, error) {
	if s.listingsErr != nil {
		return nil, s.listingsErr
	}
	return s.listings[listingID], nil
}

func (s *fakeLedgerStore) WalletBelongsTo(_ context.Context, wallet, accountID string) (bool, error) {
	if s.walletErr != nil {
		return false, s.walletErr
	}
	return s.wallets[wallet] == accountID, nil
}

func (s *fakeLedgerStore) ExecutePurchase(_ context.Context, req *PurchaseRequest) (*models.Listing, *models.PurchaseEvent, error) {
	if s.executeErr != nil {
		return nil, nil, s.executeErr
	}
	s.executed = append(s.executed, req)

	listing := s.listings[req.ListingID]
	now := time.Now().UTC()
	completed := *listing
	completed.Status = types.ListingCompleted
	completed.BuyerWallet = &req.BuyerWallet
	completed.CompletedAt = &now

	event := &models.PurchaseEvent{
		ID:          "purchase-1",
		ListingID:   req.ListingID,
		NftID:       listing.NftID,
		BuyerWallet: req.BuyerWallet,
		TxHash:      req.TxHash,
		Amount:      listing.Amount,
		Payment:     listing.Payment,
		Season:      listing.Season,
		CreatedAt:   now,
	}
	return &completed, event, nil
}

func openListing() *models.Listing {
	return &models.Listing{
		ID:           "listing-1",
		NftID:        "nft-42",
		SellerWallet: sellerWallet,
		Amount:       3,
		Price:        "150",
		Payment:      types.PaymentPoints,
		Season:       "S1",
		Status:       types.ListingOpen,
		CreatedAt:    time.Now().UTC(),
	}
}

func newTestLedger(t *testing.T, store Store) *Ledger {
	t.Helper()
	ledger, err := NewLedger(store, logging.NewLogger(logging.LevelError, logging.FormatText))
	require.NoError(t, err)
	return ledger
}

func TestTransferOnPurchase_Succeeds(t *testing.T) {
	store := newFakeLedgerStore()
	store.listings["listing-1"] = openListing()
	store.wallets[buyerWallet] = "account-1"
	ledger := newTestLedger(t, store)

	listing, event, err := ledger.TransferOnPurchase(context.Background(),
		"listing-1", "account-1", buyerWallet, purchaseHash)
	require.NoError(t, err)

	assert.Equal(t, types.ListingCompleted, listing.Status)
	require.NotNil(t, listing.BuyerWallet)
	assert.Equal(t, buyerWallet, *listing.BuyerWallet)
	assert.Equal(t, purchaseHash, event.TxHash)
	assert.Equal(t, int64(3), event.Amount)
}

func TestTransferOnPurchase_NormalizesInputs(t *testing.T) {
	store := newFakeLedgerStore()
	store.listings["listing-1"] = openListing()
	store.wallets[buyerWallet] = "account-1"
	ledger := newTestLedger(t, store)

	upperWallet := "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	_, _, err := ledger.TransferOnPurchase(context.Background(),
		"listing-1", "account-1", upperWallet, purchaseHash)
	require.NoError(t, err)

	require.Len(t, store.executed, 1)
	assert.Equal(t, buyerWallet, store.executed[0].BuyerWallet)
}

func TestTransferOnPurchase_MalformedInputs(t *testing.T) {
	ledger := newTestLedger(t, newFakeLedgerStore())

	_, _, err := ledger.TransferOnPurchase(context.Background(),
		"listing-1", "account-1", "bogus", purchaseHash)
	assert.True(t, apperrors.IsValidation(err))

	_, _, err = ledger.TransferOnPurchase(context.Background(),
		"listing-1", "account-1", buyerWallet, "bogus")
	assert.True(t, apperrors.IsValidation(err))
}

func TestTransferOnPurchase_WalletNotOwnedByAccount(t *testing.T) {
	store := newFakeLedgerStore()
	store.listings["listing-1"] = openListing()
	store.wallets[buyerWallet] = "someone-else"
	ledger := newTestLedger(t, store)

	_, _, err := ledger.TransferOnPurchase(context.Background(),
		"listing-1", "account-1", buyerWallet, purchaseHash)
	assert.True(t, apperrors.IsValidation(err))
	assert.Empty(t, store.executed)
}

func TestTransferOnPurchase_ListingMissing(t *testing.T) {
	store := newFakeLedgerStore()
	store.wallets[buyerWallet] = "account-1"
	ledger := newTestLedger(t, store)

	_, _, err := ledger.TransferOnPurchase(context.Background(),
		"listing-404", "account-1", buyerWallet, purchaseHash)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestTransferOnPurchase_ListingNotOpen(t *testing.T) {
	store := newFakeLedgerStore()
	completed := openListing()
	completed.Status = types.ListingCompleted
	store.listings["listing-1"] = completed
	store.wallets[buyerWallet] = "account-1"
	ledger := newTestLedger(t, store)

	_, _, err := ledger.TransferOnPurchase(context.Background(),
		"listing-1", "account-1", buyerWallet, purchaseHash)
	assert.True(t, apperrors.IsConflict(err))
	assert.Empty(t, store.executed)
}

func TestTransferOnPurchase_ExecuteConflictPropagates(t *testing.T) {
	store := newFakeLedgerStore()
	store.listings["listing-1"] = openListing()
	store.wallets[buyerWallet] = "account-1"
	store.executeErr = apperrors.NewConflictError("listing already completed")
	ledger := newTestLedger(t, store)

	// A concurrent buyer can win between the fast-path check and the
	// transaction; the loser sees the store's conflict.
	_, _, err := ledger.TransferOnPurchase(context.Background(),
		"listing-1", "account-1", buyerWallet, purchaseHash)
	assert.True(t, apperrors.IsConflict(err))
}

func TestTransferOnPurchase_StoreFailure(t *testing.T) {
	store := newFakeLedgerStore()
	store.walletErr = errors.New("db down")
	ledger := newTestLedger(t, store)

	_, _, err := ledger.TransferOnPurchase(context.Background(),
		"listing-1", "account-1", buyerWallet, purchaseHash)
	assert.Error(t, err)
}
