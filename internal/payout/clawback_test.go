package payout

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/rewards-settlement/internal/errors"
	"github.com/rewards-settlement/internal/logging"
	"github.com/rewards-settlement/internal/models"
	"github.com/rewards-settlement/internal/types"
)

const (
	multisigAddress = "0x5555555555555555555555555555555555555555"
	pointsTxHash    = "0x1100000000000000000000000000000000000000000000000000000000000001"
	cryptoTxHash    = "0x2200000000000000000000000000000000000000000000000000000000000002"
	oldSeasonTxHash = "0x3300000000000000000000000000000000000000000000000000000000000003"
	unknownTxHash   = "0x4400000000000000000000000000000000000000000000000000000000000004"
)

type fakePurchaseStore struct {
	purchases map[string]*models.PurchaseEvent
	err       error
}

func (s *fakePurchaseStore) PurchaseByTxHash(_ context.Context, txHash string) (*models.PurchaseEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.purchases[txHash], nil
}

// clawbackChainClient answers receipt lookups from a per-hash map. Hashes with
// no entry fail the lookup.
type clawbackChainClient struct {
	receipts map[string]*ethtypes.Receipt
}

func (c *clawbackChainClient) TransactionReceipt(_ context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	receipt, ok := c.receipts[strings.ToLower(hash.Hex())]
	if !ok {
		return nil, errors.New("receipt not found")
	}
	return receipt, nil
}

func (c *clawbackChainClient) FilterLogs(context.Context, ethereum.FilterQuery) ([]ethtypes.Log, error) {
	return nil, errors.New("not implemented")
}

func (c *clawbackChainClient) TransactionByHash(context.Context, common.Hash) (*ethtypes.Transaction, bool, error) {
	return nil, false, errors.New("not implemented")
}

func (c *clawbackChainClient) HeaderByNumber(context.Context, *big.Int) (*ethtypes.Header, error) {
	return nil, errors.New("not implemented")
}

func (c *clawbackChainClient) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (c *clawbackChainClient) BlockNumber(context.Context) (uint64, error) {
	return 0, errors.New("not implemented")
}

func purchaseEvent(txHash string, payment types.PaymentMethod, season string) *models.PurchaseEvent {
	return &models.PurchaseEvent{
		ID:          "purchase-" + txHash[:6],
		ListingID:   "listing-1",
		NftID:       "nft-42",
		BuyerWallet: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		TxHash:      txHash,
		Amount:      2,
		Payment:     payment,
		Season:      season,
		CreatedAt:   time.Now().UTC(),
	}
}

func successReceipt(withTransfer bool) *ethtypes.Receipt {
	receipt := &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful}
	if withTransfer {
		receipt.Logs = []*ethtypes.Log{{Topics: []common.Hash{transferSingleTopic}}}
	}
	return receipt
}

func newTestClawback(t *testing.T, purchases PurchaseStore, client *clawbackChainClient) *ClawbackService {
	t.Helper()
	svc, err := NewClawbackService(purchases, client, multisigAddress, types.ChainBase,
		logging.NewLogger(logging.LevelError, logging.FormatText))
	require.NoError(t, err)
	return svc
}

func TestProposeBurn_Succeeds(t *testing.T) {
	store := &fakePurchaseStore{purchases: map[string]*models.PurchaseEvent{
		pointsTxHash: purchaseEvent(pointsTxHash, types.PaymentPoints, "S1"),
	}}
	client := &clawbackChainClient{receipts: map[string]*ethtypes.Receipt{
		pointsTxHash: successReceipt(true),
	}}
	svc := newTestClawback(t, store, client)

	proposal, err := svc.ProposeBurn(context.Background(), []string{pointsTxHash}, "S1")
	require.NoError(t, err)

	assert.Equal(t, multisigAddress, proposal.MultisigAddress)
	assert.Equal(t, types.ChainBase, proposal.ChainID)
	assert.Equal(t, "S1", proposal.Season)
	require.Len(t, proposal.Items, 1)
	assert.Equal(t, "nft-42", proposal.Items[0].NftID)
	assert.Equal(t, int64(2), proposal.Items[0].Amount)
}

func TestProposeBurn_AllOrNothing(t *testing.T) {
	store := &fakePurchaseStore{purchases: map[string]*models.PurchaseEvent{
		pointsTxHash: purchaseEvent(pointsTxHash, types.PaymentPoints, "S1"),
	}}
	client := &clawbackChainClient{receipts: map[string]*ethtypes.Receipt{
		pointsTxHash: successReceipt(true),
	}}
	svc := newTestClawback(t, store, client)

	// One unknown hash rejects the entire batch, the valid hash included.
	proposal, err := svc.ProposeBurn(context.Background(), []string{pointsTxHash, unknownTxHash}, "S1")
	assert.Nil(t, proposal)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestProposeBurn_RejectsCryptoPaid(t *testing.T) {
	store := &fakePurchaseStore{purchases: map[string]*models.PurchaseEvent{
		cryptoTxHash: purchaseEvent(cryptoTxHash, types.PaymentCrypto, "S1"),
	}}
	svc := newTestClawback(t, store, &clawbackChainClient{})

	_, err := svc.ProposeBurn(context.Background(), []string{cryptoTxHash}, "S1")
	assert.True(t, apperrors.IsValidation(err))
}

func TestProposeBurn_RejectsSeasonMismatch(t *testing.T) {
	store := &fakePurchaseStore{purchases: map[string]*models.PurchaseEvent{
		oldSeasonTxHash: purchaseEvent(oldSeasonTxHash, types.PaymentPoints, "S1"),
	}}
	svc := newTestClawback(t, store, &clawbackChainClient{})

	_, err := svc.ProposeBurn(context.Background(), []string{oldSeasonTxHash}, "S2")
	assert.True(t, apperrors.IsValidation(err))
}

func TestProposeBurn_RejectsRevertedTransaction(t *testing.T) {
	store := &fakePurchaseStore{purchases: map[string]*models.PurchaseEvent{
		pointsTxHash: purchaseEvent(pointsTxHash, types.PaymentPoints, "S1"),
	}}
	client := &clawbackChainClient{receipts: map[string]*ethtypes.Receipt{
		pointsTxHash: {Status: ethtypes.ReceiptStatusFailed},
	}}
	svc := newTestClawback(t, store, client)

	_, err := svc.ProposeBurn(context.Background(), []string{pointsTxHash}, "S1")
	assert.True(t, apperrors.IsValidation(err))
}

func TestProposeBurn_RejectsMissingTransferEvent(t *testing.T) {
	store := &fakePurchaseStore{purchases: map[string]*models.PurchaseEvent{
		pointsTxHash: purchaseEvent(pointsTxHash, types.PaymentPoints, "S1"),
	}}
	client := &clawbackChainClient{receipts: map[string]*ethtypes.Receipt{
		pointsTxHash: successReceipt(false),
	}}
	svc := newTestClawback(t, store, client)

	_, err := svc.ProposeBurn(context.Background(), []string{pointsTxHash}, "S1")
	assert.True(t, apperrors.IsValidation(err))
}

func TestProposeBurn_RejectsMalformedHashAndEmptyBatch(t *testing.T) {
	svc := newTestClawback(t, &fakePurchaseStore{}, &clawbackChainClient{})

	_, err := svc.ProposeBurn(context.Background(), nil, "S1")
	assert.True(t, apperrors.IsValidation(err))

	_, err = svc.ProposeBurn(context.Background(), []string{"bogus"}, "S1")
	assert.True(t, apperrors.IsValidation(err))
}

func TestNewClawbackService_InvalidMultisig(t *testing.T) {
	_, err := NewClawbackService(&fakePurchaseStore{}, &clawbackChainClient{}, "bogus", types.ChainBase,
		logging.NewLogger(logging.LevelError, logging.FormatText))
	assert.Error(t, err)
}
