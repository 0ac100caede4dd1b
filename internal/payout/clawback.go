package payout

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/rewards-settlement/internal/chain"
	apperrors "github.com/rewards-settlement/internal/errors"
	"github.com/rewards-settlement/internal/logging"
	"github.com/rewards-settlement/internal/models"
	"github.com/rewards-settlement/internal/types"
)

// ERC-1155 TransferSingle(operator,from,to,id,value) event signature, the
// transfer shape emitted by builder NFT mints and purchases.
var transferSingleTopic = common.HexToHash("0xc3d58168c5ae7397731d063d5bbf3d657854427343f4c083240f7aacaa2d0f62")

// PurchaseStore looks up points-paid purchases by transaction hash.
// A nil result means the hash is unknown to the ledger.
type PurchaseStore interface {
	PurchaseByTxHash(ctx context.Context, txHash string) (*models.PurchaseEvent, error)
}

// BurnItem is one validated token burn inside a proposal.
type BurnItem struct {
	TxHash string `json:"txHash"`
	NftID  string `json:"nftId"`
	Wallet string `json:"wallet"`
	Amount int64  `json:"amount"`
}

// BurnProposal is a batched burn transaction prepared for a multi-signer
// wallet. It is proposed, never executed, by this service.
type BurnProposal struct {
	MultisigAddress string        `json:"multisigAddress"`
	ChainID         types.ChainID `json:"chainId"`
	Season          string        `json:"season"`
	Items           []BurnItem    `json:"items"`
	ProposedAt      time.Time     `json:"proposedAt"`
}

// ClawbackService validates suspected-fraudulent purchases and prepares burn
// proposals for them.
type ClawbackService struct {
	purchases PurchaseStore
	client    chain.Client
	multisig  string
	chainID   types.ChainID
	logger    *logging.Logger
}

// NewClawbackService creates a clawback service for one partner chain.
func NewClawbackService(purchases PurchaseStore, client chain.Client, multisig string, chainID types.ChainID, logger *logging.Logger) (*ClawbackService, error) {
	if purchases == nil || client == nil {
		return nil, fmt.Errorf("purchase store and chain client cannot be nil")
	}
	if !types.ValidAddress(multisig) {
		return nil, fmt.Errorf("invalid multisig address %q", multisig)
	}
	return &ClawbackService{
		purchases: purchases,
		client:    client,
		multisig:  types.NormalizeAddress(multisig),
		chainID:   chainID,
		logger:    logger.WithComponent("clawback"),
	}, nil
}

// ProposeBurn validates every suspected transaction hash and, only if all of
// them pass, returns a batched burn proposal for the multisig. Validation is
// all-or-nothing: one unknown hash, crypto-paid purchase or season mismatch
// rejects the whole batch before any transaction is proposed.
func (s *ClawbackService) ProposeBurn(ctx context.Context, txHashes []string, season string) (*BurnProposal, error) {
	if len(txHashes) == 0 {
		return nil, apperrors.NewValidationError("txHashes", "must not be empty")
	}

	items := make([]BurnItem, 0, len(txHashes))
	for _, hash := range txHashes {
		item, err := s.validateOne(ctx, hash, season)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}

	s.logger.WithFields(map[string]any{
		"season": season,
		"items":  len(items),
	}).Info("burn proposal prepared for multisig")

	return &BurnProposal{
		MultisigAddress: s.multisig,
		ChainID:         s.chainID,
		Season:          season,
		Items:           items,
		ProposedAt:      time.Now().UTC(),
	}, nil
}

func (s *ClawbackService) validateOne(ctx context.Context, hash, season string) (*BurnItem, error) {
	if !types.ValidTxHash(hash) {
		return nil, apperrors.NewValidationError("txHash", fmt.Sprintf("malformed hash %s", hash))
	}
	hash = types.NormalizeAddress(hash)

	purchase, err := s.purchases.PurchaseByTxHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if purchase == nil {
		return nil, apperrors.NewNotFoundError("purchase", hash)
	}
	if purchase.Payment != types.PaymentPoints {
		return nil, apperrors.NewValidationError("txHash",
			fmt.Sprintf("%s was paid in %s, only points purchases are clawed back", hash, purchase.Payment))
	}
	if purchase.Season != season {
		return nil, apperrors.NewValidationError("txHash",
			fmt.Sprintf("%s belongs to season %s, not %s", hash, purchase.Season, season))
	}

	receipt, err := s.client.TransactionReceipt(ctx, common.HexToHash(hash))
	if err != nil {
		return nil, err
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return nil, apperrors.NewValidationError("txHash", fmt.Sprintf("%s reverted on-chain", hash))
	}
	if !hasTransferEvent(receipt.Logs) {
		return nil, apperrors.NewValidationError("txHash", fmt.Sprintf("%s has no token transfer event", hash))
	}

	return &BurnItem{
		TxHash: hash,
		NftID:  purchase.NftID,
		Wallet: purchase.BuyerWallet,
		Amount: purchase.Amount,
	}, nil
}

func hasTransferEvent(logs []*ethtypes.Log) bool {
	for _, l := range logs {
		if len(l.Topics) > 0 && l.Topics[0] == transferSingleTopic {
			return true
		}
	}
	return false
}
