// Package reconciler keeps the ledger's view of on-chain state current by
// scanning transaction history in bounded, resumable block windows.
package reconciler

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/rewards-settlement/internal/chain"
	"github.com/rewards-settlement/internal/logging"
	"github.com/rewards-settlement/internal/models"
	"github.com/rewards-settlement/internal/types"
)

// Store persists reconciliation output. CommitWindow must write the records
// and the watermark atomically: a crash mid-window is then always safe to
// retry from the last committed watermark.
type Store interface {
	LastPollEvent(ctx context.Context, subjectID string, chainID types.ChainID) (*models.PollEvent, error)
	CommitWindow(ctx context.Context, records []*models.OnchainTransactionRecord, event *models.PollEvent) error
}

// Analytics mirrors committed records into the analytics store. Best-effort:
// failures are logged, never propagated.
type Analytics interface {
	MirrorRecords(ctx context.Context, records []*models.OnchainTransactionRecord) error
}

// Request identifies one reconciliation run over a subject's block range.
type Request struct {
	SubjectID string
	Address   string
	ChainID   types.ChainID
	FromBlock uint64
	ToBlock   uint64
}

// Reconciler scans block windows for a subject address and commits
// normalized transaction records plus a watermark per window.
type Reconciler struct {
	clients   map[types.ChainID]chain.Client
	store     Store
	analytics Analytics
	pageSize  uint64
	logger    *logging.Logger
}

// Config holds reconciler configuration.
type Config struct {
	// PageSize is the block-window size per scan page. Default 900, sized
	// to stay under common RPC log-range limits.
	PageSize uint64
}

// New creates a reconciler over per-chain clients. The analytics mirror is
// optional and may be nil.
func New(cfg *Config, clients map[types.ChainID]chain.Client, store Store, analytics Analytics, logger *logging.Logger) (*Reconciler, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if len(clients) == 0 {
		return nil, fmt.Errorf("at least one chain client is required")
	}

	pageSize := cfg.PageSize
	if pageSize == 0 {
		pageSize = 900
	}

	return &Reconciler{
		clients:   clients,
		store:     store,
		analytics: analytics,
		pageSize:  pageSize,
		logger:    logger.WithComponent("reconciler"),
	}, nil
}

// Reconcile walks the requested block range in fixed-size windows, committing
// each window atomically before advancing. The scan resumes from the last
// committed watermark, so re-running after a crash or RPC failure never
// re-ingests committed rows and never skips blocks.
//
// An unsupported chain id is a terminal no-op for the call: logged, not
// retried. The dispatcher is expected to validate supported chains upfront.
func (r *Reconciler) Reconcile(ctx context.Context, req *Request) error {
	log := r.logger.WithFields(map[string]any{
		"subject": req.SubjectID,
		"chain":   req.ChainID.String(),
	})

	if !types.ValidAddress(req.Address) {
		return fmt.Errorf("invalid subject address: %s", req.Address)
	}
	client, ok := r.clients[req.ChainID]
	if !req.ChainID.Supported() || !ok {
		log.Warn("unsupported chain, skipping reconciliation")
		return nil
	}
	if req.ToBlock < req.FromBlock {
		return fmt.Errorf("toBlock %d is before fromBlock %d", req.ToBlock, req.FromBlock)
	}

	address := types.NormalizeAddress(req.Address)

	start := req.FromBlock
	last, err := r.store.LastPollEvent(ctx, req.SubjectID, req.ChainID)
	if err != nil {
		return fmt.Errorf("loading watermark: %w", err)
	}
	if last != nil && last.ToBlockNumber+1 > start {
		start = last.ToBlockNumber + 1
	}
	if start > req.ToBlock {
		log.Debugf("nothing to reconcile, watermark %d already past target %d", start-1, req.ToBlock)
		return nil
	}

	total := req.ToBlock - start + 1
	progressStep := total / 10
	var scanned uint64

	log.Infof("reconciling blocks %d..%d (page size %d)", start, req.ToBlock, r.pageSize)

	for from := start; from <= req.ToBlock; {
		to := from + r.pageSize - 1
		if to > req.ToBlock {
			to = req.ToBlock
		}

		windowStart := time.Now()
		records, err := r.scanWindow(ctx, client, req, address, from, to)
		if err != nil {
			// Watermark untouched, the next scheduled run resumes here.
			return fmt.Errorf("scanning window %d..%d: %w", from, to, err)
		}

		event := &models.PollEvent{
			ID:              uuid.NewString(),
			SubjectID:       req.SubjectID,
			ChainID:         req.ChainID,
			FromBlockNumber: from,
			ToBlockNumber:   to,
			ProcessedAt:     time.Now().UTC(),
			ProcessTime:     time.Since(windowStart),
		}

		// A watermark is written even for empty windows so ranges for a
		// subject stay contiguous and re-runs skip empty history.
		if err := r.store.CommitWindow(ctx, records, event); err != nil {
			return fmt.Errorf("committing window %d..%d: %w", from, to, err)
		}

		r.mirror(records, log)

		scanned += to - from + 1
		if progressStep > 0 && scanned%progressStep < (to-from+1) {
			log.Infof("reconciled %d/%d blocks", scanned, total)
		}

		from = to + 1
	}

	log.Infof("reconciliation complete: %d blocks", total)
	return nil
}

// scanWindow fetches the window's logs, deduplicates transaction hashes and
// normalizes one record per transaction. Receipt fetches are serialized; the
// client's rate limiter bounds the RPC burst.
func (r *Reconciler) scanWindow(ctx context.Context, client chain.Client, req *Request, address string, from, to uint64) ([]*models.OnchainTransactionRecord, error) {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{common.HexToAddress(address)},
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
	}

	logs, err := client.FilterLogs(ctx, query)
	if err != nil {
		return nil, err
	}

	// Deduplicate hashes preserving first-seen order.
	seen := make(map[common.Hash]bool)
	var hashes []common.Hash
	for _, l := range logs {
		if !seen[l.TxHash] {
			seen[l.TxHash] = true
			hashes = append(hashes, l.TxHash)
		}
	}

	records := make([]*models.OnchainTransactionRecord, 0, len(hashes))
	for _, hash := range hashes {
		record, err := r.normalizeTransaction(ctx, client, req, hash)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func (r *Reconciler) normalizeTransaction(ctx context.Context, client chain.Client, req *Request, hash common.Hash) (*models.OnchainTransactionRecord, error) {
	receipt, err := client.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("receipt %s: %w", hash.Hex(), err)
	}

	tx, pending, err := client.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", hash.Hex(), err)
	}
	if pending {
		return nil, fmt.Errorf("transaction %s unexpectedly pending", hash.Hex())
	}

	header, err := client.HeaderByNumber(ctx, receipt.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("header %d: %w", receipt.BlockNumber, err)
	}

	record := &models.OnchainTransactionRecord{
		SubjectID:   req.SubjectID,
		ChainID:     req.ChainID,
		TxHash:      types.NormalizeAddress(hash.Hex()),
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
		Timestamp:   int64(header.Time),
		CreatedAt:   time.Now().UTC(),
	}

	gasPrice := receipt.EffectiveGasPrice
	if gasPrice == nil {
		gasPrice = tx.GasPrice()
	}
	record.GasPrice = gasPrice.String()
	record.GasCost = new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), gasPrice).String()

	if receipt.Status == ethtypes.ReceiptStatusSuccessful {
		record.Status = types.StatusSuccess
	} else {
		record.Status = types.StatusFailed
	}

	if sender, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(tx.ChainId()), tx); err == nil {
		record.From = types.NormalizeAddress(sender.Hex())
	}
	if tx.To() != nil {
		record.To = types.NormalizeAddress(tx.To().Hex())
	}

	return record, nil
}

func (r *Reconciler) mirror(records []*models.OnchainTransactionRecord, log *logging.Logger) {
	if r.analytics == nil || len(records) == 0 {
		return
	}
	go func(records []*models.OnchainTransactionRecord) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := r.analytics.MirrorRecords(ctx, records); err != nil {
			log.WithError(err).Warn("failed to mirror records to analytics store")
		}
	}(records)
}
