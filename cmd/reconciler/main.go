// Package main provides the reconciliation worker: it walks every active
// payout contract's on-chain history forward to the current head.
package main

import (
	"context"
	"flag"
	"time"

	"github.com/rewards-settlement/internal/chain"
	"github.com/rewards-settlement/internal/config"
	"github.com/rewards-settlement/internal/logging"
	"github.com/rewards-settlement/internal/reconciler"
	"github.com/rewards-settlement/internal/storage"
	"github.com/rewards-settlement/internal/types"
)

func main() {
	var (
		interval = flag.Duration("interval", 5*time.Minute, "delay between reconciliation sweeps (0 runs once)")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Fatal("Failed to load configuration")
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	// Analytics mirroring is best-effort; a missing ClickHouse only loses
	// the reporting copy, never the canonical ledger rows.
	var analytics reconciler.Analytics
	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Warn("ClickHouse unavailable, reconciling without analytics mirror")
	} else {
		defer clickhouse.Close() // nolint:errcheck // shutdown path
		analytics = storage.NewAnalyticsRepository(clickhouse)
	}

	clients := make(map[types.ChainID]chain.Client)
	for chainID, chainCfg := range cfg.Chains.Chains {
		if chainCfg.RPCURL == "" {
			logger.WithField("chain", chainID.String()).Warn("Skipping chain: no RPC endpoint configured")
			continue
		}
		client, err := chain.NewEthClient(&chain.EthClientConfig{
			ChainID:    chainID,
			RPCURL:     chainCfg.RPCURL,
			RPCTimeout: cfg.Reconciler.RPCTimeout,
			RatePerSec: cfg.Reconciler.RPCRateLimit,
		})
		if err != nil {
			logger.WithError(err).WithField("chain", chainID.String()).Warn("Failed to create chain client")
			continue
		}
		defer client.Close()
		clients[chainID] = client
	}
	if len(clients) == 0 {
		logger.Fatal("No chain clients configured, nothing to reconcile")
	}

	reconcileRepo := storage.NewReconcileRepository(postgres)
	payoutRepo := storage.NewPayoutRepository(postgres)

	rec, err := reconciler.New(
		&reconciler.Config{PageSize: cfg.Reconciler.PageSize},
		clients, reconcileRepo, analytics, logger,
	)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create reconciler")
	}

	ctx := context.Background()
	for {
		sweep(ctx, rec, payoutRepo, clients, logger)
		if *interval <= 0 {
			return
		}
		time.Sleep(*interval)
	}
}

// sweep reconciles every active contract from its deployment block to the
// chain head. Per-subject failures are logged and the sweep continues; the
// failed subject resumes from its watermark next time.
func sweep(ctx context.Context, rec *reconciler.Reconciler, payouts *storage.PayoutRepository, clients map[types.ChainID]chain.Client, logger *logging.Logger) {
	contracts, err := payouts.ActiveContracts(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to list active contracts")
		return
	}
	if len(contracts) == 0 {
		logger.Debug("No active contracts to reconcile")
		return
	}

	heads := make(map[types.ChainID]uint64)
	for chainID, client := range clients {
		head, err := client.BlockNumber(ctx)
		if err != nil {
			logger.WithError(err).WithField("chain", chainID.String()).Warn("Failed to fetch chain head")
			continue
		}
		heads[chainID] = head
	}

	for _, contract := range contracts {
		head, ok := heads[contract.ChainID]
		if !ok {
			continue
		}
		err := rec.Reconcile(ctx, &reconciler.Request{
			SubjectID: contract.ID,
			Address:   contract.ContractAddress,
			ChainID:   contract.ChainID,
			FromBlock: contract.BlockNumber,
			ToBlock:   head,
		})
		if err != nil {
			logger.WithError(err).WithFields(map[string]any{
				"subject": contract.ID,
				"chain":   contract.ChainID.String(),
			}).Error("Reconciliation failed, will resume from watermark")
		}
	}
}
