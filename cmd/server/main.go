// Package main provides the API server entry point for the rewards
// settlement service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rewards-settlement/internal/api"
	"github.com/rewards-settlement/internal/chain"
	"github.com/rewards-settlement/internal/config"
	"github.com/rewards-settlement/internal/logging"
	"github.com/rewards-settlement/internal/marketplace"
	"github.com/rewards-settlement/internal/merkle"
	"github.com/rewards-settlement/internal/storage"
	"github.com/rewards-settlement/internal/types"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Fatal("Failed to load configuration")
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()

	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	// The query cache is an accelerator; a missing Redis degrades to direct
	// ledger reads instead of blocking startup.
	var queryCache *storage.QueryCache
	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, serving without query cache")
	} else {
		defer redis.Close()
		queryCache = storage.NewQueryCache(redis, cfg.Cache.TTL, logger)
	}

	logger.Info("Initializing chain clients...")
	verifiers := make(map[types.ChainID]api.EligibilityChecker)
	for chainID, chainCfg := range cfg.Chains.Chains {
		if chainCfg.RPCURL == "" {
			logger.WithField("chain", chainID.String()).Warn("Skipping chain: no RPC endpoint configured")
			continue
		}
		client, err := chain.NewEthClient(&chain.EthClientConfig{
			ChainID:    chainID,
			RPCURL:     chainCfg.RPCURL,
			RPCTimeout: chainCfg.RPCTimeout,
			RatePerSec: cfg.Reconciler.RPCRateLimit,
		})
		if err != nil {
			logger.WithError(err).WithField("chain", chainID.String()).Warn("Failed to create chain client")
			continue
		}
		defer client.Close()
		verifiers[chainID] = merkle.NewVerifier(client)
	}

	payoutRepo := storage.NewPayoutRepository(postgres)
	marketplaceRepo := storage.NewMarketplaceRepository(postgres)

	ledger, err := marketplace.NewLedger(marketplaceRepo, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create ownership ledger")
	}

	server := api.NewServer(cfg, payoutRepo, ledger, verifiers, queryCache, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Error("API server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Failed to shut down server cleanly")
	}
	logger.Info("Server stopped")
}
