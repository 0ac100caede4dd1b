// Package main provides the weekly payout job: it computes the reward
// distribution for a closed week and creates the on-chain claim payout.
package main

import (
	"context"
	"flag"
	"time"

	"github.com/rewards-settlement/internal/chain"
	"github.com/rewards-settlement/internal/config"
	apperrors "github.com/rewards-settlement/internal/errors"
	"github.com/rewards-settlement/internal/logging"
	"github.com/rewards-settlement/internal/payout"
	"github.com/rewards-settlement/internal/rewards"
	"github.com/rewards-settlement/internal/storage"
	"github.com/rewards-settlement/internal/types"
)

func main() {
	var (
		weekFlag    = flag.String("week", "", "ISO week to pay out, e.g. 2026-W35 (default: previous week)")
		partnerFlag = flag.String("partner", "", "partner id (default: first configured partner)")
		dryRun      = flag.Bool("dry-run", false, "compute the distribution without deploying anything")
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

	week := types.ISOWeek(*weekFlag)
	if week == "" {
		// Payouts settle the week that just closed.
		week = types.CurrentISOWeek(time.Now().AddDate(0, 0, -7))
	}
	if err := week.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid week")
	}

	partnerID := *partnerFlag
	if partnerID == "" && len(cfg.Partners) > 0 {
		partnerID = cfg.Partners[0].ID
	}
	partner, ok := cfg.Partner(partnerID)
	if !ok {
		logger.WithField("partner", partnerID).Fatal("Unknown partner")
	}

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	contributionRepo := storage.NewContributionRepository(postgres)
	payoutRepo := storage.NewPayoutRepository(postgres)

	engine, err := rewards.NewEngine(
		&rewards.Config{
			PartnerID:        partner.ID,
			WeeklyAllocation: cfg.Rewards.WeeklyAllocation,
			DecayRate:        cfg.Rewards.DecayRate,
			WeightByGems:     cfg.Rewards.WeightByGems,
		},
		contributionRepo, contributionRepo, contributionRepo, payoutRepo, logger,
	)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create rewards engine")
	}

	ctx := context.Background()

	dist, report, err := engine.ComputeWeeklyRewards(ctx, week)
	if err != nil {
		if apperrors.IsConflict(err) {
			logger.WithFields(map[string]any{
				"week":    week.String(),
				"partner": partner.ID,
			}).Info("Payout already exists, nothing to do")
			return
		}
		logger.WithError(err).Fatal("Failed to compute weekly rewards")
	}

	logger.WithFields(map[string]any{
		"week":      week.String(),
		"partner":   partner.ID,
		"entries":   len(dist.Entries),
		"processed": report.Processed,
		"failed":    report.Failed,
	}).Info("Weekly distribution computed")

	if *dryRun {
		logger.Info("Dry run, skipping payout creation")
		return
	}

	deployer, err := chain.NewHTTPDeployer(cfg.Deployer.SignerURL, cfg.Deployer.Timeout)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create airdrop deployer")
	}

	orchestrator, err := payout.NewOrchestrator(partner, payoutRepo, deployer, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create payout orchestrator")
	}

	contract, err := orchestrator.CreatePayout(ctx, dist)
	if err != nil {
		if apperrors.IsConflict(err) {
			logger.Info("Payout contract already exists, nothing to do")
			return
		}
		logger.WithError(err).Fatal("Failed to create payout")
	}

	logger.WithFields(map[string]any{
		"week":     week.String(),
		"partner":  partner.ID,
		"contract": contract.ContractAddress,
		"root":     contract.MerkleRoot,
	}).Info("Payout created")
}
