// Package rewards converts weekly gem aggregates into a bounded token
// distribution using a rank-decay formula and a normalization step.
package rewards

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	apperrors "github.com/rewards-settlement/internal/errors"
	"github.com/rewards-settlement/internal/logging"
	"github.com/rewards-settlement/internal/models"
	"github.com/rewards-settlement/internal/types"
)

// Scouts holding a builder's NFTs split 80% of the reward; the builder keeps
// the remaining 20% plus whatever truncation leaves over, so shares always
// sum back to the full amount.
var scoutShareRatio = decimal.RequireFromString("0.80")

// ContributionStore provides the weekly gem aggregates for approved,
// non-deleted builders.
type ContributionStore interface {
	ListApprovedForWeek(ctx context.Context, week types.ISOWeek) ([]*models.WeeklyContribution, error)
}

// NFTStatsStore provides builder NFT supply and per-scout holdings.
type NFTStatsStore interface {
	StatsForBuilder(ctx context.Context, builderID string) (*models.BuilderNFTStats, error)
}

// BuilderDirectory resolves a builder's payout wallet.
type BuilderDirectory interface {
	Wallet(ctx context.Context, builderID string) (string, error)
}

// PayoutChecker answers whether a payout contract already exists for a week.
// The store-level uniqueness constraint is the true guard; this check is the
// fast path that lets a re-triggered job skip cleanly.
type PayoutChecker interface {
	ActiveContractExists(ctx context.Context, week types.ISOWeek, partnerID string) (bool, error)
}

// Config holds the engine's per-partner parameters. Amounts are integer
// base-unit strings; the decay rate is parsed as a fixed-point decimal so
// on-chain-committed amounts are reproducible across platforms.
type Config struct {
	PartnerID        string
	WeeklyAllocation string
	DecayRate        string
	WeightByGems     bool
}

// BatchReport tallies per-builder outcomes. A failure while processing one
// builder never aborts the batch.
type BatchReport struct {
	Total     int      `json:"total"`
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// Engine computes weekly reward distributions.
type Engine struct {
	contributions ContributionStore
	nftStats      NFTStatsStore
	builders      BuilderDirectory
	payouts       PayoutChecker
	partnerID     string
	allocation    decimal.Decimal
	decay         decimal.Decimal
	weightByGems  bool
	logger        *logging.Logger
}

// NewEngine validates the configuration and creates an engine.
func NewEngine(cfg *Config, contributions ContributionStore, nftStats NFTStatsStore, builders BuilderDirectory, payouts PayoutChecker, logger *logging.Logger) (*Engine, error) {
	if contributions == nil || nftStats == nil || builders == nil || payouts == nil {
		return nil, fmt.Errorf("engine dependencies cannot be nil")
	}

	allocation, err := decimal.NewFromString(cfg.WeeklyAllocation)
	if err != nil || allocation.Sign() <= 0 {
		return nil, fmt.Errorf("invalid weekly allocation %q", cfg.WeeklyAllocation)
	}
	decay, err := decimal.NewFromString(cfg.DecayRate)
	if err != nil || decay.Sign() <= 0 || decay.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("invalid decay rate %q (must be in (0,1))", cfg.DecayRate)
	}

	return &Engine{
		contributions: contributions,
		nftStats:      nftStats,
		builders:      builders,
		payouts:       payouts,
		partnerID:     cfg.PartnerID,
		allocation:    allocation,
		decay:         decay,
		weightByGems:  cfg.WeightByGems,
		logger:        logger.WithComponent("rewards-engine"),
	}, nil
}

// RewardForRank computes the raw rank-decay reward:
//
//	reward(R) = A * ((1-D)^(R-1) - (1-D)^R) = A * D * (1-D)^(R-1)
//
// The geometric series sums to A over all ranks, so truncating at N ranks
// always stays under the budget.
func (e *Engine) RewardForRank(rank int) decimal.Decimal {
	retain := decimal.NewFromInt(1).Sub(e.decay)
	return e.allocation.Mul(e.decay).Mul(retain.Pow(decimal.NewFromInt(int64(rank - 1))))
}

// ComputeWeeklyRewards ranks the week's builders and produces the bounded
// distribution. A ConflictError is returned when a payout for the week
// already exists; scheduled jobs treat that as an already-done no-op.
func (e *Engine) ComputeWeeklyRewards(ctx context.Context, week types.ISOWeek) (*models.RewardDistribution, *BatchReport, error) {
	if err := week.Validate(); err != nil {
		return nil, nil, apperrors.NewValidationError("week", err.Error())
	}

	exists, err := e.payouts.ActiveContractExists(ctx, week, e.partnerID)
	if err != nil {
		return nil, nil, err
	}
	if exists {
		return nil, nil, apperrors.NewConflictError(
			fmt.Sprintf("payout already exists for week %s partner %s", week, e.partnerID))
	}

	contributions, err := e.contributions.ListApprovedForWeek(ctx, week)
	if err != nil {
		return nil, nil, err
	}
	if len(contributions) == 0 {
		return nil, nil, apperrors.NewNotFoundError("weekly contributions", week.String())
	}

	ranked := rankContributions(contributions)
	weighted := e.weightedRewards(ranked)

	factor := e.normalizationFactor(weighted)

	report := &BatchReport{Total: len(ranked)}
	dist := &models.RewardDistribution{
		Week:                 week,
		PartnerID:            e.partnerID,
		TotalAllocatedTokens: e.allocation.String(),
		NormalizationFactor:  factor.String(),
	}

	for i, contribution := range ranked {
		amount := weighted[i].Mul(factor).Truncate(0)
		entry, err := e.buildEntry(ctx, contribution, i+1, amount)
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("builder %s: %v", contribution.BuilderID, err))
			e.logger.WithFields(map[string]any{
				"builder": contribution.BuilderID,
				"week":    week.String(),
				"error":   err.Error(),
			}).Error("failed to build distribution entry, continuing batch")
			continue
		}
		dist.Entries = append(dist.Entries, *entry)
		report.Processed++
	}

	e.logger.WithFields(map[string]any{
		"week":      week.String(),
		"processed": report.Processed,
		"failed":    report.Failed,
		"total":     report.Total,
		"factor":    factor.String(),
	}).Info("weekly reward distribution computed")

	return dist, report, nil
}

// rankContributions sorts by gems collected descending with builder id as
// the deterministic tie-break, guaranteeing a total order.
func rankContributions(contributions []*models.WeeklyContribution) []*models.WeeklyContribution {
	ranked := make([]*models.WeeklyContribution, len(contributions))
	copy(ranked, contributions)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Gems != ranked[j].Gems {
			return ranked[i].Gems > ranked[j].Gems
		}
		return ranked[i].BuilderID < ranked[j].BuilderID
	})
	return ranked
}

// weightedRewards returns the per-rank rewards, optionally weighted by each
// builder's gem count relative to the weekly mean.
func (e *Engine) weightedRewards(ranked []*models.WeeklyContribution) []decimal.Decimal {
	rewards := make([]decimal.Decimal, len(ranked))
	for i := range ranked {
		rewards[i] = e.RewardForRank(i + 1)
	}
	if !e.weightByGems {
		return rewards
	}

	var totalGems int64
	for _, c := range ranked {
		totalGems += c.Gems
	}
	if totalGems == 0 {
		return rewards
	}
	mean := decimal.NewFromInt(totalGems).Div(decimal.NewFromInt(int64(len(ranked))))

	for i, c := range ranked {
		rewards[i] = rewards[i].Mul(decimal.NewFromInt(c.Gems)).Div(mean)
	}
	return rewards
}

// normalizationFactor bounds the realized payout by the weekly allocation.
// The factor only ever scales down: with pure rank-decay weights the sum is
// already under the budget and the factor is exactly 1.
func (e *Engine) normalizationFactor(weighted []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, w := range weighted {
		sum = sum.Add(w)
	}
	if sum.Sign() <= 0 || sum.LessThanOrEqual(e.allocation) {
		return decimal.NewFromInt(1)
	}
	return e.allocation.Div(sum)
}

// buildEntry splits one builder's reward into the builder share and the
// proportional scout shares. Scout shares are truncated to integer base
// units; the truncation remainder goes to the builder so the shares sum back
// to the full reward exactly.
func (e *Engine) buildEntry(ctx context.Context, contribution *models.WeeklyContribution, rank int, amount decimal.Decimal) (*models.DistributionEntry, error) {
	wallet, err := e.builders.Wallet(ctx, contribution.BuilderID)
	if err != nil {
		return nil, fmt.Errorf("resolving builder wallet: %w", err)
	}

	stats, err := e.nftStats.StatsForBuilder(ctx, contribution.BuilderID)
	if err != nil {
		return nil, fmt.Errorf("loading nft stats: %w", err)
	}

	entry := &models.DistributionEntry{
		BuilderID:     contribution.BuilderID,
		Rank:          rank,
		GemsCollected: contribution.Gems,
		TokenAmount:   amount.String(),
		BuilderWallet: types.NormalizeAddress(wallet),
	}

	scoutTotal := decimal.Zero
	if stats != nil && stats.MintedSupply > 0 && len(stats.Holdings) > 0 {
		supply := decimal.NewFromInt(stats.MintedSupply)
		scoutPool := amount.Mul(scoutShareRatio)

		// Deterministic iteration order over holdings.
		wallets := make([]string, 0, len(stats.Holdings))
		for w := range stats.Holdings {
			wallets = append(wallets, w)
		}
		sort.Strings(wallets)

		for _, w := range wallets {
			held := stats.Holdings[w]
			if held <= 0 {
				continue
			}
			share := scoutPool.Mul(decimal.NewFromInt(held)).Div(supply).Truncate(0)
			if share.Sign() <= 0 {
				continue
			}
			entry.ScoutShares = append(entry.ScoutShares, models.ScoutShare{
				Wallet: types.NormalizeAddress(w),
				Held:   held,
				Amount: share.String(),
			})
			scoutTotal = scoutTotal.Add(share)
		}
	}

	entry.BuilderShare = amount.Sub(scoutTotal).String()
	return entry, nil
}
