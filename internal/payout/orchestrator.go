// Package payout turns a computed weekly distribution into an on-chain
// Merkle airdrop: tree construction, claim-contract deployment, and the
// guarded payout rows that back the claim surfaces.
package payout

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/rewards-settlement/internal/chain"
	"github.com/rewards-settlement/internal/config"
	apperrors "github.com/rewards-settlement/internal/errors"
	"github.com/rewards-settlement/internal/logging"
	"github.com/rewards-settlement/internal/merkle"
	"github.com/rewards-settlement/internal/models"
	"github.com/rewards-settlement/internal/types"
)

// Store persists payout contracts and their recipient rows. CreateWithPayouts
// must write the contract and all rows in one transaction, and must surface
// the (week, partner) uniqueness violation as a conflict: the database
// constraint, not the application check, is the real idempotency guard.
type Store interface {
	ActiveContract(ctx context.Context, week types.ISOWeek, partnerID string) (*models.PayoutContract, error)
	CreateWithPayouts(ctx context.Context, contract *models.PayoutContract, payouts []*models.RewardPayout) error
}

// Orchestrator creates weekly payouts.
type Orchestrator struct {
	store    Store
	deployer chain.AirdropDeployer
	partner  config.PartnerConfig
	logger   *logging.Logger
}

// NewOrchestrator creates a payout orchestrator for one partner program.
func NewOrchestrator(partner config.PartnerConfig, store Store, deployer chain.AirdropDeployer, logger *logging.Logger) (*Orchestrator, error) {
	if store == nil || deployer == nil {
		return nil, fmt.Errorf("store and deployer cannot be nil")
	}
	if !types.ValidAddress(partner.TokenAddress) {
		return nil, fmt.Errorf("partner %s has invalid token address %q", partner.ID, partner.TokenAddress)
	}
	return &Orchestrator{
		store:    store,
		deployer: deployer,
		partner:  partner,
		logger:   logger.WithComponent("payout-orchestrator"),
	}, nil
}

// CreatePayout builds the Merkle tree for the distribution, records the
// claim-contract deployment and writes the payout rows.
//
// The deployment itself is not cancellable, so everything that can fail
// validation does so before Deploy is called. If the store write fails after
// a successful deployment the root exists on-chain with no matching row; the
// error is logged loudly so the reconciliation job re-attaches the contract
// rather than anything re-deploying.
func (o *Orchestrator) CreatePayout(ctx context.Context, dist *models.RewardDistribution) (*models.PayoutContract, error) {
	if dist == nil || len(dist.Entries) == 0 {
		return nil, apperrors.NewValidationError("distribution", "must contain at least one entry")
	}
	if err := dist.Week.Validate(); err != nil {
		return nil, apperrors.NewValidationError("week", err.Error())
	}

	existing, err := o.store.ActiveContract(ctx, dist.Week, o.partner.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.NewConflictError(
			fmt.Sprintf("payout contract already exists for week %s partner %s", dist.Week, o.partner.ID))
	}

	recipients, err := flattenDistribution(dist)
	if err != nil {
		return nil, err
	}

	tree, err := merkle.NewTree(recipients)
	if err != nil {
		return nil, apperrors.NewValidationError("recipients", err.Error())
	}

	deployReq := &chain.DeployRequest{
		ChainID:      o.partner.ChainID,
		TokenAddress: o.partner.TokenAddress,
		MerkleRoot:   tree.Root(),
		ExpiryUnix:   time.Now().Add(o.partner.ClaimExpiry).Unix(),
	}
	for _, r := range recipients {
		deployReq.Recipients = append(deployReq.Recipients, chain.DeployRecipient(r))
	}

	deployment, err := o.deployer.Deploy(ctx, deployReq)
	if err != nil {
		return nil, apperrors.NewChainUnavailableError("airdrop deploy", err)
	}

	now := time.Now().UTC()
	contract := &models.PayoutContract{
		ID:              uuid.NewString(),
		Week:            dist.Week,
		PartnerID:       o.partner.ID,
		ChainID:         o.partner.ChainID,
		ContractAddress: types.NormalizeAddress(deployment.ContractAddress),
		DeployTxHash:    types.NormalizeAddress(deployment.DeployTxHash),
		MerkleRoot:      tree.Root(),
		TokenAddress:    o.partner.TokenAddress,
		TokenDecimals:   o.partner.TokenDecimals,
		BlockNumber:     deployment.BlockNumber,
		CreatedAt:       now,
	}

	payouts := make([]*models.RewardPayout, len(recipients))
	for i, r := range recipients {
		payouts[i] = &models.RewardPayout{
			ID:            uuid.NewString(),
			ContractID:    contract.ID,
			WalletAddress: r.Address,
			Amount:        r.Amount,
			LeafIndex:     i,
			CreatedAt:     now,
		}
	}

	if err := o.store.CreateWithPayouts(ctx, contract, payouts); err != nil {
		o.logger.WithFields(map[string]any{
			"week":     dist.Week.String(),
			"partner":  o.partner.ID,
			"contract": contract.ContractAddress,
			"root":     contract.MerkleRoot,
		}).Error("claim contract deployed but ledger write failed; reconciliation must re-attach, do not re-deploy")
		return nil, err
	}

	o.logger.WithFields(map[string]any{
		"week":       dist.Week.String(),
		"partner":    o.partner.ID,
		"contract":   contract.ContractAddress,
		"recipients": len(payouts),
	}).Info("payout created")

	return contract, nil
}

// flattenDistribution aggregates builder and scout shares per wallet and
// orders wallets ascending. The fixed ordering is what makes the tree root
// reproducible by any third party holding the same distribution.
func flattenDistribution(dist *models.RewardDistribution) ([]merkle.Recipient, error) {
	totals := make(map[string]*big.Int)
	add := func(wallet, amount string) error {
		value, ok := new(big.Int).SetString(amount, 10)
		if !ok || value.Sign() < 0 {
			return apperrors.NewValidationError("amount", fmt.Sprintf("invalid amount %q for wallet %s", amount, wallet))
		}
		if value.Sign() == 0 {
			return nil
		}
		wallet = types.NormalizeAddress(wallet)
		if existing, ok := totals[wallet]; ok {
			existing.Add(existing, value)
		} else {
			totals[wallet] = value
		}
		return nil
	}

	for _, entry := range dist.Entries {
		if err := add(entry.BuilderWallet, entry.BuilderShare); err != nil {
			return nil, err
		}
		for _, share := range entry.ScoutShares {
			if err := add(share.Wallet, share.Amount); err != nil {
				return nil, err
			}
		}
	}

	wallets := make([]string, 0, len(totals))
	for w := range totals {
		wallets = append(wallets, w)
	}
	sort.Strings(wallets)

	recipients := make([]merkle.Recipient, len(wallets))
	for i, w := range wallets {
		recipients[i] = merkle.Recipient{Address: w, Amount: totals[w].String()}
	}
	return recipients, nil
}
