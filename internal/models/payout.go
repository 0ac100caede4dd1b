package models

import (
	"time"

	"github.com/rewards-settlement/internal/types"
)

// RewardDistribution is the computed weekly distribution before payout
// creation. Amounts are integer base-unit strings.
type RewardDistribution struct {
	Week                 types.ISOWeek       `json:"week"`
	PartnerID            string              `json:"partnerId"`
	TotalAllocatedTokens string              `json:"totalAllocatedTokens"`
	NormalizationFactor  string              `json:"normalizationFactor"`
	Entries              []DistributionEntry `json:"entries"`
}

// DistributionEntry is one builder's slot in a weekly distribution.
type DistributionEntry struct {
	BuilderID     string        `json:"builderId"`
	Rank          int           `json:"rank"`
	GemsCollected int64         `json:"gemsCollected"`
	TokenAmount   string        `json:"tokenAmount"`
	BuilderWallet string        `json:"builderWallet"`
	BuilderShare  string        `json:"builderShare"`
	ScoutShares   []ScoutShare  `json:"scoutShares"`
}

// ScoutShare is the proportional cut of a builder's reward owed to one scout.
type ScoutShare struct {
	Wallet string `json:"wallet"`
	Held   int64  `json:"held"`
	Amount string `json:"amount"`
}

// PayoutContract is one deployed claim contract per (week, partner).
// At most one non-superseded row per (week, partner).
type PayoutContract struct {
	ID              string        `json:"id"`
	Week            types.ISOWeek `json:"week"`
	PartnerID       string        `json:"partnerId"`
	ChainID         types.ChainID `json:"chainId"`
	ContractAddress string        `json:"contractAddress"`
	DeployTxHash    string        `json:"deployTxHash"`
	MerkleRoot      string        `json:"merkleRoot"`
	TokenAddress    string        `json:"tokenAddress"`
	TokenDecimals   int           `json:"tokenDecimals"`
	BlockNumber     uint64        `json:"blockNumber"`
	SupersededAt    *time.Time    `json:"supersededAt,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
}

// RewardPayout is one recipient row under a PayoutContract. ClaimedAt is set
// at most once; a row with DeletedAt set must never be claimable.
type RewardPayout struct {
	ID            string     `json:"id"`
	ContractID    string     `json:"contractId"`
	WalletAddress string     `json:"walletAddress"`
	Amount        string     `json:"amount"`
	LeafIndex     int        `json:"leafIndex"`
	ClaimedAt     *time.Time `json:"claimedAt,omitempty"`
	ClaimTxHash   *string    `json:"claimTxHash,omitempty"`
	DeletedAt     *time.Time `json:"deletedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// Claimable reports whether the payout can still be claimed.
func (p *RewardPayout) Claimable() bool {
	return p.ClaimedAt == nil && p.DeletedAt == nil
}
