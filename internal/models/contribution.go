// Package models defines the persisted entities of the settlement ledger.
package models

import (
	"time"

	"github.com/rewards-settlement/internal/types"
)

// WeeklyContribution is the per-builder, per-ISO-week gem aggregate produced
// by the aggregation jobs. Immutable once the week closes; computation input only.
type WeeklyContribution struct {
	BuilderID   string        `json:"builderId"`
	Week        types.ISOWeek `json:"week"`
	Gems        int64         `json:"gems"`
	CommitGems  int64         `json:"commitGems"`
	PRGems      int64         `json:"prGems"`
	StreakGems  int64         `json:"streakGems"`
	FirstPRGems int64         `json:"firstPrGems"`
	Approved    bool          `json:"approved"`
	DeletedAt   *time.Time    `json:"deletedAt,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// BuilderNFTStats describes a builder's NFT supply and per-scout holdings,
// used to split the scout share of a weekly reward.
type BuilderNFTStats struct {
	BuilderID    string `json:"builderId"`
	MintedSupply int64  `json:"mintedSupply"`
	// Holdings maps scout wallet address (lower-cased) to NFTs held.
	Holdings map[string]int64 `json:"holdings"`
}
