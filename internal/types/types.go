// Package types provides common type definitions for the rewards settlement system.
package types

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ChainID identifies a supported blockchain network by its numeric chain id.
type ChainID int64

const (
	// ChainEthereum represents the Ethereum mainnet
	ChainEthereum ChainID = 1
	// ChainOptimism represents the Optimism network
	ChainOptimism ChainID = 10
	// ChainBase represents the Base network
	ChainBase ChainID = 8453
)

// Supported reports whether the chain id is one the settlement pipeline
// knows how to reconcile. Unsupported chains are terminal no-ops, not errors.
func (c ChainID) Supported() bool {
	switch c {
	case ChainEthereum, ChainOptimism, ChainBase:
		return true
	default:
		return false
	}
}

func (c ChainID) String() string {
	return strconv.FormatInt(int64(c), 10)
}

// GemEventType classifies the contribution event that earned a gem.
type GemEventType string

const (
	// GemEventCommit represents a gem earned for a commit
	GemEventCommit GemEventType = "commit"
	// GemEventMergedPR represents a gem earned for a merged pull request
	GemEventMergedPR GemEventType = "merged_pr"
	// GemEventStreak represents a streak bonus gem
	GemEventStreak GemEventType = "streak"
	// GemEventFirstPR represents a first-PR bonus gem
	GemEventFirstPR GemEventType = "first_pr"
)

// TransactionStatus represents on-chain transaction execution status.
type TransactionStatus string

const (
	// StatusSuccess represents a successful transaction
	StatusSuccess TransactionStatus = "success"
	// StatusFailed represents a reverted transaction
	StatusFailed TransactionStatus = "failed"
)

// ListingStatus represents the lifecycle state of an NFT listing.
type ListingStatus string

const (
	// ListingOpen represents a listing available for purchase
	ListingOpen ListingStatus = "open"
	// ListingCompleted represents a sold listing
	ListingCompleted ListingStatus = "completed"
	// ListingCancelled represents a withdrawn listing
	ListingCancelled ListingStatus = "cancelled"
)

// PaymentMethod distinguishes how a purchase was paid for. Clawbacks only
// apply to points-paid purchases.
type PaymentMethod string

const (
	// PaymentPoints represents a purchase paid with off-chain points
	PaymentPoints PaymentMethod = "points"
	// PaymentCrypto represents a purchase paid with on-chain tokens
	PaymentCrypto PaymentMethod = "crypto"
)

var isoWeekRegex = regexp.MustCompile(`^(\d{4})-W(\d{2})$`)

// ISOWeek is an ISO-8601 week identifier in "YYYY-Www" form, e.g. "2025-W03".
type ISOWeek string

// Validate checks the week identifier format and range.
func (w ISOWeek) Validate() error {
	m := isoWeekRegex.FindStringSubmatch(string(w))
	if m == nil {
		return fmt.Errorf("invalid ISO week %q (expected YYYY-Www)", string(w))
	}
	week, _ := strconv.Atoi(m[2])
	if week < 1 || week > 53 {
		return fmt.Errorf("invalid ISO week number %d in %q", week, string(w))
	}
	return nil
}

func (w ISOWeek) String() string {
	return string(w)
}

// CurrentISOWeek returns the ISO week containing t, in UTC.
func CurrentISOWeek(t time.Time) ISOWeek {
	year, week := t.UTC().ISOWeek()
	return ISOWeek(fmt.Sprintf("%04d-W%02d", year, week))
}

var addressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// ValidAddress reports whether s is a well-formed EVM address.
func ValidAddress(s string) bool {
	return addressRegex.MatchString(s)
}

// NormalizeAddress lower-cases an address for consistent joins across tables.
func NormalizeAddress(s string) string {
	return strings.ToLower(s)
}

var txHashRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)

// ValidTxHash reports whether s is a well-formed transaction hash.
func ValidTxHash(s string) bool {
	return txHashRegex.MatchString(s)
}
