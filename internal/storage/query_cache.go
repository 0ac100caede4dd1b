package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rewards-settlement/internal/logging"
	"github.com/rewards-settlement/internal/types"
)

// QueryCache caches read-heavy claim queries in Redis. The cache is an
// accelerator only: misses and Redis failures fall through to the ledger,
// and writes invalidate rather than update.
type QueryCache struct {
	cache  *RedisCache
	ttl    time.Duration
	logger *logging.Logger
}

// NewQueryCache creates a query cache with the given TTL.
func NewQueryCache(cache *RedisCache, ttl time.Duration, logger *logging.Logger) *QueryCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &QueryCache{
		cache:  cache,
		ttl:    ttl,
		logger: logger.WithComponent("query-cache"),
	}
}

func claimableKey(wallet string) string {
	return fmt.Sprintf("claimable:%s", types.NormalizeAddress(wallet))
}

func eligibilityKey(wallet string, week types.ISOWeek, partnerID string) string {
	return fmt.Sprintf("eligibility:%s:%s:%s", types.NormalizeAddress(wallet), week, partnerID)
}

// GetClaimable returns the cached claimable payouts for a wallet, or false
// on a miss. A cache error counts as a miss.
func (q *QueryCache) GetClaimable(ctx context.Context, wallet string) ([]*ClaimableReward, bool) {
	raw, err := q.cache.Get(ctx, claimableKey(wallet))
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			q.logger.WithError(err).Warn("claimable cache read failed")
		}
		return nil, false
	}

	var claimables []*ClaimableReward
	if err := json.Unmarshal([]byte(raw), &claimables); err != nil {
		q.logger.WithError(err).Warn("claimable cache entry corrupt, discarding")
		return nil, false
	}
	return claimables, true
}

// SetClaimable caches a wallet's claimable payouts. Failures are logged,
// never propagated.
func (q *QueryCache) SetClaimable(ctx context.Context, wallet string, claimables []*ClaimableReward) {
	data, err := json.Marshal(claimables)
	if err != nil {
		q.logger.WithError(err).Warn("failed to marshal claimable payouts for cache")
		return
	}
	if err := q.cache.Set(ctx, claimableKey(wallet), data, q.ttl); err != nil {
		q.logger.WithError(err).Warn("claimable cache write failed")
	}
}

// GetEligibility returns a cached eligibility payload for (wallet, week,
// partner). The partner is part of the key: each partner deploys its own
// claim contract, so their responses must never be shared.
func (q *QueryCache) GetEligibility(ctx context.Context, wallet string, week types.ISOWeek, partnerID string, out any) bool {
	raw, err := q.cache.Get(ctx, eligibilityKey(wallet, week, partnerID))
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			q.logger.WithError(err).Warn("eligibility cache read failed")
		}
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		q.logger.WithError(err).Warn("eligibility cache entry corrupt, discarding")
		return false
	}
	return true
}

// SetEligibility caches an eligibility payload for (wallet, week, partner).
func (q *QueryCache) SetEligibility(ctx context.Context, wallet string, week types.ISOWeek, partnerID string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		q.logger.WithError(err).Warn("failed to marshal eligibility for cache")
		return
	}
	if err := q.cache.Set(ctx, eligibilityKey(wallet, week, partnerID), data, q.ttl); err != nil {
		q.logger.WithError(err).Warn("eligibility cache write failed")
	}
}

// InvalidateWallet drops all cached entries for a wallet, called after a
// claim or payout mutation touching it.
func (q *QueryCache) InvalidateWallet(ctx context.Context, wallet string) {
	wallet = types.NormalizeAddress(wallet)
	keys, err := q.cache.Client().Keys(ctx, fmt.Sprintf("eligibility:%s:*", wallet)).Result()
	if err != nil {
		q.logger.WithError(err).Warn("eligibility key scan failed during invalidation")
	}
	keys = append(keys, claimableKey(wallet))
	if err := q.cache.Del(ctx, keys...); err != nil {
		q.logger.WithError(err).Warn("cache invalidation failed")
	}
}
