package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewards-settlement/internal/types"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Database.Postgres.Host)
	assert.Equal(t, 50, cfg.Database.Postgres.MaxConnections)
	assert.Equal(t, "0.03", cfg.Rewards.DecayRate)
	assert.True(t, cfg.Rewards.WeightByGems)
	assert.Equal(t, uint64(900), cfg.Reconciler.PageSize)
	assert.Equal(t, 2*time.Minute, cfg.Deployer.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("POSTGRES_MAX_CONNECTIONS", "10")
	t.Setenv("REWARDS_WEIGHT_BY_GEMS", "false")
	t.Setenv("RECONCILER_PAGE_SIZE", "500")
	t.Setenv("CACHE_TTL", "2m")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 10, cfg.Database.Postgres.MaxConnections)
	assert.False(t, cfg.Rewards.WeightByGems)
	assert.Equal(t, uint64(500), cfg.Reconciler.PageSize)
	assert.Equal(t, 2*time.Minute, cfg.Cache.TTL)
}

func TestLoadConfig_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("POSTGRES_MAX_CONNECTIONS", "lots")
	t.Setenv("CACHE_TTL", "soon")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Database.Postgres.MaxConnections)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
}

func TestLoadConfig_Chains(t *testing.T) {
	t.Setenv("CHAIN_IDS", "8453, 10")
	t.Setenv("CHAIN_8453_RPC_URL", "https://base.example")
	t.Setenv("CHAIN_8453_RPC_TIMEOUT", "5s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Len(t, cfg.Chains.Chains, 2)
	base := cfg.Chains.Chains[types.ChainBase]
	assert.Equal(t, "https://base.example", base.RPCURL)
	assert.Equal(t, 5*time.Second, base.RPCTimeout)

	optimism := cfg.Chains.Chains[types.ChainOptimism]
	assert.Equal(t, 15*time.Second, optimism.RPCTimeout)
}

func TestLoadConfig_ChainsSkipsGarbageIDs(t *testing.T) {
	t.Setenv("CHAIN_IDS", "8453,banana,")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Len(t, cfg.Chains.Chains, 1)
	_, ok := cfg.Chains.Chains[types.ChainBase]
	assert.True(t, ok)
}

func TestLoadConfig_Partners(t *testing.T) {
	t.Setenv("PARTNER_IDS", "scoutgame,acme")
	t.Setenv("PARTNER_SCOUTGAME_CHAIN_ID", "10")
	t.Setenv("PARTNER_SCOUTGAME_TOKEN_ADDRESS", "0xABCDEF0123456789abcdef0123456789ABCDEF01")
	t.Setenv("PARTNER_ACME_CLAIM_EXPIRY", "720h")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Len(t, cfg.Partners, 2)

	scoutgame, ok := cfg.Partner("scoutgame")
	require.True(t, ok)
	assert.Equal(t, types.ChainOptimism, scoutgame.ChainID)
	assert.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01", scoutgame.TokenAddress)
	assert.Equal(t, 90*24*time.Hour, scoutgame.ClaimExpiry)

	acme, ok := cfg.Partner("acme")
	require.True(t, ok)
	assert.Equal(t, types.ChainBase, acme.ChainID)
	assert.Equal(t, 720*time.Hour, acme.ClaimExpiry)

	_, ok = cfg.Partner("nope")
	assert.False(t, ok)
}

func TestLoadConfig_InvalidPartnerChainID(t *testing.T) {
	t.Setenv("PARTNER_IDS", "scoutgame")
	t.Setenv("PARTNER_SCOUTGAME_CHAIN_ID", "mainnet")

	_, err := LoadConfig()
	assert.Error(t, err)
}
