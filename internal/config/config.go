// Package config provides configuration management for the settlement pipeline.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rewards-settlement/internal/types"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Chains     ChainsConfig
	Rewards    RewardsConfig
	Reconciler ReconcilerConfig
	Partners   []PartnerConfig
	Deployer   DeployerConfig
	Cache      CacheConfig
	Logging    LoggingConfig
}

// DeployerConfig holds the external signing-service endpoint used to deploy
// claim contracts. The service holds the key; this process never does.
type DeployerConfig struct {
	SignerURL string
	Timeout   time.Duration
}

// ServerConfig holds API server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// ChainsConfig holds per-chain RPC configuration keyed by numeric chain id
type ChainsConfig struct {
	Chains map[types.ChainID]ChainConfig
}

// ChainConfig holds configuration for a specific chain
type ChainConfig struct {
	RPCURL     string
	RPCTimeout time.Duration
}

// RewardsConfig holds weekly reward computation configuration
type RewardsConfig struct {
	// WeeklyAllocation is the per-week token budget in integer base units.
	WeeklyAllocation string
	// DecayRate is the per-rank geometric decay rate, e.g. "0.03".
	DecayRate string
	// WeightByGems enables contribution-weighted rewards on top of the
	// rank-decay base; normalization then clamps the total to the budget.
	WeightByGems bool
}

// ReconcilerConfig holds transaction reconciliation configuration
type ReconcilerConfig struct {
	// PageSize is the block-window size per scan page (default 900,
	// sized to stay under common RPC log limits).
	PageSize uint64
	// RPCRateLimit caps RPC calls per second inside a window.
	RPCRateLimit int
	// RPCTimeout bounds each individual RPC call.
	RPCTimeout time.Duration
}

// PartnerConfig enumerates a reward partner/program and its token.
// Partners are configured explicitly rather than scattered as literals.
type PartnerConfig struct {
	ID              string
	ChainID         types.ChainID
	TokenAddress    string
	TokenDecimals   int
	MultisigAddress string
	ClaimExpiry     time.Duration
}

// CacheConfig holds query cache configuration
type CacheConfig struct {
	TTL time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env file is optional - environment variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "settlement"),
				User:           getEnv("POSTGRES_USER", "settlement"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "settlement"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Rewards: RewardsConfig{
			WeeklyAllocation: getEnv("REWARDS_WEEKLY_ALLOCATION", "100000000000000000000000"),
			DecayRate:        getEnv("REWARDS_DECAY_RATE", "0.03"),
			WeightByGems:     getEnvAsBool("REWARDS_WEIGHT_BY_GEMS", true),
		},
		Reconciler: ReconcilerConfig{
			PageSize:     uint64(getEnvAsInt("RECONCILER_PAGE_SIZE", 900)),
			RPCRateLimit: getEnvAsInt("RECONCILER_RPC_RATE_LIMIT", 10),
			RPCTimeout:   getEnvAsDuration("RECONCILER_RPC_TIMEOUT", 15*time.Second),
		},
		Deployer: DeployerConfig{
			SignerURL: getEnv("DEPLOYER_SIGNER_URL", ""),
			Timeout:   getEnvAsDuration("DEPLOYER_TIMEOUT", 2*time.Minute),
		},
		Cache: CacheConfig{
			TTL: getEnvAsDuration("CACHE_TTL", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	config.Chains = loadChainConfigs()
	partners, err := loadPartnerConfigs()
	if err != nil {
		return nil, err
	}
	config.Partners = partners

	return config, nil
}

// loadChainConfigs loads chain-specific RPC configuration.
// CHAIN_IDS is a comma-separated list of numeric chain ids; each chain reads
// CHAIN_<id>_RPC_URL and CHAIN_<id>_RPC_TIMEOUT.
func loadChainConfigs() ChainsConfig {
	ids := strings.Split(getEnv("CHAIN_IDS", "1,10,8453"), ",")

	chains := make(map[types.ChainID]ChainConfig)
	for _, raw := range ids {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		prefix := "CHAIN_" + raw
		chains[types.ChainID(id)] = ChainConfig{
			RPCURL:     getEnv(prefix+"_RPC_URL", ""),
			RPCTimeout: getEnvAsDuration(prefix+"_RPC_TIMEOUT", 15*time.Second),
		}
	}

	return ChainsConfig{Chains: chains}
}

// loadPartnerConfigs enumerates partner programs from PARTNER_IDS; each
// partner reads PARTNER_<ID>_{CHAIN_ID,TOKEN_ADDRESS,TOKEN_DECIMALS,MULTISIG,CLAIM_EXPIRY}.
func loadPartnerConfigs() ([]PartnerConfig, error) {
	ids := strings.Split(getEnv("PARTNER_IDS", "scoutgame"), ",")

	var partners []PartnerConfig
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		prefix := "PARTNER_" + strings.ToUpper(id)
		chainID, err := strconv.ParseInt(getEnv(prefix+"_CHAIN_ID", "8453"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s_CHAIN_ID: %w", prefix, err)
		}
		partners = append(partners, PartnerConfig{
			ID:              id,
			ChainID:         types.ChainID(chainID),
			TokenAddress:    types.NormalizeAddress(getEnv(prefix+"_TOKEN_ADDRESS", "")),
			TokenDecimals:   getEnvAsInt(prefix+"_TOKEN_DECIMALS", 18),
			MultisigAddress: types.NormalizeAddress(getEnv(prefix+"_MULTISIG", "")),
			ClaimExpiry:     getEnvAsDuration(prefix+"_CLAIM_EXPIRY", 90*24*time.Hour),
		})
	}
	return partners, nil
}

// Partner returns the partner configuration for an id, if present.
func (c *Config) Partner(id string) (PartnerConfig, bool) {
	for _, p := range c.Partners {
		if p.ID == id {
			return p, true
		}
	}
	return PartnerConfig{}, false
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
