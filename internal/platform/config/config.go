// Package config builds runtime configuration from environment variables so
// main stays lean. Custody parameters carry development defaults; override
// every one of them in production.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the server needs at startup.
type Config struct {
	Addr          string
	LogFormat     string
	JWTSigningKey string
	// OperatorSecretHash is the bcrypt hash of the provisioning secret
	// that guards the token-issuing endpoint.
	OperatorSecretHash string

	PostgresDSN  string
	Redis        RedisConfig
	KafkaBrokers []string
	KafkaTopic   string

	Custody  CustodyConfig
	Accounts AccountsConfig
}

// AccountsConfig seeds the capability grants at startup. Values are account
// UUIDs; lists are comma-separated in the environment.
type AccountsConfig struct {
	// Treasury is the pooled custody account. Fix it in production so
	// external funding keeps landing in the same place across restarts.
	Treasury         string
	Admins           []string
	Treasurers       []string
	Allocators       []string
	EmergencySigners []string
	Oracles          []string
}

// RedisConfig tunes the shared Redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// CustodyConfig holds the custody state-machine parameters.
type CustodyConfig struct {
	// MaxSupply caps lifetime audit-ledger minting, in asset units.
	MaxSupply int64
	// DefaultMinterDailyLimit is granted to each new project vault.
	DefaultMinterDailyLimit int64
	// TreasuryMinterDailyLimit bounds deposit mirroring per day.
	TreasuryMinterDailyLimit int64
	// DailyWithdrawalLimit bounds each donor's withdrawals per day.
	DailyWithdrawalLimit int64
	// TreasurerQuorum is the signature count executing an allocation.
	TreasurerQuorum int
	// EmergencyThreshold is the signature count executing an emergency
	// withdrawal while paused.
	EmergencyThreshold int
	// OracleConsensus is the distinct-oracle count releasing escrowed
	// funds after a fiat transfer.
	OracleConsensus int
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Addr:               envString("CUSTODIA_ADDR", ":8080"),
		LogFormat:          envString("LOG_FORMAT", "text"),
		JWTSigningKey:      envString("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		OperatorSecretHash: os.Getenv("OPERATOR_SECRET_HASH"),
		PostgresDSN:        os.Getenv("POSTGRES_DSN"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		KafkaBrokers: envList("KAFKA_BROKERS"),
		KafkaTopic:   envString("KAFKA_AUDIT_TOPIC", "custodia.audit"),
		Custody: CustodyConfig{
			MaxSupply:                envInt64("CUSTODY_MAX_SUPPLY", 1_000_000_000_000),
			DefaultMinterDailyLimit:  envInt64("CUSTODY_VAULT_DAILY_MINT_LIMIT", 100_000_000_000),
			TreasuryMinterDailyLimit: envInt64("CUSTODY_TREASURY_DAILY_MINT_LIMIT", 500_000_000_000),
			DailyWithdrawalLimit:     envInt64("CUSTODY_DAILY_WITHDRAWAL_LIMIT", 10_000_000_000),
			TreasurerQuorum:          envInt("CUSTODY_TREASURER_QUORUM", 2),
			EmergencyThreshold:       envInt("CUSTODY_EMERGENCY_THRESHOLD", 2),
			OracleConsensus:          envInt("CUSTODY_ORACLE_CONSENSUS", 2),
		},
		Accounts: AccountsConfig{
			Treasury:         os.Getenv("CUSTODIA_TREASURY_ACCOUNT"),
			Admins:           envList("CUSTODIA_ADMIN_ACCOUNTS"),
			Treasurers:       envList("CUSTODIA_TREASURER_ACCOUNTS"),
			Allocators:       envList("CUSTODIA_ALLOCATOR_ACCOUNTS"),
			EmergencySigners: envList("CUSTODIA_EMERGENCY_SIGNER_ACCOUNTS"),
			Oracles:          envList("CUSTODIA_ORACLE_ACCOUNTS"),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
