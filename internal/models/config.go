package models

import "time"

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig
	Vault     VaultConfig
	Solana    SolanaConfig
	Prices    PriceConfig
	Redis     RedisConfig
	Scheduler SchedulerConfig
	Formance  FormanceConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path             string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	ConnMaxIdleTime  time.Duration
	PingTimeout      time.Duration
	CreateDummyUsers bool
}

// VaultConfig holds the process-wide key encryption secret (base64, 32 bytes decoded)
type VaultConfig struct {
	EncryptionKey string
}

// SolanaConfig holds chain RPC settings
type SolanaConfig struct {
	RpcUrl         string
	Network        string
	UsdcMint       string
	ConfirmTimeout time.Duration
	AssetsFile     string
}

// PriceConfig holds price feed and cache settings
type PriceConfig struct {
	FeedUrl         string
	FreshnessWindow time.Duration
	RequestTimeout  time.Duration
}

// RedisConfig holds the optional shared rate cache. Empty Addr disables it.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SchedulerConfig holds payroll and reconciliation loop settings
type SchedulerConfig struct {
	PayrollInterval   time.Duration
	ReconcileInterval time.Duration
	ReconcileTimeout  time.Duration
	StatusTimeout     time.Duration
	MaxActivePayrolls int
}

// FormanceConfig holds the optional settlement ledger mirror. Empty StackURL disables it.
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}
