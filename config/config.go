package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Mainnet and testnet REST endpoints for the Hyperliquid API.
const (
	MainnetAPIURL = "https://api.hyperliquid.xyz"
	TestnetAPIURL = "https://api.hyperliquid-testnet.xyz"
)

type Config struct {
	HyperliquidConfig HyperliquidConfig `json:"hyperliquid"`
	TelegramConfig    TelegramConfig    `json:"telegram"`
	TradingConfig     TradingConfig     `json:"trading"`
	GridConfig        GridConfig        `json:"grid"`
	RebateConfig      RebateConfig      `json:"rebate"`
	AirdropConfig     AirdropConfig     `json:"airdrop"`
	VaultConfig       VaultConfig       `json:"vault"`
	RiskConfig        RiskConfig        `json:"risk"`
	CircuitConfig     CircuitConfig     `json:"circuit_breaker"`
	SecretsConfig     SecretsConfig     `json:"secrets"`
	DatabaseConfig    DatabaseConfig    `json:"database"`
	RedisConfig       RedisConfig       `json:"redis"`
	ServerConfig      ServerConfig      `json:"server"`
	NotifyConfig      NotifyConfig      `json:"notification"`
	LoggingConfig     LoggingConfig     `json:"logging"`
}

// HyperliquidConfig holds exchange connectivity settings.
// Wallet private keys are never read from this file; they live in the
// secrets backend keyed by Telegram user ID.
type HyperliquidConfig struct {
	APIURL       string `json:"api_url"`
	WSURL        string `json:"ws_url"`
	TestNet      bool   `json:"testnet"`
	VaultAddress string `json:"vault_address"` // on-exchange vault the bot trades for
	Timeout      int    `json:"timeout"`       // HTTP timeout in seconds
}

type TelegramConfig struct {
	Enabled         bool    `json:"enabled"`
	BotToken        string  `json:"bot_token"`
	AdminChatID     string  `json:"admin_chat_id"`
	AdminUsers      []int64 `json:"admin_users"`
	AllowedUsers    []int64 `json:"allowed_users"` // empty = everyone
	CommandCooldown int     `json:"command_cooldown_seconds"`
}

type TradingConfig struct {
	DefaultOrderSizeUSD float64 `json:"default_order_size_usd"`
	MinOrderSizeUSD     float64 `json:"min_order_size_usd"`
	MaxOrderSizeUSD     float64 `json:"max_order_size_usd"`
	DefaultSlippageBps  int     `json:"default_slippage_bps"`
	MaxLeverage         int     `json:"max_leverage"`
	DryRun              bool    `json:"dry_run"`
}

type GridConfig struct {
	Enabled          bool    `json:"enabled"`
	Levels           int     `json:"levels"`
	SpacingBps       int     `json:"spacing_bps"`
	MaxLevels        int     `json:"max_levels"`
	AllocationPct    float64 `json:"allocation_pct"`     // fraction of free margin a grid may use
	AllocationCapUSD float64 `json:"allocation_cap_usd"` // hard cap per grid
	RefillIntervalS  int     `json:"refill_interval_seconds"`
}

type RebateConfig struct {
	Enabled         bool    `json:"enabled"`
	QuoteSizeUSD    float64 `json:"quote_size_usd"`
	SpreadBps       int     `json:"spread_bps"`        // distance from mid for each quote
	RequoteDriftBps int     `json:"requote_drift_bps"` // re-quote when mid moves this far
	CycleSeconds    int     `json:"cycle_seconds"`
}

type AirdropConfig struct {
	Enabled           bool     `json:"enabled"`
	DailyInteractions int      `json:"daily_interactions"`
	MicroTradeSizeUSD float64  `json:"micro_trade_size_usd"`
	SpotPairs         []string `json:"spot_pairs"`
	IntervalMinutes   int      `json:"interval_minutes"`
}

// VaultConfig holds the pooled-vault ledger settings.
type VaultConfig struct {
	Enabled          bool    `json:"enabled"`
	MinimumDeposit   float64 `json:"minimum_deposit"`
	ProfitShareRate  float64 `json:"profit_share_rate"`  // operator's cut of distributed profit
	ReferralBonusPct float64 `json:"referral_bonus_pct"` // of the referee's deposit
	MinOwnershipPct  float64 `json:"min_ownership_pct"`  // operator stake that can never be diluted
}

type RiskConfig struct {
	MaxRiskPerTrade    float64 `json:"max_risk_per_trade"`
	MaxDailyDrawdown   float64 `json:"max_daily_drawdown"`
	MaxOpenPositions   int     `json:"max_open_positions"`
	PositionSizeMethod string  `json:"position_size_method"` // "fixed" or "percent"
	FixedPositionSize  float64 `json:"fixed_position_size"`
	MinAccountBalance  float64 `json:"min_account_balance"`
}

type CircuitConfig struct {
	Enabled              bool    `json:"enabled"`
	MaxLossPerHour       float64 `json:"max_loss_per_hour"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	CooldownMinutes      int     `json:"cooldown_minutes"`
	MaxTradesPerMinute   int     `json:"max_trades_per_minute"`
	MaxDailyLoss         float64 `json:"max_daily_loss"`
	MaxDailyTrades       int     `json:"max_daily_trades"`
}

// SecretsConfig holds HashiCorp Vault configuration for agent wallet keys.
type SecretsConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

type ServerConfig struct {
	Enabled         bool   `json:"enabled"`
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`
	JWTSecret       string `json:"jwt_secret"`
	ReadTimeout     int    `json:"read_timeout"`
	WriteTimeout    int    `json:"write_timeout"`
	ShutdownTimeout int    `json:"shutdown_timeout"`
}

type NotifyConfig struct {
	Enabled           bool   `json:"enabled"`
	TelegramEnabled   bool   `json:"telegram_enabled"`
	DiscordEnabled    bool   `json:"discord_enabled"`
	DiscordWebhookURL string `json:"discord_webhook_url"`
}

type LoggingConfig struct {
	Level       string `json:"level"`  // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"` // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`
	IncludeFile bool   `json:"include_file"`
}

// Load reads config.json if present and applies environment overrides.
// Every key absent from the file receives its documented default.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if cfg.HyperliquidConfig.TestNet && !strings.Contains(cfg.HyperliquidConfig.APIURL, "testnet") {
		cfg.HyperliquidConfig.APIURL = TestnetAPIURL
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.HyperliquidConfig.APIURL = getEnvOrDefault("HL_API_URL", cfg.HyperliquidConfig.APIURL)
	cfg.HyperliquidConfig.WSURL = getEnvOrDefault("HL_WS_URL", cfg.HyperliquidConfig.WSURL)
	cfg.HyperliquidConfig.VaultAddress = getEnvOrDefault("HL_VAULT_ADDRESS", cfg.HyperliquidConfig.VaultAddress)
	if v := os.Getenv("HL_TESTNET"); v != "" {
		cfg.HyperliquidConfig.TestNet = v == "true"
	}

	cfg.TelegramConfig.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.TelegramConfig.BotToken)
	cfg.TelegramConfig.AdminChatID = getEnvOrDefault("TELEGRAM_ADMIN_CHAT_ID", cfg.TelegramConfig.AdminChatID)
	if v := os.Getenv("TELEGRAM_ENABLED"); v != "" {
		cfg.TelegramConfig.Enabled = v == "true"
	}

	if v := os.Getenv("TRADING_DRY_RUN"); v != "" {
		cfg.TradingConfig.DryRun = v == "true"
	}

	cfg.SecretsConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.SecretsConfig.Address)
	cfg.SecretsConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.SecretsConfig.Token)
	if v := os.Getenv("VAULT_ENABLED"); v != "" {
		cfg.SecretsConfig.Enabled = v == "true"
	}

	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)

	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDR", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	if v := os.Getenv("REDIS_ENABLED"); v != "" {
		cfg.RedisConfig.Enabled = v == "true"
	}

	cfg.ServerConfig.Port = getEnvIntOrDefault("API_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.JWTSecret = getEnvOrDefault("API_JWT_SECRET", cfg.ServerConfig.JWTSecret)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
}

// applyDefaults fills every zero-valued field with its documented default.
func applyDefaults(cfg *Config) {
	if cfg.HyperliquidConfig.APIURL == "" {
		cfg.HyperliquidConfig.APIURL = MainnetAPIURL
	}
	if cfg.HyperliquidConfig.WSURL == "" {
		cfg.HyperliquidConfig.WSURL = "wss://api.hyperliquid.xyz/ws"
	}
	if cfg.HyperliquidConfig.Timeout == 0 {
		cfg.HyperliquidConfig.Timeout = 10
	}

	if cfg.TelegramConfig.CommandCooldown == 0 {
		cfg.TelegramConfig.CommandCooldown = 3
	}

	if cfg.TradingConfig.DefaultOrderSizeUSD == 0 {
		cfg.TradingConfig.DefaultOrderSizeUSD = 50.0
	}
	if cfg.TradingConfig.MinOrderSizeUSD == 0 {
		cfg.TradingConfig.MinOrderSizeUSD = 10.0
	}
	if cfg.TradingConfig.MaxOrderSizeUSD == 0 {
		cfg.TradingConfig.MaxOrderSizeUSD = 1000.0
	}
	if cfg.TradingConfig.DefaultSlippageBps == 0 {
		cfg.TradingConfig.DefaultSlippageBps = 10
	}
	if cfg.TradingConfig.MaxLeverage == 0 {
		cfg.TradingConfig.MaxLeverage = 5
	}

	if cfg.GridConfig.Levels == 0 {
		cfg.GridConfig.Levels = 10
	}
	if cfg.GridConfig.SpacingBps == 0 {
		cfg.GridConfig.SpacingBps = 20
	}
	if cfg.GridConfig.MaxLevels == 0 {
		cfg.GridConfig.MaxLevels = 20
	}
	if cfg.GridConfig.AllocationPct == 0 {
		cfg.GridConfig.AllocationPct = 0.30
	}
	if cfg.GridConfig.AllocationCapUSD == 0 {
		cfg.GridConfig.AllocationCapUSD = 2000.0
	}
	if cfg.GridConfig.RefillIntervalS == 0 {
		cfg.GridConfig.RefillIntervalS = 30
	}

	if cfg.RebateConfig.QuoteSizeUSD == 0 {
		cfg.RebateConfig.QuoteSizeUSD = 100.0
	}
	if cfg.RebateConfig.SpreadBps == 0 {
		cfg.RebateConfig.SpreadBps = 5
	}
	if cfg.RebateConfig.RequoteDriftBps == 0 {
		cfg.RebateConfig.RequoteDriftBps = 3
	}
	if cfg.RebateConfig.CycleSeconds == 0 {
		cfg.RebateConfig.CycleSeconds = 30
	}

	if cfg.AirdropConfig.DailyInteractions == 0 {
		cfg.AirdropConfig.DailyInteractions = 20
	}
	if cfg.AirdropConfig.MicroTradeSizeUSD == 0 {
		cfg.AirdropConfig.MicroTradeSizeUSD = 12.0
	}
	if len(cfg.AirdropConfig.SpotPairs) == 0 {
		cfg.AirdropConfig.SpotPairs = []string{"PURR/USDC", "HYPE/USDC"}
	}
	if cfg.AirdropConfig.IntervalMinutes == 0 {
		cfg.AirdropConfig.IntervalMinutes = 45
	}

	if cfg.VaultConfig.MinimumDeposit == 0 {
		cfg.VaultConfig.MinimumDeposit = 50.0
	}
	if cfg.VaultConfig.ProfitShareRate == 0 {
		cfg.VaultConfig.ProfitShareRate = 0.10
	}
	if cfg.VaultConfig.ReferralBonusPct == 0 {
		cfg.VaultConfig.ReferralBonusPct = 0.01
	}
	if cfg.VaultConfig.MinOwnershipPct == 0 {
		cfg.VaultConfig.MinOwnershipPct = 0.05
	}

	if cfg.RiskConfig.MaxRiskPerTrade == 0 {
		cfg.RiskConfig.MaxRiskPerTrade = 2.0
	}
	if cfg.RiskConfig.MaxDailyDrawdown == 0 {
		cfg.RiskConfig.MaxDailyDrawdown = 5.0
	}
	if cfg.RiskConfig.MaxOpenPositions == 0 {
		cfg.RiskConfig.MaxOpenPositions = 10
	}
	if cfg.RiskConfig.PositionSizeMethod == "" {
		cfg.RiskConfig.PositionSizeMethod = "percent"
	}
	if cfg.RiskConfig.FixedPositionSize == 0 {
		cfg.RiskConfig.FixedPositionSize = 100.0
	}
	if cfg.RiskConfig.MinAccountBalance == 0 {
		cfg.RiskConfig.MinAccountBalance = 10.0
	}

	if cfg.CircuitConfig.MaxLossPerHour == 0 {
		cfg.CircuitConfig.MaxLossPerHour = 3.0
	}
	if cfg.CircuitConfig.MaxConsecutiveLosses == 0 {
		cfg.CircuitConfig.MaxConsecutiveLosses = 5
	}
	if cfg.CircuitConfig.CooldownMinutes == 0 {
		cfg.CircuitConfig.CooldownMinutes = 30
	}
	if cfg.CircuitConfig.MaxTradesPerMinute == 0 {
		cfg.CircuitConfig.MaxTradesPerMinute = 10
	}
	if cfg.CircuitConfig.MaxDailyLoss == 0 {
		cfg.CircuitConfig.MaxDailyLoss = 5.0
	}
	if cfg.CircuitConfig.MaxDailyTrades == 0 {
		cfg.CircuitConfig.MaxDailyTrades = 100
	}

	if cfg.SecretsConfig.Address == "" {
		cfg.SecretsConfig.Address = "http://localhost:8200"
	}
	if cfg.SecretsConfig.MountPath == "" {
		cfg.SecretsConfig.MountPath = "secret"
	}
	if cfg.SecretsConfig.SecretPath == "" {
		cfg.SecretsConfig.SecretPath = "alpha-bot/wallets"
	}

	if cfg.DatabaseConfig.Host == "" {
		cfg.DatabaseConfig.Host = "localhost"
	}
	if cfg.DatabaseConfig.Port == 0 {
		cfg.DatabaseConfig.Port = 5432
	}
	if cfg.DatabaseConfig.User == "" {
		cfg.DatabaseConfig.User = "alpha_bot"
	}
	if cfg.DatabaseConfig.Database == "" {
		cfg.DatabaseConfig.Database = "alpha_bot"
	}
	if cfg.DatabaseConfig.SSLMode == "" {
		cfg.DatabaseConfig.SSLMode = "disable"
	}

	if cfg.RedisConfig.Address == "" {
		cfg.RedisConfig.Address = "localhost:6379"
	}
	if cfg.RedisConfig.PoolSize == 0 {
		cfg.RedisConfig.PoolSize = 10
	}

	if cfg.ServerConfig.Port == 0 {
		cfg.ServerConfig.Port = 8080
	}
	if cfg.ServerConfig.Host == "" {
		cfg.ServerConfig.Host = "0.0.0.0"
	}
	if cfg.ServerConfig.AllowedOrigins == "" {
		cfg.ServerConfig.AllowedOrigins = "*"
	}
	if cfg.ServerConfig.ReadTimeout == 0 {
		cfg.ServerConfig.ReadTimeout = 30
	}
	if cfg.ServerConfig.WriteTimeout == 0 {
		cfg.ServerConfig.WriteTimeout = 30
	}
	if cfg.ServerConfig.ShutdownTimeout == 0 {
		cfg.ServerConfig.ShutdownTimeout = 10
	}

	if cfg.LoggingConfig.Level == "" {
		cfg.LoggingConfig.Level = "INFO"
	}
	if cfg.LoggingConfig.Output == "" {
		cfg.LoggingConfig.Output = "stdout"
	}
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// HTTPTimeout returns the exchange client timeout as a duration.
func (c *HyperliquidConfig) HTTPTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// IsAdmin reports whether the Telegram user ID is configured as an admin.
func (c *TelegramConfig) IsAdmin(userID int64) bool {
	for _, id := range c.AdminUsers {
		if id == userID {
			return true
		}
	}
	return false
}

// IsAllowed reports whether the Telegram user may use the bot. An empty
// allow list means the bot is open to everyone.
func (c *TelegramConfig) IsAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return c.IsAdmin(userID)
}

// GenerateSampleConfig creates a sample configuration file.
func GenerateSampleConfig(filename string) error {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.HyperliquidConfig.TestNet = true
	cfg.HyperliquidConfig.APIURL = TestnetAPIURL
	cfg.TelegramConfig.BotToken = "your_bot_token_here"
	cfg.TradingConfig.DryRun = true

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
