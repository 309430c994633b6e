package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/rayscout/rayscout/pkg/validation"
)

const (
	// Raydium AMM fee account. Its log activity co-occurs with pool creation.
	DefaultFeeAccount = "7YttLkHDoNj9wyDur5pM1ejNaAvT9X4eqaYcHQqtj2G5"
	// Raydium liquidity pool authority that owns both pool vaults.
	DefaultPoolOwner = "5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1"
	// Wrapped SOL mint, the reference (quote) asset.
	DefaultReferenceMint = "So11111111111111111111111111111111111111112"

	StoreBackendJSON     = "json"
	StoreBackendPostgres = "postgres"
)

type Config struct {
	Development bool
	// API configuration
	APIPort int
	// Solana configuration
	RPCEndpoint          string
	RPCWebsocketEndpoint string
	FeeAccount           string
	PoolOwner            string
	ReferenceMint        string

	// Telegram configuration
	TelegramBotToken string
	// AdminChatID restricts admin commands when non-zero
	AdminChatID int64

	// Risk configuration
	MaxRiskScore     int64
	AutoSnipeEnabled bool
	RugCheckURL      string
	RugCheckDelay    time.Duration
	RugCheckTimeout  time.Duration
	SnipeWaitTimeout time.Duration

	// Storage configuration
	StoreBackend     string
	DataDir          string
	RecordMaxAgeDays int
	StatusLimit      int

	// Postgres configuration, used when StoreBackend is postgres
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
}

// TokensFile is the JSON array of detected tokens
func (c *Config) TokensFile() string {
	return filepath.Join(c.DataDir, "tokens.json")
}

// ErrorLogFile is the plain-text error trail
func (c *Config) ErrorLogFile() string {
	return filepath.Join(c.DataDir, "error.log")
}

var apiKeyPattern = regexp.MustCompile(`api-key=[^&]+`)

// Summary returns loggable configuration with secrets redacted
func (c *Config) Summary() map[string]interface{} {
	return map[string]interface{}{
		"rpcEndpoint":      apiKeyPattern.ReplaceAllString(c.RPCEndpoint, "api-key=***"),
		"botConfigured":    c.TelegramBotToken != "",
		"adminConfigured":  c.AdminChatID != 0,
		"maxRiskScore":     c.MaxRiskScore,
		"autoSnipeEnabled": c.AutoSnipeEnabled,
		"rugCheckDelay":    c.RugCheckDelay.String(),
		"storeBackend":     c.StoreBackend,
	}
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	env := &envReader{}
	cfg := &Config{
		Development:          env.asBool("DEVELOPMENT", false),
		APIPort:              env.asInt("PORT", 3000),
		RPCEndpoint:          getEnv("RPC_ENDPOINT", "https://api.mainnet-beta.solana.com"),
		RPCWebsocketEndpoint: getEnv("RPC_WEBSOCKET_ENDPOINT", "wss://api.mainnet-beta.solana.com"),
		FeeAccount:           getEnv("FEE_ACCOUNT", DefaultFeeAccount),
		PoolOwner:            getEnv("LP_POOL_OWNER", DefaultPoolOwner),
		ReferenceMint:        getEnv("REFERENCE_MINT", DefaultReferenceMint),
		TelegramBotToken:     getEnv("BOT_TOKEN", ""),
		AdminChatID:          env.asInt64("ADMIN_CHAT_ID", 0),
		MaxRiskScore:         env.asInt64("MAX_RISK_SCORE", 50000),
		AutoSnipeEnabled:     env.asBool("AUTO_SNIPE_ENABLED", false),
		RugCheckURL:          getEnv("RUGCHECK_URL", "https://api.rugcheck.xyz/v1"),
		RugCheckDelay:        env.asMillis("RUGCHECK_DELAY_MS", 1000*time.Millisecond),
		RugCheckTimeout:      env.asMillis("RUGCHECK_TIMEOUT_MS", 10*time.Second),
		SnipeWaitTimeout:     env.asMillis("SNIPE_WAIT_TIMEOUT_MS", 60*time.Second),
		StoreBackend:         getEnv("STORE_BACKEND", StoreBackendJSON),
		DataDir:              getEnv("DATA_DIR", "data"),
		RecordMaxAgeDays:     env.asInt("RECORD_MAX_AGE_DAYS", 7),
		StatusLimit:          env.asInt("STATUS_LIMIT", 5),
		PostgresUser:         getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword:     getEnv("POSTGRES_PASSWORD", "password"),
		PostgresHost:         getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:         env.asInt("POSTGRES_PORT", 5432),
		PostgresDB:           getEnv("POSTGRES_DB", "rayscout"),
	}

	if err := errors.Join(env.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are properly set
func (c *Config) Validate() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}

	if c.RPCEndpoint == "" {
		return fmt.Errorf("RPC_ENDPOINT is required")
	}

	if c.RPCWebsocketEndpoint == "" {
		return fmt.Errorf("RPC_WEBSOCKET_ENDPOINT is required")
	}

	for name, addr := range map[string]string{
		"FEE_ACCOUNT":    c.FeeAccount,
		"LP_POOL_OWNER":  c.PoolOwner,
		"REFERENCE_MINT": c.ReferenceMint,
	} {
		if err := validation.ValidateAddress(addr); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	if c.RugCheckURL == "" {
		return fmt.Errorf("RUGCHECK_URL is required")
	}

	if c.MaxRiskScore < 0 {
		return fmt.Errorf("MAX_RISK_SCORE must not be negative")
	}

	if c.RugCheckDelay < 0 {
		return fmt.Errorf("RUGCHECK_DELAY_MS must not be negative")
	}

	if c.RugCheckTimeout <= 0 {
		return fmt.Errorf("RUGCHECK_TIMEOUT_MS must be positive")
	}

	if c.SnipeWaitTimeout <= 0 {
		return fmt.Errorf("SNIPE_WAIT_TIMEOUT_MS must be positive")
	}

	if c.RecordMaxAgeDays <= 0 {
		return fmt.Errorf("RECORD_MAX_AGE_DAYS must be positive")
	}

	if c.StatusLimit < 1 {
		return fmt.Errorf("STATUS_LIMIT must be at least 1")
	}

	switch c.StoreBackend {
	case StoreBackendJSON:
		if c.DataDir == "" {
			return fmt.Errorf("DATA_DIR is required")
		}
	case StoreBackendPostgres:
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required")
		}
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	return nil
}

// Helper functions to read environment variables
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// envReader parses typed variables. A variable that is set but does not parse
// is an error, never a silent fallback to the default.
type envReader struct {
	errs []error
}

func (r *envReader) lookup(name string, parse func(string) error) {
	valueStr, exists := os.LookupEnv(name)
	if !exists {
		return
	}
	if err := parse(strings.TrimSpace(valueStr)); err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s %q: %w", name, valueStr, err))
	}
}

func (r *envReader) asInt(name string, defaultValue int) int {
	value := defaultValue
	r.lookup(name, func(s string) (err error) {
		value, err = strconv.Atoi(s)
		return err
	})
	return value
}

func (r *envReader) asInt64(name string, defaultValue int64) int64 {
	value := defaultValue
	r.lookup(name, func(s string) (err error) {
		value, err = strconv.ParseInt(s, 10, 64)
		return err
	})
	return value
}

func (r *envReader) asBool(name string, defaultValue bool) bool {
	value := defaultValue
	r.lookup(name, func(s string) (err error) {
		value, err = strconv.ParseBool(s)
		return err
	})
	return value
}

func (r *envReader) asMillis(name string, defaultValue time.Duration) time.Duration {
	value := defaultValue
	r.lookup(name, func(s string) error {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		value = time.Duration(ms) * time.Millisecond
		return nil
	})
	return value
}
