package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the service configuration loaded once at startup.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	JWT      JWTConfig      `yaml:"jwt"`
	Provider ProviderConfig `yaml:"provider"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Defense  DefenseConfig  `yaml:"defense"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig controls the persistence layer.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig controls the reward dedup store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// JWTConfig controls session token validation.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// ProviderConfig controls the upstream model provider client.
type ProviderConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// LedgerConfig controls the token economy.
type LedgerConfig struct {
	// StartingGrant is the balance a lazily created row begins with.
	StartingGrant int64 `yaml:"starting_grant"`
	// AdRewardAmount is the credit for one completed ad view.
	AdRewardAmount int64 `yaml:"ad_reward_amount"`
	// RewardWindow bounds reward frequency when no idempotency key is supplied.
	RewardWindow time.Duration `yaml:"reward_window"`
	// RewardWindowMax is the maximum rewards per user inside RewardWindow.
	RewardWindowMax int `yaml:"reward_window_max"`
	// IdempotencyTTL bounds the dedup window for reward idempotency keys.
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
	// LowTokenMessageThreshold triggers the low-token warning at or below
	// this many remaining messages.
	LowTokenMessageThreshold int64 `yaml:"low_token_message_threshold"`
	// ExpiryWarningWindow triggers the paid-expiry warning inside this window.
	ExpiryWarningWindow time.Duration `yaml:"expiry_warning_window"`
	// RetentionDays prunes request logs and ad-view events older than this.
	RetentionDays int `yaml:"retention_days"`
	// ModelCosts maps model ID to the token cost per message.
	ModelCosts map[string]int64 `yaml:"model_costs"`
	// ModelCostsFallback is used when ModelCosts is empty and the fallback
	// policy permits it.
	ModelCostsFallback map[string]int64 `yaml:"model_costs_fallback"`
	// FallbackPolicy selects behavior when the primary cost source is empty:
	// "static" uses ModelCostsFallback, "fail" refuses to start.
	FallbackPolicy string `yaml:"fallback_policy"`
}

// DefenseConfig controls request field size limits.
type DefenseConfig struct {
	BodyDefault   int            `yaml:"body_default"`
	QueryDefault  int            `yaml:"query_default"`
	ParamsDefault int            `yaml:"params_default"`
	FieldLimits   map[string]int `yaml:"field_limits"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Defaults applied when the config file omits values.
const (
	defaultAddr                     = ":8080"
	defaultStartingGrant            = 100
	defaultAdRewardAmount           = 20
	defaultRewardWindow             = time.Hour
	defaultRewardWindowMax          = 5
	defaultIdempotencyTTL           = 24 * time.Hour
	defaultLowTokenMessageThreshold = 3
	defaultExpiryWarningWindow      = 3 * 24 * time.Hour
	defaultRetentionDays            = 30
	defaultProviderTimeout          = 60 * time.Second
	defaultJWTExpiry                = 24 * time.Hour
	defaultBodyLimit                = 4000
	defaultQueryLimit               = 256
	defaultParamsLimit              = 128
)

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, errRead := os.ReadFile(path)
	if errRead != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, errRead)
	}

	var cfg Config
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
	}

	cfg.applyDefaults()
	if errValidate := cfg.Validate(); errValidate != nil {
		return nil, errValidate
	}
	return &cfg, nil
}

// ResolvePath picks the config path from the flag value or environment.
func ResolvePath(flagValue string) string {
	if trimmed := strings.TrimSpace(flagValue); trimmed != "" {
		return trimmed
	}
	if env := strings.TrimSpace(os.Getenv("TOKENGATE_CONFIG")); env != "" {
		return env
	}
	return "config.yaml"
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Server.Addr) == "" {
		c.Server.Addr = defaultAddr
	}
	if c.Ledger.StartingGrant == 0 {
		c.Ledger.StartingGrant = defaultStartingGrant
	}
	if c.Ledger.AdRewardAmount == 0 {
		c.Ledger.AdRewardAmount = defaultAdRewardAmount
	}
	if c.Ledger.RewardWindow == 0 {
		c.Ledger.RewardWindow = defaultRewardWindow
	}
	if c.Ledger.RewardWindowMax == 0 {
		c.Ledger.RewardWindowMax = defaultRewardWindowMax
	}
	if c.Ledger.IdempotencyTTL == 0 {
		c.Ledger.IdempotencyTTL = defaultIdempotencyTTL
	}
	if c.Ledger.LowTokenMessageThreshold == 0 {
		c.Ledger.LowTokenMessageThreshold = defaultLowTokenMessageThreshold
	}
	if c.Ledger.ExpiryWarningWindow == 0 {
		c.Ledger.ExpiryWarningWindow = defaultExpiryWarningWindow
	}
	if c.Ledger.RetentionDays == 0 {
		c.Ledger.RetentionDays = defaultRetentionDays
	}
	if c.Ledger.FallbackPolicy == "" {
		c.Ledger.FallbackPolicy = "static"
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = defaultProviderTimeout
	}
	if c.JWT.Expiry == 0 {
		c.JWT.Expiry = defaultJWTExpiry
	}
	if c.Defense.BodyDefault == 0 {
		c.Defense.BodyDefault = defaultBodyLimit
	}
	if c.Defense.QueryDefault == 0 {
		c.Defense.QueryDefault = defaultQueryLimit
	}
	if c.Defense.ParamsDefault == 0 {
		c.Defense.ParamsDefault = defaultParamsLimit
	}
}

// Validate checks invariants that cannot be defaulted away.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("config: database.dsn is required")
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return fmt.Errorf("config: jwt.secret is required")
	}
	for model, cost := range c.Ledger.ModelCosts {
		if cost <= 0 {
			return fmt.Errorf("config: model cost for %q must be positive, got %d", model, cost)
		}
	}
	for model, cost := range c.Ledger.ModelCostsFallback {
		if cost <= 0 {
			return fmt.Errorf("config: fallback model cost for %q must be positive, got %d", model, cost)
		}
	}
	switch c.Ledger.FallbackPolicy {
	case "static", "fail":
	default:
		return fmt.Errorf("config: unknown fallback_policy %q", c.Ledger.FallbackPolicy)
	}
	if c.Ledger.RewardWindow < time.Second {
		return fmt.Errorf("config: reward_window must be at least 1s, got %s", c.Ledger.RewardWindow)
	}
	return nil
}
