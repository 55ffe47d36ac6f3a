package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/garyjia/site-audit/internal/domain/geo"
	"github.com/garyjia/site-audit/internal/domain/scoring"
	"github.com/garyjia/site-audit/pkg/database"
)

// EnvPrefix namespaces every environment override, e.g. AUDIT_SERVER_PORT
const EnvPrefix = "AUDIT"

// Lock drivers
const (
	LockDriverLocal = "local"
	LockDriverRedis = "redis"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Lock     LockConfig     `mapstructure:"lock"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Scoring  ScoringConfig  `mapstructure:"scoring"`
	GPS      geo.Thresholds `mapstructure:"gps"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Lark     LarkConfig     `mapstructure:"lark"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Workers  WorkersConfig  `mapstructure:"workers"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	MaxUploadSize int64         `mapstructure:"max_upload_size"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	database.Config `mapstructure:",squash"`
	AutoMigrate     bool `mapstructure:"auto_migrate"`
}

// LockConfig selects the per-audit lock implementation
type LockConfig struct {
	Driver        string        `mapstructure:"driver"`
	WaitTimeout   time.Duration `mapstructure:"wait_timeout"`
	TTL           time.Duration `mapstructure:"ttl"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	Prefix        string        `mapstructure:"prefix"`
}

// RedisConfig is only read when lock.driver is redis
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ScoringConfig holds the section score policy and the tier thresholds
type ScoringConfig struct {
	Policy    scoring.Policy `mapstructure:"policy"`
	Tiers     scoring.Tiers  `mapstructure:"tiers"`
	AutoClose bool           `mapstructure:"auto_close"`
}

// OpenAIConfig holds configuration for the AI section scorer
type OpenAIConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	PromptsPath string        `mapstructure:"prompts_path"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// LarkConfig holds Lark notification configuration
type LarkConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`
	ChatID    string `mapstructure:"chat_id"`
	BaseURL   string `mapstructure:"base_url"`
}

// StorageConfig holds file system locations
type StorageConfig struct {
	EvidenceDir string `mapstructure:"evidence_dir"`
	ExportDir   string `mapstructure:"export_dir"`
}

// WorkersConfig drives the background sweeps
type WorkersConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Address returns the listen address
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load loads configuration from file and environment variables. An empty
// configPath runs on defaults and environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnvVars(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.max_upload_size", 20<<20)

	// Database defaults
	v.SetDefault("database.path", "data/site_audit.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.busy_timeout", 5*time.Second)
	v.SetDefault("database.auto_migrate", true)

	// Locking
	v.SetDefault("lock.driver", LockDriverLocal)
	v.SetDefault("lock.wait_timeout", 10*time.Second)
	v.SetDefault("lock.ttl", 30*time.Second)
	v.SetDefault("lock.retry_interval", 100*time.Millisecond)
	v.SetDefault("lock.prefix", "audit-lock:")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Scoring
	policy := scoring.DefaultPolicy()
	v.SetDefault("scoring.policy.cumple_floor", policy.CumpleFloor)
	v.SetDefault("scoring.policy.observations_factor", policy.ObservationsFactor)
	v.SetDefault("scoring.policy.observations_floor", policy.ObservationsFloor)
	v.SetDefault("scoring.policy.no_cumple_ceiling", policy.NoCumpleCeiling)
	tiers := scoring.DefaultTiers()
	v.SetDefault("scoring.tiers.excellent", tiers.Excellent)
	v.SetDefault("scoring.tiers.satisfactory", tiers.Satisfactory)
	v.SetDefault("scoring.tiers.acceptable", tiers.Acceptable)
	v.SetDefault("scoring.tiers.deficient", tiers.Deficient)
	v.SetDefault("scoring.auto_close", true)

	gps := geo.DefaultThresholds()
	v.SetDefault("gps.verified_meters", gps.VerifiedMeters)
	v.SetDefault("gps.minor_meters", gps.MinorMeters)

	// OpenAI defaults
	v.SetDefault("openai.enabled", false)
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.prompts_path", "configs/prompts.yaml")
	v.SetDefault("openai.timeout", 60*time.Second)

	// Lark defaults
	v.SetDefault("lark.enabled", false)
	v.SetDefault("lark.app_id", "")
	v.SetDefault("lark.app_secret", "")
	v.SetDefault("lark.chat_id", "")
	v.SetDefault("lark.base_url", "")

	v.SetDefault("storage.evidence_dir", "data/evidence")
	v.SetDefault("storage.export_dir", "data/exports")

	v.SetDefault("workers.enabled", true)
	v.SetDefault("workers.poll_interval", time.Minute)
	v.SetDefault("workers.batch_size", 50)
	v.SetDefault("workers.timeout", 30*time.Second)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Sensitive credentials also accepted under their conventional names
	_ = v.BindEnv("openai.api_key", EnvPrefix+"_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("lark.app_id", EnvPrefix+"_LARK_APP_ID", "LARK_APP_ID")
	_ = v.BindEnv("lark.app_secret", EnvPrefix+"_LARK_APP_SECRET", "LARK_APP_SECRET")
	_ = v.BindEnv("redis.password", EnvPrefix+"_REDIS_PASSWORD", "REDIS_PASSWORD")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxUploadSize <= 0 {
		return errors.New("server.max_upload_size must be positive")
	}
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}

	switch c.Lock.Driver {
	case LockDriverLocal:
	case LockDriverRedis:
		if c.Redis.Addr == "" {
			return errors.New("redis.addr is required when lock.driver is redis")
		}
		if c.Lock.TTL <= 0 {
			return errors.New("lock.ttl must be positive")
		}
	default:
		return fmt.Errorf("lock.driver must be %q or %q, got %q", LockDriverLocal, LockDriverRedis, c.Lock.Driver)
	}
	if c.Lock.WaitTimeout <= 0 {
		return errors.New("lock.wait_timeout must be positive")
	}

	if err := validatePolicy(c.Scoring.Policy); err != nil {
		return err
	}
	if err := validateTiers(c.Scoring.Tiers); err != nil {
		return err
	}

	if c.GPS.VerifiedMeters <= 0 {
		return errors.New("gps.verified_meters must be positive")
	}
	if c.GPS.VerifiedMeters >= c.GPS.MinorMeters {
		return fmt.Errorf("gps.verified_meters (%.0f) must be below gps.minor_meters (%.0f)", c.GPS.VerifiedMeters, c.GPS.MinorMeters)
	}

	if c.OpenAI.Enabled {
		if c.OpenAI.APIKey == "" {
			return errors.New("openai.api_key is required when openai is enabled")
		}
		if c.OpenAI.PromptsPath == "" {
			return errors.New("openai.prompts_path is required when openai is enabled")
		}
	}

	if c.Lark.Enabled {
		if c.Lark.AppID == "" {
			return errors.New("lark.app_id is required when lark is enabled")
		}
		if c.Lark.AppSecret == "" {
			return errors.New("lark.app_secret is required when lark is enabled")
		}
		if c.Lark.ChatID == "" {
			return errors.New("lark.chat_id is required when lark is enabled")
		}
	}

	if c.Storage.EvidenceDir == "" {
		return errors.New("storage.evidence_dir is required")
	}
	if c.Storage.ExportDir == "" {
		return errors.New("storage.export_dir is required")
	}

	if c.Workers.Enabled && c.Workers.PollInterval <= 0 {
		return errors.New("workers.poll_interval must be positive")
	}

	return nil
}

func validatePolicy(p scoring.Policy) error {
	for name, v := range map[string]float64{
		"cumple_floor":       p.CumpleFloor,
		"observations_floor": p.ObservationsFloor,
		"no_cumple_ceiling":  p.NoCumpleCeiling,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("scoring.policy.%s must be within 0..100, got %v", name, v)
		}
	}
	if p.ObservationsFactor <= 0 || p.ObservationsFactor > 1 {
		return fmt.Errorf("scoring.policy.observations_factor must be within (0, 1], got %v", p.ObservationsFactor)
	}
	return nil
}

func validateTiers(t scoring.Tiers) error {
	if t.Excellent > 100 || t.Deficient < 0 {
		return errors.New("scoring.tiers must lie within 0..100")
	}
	if !(t.Excellent > t.Satisfactory && t.Satisfactory > t.Acceptable && t.Acceptable > t.Deficient) {
		return errors.New("scoring.tiers must be strictly descending from excellent to deficient")
	}
	return nil
}
