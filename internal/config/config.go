package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/slot-booking/internal/email"
	"github.com/jwalitptl/slot-booking/internal/model"
	"github.com/jwalitptl/slot-booking/internal/repository/sqlstore"
	"github.com/jwalitptl/slot-booking/pkg/messaging/redis"
)

const envPrefix = "SLOTS"

const minSecretLength = 16

type Config struct {
	Env       string          `mapstructure:"env"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Booking   BookingConfig   `mapstructure:"booking"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Redis     RedisConfig     `mapstructure:"redis"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Purge     PurgeConfig     `mapstructure:"purge"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig selects the slot store. Driver is postgres, sqlite3 or
// jsonfile.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	Path            string        `mapstructure:"path"`
	JSONPath        string        `mapstructure:"json_path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type AdminConfig struct {
	Email        string `mapstructure:"email"`
	PasswordHash string `mapstructure:"password_hash"`
}

type BookingConfig struct {
	ClaimStatus     string `mapstructure:"claim_status"`
	ReferencePrefix string `mapstructure:"reference_prefix"`
	Timezone        string `mapstructure:"timezone"`
	WhatsAppPhone   string `mapstructure:"whatsapp_phone"`
}

type RateLimitConfig struct {
	ClaimsPerMinute int `mapstructure:"claims_per_minute"`
	Burst           int `mapstructure:"burst"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	Channel      string        `mapstructure:"channel"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type SMTPConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	From       string `mapstructure:"from"`
	NotifyTo   string `mapstructure:"notify_to"`
	MaxRetries int    `mapstructure:"max_retries"`
}

type PurgeConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	// HealthPort serves health and metrics for the standalone worker.
	HealthPort int `mapstructure:"health_port"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// secrets are read with envconfig and win over the config file.
type secrets struct {
	JWTSecret         string `envconfig:"JWT_SECRET"`
	AdminPasswordHash string `envconfig:"ADMIN_PASSWORD_HASH"`
	SMTPPassword      string `envconfig:"SMTP_PASSWORD"`
	DatabasePassword  string `envconfig:"DATABASE_PASSWORD"`
	DatabaseDSN       string `envconfig:"DATABASE_DSN"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "slots")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "data/slots.db")
	v.SetDefault("database.json_path", "data/slots.json")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.migrate", true)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "slot-booking")
	v.SetDefault("jwt.ttl", 12*time.Hour)

	v.SetDefault("admin.email", "")
	v.SetDefault("admin.password_hash", "")

	v.SetDefault("booking.claim_status", string(model.SlotStatusBooked))
	v.SetDefault("booking.reference_prefix", "RDV")
	v.SetDefault("booking.timezone", "Africa/Casablanca")
	v.SetDefault("booking.whatsapp_phone", "212753235215")

	v.SetDefault("rate_limit.claims_per_minute", 10)
	v.SetDefault("rate_limit.burst", 5)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.channel", "slot.claimed")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("smtp.notify_to", "")
	v.SetDefault("smtp.max_retries", 2)

	v.SetDefault("purge.enabled", false)
	v.SetDefault("purge.interval", time.Hour)
	v.SetDefault("purge.health_port", 8081)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

// LoadConfig loads and validates the configuration.
func LoadConfig(configFile string) (*Config, error) {
	cfg, err := Load(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads .env, then the YAML file (configFile, or config.yml in the
// usual places), then SLOTS_* environment overrides. It does not validate,
// so tools that only touch the store can run without a JWT secret.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var s secrets
	if err := envconfig.Process(envPrefix, &s); err != nil {
		return nil, fmt.Errorf("failed to read secrets: %w", err)
	}
	cfg.applySecrets(s)
	return &cfg, nil
}

func (c *Config) applySecrets(s secrets) {
	if s.JWTSecret != "" {
		c.JWT.Secret = s.JWTSecret
	}
	if s.AdminPasswordHash != "" {
		c.Admin.PasswordHash = s.AdminPasswordHash
	}
	if s.SMTPPassword != "" {
		c.SMTP.Password = s.SMTPPassword
	}
	if s.DatabasePassword != "" {
		c.Database.Password = s.DatabasePassword
	}
	if s.DatabaseDSN != "" {
		c.Database.DSN = s.DatabaseDSN
	}
}

func (c *Config) Validate() error {
	var problems []string

	if len(c.JWT.Secret) < minSecretLength {
		problems = append(problems, fmt.Sprintf("jwt secret must be at least %d characters (set %s_JWT_SECRET)", minSecretLength, envPrefix))
	}
	switch c.Database.Driver {
	case "postgres", "sqlite3", "jsonfile":
	default:
		problems = append(problems, fmt.Sprintf("unknown database driver %q", c.Database.Driver))
	}
	switch model.SlotStatus(c.Booking.ClaimStatus) {
	case model.SlotStatusBooked, model.SlotStatusPending:
	default:
		problems = append(problems, fmt.Sprintf("claim status must be booked or pending, got %q", c.Booking.ClaimStatus))
	}
	if _, err := time.LoadLocation(c.Booking.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("unknown timezone %q", c.Booking.Timezone))
	}
	if c.RateLimit.ClaimsPerMinute <= 0 || c.RateLimit.Burst <= 0 {
		problems = append(problems, "rate limit values must be positive")
	}
	if c.Purge.Enabled && c.Purge.Interval <= 0 {
		problems = append(problems, "purge interval must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Location returns the practice timezone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Booking.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ConnString returns the configured DSN, or builds one from parts.
func (c DatabaseConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	if c.Driver == "sqlite3" {
		return c.Path
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

func (c DatabaseConfig) ToStoreConfig() sqlstore.Config {
	return sqlstore.Config{
		Driver:          c.Driver,
		DSN:             c.ConnString(),
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		Migrate:         c.Migrate,
	}
}

func (c RedisConfig) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}

func (c SMTPConfig) ToEmailConfig() email.SMTPConfig {
	return email.SMTPConfig{
		Host:       c.Host,
		Port:       c.Port,
		Username:   c.Username,
		Password:   c.Password,
		From:       c.From,
		MaxRetries: uint64(c.MaxRetries),
	}
}
