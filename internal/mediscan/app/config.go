package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ConfigFileEnv names the optional TOML overlay.
const ConfigFileEnv = "MEDISCAN_CONFIG_FILE"

const minSecretLength = 32

type Config struct {
	Env                  string        // Environment (dev, test, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 5000)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Expired chat sweep interval (default: 1h)
	ConfigFile           string        // Optional: TOML overlay, watched for log_level changes

	StorageDriver string // sqlite, postgres or bolt (default: sqlite)
	DatabaseFile  string // SQLite file (default: mediscan.db)
	DatabaseURL   string // Postgres DSN
	BoltFile      string // bbolt file (default: mediscan.bolt)
	PepperFile    string // Password pepper, created on first start (default: pepper)

	AccessTokenSecret  string        // Required
	RefreshTokenSecret string        // Required, must differ from the access secret
	AccessTokenTTL     time.Duration // default: 15m
	RefreshTokenTTL    time.Duration // default: 7d
	TokenIssuer        string        // default: mediscan

	LockoutMaxAttempts int           // default: 5
	LockoutDuration    time.Duration // default: 1h
	ChatRetention      time.Duration // default: 30d

	BootstrapToken string   // Optional: enables POST /api/bootstrap
	CORSOrigins    []string // default: the two local dev servers

	GeminiAPIKey  string // Optional: enables analysis and assistant replies
	GeminiModel   string
	GeminiBaseURL string

	S3Bucket    string // Optional: enables avatar uploads
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3PublicURL string

	ExternalAuthIssuer   string   // Optional: enables POST /api/auth/external
	ExternalAuthJWKSURL  string   // Required with the issuer
	ExternalAuthAudience []string // Optional audience check

	// LogOutput defaults to stdout. Not read from the environment.
	LogOutput io.Writer
}

// fileConfig is the TOML overlay. Durations are strings in the same
// formats the environment accepts.
type fileConfig struct {
	Env                  string   `toml:"env"`
	LogLevel             string   `toml:"log_level"`
	LogFormat            string   `toml:"log_format"`
	Port                 int      `toml:"port"`
	ShutdownGracePeriod  string   `toml:"shutdown_grace_period"`
	HousekeepingInterval string   `toml:"housekeeping_interval"`
	StorageDriver        string   `toml:"storage_driver"`
	DatabaseFile         string   `toml:"database_file"`
	DatabaseURL          string   `toml:"database_url"`
	BoltFile             string   `toml:"bolt_file"`
	PepperFile           string   `toml:"pepper_file"`
	AccessTokenTTL       string   `toml:"access_token_expires_in"`
	RefreshTokenTTL      string   `toml:"refresh_token_expires_in"`
	TokenIssuer          string   `toml:"token_issuer"`
	LockoutMaxAttempts   int      `toml:"lockout_max_attempts"`
	LockoutDuration      string   `toml:"lockout_duration"`
	ChatRetention        string   `toml:"chat_retention"`
	CORSOrigins          []string `toml:"cors_origins"`
	GeminiModel          string   `toml:"gemini_model"`
	GeminiBaseURL        string   `toml:"gemini_base_url"`
	S3Bucket             string   `toml:"s3_bucket"`
	S3Region             string   `toml:"s3_region"`
	S3Endpoint           string   `toml:"s3_endpoint"`
	S3PublicURL          string   `toml:"s3_public_url"`
	ExternalAuthIssuer   string   `toml:"external_auth_issuer"`
	ExternalAuthJWKSURL  string   `toml:"external_auth_jwks_url"`
	ExternalAuthAudience []string `toml:"external_auth_audience"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Env:                  "dev",
		LogLevel:             "info",
		LogFormat:            "json",
		Port:                 5000,
		ShutdownGracePeriod:  10 * time.Second,
		HousekeepingInterval: time.Hour,
		StorageDriver:        "sqlite",
		DatabaseFile:         "mediscan.db",
		BoltFile:             "mediscan.bolt",
		PepperFile:           "pepper",
		AccessTokenTTL:       15 * time.Minute,
		RefreshTokenTTL:      7 * 24 * time.Hour,
		TokenIssuer:          "mediscan",
		LockoutMaxAttempts:   5,
		LockoutDuration:      time.Hour,
		ChatRetention:        30 * 24 * time.Hour,
		CORSOrigins:          []string{"http://localhost:5173", "http://localhost:5174"},
	}
}

// LoadConfig starts from Defaults, applies the TOML overlay named by
// MEDISCAN_CONFIG_FILE and then the environment. Secrets are only read
// from the environment.
func LoadConfig() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		fc, err := readConfigFile(path)
		if err != nil {
			return cfg, err
		}
		fc.apply(&cfg)
		cfg.ConfigFile = path
	}

	cfg.Env = getEnvOrDefault("ENV", cfg.Env)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvOrDefault("LOG_FORMAT", cfg.LogFormat)
	cfg.Port = getEnvIntOrDefault("PORT", cfg.Port)
	cfg.ShutdownGracePeriod = getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", cfg.ShutdownGracePeriod)
	cfg.HousekeepingInterval = getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", cfg.HousekeepingInterval)

	cfg.StorageDriver = getEnvOrDefault("STORAGE_DRIVER", cfg.StorageDriver)
	cfg.DatabaseFile = getEnvOrDefault("DATABASE_FILE", cfg.DatabaseFile)
	cfg.DatabaseURL = getEnvOrDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.BoltFile = getEnvOrDefault("BOLT_FILE", cfg.BoltFile)
	cfg.PepperFile = getEnvOrDefault("PEPPER_FILE", cfg.PepperFile)

	cfg.AccessTokenSecret = os.Getenv("ACCESS_TOKEN_SECRET")
	cfg.RefreshTokenSecret = os.Getenv("REFRESH_TOKEN_SECRET")
	cfg.AccessTokenTTL = getEnvDurationOrDefault("ACCESS_TOKEN_EXPIRES_IN", cfg.AccessTokenTTL)
	cfg.RefreshTokenTTL = getEnvDurationOrDefault("REFRESH_TOKEN_EXPIRES_IN", cfg.RefreshTokenTTL)
	cfg.TokenIssuer = getEnvOrDefault("TOKEN_ISSUER", cfg.TokenIssuer)

	cfg.LockoutMaxAttempts = getEnvIntOrDefault("LOCKOUT_MAX_ATTEMPTS", cfg.LockoutMaxAttempts)
	cfg.LockoutDuration = getEnvDurationOrDefault("LOCKOUT_DURATION", cfg.LockoutDuration)
	cfg.ChatRetention = getEnvDurationOrDefault("CHAT_RETENTION", cfg.ChatRetention)

	cfg.BootstrapToken = os.Getenv("BOOTSTRAP_TOKEN")
	cfg.CORSOrigins = getEnvListOrDefault("CORS_ORIGINS", cfg.CORSOrigins)

	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.GeminiModel = getEnvOrDefault("GEMINI_MODEL", cfg.GeminiModel)
	cfg.GeminiBaseURL = getEnvOrDefault("GEMINI_BASE_URL", cfg.GeminiBaseURL)

	cfg.S3Bucket = getEnvOrDefault("S3_BUCKET", cfg.S3Bucket)
	cfg.S3Region = getEnvOrDefault("S3_REGION", cfg.S3Region)
	cfg.S3Endpoint = getEnvOrDefault("S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3AccessKey = os.Getenv("S3_ACCESS_KEY")
	cfg.S3SecretKey = os.Getenv("S3_SECRET_KEY")
	cfg.S3PublicURL = getEnvOrDefault("S3_PUBLIC_URL", cfg.S3PublicURL)

	cfg.ExternalAuthIssuer = getEnvOrDefault("EXTERNAL_AUTH_ISSUER", cfg.ExternalAuthIssuer)
	cfg.ExternalAuthJWKSURL = getEnvOrDefault("EXTERNAL_AUTH_JWKS_URL", cfg.ExternalAuthJWKSURL)
	cfg.ExternalAuthAudience = getEnvListOrDefault("EXTERNAL_AUTH_AUDIENCE", cfg.ExternalAuthAudience)

	return cfg, nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error

	switch {
	case c.AccessTokenSecret == "" || c.RefreshTokenSecret == "":
		errs = append(errs, errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET are required"))
	case c.AccessTokenSecret == c.RefreshTokenSecret:
		errs = append(errs, errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ"))
	case len(c.AccessTokenSecret) < minSecretLength || len(c.RefreshTokenSecret) < minSecretLength:
		errs = append(errs, fmt.Errorf("token secrets must be at least %d bytes", minSecretLength))
	}

	switch c.StorageDriver {
	case "sqlite", "bolt":
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.StorageDriver))
	}

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Port))
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.ExternalAuthIssuer != "" && c.ExternalAuthJWKSURL == "" {
		errs = append(errs, errors.New("EXTERNAL_AUTH_JWKS_URL is required with EXTERNAL_AUTH_ISSUER"))
	}

	return errors.Join(errs...)
}

func readConfigFile(path string) (fileConfig, error) {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fc, fmt.Errorf("read config file %s: %w", path, err)
	}
	return fc, nil
}

func (fc fileConfig) apply(cfg *Config) {
	setString(&cfg.Env, fc.Env)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.LogFormat, fc.LogFormat)
	if fc.Port > 0 {
		cfg.Port = fc.Port
	}
	setDuration(&cfg.ShutdownGracePeriod, fc.ShutdownGracePeriod)
	setDuration(&cfg.HousekeepingInterval, fc.HousekeepingInterval)

	setString(&cfg.StorageDriver, fc.StorageDriver)
	setString(&cfg.DatabaseFile, fc.DatabaseFile)
	setString(&cfg.DatabaseURL, fc.DatabaseURL)
	setString(&cfg.BoltFile, fc.BoltFile)
	setString(&cfg.PepperFile, fc.PepperFile)

	setDuration(&cfg.AccessTokenTTL, fc.AccessTokenTTL)
	setDuration(&cfg.RefreshTokenTTL, fc.RefreshTokenTTL)
	setString(&cfg.TokenIssuer, fc.TokenIssuer)

	if fc.LockoutMaxAttempts > 0 {
		cfg.LockoutMaxAttempts = fc.LockoutMaxAttempts
	}
	setDuration(&cfg.LockoutDuration, fc.LockoutDuration)
	setDuration(&cfg.ChatRetention, fc.ChatRetention)
	if len(fc.CORSOrigins) > 0 {
		cfg.CORSOrigins = fc.CORSOrigins
	}

	setString(&cfg.GeminiModel, fc.GeminiModel)
	setString(&cfg.GeminiBaseURL, fc.GeminiBaseURL)
	setString(&cfg.S3Bucket, fc.S3Bucket)
	setString(&cfg.S3Region, fc.S3Region)
	setString(&cfg.S3Endpoint, fc.S3Endpoint)
	setString(&cfg.S3PublicURL, fc.S3PublicURL)
	setString(&cfg.ExternalAuthIssuer, fc.ExternalAuthIssuer)
	setString(&cfg.ExternalAuthJWKSURL, fc.ExternalAuthJWKSURL)
	if len(fc.ExternalAuthAudience) > 0 {
		cfg.ExternalAuthAudience = fc.ExternalAuthAudience
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v string) {
	if d, ok := parseDuration(v); ok {
		*dst = d
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if d, ok := parseDuration(os.Getenv(key)); ok {
		return d
	}
	return defaultValue
}

func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// parseDuration accepts Go durations ("90s", "1h"), whole days ("7d") and
// bare integers as minutes.
func parseDuration(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration, true
	}

	if days, ok := strings.CutSuffix(value, "d"); ok {
		if n, err := strconv.Atoi(days); err == nil {
			return time.Duration(n) * 24 * time.Hour, true
		}
	}

	// Try parsing as integer minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute, true
	}

	return 0, false
}
