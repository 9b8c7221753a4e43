package internal

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env             string                `mapstructure:"env"`
	Server          ServerConfig          `mapstructure:"http_server"`
	Database        DatabaseConfig        `mapstructure:"database"`
	Security        SecurityConfig        `mapstructure:"security"`
	PermissionCache PermissionCacheConfig `mapstructure:"permission_cache"`
	Audit           AuditConfig           `mapstructure:"audit"`
	Observability   ObservabilityConfig   `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	LoginPath         string        `mapstructure:"login_path"`
	AccessDeniedPath  string        `mapstructure:"access_denied_path"`
	CookieName        string        `mapstructure:"cookie_name"`
	CookieSecure      bool          `mapstructure:"cookie_secure"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Source          string        `mapstructure:"source"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

type SecurityConfig struct {
	SessionLifetime time.Duration       `mapstructure:"session_lifetime"`
	SessionPurge    time.Duration       `mapstructure:"session_purge_interval"`
	TokenSecret     string              `mapstructure:"token_secret"`
	TokenIssuer     string              `mapstructure:"token_issuer"`
	Password        PasswordConfig      `mapstructure:"password"`
	LoginThrottle   LoginThrottleConfig `mapstructure:"login_throttle"`
}

// PasswordConfig selects the hashing scheme for new hashes. Stored hashes of
// either scheme keep verifying.
type PasswordConfig struct {
	Algorithm   string `mapstructure:"algorithm"`
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
	BCryptCost  int    `mapstructure:"bcrypt_cost"`
}

type LoginThrottleConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	PerMinute float64       `mapstructure:"per_minute"`
	Burst     int           `mapstructure:"burst"`
	IdleTTL   time.Duration `mapstructure:"idle_ttl"`
}

type PermissionCacheConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	MaxRoles int  `mapstructure:"max_roles"`
}

type AuditConfig struct {
	RecordSensitiveSuccess bool `mapstructure:"record_sensitive_success"`
	ListLimit              int  `mapstructure:"list_limit"`
	// MirrorToLog also writes every entry to the process log.
	MirrorToLog bool `mapstructure:"mirror_to_log"`
	// Workers caps concurrent audit and change-log writers on the event bus.
	Workers int `mapstructure:"workers"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const (
	PasswordAlgorithmArgon2id = "argon2id"
	PasswordAlgorithmBCrypt   = "bcrypt"
)

// DefaultPasswordConfig mirrors the hashing cost the venue deployments run with.
func DefaultPasswordConfig() PasswordConfig {
	return PasswordConfig{
		Algorithm:   PasswordAlgorithmArgon2id,
		Memory:      64 * 1024,
		Iterations:  4,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
		BCryptCost:  12,
	}
}

// ApplyDefaults fills zero values so that a sparse config file still boots.
func (c *Config) ApplyDefaults() {
	if c.Env == "" {
		c.Env = "development"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LoginPath == "" {
		c.Server.LoginPath = "/login"
	}
	if c.Server.AccessDeniedPath == "" {
		c.Server.AccessDeniedPath = "/access-denied"
	}
	if c.Server.CookieName == "" {
		c.Server.CookieName = "hospitality_session"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Security.SessionLifetime == 0 {
		c.Security.SessionLifetime = 2 * time.Hour
	}
	if c.Security.SessionPurge == 0 {
		c.Security.SessionPurge = 15 * time.Minute
	}
	if c.Security.TokenIssuer == "" {
		c.Security.TokenIssuer = "hospitality-access"
	}

	pw := DefaultPasswordConfig()
	if c.Security.Password.Algorithm == "" {
		c.Security.Password.Algorithm = pw.Algorithm
	}
	if c.Security.Password.Memory == 0 {
		c.Security.Password.Memory = pw.Memory
	}
	if c.Security.Password.Iterations == 0 {
		c.Security.Password.Iterations = pw.Iterations
	}
	if c.Security.Password.Parallelism == 0 {
		c.Security.Password.Parallelism = pw.Parallelism
	}
	if c.Security.Password.SaltLength == 0 {
		c.Security.Password.SaltLength = pw.SaltLength
	}
	if c.Security.Password.KeyLength == 0 {
		c.Security.Password.KeyLength = pw.KeyLength
	}
	if c.Security.Password.BCryptCost == 0 {
		c.Security.Password.BCryptCost = pw.BCryptCost
	}

	if c.Security.LoginThrottle.PerMinute == 0 {
		c.Security.LoginThrottle.PerMinute = 5
	}
	if c.Security.LoginThrottle.Burst == 0 {
		c.Security.LoginThrottle.Burst = 5
	}
	if c.Security.LoginThrottle.IdleTTL == 0 {
		c.Security.LoginThrottle.IdleTTL = 30 * time.Minute
	}
	if c.PermissionCache.MaxRoles == 0 {
		c.PermissionCache.MaxRoles = 64
	}
	if c.Audit.ListLimit == 0 {
		c.Audit.ListLimit = 100
	}
	if c.Audit.Workers == 0 {
		c.Audit.Workers = 32
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = "text"
	}
}

// LoadConfigFromEnv builds the config for container deployments where no
// config file is mounted.
func LoadConfigFromEnv() *Config {
	cfg := &Config{
		Env: getEnv("APP_ENV", "production"),
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_PORT", 8080),
			BaseURL:           getEnv("BASE_URL", ""),
			ReadHeaderTimeout: getEnvAsDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:      getEnvAsDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			LoginPath:         getEnv("LOGIN_PATH", "/login"),
			AccessDeniedPath:  getEnv("ACCESS_DENIED_PATH", "/access-denied"),
			CookieName:        getEnv("SESSION_COOKIE_NAME", "hospitality_session"),
			CookieSecure:      getEnvAsBool("SESSION_COOKIE_SECURE", true),
			AllowedOrigins:    getEnvAsList("CORS_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "postgres"),
			Source:          getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Security: SecurityConfig{
			SessionLifetime: getEnvAsDuration("SESSION_LIFETIME", 2*time.Hour),
			SessionPurge:    getEnvAsDuration("SESSION_PURGE_INTERVAL", 15*time.Minute),
			TokenSecret:     getEnv("TOKEN_SECRET", ""),
			TokenIssuer:     getEnv("TOKEN_ISSUER", "hospitality-access"),
			Password: PasswordConfig{
				Algorithm:   getEnv("PASSWORD_ALGORITHM", PasswordAlgorithmArgon2id),
				Memory:      uint32(getEnvAsInt("ARGON2_MEMORY", 64*1024)),
				Iterations:  uint32(getEnvAsInt("ARGON2_ITERATIONS", 4)),
				Parallelism: uint8(getEnvAsInt("ARGON2_PARALLELISM", 1)),
				SaltLength:  uint32(getEnvAsInt("ARGON2_SALT_LENGTH", 16)),
				KeyLength:   uint32(getEnvAsInt("ARGON2_KEY_LENGTH", 32)),
				BCryptCost:  getEnvAsInt("BCRYPT_COST", 12),
			},
			LoginThrottle: LoginThrottleConfig{
				Enabled:   getEnvAsBool("LOGIN_THROTTLE_ENABLED", true),
				PerMinute: float64(getEnvAsInt("LOGIN_THROTTLE_PER_MINUTE", 5)),
				Burst:     getEnvAsInt("LOGIN_THROTTLE_BURST", 5),
				IdleTTL:   getEnvAsDuration("LOGIN_THROTTLE_IDLE_TTL", 30*time.Minute),
			},
		},
		PermissionCache: PermissionCacheConfig{
			Enabled:  getEnvAsBool("PERMISSION_CACHE_ENABLED", true),
			MaxRoles: getEnvAsInt("PERMISSION_CACHE_MAX_ROLES", 64),
		},
		Audit: AuditConfig{
			RecordSensitiveSuccess: getEnvAsBool("AUDIT_RECORD_SENSITIVE_SUCCESS", true),
			ListLimit:              getEnvAsInt("AUDIT_LIST_LIMIT", 100),
			MirrorToLog:            getEnvAsBool("AUDIT_MIRROR_TO_LOG", false),
			Workers:                getEnvAsInt("AUDIT_WORKERS", 32),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Observability.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("logging config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	if !strings.HasPrefix(c.LoginPath, "/") || !strings.HasPrefix(c.AccessDeniedPath, "/") {
		return errors.New("login_path and access_denied_path must be absolute paths")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	switch c.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported driver %q", c.Driver)
	}
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *SecurityConfig) Validate() error {
	if len(c.TokenSecret) < 32 {
		return errors.New("token_secret must be at least 32 characters")
	}
	if c.SessionLifetime < time.Minute {
		return errors.New("session_lifetime must be at least 1m")
	}
	if err := c.Password.Validate(); err != nil {
		return fmt.Errorf("password: %w", err)
	}
	if c.LoginThrottle.Enabled && (c.LoginThrottle.PerMinute <= 0 || c.LoginThrottle.Burst < 1) {
		return errors.New("login_throttle needs a positive per_minute and burst")
	}
	return nil
}

func (c *PasswordConfig) Validate() error {
	switch c.Algorithm {
	case PasswordAlgorithmArgon2id:
		if c.Memory < 8*1024 || c.Iterations < 1 || c.Parallelism < 1 {
			return errors.New("argon2id needs memory >= 8192 KiB, iterations >= 1 and parallelism >= 1")
		}
		if c.SaltLength < 8 || c.KeyLength < 16 {
			return errors.New("argon2id salt_length must be >= 8 and key_length >= 16")
		}
	case PasswordAlgorithmBCrypt:
		if c.BCryptCost < 10 || c.BCryptCost > 15 {
			return errors.New("bcrypt_cost must be between 10 and 15")
		}
	default:
		return fmt.Errorf("unsupported algorithm %q", c.Algorithm)
	}
	return nil
}

func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported level %q", c.Level)
	}
	switch c.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unsupported format %q", c.Format)
	}
	return nil
}
