// Package config handles configuration loading for the account service.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Environment names.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// Storage drivers.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// minSecretLength is the minimum accepted length for JWT signing secrets.
const minSecretLength = 32

// Config holds all configuration for the account service.
type Config struct {
	Port        string
	Environment string
	LogLevel    string

	DB      DBConfig
	Redis   RedisConfig
	JWT     JWTConfig
	Cookie  CookieConfig
	Storage StorageConfig

	AllowedOrigins []string
	PublicBaseURL  string
	AppBaseURL     string
	MailFrom       string
	SwaggerHost    string
}

// DBConfig selects and configures the relational database.
type DBConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	Path     string
}

// RedisConfig configures the Redis connection used for the mail outbox.
// An empty Host disables Redis.
type RedisConfig struct {
	Host       string
	Port       string
	Password   string
	DisableTLS bool
}

// Enabled reports whether a Redis host is configured.
func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

// JWTConfig holds token signing secrets and lifetimes.
type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	ResetTokenTTL time.Duration
}

// CookieConfig holds attributes for the session cookies.
type CookieConfig struct {
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

// StorageConfig configures where uploaded files are kept.
type StorageConfig struct {
	Driver         string
	UploadDir      string
	MaxUploadBytes int64

	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3PublicURL    string
	S3UsePathStyle bool
}

// Load reads configuration from defaults, an optional YAML file named by
// CONFIG_FILE, and environment variables, in increasing precedence.
func Load() (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabase reads and checks only the database settings, for tools that
// do not run the HTTP service.
func LoadDatabase() (DBConfig, error) {
	v, err := newViper()
	if err != nil {
		return DBConfig{}, err
	}

	cfg := fromViper(v)
	if err := errors.Join(cfg.validateDB()...); err != nil {
		return DBConfig{}, err
	}
	return cfg.DB, nil
}

func newViper() (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENVIRONMENT", EnvDevelopment)
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("DB_DRIVER", DriverPostgres)
	v.SetDefault("DB_HOST", "")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "")
	v.SetDefault("DB_PASSWORD", "")
	v.SetDefault("DB_NAME", "")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_PATH", "accounts.db")

	v.SetDefault("REDIS_HOST", "")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DISABLE_TLS", false)

	v.SetDefault("JWT_ACCESS_SECRET", "")
	v.SetDefault("JWT_REFRESH_SECRET", "")
	v.SetDefault("JWT_ACCESS_EXPIRY", "15m")
	v.SetDefault("JWT_REFRESH_EXPIRY", "240h")
	v.SetDefault("RESET_TOKEN_TTL", "20m")

	v.SetDefault("COOKIE_DOMAIN", "")
	v.SetDefault("COOKIE_SECURE", true)
	v.SetDefault("COOKIE_SAMESITE", "lax")

	v.SetDefault("STORAGE_DRIVER", StorageLocal)
	v.SetDefault("UPLOAD_DIR", "uploads")
	v.SetDefault("UPLOAD_MAX_BYTES", 5*1000*1000)
	v.SetDefault("S3_BUCKET", "")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_ACCESS_KEY", "")
	v.SetDefault("S3_SECRET_KEY", "")
	v.SetDefault("S3_PUBLIC_URL", "")
	v.SetDefault("S3_USE_PATH_STYLE", true)

	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173")
	v.SetDefault("PUBLIC_BASE_URL", "")
	v.SetDefault("APP_BASE_URL", "http://localhost:5173")
	v.SetDefault("MAIL_FROM", "management@userprod.in")
	v.SetDefault("SWAGGER_HOST", "")
	v.SetDefault("CONFIG_FILE", "")
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Port:        v.GetString("PORT"),
		Environment: v.GetString("ENVIRONMENT"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		DB: DBConfig{
			Driver:   strings.ToLower(v.GetString("DB_DRIVER")),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			Name:     v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
			Path:     v.GetString("DB_PATH"),
		},
		Redis: RedisConfig{
			Host:       v.GetString("REDIS_HOST"),
			Port:       v.GetString("REDIS_PORT"),
			Password:   v.GetString("REDIS_PASSWORD"),
			DisableTLS: v.GetBool("REDIS_DISABLE_TLS"),
		},
		JWT: JWTConfig{
			AccessSecret:  v.GetString("JWT_ACCESS_SECRET"),
			RefreshSecret: v.GetString("JWT_REFRESH_SECRET"),
			AccessExpiry:  parseDuration(v.GetString("JWT_ACCESS_EXPIRY"), 15*time.Minute),
			RefreshExpiry: parseDuration(v.GetString("JWT_REFRESH_EXPIRY"), 240*time.Hour),
			ResetTokenTTL: parseDuration(v.GetString("RESET_TOKEN_TTL"), 20*time.Minute),
		},
		Cookie: CookieConfig{
			Path:     "/",
			Domain:   v.GetString("COOKIE_DOMAIN"),
			Secure:   v.GetBool("COOKIE_SECURE"),
			SameSite: parseSameSite(v.GetString("COOKIE_SAMESITE")),
		},
		Storage: StorageConfig{
			Driver:         strings.ToLower(v.GetString("STORAGE_DRIVER")),
			UploadDir:      v.GetString("UPLOAD_DIR"),
			MaxUploadBytes: v.GetInt64("UPLOAD_MAX_BYTES"),
			S3Bucket:       v.GetString("S3_BUCKET"),
			S3Region:       v.GetString("S3_REGION"),
			S3Endpoint:     v.GetString("S3_ENDPOINT"),
			S3AccessKey:    v.GetString("S3_ACCESS_KEY"),
			S3SecretKey:    v.GetString("S3_SECRET_KEY"),
			S3PublicURL:    v.GetString("S3_PUBLIC_URL"),
			S3UsePathStyle: v.GetBool("S3_USE_PATH_STYLE"),
		},
		AllowedOrigins: splitList(v.GetString("ALLOWED_ORIGINS")),
		PublicBaseURL:  strings.TrimSuffix(v.GetString("PUBLIC_BASE_URL"), "/"),
		AppBaseURL:     strings.TrimSuffix(v.GetString("APP_BASE_URL"), "/"),
		MailFrom:       v.GetString("MAIL_FROM"),
		SwaggerHost:    v.GetString("SWAGGER_HOST"),
	}
}

// Validate checks that required settings are present and consistent.
func (c *Config) Validate() error {
	var errs []error

	if len(c.JWT.AccessSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("JWT_ACCESS_SECRET must be at least %d bytes", minSecretLength))
	}
	if len(c.JWT.RefreshSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("JWT_REFRESH_SECRET must be at least %d bytes", minSecretLength))
	}

	errs = append(errs, c.validateDB()...)

	switch c.Storage.Driver {
	case StorageLocal:
		if c.Storage.UploadDir == "" {
			errs = append(errs, errors.New("UPLOAD_DIR is required for local storage"))
		}
	case StorageS3:
		if c.Storage.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required for s3 storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported STORAGE_DRIVER %q", c.Storage.Driver))
	}

	if c.Storage.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("UPLOAD_MAX_BYTES must be positive"))
	}

	return errors.Join(errs...)
}

func (c *Config) validateDB() []error {
	switch c.DB.Driver {
	case DriverPostgres, DriverMySQL:
		if c.DB.Host == "" || c.DB.User == "" || c.DB.Name == "" {
			return []error{errors.New("DB_HOST, DB_USER and DB_NAME are required")}
		}
	case DriverSQLite:
		if c.DB.Path == "" {
			return []error{errors.New("DB_PATH is required for sqlite")}
		}
	default:
		return []error{fmt.Errorf("unsupported DB_DRIVER %q", c.DB.Driver)}
	}
	return nil
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

func parseDuration(value string, defaultValue time.Duration) time.Duration {
	duration, err := time.ParseDuration(value)
	if err != nil || duration <= 0 {
		return defaultValue
	}
	return duration
}

func parseSameSite(value string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
