package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	Cache       CacheConfig
	Prediction  PredictionConfig
	SLA         SLAConfig
	Attachments AttachmentsConfig
	Complaints  ComplaintsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type JWTConfig struct {
	Secret            string
	Issuer            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CacheConfig toggles the redis-backed read cache.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// PredictionConfig configures the external classifier integration.
type PredictionConfig struct {
	Endpoint         string
	ImageMode        string
	ConnectTimeout   time.Duration
	ReadTimeout      time.Duration
	MaxInlineBytes   int
	RerunOnUpdate    bool
	Threshold        float64
	Workers          int
	BreakerFailures  uint32
	BreakerOpenFor   time.Duration
	BreakerHalfOpenN uint32
}

// SLAConfig governs the escalation sweep.
type SLAConfig struct {
	CheckInterval    time.Duration
	SweepConcurrency int
	SweepBatchSize   int
}

// AttachmentsConfig controls complaint attachment storage.
type AttachmentsConfig struct {
	StorageDir       string
	PublicBaseURL    string
	SignedURLSecret  string
	SignedURLTTL     time.Duration
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// ComplaintsConfig holds complaint numbering settings.
type ComplaintsConfig struct {
	CodePrefix string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

const (
	devJWTSecret       = "dev_secret"
	devAttachSignature = "dev_attachments_secret"
)

// Validate rejects settings the service cannot run with. Development secrets are refused only in
// production so local setups work without a .env file.
func (c *Config) Validate() error {
	var problems []string
	if c.Port <= 0 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("PORT %d out of range", c.Port))
	}
	if c.Prediction.Threshold < 0 || c.Prediction.Threshold > 1 {
		problems = append(problems, fmt.Sprintf("PREDICTION_THRESHOLD %.2f outside [0,1]", c.Prediction.Threshold))
	}
	if c.Attachments.MaxFileSizeBytes <= 0 {
		problems = append(problems, "ATTACHMENTS_MAX_FILE_SIZE must be positive")
	}
	if c.Env == EnvProduction {
		if c.JWT.Secret == "" || c.JWT.Secret == devJWTSecret {
			problems = append(problems, "JWT_SECRET must be set in production")
		}
		if c.Attachments.SignedURLSecret == "" || c.Attachments.SignedURLSecret == devAttachSignature {
			problems = append(problems, "ATTACHMENTS_SIGNED_URL_SECRET must be set in production")
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:         v.GetString("REDIS_HOST"),
		Port:         v.GetInt("REDIS_PORT"),
		Password:     v.GetString("REDIS_PASSWORD"),
		DB:           v.GetInt("REDIS_DB"),
		PoolSize:     v.GetInt("REDIS_POOL_SIZE"),
		DialTimeout:  parseDuration(v.GetString("REDIS_DIAL_TIMEOUT"), 2*time.Second),
		ReadTimeout:  parseDuration(v.GetString("REDIS_READ_TIMEOUT"), 500*time.Millisecond),
		WriteTimeout: parseDuration(v.GetString("REDIS_WRITE_TIMEOUT"), 500*time.Millisecond),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Issuer:            v.GetString("JWT_ISSUER"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 2*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("JWT_REFRESH_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("CACHE_ENABLED"),
		TTL:     parseDuration(v.GetString("CACHE_TTL"), time.Minute),
	}

	threshold := v.GetFloat64("PREDICTION_THRESHOLD")
	if threshold > 1 {
		threshold = threshold / 100
	}
	cfg.Prediction = PredictionConfig{
		Endpoint:         v.GetString("PREDICTION_ENDPOINT"),
		ImageMode:        strings.ToUpper(strings.TrimSpace(v.GetString("PREDICTION_IMAGE_MODE"))),
		ConnectTimeout:   parseDuration(v.GetString("PREDICTION_CONNECT_TIMEOUT"), 3*time.Second),
		ReadTimeout:      parseDuration(v.GetString("PREDICTION_READ_TIMEOUT"), 10*time.Second),
		MaxInlineBytes:   v.GetInt("PREDICTION_MAX_INLINE_BYTES"),
		RerunOnUpdate:    v.GetBool("PREDICTION_RERUN_ON_UPDATE"),
		Threshold:        threshold,
		Workers:          v.GetInt("PREDICTION_WORKERS"),
		BreakerFailures:  v.GetUint32("PREDICTION_BREAKER_FAILURES"),
		BreakerOpenFor:   parseDuration(v.GetString("PREDICTION_BREAKER_OPEN_FOR"), 30*time.Second),
		BreakerHalfOpenN: v.GetUint32("PREDICTION_BREAKER_HALF_OPEN_REQUESTS"),
	}

	cfg.SLA = SLAConfig{
		CheckInterval:    parseDuration(v.GetString("SLA_CHECK_INTERVAL"), time.Minute),
		SweepConcurrency: v.GetInt("SLA_SWEEP_CONCURRENCY"),
		SweepBatchSize:   v.GetInt("SLA_SWEEP_BATCH_SIZE"),
	}

	maxAttachmentSize := v.GetInt64("ATTACHMENTS_MAX_FILE_SIZE")
	if maxAttachmentSize <= 0 {
		maxAttachmentSize = 10 * 1024 * 1024
	}
	cfg.Attachments = AttachmentsConfig{
		StorageDir:       v.GetString("ATTACHMENTS_STORAGE_DIR"),
		PublicBaseURL:    strings.TrimRight(v.GetString("ATTACHMENTS_PUBLIC_BASE_URL"), "/"),
		SignedURLSecret:  v.GetString("ATTACHMENTS_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("ATTACHMENTS_SIGNED_URL_TTL"), 24*time.Hour),
		MaxFileSizeBytes: maxAttachmentSize,
		AllowedMIMEs:     splitAndTrim(v.GetString("ATTACHMENTS_ALLOWED_MIME_TYPES")),
	}

	cfg.Complaints = ComplaintsConfig{
		CodePrefix: v.GetString("COMPLAINT_CODE_PREFIX"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "campus_complaints")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "2s")
	v.SetDefault("REDIS_READ_TIMEOUT", "500ms")
	v.SetDefault("REDIS_WRITE_TIMEOUT", "500ms")

	v.SetDefault("JWT_SECRET", devJWTSecret)
	v.SetDefault("JWT_ISSUER", "campus-complaints")
	v.SetDefault("JWT_EXPIRATION", "2h")
	v.SetDefault("JWT_REFRESH_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("CACHE_TTL", "1m")

	v.SetDefault("PREDICTION_ENDPOINT", "http://localhost:8000/predict")
	v.SetDefault("PREDICTION_IMAGE_MODE", "URL")
	v.SetDefault("PREDICTION_CONNECT_TIMEOUT", "3s")
	v.SetDefault("PREDICTION_READ_TIMEOUT", "10s")
	v.SetDefault("PREDICTION_MAX_INLINE_BYTES", 2*1024*1024)
	v.SetDefault("PREDICTION_RERUN_ON_UPDATE", true)
	v.SetDefault("PREDICTION_THRESHOLD", 0.72)
	v.SetDefault("PREDICTION_WORKERS", 2)
	v.SetDefault("PREDICTION_BREAKER_FAILURES", 5)
	v.SetDefault("PREDICTION_BREAKER_OPEN_FOR", "30s")
	v.SetDefault("PREDICTION_BREAKER_HALF_OPEN_REQUESTS", 1)

	v.SetDefault("SLA_CHECK_INTERVAL", "60s")
	v.SetDefault("SLA_SWEEP_CONCURRENCY", 4)
	v.SetDefault("SLA_SWEEP_BATCH_SIZE", 500)

	v.SetDefault("ATTACHMENTS_STORAGE_DIR", "./data/attachments")
	v.SetDefault("ATTACHMENTS_PUBLIC_BASE_URL", "http://localhost:8080/api/v1/files")
	v.SetDefault("ATTACHMENTS_SIGNED_URL_SECRET", devAttachSignature)
	v.SetDefault("ATTACHMENTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("ATTACHMENTS_MAX_FILE_SIZE", 10*1024*1024)
	v.SetDefault("ATTACHMENTS_ALLOWED_MIME_TYPES", "image/jpeg,image/png,image/webp,application/pdf")

	v.SetDefault("COMPLAINT_CODE_PREFIX", "CMP")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// viper reports a missing explicit config file as an *fs.PathError rather than ConfigFileNotFoundError.
func isMissingFile(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such file or directory")
}
