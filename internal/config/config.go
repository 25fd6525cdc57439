// Package config loads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr      string
	DBPath    string
	LogLevel  string
	LogFormat string

	JWTSecret string
	TokenTTL  time.Duration

	// RateLimit is requests per minute per client IP on the API.
	RateLimit int

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string

	RedisAddr   string
	ProfileTTL  time.Duration
	AudienceMax int

	S3Endpoint  string
	S3Bucket    string
	S3Region    string
	S3AccessKey string
	S3SecretKey string

	AllowedOrigins []string
}

// LoadDotEnv reads path into the environment if it exists. Variables that
// are already set win.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads ERRAND_* variables and validates the result.
func Load() (Config, error) {
	cfg := Config{
		Addr:      getEnv("ERRAND_ADDR", ":8080"),
		DBPath:    getEnv("ERRAND_DB_PATH", "errand.db"),
		LogLevel:  getEnv("ERRAND_LOG_LEVEL", "info"),
		LogFormat: getEnv("ERRAND_LOG_FORMAT", "text"),

		JWTSecret: os.Getenv("ERRAND_JWT_SECRET"),
		RateLimit: 120,

		VAPIDPublicKey:  os.Getenv("ERRAND_VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("ERRAND_VAPID_PRIVATE_KEY"),
		VAPIDSubject:    getEnv("ERRAND_VAPID_SUBJECT", "mailto:noreply@errand.local"),

		RedisAddr:   os.Getenv("ERRAND_REDIS_ADDR"),
		AudienceMax: 50,

		S3Endpoint:  os.Getenv("ERRAND_S3_ENDPOINT"),
		S3Bucket:    os.Getenv("ERRAND_S3_BUCKET"),
		S3Region:    getEnv("ERRAND_S3_REGION", "us-east-1"),
		S3AccessKey: os.Getenv("ERRAND_S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("ERRAND_S3_SECRET_KEY"),
	}

	var err error
	if cfg.TokenTTL, err = getEnvAsDuration("ERRAND_TOKEN_TTL", 7*24*time.Hour); err != nil {
		return cfg, err
	}
	if cfg.ProfileTTL, err = getEnvAsDuration("ERRAND_PROFILE_TTL", 5*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.RateLimit, err = getEnvAsInt("ERRAND_RATE_LIMIT", cfg.RateLimit); err != nil {
		return cfg, err
	}
	if cfg.AudienceMax, err = getEnvAsInt("ERRAND_AUDIENCE_MAX", cfg.AudienceMax); err != nil {
		return cfg, err
	}
	if v := os.Getenv("ERRAND_ALLOWED_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	return cfg, cfg.Validate()
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	switch {
	case c.Addr == "":
		return errors.New("ERRAND_ADDR must not be empty")
	case c.DBPath == "":
		return errors.New("ERRAND_DB_PATH must not be empty")
	case len(c.JWTSecret) < 32:
		return errors.New("ERRAND_JWT_SECRET must be at least 32 characters")
	case c.TokenTTL <= 0:
		return errors.New("ERRAND_TOKEN_TTL must be positive")
	case c.ProfileTTL <= 0:
		return errors.New("ERRAND_PROFILE_TTL must be positive")
	case c.RateLimit <= 0:
		return errors.New("ERRAND_RATE_LIMIT must be greater than 0")
	case c.AudienceMax < 0:
		return errors.New("ERRAND_AUDIENCE_MAX must not be negative")
	case (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == ""):
		return errors.New("ERRAND_VAPID_PUBLIC_KEY and ERRAND_VAPID_PRIVATE_KEY must be set together")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value for %s: %q", key, v)
	}
	return i, nil
}

func getEnvAsDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration value for %s: %q", key, v)
	}
	return d, nil
}
