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

// DefaultRPCURL is the public mainnet endpoint.
const DefaultRPCURL = "https://api.mainnet-beta.solana.com"

// Config represents the application configuration.
type Config struct {
	RPCURL         string
	Concurrency    int
	RetryBackoff   time.Duration
	MaxAttempts    int
	ItemTimeout    time.Duration
	SubmitDeadline time.Duration
	Throttle       time.Duration
	ConfirmTimeout time.Duration
	RPCRateLimit   float64
	JournalPath    string
	CacheDir       string
	TelegramToken  string
	TelegramChatID int64
	LogLevel       string
}

// Load reads an optional .env file from the working directory and then the
// environment. Values that are set but malformed are reported as errors.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from environment variables only.
func FromEnv() (*Config, error) {
	var errs []error
	num := func(key string, def int) int {
		v, err := strconv.Atoi(getEnvWithDefault(key, strconv.Itoa(def)))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return v
	}
	dur := func(key string, def time.Duration) time.Duration {
		v, err := time.ParseDuration(getEnvWithDefault(key, def.String()))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return v
	}

	cfg := &Config{
		RPCURL:         getEnvWithDefault("SOLANA_RPC_URL", DefaultRPCURL),
		Concurrency:    num("FLEET_CONCURRENCY", 20),
		RetryBackoff:   dur("FLEET_RETRY_BACKOFF", time.Second),
		MaxAttempts:    num("FLEET_MAX_ATTEMPTS", 0),
		ItemTimeout:    dur("FLEET_ITEM_TIMEOUT", 0),
		SubmitDeadline: dur("FLEET_SUBMIT_DEADLINE", 0),
		Throttle:       dur("FLEET_THROTTLE", 50*time.Millisecond),
		ConfirmTimeout: dur("FLEET_CONFIRM_TIMEOUT", 60*time.Second),
		JournalPath:    os.Getenv("FLEET_JOURNAL"),
		CacheDir:       os.Getenv("FLEET_CACHE_DIR"),
		TelegramToken:  os.Getenv("TG_BOT_TOKEN"),
		LogLevel:       strings.ToLower(getEnvWithDefault("LOG_LEVEL", "info")),
	}

	if rps := os.Getenv("FLEET_RPC_RPS"); rps != "" {
		v, err := strconv.ParseFloat(rps, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("FLEET_RPC_RPS: %w", err))
		}
		cfg.RPCRateLimit = v
	}
	if chat := os.Getenv("TG_CHAT_ID"); chat != "" {
		v, err := strconv.ParseInt(chat, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("TG_CHAT_ID: %w", err))
		}
		cfg.TelegramChatID = v
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the ranges of the loaded values.
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return errors.New("rpc url is empty")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	if c.RetryBackoff <= 0 {
		return fmt.Errorf("retry backoff must be positive, got %v", c.RetryBackoff)
	}
	if c.MaxAttempts < 0 || c.ItemTimeout < 0 || c.SubmitDeadline < 0 || c.Throttle < 0 || c.ConfirmTimeout < 0 || c.RPCRateLimit < 0 {
		return errors.New("limits must not be negative")
	}
	return nil
}

// Debug reports whether LOG_LEVEL asks for debug output.
func (c *Config) Debug() bool {
	return c.LogLevel == "debug"
}

// NotifyEnabled reports whether both Telegram settings are present.
func (c *Config) NotifyEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}

// getEnvWithDefault gets an environment variable or returns a default value.
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
