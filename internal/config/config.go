// Package config handles application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var validate = validator.New()

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string `validate:"required"`
	CatalogSearchURL string `validate:"required,url"`
	DatabasePath     string `validate:"required"`
	LogLevel         string `validate:"oneof=debug info warn error"`
	AllowedUsers     []int64

	SiteURL       string `validate:"required,url"`
	SiteSearchURL string `validate:"required,url"`

	PollInterval        time.Duration `validate:"gte=1s"`
	ResultLimit         int           `validate:"min=1,max=50"`
	RequestTimeout      time.Duration `validate:"gt=0"`
	SeedOnSubscribe     bool
	SearchFailurePolicy string  `validate:"oneof=reset keep"`
	SendRate            float64 `validate:"gt=0"`

	SessionTTL      time.Duration `validate:"gt=0"`
	SessionMaxChats int           `validate:"min=1"`

	HTTPAddr string
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	searchURL := os.Getenv("CATALOG_SEARCH_URL")
	if searchURL == "" {
		return nil, fmt.Errorf("CATALOG_SEARCH_URL is required")
	}

	var allowedUsers []int64
	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			allowedUsers = append(allowedUsers, uid)
		}
	}

	cfg := &Config{
		TelegramBotToken:    token,
		CatalogSearchURL:    searchURL,
		DatabasePath:        envOrDefault("DATABASE_PATH", "./data/bot.db"),
		LogLevel:            strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
		AllowedUsers:        allowedUsers,
		SiteURL:             envOrDefault("SITE_URL", "https://anilifetv.vercel.app/"),
		SiteSearchURL:       envOrDefault("SITE_SEARCH_URL", "https://anilifetv.vercel.app/relizes?search="),
		SearchFailurePolicy: strings.ToLower(envOrDefault("SEARCH_FAILURE_POLICY", "reset")),
		HTTPAddr:            envOrDefault("HTTP_ADDR", ":8080"),
	}

	var err error
	if cfg.PollInterval, err = durationEnv("POLL_INTERVAL", 1800*time.Second); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = durationEnv("REQUEST_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = durationEnv("SESSION_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ResultLimit, err = intEnv("RESULT_LIMIT", 6); err != nil {
		return nil, err
	}
	if cfg.SessionMaxChats, err = intEnv("SESSION_MAX_CHATS", 1000); err != nil {
		return nil, err
	}
	if cfg.SendRate, err = floatEnv("SEND_RATE", 20); err != nil {
		return nil, err
	}
	if cfg.SeedOnSubscribe, err = boolEnv("SEED_ON_SUBSCRIBE", false); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and reports every violation at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// durationEnv accepts a Go duration ("30m") or a plain number of seconds.
func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func floatEnv(key string, def float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return f, nil
}

func boolEnv(key string, def bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return b, nil
}
