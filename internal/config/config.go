// Package config builds the process configuration once at start-up.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDynamoDB = "dynamodb"
	StoreSQL      = "sql"

	MailSES = "ses"
	MailLog = "log"

	defaultModel = "meta-llama/llama-3.3-70b-instruct:free"
	defaultURL   = "https://openrouter.ai/api/v1/chat/completions"
)

// Config is the immutable settings snapshot handed to every component.
type Config struct {
	HTTPPort    int
	LogLevel    slog.Level
	ParamPrefix string
	// DevMode unlocks local-only drivers such as the console mailer.
	DevMode bool

	Store StoreConfig
	LLM   LLMConfig
	Auth  AuthConfig
	Mail  MailConfig
}

type StoreConfig struct {
	Driver      string
	StateTable  string
	DatabaseURL string
}

// LLMConfig holds the chat-completion settings. APIKey is redacted when logged.
type LLMConfig struct {
	APIKey      string
	Model       string
	URL         string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

func (c LLMConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("api_key_set", c.APIKey != ""),
		slog.String("model", c.Model),
		slog.String("url", c.URL),
		slog.Float64("temperature", c.Temperature),
		slog.Int("max_tokens", c.MaxTokens),
		slog.Duration("timeout", c.Timeout),
	)
}

// AuthConfig holds token settings. JWTSecret is redacted when logged.
type AuthConfig struct {
	JWTSecret  string
	OTPTTL     time.Duration
	SessionTTL time.Duration
}

func (c AuthConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("jwt_secret_set", c.JWTSecret != ""),
		slog.Duration("otp_ttl", c.OTPTTL),
		slog.Duration("session_ttl", c.SessionTTL),
	)
}

type MailConfig struct {
	Driver string
	From   string
}

// Load reads the configuration from the environment. A .env file in the
// working directory, when present, seeds variables that are not already set.
// Secrets may still be empty afterwards; see ResolveSecrets and Validate.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	return fromEnv(os.Getenv)
}

func fromEnv(getenv func(string) string) (*Config, error) {
	e := env{get: getenv}
	cfg := &Config{
		HTTPPort:    e.int("HTTP_PORT", 8000),
		LogLevel:    e.level("LOG_LEVEL", slog.LevelInfo),
		ParamPrefix: strings.TrimRight(e.str("PARAM_PREFIX", ""), "/"),
		DevMode:     e.bool("DEV_MODE", false),
		Store: StoreConfig{
			Driver:      strings.ToLower(e.str("STORE_DRIVER", StoreDynamoDB)),
			StateTable:  e.str("STATE_TABLE", ""),
			DatabaseURL: e.str("DATABASE_URL", ""),
		},
		LLM: LLMConfig{
			APIKey:      e.str("OPENROUTER_API_KEY", ""),
			Model:       e.str("OPENROUTER_MODEL", defaultModel),
			URL:         e.str("OPENROUTER_URL", defaultURL),
			Temperature: e.float("OPENROUTER_TEMPERATURE", 0.2),
			MaxTokens:   e.int("OPENROUTER_MAX_TOKENS", 1200),
			Timeout:     time.Duration(e.int("OPENROUTER_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Auth: AuthConfig{
			JWTSecret:  e.str("JWT_SECRET", ""),
			OTPTTL:     time.Duration(e.int("OTP_TTL_MINUTES", 10)) * time.Minute,
			SessionTTL: time.Duration(e.int("SESSION_TTL_HOURS", 120)) * time.Hour,
		},
		Mail: MailConfig{
			Driver: strings.ToLower(e.str("MAIL_DRIVER", MailSES)),
			From:   e.str("MAIL_FROM", ""),
		},
	}
	if err := errors.Join(e.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every missing or inconsistent setting at once. Call it
// after ResolveSecrets.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("config: HTTP_PORT %d out of range", c.HTTPPort))
	}
	switch c.Store.Driver {
	case StoreDynamoDB:
		if c.Store.StateTable == "" {
			errs = append(errs, errors.New("config: STATE_TABLE is required for the dynamodb store"))
		}
	case StoreSQL:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("config: DATABASE_URL is required for the sql store"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown STORE_DRIVER %q", c.Store.Driver))
	}
	switch c.Mail.Driver {
	case MailSES:
		if c.Mail.From == "" {
			errs = append(errs, errors.New("config: MAIL_FROM is required for the ses mailer"))
		}
	case MailLog:
		if !c.DevMode {
			errs = append(errs, errors.New("config: MAIL_DRIVER=log prints passcodes to the console and requires DEV_MODE=true"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown MAIL_DRIVER %q", c.Mail.Driver))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("config: JWT_SECRET is required"))
	}
	if c.Auth.OTPTTL <= 0 || c.Auth.SessionTTL <= 0 {
		errs = append(errs, errors.New("config: token lifetimes must be positive"))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("config: OPENROUTER_TIMEOUT_SECONDS must be positive"))
	}
	if c.LLM.MaxTokens <= 0 {
		errs = append(errs, errors.New("config: OPENROUTER_MAX_TOKENS must be positive"))
	}
	return errors.Join(errs...)
}

// NewLogger returns a JSON slog logger at the configured level.
func (c *Config) NewLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: c.LogLevel}))
}

type env struct {
	get  func(string) string
	errs []error
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(e.get(key)); v != "" {
		return v
	}
	return def
}

func (e *env) int(key string, def int) int {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("config: %s: %q is not an integer", key, v))
		return def
	}
	return n
}

func (e *env) float(key string, def float64) float64 {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("config: %s: %q is not a number", key, v))
		return def
	}
	return f
}

func (e *env) bool(key string, def bool) bool {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("config: %s: %q is not a boolean", key, v))
		return def
	}
	return b
}

func (e *env) level(key string, def slog.Level) slog.Level {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		e.errs = append(e.errs, fmt.Errorf("config: %s: unknown level %q", key, v))
		return def
	}
	return lvl
}
