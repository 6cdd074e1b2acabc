// Package config loads the service configuration: marketplace credentials,
// chat connection, storage, push policy and the list of apps to sync.
//
// Values come from environment variables (caarlos0/env) and are validated with
// go-playground/validator. Unlike the worker scheduling knobs, these fail fast:
// the process cannot do anything useful without them.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"

	"protalk/internal/usecase/review"
)

// Chat connection modes.
const (
	ChatModeStream   = "stream"
	ChatModeWebhook  = "webhook"
	ChatModeCallback = "callback"
)

// Config is the full service configuration.
type Config struct {
	AppStore AppStoreConfig
	Chat     ChatConfig
	Storage  StorageConfig
	Policy   PolicyConfig
	Sync     SyncConfig

	// MetricsAddr serves /metrics.
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`

	// Apps is resolved from APPS_FILE or APPSTORE_APP_IDS by Load.
	Apps []App
}

// AppStoreConfig holds App Store Connect API credentials.
type AppStoreConfig struct {
	IssuerID string `env:"APPSTORE_ISSUER_ID" validate:"required"`
	KeyID    string `env:"APPSTORE_KEY_ID" validate:"required"`

	// PrivateKey is the .p8 PEM text; literal "\n" sequences are expanded.
	PrivateKey     string `env:"APPSTORE_PRIVATE_KEY" validate:"required_without=PrivateKeyPath"`
	PrivateKeyPath string `env:"APPSTORE_PRIVATE_KEY_PATH"`

	AppIDs   []string `env:"APPSTORE_APP_IDS" envSeparator:","`
	AppsFile string   `env:"APPS_FILE"`

	BaseURL  string        `env:"APPSTORE_BASE_URL" envDefault:"https://api.appstoreconnect.apple.com" validate:"url"`
	Timeout  time.Duration `env:"APPSTORE_TIMEOUT" envDefault:"30s" validate:"gt=0"`
	MaxPages int           `env:"APPSTORE_MAX_PAGES" envDefault:"50" validate:"gte=1"`
}

// ChatConfig selects and tunes the chat platform connection.
type ChatConfig struct {
	Mode string `env:"CHAT_MODE" envDefault:"stream" validate:"oneof=stream webhook callback"`

	StreamURL   string `env:"CHAT_STREAM_URL" validate:"required_if=Mode stream"`
	StreamToken string `env:"CHAT_STREAM_TOKEN"`

	WebhookURL    string  `env:"CHAT_WEBHOOK_URL" validate:"required_if=Mode webhook"`
	WebhookSecret string  `env:"CHAT_WEBHOOK_SECRET"`
	WebhookRate   float64 `env:"CHAT_WEBHOOK_RATE" envDefault:"5" validate:"gt=0"`

	// VerificationToken authenticates inbound callbacks; empty disables the check.
	VerificationToken string `env:"CHAT_VERIFICATION_TOKEN"`
	CallbackAddr      string `env:"CHAT_CALLBACK_ADDR" envDefault:":8080"`

	ReconnectInterval    time.Duration `env:"CHAT_RECONNECT_INTERVAL" envDefault:"5s" validate:"gt=0"`
	MaxReconnectAttempts int           `env:"CHAT_MAX_RECONNECT_ATTEMPTS" envDefault:"5" validate:"gte=1"`

	BatchSize     int           `env:"CHAT_BATCH_SIZE" envDefault:"10" validate:"gte=1,lte=100"`
	FlushInterval time.Duration `env:"CHAT_FLUSH_INTERVAL" envDefault:"1s" validate:"gt=0"`
	MaxRetries    int           `env:"CHAT_MAX_RETRIES" envDefault:"3" validate:"gte=0"`
}

// StorageConfig selects the review store and the dedup backend.
type StorageConfig struct {
	Driver string `env:"DB_DRIVER" envDefault:"postgres" validate:"oneof=postgres sqlite"`
	DSN    string `env:"DATABASE_URL" validate:"required"`

	// RedisURL enables the shared dedup store; empty uses process memory.
	RedisURL string        `env:"REDIS_URL"`
	DedupTTL time.Duration `env:"DEDUP_TTL" envDefault:"24h" validate:"gt=0"`
}

// PolicyConfig maps onto review.Policy.
type PolicyConfig struct {
	PushNewReviews         bool          `env:"PUSH_NEW_REVIEWS" envDefault:"true"`
	PushUpdatedReviews     bool          `env:"PUSH_UPDATED_REVIEWS" envDefault:"true"`
	PushHistoricalReviews  bool          `env:"PUSH_HISTORICAL_REVIEWS" envDefault:"true"`
	MarkHistoricalAsPushed bool          `env:"MARK_HISTORICAL_AS_PUSHED" envDefault:"true"`
	HistoricalThreshold    time.Duration `env:"HISTORICAL_THRESHOLD" envDefault:"24h" validate:"gt=0"`
}

// SyncConfig tunes the sync pipeline.
type SyncConfig struct {
	Strategy   string `env:"SYNC_STRATEGY" envDefault:"smart" validate:"oneof=smart baseline"`
	MaxReviews int    `env:"SYNC_MAX_REVIEWS" envDefault:"1000" validate:"gte=1"`
}

// ReviewPolicy converts PolicyConfig into the decision engine's policy.
func (p PolicyConfig) ReviewPolicy() review.Policy {
	return review.Policy{
		PushNewReviews:         p.PushNewReviews,
		PushUpdatedReviews:     p.PushUpdatedReviews,
		PushHistoricalReviews:  p.PushHistoricalReviews,
		MarkHistoricalAsPushed: p.MarkHistoricalAsPushed,
		HistoricalThreshold:    p.HistoricalThreshold,
	}
}

// PrivateKeyPEM returns the signing key, reading PrivateKeyPath when the
// inline key is empty.
func (c AppStoreConfig) PrivateKeyPEM() ([]byte, error) {
	if c.PrivateKey != "" {
		return []byte(strings.ReplaceAll(c.PrivateKey, `\n`, "\n")), nil
	}
	data, err := os.ReadFile(c.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	return data, nil
}

// EnabledApps returns the apps that take part in sync cycles.
func (c *Config) EnabledApps() []App {
	out := make([]App, 0, len(c.Apps))
	for _, a := range c.Apps {
		if a.IsEnabled() {
			out = append(out, a)
		}
	}
	return out
}

// AppIDs returns the ids of the enabled apps.
func (c *Config) AppIDs() []string {
	apps := c.EnabledApps()
	ids := make([]string, len(apps))
	for i, a := range apps {
		ids[i] = a.ID
	}
	return ids
}

// AppNames maps every configured app id to its display name.
func (c *Config) AppNames() map[string]string {
	names := make(map[string]string, len(c.Apps))
	for _, a := range c.Apps {
		if a.Name != "" {
			names[a.ID] = a.Name
		}
	}
	return names
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report env variable names rather than Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := f.Tag.Get("env")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Load reads, resolves and validates the configuration.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	apps, err := resolveApps(cfg.AppStore)
	if err != nil {
		return nil, err
	}
	cfg.Apps = apps

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct tags plus cross-field rules.
func (c *Config) Validate() error {
	var errs []error
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate config: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Errorf("%s %s", fe.Field(), message(fe)))
		}
	}
	if len(c.EnabledApps()) == 0 {
		errs = append(errs, ErrNoApps)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return fmt.Sprintf("is required when %s", fe.Param())
	case "required_without":
		return fmt.Sprintf("is required unless %s is set", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "url":
		return "must be a valid URL"
	case "gt", "gte", "lte":
		return fmt.Sprintf("must be %s %s", fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("failed on '%s' validation", fe.Tag())
	}
}
