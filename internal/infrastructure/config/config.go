// Package config loads the service configuration from the environment and
// the optional role rules file.
package config

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	JWTSecret     string        `env:"JWT_SECRET"`
	SessionTTL    time.Duration `env:"SESSION_TTL,     default=12h"`
	DurableTTL    time.Duration `env:"DURABLE_TTL,     default=720h"`
	ResetTokenTTL time.Duration `env:"RESET_TOKEN_TTL, default=1h"`
	RoleRulesFile string        `env:"ROLE_RULES_FILE"`

	Mongo    MongoConfig
	Redis    RedisConfig
	OAuth    OAuthConfig
	Student  StudentConfig
	Demo     DemoConfig
	Tracking TrackingConfig
	Geocode  GeocodeConfig
	Throttle ThrottleConfig
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=campus_bus"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR, default=localhost:6379"`
	DB       int    `env:"REDIS_DB,   default=0"`
	Password string `env:"REDIS_PASSWORD"`
}

// OAuthConfig points at the institutional OpenID Connect provider.
type OAuthConfig struct {
	ClientID     string `env:"OAUTH_CLIENT_ID"`
	ClientSecret string `env:"OAUTH_CLIENT_SECRET"`
	RedirectURL  string `env:"OAUTH_REDIRECT_URL"`
	AuthURL      string `env:"OAUTH_AUTH_URL,  default=https://accounts.google.com/o/oauth2/v2/auth"`
	TokenURL     string `env:"OAUTH_TOKEN_URL, default=https://oauth2.googleapis.com/token"`
	JWKSURL      string `env:"OAUTH_JWKS_URL,  default=https://www.googleapis.com/oauth2/v3/certs"`
	HostedDomain string `env:"OAUTH_HOSTED_DOMAIN, default=bitmesra.ac.in"`
}

type StudentConfig struct {
	EmailPrefix string `env:"STUDENT_EMAIL_PREFIX, default=btech"`
	EmailDomain string `env:"STUDENT_EMAIL_DOMAIN, default=bitmesra.ac.in"`
}

// DemoConfig seeds the demo driver account. No account is seeded when the
// password is empty.
type DemoConfig struct {
	DriverEmail    string `env:"DEMO_DRIVER_EMAIL, default=demodriver@bitbus.com"`
	DriverPassword string `env:"DEMO_DRIVER_PASSWORD"`
}

type TrackingConfig struct {
	PollInterval  time.Duration `env:"TRACKING_POLL_INTERVAL,  default=5s"`
	SampleTimeout time.Duration `env:"TRACKING_SAMPLE_TIMEOUT, default=10s"`
	StaleAfter    time.Duration `env:"TRACKING_STALE_AFTER,    default=30s"`
}

type GeocodeConfig struct {
	BaseURL   string        `env:"GEOCODE_BASE_URL,   default=https://nominatim.openstreetmap.org"`
	UserAgent string        `env:"GEOCODE_USER_AGENT, default=campus-bus-tracker/1.0"`
	Timeout   time.Duration `env:"GEOCODE_TIMEOUT,    default=5s"`
	CacheTTL  time.Duration `env:"GEOCODE_CACHE_TTL,  default=24h"`
}

type ThrottleConfig struct {
	MaxAttempts int           `env:"LOGIN_MAX_ATTEMPTS, default=5"`
	Window      time.Duration `env:"LOGIN_WINDOW,       default=15m"`
}

// MissingKeysError lists every required key that was not set.
type MissingKeysError struct {
	Keys []string
}

func (e *MissingKeysError) Error() string {
	return "missing required configuration: " + strings.Join(e.Keys, ", ")
}

// Load reads configuration from a .env file (if present) and the environment.
func Load(ctx context.Context) (*Config, error) {
	_ = godotenv.Load()
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate reports all missing required keys at once rather than stopping at
// the first.
func (c *Config) validate() error {
	required := map[string]string{
		"JWT_SECRET":          c.JWTSecret,
		"OAUTH_CLIENT_ID":     c.OAuth.ClientID,
		"OAUTH_CLIENT_SECRET": c.OAuth.ClientSecret,
		"OAUTH_REDIRECT_URL":  c.OAuth.RedirectURL,
	}

	var missing []string
	for key, value := range required {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &MissingKeysError{Keys: missing}
	}
	return nil
}

// IsProduction switches logging to JSON output.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}
