package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Backend selects the key-value backend implementation.
type Backend string

const (
	// BackendDynamo uses DynamoDB.
	BackendDynamo Backend = "dynamodb"
	// BackendMemory keeps everything in process. Good for self-hosting
	// single-node setups and local development.
	BackendMemory Backend = "memory"
)

// AuthMode determines how requests are authenticated.
type AuthMode string

const (
	// AuthModeHeader trusts the account header set by the auth proxy.
	AuthModeHeader AuthMode = "header"
	// AuthModeNone uses a fixed default account. Good for self-hosting.
	AuthModeNone AuthMode = "none"
)

type Config struct {
	// Server
	Port            string        `env:"PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	BaseDomain      string        `env:"BASE_DOMAIN" envDefault:"echoboard.io"`

	// Backend
	Backend        Backend `env:"BACKEND" envDefault:"dynamodb"`
	DynamoRegion   string  `env:"DYNAMO_REGION"`
	DynamoEndpoint string  `env:"DYNAMO_ENDPOINT"`

	// Tables
	ProjectTable       string `env:"PROJECT_TABLE" envDefault:"projects"`
	SlugTable          string `env:"SLUG_TABLE" envDefault:"slugs"`
	SlugByProjectIndex string `env:"SLUG_BY_PROJECT_INDEX" envDefault:"slugByProjectId"`
	TokenTable         string `env:"TOKEN_TABLE" envDefault:"verifyTokens"`

	// Caching
	SlugCacheRead    bool          `env:"SLUG_CACHE_READ" envDefault:"true"`
	SlugCacheTTL     time.Duration `env:"SLUG_CACHE_TTL" envDefault:"1h"`
	SlugCacheSize    int           `env:"SLUG_CACHE_SIZE" envDefault:"10000"`
	ProjectCacheRead bool          `env:"PROJECT_CACHE_READ" envDefault:"true"`
	ProjectCacheTTL  time.Duration `env:"PROJECT_CACHE_TTL" envDefault:"1m"`
	ProjectCacheSize int           `env:"PROJECT_CACHE_SIZE" envDefault:"1000"`

	// Slug migration
	MigrationGracePeriod time.Duration `env:"MIGRATION_GRACE_PERIOD" envDefault:"24h"`

	// Verification tokens
	TokenSize   int           `env:"TOKEN_SIZE" envDefault:"6"`
	TokenExpiry time.Duration `env:"TOKEN_EXPIRY" envDefault:"15m"`

	// NATS (optional; empty disables lifecycle event publishing)
	NatsURL string `env:"NATS_URL"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Authentication
	AuthMode         AuthMode `env:"AUTH_MODE" envDefault:"header"`
	DefaultAccountID string   `env:"DEFAULT_ACCOUNT_ID" envDefault:"acct_default"`

	// CORS
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:5173"`
}

// IsSelfHosted returns true if running without an auth proxy.
func (c *Config) IsSelfHosted() bool {
	return c.AuthMode == AuthModeNone
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
