package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for sign-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// MigrationsPath is the directory holding golang-migrate SQL files.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`

	// Database configuration (PostgreSQL backing the sign catalog)
	Database DatabaseConfig `yaml:"database"`

	// Redis caches external search results. Optional: empty host disables it.
	Redis RedisConfig `yaml:"redis"`

	// External image search fallback
	Search SearchConfig `yaml:"search"`

	// Resolver tuning
	Resolver ResolverConfig `yaml:"resolver"`

	// Keywords holds the curated keyword-map seed file location.
	Keywords KeywordsConfig `yaml:"keywords"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"signs"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"sign_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// SearchConfig configures the third-party image search fallback.
// The endpoint follows the Google Custom Search JSON API shape.
type SearchConfig struct {
	Endpoint    string        `yaml:"endpoint" env:"SEARCH_ENDPOINT" env-default:"https://www.googleapis.com/customsearch/v1"`
	APIKey      string        `yaml:"-" env:"SEARCH_API_KEY"` // Secret - not in YAML
	EngineID    string        `yaml:"engine_id" env:"SEARCH_ENGINE_ID" env-default:""`
	CountryHint string        `yaml:"country_hint" env:"SEARCH_COUNTRY_HINT" env-default:"Japan"`
	Timeout     time.Duration `yaml:"timeout" env:"SEARCH_TIMEOUT" env-default:"10s"`
	// MaxQueries caps how many templated queries are issued per lookup.
	MaxQueries int           `yaml:"max_queries" env:"SEARCH_MAX_QUERIES" env-default:"3"`
	CacheTTL   time.Duration `yaml:"cache_ttl" env:"SEARCH_CACHE_TTL" env-default:"24h"`
}

// IsAvailable returns true if the external search provider is configured.
func (c *SearchConfig) IsAvailable() bool {
	return c.Endpoint != "" && c.APIKey != "" && c.EngineID != ""
}

// ResolverConfig tunes the layered resolver.
type ResolverConfig struct {
	// NameMatchLimit bounds rows fetched by the name/meaning partial-match layers.
	NameMatchLimit int `yaml:"name_match_limit" env:"RESOLVER_NAME_MATCH_LIMIT" env-default:"10"`
	// RankedPageSize is how many rows the ranked layer reads per catalog page.
	RankedPageSize int `yaml:"ranked_page_size" env:"RESOLVER_RANKED_PAGE_SIZE" env-default:"500"`
	// UsageTimeout bounds the detached usage-accounting write.
	UsageTimeout time.Duration `yaml:"usage_timeout" env:"RESOLVER_USAGE_TIMEOUT" env-default:"5s"`
}

// KeywordsConfig locates the curated keyword seed file.
type KeywordsConfig struct {
	SeedFile string `yaml:"seed_file" env:"KEYWORDS_SEED_FILE" env-default:""`
	// Watch re-imports the seed file whenever it changes on disk.
	Watch bool `yaml:"watch" env:"KEYWORDS_WATCH" env-default:"false"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFrom("config.yaml", version)
}

// LoadFrom reads configuration from the given YAML file with environment overrides.
// A missing file is not an error; environment variables and defaults apply.
func LoadFrom(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg.Database.Host = ResolveHostForDocker(cfg.Database.Host)
	cfg.Redis.Host = ResolveHostForDocker(cfg.Redis.Host)

	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Resolver.NameMatchLimit <= 0 {
		return fmt.Errorf("resolver.name_match_limit must be positive")
	}
	if c.Resolver.RankedPageSize <= 0 {
		return fmt.Errorf("resolver.ranked_page_size must be positive")
	}
	if c.Search.MaxQueries <= 0 {
		return fmt.Errorf("search.max_queries must be positive")
	}
	return nil
}

// IsProduction reports whether the service runs with production logging.
func (c *Config) IsProduction() bool {
	return !strings.EqualFold(c.Env, "local") && !strings.EqualFold(c.Env, "test")
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the connection string in URL form, as required by golang-migrate.
func (c *DatabaseConfig) URL() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker returns true if /.dockerenv exists. The result is cached.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveHostForDocker maps localhost to host.docker.internal inside Docker
// so the catalog database and cache on the host stay reachable.
func ResolveHostForDocker(host string) string {
	if !IsRunningInDocker() {
		return host
	}
	if host == "localhost" || host == "127.0.0.1" {
		return "host.docker.internal"
	}
	return host
}
