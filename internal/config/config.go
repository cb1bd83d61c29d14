// Package config loads and validates grant-discovery configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/grant-discovery/internal/crawler"
	"github.com/JakeFAU/grant-discovery/internal/grant"
)

// ErrConfiguration marks invalid or incomplete configuration.
var ErrConfiguration = errors.New("invalid configuration")

// Provider names shared across sections.
const (
	ProviderNone          = "none"
	ProviderMemory        = "memory"
	ProviderPostgres      = "postgres"
	ProviderSQLite        = "sqlite"
	ProviderElasticsearch = "elasticsearch"
	ProviderOpenAI        = "openai"
	ProviderPubSub        = "pubsub"
	ProviderLocal         = "local"
	ProviderGCS           = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Source    SourceConfig    `mapstructure:"source"`
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Normalize NormalizeConfig `mapstructure:"normalize"`
	Store     StoreConfig     `mapstructure:"store"`
	Index     IndexConfig     `mapstructure:"index"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// SourceConfig names the site being tracked.
type SourceConfig struct {
	Name string `mapstructure:"name"`
	Tag  string `mapstructure:"tag"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig describes the listing pages.
type CrawlerConfig struct {
	BaseURL       string   `mapstructure:"base_url"`
	ListingPath   string   `mapstructure:"listing_path"`
	ExcludedPaths []string `mapstructure:"excluded_paths"`
	NextMarkers   []string `mapstructure:"next_markers"`
	MaxPages      int      `mapstructure:"max_pages"`
}

// FetcherConfig configures the HTTP fetcher.
type FetcherConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	RespectRobots  bool   `mapstructure:"respect_robots"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// RateLimitConfig configures per-host politeness. RPS <= 0 disables limiting.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// NormalizeConfig controls normalizer defaults.
type NormalizeConfig struct {
	DefaultStatus string `mapstructure:"default_status"`
}

// StoreConfig selects the grant store.
type StoreConfig struct {
	Provider string         `mapstructure:"provider"`
	Table    string         `mapstructure:"table"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
}

// PostgresConfig controls access to PostgreSQL.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// SQLiteConfig points at the database file.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// IndexConfig selects the vector index.
type IndexConfig struct {
	Provider      string              `mapstructure:"provider"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

// ElasticsearchConfig configures the Elasticsearch client and index.
type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	APIKey     string   `mapstructure:"api_key"`
	Index      string   `mapstructure:"index"`
	Dimensions int      `mapstructure:"dimensions"`
	Similarity string   `mapstructure:"similarity"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider string       `mapstructure:"provider"`
	OpenAI   OpenAIConfig `mapstructure:"openai"`
}

// OpenAIConfig configures an OpenAI-compatible embeddings endpoint.
type OpenAIConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	Dimensions     int    `mapstructure:"dimensions"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// PublisherConfig selects where discovery events go.
type PublisherConfig struct {
	Provider string       `mapstructure:"provider"`
	PubSub   PubSubConfig `mapstructure:"pubsub"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// StorageConfig selects where run artifacts are written.
type StorageConfig struct {
	Provider       string             `mapstructure:"provider"`
	SnapshotPrefix string             `mapstructure:"snapshot_prefix"`
	SummaryPrefix  string             `mapstructure:"summary_prefix"`
	Local          LocalStorageConfig `mapstructure:"local"`
	GCS            GCSConfig          `mapstructure:"gcs"`
}

// LocalStorageConfig roots the filesystem blob store.
type LocalStorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// GCSConfig names the bucket for artifacts.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// ScheduleConfig drives the schedule command.
type ScheduleConfig struct {
	Cron  string `mapstructure:"cron"`
	Scope string `mapstructure:"scope"`
}

// LoggingConfig selects the zap encoder and minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from a .env file, an optional config file and the
// environment. Environment keys use the GRANTS prefix, e.g. GRANTS_STORE_PROVIDER.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("GRANTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.name", "eureka")
	v.SetDefault("source.tag", "eureka_network")
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("crawler.base_url", crawler.DefaultBaseURL)
	v.SetDefault("crawler.listing_path", crawler.DefaultListingPath)
	v.SetDefault("crawler.excluded_paths", crawler.DefaultExcludedPaths)
	v.SetDefault("crawler.next_markers", crawler.DefaultNextMarkers)
	v.SetDefault("crawler.max_pages", crawler.DefaultMaxPages)
	v.SetDefault("fetcher.user_agent", "grant-discovery/1.0 (+https://github.com/JakeFAU/grant-discovery)")
	v.SetDefault("fetcher.respect_robots", true)
	v.SetDefault("fetcher.timeout_seconds", 15)
	v.SetDefault("ratelimit.rps", 1.0)
	v.SetDefault("ratelimit.burst", 1)
	v.SetDefault("normalize.default_status", string(grant.StatusOpen))
	v.SetDefault("store.provider", ProviderSQLite)
	v.SetDefault("store.table", "grants")
	v.SetDefault("store.postgres.dsn", "")
	v.SetDefault("store.postgres.max_conns", 4)
	v.SetDefault("store.sqlite.path", "data/grants.db")
	v.SetDefault("index.provider", ProviderNone)
	v.SetDefault("index.elasticsearch.addresses", []string{})
	v.SetDefault("index.elasticsearch.username", "")
	v.SetDefault("index.elasticsearch.password", "")
	v.SetDefault("index.elasticsearch.api_key", "")
	v.SetDefault("index.elasticsearch.index", "grants")
	v.SetDefault("index.elasticsearch.dimensions", 1536)
	v.SetDefault("index.elasticsearch.similarity", "cosine")
	v.SetDefault("embedding.provider", ProviderNone)
	v.SetDefault("embedding.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.openai.api_key", "")
	v.SetDefault("embedding.openai.model", "text-embedding-3-small")
	v.SetDefault("embedding.openai.dimensions", 0)
	v.SetDefault("embedding.openai.timeout_seconds", 30)
	v.SetDefault("publisher.provider", ProviderNone)
	v.SetDefault("publisher.pubsub.project_id", "")
	v.SetDefault("publisher.pubsub.topic", "")
	v.SetDefault("storage.provider", ProviderLocal)
	v.SetDefault("storage.snapshot_prefix", "snapshots")
	v.SetDefault("storage.summary_prefix", "discovery")
	v.SetDefault("storage.local.base_dir", "data")
	v.SetDefault("storage.gcs.bucket", "")
	v.SetDefault("storage.gcs.prefix", "")
	v.SetDefault("schedule.cron", "0 2 * * 2,5")
	v.SetDefault("schedule.scope", "active")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Validate enforces required values and provider-specific settings.
func (c Config) Validate() error {
	if c.Source.Name == "" {
		return invalid("source.name is required")
	}
	if c.Server.Port <= 0 {
		return invalid("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return invalid("auth.api_key must be set when auth is enabled")
	}
	if err := c.CrawlerConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %s", ErrConfiguration, err.Error())
	}
	if c.Fetcher.TimeoutSeconds <= 0 {
		return invalid("fetcher.timeout_seconds must be > 0")
	}
	if _, err := c.DefaultStatus(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateIndex(); err != nil {
		return err
	}
	if err := c.validateEmbedding(); err != nil {
		return err
	}
	if err := c.validatePublisher(); err != nil {
		return err
	}
	return c.validateStorage()
}

// ValidateFor additionally checks what an ingesting run needs.
func (c Config) ValidateFor(ingest bool) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if !ingest {
		return nil
	}
	if c.Embedding.Provider == ProviderNone {
		return invalid("embedding.provider must not be none when ingesting")
	}
	if c.Index.Provider == ProviderNone {
		return invalid("index.provider must not be none when ingesting")
	}
	return nil
}

func (c Config) validateStore() error {
	switch c.Store.Provider {
	case ProviderMemory:
	case ProviderPostgres:
		if c.Store.Postgres.DSN == "" {
			return invalid("store.postgres.dsn is required for the postgres store")
		}
	case ProviderSQLite:
		if c.Store.SQLite.Path == "" {
			return invalid("store.sqlite.path is required for the sqlite store")
		}
	default:
		return invalid("unknown store.provider %q", c.Store.Provider)
	}
	return nil
}

func (c Config) validateIndex() error {
	switch c.Index.Provider {
	case ProviderNone, ProviderMemory:
	case ProviderElasticsearch:
		if len(c.Index.Elasticsearch.Addresses) == 0 {
			return invalid("index.elasticsearch.addresses is required for the elasticsearch index")
		}
	default:
		return invalid("unknown index.provider %q", c.Index.Provider)
	}
	return nil
}

func (c Config) validateEmbedding() error {
	switch c.Embedding.Provider {
	case ProviderNone:
	case ProviderOpenAI:
		if c.Embedding.OpenAI.APIKey == "" {
			return invalid("embedding.openai.api_key is required for the openai embedder")
		}
	default:
		return invalid("unknown embedding.provider %q", c.Embedding.Provider)
	}
	return nil
}

func (c Config) validatePublisher() error {
	switch c.Publisher.Provider {
	case ProviderNone, ProviderMemory:
	case ProviderPubSub:
		if c.Publisher.PubSub.ProjectID == "" || c.Publisher.PubSub.Topic == "" {
			return invalid("publisher.pubsub.project_id and publisher.pubsub.topic are required for pubsub")
		}
	default:
		return invalid("unknown publisher.provider %q", c.Publisher.Provider)
	}
	return nil
}

func (c Config) validateStorage() error {
	switch c.Storage.Provider {
	case ProviderMemory:
	case ProviderLocal:
		if c.Storage.Local.BaseDir == "" {
			return invalid("storage.local.base_dir is required for local storage")
		}
	case ProviderGCS:
		if c.Storage.GCS.Bucket == "" {
			return invalid("storage.gcs.bucket is required for gcs storage")
		}
	default:
		return invalid("unknown storage.provider %q", c.Storage.Provider)
	}
	return nil
}

// CrawlerConfig converts the crawler section.
func (c Config) CrawlerConfig() crawler.Config {
	return crawler.Config{
		BaseURL:       c.Crawler.BaseURL,
		ListingPath:   c.Crawler.ListingPath,
		ExcludedPaths: c.Crawler.ExcludedPaths,
		NextMarkers:   c.Crawler.NextMarkers,
		MaxPages:      c.Crawler.MaxPages,
	}
}

// DefaultStatus parses normalize.default_status. Only open and unknown are allowed.
func (c Config) DefaultStatus() (grant.Status, error) {
	status, ok := grant.ParseStatus(c.Normalize.DefaultStatus)
	if !ok || (status != grant.StatusOpen && status != grant.StatusUnknown) {
		return "", invalid("normalize.default_status must be open or unknown, got %q", c.Normalize.DefaultStatus)
	}
	return status, nil
}

// FetchTimeout converts fetcher.timeout_seconds.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetcher.TimeoutSeconds) * time.Second
}
