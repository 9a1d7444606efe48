// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Harvest  HarvestConfig  `mapstructure:"harvest"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Identity IdentityConfig `mapstructure:"identity"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Sink     SinkConfig     `mapstructure:"sink"`
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// HarvestConfig governs the orchestrator's convergence loop.
type HarvestConfig struct {
	Markets          []string      `mapstructure:"markets"`
	SearchTerms      []string      `mapstructure:"search_terms"`
	TargetTotal      int           `mapstructure:"target_total"`
	MinPerMarket     int           `mapstructure:"min_per_market"`
	MaxRounds        int           `mapstructure:"max_rounds"`
	MaxResults       int           `mapstructure:"max_results"`
	SearchAttempts   int           `mapstructure:"search_attempts"`
	SearchRetryDelay time.Duration `mapstructure:"search_retry_delay"`
	SearchTimeout    time.Duration `mapstructure:"search_timeout"`
	InterRoundDelay  time.Duration `mapstructure:"inter_round_delay"`
	TrackPrices      bool          `mapstructure:"track_prices"`
	TrackStock       bool          `mapstructure:"track_stock"`
	TrackTrends      bool          `mapstructure:"track_trends"`
	ShopifyStores    []string      `mapstructure:"shopify_stores"`
	AmazonDomain     string        `mapstructure:"amazon_domain"`
}

// FetchConfig configures the resilient fetch pipeline.
type FetchConfig struct {
	MaxRetries       int           `mapstructure:"max_retries"`
	Timeout          time.Duration `mapstructure:"timeout"`
	BackoffBase      time.Duration `mapstructure:"backoff_base"`
	RatePerMarket    float64       `mapstructure:"rate_per_market"`
	RateBurst        int           `mapstructure:"rate_burst"`
	CloudflareBypass bool          `mapstructure:"cloudflare_bypass"`
	// ChallengeMinBytes is the floor below which an HTML payload is treated
	// as a challenge interstitial. Zero disables the size check.
	ChallengeMinBytes int `mapstructure:"challenge_min_bytes"`
}

// IdentityConfig controls the rotating browser identity provider.
type IdentityConfig struct {
	DynamicUserAgents bool `mapstructure:"dynamic_user_agents"`
	ProfileCacheSize  int  `mapstructure:"profile_cache_size"`
}

// ArchiveConfig selects the raw payload archive backend.
type ArchiveConfig struct {
	Kind      string `mapstructure:"kind"`
	Mode      string `mapstructure:"mode"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// SinkConfig selects and configures the output sinks.
type SinkConfig struct {
	Kinds    []string       `mapstructure:"kinds"`
	File     FileSinkConfig `mapstructure:"file"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
}

// FileSinkConfig controls where the CSV roster and JSON report land.
type FileSinkConfig struct {
	Dir         string `mapstructure:"dir"`
	ReportName  string `mapstructure:"report_name"`
	RecordsName string `mapstructure:"records_name"`
}

// PostgresConfig controls the Postgres record sink.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PubSubConfig holds metadata for per-record publish notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ServerConfig controls the optional status HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from the supplied Viper instance. Search paths and
// environment binding are the caller's business (the CLI sets them up via
// pkg/config.InitConfig); Load applies defaults, unmarshals, and validates,
// so a bare viper.New() still yields a runnable configuration.
func Load(v *viper.Viper) (Config, error) {
	setDefaults(v)

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
	v.SetDefault("harvest.markets", []string{"amazon"})
	v.SetDefault("harvest.search_terms", []string{})
	v.SetDefault("harvest.target_total", 50)
	v.SetDefault("harvest.min_per_market", 5)
	v.SetDefault("harvest.max_rounds", 20)
	v.SetDefault("harvest.max_results", 50)
	v.SetDefault("harvest.search_attempts", 3)
	v.SetDefault("harvest.search_retry_delay", "2s")
	v.SetDefault("harvest.search_timeout", "2m")
	v.SetDefault("harvest.inter_round_delay", "2s")
	v.SetDefault("harvest.track_prices", true)
	v.SetDefault("harvest.track_stock", true)
	v.SetDefault("harvest.track_trends", false)
	v.SetDefault("harvest.amazon_domain", "amazon.com")
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.timeout", "30s")
	v.SetDefault("fetch.backoff_base", "2s")
	v.SetDefault("fetch.rate_per_market", 0.5)
	v.SetDefault("fetch.rate_burst", 1)
	v.SetDefault("fetch.cloudflare_bypass", true)
	v.SetDefault("fetch.challenge_min_bytes", 2000)
	v.SetDefault("identity.dynamic_user_agents", false)
	v.SetDefault("identity.profile_cache_size", 32)
	v.SetDefault("archive.kind", "none")
	v.SetDefault("archive.mode", "blocked")
	v.SetDefault("archive.local_dir", "data/archive")
	v.SetDefault("archive.prefix", "payloads")
	v.SetDefault("sink.kinds", []string{"file"})
	v.SetDefault("sink.file.dir", "data")
	v.SetDefault("sink.file.report_name", "report.json")
	v.SetDefault("sink.file.records_name", "records.csv")
	v.SetDefault("sink.postgres.table", "harvested_records")
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", false)
}

var (
	knownArchiveKinds = map[string]bool{"none": true, "memory": true, "local": true, "gcs": true}
	knownArchiveModes = map[string]bool{"none": true, "blocked": true, "all": true}
	knownSinkKinds    = map[string]bool{"memory": true, "file": true, "postgres": true, "pubsub": true}
)

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Harvest.TargetTotal <= 0 {
		return fmt.Errorf("harvest.target_total must be > 0")
	}
	if c.Harvest.MinPerMarket < 0 {
		return fmt.Errorf("harvest.min_per_market must be >= 0")
	}
	if c.Harvest.MaxRounds <= 0 {
		return fmt.Errorf("harvest.max_rounds must be > 0")
	}
	if c.Harvest.SearchAttempts <= 0 {
		return fmt.Errorf("harvest.search_attempts must be > 0")
	}
	if c.Harvest.SearchTimeout <= 0 {
		return fmt.Errorf("harvest.search_timeout must be > 0")
	}
	if c.Fetch.MaxRetries <= 0 {
		return fmt.Errorf("fetch.max_retries must be > 0")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	if c.Fetch.RatePerMarket <= 0 {
		return fmt.Errorf("fetch.rate_per_market must be > 0")
	}
	if c.Fetch.ChallengeMinBytes < 0 {
		return fmt.Errorf("fetch.challenge_min_bytes must be >= 0")
	}
	if !knownArchiveKinds[c.Archive.Kind] {
		return fmt.Errorf("archive.kind %q is not one of none|memory|local|gcs", c.Archive.Kind)
	}
	if !knownArchiveModes[c.Archive.Mode] {
		return fmt.Errorf("archive.mode %q is not one of none|blocked|all", c.Archive.Mode)
	}
	for _, kind := range c.Sink.Kinds {
		if !knownSinkKinds[kind] {
			return fmt.Errorf("sink.kinds entry %q is not one of memory|file|postgres|pubsub", kind)
		}
	}
	if c.Archive.Kind == "gcs" && c.Archive.GCSBucket == "" {
		return fmt.Errorf("archive.gcs_bucket must be set when archive.kind is gcs")
	}
	if c.SinkEnabled("postgres") && c.Sink.Postgres.DSN == "" {
		return fmt.Errorf("sink.postgres.dsn must be set when the postgres sink is enabled")
	}
	if c.SinkEnabled("pubsub") && (c.Sink.PubSub.ProjectID == "" || c.Sink.PubSub.TopicName == "") {
		return fmt.Errorf("sink.pubsub.project_id and sink.pubsub.topic_name must be set when the pubsub sink is enabled")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the server is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// SinkEnabled reports whether the named sink kind was requested.
func (c Config) SinkEnabled(kind string) bool {
	for _, k := range c.Sink.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}
