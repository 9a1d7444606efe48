package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  enabled: true
  port: 9090
auth:
  enabled: true
  api_key: secret
harvest:
  markets: ["amazon", "ebay"]
  search_terms: ["mechanical keyboard"]
  target_total: 40
  min_per_market: 4
  max_rounds: 10
  inter_round_delay: 5s
  track_trends: true
fetch:
  max_retries: 5
  timeout: 45s
  rate_per_market: 2
archive:
  kind: local
  mode: all
  local_dir: /tmp/payloads
sink:
  kinds: ["file", "memory"]
  file:
    dir: /tmp/harvest-out
logging:
  development: true
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("read config: %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || !cfg.Server.Enabled {
		t.Fatalf("expected server enabled on 9090, got %+v", cfg.Server)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if len(cfg.Harvest.Markets) != 2 || cfg.Harvest.TargetTotal != 40 {
		t.Fatalf("expected harvest overrides to apply: %+v", cfg.Harvest)
	}
	if cfg.Harvest.InterRoundDelay != 5*time.Second {
		t.Fatalf("expected 5s inter-round delay, got %v", cfg.Harvest.InterRoundDelay)
	}
	if !cfg.Harvest.TrackPrices || !cfg.Harvest.TrackTrends {
		t.Fatalf("expected track flags (default prices, overridden trends): %+v", cfg.Harvest)
	}
	if cfg.Fetch.MaxRetries != 5 || cfg.Fetch.Timeout != 45*time.Second {
		t.Fatalf("expected fetch overrides to apply: %+v", cfg.Fetch)
	}
	if cfg.Archive.Kind != "local" || cfg.Archive.Mode != "all" {
		t.Fatalf("expected archive overrides to apply: %+v", cfg.Archive)
	}
	if !cfg.SinkEnabled("file") || !cfg.SinkEnabled("memory") || cfg.SinkEnabled("postgres") {
		t.Fatalf("expected file+memory sinks only: %+v", cfg.Sink.Kinds)
	}
	if cfg.Sink.File.Dir != "/tmp/harvest-out" || cfg.Sink.File.ReportName != "report.json" {
		t.Fatalf("expected file sink overrides with default names: %+v", cfg.Sink.File)
	}
	if !cfg.Logging.Development {
		t.Fatal("expected development logging")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(viper.New())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Harvest.TargetTotal != 50 || cfg.Harvest.MinPerMarket != 5 || cfg.Harvest.MaxRounds != 20 {
		t.Fatalf("unexpected quota defaults: %+v", cfg.Harvest)
	}
	if cfg.Harvest.InterRoundDelay != 2*time.Second {
		t.Fatalf("expected 2s inter-round delay default, got %v", cfg.Harvest.InterRoundDelay)
	}
	if cfg.Fetch.MaxRetries != 3 {
		t.Fatalf("expected 3 fetch retries by default, got %d", cfg.Fetch.MaxRetries)
	}
	if cfg.Fetch.ChallengeMinBytes != 2000 {
		t.Fatalf("expected 2000 byte challenge floor by default, got %d", cfg.Fetch.ChallengeMinBytes)
	}
	if cfg.Archive.Kind != "none" || cfg.Archive.Mode != "blocked" {
		t.Fatalf("unexpected archive defaults: %+v", cfg.Archive)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Harvest: HarvestConfig{
			TargetTotal:    50,
			MinPerMarket:   5,
			MaxRounds:      20,
			SearchAttempts: 3,
			SearchTimeout:  time.Minute,
		},
		Fetch: FetchConfig{
			MaxRetries:    3,
			Timeout:       30 * time.Second,
			RatePerMarket: 1,
		},
		Archive: ArchiveConfig{Kind: "none", Mode: "blocked"},
		Server:  ServerConfig{Port: 8080},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid target total",
			cfg: func() Config {
				c := base
				c.Harvest.TargetTotal = 0
				return c
			}(),
			want: "harvest.target_total",
		},
		{
			name: "invalid max rounds",
			cfg: func() Config {
				c := base
				c.Harvest.MaxRounds = 0
				return c
			}(),
			want: "harvest.max_rounds",
		},
		{
			name: "invalid fetch retries",
			cfg: func() Config {
				c := base
				c.Fetch.MaxRetries = 0
				return c
			}(),
			want: "fetch.max_retries",
		},
		{
			name: "negative challenge floor",
			cfg: func() Config {
				c := base
				c.Fetch.ChallengeMinBytes = -1
				return c
			}(),
			want: "fetch.challenge_min_bytes",
		},
		{
			name: "unknown archive kind",
			cfg: func() Config {
				c := base
				c.Archive.Kind = "s3"
				return c
			}(),
			want: "archive.kind",
		},
		{
			name: "unknown sink kind",
			cfg: func() Config {
				c := base
				c.Sink.Kinds = []string{"kafka"}
				return c
			}(),
			want: "sink.kinds",
		},
		{
			name: "gcs archive missing bucket",
			cfg: func() Config {
				c := base
				c.Archive.Kind = "gcs"
				return c
			}(),
			want: "archive.gcs_bucket",
		},
		{
			name: "postgres sink missing dsn",
			cfg: func() Config {
				c := base
				c.Sink.Kinds = []string{"postgres"}
				return c
			}(),
			want: "sink.postgres.dsn",
		},
		{
			name: "pubsub sink missing topic",
			cfg: func() Config {
				c := base
				c.Sink.Kinds = []string{"pubsub"}
				c.Sink.PubSub.ProjectID = "demo"
				return c
			}(),
			want: "sink.pubsub",
		},
		{
			name: "auth missing api key",
			cfg: func() Config {
				c := base
				c.Auth.Enabled = true
				return c
			}(),
			want: "auth.api_key",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
