// Package config is responsible for initializing the application's configuration.
// It uses the Viper library to read settings from a config file, environment
// variables, and command-line flags, providing a unified configuration system.
package config

import (
	"strings"

	"github.com/JakeFAU/market-harvester/internal/logging"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// InitConfig initializes the application's configuration using Viper.
// It sets up default values, defines configuration search paths, and enables
// reading from environment variables. This function is designed to be called
// once at application startup so that configuration is loaded and available
// to all other packages.
func InitConfig() {
	// --- Set Search Paths ---
	viper.SetConfigName("config")
	viper.AddConfigPath(".")                // Current working directory
	viper.AddConfigPath("/etc/harvester/")  // System-wide configuration
	viper.AddConfigPath("$HOME/.harvester") // User-specific configuration

	// --- Set Defaults ---
	// Sensible defaults for key parameters, used when values are not provided
	// in a config file or via environment variables.
	viper.SetDefault("harvest.markets", []string{"amazon"})
	viper.SetDefault("harvest.target_total", 50)
	viper.SetDefault("harvest.min_per_market", 5)
	viper.SetDefault("harvest.max_rounds", 20)
	viper.SetDefault("harvest.max_results", 50)
	viper.SetDefault("harvest.search_attempts", 3)
	viper.SetDefault("harvest.search_retry_delay", "2s")
	viper.SetDefault("harvest.search_timeout", "2m")
	viper.SetDefault("harvest.inter_round_delay", "2s")
	viper.SetDefault("harvest.track_prices", true)
	viper.SetDefault("harvest.track_stock", true)
	viper.SetDefault("harvest.track_trends", false)
	viper.SetDefault("harvest.amazon_domain", "amazon.com")

	viper.SetDefault("fetch.max_retries", 3)
	viper.SetDefault("fetch.timeout", "30s")
	viper.SetDefault("fetch.backoff_base", "2s")
	viper.SetDefault("fetch.rate_per_market", 0.5)
	viper.SetDefault("fetch.rate_burst", 1)
	viper.SetDefault("fetch.cloudflare_bypass", true)
	viper.SetDefault("fetch.challenge_min_bytes", 2000)

	viper.SetDefault("identity.dynamic_user_agents", false)
	viper.SetDefault("identity.profile_cache_size", 32)

	viper.SetDefault("archive.kind", "none")
	viper.SetDefault("archive.mode", "blocked")
	viper.SetDefault("archive.local_dir", "data/archive")
	viper.SetDefault("archive.prefix", "payloads")

	viper.SetDefault("sink.kinds", []string{"file"})
	viper.SetDefault("sink.file.dir", "data")
	viper.SetDefault("sink.file.report_name", "report.json")
	viper.SetDefault("sink.file.records_name", "records.csv")
	viper.SetDefault("sink.postgres.table", "harvested_records")

	viper.SetDefault("server.enabled", false)
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("logging.development", false)

	// --- Environment Variables ---
	viper.SetEnvPrefix("HARVESTER") // e.g., HARVESTER_FETCH_MAX_RETRIES=5
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// --- Read Config File ---
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; not fatal when we can proceed with
			// defaults and environment variables.
			logging.L.Warn("Config file not found; using defaults and environment variables.")
		} else {
			logging.L.Error("Error reading config file", zap.Error(err))
		}
	} else {
		logging.L.Info("Using config file", zap.String("path", viper.ConfigFileUsed()))
	}
}
