package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/market-harvester/internal/api"
	"github.com/JakeFAU/market-harvester/internal/app"
	"github.com/JakeFAU/market-harvester/internal/config"
	"github.com/JakeFAU/market-harvester/internal/harvest"
	"github.com/JakeFAU/market-harvester/internal/logging"
	"github.com/JakeFAU/market-harvester/internal/market"
	"github.com/JakeFAU/market-harvester/internal/report"
	"github.com/JakeFAU/market-harvester/internal/sink"
	pkgconfig "github.com/JakeFAU/market-harvester/pkg/config"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
// This allows us to inject a mock app during tests.
type App interface {
	Close()
	GetLogger() *zap.Logger
	GetConfig() config.Config
	GetOrchestrator() *harvest.Orchestrator
	GetRegistry() *market.Registry
	GetSinks() sink.Sink
	GetAPIServer() *api.Server
	ReportOptions() report.Options
}

// newApp is the application factory. It's a variable so we can
// replace it with a mock factory in our tests.
var newApp = func(ctx context.Context) (App, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return app.New(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command.
// All logic from init() has been moved here.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "A multi-market product record harvester.",
		Long: `harvester collects product records from online marketplaces until a
configured quota is met. It dispatches search terms to every enabled market
adapter in rounds, deduplicates what comes back, and publishes the merged
records and an aggregate report to the configured sinks.`,

		// This hook runs AFTER config is loaded but BEFORE the subcommand's RunE.
		// This is the perfect place to build and inject the application.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// The version command must work without configuration or services.
			if cmd.Name() == "version" {
				return nil
			}

			appInstance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}

			// Store the app instance in the context for subcommands to use.
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		// This hook ensures services are shut down gracefully.
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			// Retrieve the app INTERFACE from the context and close it.
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	// Initialize Viper configuration. An explicit --config wins over the
	// search paths and must parse.
	cobra.OnInitialize(func() {
		pkgconfig.InitConfig()
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
			if err := viper.ReadInConfig(); err != nil {
				logging.L.Fatal("Failed to read config file", zap.String("path", cfgFile), zap.Error(err))
			}
		}
	})

	// Define persistent flags.
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., /etc/harvester, $HOME/.harvester)")

	// Add subcommands. They no longer take the app as an argument.
	cmd.AddCommand(newHarvestCmd())
	cmd.AddCommand(newMarketsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	// Initialize the logger once at the very start.
	logging.InitLogger()

	// Create and execute the root command.
	if err := newRootCmd().Execute(); err != nil {
		logging.L.Fatal("Command execution failed", zap.Error(err))
	}
}
