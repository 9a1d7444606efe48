// Package cmd defines and implements the CLI commands for the harvester executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/market-harvester/internal/logging"
	"github.com/JakeFAU/market-harvester/internal/report"
)

const (
	serverShutdownTimeout = 10 * time.Second
	sinkFlushTimeout      = 30 * time.Second
)

// newHarvestCmd creates and configures the 'harvest' subcommand.
// This command runs the convergence loop until the record quota is met and
// then publishes the aggregate report to the configured sinks.
func newHarvestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Runs a harvest until the record quota is met",
		Long: `Dispatches the configured search terms to every enabled market adapter
in rounds, deduplicating records as they arrive, until the total quota and
per-market floors are satisfied or the round budget runs out. A partial
harvest is still a successful one; whatever was collected is reported.`,

		RunE: runHarvestCommand,
	}
	return cmd
}

func runHarvestCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.GetLogger()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if apiSrv := appInstance.GetAPIServer(); apiSrv != nil {
		srv := startStatusServer(apiSrv.Handler(), appInstance.GetConfig().Server.Port, logger)
		defer stopStatusServer(srv, logger)
	}

	result, err := appInstance.GetOrchestrator().Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run harvest: %w", err)
	}
	if result == nil {
		logger.Warn("Harvest interrupted before any results were collected")
		return nil
	}

	rep := report.Build(result, nil, appInstance.ReportOptions())

	// Flush on a fresh context so an interrupt still lands the report.
	flushCtx, cancel := context.WithTimeout(context.Background(), sinkFlushTimeout)
	defer cancel()
	if err := appInstance.GetSinks().Flush(flushCtx, rep); err != nil {
		return fmt.Errorf("flush sinks: %w", err)
	}

	logging.L.Info("Harvest command finished.",
		zap.String("run_id", result.RunID),
		zap.Bool("complete", result.Complete),
		zap.Int("rounds", result.Rounds),
		zap.Int("total_unique", result.TotalUnique),
	)
	return nil
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

func startStatusServer(handler http.Handler, port int, logger *zap.Logger) *http.Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("status server started", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server error", zap.Error(err))
		}
	}()
	return srv
}

func stopStatusServer(srv *http.Server, logger *zap.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("status server shutdown error", zap.Error(err))
	}
}
