package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/dqm/internal/pipeline"
	"github.com/JonMunkholm/dqm/internal/web"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		port  int
		cron  string
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with scheduled and watch-triggered runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			flags := cmd.Flags()
			if flags.Changed("port") {
				cfg.Server.Port = port
			}
			if flags.Changed("cron") {
				cfg.Schedule.Cron = cron
			}
			if flags.Changed("watch") {
				cfg.Schedule.Watch = watch
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config validation: %w", err)
			}

			slog.Info("configuration loaded",
				"port", cfg.Server.Port,
				"source", cfg.Paths.SourceDir,
				"output", cfg.Paths.OutputDir,
				"ledger", cfg.Ledger.Backend,
				"cron", cfg.Schedule.Cron,
				"watch", cfg.Schedule.Watch,
			)

			// jobCtx bounds background runs; it is cancelled on shutdown.
			jobCtx, cancelJobs := context.WithCancel(context.WithoutCancel(cmd.Context()))
			defer cancelJobs()

			runner, l, err := a.openRunner(jobCtx)
			if err != nil {
				return err
			}
			defer l.Close()

			scheduler := pipeline.NewScheduler(runner, cfg.Paths.SourceDir, slog.Default())
			if err := scheduler.Start(jobCtx, pipeline.ScheduleConfig{
				Cron:       cfg.Schedule.Cron,
				Watch:      cfg.Schedule.Watch,
				Debounce:   cfg.Schedule.Debounce,
				RunOnStart: cfg.Schedule.RunOnStart,
			}); err != nil {
				return err
			}
			defer scheduler.Stop()

			server := web.NewServer(jobCtx, runner, cfg)

			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Start()
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server: %w", err)
				}
				return nil
			case sig := <-sigCh:
				slog.Info("shutting down...", "signal", sig.String())
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()

			// Stop new triggers, then let the active run finish its current
			// file before cancelling it.
			scheduler.Stop()
			if err := server.Shutdown(shutdownCtx); err != nil {
				slog.Error("shutdown error", "error", err)
			}

			if status := runner.Gate().Status(); status.Active {
				slog.Info("waiting for active run to complete", "since", status.Since)
				if err := runner.Gate().WaitForDrain(shutdownCtx); err != nil {
					slog.Warn("run did not complete in time, cancelling", "error", err)
				} else {
					slog.Info("active run completed")
				}
			}
			cancelJobs()
			if err := runner.Wait(context.Background()); err != nil {
				slog.Warn("background runs did not stop", "error", err)
			}

			slog.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides SERVER_PORT)")
	cmd.Flags().StringVar(&cron, "cron", "", "cron schedule for runs (overrides SCHEDULE_CRON)")
	cmd.Flags().BoolVar(&watch, "watch", false, "run when files appear in the source directory (overrides SCHEDULE_WATCH)")
	return cmd
}
