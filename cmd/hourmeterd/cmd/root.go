package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"hourmeter-backend/config"
	"hourmeter-backend/internal/accrual"
	"hourmeter-backend/internal/app"
	"hourmeter-backend/internal/logger"
	"hourmeter-backend/internal/parse"
)

var (
	// options shared by every subcommand.
	options = &app.Options{}

	// runDay overrides the weekday of a manual run.
	runDay string
	// runAt is the RFC 3339 moment of a manual run.
	runAt string

	rootCmd = &cobra.Command{
		Use:   "hourmeterd",
		Short: "Track machine operating hours and raise maintenance alarms.",
		Long: `hourmeterd accrues the planned daily operating hours of every active machine
once a day and triggers the maintenance alarms whose interval has been reached.

Triggered alarms are delivered as web push notifications, MQTT messages and log lines.`,
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the daily accrual scheduler.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			cfg, err := app.Load(options)
			if err != nil {
				return err
			}
			return app.Serve(ctx, cfg)
		},
	}

	runOnceCmd = &cobra.Command{
		Use:   "run-once",
		Short: "Run the daily accrual once and print the run report as JSON.",
		Long: `Runs the daily accrual immediately. The weekday defaults to the current day in
accrual.timezone. --at fixes the run moment; --day replays the latest such weekday
and, together with --at, must match its weekday.
Machines already accrued for the current day are not accrued again.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			cfg, err := app.Load(options)
			if err != nil {
				return err
			}

			now := time.Now().In(cfg.Accrual.Location)
			if runAt != "" {
				at, err := time.Parse(time.RFC3339, runAt)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				now = at.In(cfg.Accrual.Location)
			}
			if runDay != "" {
				day, err := parse.Weekday(runDay)
				if err != nil {
					return fmt.Errorf("--day: %w", err)
				}
				if runAt != "" && day != now.Weekday() {
					return fmt.Errorf("--day %s does not match --at, which is a %s", day, now.Weekday())
				}
				now = accrual.LatestOn(now, day)
			}

			report, runErr := app.RunOnce(ctx, cfg, now.Weekday(), now)
			if report != nil {
				out, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(c.OutOrStdout(), string(out))
			}
			return runErr
		},
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema.",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := app.Load(options)
			if err != nil {
				return err
			}
			return app.Migrate(c.Context(), cfg)
		},
	}
)

// Execute runs the hourmeterd CLI and exits with non-zero status on error.
func Execute() {
	defer logger.Sync()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return config.DefaultConfigPath
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().StringVarP(&options.ConfigPath, "config", "c", defaultConfigPath(), "path to configuration file (env CONFIG_PATH)")
	rootCmd.PersistentFlags().StringVar(&options.LogLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	runOnceCmd.Flags().StringVar(&runDay, "day", "", "weekday to accrue, e.g. mon")
	runOnceCmd.Flags().StringVar(&runAt, "at", "", "run moment in RFC 3339, defaults to now")

	rootCmd.AddCommand(serveCmd, runOnceCmd, migrateCmd)
}
