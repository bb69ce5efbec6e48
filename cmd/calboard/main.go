package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"calboard/internal/config"
	appLog "calboard/internal/log"
)

const version = "0.1.0"

// rootFlags holds values shared by every subcommand. Flags override the
// config file and the environment.
type rootFlags struct {
	configPath string
	listen     string
	logLevel   string
}

var flags rootFlags

func main() {
	root := &cobra.Command{
		Use:           "calboard",
		Short:         "Interactive month/week calendar with ICS subscriptions",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "./calboard.yaml", "Path to config file")
	root.PersistentFlags().StringVar(&flags.listen, "listen", "", "HTTP listen address (overrides config if set)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "debug, info or error (overrides config if set)")

	root.AddCommand(
		newServeCmd(),
		newTUICmd(),
		newSnapshotCmd(),
		newExportCmd(),
	)

	err := root.Execute()
	appLog.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, applies CLI overrides and sets the log
// level.
func loadConfig() (*config.Config, error) {
	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		return nil, err
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.logLevel != "" {
		conf.LogLevel = flags.logLevel
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Debug("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"default_view", conf.DefaultView,
		"refresh", conf.RefreshCron,
		"horizon_days", conf.HorizonDays,
		"backfill_days", conf.BackfillDays,
		"ics_count", len(conf.ICS),
	)
	return conf, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
