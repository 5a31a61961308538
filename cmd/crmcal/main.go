package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"crmcal/internal/config"
	appLog "crmcal/internal/log"
)

const version = "0.1.0"

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "crmcal",
	Short: "CRM appointment calendar service",
	Long: `crmcal lays out CRM appointments as day, week and month calendar views,
resolves recurrence scopes for edits and deletes, and overlays read-only
events from linked ICS and Google calendars.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if logLevel != "" {
			appLog.SetLevel(appLog.ParseLevel(logLevel))
		}
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/etc/crmcal/config.yaml", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides config if set)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(layoutCmd())
	rootCmd.AddCommand(syncCmd())

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig loads and validates the config file and applies its log level
// unless --log-level was given.
func loadConfig() (*config.Config, error) {
	conf, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	if logLevel == "" {
		appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	}
	return conf, nil
}
