package main

import (
	"github.com/spf13/cobra"

	"crmcal/internal/crm"
	"crmcal/internal/ics"
	"crmcal/internal/linked"
	appLog "crmcal/internal/log"
	"crmcal/internal/notify"
	"crmcal/internal/web"
)

func serveCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API, linked-calendar sync and broker listener",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			appLog.Info("crmcal starting", "version", version)

			conf, err := loadConfig()
			if err != nil {
				return err
			}
			// CLI --listen overrides config file listen if provided.
			if listen != "" {
				conf.Listen = listen
			}

			appLog.Info("effective config",
				"listen", conf.Listen,
				"timezone", conf.Timezone,
				"week_start", conf.WeekStart,
				"crm", conf.CRM.BaseURL,
				"accounts", len(conf.Accounts),
				"sync_cron", conf.Sync.Cron,
				"broker", conf.Broker.Enabled,
			)

			client, err := crm.New(conf.CRM, conf.Cache)
			if err != nil {
				return err
			}

			loc := conf.Location()
			reg := linked.NewRegistry(configPath, conf.Accounts)
			sched := linked.NewScheduler(reg, linked.NewFactory(ics.NewFetcher(conf.Sync.CacheDir), loc), conf.Sync, loc)
			if err := sched.Start(ctx); err != nil {
				return err
			}
			defer sched.Stop()

			listener, err := notify.NewListener(conf.Broker, client)
			if err != nil {
				return err
			}
			if listener != nil {
				if err := listener.Start(ctx); err != nil {
					_ = listener.Stop()
					return err
				}
				defer func() {
					if err := listener.Stop(); err != nil {
						appLog.Error("broker listener stop failed", err)
					}
				}()
			}

			err = web.NewServer(conf, client, reg, sched).Run(ctx)
			appLog.Info("crmcal exiting")
			return err
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}
