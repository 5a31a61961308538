package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"crmcal/internal/ics"
	"crmcal/internal/linked"
)

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Sync all linked calendar accounts once and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig()
			if err != nil {
				return err
			}
			if len(conf.Accounts) == 0 {
				fmt.Println("no linked accounts")
				return nil
			}

			loc := conf.Location()
			reg := linked.NewRegistry(configPath, conf.Accounts)
			sched := linked.NewScheduler(reg, linked.NewFactory(ics.NewFetcher(conf.Sync.CacheDir), loc), conf.Sync, loc)

			status := sched.SyncAll(cmd.Context())
			printSyncStatus(os.Stdout, status, loc)
			for _, st := range status {
				if st.Error != "" {
					return fmt.Errorf("%d account(s) failed to sync", countFailed(status))
				}
			}
			return nil
		},
	}
}

func printSyncStatus(w io.Writer, status []linked.SyncStatus, loc *time.Location) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Account", "Events", "Synced", "Error"})
	for _, st := range status {
		tw.AppendRow(table.Row{st.AccountID, st.Count, st.LastSync.In(loc).Format(time.DateTime), st.Error})
	}
	tw.Render()
}

func countFailed(status []linked.SyncStatus) int {
	n := 0
	for _, st := range status {
		if st.Error != "" {
			n++
		}
	}
	return n
}
