package main

import (
	"github.com/spf13/cobra"
	"github.com/zulandar/procurebot/internal/dashboard"
	"github.com/zulandar/procurebot/internal/logging"
)

func newDashboardCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Start the local buyer dashboard",
		Long:  "Launches a local web dashboard to log in as a buyer, browse negotiations and follow chats live.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, appOpts{})
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("port") {
				port = a.cfg.Dashboard.Port
			}
			ctx, cancel := signalContext(cmd)
			defer cancel()

			return dashboard.Start(ctx, dashboard.StartOpts{
				Backend:  a.api,
				Records:  a.records,
				Exporter: a.api,
				Sessions: a.newSession,
				Port:     port,
				Out:      cmd.OutOrStdout(),
				Logger:   logging.Component("dashboard"),
			})
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "port to listen on (default from config)")
	return cmd
}
