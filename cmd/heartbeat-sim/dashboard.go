package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"heartbeat-sim/internal/dashboard"
)

var dashboardOut string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render Grafana dashboards",
	Long:  "dashboard writes Grafana dashboards for the GreptimeDB tables and Prometheus metrics. Datasource UIDs come from GREPTIMEDB_DATASOURCE_UID and PROMETHEUS_DATASOURCE_UID.",
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := dashboard.Render(dashboardOut)
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Fprintln(cmd.OutOrStdout(), f)
		}
		return nil
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardOut, "out", "dashboards", "Output directory")
}
