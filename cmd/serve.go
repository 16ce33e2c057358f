package cmd

import (
	"context"
	"time"

	"github.com/relloyd/stagesync/actions"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type serveOptions struct {
	runOptions
	address  string
	port     int
	interval int
}

var serveOpts = serveOptions{}

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve [entity...]",
	Short: "Start a web service and run the sync on an interval",
	Long: `Start a web service that runs the sync every --interval seconds for all enabled entities,
or the named ones. It serves /health, /status, /runs/last and /metrics, and accepts POST
/runs/trigger to start a run immediately. Only one run is active at a time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runServe(context.Background(), cmd.Flags(), args)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().SortFlags = false
	switches.addFlag(serveCmd, &serveOpts.address, "address", "0.0.0.0", false, "")
	switches.addFlag(serveCmd, &serveOpts.port, "port", "8080", false, "")
	switches.addFlag(serveCmd, &serveOpts.interval, "interval", "3600", false, "")
	addRunFlags(serveCmd, &serveOpts.runOptions)
}

func runServe(ctx context.Context, flags *pflag.FlagSet, names []string) error {
	s, _, log, metrics, err := newSynchronizer(flags, &serveOpts.runOptions)
	if err != nil {
		return err
	}
	return actions.RunWebServer(ctx, &actions.WebServerConfig{
		Log:          log,
		Addr:         serveOpts.address,
		Port:         serveOpts.port,
		Interval:     time.Duration(serveOpts.interval) * time.Second,
		Entities:     names,
		Synchronizer: s,
		Metrics:      metrics,
	})
}
