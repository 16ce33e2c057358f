package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/relloyd/stagesync/actions"
	"github.com/relloyd/stagesync/config"
	c "github.com/relloyd/stagesync/constants"
	"github.com/relloyd/stagesync/entities"
	"github.com/relloyd/stagesync/logger"
	"github.com/relloyd/stagesync/stats"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// runOptions holds the flags shared by run and serve.
type runOptions struct {
	logLevel          string
	strict            bool
	verify            bool
	daysBack          int
	daysForward       int
	archiveDir        string
	lockTimeout       int
	continueOnFailure bool
	dryRun            bool
}

var runOpts = runOptions{}

var runCmd = &cobra.Command{
	Use:   "run [entity...]",
	Short: "Synchronize all enabled entities, or the named ones",
	Long: `Synchronize all enabled entities, or only the named ones, in catalog order.

Each entity is fetched, loaded into its import table, compared with the production rows mirrored
into its stage table and then the classified changes are applied to production. Use --dry-run to
stop after classification. The process exits non-zero if any entity fails.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		_, err := runSync(ctx, cmd.Flags(), &runOpts, args, os.Stdout)
		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().SortFlags = false
	addRunFlags(runCmd, &runOpts)
}

func addRunFlags(cmd *cobra.Command, o *runOptions) {
	switches.addFlag(cmd, &o.logLevel, "log-level", "info", false, "")
	switches.addFlag(cmd, &o.strict, "strict", "", false, "")
	switches.addFlag(cmd, &o.verify, "verify", "", false, "")
	switches.addFlag(cmd, &o.daysBack, "days-back", "", false, "")
	switches.addFlag(cmd, &o.daysForward, "days-forward", "", false, "")
	switches.addFlag(cmd, &o.archiveDir, "archive-dir", "", false, "")
	switches.addFlag(cmd, &o.lockTimeout, "lock-timeout", "", false, "")
	switches.addFlag(cmd, &o.continueOnFailure, "continue-on-failure", "", false, "")
	switches.addFlag(cmd, &o.dryRun, "dry-run", "", false, "")
}

// applyRunFlags overwrites settings with the flags the user supplied.
func applyRunFlags(flags *pflag.FlagSet, s *config.Settings, o *runOptions) error {
	if flagIsSet(flags, "log-level") {
		s.LogLevel = o.logLevel
	}
	if flagIsSet(flags, "days-back") {
		s.Window.DaysBack = o.daysBack
	}
	if flagIsSet(flags, "days-forward") {
		s.Window.DaysForward = o.daysForward
	}
	if flagIsSet(flags, "archive-dir") {
		s.Archive.Dir = o.archiveDir
	}
	if flagIsSet(flags, "lock-timeout") {
		s.Lock.TimeoutSeconds = o.lockTimeout
	}
	if flagIsSet(flags, "continue-on-failure") {
		s.HaltOnFailure = !o.continueOnFailure
	}
	return s.Validate()
}

// newSynchronizer loads the settings, applies flags and returns a synchronizer over the default
// catalog that opens real connections.
func newSynchronizer(flags *pflag.FlagSet, o *runOptions) (*actions.Synchronizer, *config.Settings, logger.Logger, *stats.Metrics, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if err = applyRunFlags(flags, settings, o); err != nil {
		return nil, nil, nil, nil, err
	}
	log := newLogger(settings.LogLevel)
	metrics := stats.NewMetrics()
	s, err := actions.NewSynchronizer(&actions.SynchronizerConfig{
		Log:      log,
		Catalog:  entities.Default(),
		Settings: settings,
		Metrics:  metrics,
		Open:     actions.NewDatabaseOpener(log, settings).Open,
		Strict:   o.strict,
		Verify:   o.verify,
		DryRun:   o.dryRun,
	})
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return s, settings, log, metrics, nil
}

func runSync(ctx context.Context, flags *pflag.FlagSet, o *runOptions, names []string, out io.Writer) (*actions.RunReport, error) {
	s, settings, log, metrics, err := newSynchronizer(flags, o)
	if err != nil {
		return nil, err
	}
	report, err := s.Run(ctx, names...)
	if report != nil {
		printReport(report, out)
	}
	if settings.Metrics.PushgatewayUrl != "" {
		if perr := metrics.Push(settings.Metrics.PushgatewayUrl, settings.Metrics.Job); perr != nil {
			log.Warn("Unable to push metrics: ", perr)
		}
	}
	return report, err
}

func printReport(r *actions.RunReport, out io.Writer) {
	for _, e := range r.Entities {
		if e.Error != "" {
			_, _ = fmt.Fprintf(out, "%v: %v at %v: %v\n", e.Entity, e.ErrorKind, e.State, e.Error)
			continue
		}
		_, _ = fmt.Fprintf(out, "%v: %v new=%v update=%v delete=%v unchanged=%v retained=%v deleted=%v inserted=%v\n",
			e.Entity, e.State,
			e.Counts[c.ClassificationNew], e.Counts[c.ClassificationUpdate], e.Counts[c.ClassificationDelete], e.Counts[c.ClassificationUnchanged],
			e.Retained, e.Deleted, e.Inserted)
	}
	if r.DryRun {
		_, _ = fmt.Fprintln(out, "Dry run: production was not changed")
	}
}
