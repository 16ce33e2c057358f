package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/relloyd/stagesync/config"
	c "github.com/relloyd/stagesync/constants"
	"github.com/relloyd/stagesync/helper"
	"github.com/relloyd/stagesync/logger"
	"github.com/spf13/cobra"
)

var (
	// Default values may be set at compile time.
	version          = "0.1.0"
	buildDate        = "2021-03-15T09:30+0000"
	osArch           = "linux"
	stackDumpOnPanic bool
	cfgFile          string
)

var rootCmd = &cobra.Command{
	Use:   c.AppName,
	Short: "Synchronize QGenda and EDW records into production tables via staging",
	Long: `Stagesync pulls records for a catalog of entities from the QGenda REST API and the EDW/Clarity
databases, loads them into import tables, mirrors the matching production rows into stage tables
and classifies every record as New, Update, Delete or Unchanged. The classified changes are then
applied to production in one transaction per entity.

Connections, secrets and per-entity overrides come from the config file and SS_* environment
variables. Run it once from a scheduler or use "serve" to run on an interval.`,
}

func init() {
	// General setup.
	cobra.EnableCommandSorting = false
	// Global flags.
	rootCmd.PersistentFlags().BoolVar(&stackDumpOnPanic, "print-stack", false, "Print a stack dump if there is a panic")
	_ = rootCmd.PersistentFlags().MarkHidden("print-stack")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config `<file>` (default: ~/"+config.MainDir+"/"+config.MainFileFullName+")")
	_ = rootCmd.MarkPersistentFlagFilename("config", config.MainFileNameExt)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if twelveFactorMode { // if we are running based on environment variables...
		if lambdaMode { // if we should handle lambda execution...
			lambda.Start(func(ctx context.Context) error { return execute12FactorMode(ctx, twelveFactorActions) })
		} else {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			err := execute12FactorMode(ctx, twelveFactorActions)
			stop()
			if err != nil {
				// execute12FactorMode prints the error.
				os.Exit(1)
			}
		}
	} else { // else we're using CLI args and flags via Cobra...
		if err := rootCmd.Execute(); err != nil {
			// Execute() prints the error.
			os.Exit(1)
		}
	}
}

// configFile returns the file named by --config, or SS_CONFIG in twelveFactorMode, falling back to
// the file in the home directory.
func configFile() (*config.File, error) {
	name := cfgFile
	if twelveFactorMode {
		name = helper.ReadValueFromEnvWithDefault(envVarConfigFile, cfgFile)
	}
	if name != "" {
		return config.NewFile(name), nil
	}
	return config.NewFileInHomeDir()
}

// loadSettings layers the config file and then the environment, including any .env files, over
// the defaults. Flags are applied by the caller.
func loadSettings() (*config.Settings, error) {
	env, err := config.ParseEnvironment(config.DefaultEnvFiles)
	if err != nil {
		return nil, err
	}
	f, err := configFile()
	if err != nil {
		return nil, err
	}
	return config.Load(f, env)
}

func newLogger(level string) *logger.LoggerImpl {
	return logger.NewLogger(c.AppName, level, stackDumpOnPanic)
}
