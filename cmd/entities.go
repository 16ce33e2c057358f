package cmd

import (
	"context"
	"os"

	"github.com/relloyd/stagesync/actions"
	"github.com/relloyd/stagesync/entities"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var entitiesCmd = &cobra.Command{
	Use:     "entities",
	Aliases: []string{"entity"},
	Short:   "List, describe and check the entities in the catalog",
}

var entitiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the entities in the catalog and whether they are enabled",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		return actions.ListEntities(entities.Default(), settings, os.Stdout)
	},
}

var entitiesDescribeOutput string

var entitiesDescribeCmd = &cobra.Command{
	Use:   "describe <entity>",
	Short: "Print the fields, keys and tables of an entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return actions.DescribeEntity(entities.Default(), args[0], entitiesDescribeOutput, os.Stdout)
	},
}

var entitiesDDLCmd = &cobra.Command{
	Use:   "ddl [entity...]",
	Short: "Print the CREATE TABLE statements for the import, stage and production tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		selected, err := entities.Default().Select(args...)
		if err != nil {
			return err
		}
		return actions.EntityDDL(selected, os.Stdout)
	},
}

var entitiesVerifyLogLevel string

var entitiesVerifyCmd = &cobra.Command{
	Use:   "verify [entity...]",
	Short: "Check that the import, stage and production tables have the columns each entity needs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runVerify(context.Background(), cmd.Flags(), args)
	},
}

func init() {
	rootCmd.AddCommand(entitiesCmd)
	entitiesCmd.AddCommand(entitiesListCmd)
	entitiesCmd.AddCommand(entitiesDescribeCmd)
	entitiesCmd.AddCommand(entitiesDDLCmd)
	entitiesCmd.AddCommand(entitiesVerifyCmd)
	switches.addFlag(entitiesDescribeCmd, &entitiesDescribeOutput, "output", "yaml", false, "")
	switches.addFlag(entitiesVerifyCmd, &entitiesVerifyLogLevel, "log-level", "warn", false, "")
}

func runVerify(ctx context.Context, flags *pflag.FlagSet, names []string) error {
	selected, err := entities.Default().Select(names...)
	if err != nil {
		return err
	}
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	level := settings.LogLevel
	if flagIsSet(flags, "log-level") {
		level = entitiesVerifyLogLevel
	}
	return actions.VerifyEntities(ctx, newLogger(level), settings, selected, os.Stdout)
}
