package cmd

import (
	"fmt"
	"os"

	"github.com/relloyd/stagesync/actions"
	"github.com/relloyd/stagesync/helper"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configure connections",
	Long: `Configure the connections stored in the config file (see --config).

Connections named staging and production are required. Entities read from the edw and clarity
connections. Any connection may instead be supplied with an SS_<NAME>_DSN environment variable,
which wins over the config file.`,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

// getConnectionStore returns the config file that holds connections.
// Connections cannot be saved when running in twelveFactorMode.
func getConnectionStore() (actions.ConnectionStore, error) {
	if twelveFactorMode {
		return nil, fmt.Errorf("connections cannot be configured when %v is set (supply them using %v instead)",
			envVarTwelveFactorMode, helper.GetDsnEnvVarName("<connection-name>"))
	}
	f, err := configFile()
	if err != nil {
		return nil, err
	}
	return f, nil
}

func mustGetConnectionStore() actions.ConnectionStore {
	store, err := getConnectionStore()
	if err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	return store
}
