package cmd

import (
	"os"

	"github.com/relloyd/stagesync/actions"
	"github.com/spf13/cobra"
)

var configConnListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print all connections",
	Long:  `List the connections stored in the config file by printing them to STDOUT. Passwords are masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return actions.RunConnectionList(mustGetConnectionStore(), os.Stdout)
	},
}

func initConnList() {
	configConnCmd.AddCommand(configConnListCmd)
}
