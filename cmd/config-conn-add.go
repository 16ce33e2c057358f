package cmd

import (
	"github.com/relloyd/stagesync/actions"
	"github.com/spf13/cobra"
)

var configConnAddCfg = &actions.ConnectionConfig{}

var configConnAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a SQL Server connection",
	Long: `Add a SQL Server database connection to the config file by providing a DSN of the form:

sqlserver://<user>:<pass>@<host>/<dbname>[?<opt1>=<value1>&<opt2>=<value1>&...]
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		configConnAddCfg.ConfigFile = mustGetConnectionStore()
		return actions.RunConnectionAdd(configConnAddCfg)
	},
}

func initConnAdd() {
	configConnCmd.AddCommand(configConnAddCmd)
	configConnAddCmd.Flags().SortFlags = false
	switches.addFlag(configConnAddCmd, &configConnAddCfg.LogicalName, "connection-name", "", true, "")
	switches.addFlag(configConnAddCmd, &configConnAddCfg.Dsn, "dsn", "", true, "")
	switches.addFlag(configConnAddCmd, &configConnAddCfg.Force, "force-connection", "", false, "")
}
