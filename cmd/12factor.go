package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	c "github.com/relloyd/stagesync/constants"
	"github.com/relloyd/stagesync/helper"
)

// init will be called first due to the lexical order in which these functions are executed.
// This ensures the value of twelveFactorMode is set such that other init() functions that configure
// Cobra can do the job of processing all environment variables that would contain equivalent of the CLI flag
// structures used by the commands.
func init() {
	setupTwelveFactorMode()
}

// setupTwelveFactorMode will enable or disable 12 factor mode based on environment variable.
func setupTwelveFactorMode() {
	mode := os.Getenv(envVarTwelveFactorMode)
	if mode != "" { // if variable for 12factor mode is set and we should read env vars to determine actions...
		twelveFactorMode = true
		if strings.ToLower(mode) == "lambda" {
			lambdaMode = true
		}
	} else { // else 12factor mode should be off...
		twelveFactorMode = false // explicitly turn off this mode since tests may have turned it on while others require it off.
		lambdaMode = false
	}
}

const (
	envVarTwelveFactorMode = c.EnvVarPrefix + "_" + "12FACTOR_MODE"
	envVarCommand          = c.EnvVarPrefix + "_" + "COMMAND"
	envVarSubcommand       = c.EnvVarPrefix + "_" + "SUBCOMMAND"
	envVarEntities         = c.EnvVarPrefix + "_" + "ENTITIES" // comma separated entity names
	envVarConfigFile       = c.EnvVarPrefix + "_" + "CONFIG"
	envVarLogLevel         = c.EnvVarPrefix + "_" + "LOG_LEVEL"
	envVarStackDump        = c.EnvVarPrefix + "_" + "STACK_DUMP"
	envVarQGendaPassword   = c.EnvVarPrefix + "_" + "QGENDA_PASSWORD"
)

var (
	twelveFactorMode bool // true if os env var envVarTwelveFactorMode is set
	lambdaMode       bool // true if os env var envVarTwelveFactorMode is "lambda"
	twelveFactorVars = map[string]string{
		envVarCommand:    "",
		envVarSubcommand: "",
		envVarEntities:   "",
		envVarConfigFile: "",
		envVarLogLevel:   "",
		envVarStackDump:  "",
		// Secrets are listed so that their presence is logged.
		envVarQGendaPassword: "",
		helper.GetDsnEnvVarName(c.ConnectionNameStaging): "",
		helper.GetDsnEnvVarName(c.ConnectionNameProd):    "",
		helper.GetDsnEnvVarName(c.ConnectionNameEdw):     "",
		helper.GetDsnEnvVarName(c.ConnectionNameClarity): "",
	}
	twelveFactorVarsSensitive = map[string]string{ // used to flag some of the above variables as being sensitive.
		envVarQGendaPassword: "",
		helper.GetDsnEnvVarName(c.ConnectionNameStaging): "",
		helper.GetDsnEnvVarName(c.ConnectionNameProd):    "",
		helper.GetDsnEnvVarName(c.ConnectionNameEdw):     "",
		helper.GetDsnEnvVarName(c.ConnectionNameClarity): "",
	}
)

type twelveFactorAction struct {
	runnerFunc func(ctx context.Context, entityNames []string) error
}

var twelveFactorActions = map[string]twelveFactorAction{
	"run": {
		runnerFunc: func(ctx context.Context, entityNames []string) error {
			_, err := runSync(ctx, runCmd.Flags(), &runOpts, entityNames, os.Stdout)
			return err
		},
	},
	"serve": {
		runnerFunc: func(ctx context.Context, entityNames []string) error {
			return runServe(ctx, serveCmd.Flags(), entityNames)
		},
	},
	"entities-verify": {
		runnerFunc: func(ctx context.Context, entityNames []string) error {
			return runVerify(ctx, entitiesVerifyCmd.Flags(), entityNames)
		},
	},
}

// twelveFactorActionName joins the command and optional subcommand, e.g. "run" or "entities-verify".
func twelveFactorActionName(command, subcommand string) string {
	command = strings.ToLower(strings.TrimSpace(command))
	subcommand = strings.ToLower(strings.TrimSpace(subcommand))
	if subcommand == "" {
		return command
	}
	return fmt.Sprintf("%v-%v", command, subcommand)
}

func execute12FactorMode(ctx context.Context, acts map[string]twelveFactorAction) (err error) {
	logLevel := helper.ReadValueFromEnvWithDefault(envVarLogLevel, "warn") // fetch logLevel from env as the settings are not loaded yet.
	stackDumpOnPanic = parseBool(os.Getenv(envVarStackDump))
	log := newLogger(logLevel)
	log.Info("Stagesync is running in 12 Factor mode...")
	// Save values for the required variables.
	for k := range twelveFactorVars { // for each env variable that we need...
		// Save it and log it.
		twelveFactorVars[k] = os.Getenv(k)
		_, sensitive := twelveFactorVarsSensitive[k]
		if !sensitive { // if the env variable does not contain sensitive values...
			// Log the value.
			log.Debug(k, "=", twelveFactorVars[k])
		} else if twelveFactorVars[k] != "" { // else output obfuscated value...
			log.Debug(k, "=", "<obfuscated>")
		}
	}
	// Use command and subcommand to fetch the appropriate action.
	a, ok := acts[twelveFactorActionName(twelveFactorVars[envVarCommand], twelveFactorVars[envVarSubcommand])]
	if !ok {
		err = fmt.Errorf("invalid combination of command (%v) and subcommand (%v)", twelveFactorVars[envVarCommand], twelveFactorVars[envVarSubcommand])
		log.Error(err.Error())
		return
	}
	// Run the action.
	err = a.runnerFunc(ctx, helper.CsvToStringSliceTrimSpaces(twelveFactorVars[envVarEntities]))
	if err != nil {
		log.Error("Error: ", err)
	}
	return err
}
