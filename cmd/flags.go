package cmd

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/relloyd/stagesync/helper"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type cliFlag struct {
	name      string // name of flag
	val       string // default value
	shortHand string // single character name for the flag
	desc      string // description of the flag; the long text
}

type cliFlags map[string]cliFlag

var switches = cliFlags{
	"mock": cliFlag{name: "mock", shortHand: "m", desc: "mock switch for testing"},
	"log-level": cliFlag{name: "log-level", shortHand: "l",
		desc: "Log level: \"error | warn | info | debug\""},
	"strict": cliFlag{name: "strict", shortHand: "s",
		desc: "Fail an entity when its source has duplicate natural keys instead of keeping the latest row"},
	"verify": cliFlag{name: "verify", shortHand: "V",
		desc: "Check the import, stage and production table columns before synchronizing each entity"},
	"days-back": cliFlag{name: "days-back", shortHand: "b",
		desc: "Number of days before today to refresh for QGenda windowed entities"},
	"days-forward": cliFlag{name: "days-forward", shortHand: "f",
		desc: "Number of days after today to refresh for QGenda windowed entities"},
	"archive-dir": cliFlag{name: "archive-dir", shortHand: "a",
		desc: "Directory in which to save the raw source payloads"},
	"lock-timeout": cliFlag{name: "lock-timeout", shortHand: "t",
		desc: "Seconds to wait for another run of the same entity to finish"},
	"continue-on-failure": cliFlag{name: "continue-on-failure", shortHand: "c",
		desc: "Carry on with the remaining entities after one fails"},
	"dry-run": cliFlag{name: "dry-run", shortHand: "d",
		desc: "Classify and report the changes without applying them to production"},
	"output": cliFlag{name: "output", shortHand: "o",
		desc: "Specify \"yaml\" or \"json\" to print the entity description"},
	"interval": cliFlag{name: "interval", shortHand: "i",
		desc: "Seconds between scheduled runs (use 0 to run only when triggered)"},
	"port": cliFlag{name: "port", shortHand: "p",
		desc: "Port to listen on"},
	"address": cliFlag{name: "address", shortHand: "A",
		desc: "Address to listen on"},
	"connection-name": cliFlag{name: "connection-name", shortHand: "c",
		desc: "Connection name, e.g. staging, production, edw or clarity"},
	"dsn": cliFlag{name: "dsn", shortHand: "d",
		desc: "DSN of the form sqlserver://<user>:<pass>@<host>/<dbname>[?<opt1>=<value1>&...]"},
	"force-connection": cliFlag{name: "force", shortHand: "f",
		desc: "Allow overwrite of existing connections"},
}

// addFlag add a flag to cobra.Command c, based on the type of targetVar (which must be a pointer).
// The name of the flag is looked up in map, cliFlags.
// When running in twelveFactorMode, the targetVar is populated using the value of environment variable for the supplied
// name, or if not set then the supplied default value is used.
// The flag is marked as required in Cobra based on the value of required.
// Supply a value for desc2 to append to the existing description found in map cliFlags.
func (f *cliFlags) addFlag(c *cobra.Command, targetVar interface{}, name string, defaultValue string, required bool, desc2 string) {
	v := reflect.ValueOf(targetVar)
	if v.Kind() != reflect.Ptr {
		fmt.Println("error adding flag: targetVar must be a pointer")
		os.Exit(1)
	}
	sw := f.getCliFlag(name, defaultValue)
	desc := sw.desc + desc2
	switch p := targetVar.(type) {
	case *string:
		if twelveFactorMode {
			*p = sw.val
		} else {
			c.Flags().StringVarP(p, sw.name, sw.shortHand, sw.val, desc)
		}
	case *bool:
		if twelveFactorMode {
			*p = parseBool(sw.val)
		} else {
			c.Flags().BoolVarP(p, sw.name, sw.shortHand, parseBool(sw.val), desc)
		}
	case *int:
		defaultInt := 0
		if sw.val != "" {
			var err error
			if defaultInt, err = strconv.Atoi(sw.val); err != nil {
				fmt.Printf("the value for flag %q must be an integer: %v\n", sw.name, err)
				os.Exit(1)
			}
		}
		if twelveFactorMode {
			*p = defaultInt
		} else {
			c.Flags().IntVarP(p, sw.name, sw.shortHand, defaultInt, desc)
		}
	default:
		panic("Error: unhandled CLI flag target value type")
	}
	// Optionally mark the flag as mandatory.
	if required && !twelveFactorMode { // if the flag is required...
		_ = c.MarkFlagRequired(sw.name)
	}
}

// getCliFlag fetches the value of name from the environment, when running in twelveFactorMode.
// If a value cannot be found then use the supplied defaultValue in its place.
func (f *cliFlags) getCliFlag(name string, defaultValue string) cliFlag {
	s, ok := (*f)[name]
	if !ok {
		panic(fmt.Sprintf("unregistered CLI flag, %q", name))
	}
	s.val = defaultValue
	if twelveFactorMode { // if we should read env vars...
		if err := helper.ReadValueFromEnv(flagNameToEnvVar(s.name), &s.val); err != nil {
			s.val = defaultValue
		}
	}
	return s
}

// flagIsSet reports whether the user supplied flag name, either on the command line or, in twelveFactorMode,
// through its environment variable. Only flags that are set override the config file.
func flagIsSet(flags *pflag.FlagSet, name string) bool {
	if twelveFactorMode {
		_, ok := os.LookupEnv(flagNameToEnvVar(name))
		return ok
	}
	return flags.Changed(name)
}

// flagNameToEnvVar will form a sanitised environment variable name, e.g. "days-back" becomes "SS_DAYS_BACK".
func flagNameToEnvVar(name string) string {
	return helper.GetEnvVarName(name)
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil { // any other non-empty value switches the flag on.
		return strings.TrimSpace(s) != ""
	}
	return b
}
