package helper

import (
	"fmt"
	"os"
	"strings"

	"github.com/relloyd/stagesync/constants"
)

// ReadValueFromEnv will read the env var called name and populate the supplied val.
// If the env var is not set then return an error.
func ReadValueFromEnv(name string, val *string) error {
	v := os.Getenv(name)
	if v != "" { // if the environment variable was set...
		*val = v // update the callers value
		return nil
	}
	return fmt.Errorf("value for environment variable %v not found", name)
}

// ReadValueFromEnvWithDefault will read the value of name from the environment into v.
// If it's not set then it will apply the supplied defaultValue and return v.
func ReadValueFromEnvWithDefault(name string, defaultValue string) (v string) {
	_ = ReadValueFromEnv(name, &v)
	if v == "" && defaultValue != "" {
		v = defaultValue
	}
	return
}

// GetEnvVarName converts name to upper case, replaces dashes with underscores and adds the
// application prefix, e.g. "days-back" becomes "SS_DAYS_BACK".
func GetEnvVarName(name string) string {
	n := strings.ToUpper(strings.Replace(strings.TrimSpace(name), "-", "_", -1))
	return fmt.Sprintf("%v_%v", constants.EnvVarPrefix, n)
}

// GetDsnEnvVarName returns the variable holding the DSN for the named connection.
func GetDsnEnvVarName(connectionName string) string {
	return GetEnvVarName(connectionName) + "_DSN"
}
