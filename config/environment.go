package config

import (
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/relloyd/stagesync/constants"
)

// DefaultEnvFiles are loaded, when present, before the environment is parsed.
var DefaultEnvFiles = []string{".env", ".env.local"}

// Environment holds the SS_* variables. Secrets are expected here rather than in the config file.
type Environment struct {
	LogLevel         string `env:"LOG_LEVEL"`
	QGendaBaseUrl    string `env:"QGENDA_BASE_URL"`
	QGendaEmail      string `env:"QGENDA_EMAIL"`
	QGendaPassword   string `env:"QGENDA_PASSWORD"`
	QGendaCompanyKey string `env:"QGENDA_COMPANY_KEY"`
	StagingDsn       string `env:"STAGING_DSN"`
	ProductionDsn    string `env:"PRODUCTION_DSN"`
	EdwDsn           string `env:"EDW_DSN"`
	ClarityDsn       string `env:"CLARITY_DSN"`
	ArchiveDir       string `env:"ARCHIVE_DIR"`
	ArchiveBucket    string `env:"ARCHIVE_BUCKET"`
	RunLogDir        string `env:"RUN_LOG_DIR"`
	PushgatewayUrl   string `env:"PUSHGATEWAY_URL"`
}

// LoadEnvFiles loads whichever of files exist into the process environment.
// Variables already set are not overwritten. It returns the number of files loaded.
func LoadEnvFiles(files []string) (int, error) {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// ParseEnvironment loads files and then parses the SS_* variables.
func ParseEnvironment(files []string) (*Environment, error) {
	if _, err := LoadEnvFiles(files); err != nil {
		return nil, err
	}
	e := &Environment{}
	if err := env.ParseWithOptions(e, env.Options{Prefix: constants.EnvVarPrefix + "_"}); err != nil {
		return nil, err
	}
	return e, nil
}

// Dsns maps connection names to the DSNs found in the environment.
func (e *Environment) Dsns() map[string]string {
	return map[string]string{
		constants.ConnectionNameStaging: e.StagingDsn,
		constants.ConnectionNameProd:    e.ProductionDsn,
		constants.ConnectionNameEdw:     e.EdwDsn,
		constants.ConnectionNameClarity: e.ClarityDsn,
	}
}

