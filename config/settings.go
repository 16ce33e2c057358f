package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/relloyd/stagesync/constants"
	"github.com/relloyd/stagesync/helper"
	"github.com/relloyd/stagesync/qgenda"
)

// Settings is the decoded configuration of a run.
// Values are layered: defaults, then the config file, then the environment, then flags.
type Settings struct {
	LogLevel      string                    `mapstructure:"logLevel" yaml:"logLevel"`
	HaltOnFailure bool                      `mapstructure:"haltOnFailure" yaml:"haltOnFailure"`
	Connections   map[string]string         `mapstructure:"connections" yaml:"connections"`
	QGenda        QGendaSettings            `mapstructure:"qgenda" yaml:"qgenda"`
	Archive       ArchiveSettings           `mapstructure:"archive" yaml:"archive"`
	RunLog        RunLogSettings            `mapstructure:"runLog" yaml:"runLog"`
	Window        WindowSettings            `mapstructure:"window" yaml:"window"`
	Entities      map[string]EntitySettings `mapstructure:"entities" yaml:"entities"`
	Lock          LockSettings              `mapstructure:"lock" yaml:"lock"`
	Metrics       MetricsSettings           `mapstructure:"metrics" yaml:"metrics"`

	// ImportDatabase is the staging database name as seen from production. When set, key-set
	// scopes are resolved with EXISTS against the import table instead of chunked IN lists.
	ImportDatabase string `mapstructure:"importDatabase" yaml:"importDatabase"`
}

type QGendaSettings struct {
	BaseUrl    string `mapstructure:"baseUrl" yaml:"baseUrl"`
	Email      string `mapstructure:"email" yaml:"email"`
	Password   string `mapstructure:"password" yaml:"password"`
	CompanyKey string `mapstructure:"companyKey" yaml:"companyKey"`
}

// ArchiveSettings selects where raw payloads go. S3 wins when a bucket is set or Dir is an
// s3://<bucket>/<prefix> URL.
// With neither set, payloads are discarded.
type ArchiveSettings struct {
	Dir string     `mapstructure:"dir" yaml:"dir"`
	S3  S3Settings `mapstructure:"s3" yaml:"s3"`
}

type S3Settings struct {
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
	Region string `mapstructure:"region" yaml:"region"`
}

// RunLogSettings configures the daily run log file. An empty Dir disables the file.
type RunLogSettings struct {
	Dir       string `mapstructure:"dir" yaml:"dir"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix"`
	MaxSizeMB int    `mapstructure:"maxSizeMB" yaml:"maxSizeMB"`
}

// WindowSettings is the refresh window of QGenda entities.
type WindowSettings struct {
	DaysBack    int `mapstructure:"daysBack" yaml:"daysBack"`
	DaysForward int `mapstructure:"daysForward" yaml:"daysForward"`
}

// EntitySettings overrides catalog values for one entity.
type EntitySettings struct {
	Disabled     bool   `mapstructure:"disabled" yaml:"disabled"`
	Strict       bool   `mapstructure:"strict" yaml:"strict"`
	DeletePolicy string `mapstructure:"deletePolicy" yaml:"deletePolicy,omitempty"`
	DaysBack     *int   `mapstructure:"daysBack" yaml:"daysBack,omitempty"`
	DaysForward  *int   `mapstructure:"daysForward" yaml:"daysForward,omitempty"`
}

type LockSettings struct {
	TimeoutSeconds int `mapstructure:"timeoutSeconds" yaml:"timeoutSeconds"`
}

type MetricsSettings struct {
	PushgatewayUrl string `mapstructure:"pushgatewayUrl" yaml:"pushgatewayUrl"`
	Job            string `mapstructure:"job" yaml:"job"`
}

// Defaults returns the settings used when nothing is configured.
func Defaults() *Settings {
	return &Settings{
		LogLevel:      "info",
		HaltOnFailure: true,
		Connections:   make(map[string]string),
		QGenda:        QGendaSettings{BaseUrl: constants.QGendaBaseUrlDefault},
		RunLog:        RunLogSettings{Prefix: constants.RunLogFilePrefixDefault, MaxSizeMB: 10},
		Window: WindowSettings{
			DaysBack:    constants.QGendaDaysBackDefault,
			DaysForward: constants.QGendaDaysForwardDefault,
		},
		Entities: make(map[string]EntitySettings),
		Lock:     LockSettings{TimeoutSeconds: constants.LockTimeoutSecondsDefault},
		Metrics:  MetricsSettings{Job: constants.AppName},
	}
}

// Load layers the config file f and the environment env over the defaults.
func Load(f *File, env *Environment) (*Settings, error) {
	s := Defaults()
	if f != nil {
		if err := f.Decode(s); err != nil {
			return nil, err
		}
	}
	if env != nil {
		s.ApplyEnvironment(env)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// ApplyEnvironment overwrites settings with any values set in env.
func (s *Settings) ApplyEnvironment(env *Environment) {
	setIfNotEmpty(&s.LogLevel, env.LogLevel)
	setIfNotEmpty(&s.QGenda.BaseUrl, env.QGendaBaseUrl)
	setIfNotEmpty(&s.QGenda.Email, env.QGendaEmail)
	setIfNotEmpty(&s.QGenda.Password, env.QGendaPassword)
	setIfNotEmpty(&s.QGenda.CompanyKey, env.QGendaCompanyKey)
	setIfNotEmpty(&s.Archive.Dir, env.ArchiveDir)
	setIfNotEmpty(&s.Archive.S3.Bucket, env.ArchiveBucket)
	setIfNotEmpty(&s.RunLog.Dir, env.RunLogDir)
	setIfNotEmpty(&s.Metrics.PushgatewayUrl, env.PushgatewayUrl)
	if s.Connections == nil {
		s.Connections = make(map[string]string)
	}
	for name, dsn := range env.Dsns() {
		if dsn != "" {
			s.Connections[name] = dsn
		}
	}
}

// Validate checks values that cannot be fixed by a default.
func (s *Settings) Validate() error {
	if s.Window.DaysBack < 0 || s.Window.DaysForward < 0 {
		return fmt.Errorf("window days must not be negative")
	}
	if s.Lock.TimeoutSeconds < 0 {
		return fmt.Errorf("lock timeout must not be negative")
	}
	for name, e := range s.Entities {
		switch e.DeletePolicy {
		case "", "delete", "retain":
		default:
			return fmt.Errorf("entity %v has unknown delete policy %q", name, e.DeletePolicy)
		}
		if (e.DaysBack != nil && *e.DaysBack < 0) || (e.DaysForward != nil && *e.DaysForward < 0) {
			return fmt.Errorf("entity %v window days must not be negative", name)
		}
	}
	return nil
}

// Entity returns the overrides for the named entity, ignoring case.
func (s *Settings) Entity(name string) (EntitySettings, bool) {
	for k, v := range s.Entities {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return EntitySettings{}, false
}

// EntityEnabled reports whether the named entity takes part in full runs.
func (s *Settings) EntityEnabled(name string) bool {
	e, _ := s.Entity(name)
	return !e.Disabled
}

func (s *Settings) LockTimeout() time.Duration {
	return time.Duration(s.Lock.TimeoutSeconds) * time.Second
}

// QGendaCredentials returns the login details, or an error naming whatever is missing.
func (s *Settings) QGendaCredentials() (qgenda.Credentials, error) {
	creds := qgenda.Credentials{
		Email:      s.QGenda.Email,
		Password:   s.QGenda.Password,
		CompanyKey: s.QGenda.CompanyKey,
	}
	if err := helper.ValidateStructIsPopulated(creds); err != nil {
		return creds, fmt.Errorf("QGenda is not configured: %w", err)
	}
	return creds, nil
}

func setIfNotEmpty(target *string, v string) {
	if v != "" {
		*target = v
	}
}
