package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
logLevel: debug
haltOnFailure: false
connections:
  staging: sqlserver://u:p@stagehost/qdm
  production: sqlserver://u:p@prodhost/qdm
archive:
  dir: /var/stagesync/json
runLog:
  dir: /var/stagesync/log
window:
  daysBack: 7
  daysForward: 14
entities:
  Schedule:
    strict: true
    daysBack: 3
  Task:
    disabled: true
    deletePolicy: delete
lock:
  timeoutSeconds: 5
metrics:
  pushgatewayUrl: http://pushgateway:9091
`

func writeConfig(t *testing.T, body string) *File {
	t.Helper()
	fn := filepath.Join(t.TempDir(), MainFileFullName)
	require.NoError(t, os.WriteFile(fn, []byte(body), 0o600))
	return NewFile(fn)
}

func TestFile_MissingFileIsEmpty(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "nope", MainFileFullName))
	keys, err := f.GetAllKeys()
	require.NoError(t, err)
	assert.Empty(t, keys)

	var s string
	err = f.Get("logLevel", &s)
	assert.True(t, errors.As(err, &KeyNotFoundError{}))
}

func TestFile_GetRequiresPointer(t *testing.T) {
	f := writeConfig(t, sampleConfig)
	var s string
	assert.Error(t, f.Get("logLevel", s))
	require.NoError(t, f.Get("logLevel", &s))
	assert.Equal(t, "debug", s)
}

func TestFile_SetAndDeletePersist(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "sub", MainFileFullName)
	f := NewFile(fn)
	require.NoError(t, f.Set("logLevel", "warn"))

	info, err := os.Stat(fn)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reread := NewFile(fn)
	var s string
	require.NoError(t, reread.Get("logLevel", &s))
	assert.Equal(t, "warn", s)

	require.NoError(t, reread.Delete("logLevel"))
	assert.True(t, errors.As(reread.Delete("logLevel"), &KeyNotFoundError{}))
	keys, err := NewFile(fn).GetAllKeys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestLoad_LayersFileOverDefaults(t *testing.T) {
	s, err := Load(writeConfig(t, sampleConfig), nil)
	require.NoError(t, err)

	assert.Equal(t, "debug", s.LogLevel)
	assert.False(t, s.HaltOnFailure)
	assert.Equal(t, "/var/stagesync/json", s.Archive.Dir)
	assert.Equal(t, 7, s.Window.DaysBack)
	assert.Equal(t, 14, s.Window.DaysForward)
	assert.Equal(t, 5, int(s.LockTimeout().Seconds()))
	assert.Equal(t, "http://pushgateway:9091", s.Metrics.PushgatewayUrl)
	// Defaults survive where the file is silent.
	assert.Equal(t, "StagesyncRunLog", s.RunLog.Prefix)
	assert.Equal(t, "stagesync", s.Metrics.Job)

	e, ok := s.Entity("schedule")
	require.True(t, ok)
	assert.True(t, e.Strict)
	require.NotNil(t, e.DaysBack)
	assert.Equal(t, 3, *e.DaysBack)
	assert.Nil(t, e.DaysForward)
	assert.False(t, s.EntityEnabled("Task"))
	assert.True(t, s.EntityEnabled("TimeEvent"))
}

func TestLoad_RejectsUnknownKeysAndBadValues(t *testing.T) {
	_, err := Load(writeConfig(t, "windw:\n  daysBack: 1\n"), nil)
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "entities:\n  Tag:\n    deletePolicy: purge\n"), nil)
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "window:\n  daysBack: -1\n"), nil)
	assert.Error(t, err)
}

func TestLoad_EnvironmentWinsOverFile(t *testing.T) {
	t.Setenv("SS_STAGING_DSN", "sqlserver://e:e@envhost/qdm")
	t.Setenv("SS_QGENDA_EMAIL", "ops@example.com")
	t.Setenv("SS_QGENDA_PASSWORD", "secret")
	t.Setenv("SS_QGENDA_COMPANY_KEY", "ck")
	t.Setenv("SS_ARCHIVE_DIR", "/tmp/json")
	env, err := ParseEnvironment(nil)
	require.NoError(t, err)

	s, err := Load(writeConfig(t, sampleConfig), env)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/json", s.Archive.Dir)

	cd, err := s.ConnectionDetails("STAGING")
	require.NoError(t, err)
	assert.Equal(t, "sqlserver://e:e@envhost/qdm", cd.Dsn)
	assert.Equal(t, "sqlserver", cd.Type)

	cd, err = s.ConnectionDetails("production")
	require.NoError(t, err)
	assert.Contains(t, cd.Dsn, "prodhost")

	_, err = s.ConnectionDetails("clarity")
	assert.ErrorContains(t, err, "SS_CLARITY_DSN")

	creds, err := s.QGendaCredentials()
	require.NoError(t, err)
	assert.Equal(t, "ck", creds.CompanyKey)
}

func TestSettings_QGendaCredentialsMissing(t *testing.T) {
	_, err := Defaults().QGendaCredentials()
	assert.ErrorContains(t, err, "QGenda email")
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(fn, []byte("SS_RUN_LOG_DIR=/from/dotenv\n"), 0o600))
	t.Setenv("SS_RUN_LOG_DIR", "")
	require.NoError(t, os.Unsetenv("SS_RUN_LOG_DIR"))

	n, err := LoadEnvFiles([]string{fn, filepath.Join(dir, ".env.local")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	env, err := ParseEnvironment(nil)
	require.NoError(t, err)
	assert.Equal(t, "/from/dotenv", env.RunLogDir)
	require.NoError(t, os.Unsetenv("SS_RUN_LOG_DIR"))
}

func TestFile_Connections(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), MainFileFullName))

	names, err := f.ConnectionNames()
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, f.AddConnection("edw", "sqlserver://u:p@edwhost/edw", false))
	require.NoError(t, f.AddConnection("clarity", "sqlserver://u:p@clarityhost/clarity", false))
	assert.Error(t, f.AddConnection("edw", "sqlserver://u:p@other/edw", false), "existing connections need force")
	require.NoError(t, f.AddConnection("edw", "sqlserver://u:p@other/edw", true))
	assert.Error(t, f.AddConnection("bad", "not a dsn", false))

	reread := NewFile(f.FullPath)
	names, err = reread.ConnectionNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"clarity", "edw"}, names)

	cd, err := reread.GetConnectionDetails("edw")
	require.NoError(t, err)
	assert.Contains(t, cd.Dsn, "other")
	assert.NotContains(t, cd.String(), ":p@")

	require.NoError(t, reread.RemoveConnection("edw"))
	assert.True(t, errors.As(reread.RemoveConnection("edw"), &KeyNotFoundError{}))
	require.NoError(t, reread.RemoveConnection("clarity"))
	keys, err := reread.GetAllKeys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}
