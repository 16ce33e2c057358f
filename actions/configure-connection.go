package actions

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/relloyd/stagesync/helper"
	"github.com/relloyd/stagesync/rdbms/shared"
)

// ConnectionStore persists named connections. It is implemented by *config.File.
type ConnectionStore interface {
	AddConnection(name string, dsn string, force bool) error
	RemoveConnection(name string) error
	ConnectionNames() ([]string, error)
	GetConnectionDetails(name string) (shared.ConnectionDetails, error)
}

type ConnectionConfig struct {
	ConfigFile  ConnectionStore `errorTxt:"config file" mandatory:"yes"`
	LogicalName string          `errorTxt:"connection name" mandatory:"yes"`
	Dsn         string
	Force       bool
	Out         io.Writer
}

func RunConnectionAdd(cfg *ConnectionConfig) error {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil { // if the basics were not supplied...
		return err
	}
	if strings.ContainsAny(cfg.LogicalName, ". ") {
		return fmt.Errorf("connection name %q cannot contain periods or spaces", cfg.LogicalName)
	}
	if cfg.Dsn == "" {
		return fmt.Errorf("supply a DSN of the form sqlserver://<user>:<pass>@<host>/<dbname>")
	}
	if err := cfg.ConfigFile.AddConnection(cfg.LogicalName, cfg.Dsn, cfg.Force); err != nil {
		return err
	}
	fmt.Fprintf(stdoutIfNil(cfg.Out), "Connection %q added\n", cfg.LogicalName)
	return nil
}

func RunConnectionRemove(cfg *ConnectionConfig) error {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil {
		return err
	}
	if err := cfg.ConfigFile.RemoveConnection(cfg.LogicalName); err != nil {
		return err
	}
	fmt.Fprintf(stdoutIfNil(cfg.Out), "Connection %q removed\n", cfg.LogicalName)
	return nil
}

// RunConnectionList prints every saved connection with its password redacted.
func RunConnectionList(store ConnectionStore, out io.Writer) error {
	names, err := store.ConnectionNames()
	if err != nil {
		return err
	}
	for _, k := range names {
		conn, err := store.GetConnectionDetails(k)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%v:\n%v\n", k, conn)
	}
	return nil
}

func stdoutIfNil(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}
	return w
}
