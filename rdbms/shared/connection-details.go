package shared

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/relloyd/stagesync/constants"
	"github.com/xo/dburl"
)

// ConnectionDetails is intended to hold credentials for a logical database connection.
type ConnectionDetails struct {
	Type        string `json:"type" errorTxt:"database type" mandatory:"yes" yaml:"type"`
	LogicalName string `json:"logicalName" errorTxt:"database logical name" mandatory:"yes" yaml:"logicalName"`
	Dsn         string `json:"dsn" errorTxt:"data source name i.e. connect string" mandatory:"yes" yaml:"dsn"`
}

// String redacts passwords and pretty-prints the contents of ConnectionDetails.
func (c ConnectionDetails) String() string {
	return fmt.Sprintf("%v (type = %v; dsn = %v)", c.LogicalName, c.Type, RedactDsn(c.Dsn))
}

// RedactDsn returns dsn with any password masked.
// A DSN that cannot be parsed is hidden entirely.
func RedactDsn(dsn string) string {
	u, err := dburl.Parse(dsn)
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}

// NewConnectionDetails parses dsn to find the connection type.
func NewConnectionDetails(logicalName string, dsn string) (ConnectionDetails, error) {
	if dsn == "" { // if the Dsn is invalid...
		return ConnectionDetails{}, fmt.Errorf("DSN not found for connection %q", logicalName)
	}
	u, err := dburl.Parse(dsn)
	if err != nil {
		return ConnectionDetails{}, errors.Wrapf(err, "DSN for connection %q could not be parsed", logicalName)
	}
	return ConnectionDetails{Type: connectionType(u), LogicalName: logicalName, Dsn: dsn}, nil
}

// connectionType maps the driver dburl picked for u to a connection type.
// dburl names go-mssqldb's legacy driver "mssql" for all SQL Server schemes.
func connectionType(u *dburl.URL) string {
	if u.Driver == "mssql" || u.Driver == constants.ConnectionTypeSqlServer {
		return constants.ConnectionTypeSqlServer
	}
	return u.Driver
}
