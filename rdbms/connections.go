package rdbms

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/relloyd/stagesync/constants"
	"github.com/relloyd/stagesync/logger"
	"github.com/relloyd/stagesync/rdbms/shared"
	"github.com/xo/dburl"
)

// OpenDbConnection opens a database connection using the supplied ConnectionDetails struct in c.
func OpenDbConnection(ctx context.Context, log logger.Logger, c shared.ConnectionDetails) (db shared.Connector, err error) {
	log.Debug("opening connection type ", c.Type, " with logicalName ", c.LogicalName) // don't log password details!
	switch c.Type {
	case constants.ConnectionTypeSqlServer:
		db, err = newConnectionWithDsn(ctx, log, c)
	default:
		err = fmt.Errorf("unsupported database type, %q", c.Type)
	}
	return
}

func newConnectionWithDsn(ctx context.Context, log logger.Logger, c shared.ConnectionDetails) (shared.Connector, error) {
	log.Info("Opening database connection: ", c)
	u, err := dburl.Parse(c.Dsn)
	if err != nil { // if the DSN could not be parsed...
		return nil, fmt.Errorf("error parsing DSN for connection %q: %w", c.LogicalName, err)
	}
	conn := &shared.SqlConnection{
		Dml:    &shared.DmlGeneratorTxtBatch{},
		DbType: c.Type,
	}
	// The sqlserver driver binds @pN parameters; the legacy mssql driver does not.
	conn.DbSql, err = sql.Open(constants.ConnectionTypeSqlServer, u.DSN)
	if err != nil {
		return nil, err
	}
	// Test the connection.
	if err = conn.DbSql.PingContext(ctx); err != nil {
		_ = conn.DbSql.Close()
		return nil, err
	}
	log.Info("Successful connection to: ", c.LogicalName)
	return conn, nil
}
