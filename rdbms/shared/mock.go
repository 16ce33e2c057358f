package shared

import (
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/relloyd/stagesync/constants"
	"github.com/relloyd/stagesync/logger"
)

// NewMockConnectionWithMockTx returns a Connector backed by go-sqlmock plus the mock used to
// set expectations. It is used by tests in packages that need a SQL Server Connector.
func NewMockConnectionWithMockTx(log logger.Logger) (Connector, sqlmock.Sqlmock, error) {
	db, mock, err := sqlmock.New()
	if err != nil {
		return nil, nil, err
	}
	log.Debug("created mock database connection")
	return &SqlConnection{DbSql: db, Dml: &DmlGeneratorTxtBatch{}, DbType: constants.ConnectionTypeMock}, mock, nil
}
