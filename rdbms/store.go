package rdbms

import (
	"context"
	"fmt"
	"strings"

	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/pkg/errors"
	"github.com/relloyd/stagesync/constants"
	"github.com/relloyd/stagesync/helper"
	"github.com/relloyd/stagesync/logger"
	"github.com/relloyd/stagesync/rdbms/shared"
	"github.com/relloyd/stagesync/stream"
)

// Store is the relational store used by the loaders, the classifier and the applier.
// All values are bound as parameters and identifiers are bracket quoted.
type Store struct {
	log  logger.Logger
	name string
	conn shared.Connector
}

func NewStore(log logger.Logger, name string, conn shared.Connector) *Store {
	return &Store{log: log, name: name, conn: conn}
}

func (s *Store) Name() string {
	return s.name
}

func (s *Store) Close() {
	s.conn.Close()
}

// Truncate empties table st.
func (s *Store) Truncate(ctx context.Context, st SchemaTable) error {
	sqlText := fmt.Sprintf("truncate table %v", st.Quoted())
	s.log.Debug("store ", s.name, ": ", sqlText)
	if _, err := s.conn.ExecContext(ctx, sqlText); err != nil {
		return errors.Wrapf(err, "error truncating table %v on %v", st.String(), s.name)
	}
	return nil
}

// BulkInsert loads recs into table st in one transaction using the SQL Server bulk copy protocol.
// Values are taken from recs for each of cols in order. A column missing from a record is loaded as NULL.
// Records are sent in slice order. The number of rows copied is returned.
func (s *Store) BulkInsert(ctx context.Context, st SchemaTable, cols []string, recs []stream.Record) (rowCount int64, err error) {
	tx, err := s.conn.BeginTx(ctx)
	if err != nil {
		return 0, errors.Wrapf(err, "error starting bulk insert transaction on %v", s.name)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(st.Quoted(), mssql.BulkOptions{RowsPerBatch: constants.BulkInsertRowsPerBatch}, cols...))
	if err != nil {
		return 0, errors.Wrapf(err, "error preparing bulk insert into %v", st.String())
	}
	for _, rec := range recs { // for each record...
		if _, err = stmt.ExecContext(ctx, valuesOrNull(rec, cols)...); err != nil {
			_ = stmt.Close()
			return 0, errors.Wrapf(err, "error adding row to bulk insert into %v", st.String())
		}
	}
	// Flush the rows.
	res, err := stmt.ExecContext(ctx)
	if err != nil {
		_ = stmt.Close()
		return 0, errors.Wrapf(err, "error flushing bulk insert into %v", st.String())
	}
	if err = stmt.Close(); err != nil {
		return 0, errors.Wrapf(err, "error closing bulk insert into %v", st.String())
	}
	if err = tx.Commit(); err != nil {
		return 0, errors.Wrapf(err, "error committing bulk insert into %v", st.String())
	}
	rowCount, _ = res.RowsAffected()
	if rowCount == 0 && len(recs) > 0 { // if the driver did not report a count...
		rowCount = int64(len(recs))
	}
	s.log.Debug("store ", s.name, ": bulk inserted ", rowCount, " rows into ", st.String())
	return rowCount, nil
}

// QueryRecords runs sqlText with args and returns one Record per row, keyed by column name.
func (s *Store) QueryRecords(ctx context.Context, sqlText string, args ...interface{}) ([]stream.Record, error) {
	c := &RecordCollector{}
	s.log.Debug("store ", s.name, ": ", sqlText)
	if err := SqlQuery(ctx, s.log, s.conn, sqlText, c, args...); err != nil {
		return nil, errors.Wrapf(err, "error querying %v", s.name)
	}
	return c.Records, nil
}

// SelectColumns returns "select [c1],[c2] from [schema].[table]" with an optional alias.
func SelectColumns(st SchemaTable, cols []string, alias string) string {
	qcols := helper.QuoteIdentifiers(cols)
	if alias != "" {
		for idx := range qcols {
			qcols[idx] = alias + "." + qcols[idx]
		}
		return fmt.Sprintf("select %v from %v %v", strings.Join(qcols, ","), st.Quoted(), alias)
	}
	return fmt.Sprintf("select %v from %v", strings.Join(qcols, ","), st.Quoted())
}

// DeleteByKeys removes rows from st whose keyCols match those of recs.
// It runs on ex, which is usually the applier's production transaction.
func (s *Store) DeleteByKeys(ctx context.Context, ex shared.Execer, st SchemaTable, keyCols []string, recs []stream.Record) (int64, error) {
	gen := s.conn.GetDmlGenerator().NewDeleteGenerator(&shared.SqlStatementGeneratorConfig{
		Log:           s.log,
		OutputSchema:  st.GetSchema(),
		OutputTable:   st.GetTable(),
		TargetKeyCols: helper.StringSliceToOrderedMap(keyCols),
	})
	return s.execTxtBatches(ctx, ex, gen, keyCols, recs)
}

// InsertRows inserts the cols of recs into st using multi-row INSERT statements.
func (s *Store) InsertRows(ctx context.Context, ex shared.Execer, st SchemaTable, cols []string, recs []stream.Record) (int64, error) {
	gen := s.conn.GetDmlGenerator().NewInsertGenerator(&shared.SqlStatementGeneratorConfig{
		Log:             s.log,
		OutputSchema:    st.GetSchema(),
		OutputTable:     st.GetTable(),
		TargetOtherCols: helper.StringSliceToOrderedMap(cols),
	})
	return s.execTxtBatches(ctx, ex, gen, cols, recs)
}

// execTxtBatches adds the cols of recs to batches sized to stay under the parameter limit and
// executes each one, returning the total rows affected.
func (s *Store) execTxtBatches(ctx context.Context, ex shared.Execer, gen shared.SqlStmtTxtBatcher, cols []string, recs []stream.Record) (total int64, err error) {
	batchSize := shared.MaxRowsPerBatch(len(cols))
	flush := func() error {
		if gen.GetNumRows() == 0 {
			return nil
		}
		res, err := ex.ExecContext(ctx, gen.GetStatement(), gen.GetValues()...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		total += n
		return nil
	}
	gen.InitBatch(batchSize)
	for _, rec := range recs { // for each record...
		batchIsFull, err := gen.AddValuesToBatch(valuesOrNull(rec, cols))
		if err != nil {
			return total, err
		}
		if batchIsFull {
			if err = flush(); err != nil {
				return total, err
			}
			gen.InitBatch(batchSize)
		}
	}
	err = flush()
	return total, err
}

// TxError is returned by WithTx when the transaction did not commit.
// RolledBack is false if the rollback failed or the commit itself failed.
type TxError struct {
	Err        error
	RolledBack bool
}

func (e *TxError) Error() string {
	return fmt.Sprintf("transaction failed (rolledBack=%v): %v", e.RolledBack, e.Err)
}

func (e *TxError) Cause() error  { return e.Err }
func (e *TxError) Unwrap() error { return e.Err }

// WithTx runs fn inside one transaction and commits if fn succeeds.
// If fn fails the transaction is rolled back and a *TxError is returned.
func (s *Store) WithTx(ctx context.Context, fn func(tx shared.Transacter) error) error {
	tx, err := s.conn.BeginTx(ctx)
	if err != nil {
		return errors.Wrapf(err, "error starting transaction on %v", s.name)
	}
	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Error("store ", s.name, ": rollback failed: ", rbErr)
			return &TxError{Err: err, RolledBack: false}
		}
		s.log.Warn("store ", s.name, ": transaction rolled back")
		return &TxError{Err: err, RolledBack: true}
	}
	if err = tx.Commit(); err != nil {
		return &TxError{Err: errors.Wrapf(err, "error committing transaction on %v", s.name), RolledBack: false}
	}
	return nil
}

func valuesOrNull(rec stream.Record, cols []string) []interface{} {
	values := make([]interface{}, len(cols))
	for idx, c := range cols {
		if rec.HasField(c) {
			values[idx] = rec.GetData(c)
		}
	}
	return values
}
