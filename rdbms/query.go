package rdbms

import (
	"context"
	"fmt"

	"github.com/relloyd/stagesync/logger"
	"github.com/relloyd/stagesync/rdbms/shared"
	"github.com/relloyd/stagesync/stream"
)

// SqlQuery runs sqltext and sends the column names followed by each row to the handler.
func SqlQuery(ctx context.Context, log logger.Logger, db shared.Queryer, sqltext string, i shared.SqlResultHandler, args ...interface{}) error {
	rows, err := db.QueryContext(ctx, sqltext, args...)
	if err != nil {
		return fmt.Errorf("error during database query using SQL: '%v': %w", sqltext, err)
	}
	defer func() {
		_ = rows.Close()
	}()
	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("error fetching column names: %w", err)
	}
	log.Trace("query columns = ", cols)
	// Scan the values dynamically.
	lenCols := len(cols)
	scanPtrs := make([]interface{}, lenCols)
	scanVals := make([]interface{}, lenCols)
	for idx := 0; idx < lenCols; idx++ { // for each column...
		scanPtrs[idx] = &scanVals[idx]
	}
	// Build and send the header.
	header := make([]interface{}, lenCols)
	for idx := range cols {
		header[idx] = cols[idx]
	}
	if err = i.HandleHeader(header); err != nil {
		return err
	}
	// Send the rows via callback interface.
	for rows.Next() {
		if err = ctx.Err(); err != nil { // quit if asked to.
			return err
		}
		if err = rows.Scan(scanPtrs...); err != nil {
			return fmt.Errorf("error scanning row: %w", err)
		}
		row := make([]interface{}, lenCols)
		for idx := range scanVals { // for each value...
			if b, ok := scanVals[idx].([]byte); ok { // the driver may reuse its buffer.
				scanVals[idx] = append([]byte(nil), b...)
			}
			row[idx] = scanVals[idx]
		}
		if err = i.HandleRow(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

// RecordCollector is a SqlResultHandler that builds a Record per row.
type RecordCollector struct {
	header  []string
	Records []stream.Record
}

func (r *RecordCollector) HandleHeader(i []interface{}) error {
	r.header = make([]string, len(i))
	for idx, v := range i {
		r.header[idx] = fmt.Sprint(v)
	}
	r.Records = make([]stream.Record, 0)
	return nil
}

func (r *RecordCollector) HandleRow(i []interface{}) error {
	if len(i) != len(r.header) {
		return fmt.Errorf("row has %v values but the header has %v columns", len(i), len(r.header))
	}
	rec := stream.NewRecord()
	for idx, v := range i {
		rec.SetData(r.header[idx], v)
	}
	r.Records = append(r.Records, rec)
	return nil
}
