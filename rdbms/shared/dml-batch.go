package shared

import (
	"fmt"
	"strings"

	om "github.com/cevaris/ordered_map"
	"github.com/relloyd/stagesync/constants"
	h "github.com/relloyd/stagesync/helper"
	"github.com/relloyd/stagesync/logger"
)

const strBindPrefix = "@p"

// DmlGeneratorTxtBatch generates SQL Server text batches with numbered @pN bind variables.
type DmlGeneratorTxtBatch struct{}

type SqlStatementGeneratorConfig struct {
	Log             logger.Logger
	OutputSchema    string
	SchemaSeparator string
	OutputTable     string
	TargetKeyCols   *om.OrderedMap // ordered map of: key = chan field name; value = target table column name
	TargetOtherCols *om.OrderedMap // ordered map of: key = chan field name; value = target table column name
}

type sqlCoreCfg struct {
	sqlStmt                string
	sqlStmtTemplate        string
	sqlValues              []interface{} // slice to hold data values for all rows in batch
	batchSize              int
	rowsInBatch            int
	previousNumRowsInBatch int // number of rows the cached sqlStmt was generated for.
}

// MaxRowsPerBatch returns the largest batch size that keeps a statement of numCols values per row
// under the SQL Server parameter limit, capped at the default text batch size.
func MaxRowsPerBatch(numCols int) int {
	if numCols <= 0 {
		return constants.TxtBatchNumRowsDefault
	}
	n := (constants.SqlServerMaxParams - 1) / numCols
	if n > constants.TxtBatchNumRowsDefault {
		n = constants.TxtBatchNumRowsDefault
	}
	if n < 1 {
		n = 1
	}
	return n
}

// getQualifiedTableName returns [schema].[table] or [table].
func getQualifiedTableName(cfg *SqlStatementGeneratorConfig) string {
	if cfg.OutputSchema == "" {
		return h.QuoteIdentifier(cfg.OutputTable)
	}
	return h.QuoteIdentifier(cfg.OutputSchema) + cfg.SchemaSeparator + h.QuoteIdentifier(cfg.OutputTable)
}

// getRowsOfBindVariables returns "(@p1,@p2),(@p3,@p4)" for numRows rows of numCols values.
func getRowsOfBindVariables(numRows int, numCols int) string {
	allRows := strings.Builder{}
	valIdx := 1
	for rowIdx := 0; rowIdx < numRows; rowIdx++ { // for each row...
		row := make([]string, numCols)
		for idy := 0; idy < numCols; idy++ { // for each value in the current row...
			row[idy] = fmt.Sprintf("%v%v", strBindPrefix, valIdx)
			valIdx++
		}
		if rowIdx > 0 {
			allRows.WriteString(",")
		}
		allRows.WriteString(fmt.Sprintf("(%v)", strings.Join(row, ",")))
	}
	return allRows.String()
}

// initCore resets the batch state and clears the cached statement when the row count changed.
func (c *sqlCoreCfg) initCore(batchSize int, numCols int) {
	c.batchSize = batchSize
	c.rowsInBatch = 0
	c.sqlValues = make([]interface{}, 0, batchSize*numCols) // many values per row in a batch.
}

// addCore appends one row of values and reports if the batch is full.
func (c *sqlCoreCfg) addCore(values []interface{}, numCols int, stmtType string) (batchIsFull bool, err error) {
	if c.rowsInBatch >= c.batchSize {
		return true, fmt.Errorf("no more rows allowed in %v batch", stmtType)
	}
	if len(values) != numCols {
		return false, fmt.Errorf("the number of values supplied (%v) does not match the number of %v columns (%v)", len(values), stmtType, numCols)
	}
	c.sqlValues = append(c.sqlValues, values...)
	c.rowsInBatch++ // keep track of how close we are to the batch limit.
	return c.rowsInBatch >= c.batchSize, nil
}
