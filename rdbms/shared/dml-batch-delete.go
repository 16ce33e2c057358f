package shared

import (
	"strings"

	h "github.com/relloyd/stagesync/helper"
)

// SqlDeleteTxtBatch implements interface SqlStmtTxtBatcher
// and is able to generate DELETE statements for batches of keys.
type SqlDeleteTxtBatch struct {
	SqlStatementGeneratorConfig // mandatory to be populated.
	sqlCoreCfg
	KeyList []string
}

// NewDeleteGenerator uses TargetKeyCols only.
// Configure defaults in SqlStatementGeneratorConfig.
func (*DmlGeneratorTxtBatch) NewDeleteGenerator(cfg *SqlStatementGeneratorConfig) SqlStmtTxtBatcher {
	FixSqlStatementGeneratorConfig(cfg)
	cfg.Log.Debug("Creating NewDeleteGenerator")
	o := &SqlDeleteTxtBatch{SqlStatementGeneratorConfig: *cfg}
	o.setupSqlStatement()
	return o
}

func (o *SqlDeleteTxtBatch) setupSqlStatement() {
	o.KeyList = make([]string, o.TargetKeyCols.Len())
	idx := 0
	h.OrderedMapValuesToStringSlice(o.Log, o.TargetKeyCols, &o.KeyList, &idx) // build the list of "key" columns.
	// Example:
	// delete tgt from [dbo].[t] tgt
	// join (values (@p1),(@p2)) src ([a])
	// on tgt.[a] = src.[a]
	o.sqlStmtTemplate = `delete tgt from <TABLE> tgt join (values <VALUES>) src (<KEY-COLS>) on <KEY-TXT>`
	o.sqlStmtTemplate = strings.Replace(o.sqlStmtTemplate, "<TABLE>", getQualifiedTableName(&o.SqlStatementGeneratorConfig), 1)
	o.sqlStmtTemplate = strings.Replace(o.sqlStmtTemplate, "<KEY-COLS>", strings.Join(h.QuoteIdentifiers(o.KeyList), ","), 1)
	o.sqlStmtTemplate = strings.Replace(o.sqlStmtTemplate, "<KEY-TXT>", h.GenerateStringOfColsEqualsCols(o.KeyList, "tgt", "src", " and "), 1)
	o.Log.Debug("setup DELETE generator with SQL (VALUES pending): ", o.sqlStmtTemplate)
}

func (o *SqlDeleteTxtBatch) InitBatch(batchSize int) {
	o.initCore(batchSize, len(o.KeyList))
}

func (o *SqlDeleteTxtBatch) AddValuesToBatch(values []interface{}) (batchIsFull bool, err error) {
	return o.addCore(values, len(o.KeyList), "DELETE")
}

func (o *SqlDeleteTxtBatch) GetValues() []interface{} {
	return o.sqlValues
}

func (o *SqlDeleteTxtBatch) GetNumRows() int {
	return o.rowsInBatch
}

func (o *SqlDeleteTxtBatch) GetStatement() string {
	if o.sqlStmt == "" || o.previousNumRowsInBatch != o.rowsInBatch { // if we need to generate SQL...
		o.sqlStmt = strings.Replace(o.sqlStmtTemplate, "<VALUES>", getRowsOfBindVariables(o.rowsInBatch, len(o.KeyList)), 1)
		o.previousNumRowsInBatch = o.rowsInBatch
	}
	o.Log.Trace("SQL batch DELETE generated statement: ", o.sqlStmt)
	return o.sqlStmt
}
