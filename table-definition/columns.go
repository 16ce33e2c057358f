package tabledefinition

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/relloyd/stagesync/constants"
	"github.com/relloyd/stagesync/helper"
	"github.com/relloyd/stagesync/logger"
	"github.com/relloyd/stagesync/rdbms"
	"github.com/relloyd/stagesync/stream"
)

// sqlColumnsWithSchema fetches the column definitions of one table from INFORMATION_SCHEMA.
const sqlColumnsWithSchema = `select TABLE_SCHEMA AS OWNER, TABLE_NAME, COLUMN_NAME, DATA_TYPE,
	COALESCE(CHARACTER_MAXIMUM_LENGTH, DATETIME_PRECISION) AS DATA_LENGTH,
	NUMERIC_PRECISION AS DATA_PRECISION, NUMERIC_SCALE AS DATA_SCALE, IS_NULLABLE AS NULLABLE,
	ORDINAL_POSITION AS COLUMN_ID
	from INFORMATION_SCHEMA.COLUMNS
	where TABLE_SCHEMA = @p1
	and TABLE_NAME = @p2
	order by ORDINAL_POSITION`

// Querier returns the rows of a query as Records. It is implemented by *rdbms.Store.
type Querier interface {
	QueryRecords(ctx context.Context, sqlText string, args ...interface{}) ([]stream.Record, error)
}

// TableColumn defines a single table column.
type TableColumn struct {
	ColName       string
	DataType      string
	DataLen       int
	DataPrecision int
	DataScale     int
	Nullable      bool
	ColID         int
}

// TableColumns is a struct representing the rows of INFORMATION_SCHEMA.COLUMNS for one table.
type TableColumns struct {
	Owner     string
	TableName string
	Columns   []TableColumn
}

// Column finds a column by name, ignoring case the way SQL Server's default collation does.
func (t TableColumns) Column(name string) (TableColumn, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.ColName, name) {
			return c, true
		}
	}
	return TableColumn{}, false
}

// GetTableDefinition fetches the column definitions of schemaTable.
// A table without columns, i.e. one that does not exist, is an error.
func GetTableDefinition(ctx context.Context, log logger.Logger, q Querier, schemaTable rdbms.SchemaTable) (tabCols TableColumns, err error) {
	schema := schemaTable.GetSchema()
	if schema == "" {
		schema = "dbo"
	}
	rows, err := q.QueryRecords(ctx, sqlColumnsWithSchema, schema, schemaTable.GetTable())
	if err != nil {
		return tabCols, err
	}
	for idx, row := range rows { // for each column definition found in the schema.table...
		if idx == 0 {
			tabCols.Owner = row.GetDataAsStringUseUtcTime(log, "OWNER")
			tabCols.TableName = row.GetDataAsStringUseUtcTime(log, "TABLE_NAME")
		}
		colDef := TableColumn{
			ColName:  row.GetDataAsStringUseUtcTime(log, "COLUMN_NAME"),
			DataType: row.GetDataAsStringUseUtcTime(log, "DATA_TYPE"),
			Nullable: true, // prefer nullable over not null!
		}
		for _, x := range []struct {
			field  string
			target *int
		}{
			{"DATA_LENGTH", &colDef.DataLen},
			{"DATA_PRECISION", &colDef.DataPrecision},
			{"DATA_SCALE", &colDef.DataScale},
			{"COLUMN_ID", &colDef.ColID},
		} {
			if !row.HasField(x.field) || row.GetData(x.field) == nil {
				continue
			}
			i, err := strconv.Atoi(row.GetDataAsStringUseUtcTime(log, x.field))
			if err != nil {
				return tabCols, fmt.Errorf("unable to convert %v to an integer", x.field)
			}
			*x.target = i
		}
		if row.HasField("NULLABLE") && row.GetData("NULLABLE") != nil && row.GetDataAsStringUseUtcTime(log, "NULLABLE") == "NO" {
			colDef.Nullable = false
		}
		tabCols.Columns = append(tabCols.Columns, colDef)
	}
	if len(tabCols.Columns) == 0 {
		err = fmt.Errorf("no column metadata found for table %q", schemaTable.String())
	}
	return
}

// Verify checks that table schemaTable has a column for every descriptor field with a type that can
// hold it. When withEtlCommand is set the table must also have the ETLCommand column used by stage tables.
func Verify(ctx context.Context, log logger.Logger, q Querier, schemaTable rdbms.SchemaTable, d Descriptor, withEtlCommand bool) error {
	tabCols, err := GetTableDefinition(ctx, log, q, schemaTable)
	if err != nil {
		return err
	}
	mapper := NewSqlServerDataTypeMapper()
	problems := make([]string, 0)
	for _, f := range d.Fields { // for each field we expect...
		c, ok := tabCols.Column(f.Name)
		if !ok {
			problems = append(problems, fmt.Sprintf("missing column %v", f.Name))
			continue
		}
		if !mapper.Compatible(c.DataType, f.Type) {
			problems = append(problems, fmt.Sprintf("column %v has type %v which cannot hold %v values", f.Name, c.DataType, f.Type))
		}
	}
	if withEtlCommand {
		if _, ok := tabCols.Column(constants.EtlCommandColumnName); !ok {
			problems = append(problems, fmt.Sprintf("missing column %v", constants.EtlCommandColumnName))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("table %v does not match its descriptor: %v", schemaTable.String(), strings.Join(problems, "; "))
	}
	log.Debug("verified table ", schemaTable.String(), " has ", len(d.Fields), " descriptor columns")
	return nil
}

// CreateTableDDL renders a CREATE TABLE statement for d.
// Key columns are NOT NULL. Stage tables get the extra ETLCommand column.
func CreateTableDDL(schemaTable rdbms.SchemaTable, d Descriptor, keys []string, withEtlCommand bool) (string, error) {
	mapper := NewSqlServerDataTypeMapper()
	isKey := helper.StringSliceToOrderedMap(keys)
	fields := make([]string, 0, len(d.Fields)+1)
	for _, f := range d.Fields {
		ct, err := mapper.ColumnType(f.Type)
		if err != nil {
			return "", err
		}
		notNull := ""
		if _, ok := isKey.Get(f.Name); ok {
			notNull = " not null"
		}
		fields = append(fields, fmt.Sprintf("%v %v%v", helper.QuoteIdentifier(f.Name), ct, notNull))
	}
	if withEtlCommand {
		fields = append(fields, fmt.Sprintf("%v varchar(10) null", helper.QuoteIdentifier(constants.EtlCommandColumnName)))
	}
	return fmt.Sprintf("create table %v (\n  %v\n)", schemaTable.Quoted(), strings.Join(fields, ",\n  ")), nil
}
