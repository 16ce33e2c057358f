package tabledefinition

import (
	"fmt"
	"strings"
)

// Mapper relates database column types to descriptor field types.
type Mapper interface {
	// Compatible reports whether a column of dataType can hold values of field type t.
	Compatible(dataType string, t FieldType) bool
	// ColumnType returns the column type used for t in generated DDL.
	ColumnType(t FieldType) (string, error)
}

// dataTypeLink pairs a SQL Server data type with the field types it can store.
type dataTypeLink struct {
	SourceDataType string
	FieldTypes     []FieldType
}

// dataTypeMap implements Mapper.
type dataTypeMap struct {
	mapTypes map[string]map[FieldType]bool
	ddlTypes map[FieldType]string
}

func newDataTypeMapper(types []dataTypeLink, ddl map[FieldType]string) dataTypeMap {
	dtm := dataTypeMap{mapTypes: make(map[string]map[FieldType]bool), ddlTypes: ddl}
	for _, row := range types { // for each data type link...
		m := make(map[FieldType]bool)
		for _, ft := range row.FieldTypes {
			m[ft] = true
		}
		dtm.mapTypes[row.SourceDataType] = m
	}
	return dtm
}

func (o dataTypeMap) Compatible(dataType string, t FieldType) bool {
	m, ok := o.mapTypes[strings.ToLower(strings.TrimSpace(dataType))]
	return ok && m[t]
}

func (o dataTypeMap) ColumnType(t FieldType) (string, error) {
	v, ok := o.ddlTypes[t]
	if !ok {
		return "", fmt.Errorf("unsupported field type %q during conversion to DDL", t)
	}
	return v, nil
}

// NewSqlServerDataTypeMapper returns a Mapper for SQL Server INFORMATION_SCHEMA data types.
func NewSqlServerDataTypeMapper() Mapper {
	return newDataTypeMapper(SqlServerDataTypeMapping, SqlServerDdlTypes)
}

var (
	numbers = []FieldType{FieldInt, FieldBigInt, FieldDecimal}
	texts   = []FieldType{FieldString, FieldFlag}
)

// SqlServerDataTypeMapping lists the field types each SQL Server data type accepts.
var SqlServerDataTypeMapping = []dataTypeLink{
	{SourceDataType: "bigint", FieldTypes: numbers},
	{SourceDataType: "int", FieldTypes: numbers},
	{SourceDataType: "smallint", FieldTypes: numbers},
	{SourceDataType: "tinyint", FieldTypes: numbers},
	{SourceDataType: "decimal", FieldTypes: numbers},
	{SourceDataType: "numeric", FieldTypes: numbers},
	{SourceDataType: "money", FieldTypes: []FieldType{FieldDecimal}},
	{SourceDataType: "float", FieldTypes: []FieldType{FieldDecimal}},
	{SourceDataType: "real", FieldTypes: []FieldType{FieldDecimal}},
	{SourceDataType: "bit", FieldTypes: []FieldType{FieldBool}},
	{SourceDataType: "char", FieldTypes: texts},
	{SourceDataType: "nchar", FieldTypes: texts},
	{SourceDataType: "varchar", FieldTypes: texts},
	{SourceDataType: "nvarchar", FieldTypes: texts},
	{SourceDataType: "text", FieldTypes: []FieldType{FieldString}},
	{SourceDataType: "ntext", FieldTypes: []FieldType{FieldString}},
	{SourceDataType: "uniqueidentifier", FieldTypes: []FieldType{FieldString}},
	{SourceDataType: "date", FieldTypes: []FieldType{FieldDate}},
	{SourceDataType: "datetime", FieldTypes: []FieldType{FieldDate, FieldDateTime}},
	{SourceDataType: "datetime2", FieldTypes: []FieldType{FieldDate, FieldDateTime}},
	{SourceDataType: "smalldatetime", FieldTypes: []FieldType{FieldDate, FieldDateTime}},
	{SourceDataType: "datetimeoffset", FieldTypes: []FieldType{FieldDateTime}},
	{SourceDataType: "time", FieldTypes: []FieldType{FieldTime}},
}

// SqlServerDdlTypes are the column types used when generating CREATE TABLE statements.
var SqlServerDdlTypes = map[FieldType]string{
	FieldInt:      "int",
	FieldBigInt:   "bigint",
	FieldString:   "nvarchar(4000)",
	FieldBool:     "bit",
	FieldFlag:     "char(1)",
	FieldDate:     "date",
	FieldDateTime: "datetime2(3)",
	FieldTime:     "time(0)",
	FieldDecimal:  "decimal(18,4)",
}
