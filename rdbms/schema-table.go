package rdbms

import (
	"strings"

	"github.com/relloyd/stagesync/helper"
)

// SchemaTable names a table as [<schema>.]<table>.
// Either part may already be bracket quoted.
type SchemaTable struct {
	SchemaTable string `errorTxt:"[<schema>.]<object>" mandatory:"yes"`
}

func NewSchemaTable(schema string, table string) SchemaTable {
	if schema == "" {
		return SchemaTable{table}
	}
	return SchemaTable{schema + "." + table}
}

// split finds the separator outside of any brackets.
func (st *SchemaTable) split() (schema string, table string) {
	depth := 0
	for i, r := range st.SchemaTable {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
		case '.':
			if depth == 0 {
				return st.SchemaTable[:i], st.SchemaTable[i+1:]
			}
		}
	}
	return "", st.SchemaTable
}

func unquote(s string) string {
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		return strings.Replace(s[1:len(s)-1], "]]", "]", -1)
	}
	return s
}

// GetTable returns the unquoted table name.
func (st *SchemaTable) GetTable() string {
	_, t := st.split()
	return unquote(t)
}

// GetSchema returns the unquoted schema name or "" if there isn't one.
func (st *SchemaTable) GetSchema() string {
	s, _ := st.split()
	return unquote(s)
}

// Quoted returns [schema].[table] ready to use in SQL text.
func (st *SchemaTable) Quoted() string {
	if s := st.GetSchema(); s != "" {
		return helper.QuoteIdentifier(s) + "." + helper.QuoteIdentifier(st.GetTable())
	}
	return helper.QuoteIdentifier(st.GetTable())
}

func (st *SchemaTable) String() string {
	return st.SchemaTable
}
