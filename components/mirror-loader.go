package components

import (
	"context"
	"fmt"
	"strings"

	c "github.com/relloyd/stagesync/constants"
	"github.com/relloyd/stagesync/failure"
	"github.com/relloyd/stagesync/helper"
	"github.com/relloyd/stagesync/logger"
	"github.com/relloyd/stagesync/rdbms"
	"github.com/relloyd/stagesync/stream"
	td "github.com/relloyd/stagesync/table-definition"
)

type MirrorLoaderConfig struct {
	Log             logger.Logger
	Entity          string
	Production      RecordQuerier
	Staging         StagingStore
	ProductionTable rdbms.SchemaTable
	StageTable      rdbms.SchemaTable
	ImportTable     rdbms.SchemaTable
	ImportDatabase  string // set when import and production share a server so the key set can use EXISTS
	Descriptor      td.Descriptor
	Scope           Scope
	WindowField     string
	ScopeKey        string
	RequireRows     bool // an empty production table is an error
	RunLog          RunLogger
}

// MirrorLoader copies the production rows in scope into the stage table.
type MirrorLoader struct {
	cfg *MirrorLoaderConfig
}

func NewMirrorLoader(cfg *MirrorLoaderConfig) *MirrorLoader {
	return &MirrorLoader{cfg: cfg}
}

// Queries returns the production queries and their arguments for the scope.
// Key-set scopes without EXISTS produce one query per chunk of distinct key values in imported.
// An empty key set produces no queries.
func (l *MirrorLoader) Queries(w Window, imported []stream.Record) (queries []string, args [][]interface{}) {
	base := rdbms.SelectColumns(l.cfg.ProductionTable, l.cfg.Descriptor.ColumnNames(), "p")
	switch l.cfg.Scope {
	case ScopeWindow:
		wf := helper.QuoteIdentifier(l.cfg.WindowField)
		return []string{fmt.Sprintf("%v where p.%v >= @p1 and p.%v < @p2", base, wf, wf)}, [][]interface{}{{w.Start, w.End}}
	case ScopeKeySet:
		key := helper.QuoteIdentifier(l.cfg.ScopeKey)
		if l.cfg.ImportDatabase != "" {
			src := helper.QuoteIdentifier(l.cfg.ImportDatabase) + "." + l.cfg.ImportTable.Quoted()
			return []string{fmt.Sprintf("%v where exists (select 1 from %v i where i.%v = p.%v)", base, src, key, key)}, [][]interface{}{nil}
		}
		values := distinctValues(imported, l.cfg.ScopeKey)
		for start := 0; start < len(values); start += c.KeySetChunkSize { // for each chunk of keys...
			end := start + c.KeySetChunkSize
			if end > len(values) {
				end = len(values)
			}
			chunk := values[start:end]
			params := make([]string, len(chunk))
			for idx := range chunk {
				params[idx] = fmt.Sprintf("@p%v", idx+1)
			}
			queries = append(queries, fmt.Sprintf("%v where p.%v in (%v)", base, key, strings.Join(params, ",")))
			args = append(args, chunk)
		}
		return queries, args
	}
	return []string{base}, [][]interface{}{nil}
}

// Load reads the production rows in scope and replaces the stage table with them, ETLCommand NULL.
func (l *MirrorLoader) Load(ctx context.Context, w Window, imported []stream.Record) (int64, error) {
	queries, args := l.Queries(w, imported)
	mirror := make([]stream.Record, 0)
	for idx, q := range queries {
		recs, err := l.cfg.Production.QueryRecords(ctx, q, args[idx]...)
		if err != nil {
			return 0, failure.Wrap(err, failure.StoreUnavailable, l.cfg.Entity, c.StateMirrorLoaded, "unable to query production")
		}
		mirror = append(mirror, recs...)
	}
	if len(mirror) == 0 && l.cfg.RequireRows {
		return 0, failure.New(failure.StoreUnavailable, l.cfg.Entity, c.StateMirrorLoaded,
			fmt.Sprintf("no records found in %v", l.cfg.ProductionTable.String()))
	}
	if err := l.cfg.Staging.Truncate(ctx, l.cfg.StageTable); err != nil {
		return 0, failure.Wrap(err, failure.StoreUnavailable, l.cfg.Entity, c.StateMirrorLoaded, "unable to truncate stage table")
	}
	cols := append(l.cfg.Descriptor.ColumnNames(), c.EtlCommandColumnName)
	n, err := l.cfg.Staging.BulkInsert(ctx, l.cfg.StageTable, cols, mirror)
	if err != nil {
		return 0, failure.Wrap(err, failure.StoreUnavailable, l.cfg.Entity, c.StateMirrorLoaded, "unable to load stage table")
	}
	l.cfg.Log.Info(l.cfg.Entity, " mirrored ", n, " production rows (", l.cfg.Scope, ") into ", l.cfg.StageTable.String())
	if l.cfg.RunLog != nil {
		l.cfg.RunLog.Append(l.cfg.Entity, "Loaded %v production records into %v", n, l.cfg.StageTable.String())
	}
	return n, nil
}

// ReadBack returns the descriptor columns of the stage table normalised to the descriptor types.
func (l *MirrorLoader) ReadBack(ctx context.Context) ([]stream.Record, error) {
	recs, err := l.cfg.Staging.QueryRecords(ctx, rdbms.SelectColumns(l.cfg.StageTable, l.cfg.Descriptor.ColumnNames(), ""))
	if err != nil {
		return nil, failure.Wrap(err, failure.StoreUnavailable, l.cfg.Entity, c.StateClassified, "unable to read stage table")
	}
	if err = normaliseAll(l.cfg.Descriptor, recs); err != nil {
		return nil, failure.Wrap(err, failure.StoreUnavailable, l.cfg.Entity, c.StateClassified, "unexpected value in stage table")
	}
	return recs, nil
}

// distinctValues returns the distinct non-null values of field in first-seen order.
func distinctValues(recs []stream.Record, field string) []interface{} {
	seen := make(map[string]bool, len(recs))
	retval := make([]interface{}, 0)
	for _, v := range fieldValues(recs, field) {
		if v == nil {
			continue
		}
		k := fmt.Sprintf("%T:%v", v, v)
		if seen[k] {
			continue
		}
		seen[k] = true
		retval = append(retval, v)
	}
	return retval
}
