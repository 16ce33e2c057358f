package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/relloyd/stagesync/archive"
	"github.com/relloyd/stagesync/components"
	"github.com/relloyd/stagesync/entities"
	"github.com/relloyd/stagesync/logger"
	"github.com/relloyd/stagesync/rdbms"
	"github.com/relloyd/stagesync/rdbms/shared"
	"github.com/relloyd/stagesync/runlog"
	"github.com/relloyd/stagesync/stream"
	td "github.com/relloyd/stagesync/table-definition"
	"github.com/sirupsen/logrus"
)

var runDate = time.Date(2021, 3, 15, 9, 30, 0, 0, time.UTC)

func roomDescriptor() td.Descriptor {
	return td.NewDescriptor(
		td.Field{Name: "id", Type: td.FieldBigInt},
		td.Field{Name: "name", Type: td.FieldString},
	)
}

func roomEntity(name string) *entities.Entity {
	return &entities.Entity{
		Name:            name,
		Source:          entities.Source{Kind: entities.SourceSql, Connection: "src", Sqltext: "select id, name from " + name},
		Descriptor:      roomDescriptor(),
		Keys:            []string{"id"},
		Scope:           components.ScopeAll,
		ImportTable:     rdbms.NewSchemaTable("import", name),
		StageTable:      rdbms.NewSchemaTable("stage", name),
		ProductionTable: rdbms.NewSchemaTable("dbo", name),
	}
}

func room(id int64, name string) stream.Record {
	r := stream.NewRecord()
	r.SetData("id", id)
	r.SetData("name", name)
	return r
}

func copyRecords(recs []stream.Record) []stream.Record {
	retval := make([]stream.Record, len(recs))
	for idx, r := range recs {
		retval[idx] = r.Copy()
	}
	return retval
}

// fakeSource answers each query with the rows registered for the table it names.
type fakeSource struct {
	rows map[string][]stream.Record
	err  error
}

func (f *fakeSource) QueryRecords(_ context.Context, sqlText string, _ ...interface{}) ([]stream.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	for table, recs := range f.rows {
		if strings.HasSuffix(sqlText, " "+table) {
			return copyRecords(recs), nil
		}
	}
	return nil, nil
}

// fakeStaging keeps staging tables in memory, keyed by quoted table name.
type fakeStaging struct {
	mu      sync.Mutex
	tables  map[string][]stream.Record
	locks   []string
	lockErr map[string]error
}

func newFakeStaging() *fakeStaging {
	return &fakeStaging{tables: make(map[string][]stream.Record), lockErr: make(map[string]error)}
}

func (f *fakeStaging) table(st rdbms.SchemaTable) []stream.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyRecords(f.tables[st.Quoted()])
}

func (f *fakeStaging) QueryRecords(_ context.Context, sqlText string, _ ...interface{}) ([]stream.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for name, recs := range f.tables {
		if strings.Contains(sqlText, name) {
			return copyRecords(recs), nil
		}
	}
	return nil, nil
}

func (f *fakeStaging) Truncate(_ context.Context, st rdbms.SchemaTable) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[st.Quoted()] = nil
	return nil
}

func (f *fakeStaging) BulkInsert(_ context.Context, st rdbms.SchemaTable, cols []string, recs []stream.Record) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range recs {
		row := stream.NewRecord()
		for _, c := range cols {
			var v interface{}
			if r.HasField(c) {
				v = r.GetData(c)
			}
			row.SetData(c, v)
		}
		f.tables[st.Quoted()] = append(f.tables[st.Quoted()], row)
	}
	return int64(len(recs)), nil
}

func (f *fakeStaging) AcquireAppLock(_ context.Context, resource string, _ time.Duration) (*rdbms.AppLock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.lockErr[resource]; err != nil {
		return nil, err
	}
	f.locks = append(f.locks, resource)
	return &rdbms.AppLock{}, nil
}

// fakeProduction holds production tables in memory. WithTx restores them when fn fails.
type fakeProduction struct {
	log       logger.Logger
	mu        sync.Mutex
	tables    map[string][]stream.Record
	insertErr error
}

func newFakeProduction() *fakeProduction {
	return &fakeProduction{log: logrus.New(), tables: make(map[string][]stream.Record)}
}

func (f *fakeProduction) set(st rdbms.SchemaTable, recs ...stream.Record) {
	f.tables[st.Quoted()] = recs
}

func (f *fakeProduction) table(st rdbms.SchemaTable) []stream.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	recs := copyRecords(f.tables[st.Quoted()])
	stream.SortRecords(recs, []string{"id"})
	return recs
}

func (f *fakeProduction) QueryRecords(_ context.Context, sqlText string, _ ...interface{}) ([]stream.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for name, recs := range f.tables {
		if strings.Contains(sqlText, name) {
			return copyRecords(recs), nil
		}
	}
	return nil, nil
}

func (f *fakeProduction) WithTx(_ context.Context, fn func(tx shared.Transacter) error) error {
	f.mu.Lock()
	snapshot := make(map[string][]stream.Record, len(f.tables))
	for k, v := range f.tables {
		snapshot[k] = copyRecords(v)
	}
	f.mu.Unlock()
	if err := fn(nil); err != nil {
		f.mu.Lock()
		f.tables = snapshot
		f.mu.Unlock()
		return &rdbms.TxError{Err: err, RolledBack: true}
	}
	return nil
}

func (f *fakeProduction) DeleteByKeys(_ context.Context, _ shared.Execer, st rdbms.SchemaTable, keyCols []string, recs []stream.Record) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	drop := make(map[string]bool, len(recs))
	for _, r := range recs {
		drop[r.KeyString(f.log, keyCols)] = true
	}
	rows := f.tables[st.Quoted()]
	kept := make([]stream.Record, 0, len(rows))
	for _, r := range rows {
		if !drop[r.KeyString(f.log, keyCols)] {
			kept = append(kept, r)
		}
	}
	f.tables[st.Quoted()] = kept
	return int64(len(rows) - len(kept)), nil
}

func (f *fakeProduction) InsertRows(_ context.Context, _ shared.Execer, st rdbms.SchemaTable, cols []string, recs []stream.Record) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	for _, r := range recs {
		row := stream.NewRecord()
		for _, c := range cols {
			row.SetData(c, r.GetData(c))
		}
		f.tables[st.Quoted()] = append(f.tables[st.Quoted()], row)
	}
	return int64(len(recs)), nil
}

// fakeWorld is everything a test run touches.
type fakeWorld struct {
	staging    *fakeStaging
	production *fakeProduction
	source     *fakeSource
	opened     int
	openErr    error
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{
		staging:    newFakeStaging(),
		production: newFakeProduction(),
		source:     &fakeSource{rows: make(map[string][]stream.Record)},
	}
}

func (w *fakeWorld) open(_ context.Context, runID string, _ entities.Catalog) (*RunContext, error) {
	if w.openErr != nil {
		return nil, w.openErr
	}
	w.opened++
	rl := runlog.New(runID)
	rc := &RunContext{
		ID:         runID,
		Date:       runDate,
		Log:        logrus.New(),
		Staging:    w.staging,
		Production: w.production,
		Sources:    map[string]components.RecordQuerier{"src": w.source},
		Archive:    archive.Discard{},
		RunLog:     rl,
	}
	rc.OnClose(rl.Close)
	return rc, nil
}

var errLockBusy = errors.New("lock busy")

func names(recs []stream.Record) []string {
	retval := make([]string, len(recs))
	for idx, r := range recs {
		retval[idx] = fmt.Sprintf("%v=%v", r.GetData("id"), r.GetData("name"))
	}
	return retval
}
