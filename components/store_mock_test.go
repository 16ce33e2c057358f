package components

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/relloyd/stagesync/logger"
	"github.com/relloyd/stagesync/rdbms"
	"github.com/relloyd/stagesync/rdbms/shared"
	"github.com/relloyd/stagesync/stream"
)

// memRunLog records run log messages.
type memRunLog struct {
	mu       sync.Mutex
	messages []string
}

func (m *memRunLog) Append(_ string, format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, fmt.Sprintf(format, args...))
}

// memStore is an in-memory production table keyed by natural key.
// WithTx snapshots the table and restores it when fn fails.
type memStore struct {
	log       logger.Logger
	keys      []string
	rows      []stream.Record
	failAfter int // fail the insert phase after this many statements when > 0
	inserts   int
}

func newMemStore(log logger.Logger, keys []string, rows ...stream.Record) *memStore {
	return &memStore{log: log, keys: keys, rows: rows}
}

func (m *memStore) Rows() []stream.Record {
	retval := make([]stream.Record, len(m.rows))
	for idx, r := range m.rows {
		retval[idx] = r.Copy()
	}
	return retval
}

func (m *memStore) QueryRecords(_ context.Context, _ string, _ ...interface{}) ([]stream.Record, error) {
	return m.Rows(), nil
}

func (m *memStore) WithTx(_ context.Context, fn func(tx shared.Transacter) error) error {
	snapshot := m.Rows()
	if err := fn(nil); err != nil {
		m.rows = snapshot
		return &rdbms.TxError{Err: err, RolledBack: true}
	}
	return nil
}

func (m *memStore) DeleteByKeys(_ context.Context, _ shared.Execer, _ rdbms.SchemaTable, keyCols []string, recs []stream.Record) (int64, error) {
	drop := make(map[string]bool, len(recs))
	for _, r := range recs {
		drop[r.KeyString(m.log, keyCols)] = true
	}
	kept := make([]stream.Record, 0, len(m.rows))
	for _, r := range m.rows {
		if !drop[r.KeyString(m.log, keyCols)] {
			kept = append(kept, r)
		}
	}
	n := int64(len(m.rows) - len(kept))
	m.rows = kept
	return n, nil
}

func (m *memStore) InsertRows(_ context.Context, _ shared.Execer, _ rdbms.SchemaTable, cols []string, recs []stream.Record) (int64, error) {
	m.inserts++
	if m.failAfter > 0 && m.inserts >= m.failAfter {
		return 0, errors.New("insert failed")
	}
	existing := make(map[string]bool, len(m.rows))
	for _, r := range m.rows {
		existing[r.KeyString(m.log, m.keys)] = true
	}
	for _, r := range recs {
		k := r.KeyString(m.log, m.keys)
		if existing[k] {
			return 0, fmt.Errorf("violation of primary key %v", k)
		}
		existing[k] = true
		row := stream.NewRecord()
		for _, c := range cols {
			row.SetData(c, r.GetData(c))
		}
		m.rows = append(m.rows, row)
	}
	return int64(len(recs)), nil
}

// memStaging captures what is written to staging tables.
type memStaging struct {
	tables    map[string][]stream.Record
	cols      map[string][]string
	truncated []string
	err       error
}

func newMemStaging() *memStaging {
	return &memStaging{tables: make(map[string][]stream.Record), cols: make(map[string][]string)}
}

func (m *memStaging) QueryRecords(_ context.Context, _ string, _ ...interface{}) ([]stream.Record, error) {
	return nil, errors.New("not supported")
}

func (m *memStaging) Truncate(_ context.Context, st rdbms.SchemaTable) error {
	if m.err != nil {
		return m.err
	}
	m.truncated = append(m.truncated, st.String())
	delete(m.tables, st.String())
	return nil
}

func (m *memStaging) BulkInsert(_ context.Context, st rdbms.SchemaTable, cols []string, recs []stream.Record) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.cols[st.String()] = cols
	for _, r := range recs {
		row := stream.NewRecord()
		for _, c := range cols {
			var v interface{}
			if r.HasField(c) {
				v = r.GetData(c)
			}
			row.SetData(c, v)
		}
		m.tables[st.String()] = append(m.tables[st.String()], row)
	}
	return int64(len(recs)), nil
}
