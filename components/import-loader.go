package components

import (
	"context"

	c "github.com/relloyd/stagesync/constants"
	"github.com/relloyd/stagesync/failure"
	"github.com/relloyd/stagesync/logger"
	"github.com/relloyd/stagesync/rdbms"
	"github.com/relloyd/stagesync/stream"
	td "github.com/relloyd/stagesync/table-definition"
)

type ImportLoaderConfig struct {
	Log         logger.Logger
	Entity      string
	Staging     StagingStore
	ImportTable rdbms.SchemaTable
	Descriptor  td.Descriptor
	RunLog      RunLogger
}

// ImportLoader replaces the contents of the import table with a batch.
type ImportLoader struct {
	cfg *ImportLoaderConfig
}

func NewImportLoader(cfg *ImportLoaderConfig) *ImportLoader {
	return &ImportLoader{cfg: cfg}
}

// Load truncates the import table and bulk inserts b in fetch order.
// The truncate is its own statement; the insert commits in one transaction.
func (l *ImportLoader) Load(ctx context.Context, b *stream.Batch) (int64, error) {
	if err := l.cfg.Staging.Truncate(ctx, l.cfg.ImportTable); err != nil {
		return 0, failure.Wrap(err, failure.StoreUnavailable, l.cfg.Entity, c.StateImported, "unable to truncate import table")
	}
	n, err := l.cfg.Staging.BulkInsert(ctx, l.cfg.ImportTable, l.cfg.Descriptor.ColumnNames(), b.Records)
	if err != nil {
		return 0, failure.Wrap(err, failure.StoreUnavailable, l.cfg.Entity, c.StateImported, "unable to load import table")
	}
	l.cfg.Log.Info(l.cfg.Entity, " loaded ", n, " rows into ", l.cfg.ImportTable.String())
	if l.cfg.RunLog != nil {
		l.cfg.RunLog.Append(l.cfg.Entity, "Loaded %v records into %v", n, l.cfg.ImportTable.String())
	}
	return n, nil
}

// ReadBack returns the rows of the import table in the order they were loaded, with driver
// values normalised to the descriptor types.
// The import table is a heap filled by a single bulk copy, so a serial scan returns rows in load order.
func (l *ImportLoader) ReadBack(ctx context.Context) ([]stream.Record, error) {
	sqlText := rdbms.SelectColumns(l.cfg.ImportTable, l.cfg.Descriptor.ColumnNames(), "") + " option (maxdop 1)"
	recs, err := l.cfg.Staging.QueryRecords(ctx, sqlText)
	if err != nil {
		return nil, failure.Wrap(err, failure.StoreUnavailable, l.cfg.Entity, c.StateClassified, "unable to read import table")
	}
	if err = normaliseAll(l.cfg.Descriptor, recs); err != nil {
		return nil, failure.Wrap(err, failure.StoreUnavailable, l.cfg.Entity, c.StateClassified, "unexpected value in import table")
	}
	return recs, nil
}

func normaliseAll(d td.Descriptor, recs []stream.Record) error {
	for _, r := range recs {
		if err := d.Normalise(r); err != nil {
			return err
		}
	}
	return nil
}
