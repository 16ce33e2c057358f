package components

import (
	"context"

	"github.com/relloyd/stagesync/rdbms"
	"github.com/relloyd/stagesync/rdbms/shared"
	"github.com/relloyd/stagesync/stream"
)

// StagingStore is the subset of *rdbms.Store used on the staging server.
type StagingStore interface {
	RecordQuerier
	Truncate(ctx context.Context, st rdbms.SchemaTable) error
	BulkInsert(ctx context.Context, st rdbms.SchemaTable, cols []string, recs []stream.Record) (int64, error)
}

// ProductionStore is the subset of *rdbms.Store used on the production server.
type ProductionStore interface {
	RecordQuerier
	WithTx(ctx context.Context, fn func(tx shared.Transacter) error) error
	DeleteByKeys(ctx context.Context, ex shared.Execer, st rdbms.SchemaTable, keyCols []string, recs []stream.Record) (int64, error)
	InsertRows(ctx context.Context, ex shared.Execer, st rdbms.SchemaTable, cols []string, recs []stream.Record) (int64, error)
}
