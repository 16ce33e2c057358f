package components

import (
	"context"

	"github.com/pkg/errors"
	c "github.com/relloyd/stagesync/constants"
	"github.com/relloyd/stagesync/failure"
	"github.com/relloyd/stagesync/logger"
	"github.com/relloyd/stagesync/rdbms"
	"github.com/relloyd/stagesync/rdbms/shared"
	"github.com/relloyd/stagesync/stream"
	td "github.com/relloyd/stagesync/table-definition"
)

type ApplierConfig struct {
	Log             logger.Logger
	Entity          string
	Production      ProductionStore
	ProductionTable rdbms.SchemaTable
	Descriptor      td.Descriptor
	Keys            []string
	RunLog          RunLogger
}

// ApplyResult holds the rows changed in production.
type ApplyResult struct {
	Deleted  int64
	Inserted int64
	States   []string // Deleted then Inserted once committed; skipped phases are still reached
}

// Applier writes a classified batch to production.
type Applier struct {
	cfg *ApplierConfig
}

func NewApplier(cfg *ApplierConfig) *Applier {
	return &Applier{cfg: cfg}
}

// Apply deletes the Update and Delete rows by natural key and then inserts the New and Update rows,
// all in one production transaction.
// A failure to start the transaction is StoreUnavailable. Any later failure is ApplyPartialFailure
// carrying the counts reached and whether the rollback restored production.
func (a *Applier) Apply(ctx context.Context, b *stream.Batch) (ApplyResult, error) {
	var (
		res      ApplyResult
		state    = c.StateDeleted
		started  bool
		toDelete = b.Filter(c.ClassificationUpdate, c.ClassificationDelete)
		toInsert = b.Filter(c.ClassificationNew, c.ClassificationUpdate)
	)
	if len(toDelete) == 0 && len(toInsert) == 0 {
		a.runLog("No records to delete or insert")
		res.States = []string{c.StateDeleted, c.StateInserted}
		return res, nil
	}
	err := a.cfg.Production.WithTx(ctx, func(tx shared.Transacter) error {
		started = true
		var err error
		if len(toDelete) == 0 {
			a.runLog("No records to delete")
		} else {
			if res.Deleted, err = a.cfg.Production.DeleteByKeys(ctx, tx, a.cfg.ProductionTable, a.cfg.Keys, toDelete); err != nil {
				return errors.Wrap(err, "delete phase failed")
			}
			a.runLog("Deleted %v records from %v", res.Deleted, a.cfg.ProductionTable.String())
		}
		res.States = append(res.States, c.StateDeleted)
		state = c.StateInserted
		if len(toInsert) == 0 {
			a.runLog("No records to insert")
			res.States = append(res.States, c.StateInserted)
			return nil
		}
		if res.Inserted, err = a.cfg.Production.InsertRows(ctx, tx, a.cfg.ProductionTable, a.cfg.Descriptor.ColumnNames(), toInsert); err != nil {
			return errors.Wrap(err, "insert phase failed")
		}
		a.runLog("Inserted %v records into %v", res.Inserted, a.cfg.ProductionTable.String())
		res.States = append(res.States, c.StateInserted)
		return nil
	})
	if err != nil {
		var txErr *rdbms.TxError
		if !started || !errors.As(err, &txErr) {
			return ApplyResult{}, failure.Wrap(err, failure.StoreUnavailable, a.cfg.Entity, c.StateDeleted, "unable to start production transaction")
		}
		a.cfg.Log.Error(a.cfg.Entity, " apply failed after deleting ", res.Deleted, " and inserting ", res.Inserted, " rows; rolledBack=", txErr.RolledBack)
		if txErr.RolledBack {
			a.runLog("Apply failed and was rolled back: %v", txErr.Err)
		} else {
			a.runLog("Apply failed and production may be partially updated: %v", txErr.Err)
		}
		return res, failure.NewApplyError(txErr.Err, a.cfg.Entity, state, res.Deleted, res.Inserted, txErr.RolledBack)
	}
	a.cfg.Log.Info(a.cfg.Entity, " applied: deleted ", res.Deleted, " inserted ", res.Inserted)
	return res, nil
}

func (a *Applier) runLog(format string, args ...interface{}) {
	if a.cfg.RunLog != nil {
		a.cfg.RunLog.Append(a.cfg.Entity, format, args...)
	}
}
