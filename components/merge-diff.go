package components

import (
	"context"
	"sync/atomic"

	om "github.com/cevaris/ordered_map"
	c "github.com/relloyd/stagesync/constants"
	"github.com/relloyd/stagesync/logger"
	s "github.com/relloyd/stagesync/stats"
	"github.com/relloyd/stagesync/stream"
)

type MergeDiffConfig struct {
	Log                 logger.Logger
	Name                string
	ChanOld             <-chan stream.Record // mirror rows, sorted by JoinKeys
	ChanNew             <-chan stream.Record // import rows, sorted by JoinKeys with no duplicate keys
	JoinKeys            *om.OrderedMap
	CompareKeys         *om.OrderedMap
	OutputIdenticalRows bool
	StepWatcher         *s.StepWatcher
	WaitCounter         ComponentWaiter
}

// NewMergeDiff produces an output channel of records based on the data found in ChanOld and ChanNew.
// Each output record is tagged with its classification under constants.ClassificationFieldName:
//
//   New       == found on ChanNew but not on ChanOld (the row from ChanNew)
//   Update    == found on both with a difference in CompareKeys (the row from ChanNew)
//   Delete    == found on ChanOld but not on ChanNew (the row from ChanOld)
//   Unchanged == found on both with no difference in CompareKeys (the row from ChanNew)
//
// NOTE that input channel records MUST be pre-sorted by the join keys using stream.CompareValues.
// NOTE that the output channel is closed when both inputs are exhausted or ctx is done, so callers
// must check ctx.Err() before trusting the output.
//
// JoinKeys holds the fields compared to join records from ChanOld and ChanNew, which are case-sensitive.
// CompareKeys holds the fields compared once the join keys match; comparison exits at the first
// difference so put the most volatile fields first.
func NewMergeDiff(ctx context.Context, cfg *MergeDiffConfig) chan stream.Record {
	cfg.Log.Debug(cfg.Name, " starting...")
	outputChan := make(chan stream.Record, c.ChanSize)
	go func(log logger.Logger, chanOld <-chan stream.Record, chanNew <-chan stream.Record) {
		defer close(outputChan)
		log.Info(cfg.Name, " is running")
		if cfg.WaitCounter != nil { // if we are given a waitGroup to use...
			cfg.WaitCounter.Add()
			defer cfg.WaitCounter.Done()
		}
		// Start watching row count to report stats.
		rowCount := int64(0)
		if cfg.StepWatcher != nil {
			cfg.StepWatcher.StartWatching(&rowCount, func() int { return len(outputChan) })
			defer cfg.StepWatcher.StopWatching()
		}
		var (
			recOld stream.Record
			recNew stream.Record
			okOld  bool
			okNew  bool
		)
		getNextRecord := func(rec *stream.Record, ok *bool, ch <-chan stream.Record) bool {
			select { // fetch the (old or new) record...
			case *rec, *ok = <-ch:
				if *ok && rec.RecordIsNil() {
					*ok = false
				}
			case <-ctx.Done():
				log.Info(cfg.Name, " shutdown")
				return false
			}
			return true // we have input data so signal continue.
		}
		output := func(rec stream.Record, classification string) bool {
			rec.SetClassification(classification)
			if !safeSend(ctx, rec, outputChan) {
				log.Info(cfg.Name, " shutdown")
				return false
			}
			return true
		}
		if !getNextRecord(&recOld, &okOld, chanOld) || !getNextRecord(&recNew, &okNew, chanNew) {
			return
		}
		log.Debug(cfg.Name, " first channel records fetched.")
		for okOld || okNew { // while either new/old channel still has records...
			atomic.AddInt64(&rowCount, 1)
			comparison := 0
			switch {
			case !okOld:
				comparison = 1
			case !okNew:
				comparison = -1
			default:
				comparison = recOld.DataCanJoinByKeyFields(log, recNew, cfg.JoinKeys)
			}
			switch comparison {
			case 0: // the records join...
				if recOld.DataIsDeepEqual(log, recNew, cfg.CompareKeys) {
					if cfg.OutputIdenticalRows && !output(recNew, c.ClassificationUnchanged) {
						return
					}
				} else if !output(recNew, c.ClassificationUpdate) {
					return
				}
				if !getNextRecord(&recOld, &okOld, chanOld) || !getNextRecord(&recNew, &okNew, chanNew) {
					return
				}
			case -1: // recOld has no partner...
				if !output(recOld, c.ClassificationDelete) || !getNextRecord(&recOld, &okOld, chanOld) {
					return
				}
			default: // recNew has no partner...
				if !output(recNew, c.ClassificationNew) || !getNextRecord(&recNew, &okNew, chanNew) {
					return
				}
			}
		}
		log.Info(cfg.Name, " complete")
	}(cfg.Log, cfg.ChanOld, cfg.ChanNew)
	cfg.Log.Debug(cfg.Name, " launched goroutine...")
	return outputChan
}
