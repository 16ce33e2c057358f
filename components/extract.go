package components

import (
	"context"
	"time"

	"github.com/relloyd/stagesync/archive"
	c "github.com/relloyd/stagesync/constants"
	"github.com/relloyd/stagesync/failure"
	"github.com/relloyd/stagesync/logger"
	"github.com/relloyd/stagesync/stats"
	"github.com/relloyd/stagesync/stream"
	td "github.com/relloyd/stagesync/table-definition"
)

type ExtractConfig struct {
	Log         logger.Logger
	Entity      string
	Fetcher     Fetcher
	Archiver    archive.Archiver
	Window      Window
	Date        time.Time // the run date used to name the archive object
	FilterRule  string    // optional JSON Logic rule; rows for which it is false are dropped
	Transforms  []Transform
	Descriptor  td.Descriptor
	RequireRows bool // an empty fetch is an error
	Stats       stats.StatsManager
	RunLog      RunLogger
}

// Extract fetches the entity, archives the raw payload and returns the typed rows in fetch order.
// The raw payload is persisted before any row is filtered or transformed.
func Extract(ctx context.Context, cfg *ExtractConfig) (*stream.Batch, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel() // stops the fetch goroutine on early return.
	rows, err := cfg.Fetcher.Fetch(ctx, cfg.Window)
	if err != nil {
		return nil, failure.Wrap(err, failure.SourceUnavailable, cfg.Entity, c.StateFetched, "fetch failed")
	}
	location, err := cfg.Archiver.Persist(ctx, cfg.Entity, cfg.Date, rows.Raw)
	if err != nil {
		return nil, failure.Wrap(err, failure.StoreUnavailable, cfg.Entity, c.StateFetched, "unable to archive raw payload")
	}
	if location != "" {
		cfg.Log.Info(cfg.Entity, " raw payload archived to ", location)
	}
	var (
		input   <-chan stream.Record = rows.C
		errChan chan error
	)
	if cfg.FilterRule != "" {
		var filtered chan stream.Record
		filtered, errChan, err = NewFilterRows(ctx, &FilterRowsConfig{
			Log:         cfg.Log,
			Name:        cfg.Entity + " filter",
			InputChan:   rows.C,
			Rule:        cfg.FilterRule,
			StepWatcher: stepWatcher(cfg.Stats, cfg.Entity, "Filter"),
		})
		if err != nil {
			return nil, failure.Wrap(err, failure.SourceDataError, cfg.Entity, c.StateFetched, "bad filter")
		}
		input = filtered
	}
	b, err := stream.Collect(ctx, cfg.Entity, input)
	if err != nil {
		return nil, failure.Wrap(err, failure.SourceUnavailable, cfg.Entity, c.StateFetched, "fetch interrupted")
	}
	if errChan != nil {
		if err = <-errChan; err != nil {
			return nil, failure.Wrap(err, failure.SourceDataError, cfg.Entity, c.StateFetched, "unable to filter rows")
		}
	}
	if err = rows.Err(); err != nil {
		return nil, failure.Wrap(err, failure.SourceDataError, cfg.Entity, c.StateFetched, "unable to read rows")
	}
	recs := b.Records
	for _, t := range cfg.Transforms { // for each transform in order...
		if recs, err = t.Apply(cfg.Log, recs); err != nil {
			return nil, failure.Wrapf(err, failure.SourceDataError, cfg.Entity, c.StateFetched, "transform %v failed", t.Name())
		}
	}
	out := stream.NewBatch(cfg.Entity)
	for idx, r := range recs {
		rec, err := cfg.Descriptor.RecordFromSource(r.GetDataMap())
		if err != nil {
			return nil, failure.Wrapf(err, failure.SourceDataError, cfg.Entity, c.StateFetched, "row %v", idx)
		}
		out.Add(rec)
	}
	if out.Len() == 0 && cfg.RequireRows {
		return nil, failure.New(failure.SourceDataError, cfg.Entity, c.StateFetched, "no records were pulled from the source")
	}
	if cfg.RunLog != nil {
		cfg.RunLog.Append(cfg.Entity, "Pulled %v records from source", out.Len())
	}
	return out, nil
}
