package components

import (
	"context"
	"fmt"
	"time"

	c "github.com/relloyd/stagesync/constants"
	"github.com/relloyd/stagesync/failure"
	"github.com/relloyd/stagesync/logger"
	"github.com/relloyd/stagesync/rdbms"
	"github.com/relloyd/stagesync/stats"
	"github.com/relloyd/stagesync/stream"
	td "github.com/relloyd/stagesync/table-definition"
)

type ClassifierConfig struct {
	Log          logger.Logger
	Entity       string
	Descriptor   td.Descriptor
	Keys         []string // natural key
	Tracked      []string // fields compared to detect updates; empty means every non-key field
	OrderKey     string   // optional field that picks the winner among duplicate keys
	Strict       bool     // duplicate keys in import are an error
	Scope        Scope
	WindowField  string
	ScopeKey     string
	DeletePolicy DeletePolicy
	Stats        stats.StatsManager
	RunLog       RunLogger
	// Write-back of classified rows to the stage table.
	WriteBack  bool
	Staging    StagingStore
	StageTable rdbms.SchemaTable
}

// Classification is the outcome of classifying one batch.
type Classification struct {
	Batch      *stream.Batch // every key of import and mirror exactly once, in key order
	Counts     map[string]int
	Retained   int // mirror-only rows kept by the retain policy
	Protected  int // mirror-only rows kept because they are outside the window or key set
	Duplicates int // import rows dropped by deduplication
}

// Classifier tags import and mirror rows as New, Update, Delete or Unchanged.
type Classifier struct {
	cfg *ClassifierConfig
}

func NewClassifier(cfg *ClassifierConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// TrackedFields returns the configured tracked fields or every non-key descriptor field.
func (cl *Classifier) TrackedFields() []string {
	if len(cl.cfg.Tracked) > 0 {
		return cl.cfg.Tracked
	}
	isKey := make(map[string]bool, len(cl.cfg.Keys))
	for _, k := range cl.cfg.Keys {
		isKey[k] = true
	}
	retval := make([]string, 0, len(cl.cfg.Descriptor.Fields))
	for _, name := range cl.cfg.Descriptor.ColumnNames() {
		if !isKey[name] {
			retval = append(retval, name)
		}
	}
	return retval
}

// Classify deduplicates imported, merges it with mirror and applies the delete rules for window w.
// The slices are sorted in place.
func (cl *Classifier) Classify(ctx context.Context, w Window, imported []stream.Record, mirror []stream.Record) (*Classification, error) {
	log := cl.cfg.Log
	result := &Classification{}
	deduped, dups, err := cl.dedup(imported)
	if err != nil {
		return nil, err
	}
	result.Duplicates = dups
	if err = cl.checkMirrorKeys(mirror); err != nil {
		return nil, err
	}
	stream.SortRecords(deduped, cl.cfg.Keys)
	stream.SortRecords(mirror, cl.cfg.Keys)
	keys := cl.cfg.Descriptor.ColumnMap(cl.cfg.Keys)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	out := NewMergeDiff(ctx, &MergeDiffConfig{
		Log:                 log,
		Name:                cl.cfg.Entity + " merge diff",
		ChanOld:             (&stream.Batch{Entity: cl.cfg.Entity, Records: mirror}).Stream(ctx),
		ChanNew:             (&stream.Batch{Entity: cl.cfg.Entity, Records: deduped}).Stream(ctx),
		JoinKeys:            keys,
		CompareKeys:         cl.cfg.Descriptor.ColumnMap(cl.TrackedFields()),
		OutputIdenticalRows: true,
		StepWatcher:         stepWatcher(cl.cfg.Stats, cl.cfg.Entity, c.StateClassified),
	})
	b, err := stream.Collect(ctx, cl.cfg.Entity, out)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return nil, failure.Wrap(err, failure.StoreUnavailable, cl.cfg.Entity, c.StateClassified, "classification interrupted")
	}
	var importScopeKeys map[string]bool
	if cl.cfg.Scope == ScopeKeySet {
		importScopeKeys = make(map[string]bool, len(deduped))
		for _, r := range deduped {
			importScopeKeys[r.KeyString(log, []string{cl.cfg.ScopeKey})] = true
		}
	}
	for _, r := range b.Records { // for each mirror-only row apply the delete rules...
		if r.GetClassification() != c.ClassificationDelete {
			continue
		}
		switch {
		case cl.cfg.Scope == ScopeWindow && !w.Contains(timeValue(r.GetData(cl.cfg.WindowField))):
			r.SetClassification(c.ClassificationUnchanged)
			result.Protected++
		case cl.cfg.Scope == ScopeKeySet && !importScopeKeys[r.KeyString(log, []string{cl.cfg.ScopeKey})]:
			r.SetClassification(c.ClassificationUnchanged)
			result.Protected++
		case cl.cfg.DeletePolicy == DeletePolicyRetain:
			r.SetClassification(c.ClassificationUnchanged)
			result.Retained++
		}
	}
	result.Batch = b
	result.Counts = b.Counts()
	cl.logCounts(result)
	if cl.cfg.WriteBack {
		if err = cl.writeBack(ctx, b); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// dedup reduces rows with equal natural keys to one, keeping the row with the highest order key.
// Ties, and entities without an order key, keep the later row.
func (cl *Classifier) dedup(recs []stream.Record) ([]stream.Record, int, error) {
	log := cl.cfg.Log
	pos := make(map[string]int, len(recs))
	retval := make([]stream.Record, 0, len(recs))
	dups := 0
	for _, r := range recs {
		for _, k := range cl.cfg.Keys {
			if r.GetData(k) == nil {
				return nil, 0, failure.New(failure.ClassificationIntegrityError, cl.cfg.Entity, c.StateClassified,
					fmt.Sprintf("import row has a NULL natural key field %v", k))
			}
		}
		key := r.KeyString(log, cl.cfg.Keys)
		idx, seen := pos[key]
		if !seen {
			pos[key] = len(retval)
			retval = append(retval, r)
			continue
		}
		dups++
		if cl.cfg.Strict {
			return nil, 0, failure.New(failure.ClassificationIntegrityError, cl.cfg.Entity, c.StateClassified,
				fmt.Sprintf("duplicate natural key %v in import", key))
		}
		if cl.cfg.OrderKey == "" {
			log.Warn(cl.cfg.Entity, " duplicate natural key ", key, " in import; keeping the last row fetched")
			retval[idx] = r
			continue
		}
		if stream.CompareValues(r.GetData(cl.cfg.OrderKey), retval[idx].GetData(cl.cfg.OrderKey)) >= 0 {
			retval[idx] = r
		}
		log.Debug(cl.cfg.Entity, " duplicate natural key ", key, " resolved by ", cl.cfg.OrderKey)
	}
	if dups > 0 && cl.cfg.RunLog != nil {
		cl.cfg.RunLog.Append(cl.cfg.Entity, "Removed %v duplicate records from import", dups)
	}
	return retval, dups, nil
}

// checkMirrorKeys fails if production holds more than one row per natural key.
func (cl *Classifier) checkMirrorKeys(recs []stream.Record) error {
	seen := make(map[string]bool, len(recs))
	for _, r := range recs {
		key := r.KeyString(cl.cfg.Log, cl.cfg.Keys)
		if seen[key] {
			return failure.New(failure.ClassificationIntegrityError, cl.cfg.Entity, c.StateClassified,
				fmt.Sprintf("duplicate natural key %v in production", key))
		}
		seen[key] = true
	}
	return nil
}

func (cl *Classifier) logCounts(r *Classification) {
	cl.cfg.Log.Info(cl.cfg.Entity, " classified: ", r.Counts, " retained=", r.Retained, " protected=", r.Protected)
	if cl.cfg.RunLog == nil {
		return
	}
	cl.cfg.RunLog.Append(cl.cfg.Entity, "Found %v records flagged as New", r.Counts[c.ClassificationNew])
	cl.cfg.RunLog.Append(cl.cfg.Entity, "Found %v records flagged for Update", r.Counts[c.ClassificationUpdate])
	cl.cfg.RunLog.Append(cl.cfg.Entity, "Found %v records flagged for Deletion", r.Counts[c.ClassificationDelete])
	if r.Retained > 0 {
		cl.cfg.RunLog.Append(cl.cfg.Entity, "Retained %v records missing from the source", r.Retained)
	}
}

// writeBack replaces the stage table with the classified rows, setting ETLCommand for the rows
// that will change production.
func (cl *Classifier) writeBack(ctx context.Context, b *stream.Batch) error {
	recs := make([]stream.Record, len(b.Records))
	for idx, r := range b.Records {
		rec := r.Copy()
		switch cls := r.GetClassification(); cls {
		case c.ClassificationNew, c.ClassificationUpdate, c.ClassificationDelete:
			rec.SetData(c.EtlCommandColumnName, cls)
		default:
			rec.SetData(c.EtlCommandColumnName, nil)
		}
		recs[idx] = rec
	}
	if err := cl.cfg.Staging.Truncate(ctx, cl.cfg.StageTable); err != nil {
		return failure.Wrap(err, failure.StoreUnavailable, cl.cfg.Entity, c.StateClassified, "unable to truncate stage table for write-back")
	}
	cols := append(cl.cfg.Descriptor.ColumnNames(), c.EtlCommandColumnName)
	if _, err := cl.cfg.Staging.BulkInsert(ctx, cl.cfg.StageTable, cols, recs); err != nil {
		return failure.Wrap(err, failure.StoreUnavailable, cl.cfg.Entity, c.StateClassified, "unable to write classified rows to stage table")
	}
	return nil
}

// timeValue returns v as a time or the zero time when it is NULL or not a time.
func timeValue(v interface{}) time.Time {
	if t, ok := v.(time.Time); ok {
		return t
	}
	return time.Time{}
}
