package actions

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/stagesync/components"
	"github.com/relloyd/stagesync/config"
	c "github.com/relloyd/stagesync/constants"
	"github.com/relloyd/stagesync/entities"
	"github.com/relloyd/stagesync/failure"
	"github.com/relloyd/stagesync/logger"
	"github.com/relloyd/stagesync/rdbms"
	"github.com/relloyd/stagesync/stats"
	"github.com/relloyd/stagesync/stream"
	td "github.com/relloyd/stagesync/table-definition"
	"github.com/rs/xid"
	"golang.org/x/sync/singleflight"
)

const lockReleaseTimeout = 30 * time.Second

type SynchronizerConfig struct {
	Log      logger.Logger
	Catalog  entities.Catalog
	Settings *config.Settings
	Metrics  *stats.Metrics // optional
	Open     RunContextOpener
	Strict   bool // reject duplicate natural keys for every entity
	Verify   bool // check table columns before touching an entity
	DryRun   bool // classify without applying
}

// Synchronizer runs entities through Fetched, Imported, MirrorLoaded, Classified, Deleted,
// Inserted and Done, in catalog order.
// Concurrent calls for the same entities share one run.
type Synchronizer struct {
	cfg     *SynchronizerConfig
	group   singleflight.Group
	mu      sync.Mutex
	last    *RunReport
	running map[string]*RunContext
}

func NewSynchronizer(cfg *SynchronizerConfig) (*Synchronizer, error) {
	if cfg.Log == nil || cfg.Settings == nil || cfg.Open == nil {
		return nil, errors.New("synchronizer needs a logger, settings and a run context opener")
	}
	if err := cfg.Catalog.Validate(); err != nil {
		return nil, err
	}
	return &Synchronizer{cfg: cfg, running: make(map[string]*RunContext)}, nil
}

// Run synchronizes the named entities, or every enabled entity when names is empty.
// The report is returned even when err is not nil.
func (s *Synchronizer) Run(ctx context.Context, names ...string) (*RunReport, error) {
	selected, err := s.selectEntities(names)
	if err != nil {
		return nil, err
	}
	key := strings.Join(selected.Names(), ",")
	v, err, shared := s.group.Do(key, func() (interface{}, error) {
		return s.run(ctx, selected)
	})
	if shared {
		s.cfg.Log.Info("joined a run already in progress for ", key)
	}
	report, _ := v.(*RunReport)
	return report, err
}

// LastRun returns the report of the most recent completed run, or nil.
func (s *Synchronizer) LastRun() *RunReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Running returns the IDs of runs in progress with their step stats.
func (s *Synchronizer) Running() map[string][]stats.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	retval := make(map[string][]stats.Stats, len(s.running))
	for id, rc := range s.running {
		if rc.Stats != nil {
			retval[id] = rc.Stats.GetStats()
		} else {
			retval[id] = nil
		}
	}
	return retval
}

func (s *Synchronizer) selectEntities(names []string) (entities.Catalog, error) {
	selected, err := s.cfg.Catalog.Select(names...)
	if err != nil {
		return nil, err
	}
	if len(names) > 0 { // if entities were named they run even when disabled...
		return selected, nil
	}
	enabled := make(entities.Catalog, 0, len(selected))
	for _, e := range selected {
		if s.cfg.Settings.EntityEnabled(e.Name) {
			enabled = append(enabled, e)
		}
	}
	if len(enabled) == 0 {
		return nil, errors.New("no entities are enabled")
	}
	return enabled, nil
}

func (s *Synchronizer) run(ctx context.Context, selected entities.Catalog) (report *RunReport, err error) {
	runID := xid.New().String()
	report = &RunReport{RunID: runID, Started: time.Now(), DryRun: s.cfg.DryRun}
	defer func() {
		report.Finished = time.Now()
		if err != nil {
			report.Error = err.Error()
		}
		s.mu.Lock()
		s.last = report
		s.mu.Unlock()
	}()
	rc, err := s.cfg.Open(ctx, runID, selected)
	if err != nil {
		return report, failure.Wrap(err, failure.StoreUnavailable, "", c.StatePreflight, "unable to prepare run")
	}
	s.mu.Lock()
	s.running[runID] = rc
	s.mu.Unlock()
	defer func() {
		report.Stats = statsOf(rc)
		report.RunLog = rc.RunLog.Entries()
		s.mu.Lock()
		delete(s.running, runID)
		s.mu.Unlock()
		if e := rc.Close(); e != nil {
			rc.Log.Warn("error closing run context: ", e)
		}
	}()
	rc.Log.Info("Starting run ", runID, " for ", strings.Join(selected.Names(), ", "))
	rc.RunLog.Append("", "Run %v started for %v", runID, strings.Join(selected.Names(), ", "))
	failures := 0
	for _, catalogEntity := range selected {
		e, strict, oerr := applyOverrides(catalogEntity, s.cfg.Settings, s.cfg.Strict)
		if oerr != nil {
			return report, oerr
		}
		er, eerr := s.syncEntity(ctx, rc, e, strict)
		report.Entities = append(report.Entities, er)
		if eerr == nil {
			continue
		}
		failures++
		if err == nil {
			err = eerr
		}
		if s.cfg.Settings.HaltOnFailure {
			rc.RunLog.Append("", "Run halted after %v failed", e.Name)
			break
		}
	}
	if err != nil {
		rc.RunLog.Append("", "Run %v finished with %v failed entities", runID, failures)
	} else {
		rc.RunLog.Append("", "Run %v finished", runID)
	}
	return report, err
}

// syncEntity moves one entity through every state, stopping at the first failure.
func (s *Synchronizer) syncEntity(ctx context.Context, rc *RunContext, e *entities.Entity, strict bool) (er *EntityReport, err error) {
	log := logger.WithFields(rc.Log, logger.Fields{"entity": e.Name})
	er = &EntityReport{Entity: e.Name}
	er.reach(c.StatePreflight)
	start := time.Now()
	defer func() {
		er.Duration = time.Since(start)
		if err != nil {
			er.setError(err)
			log.Error(err)
			rc.RunLog.Append(e.Name, "%v failed at %v: %v", e.Name, er.State, err)
			if s.cfg.Metrics != nil {
				s.cfg.Metrics.IncFailure(e.Name, string(er.ErrorKind))
			}
		} else if s.cfg.Metrics != nil && !s.cfg.DryRun {
			s.cfg.Metrics.SetSuccess(e.Name, time.Now())
		}
	}()
	phase := func(name string, fn func() error) error {
		t := time.Now()
		err := fn()
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.ObservePhase(e.Name, name, time.Since(t))
		}
		return err
	}
	// Preflight.
	lock, err := rc.Staging.AcquireAppLock(ctx, c.LockResourcePrefix+e.Name, s.cfg.Settings.LockTimeout())
	if err != nil {
		return er, failure.Wrap(err, failure.StoreUnavailable, e.Name, c.StatePreflight, "unable to acquire run lock")
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), lockReleaseTimeout)
		defer cancel()
		if e := lock.Release(releaseCtx); e != nil {
			log.Warn(e)
		}
	}()
	if s.cfg.Verify {
		if err = VerifyEntity(ctx, log, rc.Staging, rc.Production, e); err != nil {
			return er, err
		}
	}
	w := windowFor(e, rc.Date)
	if !w.IsZero() {
		er.Window = w.String()
	}
	fetcher, err := rc.Fetcher(e)
	if err != nil {
		return er, failure.Wrap(err, failure.SourceUnavailable, e.Name, c.StatePreflight, "no source")
	}
	var sm stats.StatsManager
	if rc.Stats != nil {
		sm = rc.Stats
	}
	log.Info("Synchronizing ", e.Name, " for window ", w)
	// Fetched.
	var batch *stream.Batch
	err = phase(c.StateFetched, func() (err error) {
		batch, err = components.Extract(ctx, &components.ExtractConfig{
			Log:         log,
			Entity:      e.Name,
			Fetcher:     fetcher,
			Archiver:    rc.Archive,
			Window:      w,
			Date:        rc.Date,
			FilterRule:  e.FilterRule,
			Transforms:  e.Transforms,
			Descriptor:  e.Descriptor,
			RequireRows: e.RequireRows,
			Stats:       sm,
			RunLog:      rc.RunLog,
		})
		return
	})
	if err != nil {
		return er, err
	}
	er.reach(c.StateFetched)
	er.Fetched = batch.Len()
	// Imported.
	importLoader := components.NewImportLoader(&components.ImportLoaderConfig{
		Log:         log,
		Entity:      e.Name,
		Staging:     rc.Staging,
		ImportTable: e.ImportTable,
		Descriptor:  e.Descriptor,
		RunLog:      rc.RunLog,
	})
	err = phase(c.StateImported, func() (err error) {
		er.Imported, err = importLoader.Load(ctx, batch)
		return
	})
	if err != nil {
		return er, err
	}
	er.reach(c.StateImported)
	imported, err := importLoader.ReadBack(ctx)
	if err != nil {
		return er, err
	}
	// MirrorLoaded.
	mirrorLoader := components.NewMirrorLoader(&components.MirrorLoaderConfig{
		Log:             log,
		Entity:          e.Name,
		Production:      rc.Production,
		Staging:         rc.Staging,
		ProductionTable: e.ProductionTable,
		StageTable:      e.StageTable,
		ImportTable:     e.ImportTable,
		ImportDatabase:  s.cfg.Settings.ImportDatabase,
		Descriptor:      e.Descriptor,
		Scope:           e.Scope,
		WindowField:     e.WindowField,
		ScopeKey:        e.ScopeKey,
		RequireRows:     e.RequireMirrorRows,
		RunLog:          rc.RunLog,
	})
	err = phase(c.StateMirrorLoaded, func() (err error) {
		er.Mirrored, err = mirrorLoader.Load(ctx, w, imported)
		return
	})
	if err != nil {
		return er, err
	}
	er.reach(c.StateMirrorLoaded)
	mirror, err := mirrorLoader.ReadBack(ctx)
	if err != nil {
		return er, err
	}
	// Classified.
	classifier := components.NewClassifier(&components.ClassifierConfig{
		Log:          log,
		Entity:       e.Name,
		Descriptor:   e.Descriptor,
		Keys:         e.Keys,
		Tracked:      e.Tracked,
		OrderKey:     e.OrderKey,
		Strict:       strict,
		Scope:        e.Scope,
		WindowField:  e.WindowField,
		ScopeKey:     e.ScopeKey,
		DeletePolicy: e.DeletePolicy,
		Stats:        sm,
		RunLog:       rc.RunLog,
		WriteBack:    true,
		Staging:      rc.Staging,
		StageTable:   e.StageTable,
	})
	var result *components.Classification
	err = phase(c.StateClassified, func() (err error) {
		result, err = classifier.Classify(ctx, w, imported, mirror)
		return
	})
	if err != nil {
		return er, err
	}
	er.reach(c.StateClassified)
	er.Counts = result.Counts
	er.Retained = result.Retained
	er.Protected = result.Protected
	er.Duplicates = result.Duplicates
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.AddRows(e.Name, result.Counts)
	}
	if s.cfg.DryRun {
		rc.RunLog.Append(e.Name, "Dry run: production was not changed")
		return er, nil
	}
	// Deleted, Inserted and Done.
	applier := components.NewApplier(&components.ApplierConfig{
		Log:             log,
		Entity:          e.Name,
		Production:      rc.Production,
		ProductionTable: e.ProductionTable,
		Descriptor:      e.Descriptor,
		Keys:            e.Keys,
		RunLog:          rc.RunLog,
	})
	var applied components.ApplyResult
	err = phase("Apply", func() (err error) {
		applied, err = applier.Apply(ctx, result.Batch)
		return
	})
	if err != nil {
		return er, err
	}
	er.Deleted = applied.Deleted
	er.Inserted = applied.Inserted
	for _, st := range applied.States {
		er.reach(st)
	}
	er.reach(c.StateDone)
	rc.RunLog.Append(e.Name, "Completed %v: %v deleted, %v inserted", e.Name, applied.Deleted, applied.Inserted)
	return er, nil
}

// applyOverrides returns a copy of e with the configured overrides and whether strict mode applies.
func applyOverrides(e *entities.Entity, settings *config.Settings, strict bool) (*entities.Entity, bool, error) {
	cp := *e
	if cp.Source.Kind == entities.SourceQGenda && cp.Scope == components.ScopeWindow {
		cp.DaysBack = settings.Window.DaysBack
		cp.DaysForward = settings.Window.DaysForward
	}
	o, ok := settings.Entity(e.Name)
	if !ok {
		return &cp, strict, nil
	}
	if o.DeletePolicy != "" {
		p, err := components.ParseDeletePolicy(o.DeletePolicy)
		if err != nil {
			return nil, false, errors.Wrapf(err, "entity %v", e.Name)
		}
		cp.DeletePolicy = p
	}
	if o.DaysBack != nil {
		cp.DaysBack = *o.DaysBack
	}
	if o.DaysForward != nil {
		cp.DaysForward = *o.DaysForward
	}
	return &cp, strict || o.Strict, nil
}

// windowFor returns the run window of e, or the zero window when e is not windowed.
func windowFor(e *entities.Entity, date time.Time) components.Window {
	if e.Scope != components.ScopeWindow && !e.Source.Windowed && e.Source.DateFormat == "" {
		return components.Window{}
	}
	return components.DaysWindow(date, e.DaysBack, e.DaysForward)
}

// VerifyEntity checks the import and stage tables on staging and the production table against
// the descriptor of e.
func VerifyEntity(ctx context.Context, log logger.Logger, staging td.Querier, production td.Querier, e *entities.Entity) error {
	for _, x := range []struct {
		q              td.Querier
		table          rdbms.SchemaTable
		withEtlCommand bool
	}{
		{staging, e.ImportTable, false},
		{staging, e.StageTable, true},
		{production, e.ProductionTable, false},
	} {
		if err := td.Verify(ctx, log, x.q, x.table, e.Descriptor, x.withEtlCommand); err != nil {
			return failure.Wrapf(err, failure.StoreUnavailable, e.Name, c.StatePreflight, "table %v failed its check", x.table.SchemaTable)
		}
	}
	log.Info("Verified tables of ", e.Name)
	return nil
}

func statsOf(rc *RunContext) []stats.Stats {
	if rc.Stats == nil {
		return nil
	}
	return rc.Stats.GetStats()
}
