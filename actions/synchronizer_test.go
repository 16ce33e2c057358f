package actions

import (
	"context"
	"testing"

	"github.com/relloyd/stagesync/components"
	"github.com/relloyd/stagesync/config"
	c "github.com/relloyd/stagesync/constants"
	"github.com/relloyd/stagesync/entities"
	"github.com/relloyd/stagesync/failure"
	"github.com/relloyd/stagesync/stats"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSynchronizer(t *testing.T, w *fakeWorld, settings *config.Settings, catalog entities.Catalog, dryRun bool) *Synchronizer {
	t.Helper()
	s, err := NewSynchronizer(&SynchronizerConfig{
		Log:      logrus.New(),
		Catalog:  catalog,
		Settings: settings,
		Metrics:  stats.NewMetrics(),
		Open:     w.open,
		DryRun:   dryRun,
	})
	require.NoError(t, err)
	return s
}

// seedRooms puts rows 1..4 in production and rows 1..3 in the source, with row 2 renamed.
func seedRooms(w *fakeWorld, e *entities.Entity) {
	w.production.set(e.ProductionTable, room(1, "a"), room(2, "b"), room(4, "d"))
	w.source.rows[e.Name] = append(w.source.rows[e.Name], room(1, "a"), room(2, "B"), room(3, "c"))
}

func TestSynchronizer_RunAppliesChanges(t *testing.T) {
	w := newFakeWorld()
	e := roomEntity("Room")
	seedRooms(w, e)
	s := newTestSynchronizer(t, w, config.Defaults(), entities.Catalog{e}, false)

	report, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Entities, 1)
	er := report.Entities[0]
	assert.Equal(t, c.StateDone, er.State)
	assert.Equal(t, []string{c.StatePreflight, c.StateFetched, c.StateImported, c.StateMirrorLoaded,
		c.StateClassified, c.StateDeleted, c.StateInserted, c.StateDone}, er.States)
	assert.Equal(t, 3, er.Fetched)
	assert.Equal(t, int64(3), er.Imported)
	assert.Equal(t, int64(3), er.Mirrored)
	assert.Equal(t, 1, er.Counts[c.ClassificationNew])
	assert.Equal(t, 1, er.Counts[c.ClassificationUpdate])
	assert.Equal(t, 1, er.Counts[c.ClassificationDelete])
	assert.Equal(t, 1, er.Counts[c.ClassificationUnchanged])
	assert.Equal(t, int64(2), er.Deleted, "the update and the delete")
	assert.Equal(t, int64(2), er.Inserted, "the new row and the update")
	assert.Empty(t, er.Window, "unscoped entities have no window")

	assert.Equal(t, []string{"1=a", "2=B", "3=c"}, names(w.production.table(e.ProductionTable)))
	assert.Equal(t, []string{c.LockResourcePrefix + "Room"}, w.staging.locks)
	assert.True(t, report.Succeeded())
	assert.NotEmpty(t, report.RunLog)
	assert.Same(t, report, s.LastRun())
	assert.Empty(t, s.Running())
}

func TestSynchronizer_DryRunLeavesProductionAlone(t *testing.T) {
	w := newFakeWorld()
	e := roomEntity("Room")
	seedRooms(w, e)
	s := newTestSynchronizer(t, w, config.Defaults(), entities.Catalog{e}, true)

	report, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	er := report.Entities[0]
	assert.Equal(t, c.StateClassified, er.State)
	assert.NotContains(t, er.States, c.StateDeleted)
	assert.Zero(t, er.Deleted)
	assert.Zero(t, er.Inserted)
	assert.Equal(t, []string{"1=a", "2=b", "4=d"}, names(w.production.table(e.ProductionTable)))

	// The stage table holds the classified rows with their ETL commands.
	commands := make(map[interface{}]string)
	for _, r := range w.staging.table(e.StageTable) {
		cmd, _ := r.GetData(c.EtlCommandColumnName).(string)
		commands[r.GetData("id")] = cmd
	}
	assert.Equal(t, map[interface{}]string{
		int64(1): "",
		int64(2): c.ClassificationUpdate,
		int64(3): c.ClassificationNew,
		int64(4): c.ClassificationDelete,
	}, commands)
}

func TestSynchronizer_RetainPolicyOverride(t *testing.T) {
	w := newFakeWorld()
	e := roomEntity("Room")
	seedRooms(w, e)
	settings := config.Defaults()
	settings.Entities["room"] = config.EntitySettings{DeletePolicy: "retain"}
	s := newTestSynchronizer(t, w, settings, entities.Catalog{e}, false)

	report, err := s.Run(context.Background())
	require.NoError(t, err)
	er := report.Entities[0]
	assert.Equal(t, 1, er.Retained)
	assert.Equal(t, int64(1), er.Deleted)
	assert.Equal(t, []string{"1=a", "2=B", "3=c", "4=d"}, names(w.production.table(e.ProductionTable)))
	assert.Equal(t, components.DeletePolicyDelete, e.DeletePolicy, "the catalog entity is not modified")
}

func TestSynchronizer_HaltOrContinueOnFailure(t *testing.T) {
	cases := []struct {
		name          string
		haltOnFailure bool
		wantEntities  int
	}{
		{"halt", true, 1},
		{"continue", false, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := newFakeWorld()
			roomE, wardE := roomEntity("Room"), roomEntity("Ward")
			seedRooms(w, roomE)
			seedRooms(w, wardE)
			w.staging.lockErr[c.LockResourcePrefix+"Room"] = errLockBusy
			settings := config.Defaults()
			settings.HaltOnFailure = tc.haltOnFailure
			s := newTestSynchronizer(t, w, settings, entities.Catalog{roomE, wardE}, false)

			report, err := s.Run(context.Background())
			require.Error(t, err)
			assert.True(t, failure.Is(err, failure.StoreUnavailable))
			assert.False(t, report.Succeeded())
			require.Len(t, report.Entities, tc.wantEntities)
			assert.Equal(t, c.StatePreflight, report.Entities[0].State)
			assert.Equal(t, failure.StoreUnavailable, report.Entities[0].ErrorKind)
			assert.Equal(t, []string{"1=a", "2=b", "4=d"}, names(w.production.table(roomE.ProductionTable)))
			if tc.wantEntities > 1 {
				assert.Equal(t, c.StateDone, report.Entities[1].State)
				assert.Equal(t, []string{"1=a", "2=B", "3=c"}, names(w.production.table(wardE.ProductionTable)))
			}
		})
	}
}

func TestSynchronizer_ApplyFailureRollsBack(t *testing.T) {
	w := newFakeWorld()
	e := roomEntity("Room")
	seedRooms(w, e)
	w.production.insertErr = errLockBusy
	s := newTestSynchronizer(t, w, config.Defaults(), entities.Catalog{e}, false)

	report, err := s.Run(context.Background())
	require.Error(t, err)
	er := report.Entities[0]
	assert.Equal(t, failure.ApplyPartialFailure, er.ErrorKind)
	require.NotNil(t, er.Apply)
	assert.True(t, er.Apply.RolledBack)
	assert.Equal(t, c.StateInserted, er.State, "the insert phase failed")
	assert.NotContains(t, er.States, c.StateDeleted, "the rolled back delete phase is not reached")
	assert.Equal(t, []string{"1=a", "2=b", "4=d"}, names(w.production.table(e.ProductionTable)))
}

func TestSynchronizer_EmptySourceIsAnErrorWhenRowsAreRequired(t *testing.T) {
	w := newFakeWorld()
	e := roomEntity("Room")
	e.RequireRows = true
	w.production.set(e.ProductionTable, room(1, "a"))
	s := newTestSynchronizer(t, w, config.Defaults(), entities.Catalog{e}, false)

	report, err := s.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, failure.SourceDataError, report.Entities[0].ErrorKind)
	assert.Equal(t, c.StateFetched, report.Entities[0].State)
	assert.Equal(t, []string{"1=a"}, names(w.production.table(e.ProductionTable)))
}

func TestSynchronizer_SelectsEnabledEntities(t *testing.T) {
	w := newFakeWorld()
	roomE, wardE := roomEntity("Room"), roomEntity("Ward")
	settings := config.Defaults()
	settings.Entities["Ward"] = config.EntitySettings{Disabled: true}
	s := newTestSynchronizer(t, w, settings, entities.Catalog{roomE, wardE}, false)

	selected, err := s.selectEntities(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Room"}, selected.Names())

	selected, err = s.selectEntities([]string{"ward"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ward"}, selected.Names(), "named entities run even when disabled")

	_, err = s.Run(context.Background(), "Theatre")
	assert.Error(t, err)
	assert.Zero(t, w.opened)
}

func TestSynchronizer_OpenFailure(t *testing.T) {
	w := newFakeWorld()
	w.openErr = errLockBusy
	s := newTestSynchronizer(t, w, config.Defaults(), entities.Catalog{roomEntity("Room")}, false)

	report, err := s.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, failure.StoreUnavailable, failure.KindOf(err))
	assert.Empty(t, report.Entities)
	assert.Same(t, report, s.LastRun())
}

func TestApplyOverrides(t *testing.T) {
	settings := config.Defaults()
	settings.Window = config.WindowSettings{DaysBack: 5, DaysForward: 6}
	three := 3
	settings.Entities["Schedule"] = config.EntitySettings{Strict: true, DaysBack: &three}

	sched := &entities.Entity{Name: "Schedule", Source: entities.Source{Kind: entities.SourceQGenda}, Scope: components.ScopeWindow, DaysBack: 30, DaysForward: 60}
	got, strict, err := applyOverrides(sched, settings, false)
	require.NoError(t, err)
	assert.True(t, strict)
	assert.Equal(t, 3, got.DaysBack, "entity settings win over the global window")
	assert.Equal(t, 6, got.DaysForward)
	assert.Equal(t, 30, sched.DaysBack)

	caseLog := &entities.Entity{Name: "CaseLog", Source: entities.Source{Kind: entities.SourceSql, Windowed: true}, DaysBack: 14}
	got, strict, err = applyOverrides(caseLog, settings, false)
	require.NoError(t, err)
	assert.False(t, strict)
	assert.Equal(t, 14, got.DaysBack, "the global window only applies to QGenda windows")

	settings.Entities["CaseLog"] = config.EntitySettings{DeletePolicy: "purge"}
	_, _, err = applyOverrides(caseLog, settings, true)
	assert.Error(t, err)
}

func TestWindowFor(t *testing.T) {
	e := roomEntity("Room")
	assert.True(t, windowFor(e, runDate).IsZero())

	e.Scope = components.ScopeWindow
	e.DaysBack, e.DaysForward = 1, 2
	w := windowFor(e, runDate)
	assert.Equal(t, "[2021-03-14, 2021-03-18)", w.String())
}
