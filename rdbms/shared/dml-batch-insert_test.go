package shared

import (
	"regexp"
	"testing"

	"github.com/cevaris/ordered_map"
	"github.com/relloyd/stagesync/constants"
	"github.com/sirupsen/logrus"
)

func TestSqlServerInsert(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.DebugLevel)
	log.Info("Starting tests for SQL INSERT...")

	omKeys := ordered_map.NewOrderedMap()
	omKeys.Set("col1", "a")
	omKeys.Set("col2", "b")
	omCols := ordered_map.NewOrderedMap()
	omCols.Set("col3", "c")

	db, _, err := NewMockConnectionWithMockTx(log)
	if err != nil {
		t.Fatal(err)
	}
	o := db.GetDmlGenerator().NewInsertGenerator(&SqlStatementGeneratorConfig{
		Log:             log,
		OutputSchema:    "dbo",
		OutputTable:     "t2",
		TargetKeyCols:   omKeys,
		TargetOtherCols: omCols})

	var batchIsFull bool

	// Create new batch of values size 2.
	o.InitBatch(2)
	if _, err = o.AddValuesToBatch([]interface{}{"x", "y", 123}); err != nil {
		t.Fatal(err) // first row should succeed.
	}
	batchIsFull, err = o.AddValuesToBatch([]interface{}{"p", "q", 2})
	if err != nil {
		t.Fatal(err)
	}
	if !batchIsFull {
		t.Fatal("The batch *should* be full but it is not.")
	}
	if _, err = o.AddValuesToBatch([]interface{}{"r", "s", 3}); err == nil {
		t.Fatal("expected an error adding to a full batch")
	}

	log.Info("SQL INSERT test 2, wrong number of values")
	o.InitBatch(1)
	if _, err = o.AddValuesToBatch([]interface{}{"a", "b", 456, 789}); err == nil {
		t.Fatal("There should have been an error. Incorrect number of values deliberately supplied in batch.")
	}

	log.Info("SQL INSERT test 3, one row")
	o.InitBatch(1)
	if _, err = o.AddValuesToBatch([]interface{}{"a", "b", 456}); err != nil {
		t.Fatal(err)
	}
	if len(o.GetValues()) != 3 || o.GetNumRows() != 1 {
		t.Fatal("Error, incorrect number of args.")
	}
	re := regexp.MustCompile("[\t\r\n\f]")
	expected := `insert into [dbo].[t2] ([a],[b],[c]) values (@p1,@p2,@p3)`
	if got := re.ReplaceAllString(o.GetStatement(), " "); got != expected {
		t.Fatalf("Bad SQL INSERT generated: expected = '%v'; got = '%v'", expected, got)
	}

	log.Info("SQL INSERT test 4, a partial batch regenerates the statement")
	o.InitBatch(3)
	_, _ = o.AddValuesToBatch([]interface{}{"a", "b", 456})
	_, _ = o.AddValuesToBatch([]interface{}{"c", "d", 789})
	expected = `insert into [dbo].[t2] ([a],[b],[c]) values (@p1,@p2,@p3),(@p4,@p5,@p6)`
	if got := re.ReplaceAllString(o.GetStatement(), " "); got != expected {
		t.Fatalf("Bad SQL INSERT generated: expected = '%v'; got = '%v'", expected, got)
	}
	log.Info("Testing SQL INSERT success")
}

func TestMaxRowsPerBatch(t *testing.T) {
	if got := MaxRowsPerBatch(3); got != constants.TxtBatchNumRowsDefault {
		t.Fatalf("expected default batch size for narrow rows; got %v", got)
	}
	got := MaxRowsPerBatch(60)
	if got*60 >= constants.SqlServerMaxParams {
		t.Fatalf("batch of %v rows exceeds the parameter limit", got)
	}
	if got := MaxRowsPerBatch(5000); got != 1 {
		t.Fatalf("expected at least one row per batch; got %v", got)
	}
}
