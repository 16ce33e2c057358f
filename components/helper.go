package components

import (
	"context"

	c "github.com/relloyd/stagesync/constants"
	"github.com/relloyd/stagesync/stats"
	"github.com/relloyd/stagesync/stream"
)

// safeSend sends rec unless ctx is done first.
func safeSend(ctx context.Context, rec stream.Record, outputChan chan stream.Record) (recordSentOK bool) {
	select {
	case outputChan <- rec:
		return true
	case <-ctx.Done():
		return false
	}
}

func chanSize(n int) int {
	if n > c.ChanSize || n < 1 {
		return c.ChanSize
	}
	return n
}

// fieldValues returns the value of field from each record.
func fieldValues(recs []stream.Record, field string) []interface{} {
	retval := make([]interface{}, 0, len(recs))
	for _, r := range recs {
		retval = append(retval, r.GetData(field))
	}
	return retval
}

// stepWatcher returns a watcher named <entity>/<phase> or nil if sm is nil.
func stepWatcher(sm stats.StatsManager, entity string, phase string) *stats.StepWatcher {
	if sm == nil {
		return nil
	}
	return sm.AddStepWatcher(entity + "/" + phase)
}
