package components

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/diegoholiveira/jsonlogic"
	c "github.com/relloyd/stagesync/constants"
	"github.com/relloyd/stagesync/logger"
	"github.com/relloyd/stagesync/stats"
	"github.com/relloyd/stagesync/stream"
)

// StruckRowsRule keeps rows whose IsStruck property is not true. A null or missing flag is kept.
// The operand of "!" must be an array: jsonlogic panics on a bare var that resolves to null.
const StruckRowsRule = `{"!": [{"var": "IsStruck"}]}`

type FilterRowsConfig struct {
	Log         logger.Logger
	Name        string
	InputChan   <-chan stream.Record
	Rule        string // JSON Logic rule; rows for which it is true are kept
	StepWatcher *stats.StepWatcher
	WaitCounter ComponentWaiter
}

// NewFilterRows outputs the rows of cfg.InputChan for which the JSON Logic rule is true.
// The output channel is closed when the input is exhausted, ctx is done or the rule fails.
// The error channel receives at most one error and is closed with the output.
func NewFilterRows(ctx context.Context, cfg *FilterRowsConfig) (chan stream.Record, chan error, error) {
	if !jsonlogic.IsValid(strings.NewReader(cfg.Rule)) {
		return nil, nil, fmt.Errorf("invalid filter rule: %v", cfg.Rule)
	}
	outputChan := make(chan stream.Record, c.ChanSize)
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		defer close(outputChan)
		if cfg.WaitCounter != nil {
			cfg.WaitCounter.Add()
			defer cfg.WaitCounter.Done()
		}
		rowCount := int64(0)
		dropped := 0
		if cfg.StepWatcher != nil {
			cfg.StepWatcher.StartWatching(&rowCount, func() int { return len(outputChan) })
			defer cfg.StepWatcher.StopWatching()
		}
		cfg.Log.Debug(cfg.Name, " is running")
		var result bytes.Buffer
		for rec := range cfg.InputChan { // for each row of input...
			atomic.AddInt64(&rowCount, 1)
			result.Reset()
			if err := applyJsonLogic(rec, cfg.Rule, &result); err != nil {
				errChan <- fmt.Errorf("%v: %w", cfg.Name, err)
				return
			}
			if strings.TrimSpace(result.String()) != "true" {
				dropped++
				continue
			}
			if !safeSend(ctx, rec, outputChan) {
				errChan <- ctx.Err()
				return
			}
		}
		cfg.Log.Info(cfg.Name, " removed ", dropped, " of ", atomic.LoadInt64(&rowCount), " rows")
	}()
	return outputChan, errChan, nil
}

// applyJsonLogic applies rule to the JSON form of data and writes the result to result.
// A panic inside jsonlogic is returned as an error.
func applyJsonLogic(data stream.Record, rule string, result *bytes.Buffer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("error applying JSON logic: jsonlogic panicked: %v", r)
		}
	}()
	jsonData, err := json.Marshal(data.GetDataMap())
	if err != nil {
		return fmt.Errorf("error marshalling data before applying JSON logic: %v", err)
	}
	err = jsonlogic.Apply(strings.NewReader(rule), bytes.NewReader(jsonData), result)
	if err != nil {
		return fmt.Errorf("error applying JSON logic: %v", err)
	}
	return nil
}
