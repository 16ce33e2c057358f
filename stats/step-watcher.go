package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	c "github.com/relloyd/stagesync/constants"
	h "github.com/relloyd/stagesync/helper"
	"github.com/relloyd/stagesync/logger"
)

// StepWatcher saves row-count stats for one phase of one entity, e.g. "Schedule/Classified".
// The phase calls StartWatching() with a pointer to the counter it increments atomically and
// StopWatching() when it is done.
type StepWatcher struct {
	log             logger.Logger
	stepName        string
	rowCountPtr     *int64
	queueLen        func() int // optional depth of the phase's output channel.
	queueDepth      int64
	startTime       time.Time
	endTime         time.Time
	rowsPerSecDelta int64
	rowsPerSecAvg   int64
	totalRows       int64
	priorRowCount   int64
	priorTime       time.Time
	mu              sync.Mutex
	ticker          *time.Ticker
	tickerDone      chan struct{}
	isRunning       h.AtomBool
}

type Stats struct {
	StepName           string `json:"stepName"`
	StatusText         string `json:"statusText"`
	StatusEmoji        string `json:"statusEmoji"`
	ElapsedTimeSec     int    `json:"elapsedTimeSec"`
	TotalRowsProcessed int    `json:"totalRowsProcessed"`
	RowsPerSecondAvg   int    `json:"rowsPerSecondAvg"`
	RowsPerSecondDelta int    `json:"rowsPerSecondDelta"`
	QueueDepth         int    `json:"queueDepth"`
}

func NewStepWatcher(log logger.Logger, stepName string) *StepWatcher {
	return &StepWatcher{log: log, stepName: stepName, tickerDone: make(chan struct{})}
}

// StartWatching samples *rowCountPtr every StatsCaptureFrequencySeconds until StopWatching is called.
// queueLen may be nil.
func (n *StepWatcher) StartWatching(rowCountPtr *int64, queueLen func() int) {
	n.mu.Lock()
	n.rowCountPtr = rowCountPtr
	n.queueLen = queueLen
	n.startTime = time.Now()
	n.priorTime = n.startTime
	n.priorRowCount = 0
	atomic.StoreInt64(&n.totalRows, 0) // steps may be restarted by a later run.
	n.mu.Unlock()
	n.isRunning.Set(true)
	n.CalculateStats()
	n.ticker = time.NewTicker(time.Second * c.StatsCaptureFrequencySeconds)
	go func() {
		for {
			select {
			case <-n.ticker.C:
				n.CalculateStats()
			case <-n.tickerDone:
				return
			}
		}
	}()
}

func (n *StepWatcher) StopWatching() {
	if !n.isRunning.Get() {
		return
	}
	n.ticker.Stop()
	n.tickerDone <- struct{}{} // stop the goroutine that calculates stats.
	n.CalculateStats()         // force final stats calculation.
	n.mu.Lock()
	n.endTime = time.Now()
	n.mu.Unlock()
	n.isRunning.Set(false)
	atomic.StoreInt64(&n.queueDepth, 0)
}

func (n *StepWatcher) CalculateStats() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.rowCountPtr == nil {
		return
	}
	deltaTime := int64(time.Since(n.priorTime).Seconds())
	if deltaTime < 1 { // avoid divide by zero.
		deltaTime = 1
	}
	rowCount := atomic.LoadInt64(n.rowCountPtr)
	deltaRowCount := rowCount - n.priorRowCount
	atomic.StoreInt64(&n.rowsPerSecDelta, deltaRowCount/deltaTime)
	if n.queueLen != nil {
		atomic.StoreInt64(&n.queueDepth, int64(n.queueLen()))
	}
	n.log.Debug("STATS: ", n.stepName, " processing ", atomic.LoadInt64(&n.rowsPerSecDelta), " rows per sec. Queue depth ", atomic.LoadInt64(&n.queueDepth))
	n.priorRowCount = rowCount
	n.priorTime = time.Now()
	atomic.AddInt64(&n.totalRows, deltaRowCount)
	atomic.StoreInt64(&n.rowsPerSecAvg, atomic.LoadInt64(&n.totalRows)/getNumSecondsSinceTimeOrOne(n.startTime))
}

// RenderStats gets a struct filled with stats at the point of time it is called.
func (n *StepWatcher) RenderStats() Stats {
	isRunning := n.isRunning.Get()
	var statusText, statusEmoji string
	n.mu.Lock()
	elapsed := time.Since(n.startTime)
	if !isRunning && !n.endTime.IsZero() {
		elapsed = n.endTime.Sub(n.startTime)
	}
	n.mu.Unlock()
	if isRunning {
		statusText = "running"
		statusEmoji = "\U0000231B" // hour glass
	} else {
		statusText = "complete"
		statusEmoji = "\U00002705" // green tick
	}
	return Stats{
		StepName:           n.stepName,
		StatusText:         statusText,
		StatusEmoji:        statusEmoji,
		ElapsedTimeSec:     int(elapsed.Seconds()),
		TotalRowsProcessed: int(atomic.LoadInt64(&n.totalRows)),
		RowsPerSecondAvg:   int(atomic.LoadInt64(&n.rowsPerSecAvg)),
		RowsPerSecondDelta: int(atomic.LoadInt64(&n.rowsPerSecDelta)),
		QueueDepth:         int(atomic.LoadInt64(&n.queueDepth)),
	}
}

// String will format the stats for general logging.
func (s Stats) String() string {
	return fmt.Sprintf(
		"Stats for %v %v %v "+
			"elapsedTimeSec=%v "+
			"totalRowsProcessed=%v "+
			"rowsPerSecondAvg=%v "+
			"rowsPerSecondDelta=%v "+
			"queueDepth=%v",
		s.StepName, s.StatusText, s.StatusEmoji,
		s.ElapsedTimeSec,
		s.TotalRowsProcessed,
		s.RowsPerSecondAvg,
		s.RowsPerSecondDelta,
		s.QueueDepth,
	)
}

func getNumSecondsSinceTimeOrOne(t time.Time) (seconds int64) {
	seconds = int64(time.Since(t).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return
}
