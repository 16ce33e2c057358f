package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cevaris/ordered_map"
	"github.com/relloyd/stagesync/logger"
)

// StatsManager hands out a StepWatcher per phase and logs their stats periodically.
type StatsManager interface {
	AddStepWatcher(stepName string) *StepWatcher
	StartDumping()
	StopDumping()
}

type StatsFetcher interface {
	GetStats() []Stats
}

var DefaultStatsDumpFrequencySeconds = 5

// Manager implements StatsManager and StatsFetcher for one run.
// Watchers are kept in the order they were added so /status lists phases in run order.
type Manager struct {
	ticker              *time.Ticker
	tickerDone          chan struct{}
	tickerIsRunningFlag int32
	tickerFrequency     int
	mu                  sync.Mutex
	log                 logger.Logger
	mapStepStats        *ordered_map.OrderedMap
}

// SetStatsDumpFrequency returns an option for NewManager. Zero disables dumping.
func SetStatsDumpFrequency(seconds int) func(t *Manager) {
	return func(t *Manager) {
		t.tickerFrequency = seconds
	}
}

func NewManager(log logger.Logger, options ...func(t *Manager)) *Manager {
	t := &Manager{log: log, tickerFrequency: DefaultStatsDumpFrequencySeconds}
	for _, option := range options {
		option(t)
	}
	t.tickerDone = make(chan struct{})
	t.mapStepStats = ordered_map.NewOrderedMap()
	return t
}

// AddStepWatcher creates a new StepWatcher for stepName, replacing any earlier one of the same name.
func (t *Manager) AddStepWatcher(stepName string) *StepWatcher {
	sw := NewStepWatcher(t.log, stepName)
	t.mu.Lock()
	t.mapStepStats.Set(stepName, sw)
	t.mu.Unlock()
	return sw
}

func (t *Manager) StartDumping() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if atomic.LoadInt32(&t.tickerIsRunningFlag) != 0 {
		t.log.Debug("stats dumper ticker already running")
		return
	}
	if t.tickerFrequency <= 0 {
		t.log.Debug("stats dumper disabled")
		return
	}
	t.ticker = time.NewTicker(time.Second * time.Duration(t.tickerFrequency))
	atomic.StoreInt32(&t.tickerIsRunningFlag, 1)
	go func() {
		t.log.Debug("stats dumper ticker started")
		for {
			select {
			case <-t.tickerDone:
				t.log.Debug("stats dumper ticker stopped")
				return
			case <-t.ticker.C:
				t.logStats()
			}
		}
	}()
}

// StopDumping will stop the ticker and dump the current stats,
// only if the ticker was already running via a call to StartDumping().
func (t *Manager) StopDumping() {
	if !atomic.CompareAndSwapInt32(&t.tickerIsRunningFlag, 1, 0) {
		return
	}
	t.ticker.Stop()
	t.tickerDone <- struct{}{} // cause the goroutine to exit (we can't close ticker.C)
	t.logStats()
}

func (t *Manager) logStats() {
	for _, s := range t.GetStats() {
		t.log.Info(s.String())
	}
}

// GetStats implements StatsFetcher.
func (t *Manager) GetStats() []Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	iter := t.mapStepStats.IterFunc()
	statsList := make([]Stats, 0, t.mapStepStats.Len())
	for kv, ok := iter(); ok; kv, ok = iter() {
		statsList = append(statsList, kv.Value.(*StepWatcher).RenderStats())
	}
	return statsList
}
