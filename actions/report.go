package actions

import (
	"time"

	"github.com/relloyd/stagesync/failure"
	"github.com/relloyd/stagesync/runlog"
	"github.com/relloyd/stagesync/stats"
)

// RunReport summarises one run across its entities.
type RunReport struct {
	RunID    string          `json:"runId"`
	Started  time.Time       `json:"started"`
	Finished time.Time       `json:"finished"`
	DryRun   bool            `json:"dryRun,omitempty"`
	Entities []*EntityReport `json:"entities"`
	Error    string          `json:"error,omitempty"`
	RunLog   []runlog.Entry  `json:"runLog,omitempty"`
	Stats    []stats.Stats   `json:"stats,omitempty"`
}

// Succeeded reports whether every entity reached its final state.
func (r *RunReport) Succeeded() bool {
	return r.Error == ""
}

// EntityReport is the outcome of one entity.
// State is the last state reached, or the state the entity failed at. States lists the states
// reached in order.
type EntityReport struct {
	Entity     string               `json:"entity"`
	State      string               `json:"state"`
	States     []string             `json:"states"`
	Window     string               `json:"window,omitempty"`
	Fetched    int                  `json:"fetched"`
	Imported   int64                `json:"imported"`
	Mirrored   int64                `json:"mirrored"`
	Counts     map[string]int       `json:"counts,omitempty"`
	Retained   int                  `json:"retained"`
	Protected  int                  `json:"protected"`
	Duplicates int                  `json:"duplicates"`
	Deleted    int64                `json:"deleted"`
	Inserted   int64                `json:"inserted"`
	Duration   time.Duration        `json:"duration"`
	ErrorKind  failure.Kind         `json:"errorKind,omitempty"`
	Error      string               `json:"error,omitempty"`
	Apply      *failure.ApplyDetail `json:"apply,omitempty"`
}

func (r *EntityReport) reach(state string) {
	r.State = state
	r.States = append(r.States, state)
}

// setError records err and the state it happened at.
func (r *EntityReport) setError(err error) {
	r.ErrorKind = failure.KindOf(err)
	r.Error = err.Error()
	if fe := failure.As(err); fe != nil {
		if fe.State != "" {
			r.State = fe.State
		}
		r.Apply = fe.Apply
	}
}
