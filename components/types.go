package components

import (
	"fmt"
	"time"

	"github.com/relloyd/stagesync/constants"
)

// Window is the half-open date range [Start, End) a run refreshes.
type Window struct {
	Start time.Time
	End   time.Time
}

// DaysWindow returns the window from daysBack days before today up to and including the day
// daysForward days after today. Bounds are UTC midnights of the local calendar dates.
func DaysWindow(now time.Time, daysBack int, daysForward int) Window {
	y, m, d := now.Date()
	return Window{
		Start: time.Date(y, m, d-daysBack, 0, 0, 0, 0, time.UTC),
		End:   time.Date(y, m, d+daysForward+1, 0, 0, 0, 0, time.UTC),
	}
}

// LastDay returns the final day inside the window, for sources whose end date is inclusive.
func (w Window) LastDay() time.Time {
	return w.End.AddDate(0, 0, -1)
}

// Contains reports whether t lies in [Start, End). NULL values (a zero t) are outside every window.
func (w Window) Contains(t time.Time) bool {
	return !t.IsZero() && !t.Before(w.Start) && t.Before(w.End)
}

func (w Window) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

func (w Window) String() string {
	return fmt.Sprintf("[%v, %v)", w.Start.Format(constants.DateFormat), w.End.Format(constants.DateFormat))
}

// Scope selects which production rows are mirrored and so which rows can be classified Delete.
type Scope int

const (
	ScopeAll    Scope = iota // every production row
	ScopeWindow              // rows whose window field lies in the run window
	ScopeKeySet              // rows whose scope key appears in the import table
)

func (s Scope) String() string {
	switch s {
	case ScopeAll:
		return "all"
	case ScopeWindow:
		return "window"
	case ScopeKeySet:
		return "keyset"
	}
	return fmt.Sprintf("Scope(%d)", int(s))
}

// DeletePolicy decides what happens to production rows missing from import.
type DeletePolicy int

const (
	DeletePolicyDelete DeletePolicy = iota // delete them
	DeletePolicyRetain                     // keep them and count them as retained
)

func (p DeletePolicy) String() string {
	if p == DeletePolicyRetain {
		return "retain"
	}
	return "delete"
}

// ParseDeletePolicy converts "delete" or "retain" into a DeletePolicy.
func ParseDeletePolicy(s string) (DeletePolicy, error) {
	switch s {
	case "delete":
		return DeletePolicyDelete, nil
	case "retain":
		return DeletePolicyRetain, nil
	}
	return DeletePolicyDelete, fmt.Errorf("unknown delete policy %q", s)
}
