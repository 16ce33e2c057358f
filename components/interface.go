package components

import (
	"context"

	"github.com/relloyd/stagesync/stream"
)

// ComponentWaiter is a simple interface for use around a wait group.
type ComponentWaiter interface {
	Add()
	Done()
}

// Fetcher reads the source rows of one entity for a window.
type Fetcher interface {
	Fetch(ctx context.Context, w Window) (*Rows, error)
}

// Rows is the lazy result of a fetch.
// Raw holds the payload exactly as received and is available as soon as Fetch returns.
// C is closed after the last row. Err must only be read once C is closed.
type Rows struct {
	C   <-chan stream.Record
	Raw []byte
	err error
}

// Err returns the error that stopped the stream early, if any.
func (r *Rows) Err() error {
	return r.err
}

// streamRows sends each decoded row on a new channel from a goroutine.
// A non-nil error from fn stops the stream and is reported by Err.
func streamRows(ctx context.Context, raw []byte, n int, fn func(idx int) (stream.Record, error)) *Rows {
	ch := make(chan stream.Record, chanSize(n))
	rows := &Rows{C: ch, Raw: raw}
	go func() {
		defer close(ch)
		for idx := 0; idx < n; idx++ {
			rec, err := fn(idx)
			if err != nil {
				rows.err = err
				return
			}
			select {
			case ch <- rec:
			case <-ctx.Done():
				rows.err = ctx.Err()
				return
			}
		}
	}()
	return rows
}

// RecordQuerier runs a query and returns its rows. It is implemented by *rdbms.Store.
type RecordQuerier interface {
	QueryRecords(ctx context.Context, sqlText string, args ...interface{}) ([]stream.Record, error)
}

// RunLogger appends run log messages. It is implemented by *runlog.Log.
type RunLogger interface {
	Append(entity string, format string, args ...interface{})
}
