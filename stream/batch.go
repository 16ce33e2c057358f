package stream

import (
	"context"
	"sort"

	"github.com/relloyd/stagesync/constants"
)

// Batch is the ordered set of records for one entity in one run.
// Records keep fetch order until the classifier sorts them.
type Batch struct {
	Entity  string
	Records []Record
}

func NewBatch(entity string) *Batch {
	return &Batch{Entity: entity, Records: make([]Record, 0)}
}

func (b *Batch) Add(r Record) {
	b.Records = append(b.Records, r)
}

func (b *Batch) Len() int {
	return len(b.Records)
}

// Filter returns the records tagged with any of the supplied classifications, in batch order.
func (b *Batch) Filter(classifications ...string) []Record {
	want := make(map[string]bool, len(classifications))
	for _, c := range classifications {
		want[c] = true
	}
	retval := make([]Record, 0)
	for _, r := range b.Records {
		if want[r.GetClassification()] {
			retval = append(retval, r)
		}
	}
	return retval
}

// Counts returns the number of records per classification.
// Every classification is present in the result, so a zero count is explicit.
func (b *Batch) Counts() map[string]int {
	retval := map[string]int{
		constants.ClassificationNew:       0,
		constants.ClassificationUpdate:    0,
		constants.ClassificationDelete:    0,
		constants.ClassificationUnchanged: 0,
	}
	for _, r := range b.Records {
		if c := r.GetClassification(); c != "" {
			retval[c]++
		}
	}
	return retval
}

// SortByKeys orders the records by the values of keys using CompareValues.
// The sort is stable so records with equal keys keep their relative order.
func (b *Batch) SortByKeys(keys []string) {
	SortRecords(b.Records, keys)
}

func SortRecords(recs []Record, keys []string) {
	sort.SliceStable(recs, func(i, j int) bool {
		for _, k := range keys {
			if c := CompareValues(recs[i].GetData(k), recs[j].GetData(k)); c != 0 {
				return c < 0
			}
		}
		return false
	})
}

// Collect drains ch into a new batch until ch is closed, a nil record arrives or ctx is done.
func Collect(ctx context.Context, entity string, ch <-chan Record) (*Batch, error) {
	b := NewBatch(entity)
	for {
		select {
		case <-ctx.Done():
			return b, ctx.Err()
		case r, ok := <-ch:
			if !ok || r.RecordIsNil() {
				return b, nil
			}
			b.Add(r)
		}
	}
}

// Stream sends the records of b on a new channel.
// The channel is closed after the last record or when ctx is done.
func (b *Batch) Stream(ctx context.Context) chan Record {
	ch := make(chan Record, constants.ChanSize)
	go func() {
		defer close(ch)
		for _, r := range b.Records {
			select {
			case <-ctx.Done():
				return
			case ch <- r:
			}
		}
	}()
	return ch
}
