package components

import (
	"context"
	"encoding/json"

	"github.com/relloyd/stagesync/stream"
)

type MockComponentWaiter struct {
	count int
}

func (cw *MockComponentWaiter) Add() {
	cw.count++
}

func (cw *MockComponentWaiter) Done() {
	cw.count--
}

// MockFetcher returns fixed rows for any window.
type MockFetcher struct {
	Data []map[string]interface{}
	Err  error
}

func (m *MockFetcher) Fetch(ctx context.Context, _ Window) (*Rows, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	raw, err := json.Marshal(m.Data)
	if err != nil {
		return nil, err
	}
	return streamRows(ctx, raw, len(m.Data), func(idx int) (stream.Record, error) {
		rec := stream.NewRecord()
		for k, v := range m.Data[idx] {
			rec.SetData(k, v)
		}
		return rec, nil
	}), nil
}
