package components

import (
	"context"
	"encoding/json"

	c "github.com/relloyd/stagesync/constants"
	"github.com/relloyd/stagesync/failure"
	"github.com/relloyd/stagesync/logger"
	"github.com/relloyd/stagesync/stream"
)

type SqlSourceConfig struct {
	Log      logger.Logger
	Entity   string
	Db       RecordQuerier
	Sqltext  string
	Windowed bool // bind the window start and end as @p1 and @p2
}

// SqlSource fetches one entity from a warehouse query.
type SqlSource struct {
	cfg *SqlSourceConfig
}

func NewSqlSource(cfg *SqlSourceConfig) *SqlSource {
	return &SqlSource{cfg: cfg}
}

// Fetch runs the query and returns its rows along with their JSON rendering as the raw payload.
func (s *SqlSource) Fetch(ctx context.Context, w Window) (*Rows, error) {
	var args []interface{}
	if s.cfg.Windowed {
		args = []interface{}{w.Start, w.End}
	}
	recs, err := s.cfg.Db.QueryRecords(ctx, s.cfg.Sqltext, args...)
	if err != nil {
		return nil, failure.Wrap(err, failure.SourceUnavailable, s.cfg.Entity, c.StateFetched, "unable to query source")
	}
	data := make([]map[string]interface{}, len(recs))
	for idx, r := range recs {
		m := r.GetDataMap()
		for k, v := range m {
			if b, ok := v.([]byte); ok { // decimals would otherwise be base64 encoded.
				m[k] = string(b)
			}
		}
		data[idx] = m
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, failure.Wrap(err, failure.SourceDataError, s.cfg.Entity, c.StateFetched, "unable to encode source rows")
	}
	s.cfg.Log.Info(s.cfg.Entity, " received ", len(recs), " records from source query")
	return streamRows(ctx, raw, len(recs), func(idx int) (stream.Record, error) {
		return recs[idx], nil
	}), nil
}
