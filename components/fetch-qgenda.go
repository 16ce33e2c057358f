package components

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strings"

	c "github.com/relloyd/stagesync/constants"
	"github.com/relloyd/stagesync/failure"
	"github.com/relloyd/stagesync/logger"
	"github.com/relloyd/stagesync/qgenda"
	"github.com/relloyd/stagesync/stream"
)

type QGendaSourceConfig struct {
	Log        logger.Logger
	Entity     string
	Client     qgenda.Getter
	Path       string   // e.g. /schedule
	Select     []string // OData $select
	OrderBy    []string // OData $orderby
	Includes   string   // e.g. Tags
	DateFormat string   // layout of startDate and endDate; empty means the endpoint is not windowed
}

// QGendaSource fetches one entity from the QGenda REST API.
type QGendaSource struct {
	cfg *QGendaSourceConfig
}

func NewQGendaSource(cfg *QGendaSourceConfig) *QGendaSource {
	return &QGendaSource{cfg: cfg}
}

// Params returns the query parameters sent for window w.
func (s *QGendaSource) Params(w Window) url.Values {
	params := url.Values{}
	if s.cfg.DateFormat != "" {
		params.Set("startDate", w.Start.Format(s.cfg.DateFormat))
		params.Set("endDate", w.LastDay().Format(s.cfg.DateFormat)) // QGenda end dates are inclusive.
	}
	if s.cfg.Includes != "" {
		params.Set("includes", s.cfg.Includes)
	}
	if len(s.cfg.Select) > 0 {
		params.Set("$select", strings.Join(s.cfg.Select, ","))
	}
	if len(s.cfg.OrderBy) > 0 {
		params.Set("$orderby", strings.Join(s.cfg.OrderBy, ","))
	}
	return params
}

// Fetch requests the endpoint and decodes its JSON array.
// Numbers are kept as json.Number so that keys survive without float rounding.
func (s *QGendaSource) Fetch(ctx context.Context, w Window) (*Rows, error) {
	body, err := s.cfg.Client.Get(ctx, s.cfg.Path, s.Params(w))
	if err != nil {
		return nil, failure.Wrapf(err, failure.SourceUnavailable, s.cfg.Entity, c.StateFetched, "unable to fetch %v from QGenda", s.cfg.Path)
	}
	data := make([]map[string]interface{}, 0)
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err = dec.Decode(&data); err != nil {
		return nil, failure.Wrapf(err, failure.SourceDataError, s.cfg.Entity, c.StateFetched, "unable to decode QGenda %v response", s.cfg.Path)
	}
	s.cfg.Log.Info(s.cfg.Entity, " received ", len(data), " records from QGenda ", s.cfg.Path)
	return streamRows(ctx, body, len(data), func(idx int) (stream.Record, error) {
		rec := stream.NewRecord()
		for k, v := range data[idx] {
			rec.SetData(k, v)
		}
		return rec, nil
	}), nil
}
