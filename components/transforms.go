package components

import (
	"fmt"
	"strings"

	"github.com/relloyd/stagesync/helper"
	"github.com/relloyd/stagesync/logger"
	"github.com/relloyd/stagesync/stream"
)

// Transform reshapes fetched rows after they are archived and before they are coerced by the descriptor.
type Transform interface {
	Name() string
	Apply(log logger.Logger, recs []stream.Record) ([]stream.Record, error)
}

// StaffActivity derives IsActive and DeactivationDate from DeactivationDateUtc.
// A staff member with a deactivation timestamp is inactive.
type StaffActivity struct{}

func (StaffActivity) Name() string {
	return "StaffActivity"
}

func (StaffActivity) Apply(_ logger.Logger, recs []stream.Record) ([]stream.Record, error) {
	for _, rec := range recs {
		var deactivated interface{}
		if rec.HasField("DeactivationDateUtc") {
			deactivated = rec.GetData("DeactivationDateUtc")
		}
		if s, ok := deactivated.(string); ok && strings.TrimSpace(s) == "" {
			deactivated = nil
		}
		if deactivated == nil {
			rec.SetData("IsActive", "T")
		} else {
			rec.SetData("IsActive", "F")
		}
		rec.SetData("DeactivationDate", deactivated) // the date field type keeps the date part
	}
	return recs, nil
}

// TagColumnName returns the column that holds the tag in a pivoted row.
func TagColumnName(category, tag string) string {
	return helper.StripNonAlphanumeric(category) + "_" + helper.StripNonAlphanumeric(tag)
}

// TagPivot turns the nested Tags property of each row into one 'T'/'F' column per known tag.
// Columns is the list of known tag columns. A tag without a column marks the row invalid.
type TagPivot struct {
	Columns     []string
	InvalidFlag string // defaults to InvalidRecordFlag
}

func (p TagPivot) Name() string {
	return "TagPivot"
}

func (p TagPivot) Apply(log logger.Logger, recs []stream.Record) ([]stream.Record, error) {
	invalidFlag := p.InvalidFlag
	if invalidFlag == "" {
		invalidFlag = "InvalidRecordFlag"
	}
	lookup := make(map[string]string, len(p.Columns))
	for _, col := range p.Columns {
		lookup[strings.ToLower(col)] = col
	}
	for idx, rec := range recs {
		for _, col := range p.Columns {
			rec.SetData(col, "F")
		}
		rec.SetData(invalidFlag, "F")
		if !rec.HasField("Tags") || rec.GetData("Tags") == nil {
			continue
		}
		categories, ok := rec.GetData("Tags").([]interface{})
		if !ok {
			return nil, fmt.Errorf("row %v: Tags is %T, expected a list", idx, rec.GetData("Tags"))
		}
		for _, ci := range categories { // for each category...
			category, ok := ci.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("row %v: tag category is %T, expected an object", idx, ci)
			}
			categoryName := fmt.Sprint(category["CategoryName"])
			tags, _ := category["Tags"].([]interface{})
			for _, ti := range tags { // for each tag in the category...
				tag, ok := ti.(map[string]interface{})
				if !ok {
					return nil, fmt.Errorf("row %v: tag is %T, expected an object", idx, ti)
				}
				name := TagColumnName(categoryName, fmt.Sprint(tag["Name"]))
				col, known := lookup[strings.ToLower(name)]
				if !known {
					log.Warn("tag pivot found unknown tag ", name, " on row ", idx)
					rec.SetData(invalidFlag, "T")
					continue
				}
				rec.SetData(col, "T")
			}
		}
	}
	return recs, nil
}

// LineNumbers numbers the rows within each Partition value, starting at 1, in OrderBy order.
// Rows keep their position in the slice.
type LineNumbers struct {
	Partition string
	OrderBy   []string
	Field     string
}

func (l LineNumbers) Name() string {
	return "LineNumbers"
}

func (l LineNumbers) Apply(log logger.Logger, recs []stream.Record) ([]stream.Record, error) {
	for _, rec := range recs {
		for _, f := range append([]string{l.Partition}, l.OrderBy...) {
			if !rec.HasField(f) {
				return nil, fmt.Errorf("line numbering field %v is missing from the row", f)
			}
		}
	}
	groups := make(map[string][]stream.Record)
	order := make([]string, 0)
	for _, rec := range recs {
		k := rec.KeyString(log, []string{l.Partition})
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], rec)
	}
	for _, k := range order {
		g := groups[k]
		stream.SortRecords(g, l.OrderBy) // sorts the group's copy of the slice; records share data
		for idx, rec := range g {
			rec.SetData(l.Field, int64(idx+1))
		}
	}
	return recs, nil
}
