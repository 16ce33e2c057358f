package tabledefinition

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	om "github.com/cevaris/ordered_map"
	"github.com/pkg/errors"
	"github.com/relloyd/stagesync/constants"
	"github.com/relloyd/stagesync/helper"
	"github.com/relloyd/stagesync/stream"
)

// FieldType is the logical type of a descriptor field.
type FieldType string

const (
	FieldInt      FieldType = "int"
	FieldBigInt   FieldType = "bigint"
	FieldString   FieldType = "string"
	FieldBool     FieldType = "bool"
	FieldFlag     FieldType = "flag" // char(1) holding 'T' or 'F'
	FieldDate     FieldType = "date"
	FieldDateTime FieldType = "datetime"
	FieldTime     FieldType = "time"
	FieldDecimal  FieldType = "decimal"
)

// Field is one column of an entity.
// Source is the JSON property or SQL alias the value is read from and defaults to Name.
type Field struct {
	Name   string    `json:"name"`
	Type   FieldType `json:"type"`
	Source string    `json:"source,omitempty"`
}

func (f Field) SourceName() string {
	if f.Source != "" {
		return f.Source
	}
	return f.Name
}

// Descriptor is the ordered list of fields shared by fetch, load, mirror, insert and delete.
type Descriptor struct {
	Fields []Field `json:"fields"`
}

func NewDescriptor(fields ...Field) Descriptor {
	return Descriptor{Fields: fields}
}

// ColumnNames returns the field names in descriptor order.
func (d Descriptor) ColumnNames() []string {
	retval := make([]string, len(d.Fields))
	for idx, f := range d.Fields {
		retval[idx] = f.Name
	}
	return retval
}

// Field looks up a field by name.
func (d Descriptor) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// ColumnMap returns an ordered map of names to names, the shape the DML generators and merge diff expect.
func (d Descriptor) ColumnMap(names []string) *om.OrderedMap {
	return helper.StringSliceToOrderedMap(names)
}

// Validate checks that names exist in the descriptor.
func (d Descriptor) Validate(names ...string) error {
	for _, n := range names {
		if _, ok := d.Field(n); !ok {
			return fmt.Errorf("field %q is not in the descriptor", n)
		}
	}
	return nil
}

// RecordFromSource builds a Record from a decoded source row, reading each field from its source
// name and coercing it to the declared type. Missing source properties become NULL.
func (d Descriptor) RecordFromSource(row map[string]interface{}) (stream.Record, error) {
	rec := stream.NewRecord()
	for _, f := range d.Fields {
		v, err := Coerce(f.Type, row[f.SourceName()])
		if err != nil {
			return stream.NewNilRecord(), errors.Wrapf(err, "field %v", f.Name)
		}
		rec.SetData(f.Name, v)
	}
	return rec, nil
}

// Normalise coerces every descriptor field of rec in place.
// Rows read back from the database pass through here so that driver types such as int32 and
// []byte decimals match the types produced by RecordFromSource.
func (d Descriptor) Normalise(rec stream.Record) error {
	for _, f := range d.Fields {
		if !rec.HasField(f.Name) {
			return fmt.Errorf("field %v is missing from the row", f.Name)
		}
		v, err := Coerce(f.Type, rec.GetData(f.Name))
		if err != nil {
			return errors.Wrapf(err, "field %v", f.Name)
		}
		rec.SetData(f.Name, v)
	}
	return nil
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02 15:04:05.9999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	constants.DateFormat,
	constants.DateFormatUS,
	"01/02/2006 15:04:05",
}

var timeLayouts = []string{
	"15:04:05.9999999",
	"15:04:05",
	"15:04",
	"3:04 PM",
	"3:04PM",
}

// Coerce converts v to the Go type used for t.
// The results are int64 for int and bigint, string, bool, "T"/"F" for flag, time.Time for date,
// datetime and time, and float64 for decimal. NULL stays nil except for flags, which default to "F".
func Coerce(t FieldType, v interface{}) (interface{}, error) {
	if v == nil {
		if t == FieldFlag {
			return "F", nil
		}
		return nil, nil
	}
	switch t {
	case FieldInt, FieldBigInt:
		return toInt64(v)
	case FieldString:
		return toString(v)
	case FieldBool:
		return toBool(v)
	case FieldFlag:
		b, err := toBool(v)
		if err != nil {
			return nil, err
		}
		if b {
			return "T", nil
		}
		return "F", nil
	case FieldDate:
		ts, err := toTime(v, dateTimeLayouts)
		if err != nil {
			return nil, err
		}
		y, m, dd := ts.Date()
		return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC), nil
	case FieldDateTime:
		return toTime(v, dateTimeLayouts)
	case FieldTime:
		ts, err := toTime(v, append(timeLayouts, dateTimeLayouts...))
		if err != nil {
			return nil, err
		}
		return time.Date(1, 1, 1, ts.Hour(), ts.Minute(), ts.Second(), ts.Nanosecond(), time.UTC), nil
	case FieldDecimal:
		return toFloat64(v)
	}
	return nil, fmt.Errorf("unsupported field type %q", t)
}

func toInt64(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case float64:
		if x != float64(int64(x)) {
			return nil, fmt.Errorf("value %v is not an integer", x)
		}
		return int64(x), nil
	case json.Number:
		return x.Int64()
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(x)), 10, 64)
	}
	return nil, fmt.Errorf("cannot convert %T to an integer", v)
}

func toString(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case []byte:
		return string(x), nil
	case bool, int, int8, int16, int32, int64, float64:
		return fmt.Sprint(x), nil
	}
	return nil, fmt.Errorf("cannot convert %T to a string", v)
}

func toBool(v interface{}) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		s := strings.TrimSpace(x)
		switch strings.ToUpper(s) {
		case "T", "Y", "1":
			return true, nil
		}
		return helper.GetTrueFalseStringAsBool(s), nil
	case json.Number:
		return x.String() != "0", nil
	case int64:
		return x != 0, nil
	case int:
		return x != 0, nil
	case float64:
		return x != 0, nil
	}
	return false, fmt.Errorf("cannot convert %T to a boolean", v)
}

func toTime(v interface{}, layouts []string) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		s := strings.TrimSpace(x)
		for _, l := range layouts {
			if ts, err := time.Parse(l, s); err == nil {
				return ts, nil
			}
		}
		return time.Time{}, fmt.Errorf("cannot parse %q as a time", s)
	}
	return time.Time{}, fmt.Errorf("cannot convert %T to a time", v)
}

func toFloat64(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return strconv.ParseFloat(strconv.FormatFloat(float64(x), 'f', -1, 32), 64)
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(x)), 64)
	}
	return nil, fmt.Errorf("cannot convert %T to a decimal", v)
}
