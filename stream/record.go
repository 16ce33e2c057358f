package stream

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	om "github.com/cevaris/ordered_map"
	"github.com/relloyd/stagesync/constants"
	h "github.com/relloyd/stagesync/helper"
	"github.com/relloyd/stagesync/logger"
)

// Record is used to communicate data between components.
// A nil value represents a database NULL.
type Record struct {
	data map[string]interface{}
}

// NewRecord creates a new Record and returns it by value as we expect these records to go over
// channels by value too.
func NewRecord() Record {
	return Record{data: make(map[string]interface{})}
}

func NewNilRecord() Record {
	return Record{}
}

// RecordIsNil is true for the zero Record, which components send to signal the end of a stream.
func (sr Record) RecordIsNil() bool {
	return sr.data == nil
}

func (sr Record) SetData(name string, value interface{}) {
	sr.data[name] = value
}

func (sr Record) GetData(name string) interface{} {
	val, ok := sr.data[name]
	if !ok {
		panic(fmt.Sprintf("Invalid key name %q supplied while trying to fetch value from record: %v", name, sr.data))
	}
	return val
}

// HasField reports whether name has been set, even if its value is nil.
func (sr Record) HasField(name string) bool {
	_, ok := sr.data[name]
	return ok
}

func (sr Record) GetDataMap() map[string]interface{} {
	return sr.data
}

func (sr Record) GetDataLen() int {
	return len(sr.data)
}

// GetClassification returns the tag written by the classifier or "" if the record is unclassified.
func (sr Record) GetClassification() string {
	if v, ok := sr.data[constants.ClassificationFieldName].(string); ok {
		return v
	}
	return ""
}

func (sr Record) SetClassification(c string) {
	sr.data[constants.ClassificationFieldName] = c
}

// GetDataAsStringUseUtcTime will convert the value of field name to a string.
// Times will be converted to UTC.
func (sr Record) GetDataAsStringUseUtcTime(log logger.Logger, name string) string {
	v, ok := sr.data[name]
	if !ok {
		panic(fmt.Sprintf("unexpected field %q does not exist in the input stream", name))
	}
	return h.GetStringFromInterface(log, v, true)
}

// GetDataKeysAsSlice builds a slice of strings containing the values found in sr.data for each of the supplied
// keys in slice keys.
func (sr Record) GetDataKeysAsSlice(log logger.Logger, keys []string) []string {
	retval := make([]string, 0, len(keys))
	for _, k := range keys {
		retval = append(retval, sr.GetDataAsStringUseUtcTime(log, k))
	}
	return retval
}

// GetDataValues returns the values of keys in order, ready to bind as statement arguments.
func (sr Record) GetDataValues(keys []string) []interface{} {
	retval := make([]interface{}, len(keys))
	for idx, k := range keys {
		retval[idx] = sr.GetData(k)
	}
	return retval
}

// GetSortedDataMapKeys will return a slice of the keys found in map sr.data sorted alphabetically.
func (sr Record) GetSortedDataMapKeys() []string {
	retval := make([]string, 0, len(sr.data))
	for k := range sr.data {
		retval = append(retval, k)
	}
	sort.Strings(retval)
	return retval
}

// Copy returns a new Record holding the same values.
func (sr Record) Copy() Record {
	retval := NewRecord()
	for k, v := range sr.data {
		retval.data[k] = v
	}
	return retval
}

// DataCanJoinByKeyFields compares two records using key fields for equality (return 0)
// less-than (return -1) or greater-than (return 1) status where return values are:
// -1 if sr is less than targetRec
//  0 if sr matches targetRec
//  1 if sr is greater than targetRec
// The keys of joinKeys are field names in sr while its values are field names in targetRec.
// Values are compared by type so that integers and times order naturally.
func (sr Record) DataCanJoinByKeyFields(log logger.Logger, targetRec Record, joinKeys *om.OrderedMap) (retval int) {
	iter := joinKeys.IterFunc()
	for kv, ok := iter(); ok; kv, ok = iter() { // for each key to compare...
		retval = CompareValues(sr.GetData(kv.Key.(string)), targetRec.GetData(kv.Value.(string)))
		if retval != 0 { // exit early as we have found a difference.
			break
		}
	}
	log.Trace("DataCanJoinByKeyFields() returning ", retval, " (0 is equal)")
	return
}

// DataIsDeepEqual compares two records field by field.
// Specify the keys to use for the comparison in ordered dict, compareKeys.
// Example: use contents of compareKeys["X"]="Y" to check if m1["X"] == m2["Y"] and repeat for all of the map contents.
func (sr Record) DataIsDeepEqual(log logger.Logger, targetRec Record, compareKeys *om.OrderedMap) (retval bool) {
	retval = true
	iter := compareKeys.IterFunc()
	for kv, ok := iter(); ok; kv, ok = iter() { // while we have more keys to compare...
		if !ValuesEqual(sr.GetData(kv.Key.(string)), targetRec.GetData(kv.Value.(string))) {
			log.Trace("DataIsDeepEqual() found difference in field ", kv.Key)
			retval = false
			break
		}
	}
	return
}

// GetJson returns the JSON representation of sr.data using the supplied keys to fetch the data.
func (sr Record) GetJson(log logger.Logger, keys []string) string {
	out := make([]string, len(keys))
	for idx, key := range keys { // for each key...
		jsonValue, err := json.Marshal(sr.GetDataAsStringUseUtcTime(log, key))
		if err != nil {
			log.Panic("Error marshalling the value of key '", key, "' to JSON")
		}
		out[idx] = fmt.Sprintf("%q: %s", key, string(jsonValue))
	}
	return fmt.Sprintf("{%v}", strings.Join(out, ", "))
}

// KeyString renders the values of keys as a single string for use in map lookups and log lines.
func (sr Record) KeyString(log logger.Logger, keys []string) string {
	b, _ := json.Marshal(sr.GetDataKeysAsSlice(log, keys)) // a slice of strings always marshals
	return string(b)
}
