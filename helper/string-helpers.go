package helper

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	om "github.com/cevaris/ordered_map"
	"github.com/relloyd/stagesync/constants"
	"github.com/relloyd/stagesync/logger"
)

var (
	reTrue            = regexp.MustCompile(`(?i)^true$`)
	reNonAlphanumeric = regexp.MustCompile(`[^A-Za-z0-9]+`)
)

// StringSliceToOrderedMap adds each value in s to an ordered map with key and value set to the value in s.
func StringSliceToOrderedMap(s []string) *om.OrderedMap {
	retval := om.NewOrderedMap()
	for _, v := range s {
		retval.Set(v, v)
	}
	return retval
}

// Function to build a list of values found in ordered map 'om' supplied as input.
// Output - this function modifies the supplied list 'l' and 'idx' by reference.
func OrderedMapValuesToStringSlice(log logger.Logger, m *om.OrderedMap, l *[]string, idx *int) {
	iter := m.IterFunc()
	if iter == nil {
		log.Panic("Failed to get iterFunc in OrderedMapValuesToStringSlice()")
	}
	for kv, ok := iter(); ok; kv, ok = iter() {
		(*l)[*idx] = kv.Value.(string)
		*idx++
	}
}

// Convert a string of the form, 'f1,f2,f3...' into a slice of string values.
// Empty tokens are dropped and leading and trailing spaces are removed.
func CsvToStringSliceTrimSpaces(s string) []string {
	retval := make([]string, 0)
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			retval = append(retval, t)
		}
	}
	return retval
}

// GetStringFromInterface will convert interface{} value to a string.
// Optionally return Times in UTC.
func GetStringFromInterface(log logger.Logger, input interface{}, useUTC bool) (retval string) {
	switch v := input.(type) {
	case int, int16, int32, int64, int8, uint8:
		retval = fmt.Sprintf("%d", v)
	case string:
		retval = v
	case float32:
		retval = strconv.FormatFloat(float64(v), 'f', -1, 32) // use 'f' to convert float to string without an exponent i.e. preserve all decimal points.
	case float64:
		retval = strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		if useUTC { // if caller requests UTC conversion...
			retval = v.UTC().Format(constants.TimeFormatYearSecondsTZ)
		} else { // else output Local time...
			retval = v.Format(constants.TimeFormatYearSecondsTZ)
		}
	case []uint8: // SQL Server decimals arrive as bytes.
		retval = string(v)
	case bool:
		retval = fmt.Sprintf("%v", v)
	case nil:
		retval = ""
	default:
		log.Panic("unhandled type while fetching string from interface: type = ", reflect.TypeOf(input), "; value = ", input)
	}
	return
}

// GetTrueFalseStringAsBool trims spaces from s and checks if it matches "true" case insensitively.
func GetTrueFalseStringAsBool(s string) bool {
	return reTrue.MatchString(strings.TrimSpace(s))
}

// StripNonAlphanumeric removes everything but ASCII letters and digits from s.
func StripNonAlphanumeric(s string) string {
	return reNonAlphanumeric.ReplaceAllString(s, "")
}

// QuoteIdentifier wraps name in SQL Server brackets, escaping any closing bracket.
func QuoteIdentifier(name string) string {
	return "[" + strings.Replace(name, "]", "]]", -1) + "]"
}

// QuoteIdentifiers applies QuoteIdentifier to every element of names.
func QuoteIdentifiers(names []string) []string {
	retval := make([]string, len(names))
	for idx, n := range names {
		retval[idx] = QuoteIdentifier(n)
	}
	return retval
}

// Function to get a string "src.col1 = tgt.col1, src.col2 = tgt.col2" using the colList supplier
// and where the comma can be whatever separator you pass in.
// Column names are bracket quoted.
func GenerateStringOfColsEqualsCols(colList []string, srcAlias string, tgtAlias string, separator string) string {
	return strings.Join(GenerateSliceOfColsEqualCols(colList, srcAlias, tgtAlias), separator)
}

func GenerateSliceOfColsEqualCols(colList []string, srcAlias string, tgtAlias string) []string {
	retval := make([]string, len(colList))
	for idx, col := range colList {
		q := QuoteIdentifier(col)
		retval[idx] = fmt.Sprintf("%s.%s = %s.%s", srcAlias, q, tgtAlias, q)
	}
	return retval
}
