package stream

import (
	"bytes"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// CompareValues orders two field values.
// It returns -1, 0 or 1 when a is less than, equal to or greater than b.
// NULL (nil) sorts before everything else.
// Integer kinds compare as int64 and mixed integer and float values compare as floats.
// Decimals, which the SQL Server driver returns as []byte, compare numerically.
// Strings compare by bytes, times by instant and false sorts before true.
// Values of unrelated types fall back to comparing their printed form.
func CompareValues(a, b interface{}) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if ai, ok := toInt64(a); ok {
		if bi, ok := toInt64(b); ok {
			return cmpInt64(ai, bi)
		}
	}
	if ar, ok := toRat(a); ok {
		if br, ok := toRat(b); ok {
			return ar.Cmp(br)
		}
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			switch {
			case x.Before(y):
				return -1
			case x.After(y):
				return 1
			}
			return 0
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			}
			return 1
		}
	case []byte:
		if y, ok := b.([]byte); ok {
			return bytes.Compare(x, y)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// ValuesEqual reports whether two field values are equal under CompareValues.
func ValuesEqual(a, b interface{}) bool {
	return CompareValues(a, b) == 0
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func toInt64(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	}
	return 0, false
}

// toRat converts numeric values, including decimal strings held in []byte, to an exact rational.
func toRat(v interface{}) (*big.Rat, bool) {
	if i, ok := toInt64(v); ok {
		return new(big.Rat).SetInt64(i), true
	}
	switch x := v.(type) {
	case float32:
		return new(big.Rat).SetString(strconv.FormatFloat(float64(x), 'f', -1, 32))
	case float64:
		return new(big.Rat).SetString(strconv.FormatFloat(x, 'f', -1, 64)) // NaN and Inf fail to parse
	case []byte:
		return new(big.Rat).SetString(strings.TrimSpace(string(x)))
	}
	return nil, false
}
