package helpers

import (
	"bytes"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// type ranks used when values of different kinds are compared, mirroring
// mongo's cross type ordering closely enough for sorting.
const (
	rankNull = iota
	rankNumber
	rankString
	rankObject
	rankArray
	rankBinary
	rankBool
	rankTime
	rankOther
)

func typeRank(v interface{}) int {
	if v == nil {
		return rankNull
	}
	if IsNumber(v) {
		return rankNumber
	}
	switch v.(type) {
	case string:
		return rankString
	case map[string]interface{}:
		return rankObject
	case []interface{}:
		return rankArray
	case []byte:
		return rankBinary
	case bool:
		return rankBool
	case time.Time:
		return rankTime
	}
	return rankOther
}

// CompareValues orders two values: negative when a < b, zero when equal,
// positive when a > b.
func CompareValues(a, b interface{}) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return ra - rb
	}

	switch ra {
	case rankNull:
		return 0
	case rankNumber:
		af, _ := ToFloat(a)
		bf, _ := ToFloat(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	case rankString:
		return strings.Compare(a.(string), b.(string))
	case rankBool:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		}
		return 1
	case rankTime:
		return a.(time.Time).Compare(b.(time.Time))
	case rankBinary:
		return bytes.Compare(a.([]byte), b.([]byte))
	case rankArray:
		aa, ba := a.([]interface{}), b.([]interface{})
		for i := 0; i < len(aa) && i < len(ba); i++ {
			if c := CompareValues(aa[i], ba[i]); c != 0 {
				return c
			}
		}
		return len(aa) - len(ba)
	}

	if reflect.DeepEqual(a, b) {
		return 0
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// ValuesEqual compares with numeric normalisation, so int 5 equals 5.0.
func ValuesEqual(a, b interface{}) bool {
	if typeRank(a) != typeRank(b) {
		return false
	}
	switch typeRank(a) {
	case rankObject, rankOther:
		return reflect.DeepEqual(a, b)
	}
	return CompareValues(a, b) == 0
}

// LookupPath resolves a dotted path such as "address.city" in a record.
func LookupPath(record map[string]interface{}, path string) (interface{}, bool) {
	var current interface{} = record
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// SortRecords sorts in place by the given keys, "-name" sorts descending.
// The sort is stable so records keep insertion order on ties.
func SortRecords(records []map[string]interface{}, keys []string) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(records, func(i, j int) bool {
		for _, key := range keys {
			desc := strings.HasPrefix(key, "-")
			field := strings.TrimPrefix(strings.TrimPrefix(key, "-"), "+")

			a, _ := LookupPath(records[i], field)
			b, _ := LookupPath(records[j], field)
			c := CompareValues(a, b)
			if c == 0 {
				continue
			}
			if desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}
