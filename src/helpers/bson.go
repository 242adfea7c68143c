package helpers

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Normalize turns values produced by the mongo driver into the plain Go
// values the rest of the code works with: nested documents become
// map[string]interface{}, arrays []interface{}, datetimes time.Time and
// binaries []byte. ObjectIDs are kept.
func Normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case bson.M:
		return NormalizeMap(t)
	case map[string]interface{}:
		return NormalizeMap(t)
	case bson.D:
		m := make(map[string]interface{}, len(t))
		for _, e := range t {
			m[e.Key] = Normalize(e.Value)
		}
		return m
	case bson.A:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = Normalize(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = Normalize(e)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	case time.Time:
		return t.UTC()
	case primitive.Binary:
		return append([]byte(nil), t.Data...)
	case int32:
		return int64(t)
	default:
		return v
	}
}

func NormalizeMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = Normalize(v)
	}
	return out
}
