package memstore

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	record := map[string]interface{}{
		"_id":  "a",
		"name": "Alice",
		"age":  int64(31),
		"tags": []interface{}{"admin", "ops"},
		"address": map[string]interface{}{
			"city": "Oslo",
		},
	}

	tests := []struct {
		name  string
		query map[string]interface{}
		want  bool
	}{
		{"empty query", map[string]interface{}{}, true},
		{"equality", map[string]interface{}{"name": "Alice"}, true},
		{"equality mismatch", map[string]interface{}{"name": "Bob"}, false},
		{"numeric kinds compare equal", map[string]interface{}{"age": 31}, true},
		{"array membership", map[string]interface{}{"tags": "ops"}, true},
		{"dotted path", map[string]interface{}{"address.city": "Oslo"}, true},
		{"gt", map[string]interface{}{"age": map[string]interface{}{"$gt": 30}}, true},
		{"lte", map[string]interface{}{"age": map[string]interface{}{"$lte": 30}}, false},
		{"range ignores other kinds", map[string]interface{}{"name": map[string]interface{}{"$gt": 1}}, false},
		{"in", map[string]interface{}{"name": map[string]interface{}{"$in": []interface{}{"Bob", "Alice"}}}, true},
		{"in strings", map[string]interface{}{"name": map[string]interface{}{"$in": []string{"Bob"}}}, false},
		{"nin", map[string]interface{}{"tags": map[string]interface{}{"$nin": []interface{}{"guest"}}}, true},
		{"ne", map[string]interface{}{"name": map[string]interface{}{"$ne": "Alice"}}, false},
		{"exists", map[string]interface{}{"email": map[string]interface{}{"$exists": false}}, true},
		{"regex string", map[string]interface{}{"name": map[string]interface{}{"$regex": "^Al"}}, true},
		{"regex compiled", map[string]interface{}{"name": map[string]interface{}{"$regex": regexp.MustCompile("ice$")}}, true},
		{"not", map[string]interface{}{"age": map[string]interface{}{"$not": map[string]interface{}{"$gt": 40}}}, true},
		{"or", map[string]interface{}{"$or": []interface{}{
			map[string]interface{}{"name": "Bob"},
			map[string]interface{}{"age": 31},
		}}, true},
		{"and", map[string]interface{}{"$and": []map[string]interface{}{
			{"name": "Alice"},
			{"age": 40},
		}}, false},
		{"nor", map[string]interface{}{"$nor": []interface{}{
			map[string]interface{}{"name": "Bob"},
		}}, true},
		{"nil matches missing", map[string]interface{}{"email": nil}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Match(record, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchErrors(t *testing.T) {
	record := map[string]interface{}{"name": "Alice"}

	_, err := Match(record, map[string]interface{}{"$where": "true"})
	assert.Error(t, err)

	_, err = Match(record, map[string]interface{}{"name": map[string]interface{}{"$in": "Alice"}})
	assert.Error(t, err)

	_, err = Match(record, map[string]interface{}{"name": map[string]interface{}{"$regex": "("}})
	assert.Error(t, err)

	_, err = Match(record, map[string]interface{}{"name": map[string]interface{}{"$bogus": 1}})
	assert.Error(t, err)
}
