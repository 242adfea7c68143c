package mongostore

import (
	"fmt"

	"github.com/kgroat/camouflage/src/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// toObjectID converts hex strings to ObjectIDs and leaves anything else
// alone, so collections keyed by custom ids keep working.
func toObjectID(id interface{}) interface{} {
	switch v := id.(type) {
	case string:
		if oid, err := primitive.ObjectIDFromHex(v); err == nil {
			return oid
		}
	case *primitive.ObjectID:
		if v != nil {
			return *v
		}
	}
	return id
}

func canonicalID(id interface{}) string {
	switch v := id.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case *primitive.ObjectID:
		if v == nil {
			return ""
		}
		return v.Hex()
	case string:
		return v
	case nil:
		return ""
	}
	return fmt.Sprint(id)
}

// castQuery rewrites _id conditions so string ids hit ObjectID keys. Plain
// values, $in/$nin lists and comparison operators are cast; logical groups
// are walked recursively.
func castQuery(query models.Query) bson.M {
	out := bson.M{}
	for key, cond := range query {
		switch key {
		case "_id":
			out[key] = castIDCondition(cond)
		case "$and", "$or", "$nor":
			out[key] = castClauses(cond)
		default:
			out[key] = cond
		}
	}
	return out
}

func castClauses(cond interface{}) interface{} {
	var clauses []interface{}
	switch c := cond.(type) {
	case []interface{}:
		clauses = c
	case []map[string]interface{}:
		for _, m := range c {
			clauses = append(clauses, m)
		}
	case []models.Query:
		for _, q := range c {
			clauses = append(clauses, q)
		}
	default:
		return cond
	}

	out := bson.A{}
	for _, clause := range clauses {
		switch q := clause.(type) {
		case models.Query:
			out = append(out, castQuery(q))
		case map[string]interface{}:
			out = append(out, castQuery(models.Query(q)))
		default:
			out = append(out, clause)
		}
	}
	return out
}

func castIDCondition(cond interface{}) interface{} {
	var ops map[string]interface{}
	switch m := cond.(type) {
	case map[string]interface{}:
		ops = m
	case bson.M:
		ops = m
	default:
		return toObjectID(cond)
	}

	out := bson.M{}
	for op, arg := range ops {
		switch op {
		case "$in", "$nin":
			out[op] = castIDList(arg)
		case "$eq", "$ne", "$gt", "$gte", "$lt", "$lte":
			out[op] = toObjectID(arg)
		default:
			out[op] = arg
		}
	}
	return out
}

func castIDList(arg interface{}) interface{} {
	switch list := arg.(type) {
	case []interface{}:
		out := make(bson.A, len(list))
		for i, id := range list {
			out[i] = toObjectID(id)
		}
		return out
	case []string:
		out := make(bson.A, len(list))
		for i, id := range list {
			out[i] = toObjectID(id)
		}
		return out
	}
	return arg
}

// sortSpec turns "name" / "-name" keys into a mongo sort document.
func sortSpec(keys []string) bson.D {
	if len(keys) == 0 {
		return nil
	}
	spec := bson.D{}
	for _, key := range keys {
		dir := 1
		switch {
		case len(key) > 0 && key[0] == '-':
			dir, key = -1, key[1:]
		case len(key) > 0 && key[0] == '+':
			key = key[1:]
		}
		spec = append(spec, bson.E{Key: key, Value: dir})
	}
	return spec
}

// setDocument prepares values for a $set, never touching _id.
func setDocument(values models.Record) bson.M {
	set := bson.M{}
	for k, v := range values {
		if k == "_id" {
			continue
		}
		set[k] = v
	}
	return set
}
