package mongostore

import (
	"testing"

	"github.com/kgroat/camouflage/src/models"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestToObjectID(t *testing.T) {
	oid := primitive.NewObjectID()

	assert.Equal(t, oid, toObjectID(oid.Hex()))
	assert.Equal(t, oid, toObjectID(&oid))
	assert.Equal(t, "custom-key", toObjectID("custom-key"))
	assert.Equal(t, 42, toObjectID(42))
}

func TestCanonicalID(t *testing.T) {
	oid := primitive.NewObjectID()

	assert.Equal(t, oid.Hex(), canonicalID(oid))
	assert.Equal(t, oid.Hex(), canonicalID(&oid))
	assert.Equal(t, "abc", canonicalID("abc"))
	assert.Equal(t, "", canonicalID(nil))
	assert.Equal(t, "7", canonicalID(7))
}

func TestCastQuery(t *testing.T) {
	a, b := primitive.NewObjectID(), primitive.NewObjectID()

	cast := castQuery(models.Query{
		"_id":  a.Hex(),
		"name": "Alice",
	})
	assert.Equal(t, a, cast["_id"])
	assert.Equal(t, "Alice", cast["name"])

	cast = castQuery(models.Query{
		"_id": map[string]interface{}{"$in": []interface{}{a.Hex(), b.Hex()}},
	})
	assert.Equal(t, bson.M{"$in": bson.A{a, b}}, cast["_id"])

	cast = castQuery(models.Query{
		"_id": map[string]interface{}{"$nin": []string{a.Hex()}, "$ne": b.Hex()},
	})
	assert.Equal(t, bson.M{"$nin": bson.A{a}, "$ne": b}, cast["_id"])

	cast = castQuery(models.Query{
		"$or": []interface{}{
			map[string]interface{}{"_id": a.Hex()},
			models.Query{"name": "Bob"},
		},
	})
	assert.Equal(t, bson.A{bson.M{"_id": a}, bson.M{"name": "Bob"}}, cast["$or"])
}

func TestSortSpec(t *testing.T) {
	assert.Nil(t, sortSpec(nil))
	assert.Equal(t, bson.D{
		{Key: "age", Value: -1},
		{Key: "name", Value: 1},
		{Key: "city", Value: 1},
	}, sortSpec([]string{"-age", "name", "+city"}))
}

func TestSetDocumentSkipsID(t *testing.T) {
	set := setDocument(models.Record{"_id": "x", "name": "Alice"})
	assert.Equal(t, bson.M{"name": "Alice"}, set)
}

func TestStoreIDs(t *testing.T) {
	s := &Store{}
	oid := primitive.NewObjectID()

	assert.True(t, s.IsNativeID(oid))
	assert.True(t, s.IsNativeID(oid.Hex()))
	assert.False(t, s.IsNativeID("not-an-object-id"))
	assert.False(t, s.IsNativeID(nil))
	assert.Equal(t, oid, s.NativeID(oid.Hex()))
	assert.Equal(t, oid.Hex(), s.ToCanonicalID(oid))
	assert.Equal(t, "ObjectID", s.NativeIDType().Name())
}
