package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defineProfile(t *testing.T) *Model {
	t.Helper()
	reg := NewRegistry(nil, nil)
	reg.MustDefine(ModelDef{Name: "Money", Embedded: true, Fields: []Field{F("value", Number)}})
	return reg.MustDefine(ModelDef{
		Name: "Profile",
		Fields: []Field{
			F("first", String),
			F("last", String),
			F("active", Boolean),
			F("born", Date),
			F("avatar", Buffer),
			F("tags", ArrayOf(String)),
			F("balance", Embed("Money")),
			F("_visits", 0),
		},
		Virtuals: []Virtual{{
			Name: "fullName",
			Get: func(doc *Document) interface{} {
				return doc.GetString("first") + " " + doc.GetString("last")
			},
		}},
	})
}

func TestDocumentAccessors(t *testing.T) {
	profile := defineProfile(t)
	doc := profile.New()

	doc.Set("first", "Ada")
	doc.Set("last", "Lovelace")
	doc.Set("active", true)
	born := time.Date(1815, 12, 10, 0, 0, 0, 0, time.UTC)
	doc.Set("born", born)
	doc.Set("avatar", []byte{1, 2})

	assert.Equal(t, "Ada", doc.GetString("first"))
	assert.True(t, doc.GetBool("active"))
	assert.Equal(t, born, doc.GetTime("born"))
	assert.Equal(t, []byte{1, 2}, doc.GetBytes("avatar"))
	assert.Equal(t, "Ada Lovelace", doc.Get("fullName"))
	assert.Equal(t, 0, doc.Get("_visits"))
	assert.Same(t, profile, doc.Model())

	doc.Set("born", 0)
	assert.Equal(t, time.UnixMilli(0).UTC(), doc.GetTime("born").UTC())
}

func TestDocumentIDAlias(t *testing.T) {
	doc := defineProfile(t).New()
	assert.Equal(t, "", doc.ID())

	doc.Set("id", "abc")
	assert.Equal(t, "abc", doc.Get("_id"))
	assert.Equal(t, "abc", doc.Get("id"))
	assert.Equal(t, "abc", doc.ID())
	assert.True(t, doc.Has("id"))
}

func TestDocumentProperties(t *testing.T) {
	doc := defineProfile(t).New()

	assert.False(t, doc.Has("nickname"))
	doc.Set("nickname", "Countess")
	assert.True(t, doc.Has("nickname"))
	assert.Equal(t, "Countess", doc.Get("nickname"))
	assert.False(t, doc.Schema().Has("nickname"))

	doc.DeleteField("nickname")
	assert.False(t, doc.Has("nickname"))

	assert.True(t, doc.Has("fullName"))
	assert.Nil(t, doc.Get("missing"))
}

func TestDocumentDeleteField(t *testing.T) {
	profile := defineProfile(t)
	doc := profile.New()
	other := profile.New()

	doc.DeleteField("last")
	assert.False(t, doc.Has("last"))
	assert.NotContains(t, doc.ToSerializable(), "last")

	assert.True(t, other.Has("last"))
	assert.Contains(t, profile.Fields(), "last")
}

func TestDocumentArrays(t *testing.T) {
	doc := defineProfile(t).New()

	assert.Equal(t, []interface{}{}, doc.GetArray("tags"))

	doc.Set("tags", []string{"a", "b"})
	assert.Equal(t, []interface{}{"a", "b"}, doc.Get("tags"))

	require.NoError(t, doc.Append("tags", "c"))
	assert.Equal(t, []interface{}{"a", "b", "c"}, doc.GetArray("tags"))

	var schemaErr *SchemaError
	assert.ErrorAs(t, doc.Append("first", "x"), &schemaErr)
	assert.ErrorAs(t, doc.Append("nope", "x"), &schemaErr)
}

func TestDocumentEmbedded(t *testing.T) {
	profile := defineProfile(t)
	money, _ := profile.Registry().Model("Money")

	doc := profile.New()
	assert.Nil(t, doc.GetDoc("balance"))

	cash := money.New()
	cash.Set("value", 12)
	doc.Set("balance", cash)
	assert.Same(t, cash, doc.GetDoc("balance"))
	assert.Equal(t, 12.0, doc.GetDoc("balance").GetNumber("value"))
	assert.Equal(t, []*Document{cash}, doc.embeddeds())
	assert.Equal(t, "", cash.ID())
}
