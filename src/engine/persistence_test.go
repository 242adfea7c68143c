package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kgroat/camouflage/src/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects hook calls as "Model.hook" strings.
type recorder struct {
	calls []string
}

func (r *recorder) hook(name string) Hook {
	return func(ctx context.Context, doc *Document) error {
		r.calls = append(r.calls, fmt.Sprintf("%s.%s", doc.Model().Name(), name))
		return nil
	}
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		PreValidate:  r.hook("preValidate"),
		PostValidate: r.hook("postValidate"),
		PreSave:      r.hook("preSave"),
		PostSave:     r.hook("postSave"),
		PreDelete:    r.hook("preDelete"),
		PostDelete:   r.hook("postDelete"),
	}
}

func TestSaveAssignsIDAndLoads(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	_, wallet := defineWallet(t, reg)

	doc, err := wallet.Create(map[string]interface{}{
		"owner":    "Ada",
		"contents": []interface{}{map[string]interface{}{"value": 3}},
		"opened":   1600000000000,
	})
	require.NoError(t, err)
	require.NoError(t, doc.Save(ctx))
	require.NotEmpty(t, doc.ID())
	assert.True(t, reg.Backend().IsNativeID(doc.ID()))

	loaded, err := wallet.LoadByID(ctx, doc.ID(), models.FindOptions{})
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, doc.ToSerializable(), loaded.ToSerializable())

	// saving again updates in place
	doc.Set("owner", "Grace")
	require.NoError(t, doc.Save(ctx))
	count, err := wallet.Count(ctx, models.Query{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	loaded, err = wallet.LoadOne(ctx, models.Query{"owner": "Grace"}, models.FindOptions{})
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, doc.ID(), loaded.ID())

	missing, err := wallet.LoadByID(ctx, "3f0e8a2c-1111-4c2d-9e3b-000000000000", models.FindOptions{})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSaveValidationFailureDoesNotPersist(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	money, wallet := defineWallet(t, reg)

	doc := wallet.New()
	bad := money.New()
	bad.Set("currency", "XXX")
	doc.Set("primary", bad)

	var valErr *ValidationError
	require.ErrorAs(t, doc.Save(ctx), &valErr)
	assert.Equal(t, "", doc.ID())

	count, err := wallet.Count(ctx, models.Query{})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestHookOrder(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	rec := &recorder{}

	reg.MustDefine(ModelDef{Name: "Leaf", Embedded: true, Fields: []Field{F("n", Number)}, Hooks: rec.hooks()})
	reg.MustDefine(ModelDef{
		Name:     "Branch",
		Embedded: true,
		Fields:   []Field{F("leaves", ArrayOf(Embed("Leaf")))},
		Hooks:    rec.hooks(),
	})
	tree := reg.MustDefine(ModelDef{
		Name:   "Tree",
		Fields: []Field{F("branch", Embed("Branch")), F("top", Embed("Leaf"))},
		Hooks:  rec.hooks(),
	})

	doc, err := tree.Create(map[string]interface{}{
		"branch": map[string]interface{}{"leaves": []interface{}{
			map[string]interface{}{"n": 1},
			map[string]interface{}{"n": 2},
		}},
		"top": map[string]interface{}{"n": 3},
	})
	require.NoError(t, err)
	require.NoError(t, doc.Save(ctx))

	cascade := func(hook string) []string {
		return []string{"Leaf." + hook, "Leaf." + hook, "Branch." + hook, "Leaf." + hook, "Tree." + hook}
	}
	var want []string
	for _, hook := range []string{"preValidate", "postValidate", "preSave", "postSave"} {
		want = append(want, cascade(hook)...)
	}
	assert.Equal(t, want, rec.calls)

	rec.calls = nil
	n, err := doc.Delete(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, append(cascade("preDelete"), cascade("postDelete")...), rec.calls)
}

// orderedBackend records when the backend delete happens relative to hooks.
type orderedBackend struct {
	models.Backend
	log *[]string
}

func (b *orderedBackend) Delete(ctx context.Context, coll string, id interface{}) (int, error) {
	*b.log = append(*b.log, "backend.delete")
	return b.Backend.Delete(ctx, coll, id)
}

func TestDeleteScenario(t *testing.T) {
	ctx := context.Background()
	var log []string
	base := newTestRegistry(t)
	reg := NewRegistry(&orderedBackend{Backend: base.Backend(), log: &log}, nil)

	note := reg.MustDefine(ModelDef{
		Name:   "Note",
		Fields: []Field{F("text", String)},
		Hooks: Hooks{
			PreDelete: func(ctx context.Context, doc *Document) error {
				log = append(log, "preDelete")
				return nil
			},
			PostDelete: func(ctx context.Context, doc *Document) error {
				log = append(log, "postDelete")
				return nil
			},
		},
	})

	doc, err := note.Create(map[string]interface{}{"text": "hello"})
	require.NoError(t, err)
	require.NoError(t, doc.Save(ctx))

	n, err := doc.Delete(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"preDelete", "backend.delete", "postDelete"}, log)

	loaded, err := note.LoadByID(ctx, doc.ID(), models.FindOptions{})
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestHookErrorAborts(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	boom := errors.New("boom")
	saved := false

	note := reg.MustDefine(ModelDef{
		Name:   "Note",
		Fields: []Field{F("text", String)},
		Hooks: Hooks{
			PreSave:  func(ctx context.Context, doc *Document) error { return boom },
			PostSave: func(ctx context.Context, doc *Document) error { saved = true; return nil },
		},
	})

	doc := note.New()
	assert.ErrorIs(t, doc.Save(ctx), boom)
	assert.False(t, saved)
	assert.Equal(t, "", doc.ID())
}

func TestEmbeddedModelsHaveNoPersistence(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	money, _ := defineWallet(t, reg)

	var notOverridden *NotOverriddenError
	assert.ErrorAs(t, money.New().Save(ctx), &notOverridden)
	assert.Equal(t, "Save", notOverridden.Method)

	_, err := money.New().Delete(ctx)
	assert.ErrorAs(t, err, &notOverridden)

	_, err = money.LoadByID(ctx, "x", models.FindOptions{})
	assert.ErrorAs(t, err, &notOverridden)
	_, err = money.LoadMany(ctx, models.Query{}, models.FindOptions{})
	assert.ErrorAs(t, err, &notOverridden)
	_, err = money.Count(ctx, models.Query{})
	assert.ErrorAs(t, err, &notOverridden)
	assert.ErrorAs(t, money.ClearCollection(ctx), &notOverridden)
}

func TestNoBackend(t *testing.T) {
	reg := NewRegistry(nil, nil)
	note := reg.MustDefine(ModelDef{Name: "Note", Fields: []Field{F("text", String)}})
	assert.ErrorIs(t, note.New().Save(context.Background()), ErrNoBackend)
}

func TestBackendErrorsPassThrough(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	note := reg.MustDefine(ModelDef{Name: "Note", Fields: []Field{F("text", String)}})
	require.NoError(t, reg.Backend().Close(ctx))

	err := note.New().Save(ctx)
	var backendErr *models.BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, "notes", backendErr.Collection)
	assert.ErrorIs(t, err, models.ErrClosed)
}

func TestModelQueries(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	item := reg.MustDefine(ModelDef{
		Name:   "Item",
		Fields: []Field{F("name", String), F("rank", Number)},
	})

	docs, err := item.CreateMany([]map[string]interface{}{
		{"name": "a", "rank": 3},
		{"name": "b", "rank": 1},
		{"name": "c", "rank": 2},
		{"name": "d", "rank": 5},
	})
	require.NoError(t, err)
	for _, doc := range docs {
		require.NoError(t, doc.Save(ctx))
	}

	sorted, err := item.LoadMany(ctx, models.Query{}, models.FindOptions{Sort: []string{"rank"}, Limit: 3})
	require.NoError(t, err)
	require.Len(t, sorted, 3)
	assert.Equal(t, []interface{}{"b", "c", "a"}, []interface{}{sorted[0].Get("name"), sorted[1].Get("name"), sorted[2].Get("name")})

	updated, err := item.FindOneAndUpdate(ctx, models.Query{"name": "a"}, map[string]interface{}{"rank": 9}, models.UpdateOptions{})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, 9, updated.Get("rank"))
	assert.Equal(t, docs[0].ID(), updated.ID())

	n, err := item.DeleteOne(ctx, models.Query{"name": "b"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = item.FindOneAndDelete(ctx, models.Query{"name": "c"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = item.DeleteMany(ctx, models.Query{"rank": map[string]interface{}{"$gt": 4}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, item.ClearCollection(ctx))
	count, err := item.Count(ctx, models.Query{})
	require.NoError(t, err)
	assert.Zero(t, count)
}
