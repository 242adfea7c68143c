package engine

import (
	"context"

	"github.com/kgroat/camouflage/src/models"
)

type hookPicker func(Hooks) Hook

func preValidate(h Hooks) Hook { return h.PreValidate }
func postValidate(h Hooks) Hook { return h.PostValidate }
func preSave(h Hooks) Hook { return h.PreSave }
func postSave(h Hooks) Hook { return h.PostSave }
func preDelete(h Hooks) Hook { return h.PreDelete }
func postDelete(h Hooks) Hook { return h.PostDelete }

// runHooks calls the picked hook on every embedded document reachable from
// d, depth first and in field then index order, and finally on d itself.
func (d *Document) runHooks(ctx context.Context, pick hookPicker) error {
	for _, child := range d.embeddeds() {
		if err := child.runHooks(ctx, pick); err != nil {
			return err
		}
	}
	if hook := pick(d.model.hooks); hook != nil {
		return hook(ctx, d)
	}
	return nil
}

// Save validates, canonicalizes and persists the document, running the
// validate and save hooks around each phase. A new document gets the id the
// backend assigned. Backend errors are returned unchanged.
func (d *Document) Save(ctx context.Context) error {
	if err := d.model.requireIdentity("Save"); err != nil {
		return err
	}
	backend, err := d.model.backend()
	if err != nil {
		return err
	}

	if err := d.runHooks(ctx, preValidate); err != nil {
		return err
	}
	if err := d.Validate(); err != nil {
		return err
	}
	if err := d.runHooks(ctx, postValidate); err != nil {
		return err
	}

	d.Canonicalize()

	if err := d.runHooks(ctx, preSave); err != nil {
		return err
	}

	current, _ := d.values.get(idField)
	id, err := backend.Save(ctx, d.model.collection, d.model.reg.nativeID(current), d.toData())
	if err != nil {
		return err
	}
	d.values.set(idField, id)

	d.model.reg.logger.Debugw("Saved document",
		"model", d.model.name,
		"collection", d.model.collection,
		"id", id)

	return d.runHooks(ctx, postSave)
}

// Delete removes the document from its collection between the delete hooks
// and returns the number of records removed.
func (d *Document) Delete(ctx context.Context) (int, error) {
	if err := d.model.requireIdentity("Delete"); err != nil {
		return 0, err
	}
	backend, err := d.model.backend()
	if err != nil {
		return 0, err
	}

	if err := d.runHooks(ctx, preDelete); err != nil {
		return 0, err
	}

	current, _ := d.values.get(idField)
	count, err := backend.Delete(ctx, d.model.collection, d.model.reg.nativeID(current))
	if err != nil {
		return 0, err
	}

	d.model.reg.logger.Debugw("Deleted document",
		"model", d.model.name,
		"collection", d.model.collection,
		"id", current,
		"count", count)

	if err := d.runHooks(ctx, postDelete); err != nil {
		return count, err
	}
	return count, nil
}

// fromRecord builds an instance from a stored record.
func (m *Model) fromRecord(rec models.Record) (*Document, error) {
	doc := newDocument(m)
	if err := doc.Fill(map[string]interface{}(rec)); err != nil {
		return nil, err
	}
	return doc, nil
}

func (m *Model) collectionBackend(method string) (models.Backend, error) {
	if err := m.requireIdentity(method); err != nil {
		return nil, err
	}
	return m.backend()
}

// LoadByID returns the document stored under id, or nil when there is none.
func (m *Model) LoadByID(ctx context.Context, id interface{}, opts models.FindOptions) (*Document, error) {
	backend, err := m.collectionBackend("LoadByID")
	if err != nil {
		return nil, err
	}

	rec, err := backend.LoadByID(ctx, m.collection, m.reg.nativeID(id))
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	return m.loaded(ctx, rec, opts)
}

// LoadOne returns the first match of query, or nil.
func (m *Model) LoadOne(ctx context.Context, query models.Query, opts models.FindOptions) (*Document, error) {
	backend, err := m.collectionBackend("LoadOne")
	if err != nil {
		return nil, err
	}

	rec, err := backend.LoadOne(ctx, m.collection, query, opts)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	return m.loaded(ctx, rec, opts)
}

// LoadMany returns every match of query honouring sort, skip and limit.
func (m *Model) LoadMany(ctx context.Context, query models.Query, opts models.FindOptions) ([]*Document, error) {
	backend, err := m.collectionBackend("LoadMany")
	if err != nil {
		return nil, err
	}

	recs, err := backend.LoadMany(ctx, m.collection, query, opts)
	if err != nil {
		return nil, err
	}

	docs := make([]*Document, 0, len(recs))
	for _, rec := range recs {
		doc, err := m.fromRecord(rec)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	if !opts.SkipPopulate {
		if err := Populate(ctx, docs, opts.Populate...); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

func (m *Model) loaded(ctx context.Context, rec models.Record, opts models.FindOptions) (*Document, error) {
	doc, err := m.fromRecord(rec)
	if err != nil {
		return nil, err
	}
	if !opts.SkipPopulate {
		if err := doc.Populate(ctx, opts.Populate...); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func (m *Model) Count(ctx context.Context, query models.Query) (int, error) {
	backend, err := m.collectionBackend("Count")
	if err != nil {
		return 0, err
	}
	return backend.Count(ctx, m.collection, query)
}

// DeleteOne removes the first match of query without running hooks.
func (m *Model) DeleteOne(ctx context.Context, query models.Query) (int, error) {
	backend, err := m.collectionBackend("DeleteOne")
	if err != nil {
		return 0, err
	}
	return backend.DeleteOne(ctx, m.collection, query)
}

// DeleteMany removes every match of query without running hooks.
func (m *Model) DeleteMany(ctx context.Context, query models.Query) (int, error) {
	backend, err := m.collectionBackend("DeleteMany")
	if err != nil {
		return 0, err
	}
	return backend.DeleteMany(ctx, m.collection, query)
}

// FindOneAndUpdate sets values on the first match of query and returns the
// updated document. With Upsert a missing match is inserted. The values are
// written as given, they do not pass through Validate.
func (m *Model) FindOneAndUpdate(ctx context.Context, query models.Query, values map[string]interface{}, opts models.UpdateOptions) (*Document, error) {
	backend, err := m.collectionBackend("FindOneAndUpdate")
	if err != nil {
		return nil, err
	}

	rec, err := backend.FindOneAndUpdate(ctx, m.collection, query, models.Record(values), opts)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	return m.loaded(ctx, rec, models.FindOptions{})
}

func (m *Model) FindOneAndDelete(ctx context.Context, query models.Query) (int, error) {
	backend, err := m.collectionBackend("FindOneAndDelete")
	if err != nil {
		return 0, err
	}
	return backend.FindOneAndDelete(ctx, m.collection, query)
}

// ClearCollection removes every record of the model.
func (m *Model) ClearCollection(ctx context.Context) error {
	backend, err := m.collectionBackend("ClearCollection")
	if err != nil {
		return err
	}
	return backend.ClearCollection(ctx, m.collection)
}
