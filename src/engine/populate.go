package engine

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// populateConcurrency caps the loads one Populate call keeps in flight.
const populateConcurrency = 16

// refLoad is the shared result of loading one (model, id) pair.
type refLoad struct {
	doc *Document
	err error
}

// populateCache lives for a single Populate call. It is keyed by model name
// and then canonical id, so every referenced record is loaded once no
// matter how many documents point at it.
type populateCache struct {
	mu    sync.Mutex
	loads map[string]map[string]*refLoad
}

func newPopulateCache() *populateCache {
	return &populateCache{loads: make(map[string]map[string]*refLoad)}
}

// load returns the entry for (target, id), starting the backend load on
// the group when it is the first request for the pair.
func (c *populateCache) load(ctx context.Context, g *errgroup.Group, target *Model, id interface{}) *refLoad {
	reg := target.reg
	key, _ := reg.canonicalID(id).(string)

	c.mu.Lock()
	byID, ok := c.loads[target.name]
	if !ok {
		byID = make(map[string]*refLoad)
		c.loads[target.name] = byID
	}
	if entry, ok := byID[key]; ok {
		c.mu.Unlock()
		return entry
	}
	entry := &refLoad{}
	byID[key] = entry
	c.mu.Unlock()

	g.Go(func() error {
		rec, err := reg.backend.LoadByID(ctx, target.collection, reg.nativeID(id))
		if err != nil {
			entry.err = err
			return err
		}
		if rec == nil {
			return nil
		}
		doc, err := target.fromRecord(rec)
		if err != nil {
			entry.err = err
			return err
		}
		entry.doc = doc
		return nil
	})
	return entry
}

type refSlot struct {
	doc   *Document
	field string
	// index into the array, -1 for scalar fields
	index int
	load  *refLoad
}

// Populate replaces stored reference ids with the documents they point at.
// Loads run concurrently and identical references share one load. Array
// fields keep their order and the original ids stay available through
// RefIDs. Ids that match no record are left in place. fields restricts the
// fields considered; none means all reference fields.
//
// Each document is scanned with its own schema, so mixed model lists are
// fine.
func Populate(ctx context.Context, docs []*Document, fields ...string) error {
	if len(docs) == 0 {
		return nil
	}

	var wanted map[string]bool
	if len(fields) > 0 {
		wanted = make(map[string]bool, len(fields))
		for _, f := range fields {
			wanted[f] = true
		}
	}

	cache := newPopulateCache()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(populateConcurrency)

	var slots []refSlot
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		reg := doc.model.reg
		if reg.backend == nil {
			return ErrNoBackend
		}

		for _, name := range doc.schema.names {
			if wanted != nil && !wanted[name] {
				continue
			}
			spec := doc.schema.specs[name]
			if spec.Type.Base().Kind != KindReference {
				continue
			}
			target, err := reg.resolve(doc.model.name, name, spec.Type.Base())
			if err != nil {
				return err
			}

			value, _ := doc.values.get(name)
			if IsArray(spec.Type) {
				items, _ := value.([]interface{})
				for i, item := range items {
					if _, resolved := item.(*Document); resolved || item == nil || !reg.isID(item) {
						continue
					}
					slots = append(slots, refSlot{doc: doc, field: name, index: i, load: cache.load(gctx, g, target, item)})
				}
				continue
			}
			if _, resolved := value.(*Document); resolved || value == nil || !reg.isID(value) {
				continue
			}
			slots = append(slots, refSlot{doc: doc, field: name, index: -1, load: cache.load(gctx, g, target, value)})
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}

	for _, slot := range slots {
		if slot.load.doc == nil {
			continue
		}
		doc := slot.doc
		if slot.index < 0 {
			doc.values.set(slot.field, slot.load.doc)
			continue
		}

		value, _ := doc.values.get(slot.field)
		items := value.([]interface{})
		if _, kept := doc.refIDs[slot.field]; !kept {
			if doc.refIDs == nil {
				doc.refIDs = make(map[string][]interface{})
			}
			doc.refIDs[slot.field] = append([]interface{}(nil), items...)
		}
		items[slot.index] = slot.load.doc
	}

	if len(slots) > 0 {
		slots[0].doc.model.reg.logger.Debugw("Populated references",
			"documents", len(docs),
			"references", len(slots))
	}
	return nil
}

// Populate resolves the reference fields of a single document.
func (d *Document) Populate(ctx context.Context, fields ...string) error {
	return Populate(ctx, []*Document{d}, fields...)
}
