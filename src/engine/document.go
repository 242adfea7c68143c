package engine

import (
	"time"

	"github.com/kgroat/camouflage/src/helpers"
)

// Document is an instance of a model. Schema fields live in an ordered
// values map, anything else is a plain property of the instance. Get, Set,
// Has and DeleteField route between the two so callers need not care which is
// which.
//
// A Document belongs to one goroutine at a time.
type Document struct {
	model  *Model
	schema *Schema
	values *valueMap
	props  *valueMap

	// original id lists of populated array fields
	refIDs map[string][]interface{}
}

// newDocument builds an instance holding the schema defaults.
func newDocument(m *Model) *Document {
	schema, helperFields := m.snapshot()

	doc := &Document{
		model:  m,
		schema: schema,
		values: newValueMap(schema.Len()),
		props:  newValueMap(len(helperFields)),
	}
	for _, name := range schema.names {
		doc.values.set(name, defaultValue(schema.specs[name]))
	}
	for _, f := range helperFields {
		if factory, ok := f.Decl.(func() interface{}); ok {
			doc.props.set(f.Name, factory())
			continue
		}
		doc.props.set(f.Name, f.Decl)
	}
	return doc
}

func (d *Document) Model() *Model { return d.model }

// Schema is the schema this instance was built with.
func (d *Document) Schema() *Schema { return d.schema }

// Lookup reads a property: schema fields first, then the id alias, then
// plain properties, then virtuals.
func (d *Document) Lookup(name string) (interface{}, bool) {
	if d.schema.Has(name) {
		return d.values.get(name)
	}
	if name == aliasField && d.schema.Has(idField) {
		return d.values.get(idField)
	}
	if v, ok := d.props.get(name); ok {
		return v, true
	}
	for _, virt := range d.model.virtuals {
		if virt.Name == name {
			return virt.Get(d), true
		}
	}
	return nil, false
}

// Get is Lookup without the presence flag.
func (d *Document) Get(name string) interface{} {
	v, _ := d.Lookup(name)
	return v
}

// Set writes a schema field, the id alias, or a plain property.
func (d *Document) Set(name string, value interface{}) {
	if spec, ok := d.schema.Spec(name); ok {
		d.values.set(name, normalizeArray(spec.Type, value))
		if IsArray(spec.Type) {
			delete(d.refIDs, name)
		}
		return
	}
	if name == aliasField && d.schema.Has(idField) {
		d.values.set(idField, value)
		return
	}
	d.props.set(name, value)
}

// Has reports schema fields and properties alike.
func (d *Document) Has(name string) bool {
	_, ok := d.Lookup(name)
	return ok
}

// DeleteField removes a field from this instance's schema and values, or
// drops a plain property.
func (d *Document) DeleteField(name string) {
	if name == aliasField {
		name = idField
	}
	if d.schema.Has(name) {
		d.schema = d.schema.clone()
		d.schema.remove(name)
		d.values.del(name)
		delete(d.refIDs, name)
		return
	}
	d.props.del(name)
}

// Append pushes values onto an array field.
func (d *Document) Append(name string, items ...interface{}) error {
	spec, ok := d.schema.Spec(name)
	if !ok || !IsArray(spec.Type) {
		return &SchemaError{Model: d.model.name, Field: name, Reason: "not an array field"}
	}
	current, _ := d.values.get(name)
	list, _ := toSlice(current)
	d.values.set(name, append(list, items...))
	return nil
}

// ID returns the canonical id, or "" for unsaved and embedded documents.
func (d *Document) ID() string {
	id, _ := d.values.get(idField)
	if id == nil {
		return ""
	}
	if s, ok := d.model.reg.canonicalID(id).(string); ok {
		return s
	}
	return ""
}

// RefIDs returns the ids an array field held before it was populated.
func (d *Document) RefIDs(name string) []interface{} {
	return append([]interface{}(nil), d.refIDs[name]...)
}

func (d *Document) GetString(name string) string {
	s, _ := d.Get(name).(string)
	return s
}

func (d *Document) GetNumber(name string) float64 {
	f, _ := helpers.ToFloat(d.Get(name))
	return f
}

func (d *Document) GetBool(name string) bool {
	b, _ := d.Get(name).(bool)
	return b
}

func (d *Document) GetTime(name string) time.Time {
	switch v := d.Get(name).(type) {
	case time.Time:
		return v
	default:
		if ms, ok := helpers.ToFloat(v); ok {
			return helpers.TimeFromMillis(ms)
		}
	}
	return time.Time{}
}

func (d *Document) GetBytes(name string) []byte {
	b, _ := d.Get(name).([]byte)
	return b
}

// GetDoc returns an embedded or populated document, nil for bare ids.
func (d *Document) GetDoc(name string) *Document {
	doc, _ := d.Get(name).(*Document)
	return doc
}

func (d *Document) GetArray(name string) []interface{} {
	list, _ := toSlice(d.Get(name))
	return list
}

// GetDocs returns the document elements of an array field.
func (d *Document) GetDocs(name string) []*Document {
	var out []*Document
	for _, item := range d.GetArray(name) {
		if doc, ok := item.(*Document); ok {
			out = append(out, doc)
		}
	}
	return out
}

func normalizeArray(t FieldType, value interface{}) interface{} {
	if !IsArray(t) || value == nil {
		return value
	}
	if list, ok := toSlice(value); ok {
		owned := make([]interface{}, len(list))
		copy(owned, list)
		return owned
	}
	return value
}

// embeddeds lists the embedded documents held directly by d, in field order
// and array index order.
func (d *Document) embeddeds() []*Document {
	var out []*Document
	for _, name := range d.schema.names {
		v, _ := d.values.get(name)
		if IsEmbeddedDocument(v) {
			out = append(out, v.(*Document))
			continue
		}
		if list, ok := v.([]interface{}); ok {
			for _, item := range list {
				if IsEmbeddedDocument(item) {
					out = append(out, item.(*Document))
				}
			}
		}
	}
	return out
}
