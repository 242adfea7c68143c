package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kgroat/camouflage/src/helpers"
	"github.com/kgroat/camouflage/src/models"
)

// New returns an instance holding the schema defaults.
func (m *Model) New() *Document {
	return newDocument(m)
}

// Create instantiates the model and fills it from data. data may be nil, a
// record, or a bare native id.
func (m *Model) Create(data interface{}) (*Document, error) {
	if data != nil {
		if _, isRecord := asRecord(data); !isRecord {
			if _, isList := toSlice(data); isList {
				return nil, fmt.Errorf("%s.Create got a list, use CreateMany", m.name)
			}
		}
	}

	doc := newDocument(m)
	if data == nil {
		return doc, nil
	}
	if err := doc.Fill(data); err != nil {
		return nil, err
	}
	return doc, nil
}

// CreateMany creates one independent instance per element, in input order.
func (m *Model) CreateMany(data interface{}) ([]*Document, error) {
	items, ok := toSlice(data)
	if !ok {
		return nil, fmt.Errorf("%s.CreateMany expects a list, got %T", m.name, data)
	}

	docs := make([]*Document, 0, len(items))
	for _, item := range items {
		doc, err := m.Create(item)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func asRecord(v interface{}) (map[string]interface{}, bool) {
	switch r := v.(type) {
	case map[string]interface{}:
		return r, true
	case models.Record:
		return map[string]interface{}(r), true
	}
	return nil, false
}

// Fill copies newValues into the document. Schema fields missing from
// newValues keep their current value. A bare native id sets only _id.
func (d *Document) Fill(newValues interface{}) error {
	if newValues == nil {
		return nil
	}
	reg := d.model.reg

	data, ok := asRecord(newValues)
	if !ok {
		if d.schema.Has(idField) && reg.isNativeID(newValues) {
			d.values.set(idField, reg.canonicalID(newValues))
			return nil
		}
		return fmt.Errorf("%w: %s got %T", ErrBadFillPayload, d.model.name, newValues)
	}

	if _, has := data[idField]; !has {
		if alias, ok := data[aliasField]; ok && d.schema.Has(idField) {
			d.values.set(idField, reg.canonicalID(alias))
		}
	}

	for _, name := range d.schema.names {
		spec := d.schema.specs[name]

		value, present := data[name]
		if !present {
			if current, _ := d.values.get(name); current == nil {
				d.values.set(name, defaultValue(spec))
			}
			continue
		}

		if name == idField {
			d.values.set(idField, reg.canonicalID(value))
			continue
		}

		// a map over an existing instance of the same model fills it in place
		if current, ok := d.values.get(name); ok && spec.Type.isModel() {
			existing, isDoc := current.(*Document)
			raw, isRaw := asRecord(value)
			if isDoc && isRaw && existing != nil && existing.model.name == spec.Type.Model {
				if err := existing.Fill(raw); err != nil {
					return err
				}
				continue
			}
		}

		converted, err := d.fillValue(name, spec.Type, value)
		if err != nil {
			return err
		}
		d.values.set(name, converted)
		if IsArray(spec.Type) {
			delete(d.refIDs, name)
		}
	}

	// plain properties take matching keys as they are
	extra := make([]string, 0)
	for key := range data {
		if key == aliasField || d.schema.Has(key) {
			continue
		}
		if _, isProp := d.props.get(key); isProp {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		d.props.set(key, data[key])
	}

	return nil
}

func (d *Document) fillValue(field string, t FieldType, value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}

	switch t.Kind {
	case KindReference, KindEmbedded:
		if doc, ok := value.(*Document); ok {
			return doc, nil
		}
		raw, ok := asRecord(value)
		if !ok {
			// bare id, left unresolved
			if t.Kind == KindReference && d.model.reg.isNativeID(value) {
				return d.model.reg.canonicalID(value), nil
			}
			return value, nil
		}
		target, err := d.model.reg.resolve(d.model.name, field, t)
		if err != nil {
			return nil, err
		}
		nested := newDocument(target)
		if err := nested.Fill(raw); err != nil {
			return nil, err
		}
		return nested, nil
	case KindArray:
		items, ok := toSlice(value)
		if !ok {
			return value, nil
		}
		out := make([]interface{}, len(items))
		for i, item := range items {
			converted, err := d.fillValue(field, *t.Elem, item)
			if err != nil {
				return nil, err
			}
			out[i] = converted
		}
		return out, nil
	}
	return value, nil
}

// Validate checks every field in schema order and returns the first
// violation as a *ValidationError. Embedded documents validate themselves.
func (d *Document) Validate() error {
	for _, name := range d.schema.names {
		spec := d.schema.specs[name]
		value, _ := d.values.get(name)

		if IsEmbeddedDocument(value) {
			if err := value.(*Document).Validate(); err != nil {
				return err
			}
			continue
		}
		if err := d.validateField(name, spec, value); err != nil {
			return err
		}
	}
	return nil
}

func (d *Document) validateField(name string, spec FieldSpec, value interface{}) error {
	collection := d.model.collection

	if isNil(value) {
		if spec.Required {
			return newValidationError(collection, name, value,
				"Key %s.%s is required, but got %v", collection, name, value)
		}
		return nil
	}

	if !isValidType(value, spec.Type, d.model.reg.isID) {
		return newValidationError(collection, name, value,
			"Value assigned to %s.%s should be %s, got %s", collection, name, spec.Type, kindOf(value))
	}

	if IsArray(spec.Type) {
		items, _ := toSlice(value)
		for _, item := range items {
			if IsEmbeddedDocument(item) {
				if err := item.(*Document).Validate(); err != nil {
					return err
				}
				continue
			}
			if isNil(item) {
				continue
			}
			if err := d.checkConstraints(name, spec, item); err != nil {
				return err
			}
		}
	} else if err := d.checkConstraints(name, spec, value); err != nil {
		return err
	}

	if spec.Validate != nil && !spec.Validate(value) {
		return newValidationError(collection, name, value,
			"Value assigned to %s.%s failed custom validator. Value was %v", collection, name, value)
	}
	return nil
}

// checkConstraints applies match, choices, min and max to one value.
func (d *Document) checkConstraints(name string, spec FieldSpec, value interface{}) error {
	collection := d.model.collection

	if s, ok := value.(string); ok && spec.Match != nil && !spec.Match.MatchString(s) {
		return newValidationError(collection, name, value,
			"Value assigned to %s.%s does not match the regex/string %s. Value was %v",
			collection, name, spec.Match.String(), value)
	}

	if !IsInChoices(spec.Choices, value) {
		return newValidationError(collection, name, value,
			"Value assigned to %s.%s should be in choices [%s], got %v",
			collection, name, joinChoices(spec.Choices), value)
	}

	bounded, ok := boundValue(value)
	if !ok {
		return nil
	}
	if spec.Min != nil && bounded < *spec.Min {
		return newValidationError(collection, name, value,
			"Value assigned to %s.%s is less than min, %v, got %v", collection, name, *spec.Min, value)
	}
	if spec.Max != nil && bounded > *spec.Max {
		return newValidationError(collection, name, value,
			"Value assigned to %s.%s is greater than max, %v, got %v", collection, name, *spec.Max, value)
	}
	return nil
}

func boundValue(value interface{}) (float64, bool) {
	if t, ok := value.(time.Time); ok {
		return float64(t.UnixMilli()), true
	}
	return helpers.ToFloat(value)
}

func joinChoices(choices []interface{}) string {
	parts := make([]string, len(choices))
	for i, c := range choices {
		parts[i] = fmt.Sprint(c)
	}
	return strings.Join(parts, ", ")
}

func isNil(value interface{}) bool {
	if value == nil {
		return true
	}
	doc, ok := value.(*Document)
	return ok && doc == nil
}

// Canonicalize turns numeric timestamps on date fields into time.Time and
// recurses into embedded documents. It is idempotent.
func (d *Document) Canonicalize() {
	for _, name := range d.schema.names {
		spec := d.schema.specs[name]
		value, _ := d.values.get(name)

		switch {
		case IsEmbeddedDocument(value):
			value.(*Document).Canonicalize()
		case spec.Type.Kind == KindDate:
			if ms, ok := helpers.ToFloat(value); ok {
				d.values.set(name, helpers.TimeFromMillis(ms))
			}
		case IsArray(spec.Type):
			items, ok := value.([]interface{})
			if !ok {
				continue
			}
			for i, item := range items {
				if IsEmbeddedDocument(item) {
					item.(*Document).Canonicalize()
					continue
				}
				if spec.Type.Elem.Kind == KindDate {
					if ms, ok := helpers.ToFloat(item); ok {
						items[i] = helpers.TimeFromMillis(ms)
					}
				}
			}
		}
	}
}

// ToSerializable exports the document as plain maps and slices. Private
// fields are left out, unset arrays become empty lists, nested documents
// are exported recursively, and public properties and virtuals are copied.
func (d *Document) ToSerializable() map[string]interface{} {
	out := make(map[string]interface{}, d.schema.Len())

	for _, name := range d.schema.names {
		spec := d.schema.specs[name]
		if spec.Private {
			continue
		}
		value, _ := d.values.get(name)
		if isNil(value) {
			if IsArray(spec.Type) {
				out[name] = []interface{}{}
			} else {
				out[name] = nil
			}
			continue
		}
		out[name] = serializeValue(value)
	}

	_ = d.props.each(func(key string, value interface{}) error {
		if key != aliasField && !isHelperName(key) && !d.schema.Has(key) {
			out[key] = serializeValue(value)
		}
		return nil
	})

	for _, virt := range d.model.virtuals {
		if virt.Name == aliasField || d.schema.Has(virt.Name) {
			continue
		}
		out[virt.Name] = serializeValue(virt.Get(d))
	}

	return out
}

func serializeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case *Document:
		if v == nil {
			return nil
		}
		return v.ToSerializable()
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = serializeValue(item)
		}
		return out
	}
	return value
}

func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.ToSerializable())
}

// toData is the persisted form: embedded documents inline, references as
// native ids, properties and virtuals dropped, _id left to the backend.
func (d *Document) toData() models.Record {
	rec := make(models.Record, d.schema.Len())
	for _, name := range d.schema.names {
		if name == idField {
			continue
		}
		value, _ := d.values.get(name)
		rec[name] = d.persistValue(d.schema.specs[name].Type, value)
	}
	return rec
}

func (d *Document) persistValue(t FieldType, value interface{}) interface{} {
	if isNil(value) {
		return nil
	}
	reg := d.model.reg

	switch v := value.(type) {
	case *Document:
		if v.model.embedded {
			return map[string]interface{}(v.toData())
		}
		id, _ := v.values.get(idField)
		return reg.nativeID(id)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = d.persistValue(t.Base(), item)
		}
		return out
	}

	if t.Kind == KindReference {
		return reg.nativeID(value)
	}
	if list, ok := toSlice(value); ok && IsArray(t) {
		return d.persistValue(t, list)
	}
	return value
}
