package engine

import (
	"regexp"
	"strings"
)

// FieldSpec is a normalised field declaration.
type FieldSpec struct {
	Type FieldType

	// Default is a literal or a func() interface{} factory called once per
	// instance.
	Default interface{}

	Choices []interface{}

	// Min and Max bound numbers and dates (as unix milliseconds). A zero
	// bound is a real bound, nil means unbounded.
	Min *float64
	Max *float64

	// Match applies to string values only.
	Match *regexp.Regexp

	Validate func(value interface{}) bool

	// Private fields are persisted but left out of ToSerializable.
	Private bool

	Required bool
}

// Field pairs a name with a declaration: either a bare FieldType or a
// FieldSpec.
type Field struct {
	Name string
	Decl interface{}
}

// F is shorthand for Field{name, decl}.
func F(name string, decl interface{}) Field {
	return Field{Name: name, Decl: decl}
}

// Bound returns a pointer for FieldSpec.Min and FieldSpec.Max.
func Bound(v float64) *float64 {
	return &v
}

// NormalizeType turns a declaration into a FieldSpec. A bare FieldType is
// the shorthand for FieldSpec{Type: t}.
func NormalizeType(decl interface{}) (FieldSpec, error) {
	var spec FieldSpec
	switch d := decl.(type) {
	case FieldType:
		spec = FieldSpec{Type: d}
	case *FieldType:
		if d == nil {
			return FieldSpec{}, &SchemaError{Reason: errUnsupportedType}
		}
		spec = FieldSpec{Type: *d}
	case FieldSpec:
		spec = d
	case *FieldSpec:
		if d == nil {
			return FieldSpec{}, &SchemaError{Reason: errUnsupportedType}
		}
		spec = *d
	default:
		return FieldSpec{}, &SchemaError{Reason: errUnsupportedType}
	}

	if !IsSupportedType(spec.Type) {
		return FieldSpec{}, &SchemaError{Reason: errUnsupportedType}
	}
	return spec, nil
}

// Schema is an ordered field name to FieldSpec map.
type Schema struct {
	names []string
	specs map[string]FieldSpec
}

func newSchema() *Schema {
	return &Schema{specs: make(map[string]FieldSpec)}
}

// Names returns the field names in declaration order.
func (s *Schema) Names() []string {
	return append([]string(nil), s.names...)
}

func (s *Schema) Spec(name string) (FieldSpec, bool) {
	spec, ok := s.specs[name]
	return spec, ok
}

func (s *Schema) Has(name string) bool {
	_, ok := s.specs[name]
	return ok
}

func (s *Schema) Len() int {
	return len(s.names)
}

// put adds or overrides a field. Overrides keep their original position.
func (s *Schema) put(name string, spec FieldSpec) {
	if _, exists := s.specs[name]; !exists {
		s.names = append(s.names, name)
	}
	s.specs[name] = spec
}

func (s *Schema) clone() *Schema {
	c := &Schema{
		names: append([]string(nil), s.names...),
		specs: make(map[string]FieldSpec, len(s.specs)),
	}
	for k, v := range s.specs {
		c.specs[k] = v
	}
	return c
}

func (s *Schema) remove(name string) {
	if _, ok := s.specs[name]; !ok {
		return
	}
	delete(s.specs, name)
	for i, n := range s.names {
		if n == name {
			s.names = append(s.names[:i], s.names[i+1:]...)
			break
		}
	}
}

// isHelperName reports the naming convention for non-persisted fields.
func isHelperName(name string) bool {
	return strings.HasPrefix(name, "_") && name != idField
}

// defaultValue computes the initial value of a field.
func defaultValue(spec FieldSpec) interface{} {
	if spec.Default != nil {
		if factory, ok := spec.Default.(func() interface{}); ok {
			return factory()
		}
		if IsArray(spec.Type) {
			if items, ok := toSlice(spec.Default); ok {
				return append([]interface{}(nil), items...)
			}
		}
		return spec.Default
	}
	if IsArray(spec.Type) {
		return []interface{}{}
	}
	return nil
}
