package engine

import (
	"fmt"
	"reflect"
	"time"

	"github.com/kgroat/camouflage/src/helpers"
)

// IsSupportedType reports whether t is a usable field type: a primitive
// kind, a named reference or embedded model, or an array of one of those.
func IsSupportedType(t FieldType) bool {
	switch t.Kind {
	case KindString, KindNumber, KindBoolean, KindDate, KindBuffer, KindID:
		return true
	case KindReference, KindEmbedded:
		return t.Model != ""
	case KindArray:
		if t.Elem == nil || t.Elem.Kind == KindArray {
			return false
		}
		return IsSupportedType(*t.Elem)
	}
	return false
}

func IsArray(t FieldType) bool {
	return t.Kind == KindArray
}

// IsDocument reports whether t points at a top-level document.
func IsDocument(t FieldType) bool {
	return t.Kind == KindReference
}

// IsEmbeddedDocument reports whether value is an instance of an embedded model.
func IsEmbeddedDocument(value interface{}) bool {
	doc, ok := value.(*Document)
	return ok && doc != nil && doc.model.embedded
}

// IsInChoices reports whether value is one of choices. No choices means
// anything goes.
func IsInChoices(choices []interface{}, value interface{}) bool {
	if len(choices) == 0 {
		return true
	}
	for _, c := range choices {
		if helpers.ValuesEqual(c, value) {
			return true
		}
	}
	return false
}

// IsValidType checks value against t. nil is always valid, arrays are
// valid only when every element is.
func IsValidType(value interface{}, t FieldType) bool {
	return isValidType(value, t, looksLikeID)
}

func isValidType(value interface{}, t FieldType, isID func(interface{}) bool) bool {
	if value == nil {
		return true
	}
	if doc, ok := value.(*Document); ok && doc == nil {
		return true
	}

	switch t.Kind {
	case KindString:
		_, ok := value.(string)
		return ok
	case KindNumber:
		return helpers.IsNumber(value)
	case KindBoolean:
		_, ok := value.(bool)
		return ok
	case KindDate:
		// numeric timestamps are turned into dates by Canonicalize
		if _, ok := value.(time.Time); ok {
			return true
		}
		return helpers.IsNumber(value)
	case KindBuffer:
		_, ok := value.([]byte)
		return ok
	case KindID:
		return isID(value)
	case KindReference:
		if doc, ok := value.(*Document); ok {
			return doc.model.name == t.Model
		}
		return isID(value)
	case KindEmbedded:
		doc, ok := value.(*Document)
		return ok && doc.model.embedded && doc.model.name == t.Model
	case KindArray:
		if t.Elem == nil {
			return false
		}
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Slice {
			return false
		}
		if _, isBytes := value.([]byte); isBytes {
			return false
		}
		for i := 0; i < rv.Len(); i++ {
			if !isValidType(rv.Index(i).Interface(), *t.Elem, isID) {
				return false
			}
		}
		return true
	}
	return false
}

// looksLikeID is the backend independent notion of an identifier: a string
// or a fixed size byte array such as a mongo ObjectID.
func looksLikeID(value interface{}) bool {
	if _, ok := value.(string); ok {
		return true
	}
	rv := reflect.ValueOf(value)
	return rv.Kind() == reflect.Array && rv.Type().Elem().Kind() == reflect.Uint8
}

// kindOf names the runtime kind of value for error messages.
func kindOf(value interface{}) string {
	if value == nil {
		return "null"
	}
	switch v := value.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case time.Time:
		return "date"
	case []byte:
		return "buffer"
	case *Document:
		if v == nil {
			return "null"
		}
		return v.model.name
	case map[string]interface{}:
		return "object"
	}
	if helpers.IsNumber(value) {
		return "number"
	}
	if reflect.ValueOf(value).Kind() == reflect.Slice {
		return "array"
	}
	return fmt.Sprintf("%T", value)
}

// toSlice normalises any slice except []byte into []interface{}.
func toSlice(value interface{}) ([]interface{}, bool) {
	switch v := value.(type) {
	case []interface{}:
		return v, true
	case []byte:
		return nil, false
	}
	rv := reflect.ValueOf(value)
	if !rv.IsValid() || rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
