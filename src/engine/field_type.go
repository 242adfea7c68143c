package engine

import "fmt"

// Kind tags the variants of FieldType.
type Kind int

const (
	KindInvalid Kind = iota
	KindString
	KindNumber
	KindBoolean
	KindDate
	KindBuffer
	// KindID is the implicit _id field, typed by the backend.
	KindID
	KindReference
	KindEmbedded
	KindArray
)

var kindNames = map[Kind]string{
	KindString:  "String",
	KindNumber:  "Number",
	KindBoolean: "Boolean",
	KindDate:    "Date",
	KindBuffer:  "Buffer",
	KindID:      "ID",
}

// FieldType is a closed tagged union:
//
//	Primitive(kind) | Reference(model) | Embedded(model) | ArrayOf(elem)
//
// Arrays are one level deep.
type FieldType struct {
	Kind  Kind
	Model string
	Elem  *FieldType
}

var (
	String  = FieldType{Kind: KindString}
	Number  = FieldType{Kind: KindNumber}
	Boolean = FieldType{Kind: KindBoolean}
	Date    = FieldType{Kind: KindDate}
	Buffer  = FieldType{Kind: KindBuffer}

	idType = FieldType{Kind: KindID}
)

// Ref declares a reference to a top-level model, stored as its id.
func Ref(model string) FieldType {
	return FieldType{Kind: KindReference, Model: model}
}

// Embed declares an embedded model, stored inline.
func Embed(model string) FieldType {
	return FieldType{Kind: KindEmbedded, Model: model}
}

func ArrayOf(elem FieldType) FieldType {
	e := elem
	return FieldType{Kind: KindArray, Elem: &e}
}

func (t FieldType) String() string {
	switch t.Kind {
	case KindReference, KindEmbedded:
		return t.Model
	case KindArray:
		if t.Elem == nil {
			return "[]"
		}
		return fmt.Sprintf("[%s]", t.Elem.String())
	}
	if name, ok := kindNames[t.Kind]; ok {
		return name
	}
	return "Invalid"
}

// Base is the element type of an array, or the type itself.
func (t FieldType) Base() FieldType {
	if t.Kind == KindArray && t.Elem != nil {
		return *t.Elem
	}
	return t
}

func (t FieldType) isModel() bool {
	return t.Kind == KindReference || t.Kind == KindEmbedded
}
