package serial

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/samber/lo"
)

// FormatVersion is the wire format version written into every buffer header.
const FormatVersion uint8 = 1

// Kind identifies the wire representation of a field.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
	KindString
	KindBytes
	KindTime
	KindSlice
	KindStruct
)

var kindNames = [...]string{
	KindInvalid: "invalid",
	KindBool:    "bool",
	KindInt8:    "int8",
	KindInt16:   "int16",
	KindInt32:   "int32",
	KindInt64:   "int64",
	KindUint8:   "uint8",
	KindUint16:  "uint16",
	KindUint32:  "uint32",
	KindUint64:  "uint64",
	KindFloat32: "float32",
	KindFloat64: "float64",
	KindString:  "string",
	KindBytes:   "bytes",
	KindTime:    "time",
	KindSlice:   "slice",
	KindStruct:  "struct",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// fixedWidth returns the encoded byte width of a fixed-width kind,
// or 0 for variable-length kinds (string, bytes, slice, struct).
func (k Kind) fixedWidth() int {
	switch k {
	case KindBool, KindInt8, KindUint8:
		return 1
	case KindInt16, KindUint16:
		return 2
	case KindInt32, KindUint32, KindFloat32:
		return 4
	case KindInt64, KindUint64, KindFloat64, KindTime:
		return 8
	}
	return 0
}

// FieldDescriptor describes one field in encoding order. It is owned by its
// parent TypeDescriptor and immutable after registration.
type FieldDescriptor struct {
	// Name is the wire name, taken from the `serial` struct tag when
	// present, otherwise the Go field name.
	Name string

	// Kind is the wire representation of the field value.
	Kind Kind

	// Nullable marks pointer fields, encoded with a one-byte presence flag.
	Nullable bool

	// Offset is the field's ordinal position in encoding order. Fixed at
	// first registration; reordering breaks wire compatibility.
	Offset int

	// ElemKind is the element representation for KindSlice fields.
	ElemKind Kind

	// Elem is the nested shape for KindStruct fields and for KindSlice
	// fields whose elements are structs. Nil otherwise.
	Elem *TypeDescriptor

	// index is the reflect field index within the parent struct.
	index int
}

// TypeDescriptor describes the wire shape of one registered struct type.
// Created once per distinct type, cached for the process lifetime, and
// immutable after first construction.
type TypeDescriptor struct {
	// ID is a stable identifier derived from the fully qualified shape
	// signature. Equal shapes hash to equal IDs across processes.
	ID uint32

	// Name is the fully qualified type name (package path + type name).
	Name string

	// Version is the wire format version this descriptor encodes to.
	Version uint8

	// Fields is the ordered field layout. The order is the wire contract.
	Fields []FieldDescriptor

	rtype   reflect.Type
	minSize int
}

// Type returns the reflect type this descriptor was built from.
func (d *TypeDescriptor) Type() reflect.Type { return d.rtype }

// sizeHint returns the minimum encoded size of a value of this shape,
// used to pre-size acquired buffers.
func (d *TypeDescriptor) sizeHint() int { return d.minSize }

// Signature returns the canonical shape string the type identifier is
// hashed from. Two types with identical signatures are wire compatible.
func (d *TypeDescriptor) Signature() string {
	return d.Name + "{" + strings.Join(lo.Map(d.Fields, func(f FieldDescriptor, _ int) string {
		return f.signature()
	}), ",") + "}"
}

func (f FieldDescriptor) signature() string {
	var b strings.Builder
	b.WriteString(f.Name)
	b.WriteByte(':')
	if f.Nullable {
		b.WriteByte('*')
	}
	switch f.Kind {
	case KindSlice:
		b.WriteString("[]")
		if f.ElemKind == KindStruct {
			b.WriteString(f.Elem.Signature())
		} else {
			b.WriteString(f.ElemKind.String())
		}
	case KindStruct:
		b.WriteString(f.Elem.Signature())
	default:
		b.WriteString(f.Kind.String())
	}
	return b.String()
}

// prefixOf reports whether d's field list is an additive prefix of other's.
// This is the compatibility relation used for forward-compatible decoding:
// a reader may decode a writer's buffer when one field list extends the
// other without changing any common field.
func (d *TypeDescriptor) prefixOf(other *TypeDescriptor) bool {
	if len(d.Fields) > len(other.Fields) {
		return false
	}
	for i := range d.Fields {
		a, b := &d.Fields[i], &other.Fields[i]
		if a.Name != b.Name || a.Kind != b.Kind || a.Nullable != b.Nullable || a.ElemKind != b.ElemKind {
			return false
		}
		if a.Kind == KindStruct || (a.Kind == KindSlice && a.ElemKind == KindStruct) {
			if a.Elem.Signature() != b.Elem.Signature() {
				return false
			}
		}
	}
	return true
}
