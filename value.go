// Copyright 2020-2026 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package protomem

import (
	"bytes"
	"fmt"
	"math"

	"google.golang.org/protobuf/reflect/protoreflect"
)

// Type is the scalar tag for a field, array element, or map key/value.
//
// It is a collapsed view of [protoreflect.Kind]: the various integer
// encodings of the wire format (varint, zigzag, fixed) all share one
// storage type here, since this package stores decoded values only.
type Type uint8

const (
	TypeBool Type = iota + 1
	TypeInt32
	TypeInt64
	TypeUInt32
	TypeUInt64
	TypeFloat
	TypeDouble
	TypeEnum
	TypeString
	TypeBytes
	TypeMessage
)

// String implements [fmt.Stringer].
func (t Type) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeUInt32:
		return "uint32"
	case TypeUInt64:
		return "uint64"
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	case TypeEnum:
		return "enum"
	case TypeString:
		return "string"
	case TypeBytes:
		return "bytes"
	case TypeMessage:
		return "message"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// TypeOf returns the storage type for the given field's declared type.
//
// For repeated and map fields this is the element or value type; use
// [KeyTypeOf] for a map field's key type.
func TypeOf(fd protoreflect.FieldDescriptor) Type {
	if fd.IsMap() {
		return typeOfKind(fd.MapValue().Kind())
	}
	return typeOfKind(fd.Kind())
}

// KeyTypeOf returns the storage type for a map field's key.
func KeyTypeOf(fd protoreflect.FieldDescriptor) Type {
	return typeOfKind(fd.MapKey().Kind())
}

func typeOfKind(k protoreflect.Kind) Type {
	switch k {
	case protoreflect.BoolKind:
		return TypeBool
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		return TypeInt32
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return TypeInt64
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		return TypeUInt32
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return TypeUInt64
	case protoreflect.FloatKind:
		return TypeFloat
	case protoreflect.DoubleKind:
		return TypeDouble
	case protoreflect.EnumKind:
		return TypeEnum
	case protoreflect.StringKind:
		return TypeString
	case protoreflect.BytesKind:
		return TypeBytes
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return TypeMessage
	default:
		panic(fmt.Sprintf("protomem: unsupported kind %v", k))
	}
}

// Kind discriminates the variants of a [Value].
type Kind uint8

const (
	// KindNil is the kind of the zero Value, and the "unset" marker for
	// message, array, and map typed fields.
	KindNil Kind = iota
	KindBool
	KindInt32
	KindInt64
	KindUInt32
	KindUInt64
	KindFloat
	KindDouble
	KindString
	KindBytes
	KindArray
	KindMap
	KindMessage
	KindPointer
)

// String implements [fmt.Stringer].
func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindUInt32:
		return "uint32"
	case KindUInt64:
		return "uint64"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	case KindMessage:
		return "message"
	case KindPointer:
		return "pointer"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Value is a closed tagged union over every value a field can hold: the
// protobuf scalars, string and bytes views, and references to a [Message],
// [Array], or [Map].
//
// A Value carries no ownership semantics. Copying a Value copies a view of
// the referenced data, never the data itself, and never transfers the
// responsibility to free it.
//
// The zero Value has [KindNil] and doubles as the unset marker for
// reference-typed fields.
type Value struct {
	kind Kind
	bits uint64
	str  string
	raw  []byte
	ref  any
}

// Nil returns the nil Value.
func Nil() Value { return Value{} }

// Bool returns a Value holding a bool.
func Bool(b bool) Value {
	var bits uint64
	if b {
		bits = 1
	}
	return Value{kind: KindBool, bits: bits}
}

// Int32 returns a Value holding an int32.
func Int32(n int32) Value { return Value{kind: KindInt32, bits: uint64(uint32(n))} }

// Int64 returns a Value holding an int64.
func Int64(n int64) Value { return Value{kind: KindInt64, bits: uint64(n)} }

// UInt32 returns a Value holding a uint32.
func UInt32(n uint32) Value { return Value{kind: KindUInt32, bits: uint64(n)} }

// UInt64 returns a Value holding a uint64.
func UInt64(n uint64) Value { return Value{kind: KindUInt64, bits: n} }

// Float returns a Value holding a float32.
func Float(f float32) Value {
	return Value{kind: KindFloat, bits: uint64(math.Float32bits(f))}
}

// Double returns a Value holding a float64.
func Double(f float64) Value {
	return Value{kind: KindDouble, bits: math.Float64bits(f)}
}

// String returns a Value holding a string view.
//
// The Value references s directly; it is not copied.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Bytes returns a Value holding a bytes view.
//
// The Value references b directly; it is not copied.
func Bytes(b []byte) Value { return Value{kind: KindBytes, raw: b} }

// ArrayValue returns a Value referencing an [Array].
func ArrayValue(a *Array) Value { return Value{kind: KindArray, ref: a} }

// MapValue returns a Value referencing a [Map].
func MapValue(m *Map) Value { return Value{kind: KindMap, ref: m} }

// MessageValue returns a Value referencing a [Message].
func MessageValue(m *Message) Value { return Value{kind: KindMessage, ref: m} }

// Pointer returns a Value holding an opaque reference.
func Pointer(p any) Value { return Value{kind: KindPointer, ref: p} }

// Kind returns the variant this Value holds.
func (v Value) Kind() Kind { return v.kind }

// IsNil reports whether this is the nil Value.
func (v Value) IsNil() bool { return v.kind == KindNil }

// Bool returns the bool this Value holds. Panics if the Value holds a
// different kind; the same contract applies to every accessor below.
func (v Value) Bool() bool { v.expect(KindBool); return v.bits != 0 }

// Int32 returns the int32 this Value holds.
func (v Value) Int32() int32 { v.expect(KindInt32); return int32(uint32(v.bits)) }

// Int64 returns the int64 this Value holds.
func (v Value) Int64() int64 { v.expect(KindInt64); return int64(v.bits) }

// UInt32 returns the uint32 this Value holds.
func (v Value) UInt32() uint32 { v.expect(KindUInt32); return uint32(v.bits) }

// UInt64 returns the uint64 this Value holds.
func (v Value) UInt64() uint64 { v.expect(KindUInt64); return v.bits }

// Float returns the float32 this Value holds.
func (v Value) Float() float32 { v.expect(KindFloat); return math.Float32frombits(uint32(v.bits)) }

// Double returns the float64 this Value holds.
func (v Value) Double() float64 { v.expect(KindDouble); return math.Float64frombits(v.bits) }

// Str returns the string view this Value holds.
func (v Value) Str() string { v.expect(KindString); return v.str }

// Raw returns the bytes view this Value holds.
func (v Value) Raw() []byte { v.expect(KindBytes); return v.raw }

// Array returns the [Array] this Value references.
func (v Value) Array() *Array { v.expect(KindArray); return v.ref.(*Array) }

// Map returns the [Map] this Value references.
func (v Value) Map() *Map { v.expect(KindMap); return v.ref.(*Map) }

// Message returns the [Message] this Value references.
func (v Value) Message() *Message { v.expect(KindMessage); return v.ref.(*Message) }

// Pointer returns the opaque reference this Value holds.
func (v Value) Pointer() any { v.expect(KindPointer); return v.ref }

func (v Value) expect(k Kind) {
	if v.kind != k {
		panic(fmt.Sprintf("protomem: %v accessor called on %v Value", k, v.kind))
	}
}

// Equal reports whether two Values hold the same variant and the same
// contents. References compare by identity, views by contents.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindString:
		return v.str == o.str
	case KindBytes:
		return bytes.Equal(v.raw, o.raw)
	case KindArray, KindMap, KindMessage, KindPointer:
		return v.ref == o.ref
	default:
		return v.bits == o.bits
	}
}

// ZeroValue returns the default Value for a storage type: false or zero for
// scalars, the empty view for strings and bytes, and nil for messages.
func ZeroValue(t Type) Value {
	switch t {
	case TypeBool:
		return Bool(false)
	case TypeInt32, TypeEnum:
		return Int32(0)
	case TypeInt64:
		return Int64(0)
	case TypeUInt32:
		return UInt32(0)
	case TypeUInt64:
		return UInt64(0)
	case TypeFloat:
		return Float(0)
	case TypeDouble:
		return Double(0)
	case TypeString:
		return String("")
	case TypeBytes:
		return Bytes(nil)
	case TypeMessage:
		return Nil()
	default:
		panic(fmt.Sprintf("protomem: no zero value for %v", t))
	}
}

// kindOf returns the Value kind a storage type stores, with TypeEnum
// collapsing to KindInt32.
func kindOf(t Type) Kind {
	switch t {
	case TypeBool:
		return KindBool
	case TypeInt32, TypeEnum:
		return KindInt32
	case TypeInt64:
		return KindInt64
	case TypeUInt32:
		return KindUInt32
	case TypeUInt64:
		return KindUInt64
	case TypeFloat:
		return KindFloat
	case TypeDouble:
		return KindDouble
	case TypeString:
		return KindString
	case TypeBytes:
		return KindBytes
	case TypeMessage:
		return KindMessage
	default:
		panic(fmt.Sprintf("protomem: no kind for %v", t))
	}
}

// isRefType reports whether values of the type live in a message's
// reference slots rather than its scalar words.
func isRefType(t Type) bool {
	switch t {
	case TypeString, TypeBytes, TypeMessage:
		return true
	default:
		return false
	}
}

// scalarBits encodes a scalar Value into its 64-bit storage form. Panics if
// v's kind does not match t.
func scalarBits(t Type, v Value) uint64 {
	if v.kind != kindOf(t) {
		panic(fmt.Sprintf("protomem: %v Value stored into %v field", v.kind, t))
	}
	return v.bits
}

// scalarValue decodes 64-bit storage into a scalar Value of type t.
func scalarValue(t Type, bits uint64) Value {
	return Value{kind: kindOf(t), bits: bits}
}
