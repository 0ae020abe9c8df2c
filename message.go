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
	"fmt"

	"google.golang.org/protobuf/reflect/protoreflect"
)

// Message is one instance of a message schema, of the fixed size described
// by its [Layout]. It stores scalar fields inline, references to strings,
// submessages, arrays, and maps in unmanaged slots, and message-local
// overflow storage for unknown fields.
//
// A Message has no knowledge of what owns the values its fields reference.
// Overwriting or clearing a field never frees what the field pointed to;
// the graph a message participates in may be a DAG or contain cycles, and
// no operation here attempts to detect either.
//
// Every operation takes the message's Layout; passing a field or layout
// from a different schema is a contract violation.
type Message struct {
	alloc   Allocator
	data    []uint64
	refs    []Value
	hasbits []uint32
	cases   []uint32

	// Unknown-field storage, the one thing a Message allocates for
	// itself. unknownCap is what has been charged to alloc.
	unknown    []byte
	unknownCap int
}

// MessageSizeOf reports the allocator charge for a message of l's shape,
// equal to [Layout.Size].
func MessageSizeOf(l *Layout) int { return l.size }

// Init constructs a Message of l's shape in place, charging [Layout.Size]
// bytes to alloc. It reports false, leaving m untouched, if the allocator
// is exhausted.
//
// The allocator is retained and used only for this message's own dynamic
// needs, such as unknown-field growth; never for submessages.
func (m *Message) Init(l *Layout, alloc Allocator) bool {
	if !alloc.Reserve(l.size) {
		return false
	}
	*m = Message{
		alloc:   alloc,
		data:    make([]uint64, l.dataWords),
		refs:    make([]Value, l.refSlots),
		hasbits: make([]uint32, l.hasbitWords),
		cases:   make([]uint32, l.caseSlots),
	}
	return true
}

// Uninit releases the storage m itself reserved: its fixed footprint and
// any unknown-field overflow. It does not free any submessage, array, map,
// or string that m's fields reference; those remain the caller's to
// reclaim.
func (m *Message) Uninit(l *Layout) {
	if m.alloc == nil {
		return
	}
	if m.unknownCap > 0 {
		m.alloc.Release(m.unknownCap)
	}
	m.alloc.Release(l.size)
	*m = Message{}
}

// NewMessage allocates and initializes a Message, returning nil on
// allocator exhaustion.
func NewMessage(l *Layout, alloc Allocator) *Message {
	m := new(Message)
	if !m.Init(l, alloc) {
		return nil
	}
	return m
}

// Free releases the message's own storage, as [Message.Uninit].
func (m *Message) Free(l *Layout) { m.Uninit(l) }

// Allocator returns the allocator this message charges its internal
// storage to.
func (m *Message) Allocator() Allocator { return m.alloc }

// Get returns the value of a field.
//
// Scalar, string, and bytes fields return the stored value directly, or
// the type's default when unset. Message, array, and map fields return the
// stored reference, or the nil Value when unset. An unselected oneof
// member reads as unset.
func (m *Message) Get(fd protoreflect.FieldDescriptor, l *Layout) Value {
	slot := l.slot(fd)
	if slot.caseSlot >= 0 && m.cases[slot.caseSlot] != uint32(fd.Number()) {
		return unsetValue(fd, slot)
	}
	if slot.ref {
		v := m.refs[slot.offset]
		if v.IsNil() {
			return unsetValue(fd, slot)
		}
		return v
	}
	return scalarValue(slot.typ, m.data[slot.offset])
}

// unsetValue is what Get reports for a field with nothing stored: the
// type default for directly-returned values, nil for references.
func unsetValue(fd protoreflect.FieldDescriptor, slot fieldSlot) Value {
	if fd.IsList() || fd.IsMap() || slot.typ == TypeMessage {
		return Nil()
	}
	return ZeroValue(slot.typ)
}

// Has reports whether a field with presence tracking has been set: the
// hasbit for singular scalars declared with presence, the selector for
// oneof members, and the reference slot for singular string, bytes, and
// message fields.
//
// For fields without presence tracking the result is always false and
// carries no meaning; use schema introspection to decide whether a field
// tracks presence before asking.
func (m *Message) Has(fd protoreflect.FieldDescriptor, l *Layout) bool {
	slot := l.slot(fd)
	switch {
	case slot.caseSlot >= 0:
		return m.cases[slot.caseSlot] == uint32(fd.Number())
	case slot.hasbit >= 0:
		return m.bit(slot.hasbit)
	case slot.ref && !fd.IsList() && !fd.IsMap():
		return !m.refs[slot.offset].IsNil()
	default:
		return false
	}
}

// Set stores a value into a field, updating the field's hasbit or oneof
// selector if it has one.
//
// Set performs no memory management: overwriting a still-referenced
// string, submessage, array, or map without first recovering it is the
// caller's leak to avoid. Passing a Value whose kind does not match the
// field's type is a contract violation.
func (m *Message) Set(fd protoreflect.FieldDescriptor, v Value, l *Layout) bool {
	slot := l.slot(fd)
	if slot.ref {
		m.checkRef(fd, slot, v)
		m.refs[slot.offset] = v
	} else {
		m.data[slot.offset] = scalarBits(slot.typ, v)
	}
	if slot.hasbit >= 0 {
		m.setBit(slot.hasbit)
	}
	if slot.caseSlot >= 0 {
		m.cases[slot.caseSlot] = uint32(fd.Number())
	}
	return true
}

func (m *Message) checkRef(fd protoreflect.FieldDescriptor, slot fieldSlot, v Value) {
	var want Kind
	switch {
	case fd.IsMap():
		want = KindMap
	case fd.IsList():
		want = KindArray
	default:
		want = kindOf(slot.typ)
	}
	if v.kind != want && v.kind != KindNil {
		panic(fmt.Sprintf("protomem: %v Value stored into %s", v.kind, fd.FullName()))
	}
}

// ClearField resets a field to unset: scalars back to the type default
// with the hasbit cleared, reference fields back to nil, oneof members
// deselected if currently selected.
//
// Clearing never recurses: whatever the field referenced is untouched and
// still the caller's to free.
func (m *Message) ClearField(fd protoreflect.FieldDescriptor, l *Layout) bool {
	slot := l.slot(fd)
	if slot.caseSlot >= 0 {
		if m.cases[slot.caseSlot] != uint32(fd.Number()) {
			return true // not the selected member; nothing stored
		}
		m.cases[slot.caseSlot] = 0
	}
	if slot.ref {
		m.refs[slot.offset] = Nil()
	} else {
		m.data[slot.offset] = 0
	}
	if slot.hasbit >= 0 {
		m.clearBit(slot.hasbit)
	}
	return true
}

// OneofCase returns the member field currently set in a oneof, or nil if
// none is.
func (m *Message) OneofCase(od protoreflect.OneofDescriptor, l *Layout) protoreflect.FieldDescriptor {
	if od.IsSynthetic() {
		fd := od.Fields().Get(0)
		if m.Has(fd, l) {
			return fd
		}
		return nil
	}
	n := m.cases[l.caseSlotOf(od)]
	if n == 0 {
		return nil
	}
	return od.Fields().ByNumber(protoreflect.FieldNumber(n))
}

// HasOneof reports whether any member of the oneof is set.
func (m *Message) HasOneof(od protoreflect.OneofDescriptor, l *Layout) bool {
	return m.OneofCase(od, l) != nil
}

// ClearOneof clears the oneof so that no member is set, resetting the
// shared storage. As with [Message.ClearField], nothing previously
// referenced is freed.
func (m *Message) ClearOneof(od protoreflect.OneofDescriptor, l *Layout) bool {
	fd := m.OneofCase(od, l)
	if fd != nil {
		m.ClearField(fd, l)
	}
	return true
}

// Unknown returns the message-local unknown-field storage.
func (m *Message) Unknown() []byte { return m.unknown }

// AppendUnknown grows the unknown-field storage by b, charging the growth
// to the message's allocator. It reports false, with the storage
// unchanged, on exhaustion.
func (m *Message) AppendUnknown(b []byte) bool {
	need := len(m.unknown) + len(b)
	if need > m.unknownCap {
		newCap := m.unknownCap
		if newCap == 0 {
			newCap = 16
		}
		for newCap < need {
			newCap *= 2
		}
		if !m.alloc.Reserve(newCap - m.unknownCap) {
			return false
		}
		grown := make([]byte, len(m.unknown), newCap)
		copy(grown, m.unknown)
		m.unknown = grown
		m.unknownCap = newCap
	}
	m.unknown = append(m.unknown, b...)
	return true
}

func (m *Message) bit(i int32) bool {
	return m.hasbits[i/32]&(1<<(uint(i)%32)) != 0
}

func (m *Message) setBit(i int32) {
	m.hasbits[i/32] |= 1 << (uint(i) % 32)
}

func (m *Message) clearBit(i int32) {
	m.hasbits[i/32] &^= 1 << (uint(i) % 32)
}
