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

// Layout describes the in-memory shape of one message schema: which
// storage slot each field occupies, where presence bits and oneof case
// slots live, and how large a [Message] of this shape is.
//
// Layouts are produced and owned by a [Factory] and are immutable once
// constructed. A Layout is only valid with messages of the schema it was
// built from, and only for as long as its Factory lives; two Factories
// never share Layouts.
type Layout struct {
	factory *Factory
	desc    protoreflect.MessageDescriptor

	// Slot assignments, indexed by protoreflect field index. Oneof
	// members share their oneof's storage and differ only in type.
	fields []fieldSlot

	// Sublayouts indexed by field index; nil for fields that are not
	// message typed. For a map field this is the layout of the map's
	// value type, since map entry schemas have no standalone layout.
	subs []*Layout

	dataWords   int // scalar storage, one uint64 per word
	refSlots    int // reference storage, one Value per slot
	hasbitWords int // presence bits, 32 per word
	caseSlots   int // oneof selectors, indexed by oneof index
	size        int // total accounting footprint of one Message
}

// fieldSlot records where one field's storage lives within a message.
type fieldSlot struct {
	typ      Type
	offset   int32 // word index for scalars, slot index for references
	hasbit   int32 // bit index, or -1 when the field has no hasbit
	caseSlot int32 // oneof selector slot, or -1 outside a oneof
	ref      bool  // storage lives in refs rather than data
}

// Descriptor returns the message schema this Layout was derived from.
func (l *Layout) Descriptor() protoreflect.MessageDescriptor { return l.desc }

// Factory returns the [Factory] that produced and owns this Layout.
func (l *Layout) Factory() *Factory { return l.factory }

// Size returns the fixed allocation footprint of a [Message] with this
// Layout, the amount charged to the allocator by [Message.Init].
func (l *Layout) Size() int { return l.size }

// Sublayout returns the Layout for a message-typed field.
//
// The field must be message typed. For a map field this returns the layout
// of the map's value type, which must itself be message typed; map entry
// schemas never have standalone layouts.
func (l *Layout) Sublayout(fd protoreflect.FieldDescriptor) *Layout {
	sub := l.subs[l.index(fd)]
	if sub == nil {
		panic(fmt.Sprintf("protomem: field %s has no sublayout", fd.FullName()))
	}
	return sub
}

// slot returns the storage assignment for fd, which must be a field of
// this Layout's schema.
func (l *Layout) slot(fd protoreflect.FieldDescriptor) fieldSlot {
	return l.fields[l.index(fd)]
}

func (l *Layout) index(fd protoreflect.FieldDescriptor) int {
	if fd.ContainingMessage() != l.desc {
		panic(fmt.Sprintf("protomem: field %s is not part of message %s",
			fd.FullName(), l.desc.FullName()))
	}
	return fd.Index()
}

// caseSlotOf returns the selector slot for a oneof of this schema.
func (l *Layout) caseSlotOf(od protoreflect.OneofDescriptor) int32 {
	if od.Parent() != l.desc {
		panic(fmt.Sprintf("protomem: oneof %s is not part of message %s",
			od.FullName(), l.desc.FullName()))
	}
	return int32(od.Index())
}
