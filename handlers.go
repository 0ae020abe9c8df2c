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

// HandlerKind tags the known field-writer shapes, so that optimizing
// consumers can recognize the standard writers and special-case them
// instead of dispatching through the generic function. Recognition is an
// explicit tag check, never introspection of the function value.
type HandlerKind uint8

const (
	// HandlerGeneric is the fallback: the writer is only usable through
	// [Handler.Func].
	HandlerGeneric HandlerKind = iota

	// HandlerScalar writes a scalar directly to a known word offset,
	// optionally setting a hasbit. Offset, Hasbit, and Type describe the
	// write precisely enough to regenerate it.
	HandlerScalar

	// HandlerString writes a string or bytes view to a known reference
	// slot.
	HandlerString
)

// Handler is one field's writer within a [Handlers] set.
type Handler struct {
	Kind   HandlerKind
	Type   Type
	Offset uint32
	Hasbit int32 // -1 when the write sets no hasbit

	// Func performs the write. Always usable, whatever the Kind.
	Func func(m *Message, v Value) bool
}

// Handlers is the per-schema table of field writers a [Factory] derives
// alongside a [Layout]. Handlers are what a decoding layer drives to
// populate messages without per-field schema lookups.
type Handlers struct {
	desc   protoreflect.MessageDescriptor
	layout *Layout
	fields []Handler
}

func newHandlers(l *Layout) *Handlers {
	return &Handlers{
		desc:   l.desc,
		layout: l,
		fields: make([]Handler, l.desc.Fields().Len()),
	}
}

// build populates the table from the layout: scalars get the standard
// direct-offset writer, everything else the generic one.
func (h *Handlers) build() {
	fields := h.desc.Fields()
	for i := range fields.Len() {
		fd := fields.Get(i)
		slot := h.layout.fields[i]
		if !slot.ref && !fd.IsList() && !fd.IsMap() {
			h.SetScalarHandler(fd, uint32(slot.offset), slot.hasbit)
			continue
		}
		kind := HandlerGeneric
		if (slot.typ == TypeString || slot.typ == TypeBytes) && !fd.IsList() && !fd.IsMap() {
			kind = HandlerString
		}
		layout := h.layout
		h.fields[i] = Handler{
			Kind:   kind,
			Type:   slot.typ,
			Offset: uint32(slot.offset),
			Hasbit: -1,
			Func: func(m *Message, v Value) bool {
				return m.Set(fd, v, layout)
			},
		}
	}
}

// Descriptor returns the schema this Handlers set was derived for.
func (h *Handlers) Descriptor() protoreflect.MessageDescriptor { return h.desc }

// Field returns the writer for fd, which must be a field of this
// Handlers' schema.
func (h *Handlers) Field(fd protoreflect.FieldDescriptor) *Handler {
	return &h.fields[h.layout.index(fd)]
}

// SetScalarHandler registers the standard writer for a primitive singular
// field: write the decoded scalar at the given word offset and, if hasbit
// is non-negative, set that presence bit. It reports false, registering
// nothing, if the field is not a primitive singular field.
func (h *Handlers) SetScalarHandler(fd protoreflect.FieldDescriptor, offset uint32, hasbit int32) bool {
	slot := h.layout.slot(fd)
	if slot.ref || fd.IsList() || fd.IsMap() {
		return false
	}
	typ := slot.typ
	caseNum := int32(-1)
	if slot.caseSlot >= 0 {
		caseNum = int32(fd.Number())
	}
	caseSlot := slot.caseSlot
	h.fields[fd.Index()] = Handler{
		Kind:   HandlerScalar,
		Type:   typ,
		Offset: offset,
		Hasbit: hasbit,
		Func: func(m *Message, v Value) bool {
			m.data[offset] = scalarBits(typ, v)
			if hasbit >= 0 {
				m.setBit(hasbit)
			}
			if caseSlot >= 0 {
				m.cases[caseSlot] = uint32(caseNum)
			}
			return true
		},
	}
	return true
}

// ScalarHandlerData reports whether fd's registered writer is the
// standard scalar writer, and if so, the type, offset, and hasbit it
// writes with. This is the inverse of [Handlers.SetScalarHandler], for
// consumers that generate specialized writes instead of calling
// [Handler.Func].
func (h *Handlers) ScalarHandlerData(fd protoreflect.FieldDescriptor) (typ Type, offset uint32, hasbit int32, ok bool) {
	hd := h.Field(fd)
	if hd.Kind != HandlerScalar {
		return 0, 0, 0, false
	}
	return hd.Type, hd.Offset, hd.Hasbit, true
}

func (h *Handlers) String() string {
	return fmt.Sprintf("protomem.Handlers(%s)", h.desc.FullName())
}
