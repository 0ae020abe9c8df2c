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

// Sink consumes the structured field-event stream a [Visitor] produces.
// It is the seam between this package and encoders, which are out of
// scope here; a sink might render text, emit wire format, or count
// fields.
//
// Every callback returns whether to continue. Returning false rejects
// output, and the visit aborts at that point; some prefix of fields, in
// field order, will already have been delivered.
type Sink interface {
	// StartMessage and EndMessage bracket the top-level message.
	StartMessage() bool
	EndMessage() bool

	VisitBool(fd protoreflect.FieldDescriptor, v bool) bool
	VisitInt32(fd protoreflect.FieldDescriptor, v int32) bool
	VisitInt64(fd protoreflect.FieldDescriptor, v int64) bool
	VisitUInt32(fd protoreflect.FieldDescriptor, v uint32) bool
	VisitUInt64(fd protoreflect.FieldDescriptor, v uint64) bool
	VisitFloat(fd protoreflect.FieldDescriptor, v float32) bool
	VisitDouble(fd protoreflect.FieldDescriptor, v float64) bool
	VisitString(fd protoreflect.FieldDescriptor, v string) bool
	VisitBytes(fd protoreflect.FieldDescriptor, v []byte) bool

	// StartSubMessage and EndSubMessage bracket a submessage value,
	// including each synthetic entry message of a map field.
	StartSubMessage(fd protoreflect.FieldDescriptor) bool
	EndSubMessage(fd protoreflect.FieldDescriptor) bool

	// StartSequence and EndSequence bracket the elements of a repeated
	// or map field.
	StartSequence(fd protoreflect.FieldDescriptor) bool
	EndSequence(fd protoreflect.FieldDescriptor) bool
}

// visitOp selects the traversal shape for one field.
type visitOp uint8

const (
	visitScalar visitOp = iota
	visitStringField
	visitBytesField
	visitSubMessage
	visitRepeated
	visitMapField
)

// planField is the precomputed visit of a single field: its storage slot,
// its dispatch shape, and, for message-typed content, the sub-plan to
// recurse with. Everything a visit needs besides the message itself is
// resolved here once, against the [Handlers] the plan was derived from.
type planField struct {
	fd   protoreflect.FieldDescriptor
	slot fieldSlot
	op   visitOp
	sub  *VisitorPlan

	// Map fields only: the synthetic entry schema's key and value
	// fields, used to report entries as submessages.
	keyField, valField protoreflect.FieldDescriptor
}

// VisitorPlan encodes how to walk one message schema: which fields to
// check, in schema order, and which [Sink] callback each one drives.
// Plans are derived by a [Factory], one per [Handlers] set, and cached by
// Handlers identity.
type VisitorPlan struct {
	handlers *Handlers
	layout   *Layout
	fields   []planField
}

// Handlers returns the Handlers set this plan was derived from.
func (vp *VisitorPlan) Handlers() *Handlers { return vp.handlers }

// build resolves the per-field dispatch. Sub-plans come from the factory
// caches, which memoize before recursing, so schema cycles terminate.
func (vp *VisitorPlan) build(f *Factory) {
	fields := vp.layout.desc.Fields()
	vp.fields = make([]planField, fields.Len())
	for i := range fields.Len() {
		fd := fields.Get(i)
		pf := planField{fd: fd, slot: vp.layout.fields[i]}
		switch {
		case fd.IsMap():
			pf.op = visitMapField
			pf.keyField = fd.MapKey()
			pf.valField = fd.MapValue()
			if pf.valField.Kind() == protoreflect.MessageKind {
				pf.sub = f.visitorPlan(f.mergeHandlers(pf.valField.Message()))
			}
		case fd.IsList():
			pf.op = visitRepeated
			if pf.slot.typ == TypeMessage {
				pf.sub = f.visitorPlan(f.mergeHandlers(fd.Message()))
			}
		case pf.slot.typ == TypeMessage:
			pf.op = visitSubMessage
			pf.sub = f.visitorPlan(f.mergeHandlers(fd.Message()))
		case pf.slot.typ == TypeString:
			pf.op = visitStringField
		case pf.slot.typ == TypeBytes:
			pf.op = visitBytesField
		default:
			pf.op = visitScalar
		}
		vp.fields[i] = pf
	}
}

// Visitor walks a [Message] tree under a [VisitorPlan], driving a Sink's
// callbacks for every present field in schema order.
type Visitor struct {
	alloc Allocator
	plan  *VisitorPlan
	sink  Sink
}

// NewVisitor returns a Visitor that delivers msg trees shaped like plan's
// schema to sink. The allocator covers any scratch the visit needs.
func NewVisitor(alloc Allocator, plan *VisitorPlan, sink Sink) *Visitor {
	return &Visitor{alloc: alloc, plan: plan, sink: sink}
}

// VisitMessage walks every present field of msg, recursing into
// submessages, repeated fields, and maps. It reports false as soon as the
// sink rejects output; by then some prefix of fields, in field order, has
// already been delivered.
func (v *Visitor) VisitMessage(msg *Message) bool {
	if !v.sink.StartMessage() {
		return false
	}
	if !v.visitFields(msg, v.plan) {
		return false
	}
	return v.sink.EndMessage()
}

func (v *Visitor) visitFields(msg *Message, plan *VisitorPlan) bool {
	for i := range plan.fields {
		pf := &plan.fields[i]
		if !fieldPresent(msg, pf.slot, pf.fd) {
			continue
		}
		if !v.visitField(msg, pf) {
			return false
		}
	}
	return true
}

func (v *Visitor) visitField(msg *Message, pf *planField) bool {
	switch pf.op {
	case visitScalar:
		return v.putScalar(pf.fd, scalarValue(pf.slot.typ, msg.data[pf.slot.offset]))
	case visitStringField:
		return v.sink.VisitString(pf.fd, msg.refs[pf.slot.offset].Str())
	case visitBytesField:
		return v.sink.VisitBytes(pf.fd, msg.refs[pf.slot.offset].Raw())
	case visitSubMessage:
		return v.sink.StartSubMessage(pf.fd) &&
			v.visitFields(msg.refs[pf.slot.offset].Message(), pf.sub) &&
			v.sink.EndSubMessage(pf.fd)
	case visitRepeated:
		return v.visitArray(pf, msg.refs[pf.slot.offset].Array())
	case visitMapField:
		return v.visitMap(pf, msg.refs[pf.slot.offset].Map())
	default:
		panic(fmt.Sprintf("protomem: unknown visit op %d", pf.op))
	}
}

func (v *Visitor) visitArray(pf *planField, arr *Array) bool {
	if !v.sink.StartSequence(pf.fd) {
		return false
	}
	for i := range arr.Len() {
		elem := arr.Get(i)
		if pf.slot.typ == TypeMessage {
			if elem.IsNil() {
				continue
			}
			if !v.sink.StartSubMessage(pf.fd) ||
				!v.visitFields(elem.Message(), pf.sub) ||
				!v.sink.EndSubMessage(pf.fd) {
				return false
			}
			continue
		}
		if !v.putElement(pf.fd, pf.slot.typ, elem) {
			return false
		}
	}
	return v.sink.EndSequence(pf.fd)
}

// visitMap reports a map field as a sequence of synthetic entry
// submessages, each holding the entry schema's key and value fields, in
// the map's iteration order.
func (v *Visitor) visitMap(pf *planField, m *Map) bool {
	if !v.sink.StartSequence(pf.fd) {
		return false
	}
	var it MapIterator
	for it.Begin(m); !it.Done(); it.Next() {
		if !v.sink.StartSubMessage(pf.fd) {
			return false
		}
		if !v.putElement(pf.keyField, m.KeyType(), it.Key()) {
			return false
		}
		val := it.Value()
		if m.ValueType() == TypeMessage {
			if !v.sink.StartSubMessage(pf.valField) ||
				!v.visitFields(val.Message(), pf.sub) ||
				!v.sink.EndSubMessage(pf.valField) {
				return false
			}
		} else if !v.putElement(pf.valField, m.ValueType(), val) {
			return false
		}
		if !v.sink.EndSubMessage(pf.fd) {
			return false
		}
	}
	return v.sink.EndSequence(pf.fd)
}

func (v *Visitor) putElement(fd protoreflect.FieldDescriptor, t Type, val Value) bool {
	switch t {
	case TypeString:
		return v.sink.VisitString(fd, val.Str())
	case TypeBytes:
		return v.sink.VisitBytes(fd, val.Raw())
	default:
		return v.putScalar(fd, val)
	}
}

func (v *Visitor) putScalar(fd protoreflect.FieldDescriptor, val Value) bool {
	switch val.kind {
	case KindBool:
		return v.sink.VisitBool(fd, val.Bool())
	case KindInt32:
		return v.sink.VisitInt32(fd, val.Int32())
	case KindInt64:
		return v.sink.VisitInt64(fd, val.Int64())
	case KindUInt32:
		return v.sink.VisitUInt32(fd, val.UInt32())
	case KindUInt64:
		return v.sink.VisitUInt64(fd, val.UInt64())
	case KindFloat:
		return v.sink.VisitFloat(fd, val.Float())
	case KindDouble:
		return v.sink.VisitDouble(fd, val.Double())
	default:
		panic(fmt.Sprintf("protomem: cannot visit %v Value as scalar", val.kind))
	}
}

// fieldPresent decides whether a field takes part in a visit: the oneof
// selector for oneof members, the hasbit where one is tracked, non-nil
// references otherwise, and for implicit-presence scalars and strings the
// proto3 rule of skipping zero values.
func fieldPresent(m *Message, slot fieldSlot, fd protoreflect.FieldDescriptor) bool {
	switch {
	case slot.caseSlot >= 0:
		return m.cases[slot.caseSlot] == uint32(fd.Number())
	case slot.hasbit >= 0:
		return m.bit(slot.hasbit)
	case slot.ref:
		v := m.refs[slot.offset]
		if v.IsNil() {
			return false
		}
		if !fd.HasPresence() && !fd.IsList() && !fd.IsMap() {
			switch v.kind {
			case KindString:
				return v.str != ""
			case KindBytes:
				return len(v.raw) != 0
			}
		}
		return true
	default:
		return m.data[slot.offset] != 0
	}
}
