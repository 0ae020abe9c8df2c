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
	"sync"

	"golang.org/x/sync/singleflight"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// SymbolTable resolves descriptors by full name. It is the schema source
// for a [Factory]; *protoregistry.Files satisfies it.
type SymbolTable interface {
	FindDescriptorByName(protoreflect.FullName) (protoreflect.Descriptor, error)
}

// Factory derives and caches the objects needed to represent, populate,
// and visit messages of a schema: [Layout]s, [Handlers], and
// [VisitorPlan]s. Caches are lazily populated; the first request for a
// schema computes and stores the object, and every later request returns
// the identical cached pointer, so callers may use object identity as a
// fast-path cache key of their own.
//
// The Factory owns everything it produces. Freeing the Factory invalidates
// every Layout, Handlers, and VisitorPlan it ever returned; nothing else
// may free them individually.
//
// By default the lazy caches are single-writer: concurrent first-time
// requests must be serialized by the caller, typically by warming the
// caches before sharing the Factory. Read-only lookups against warm caches
// are always safe to share. Construct with [WithConcurrentWarmup] to make
// first-time population safe from multiple goroutines instead.
type Factory struct {
	symtab   SymbolTable
	layouts  map[protoreflect.MessageDescriptor]*Layout
	handlers map[protoreflect.MessageDescriptor]*Handlers
	plans    map[*Handlers]*VisitorPlan

	// Set by WithConcurrentWarmup. The mutex guards the cache maps; the
	// flight group collapses duplicate warm-ups of the same schema.
	mu     *sync.Mutex
	flight *singleflight.Group

	freed bool
}

// FactoryOption configures a [Factory] at construction.
type FactoryOption func(*Factory)

// WithConcurrentWarmup makes the Factory's lazy cache population safe to
// drive from multiple goroutines. Without it, first-time requests for a
// schema must be serialized by the caller.
func WithConcurrentWarmup() FactoryOption {
	return func(f *Factory) {
		f.mu = new(sync.Mutex)
		f.flight = new(singleflight.Group)
	}
}

// NewFactory returns a Factory whose schemas come from symtab. The symbol
// table should outlive the Factory.
func NewFactory(symtab SymbolTable, opts ...FactoryOption) *Factory {
	f := &Factory{
		symtab:   symtab,
		layouts:  make(map[protoreflect.MessageDescriptor]*Layout),
		handlers: make(map[protoreflect.MessageDescriptor]*Handlers),
		plans:    make(map[*Handlers]*VisitorPlan),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SymbolTable returns the symbol table this Factory resolves schemas in.
func (f *Factory) SymbolTable() SymbolTable { return f.symtab }

// Free invalidates the Factory and everything it produced. Using any
// previously returned Layout, Handlers, or VisitorPlan afterwards is a
// contract violation.
func (f *Factory) Free() {
	f.freed = true
	f.layouts = nil
	f.handlers = nil
	f.plans = nil
}

// Layout returns the cached [Layout] for the given schema, deriving it on
// first request.
//
// The schema must resolve within the Factory's symbol table and must not
// be a synthetic map entry schema; map entries have no standalone layout.
func (f *Factory) Layout(md protoreflect.MessageDescriptor) *Layout {
	f.checkSchema(md)
	if f.flight == nil {
		return f.layout(md)
	}
	v, _, _ := f.flight.Do(string(md.FullName()), func() (any, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.layout(md), nil
	})
	return v.(*Layout)
}

// MergeHandlers returns the cached field-writing [Handlers] for the given
// schema, deriving them on first request. Preconditions are those of
// [Factory.Layout].
func (f *Factory) MergeHandlers(md protoreflect.MessageDescriptor) *Handlers {
	f.checkSchema(md)
	if f.flight == nil {
		return f.mergeHandlers(md)
	}
	v, _, _ := f.flight.Do("handlers:"+string(md.FullName()), func() (any, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.mergeHandlers(md), nil
	})
	return v.(*Handlers)
}

// VisitorPlan returns the cached [VisitorPlan] for a Handlers set this
// Factory produced, deriving it on first request. The plan is keyed by
// Handlers identity.
func (f *Factory) VisitorPlan(h *Handlers) *VisitorPlan {
	if f.freed {
		panic("protomem: use of freed Factory")
	}
	if h.layout.factory != f {
		panic("protomem: Handlers were not produced by this Factory")
	}
	if f.flight == nil {
		return f.visitorPlan(h)
	}
	v, _, _ := f.flight.Do("plan:"+string(h.desc.FullName()), func() (any, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.visitorPlan(h), nil
	})
	return v.(*VisitorPlan)
}

func (f *Factory) checkSchema(md protoreflect.MessageDescriptor) {
	if f.freed {
		panic("protomem: use of freed Factory")
	}
	if md.IsMapEntry() {
		panic(fmt.Sprintf("protomem: map entry schema %s has no layout", md.FullName()))
	}
	d, err := f.symtab.FindDescriptorByName(md.FullName())
	if err != nil || d != protoreflect.Descriptor(md) {
		panic(fmt.Sprintf("protomem: schema %s is not in this Factory's symbol table", md.FullName()))
	}
}

// layout is the unguarded cache lookup. It memoizes the new Layout before
// building it, so mutually referential schemas terminate: the recursive
// resolution of a sublayout finds the half-built entry and links to it.
func (f *Factory) layout(md protoreflect.MessageDescriptor) *Layout {
	if l, ok := f.layouts[md]; ok {
		return l
	}
	l := &Layout{factory: f, desc: md}
	f.layouts[md] = l
	f.buildLayout(l)
	return l
}

// buildLayout assigns storage to every field of l's schema, in field
// declaration order.
//
// Singular scalars pack into uint64 data words; strings, bytes, messages,
// repeated fields, and maps take reference slots. Fields with explicit
// scalar presence get a hasbit. Each non-synthetic oneof gets one shared
// data word, one shared reference slot, and one selector slot; its members
// alias that storage.
func (f *Factory) buildLayout(l *Layout) {
	md := l.desc
	fields := md.Fields()
	l.fields = make([]fieldSlot, fields.Len())
	l.subs = make([]*Layout, fields.Len())

	oneofs := md.Oneofs()
	l.caseSlots = oneofs.Len()
	oneofWord := make([]int32, oneofs.Len())
	oneofRef := make([]int32, oneofs.Len())
	for i := range oneofs.Len() {
		od := oneofs.Get(i)
		if od.IsSynthetic() {
			oneofWord[i], oneofRef[i] = -1, -1
			continue
		}
		oneofWord[i] = int32(l.dataWords)
		oneofRef[i] = int32(l.refSlots)
		l.dataWords++
		l.refSlots++
	}

	var hasbits int
	for i := range fields.Len() {
		fd := fields.Get(i)
		slot := fieldSlot{typ: TypeOf(fd), hasbit: -1, caseSlot: -1}

		switch {
		case fd.IsList() || fd.IsMap():
			slot.ref = true
			slot.offset = int32(l.refSlots)
			l.refSlots++
		case inOneof(fd):
			od := fd.ContainingOneof()
			slot.caseSlot = int32(od.Index())
			if isRefType(slot.typ) {
				slot.ref = true
				slot.offset = oneofRef[od.Index()]
			} else {
				slot.offset = oneofWord[od.Index()]
			}
		case isRefType(slot.typ):
			slot.ref = true
			slot.offset = int32(l.refSlots)
			l.refSlots++
		default:
			slot.offset = int32(l.dataWords)
			l.dataWords++
			if fd.HasPresence() {
				slot.hasbit = int32(hasbits)
				hasbits++
			}
		}

		l.fields[i] = slot

		switch {
		case fd.IsMap():
			if fd.MapValue().Kind() == protoreflect.MessageKind {
				l.subs[i] = f.layout(fd.MapValue().Message())
			}
		case fd.Kind() == protoreflect.MessageKind || fd.Kind() == protoreflect.GroupKind:
			l.subs[i] = f.layout(fd.Message())
		}
	}

	l.hasbitWords = (hasbits + 31) / 32
	l.size = messageFootprint +
		l.dataWords*wordFootprint +
		l.refSlots*slotFootprint +
		l.hasbitWords*hasbitFootprint +
		l.caseSlots*caseFootprint
}

// inOneof reports whether fd is a member of a real (non-synthetic) oneof.
func inOneof(fd protoreflect.FieldDescriptor) bool {
	od := fd.ContainingOneof()
	return od != nil && !od.IsSynthetic()
}

func (f *Factory) mergeHandlers(md protoreflect.MessageDescriptor) *Handlers {
	if h, ok := f.handlers[md]; ok {
		return h
	}
	h := newHandlers(f.layout(md))
	f.handlers[md] = h
	h.build()
	return h
}

func (f *Factory) visitorPlan(h *Handlers) *VisitorPlan {
	if vp, ok := f.plans[h]; ok {
		return vp
	}
	vp := &VisitorPlan{handlers: h, layout: h.layout}
	f.plans[h] = vp // memoize before recursing into sub-plans
	vp.build(f)
	return vp
}
