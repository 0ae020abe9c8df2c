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
	"strings"

	"github.com/tidwall/btree"
)

// Map stores the entries of a map field, keyed by scalar or string
// values. Keys of string type are copied into map-owned storage on
// insert, so they stay valid regardless of what the caller does with the
// original buffer. Values are the opposite: string and message values are
// stored by reference only, and the map never frees them, not even on
// overwrite or deletion; the replaced value is handed back so the caller
// can decide.
//
// Entries are kept in key order in a B-tree, so iteration is ordered by
// normalized key. That is an implementation detail, not a contract.
type Map struct {
	ktype, vtype Type
	alloc        Allocator
	tree         *btree.BTreeG[mapEntry]
	gen          uint64
	reserved     int // bytes charged to alloc for entries
}

// mapEntry is one key/value pair in the tree. The key is normalized so
// that one comparison function covers every key type.
type mapEntry struct {
	key mapKey
	val Value
}

// mapKey is a map key normalized for ordering: integer keys are mapped
// monotonically onto uint64 (signed keys get their sign bit flipped),
// string keys use the map-owned copy.
type mapKey struct {
	bits uint64
	str  string
}

// MapSizeOf returns the fixed allocation footprint of a Map header for
// the given key and value types; entry storage is charged per insert.
func MapSizeOf(Type, Type) int { return mapFootprint }

// Init constructs an empty Map in place. The key type must be bool,
// integer, or string, per protobuf map key rules; both types are fixed
// for the map's lifetime. Reports false, leaving m untouched, on
// allocator exhaustion.
func (m *Map) Init(ktype, vtype Type, alloc Allocator) bool {
	switch ktype {
	case TypeBool, TypeInt32, TypeInt64, TypeUInt32, TypeUInt64, TypeString:
	default:
		panic(fmt.Sprintf("protomem: %v is not a valid map key type", ktype))
	}
	if !alloc.Reserve(mapFootprint) {
		return false
	}
	stringKeys := ktype == TypeString
	*m = Map{
		ktype: ktype,
		vtype: vtype,
		alloc: alloc,
		tree: btree.NewBTreeG(func(a, b mapEntry) bool {
			if stringKeys {
				return a.key.str < b.key.str
			}
			return a.key.bits < b.key.bits
		}),
	}
	return true
}

// Uninit releases the map's entries and header, including every owned key
// copy. Values are not freed.
func (m *Map) Uninit() {
	if m.alloc == nil {
		return
	}
	m.alloc.Release(m.reserved)
	m.alloc.Release(mapFootprint)
	*m = Map{}
}

// NewMap allocates and initializes a Map, returning nil on allocator
// exhaustion.
func NewMap(ktype, vtype Type, alloc Allocator) *Map {
	m := new(Map)
	if !m.Init(ktype, vtype, alloc) {
		return nil
	}
	return m
}

// Free releases the map's own storage, as [Map.Uninit].
func (m *Map) Free() { m.Uninit() }

// Len returns the number of entries.
func (m *Map) Len() int { return m.tree.Len() }

// KeyType returns the key type fixed at construction.
func (m *Map) KeyType() Type { return m.ktype }

// ValueType returns the value type fixed at construction.
func (m *Map) ValueType() Type { return m.vtype }

// Get returns the value stored under key, reporting false if the key is
// absent.
func (m *Map) Get(key Value) (Value, bool) {
	e, ok := m.tree.Get(mapEntry{key: m.normalize(key, false)})
	if !ok {
		return Value{}, false
	}
	return e.val, true
}

// Set inserts or overwrites an entry. If an existing entry was
// overwritten, prev is its former value and replaced is true, so the
// caller can free whatever prev referenced. ok is false only on allocator
// exhaustion, in which case the map is unchanged.
func (m *Map) Set(key, val Value) (prev Value, replaced, ok bool) {
	if val.kind != kindOf(m.vtype) {
		panic(fmt.Sprintf("protomem: %v Value stored into %v map", val.kind, m.vtype))
	}
	nk := m.normalize(key, false)
	if old, found := m.tree.Get(mapEntry{key: nk}); found {
		// Reuse the owned key copy from the existing entry.
		m.tree.Set(mapEntry{key: old.key, val: val})
		m.gen++
		return old.val, true, true
	}
	if !m.alloc.Reserve(mapEntryFootprint + len(nk.str)) {
		return Value{}, false, false
	}
	m.tree.Set(mapEntry{key: m.normalize(key, true), val: val})
	m.gen++
	return Value{}, false, true
}

// Delete removes the entry under key, reporting whether it was present.
// The removed value is not freed.
func (m *Map) Delete(key Value) bool {
	e, ok := m.tree.Delete(mapEntry{key: m.normalize(key, false)})
	if !ok {
		return false
	}
	m.alloc.Release(mapEntryFootprint + len(e.key.str))
	m.gen++
	return true
}

// normalize converts a key Value into its ordering form. When own is set,
// string keys are copied into map-owned storage; lookups and deletes can
// reference the caller's buffer directly since they never retain it.
func (m *Map) normalize(key Value, own bool) mapKey {
	if key.kind != kindOf(m.ktype) {
		panic(fmt.Sprintf("protomem: %v Value used as %v map key", key.kind, m.ktype))
	}
	switch m.ktype {
	case TypeString:
		s := key.str
		if own {
			s = strings.Clone(s)
		}
		return mapKey{str: s}
	case TypeInt32:
		return mapKey{bits: uint64(uint32(key.bits)) ^ 1<<31}
	case TypeInt64:
		return mapKey{bits: key.bits ^ 1<<63}
	default: // bool, uint32, uint64
		return mapKey{bits: key.bits}
	}
}

// denormalize reverses normalize, rebuilding the key Value handed out by
// iterators.
func (m *Map) denormalize(k mapKey) Value {
	switch m.ktype {
	case TypeString:
		return String(k.str)
	case TypeInt32:
		return Int32(int32(uint32(k.bits ^ 1<<31)))
	case TypeInt64:
		return Int64(int64(k.bits ^ 1<<63))
	case TypeBool:
		return Bool(k.bits != 0)
	case TypeUInt32:
		return UInt32(uint32(k.bits))
	default:
		return UInt64(k.bits)
	}
}

// MapIterator is a cursor over a Map's entries.
//
// Mutating the map invalidates outstanding iterators, but an invalidated
// iterator never reads freed tree state or crashes: it repositions to the
// first key after its current one, which may skip or revisit entries.
// Under a finite number of mutations iteration still terminates; a caller
// that mutates on every step can keep an iterator live indefinitely,
// which is a documented hazard, not something this type guards against.
type MapIterator struct {
	m       *Map
	entry   mapEntry
	gen     uint64
	done    bool
	started bool
}

// Begin positions the iterator at the map's first entry, or at done for
// an empty map.
func (it *MapIterator) Begin(m *Map) {
	*it = MapIterator{m: m, gen: m.gen, started: true}
	e, ok := m.tree.Min()
	if !ok {
		it.done = true
		return
	}
	it.entry = e
}

// Next advances to the next entry in key order. If the map has mutated
// since the last step, the iterator reseeks from its current key instead
// of trusting stale position state.
func (it *MapIterator) Next() {
	it.mustStart()
	if it.done {
		return
	}
	var next mapEntry
	found := false
	it.m.tree.Ascend(mapEntry{key: it.entry.key}, func(e mapEntry) bool {
		if e.key == it.entry.key {
			return true // skip the current entry
		}
		next, found = e, true
		return false
	})
	if !found {
		it.done = true
		return
	}
	it.entry = next
	it.gen = it.m.gen
}

// Done reports whether iteration has finished.
func (it *MapIterator) Done() bool {
	it.mustStart()
	return it.done
}

// SetDone forces the iterator into the finished state.
func (it *MapIterator) SetDone() {
	it.mustStart()
	it.done = true
}

// Key returns the current entry's key. Must not be called when done.
func (it *MapIterator) Key() Value {
	it.mustCurrent()
	return it.m.denormalize(it.entry.key)
}

// Value returns the current entry's value. If the map has mutated since
// the iterator last moved, the value is re-fetched by key; if the entry
// has been deleted in the meantime, the previously observed value is
// returned.
func (it *MapIterator) Value() Value {
	it.mustCurrent()
	if it.gen != it.m.gen {
		if e, ok := it.m.tree.Get(mapEntry{key: it.entry.key}); ok {
			it.entry = e
		}
	}
	return it.entry.val
}

// Equal reports whether two iterators are over the same map and at the
// same position.
func (it *MapIterator) Equal(other *MapIterator) bool {
	if it.m != other.m {
		return false
	}
	if it.done || other.done {
		return it.done == other.done
	}
	return it.entry.key == other.entry.key
}

func (it *MapIterator) mustStart() {
	if !it.started {
		panic("protomem: MapIterator used before Begin")
	}
}

func (it *MapIterator) mustCurrent() {
	it.mustStart()
	if it.done {
		panic("protomem: MapIterator read past the end")
	}
}
