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

import "fmt"

// Array stores the elements of a repeated field: a homogeneously typed,
// dynamically sized sequence of [Value] slots. Arrays are allocated
// independently of the messages that reference them and share the
// ownership model of [Message]: element values of reference kinds are
// stored unmanaged, and the array never frees them.
type Array struct {
	typ      Type
	alloc    Allocator
	vals     []Value
	reserved int // bytes charged to alloc for the element buffer
}

// ArraySizeOf returns the fixed allocation footprint of an Array header,
// independent of element type; element storage is charged as it grows.
func ArraySizeOf(Type) int { return arrayFootprint }

// Init constructs an empty Array of element type t in place. It reports
// false, leaving a untouched, if the allocator is exhausted. The element
// type is fixed for the array's lifetime.
func (a *Array) Init(t Type, alloc Allocator) bool {
	if !alloc.Reserve(arrayFootprint) {
		return false
	}
	*a = Array{typ: t, alloc: alloc}
	return true
}

// Uninit releases the array's element buffer and header. Elements of
// reference kinds are not freed.
func (a *Array) Uninit() {
	if a.alloc == nil {
		return
	}
	a.alloc.Release(a.reserved)
	a.alloc.Release(arrayFootprint)
	*a = Array{}
}

// NewArray allocates and initializes an Array, returning nil on allocator
// exhaustion.
func NewArray(t Type, alloc Allocator) *Array {
	a := new(Array)
	if !a.Init(t, alloc) {
		return nil
	}
	return a
}

// Free releases the array's own storage, as [Array.Uninit].
func (a *Array) Free() { a.Uninit() }

// Len returns the number of elements.
func (a *Array) Len() int { return len(a.vals) }

// Type returns the element type fixed at construction.
func (a *Array) Type() Type { return a.typ }

// Get returns the element at index i. The index must be less than
// [Array.Len]; access is bounds-checked and panics out of range.
func (a *Array) Get(i int) Value {
	if i < 0 || i >= len(a.vals) {
		panic(fmt.Sprintf("protomem: array index %d out of range [0:%d]", i, len(a.vals)))
	}
	return a.vals[i]
}

// Set stores v at index i, growing the array if i is at or past the
// current length: the length becomes i+1 and every newly created slot in
// between holds the element type's default value.
//
// Growth is geometric, so repeated appends are amortized O(1). Set reports
// false, with the array in its pre-call state, if the allocator is
// exhausted. Passing a Value whose kind does not match the element type is
// a contract violation.
func (a *Array) Set(i int, v Value) bool {
	if v.kind != kindOf(a.typ) && !(a.typ == TypeMessage && v.kind == KindNil) {
		panic(fmt.Sprintf("protomem: %v Value stored into %v array", v.kind, a.typ))
	}
	if i < 0 {
		panic(fmt.Sprintf("protomem: array index %d out of range", i))
	}
	if i < len(a.vals) {
		a.vals[i] = v
		return true
	}
	if i >= cap(a.vals) {
		newCap := cap(a.vals)
		if newCap == 0 {
			newCap = 4
		}
		for newCap <= i {
			newCap *= 2
		}
		if !a.alloc.Reserve(newCap*slotFootprint - a.reserved) {
			return false
		}
		grown := make([]Value, len(a.vals), newCap)
		copy(grown, a.vals)
		a.vals = grown
		a.reserved = newCap * slotFootprint
	}
	zero := ZeroValue(a.typ)
	for len(a.vals) < i {
		a.vals = append(a.vals, zero)
	}
	a.vals = append(a.vals, v)
	return true
}
