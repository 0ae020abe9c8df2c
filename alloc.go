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

// Allocator is the memory capability handed to every dynamically sized
// entity in this package. Backing storage comes from the Go heap; the
// allocator is the accounting and admission layer over it, which is where
// an ownership discipline (arenas, budgets, leak tracking) plugs in.
//
// This package never hard-codes a global allocator: a [Message], [Array],
// or [Map] only ever charges the allocator it was constructed with, and
// only for its own internal storage, never for values its fields reference.
type Allocator interface {
	// Reserve acquires capacity for n more bytes, reporting false on
	// exhaustion. An operation that receives false must leave its
	// container in its pre-call state.
	Reserve(n int) bool

	// Release returns n previously reserved bytes. Arena-style allocators
	// may ignore it.
	Release(n int)
}

// Heap is an unbounded [Allocator] that tracks outstanding reservations.
//
// Reserve never fails. The running total is useful in tests to prove that
// Uninit paths release exactly what Init paths reserved.
type Heap struct {
	inUse int
}

// NewHeap returns a new Heap allocator.
func NewHeap() *Heap { return &Heap{} }

// Reserve implements [Allocator].
func (h *Heap) Reserve(n int) bool {
	h.inUse += n
	return true
}

// Release implements [Allocator].
func (h *Heap) Release(n int) { h.inUse -= n }

// InUse returns the number of reserved bytes not yet released.
func (h *Heap) InUse() int { return h.inUse }

// Arena is a bump [Allocator]: reservations only accumulate, Release is a
// no-op, and everything comes back at once via [Arena.Reset]. A limit of
// zero means unbounded.
//
// An Arena is the simplest ownership discipline to layer over this
// package: give one arena to every message, array, and map in a tree, and
// drop the whole tree by resetting it.
type Arena struct {
	used  int
	limit int
}

// NewArena returns an arena that admits at most limit bytes, or is
// unbounded if limit is zero.
func NewArena(limit int) *Arena { return &Arena{limit: limit} }

// Reserve implements [Allocator].
func (a *Arena) Reserve(n int) bool {
	if a.limit > 0 && a.used+n > a.limit {
		return false
	}
	a.used += n
	return true
}

// Release implements [Allocator]. It is a no-op; arena memory is
// reclaimed in bulk by [Arena.Reset].
func (a *Arena) Release(int) {}

// Used returns the bytes reserved since the last Reset.
func (a *Arena) Used() int { return a.used }

// Reset returns every reservation to the arena at once.
func (a *Arena) Reset() { a.used = 0 }

// Accounting footprints. These are deliberately coarse: the point is that
// growth is charged somewhere the caller controls, not that the byte
// counts match the Go runtime's.
const (
	wordFootprint     = 8
	slotFootprint     = 64 // one Value-sized reference slot
	hasbitFootprint   = 4  // one word of hasbits
	caseFootprint     = 4  // one oneof case slot
	messageFootprint  = 48 // fixed Message header
	arrayFootprint    = 48 // fixed Array header
	mapFootprint      = 96 // fixed Map header, including the empty tree
	mapEntryFootprint = 64
)
