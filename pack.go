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

import "encoding/binary"

// Pack serializes msg and the transitive closure of everything it
// references into one contiguous, relocatable region of dst starting at
// *ofs. Internal references become little-endian uint32 offsets relative
// to the region start (stored off by one, so zero still means nil), which
// makes the region safe to copy or store as a single allocation.
//
// Shared nodes are packed once, so DAGs do not blow up, and a node's
// block is reserved before its children are packed, so reference cycles
// terminate. On success the cursor advances past the region and the
// packed region is returned; if dst cannot hold the region, Pack returns
// nil and leaves the cursor unchanged.
//
// The region's shape is only meaningful alongside the layout it was
// packed with; Pack does not embed the schema.
func (m *Message) Pack(l *Layout, dst []byte, ofs *int) []byte {
	base := *ofs
	if base < 0 || base > len(dst) {
		return nil
	}
	p := &packer{buf: dst[base:], seen: make(map[any]uint32)}
	if _, ok := p.packMessage(m, l); !ok {
		return nil
	}
	*ofs = base + p.used
	return dst[base : base+p.used]
}

// packer tracks the region being written. seen maps each already-packed
// node to its stored reference (offset+1), and is populated before a
// node's children are packed.
type packer struct {
	buf  []byte
	used int
	seen map[any]uint32
}

// alloc reserves n zeroed bytes in the region.
func (p *packer) alloc(n int) (int, bool) {
	if p.used+n > len(p.buf) {
		return 0, false
	}
	off := p.used
	clear(p.buf[off : off+n])
	p.used += n
	return off, true
}

// packMessage writes a message block: scalar words, hasbits, oneof
// cases, then one uint32 reference per slot. Returns the stored
// reference for the block.
func (p *packer) packMessage(m *Message, l *Layout) (uint32, bool) {
	if ref, ok := p.seen[m]; ok {
		return ref, true
	}
	size := l.dataWords*8 + l.hasbitWords*4 + l.caseSlots*4 + l.refSlots*4
	off, ok := p.alloc(size)
	if !ok {
		return 0, false
	}
	p.seen[m] = uint32(off) + 1

	pos := off
	for _, w := range m.data {
		binary.LittleEndian.PutUint64(p.buf[pos:], w)
		pos += 8
	}
	for _, w := range m.hasbits {
		binary.LittleEndian.PutUint32(p.buf[pos:], w)
		pos += 4
	}
	for _, w := range m.cases {
		binary.LittleEndian.PutUint32(p.buf[pos:], w)
		pos += 4
	}

	refBase := pos
	fields := l.desc.Fields()
	for i := range fields.Len() {
		fd := fields.Get(i)
		slot := l.fields[i]
		if !slot.ref {
			continue
		}
		// A shared oneof slot is interpreted by its selected member.
		if slot.caseSlot >= 0 && m.cases[slot.caseSlot] != uint32(fd.Number()) {
			continue
		}
		ref, ok := p.packValue(m.refs[slot.offset], l.subs[i])
		if !ok {
			return 0, false
		}
		binary.LittleEndian.PutUint32(p.buf[refBase+int(slot.offset)*4:], ref)
	}
	return uint32(off) + 1, true
}

// packValue packs one referenced node, dispatching on the Value's kind.
// sub is the layout for message-typed content, nil otherwise.
func (p *packer) packValue(v Value, sub *Layout) (uint32, bool) {
	switch v.kind {
	case KindNil:
		return 0, true
	case KindString:
		return p.packBlob([]byte(v.str))
	case KindBytes:
		return p.packBlob(v.raw)
	case KindMessage:
		return p.packMessage(v.ref.(*Message), sub)
	case KindArray:
		return p.packArray(v.ref.(*Array), sub)
	case KindMap:
		return p.packMap(v.ref.(*Map), sub)
	default:
		panic("protomem: cannot pack " + v.kind.String() + " Value")
	}
}

// packBlob writes a length-prefixed string or bytes value.
func (p *packer) packBlob(b []byte) (uint32, bool) {
	off, ok := p.alloc(4 + len(b))
	if !ok {
		return 0, false
	}
	binary.LittleEndian.PutUint32(p.buf[off:], uint32(len(b)))
	copy(p.buf[off+4:], b)
	return uint32(off) + 1, true
}

// packArray writes an array as a [type, length] header followed by its
// elements: eight bytes of scalar storage each, or a four-byte reference
// for element types that reference other nodes.
func (p *packer) packArray(a *Array, sub *Layout) (uint32, bool) {
	if ref, ok := p.seen[a]; ok {
		return ref, true
	}
	elemSize := 8
	if isRefType(a.typ) {
		elemSize = 4
	}
	off, ok := p.alloc(8 + a.Len()*elemSize)
	if !ok {
		return 0, false
	}
	p.seen[a] = uint32(off) + 1
	binary.LittleEndian.PutUint32(p.buf[off:], uint32(a.typ))
	binary.LittleEndian.PutUint32(p.buf[off+4:], uint32(a.Len()))

	for i := range a.Len() {
		elem := a.Get(i)
		pos := off + 8 + i*elemSize
		if isRefType(a.typ) {
			ref, ok := p.packValue(elem, sub)
			if !ok {
				return 0, false
			}
			binary.LittleEndian.PutUint32(p.buf[pos:], ref)
		} else {
			binary.LittleEndian.PutUint64(p.buf[pos:], elem.bits)
		}
	}
	return uint32(off) + 1, true
}

// packMap writes a map as a [key type, value type, count] header followed
// by its entries in iteration order: each entry is the key (eight scalar
// bytes, or a four-byte reference to a length-prefixed string) followed
// by the value in the same shape.
func (p *packer) packMap(m *Map, sub *Layout) (uint32, bool) {
	if ref, ok := p.seen[m]; ok {
		return ref, true
	}
	keySize, valSize := 8, 8
	if m.ktype == TypeString {
		keySize = 4
	}
	if isRefType(m.vtype) {
		valSize = 4
	}
	off, ok := p.alloc(8 + m.Len()*(keySize+valSize))
	if !ok {
		return 0, false
	}
	p.seen[m] = uint32(off) + 1
	binary.LittleEndian.PutUint32(p.buf[off:], uint32(m.ktype)|uint32(m.vtype)<<8)
	binary.LittleEndian.PutUint32(p.buf[off+4:], uint32(m.Len()))

	pos := off + 8
	var it MapIterator
	for it.Begin(m); !it.Done(); it.Next() {
		if m.ktype == TypeString {
			ref, ok := p.packBlob([]byte(it.Key().Str()))
			if !ok {
				return 0, false
			}
			binary.LittleEndian.PutUint32(p.buf[pos:], ref)
		} else {
			binary.LittleEndian.PutUint64(p.buf[pos:], it.Key().bits)
		}
		pos += keySize

		if isRefType(m.vtype) {
			ref, ok := p.packValue(it.Value(), sub)
			if !ok {
				return 0, false
			}
			binary.LittleEndian.PutUint32(p.buf[pos:], ref)
		} else {
			binary.LittleEndian.PutUint64(p.buf[pos:], it.Value().bits)
		}
		pos += valSize
	}
	return uint32(off) + 1, true
}
