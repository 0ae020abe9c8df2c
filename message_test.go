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

package protomem_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/bufbuild/protomem"
	"github.com/bufbuild/protomem/internal/prototest"
)

func TestMessagePointScenario(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	fd, reg := compileTestSchema(t)
	factory := protomem.NewFactory(reg)
	point := prototest.Message(t, fd, "Point")
	l := factory.Layout(point)
	x := prototest.Field(t, point, "x")
	y := prototest.Field(t, point, "y")

	msg := protomem.NewMessage(l, protomem.NewHeap())
	require.NotNil(t, msg)

	msg.Set(x, protomem.Int32(5), l)
	msg.Set(y, protomem.Int32(7), l)
	assert.Equal(int32(5), msg.Get(x, l).Int32())
	assert.Equal(int32(7), msg.Get(y, l).Int32())

	// Plain proto3 scalars have no presence tracking.
	assert.False(msg.Has(x, l))
	assert.False(msg.Has(y, l))
}

func TestMessageScalarStorage(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	fd, reg := compileTestSchema(t)
	factory := protomem.NewFactory(reg)
	scalars := prototest.Message(t, fd, "Scalars")
	l := factory.Layout(scalars)
	msg := protomem.NewMessage(l, protomem.NewHeap())

	set := func(name string, v protomem.Value) protomem.Value {
		f := prototest.Field(t, scalars, protoreflect.Name(name))
		msg.Set(f, v, l)
		return msg.Get(f, l)
	}
	assert.True(set("b", protomem.Bool(true)).Bool())
	assert.Equal(int32(-3), set("i32", protomem.Int32(-3)).Int32())
	assert.Equal(int64(1<<40), set("i64", protomem.Int64(1<<40)).Int64())
	assert.Equal(uint32(9), set("u32", protomem.UInt32(9)).UInt32())
	assert.Equal(uint64(1<<50), set("u64", protomem.UInt64(1<<50)).UInt64())
	assert.Equal(float32(0.5), set("f", protomem.Float(0.5)).Float())
	assert.Equal(-2.5, set("d", protomem.Double(-2.5)).Double())
	assert.Equal("hello", set("s", protomem.String("hello")).Str())
	assert.Equal([]byte{7, 8}, set("raw", protomem.Bytes([]byte{7, 8})).Raw())
}

func TestMessageExplicitPresence(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	fd, reg := compileTestSchema(t)
	factory := protomem.NewFactory(reg)
	scalars := prototest.Message(t, fd, "Scalars")
	l := factory.Layout(scalars)
	tracked := prototest.Field(t, scalars, "tracked")
	msg := protomem.NewMessage(l, protomem.NewHeap())

	assert.False(msg.Has(tracked, l))
	msg.Set(tracked, protomem.Int32(0), l)
	assert.True(msg.Has(tracked, l), "presence is explicit, even for zero")

	msg.ClearField(tracked, l)
	assert.False(msg.Has(tracked, l))
	assert.Equal(int32(0), msg.Get(tracked, l).Int32())
}

func TestMessageReferenceFields(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	fd, reg := compileTestSchema(t)
	factory := protomem.NewFactory(reg)
	outer := prototest.Message(t, fd, "Outer")
	point := prototest.Message(t, fd, "Point")
	l := factory.Layout(outer)
	pl := factory.Layout(point)
	origin := prototest.Field(t, outer, "origin")
	samples := prototest.Field(t, outer, "samples")

	alloc := protomem.NewHeap()
	msg := protomem.NewMessage(l, alloc)

	assert.True(msg.Get(origin, l).IsNil())
	assert.False(msg.Has(origin, l))

	sub := protomem.NewMessage(pl, alloc)
	msg.Set(origin, protomem.MessageValue(sub), l)
	assert.Same(sub, msg.Get(origin, l).Message())
	assert.True(msg.Has(origin, l))

	arr := protomem.NewArray(protomem.TypeInt32, alloc)
	msg.Set(samples, protomem.ArrayValue(arr), l)
	assert.Same(arr, msg.Get(samples, l).Array())

	// Clearing detaches but does not free; the submessage is intact and
	// still the caller's to release.
	msg.ClearField(origin, l)
	assert.True(msg.Get(origin, l).IsNil())
	sub.Free(pl)
	arr.Free()
}

func TestMessageOneof(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	fd, reg := compileTestSchema(t)
	factory := protomem.NewFactory(reg)
	outer := prototest.Message(t, fd, "Outer")
	l := factory.Layout(outer)
	choice := outer.Oneofs().ByName("choice")
	require.NotNil(t, choice)
	name := prototest.Field(t, outer, "name")
	id := prototest.Field(t, outer, "id")

	msg := protomem.NewMessage(l, protomem.NewHeap())
	assert.False(msg.HasOneof(choice, l))
	assert.Nil(msg.OneofCase(choice, l))

	msg.Set(name, protomem.String("rook"), l)
	assert.Same(name, msg.OneofCase(choice, l))
	assert.True(msg.Has(name, l))
	assert.False(msg.Has(id, l))
	assert.Equal("rook", msg.Get(name, l).Str())

	// Setting another member moves the selector; the old member reads
	// as unset.
	msg.Set(id, protomem.Int64(42), l)
	assert.Same(id, msg.OneofCase(choice, l))
	assert.False(msg.Has(name, l))
	assert.Equal("", msg.Get(name, l).Str())
	assert.Equal(int64(42), msg.Get(id, l).Int64())

	msg.ClearOneof(choice, l)
	assert.False(msg.HasOneof(choice, l))
	assert.Equal(int64(0), msg.Get(id, l).Int64())
}

func TestMessageInitUninitAccounting(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	fd, reg := compileTestSchema(t)
	factory := protomem.NewFactory(reg)
	l := factory.Layout(prototest.Message(t, fd, "Outer"))

	alloc := protomem.NewHeap()
	var msg protomem.Message
	assert.True(msg.Init(l, alloc))
	assert.Equal(l.Size(), alloc.InUse())
	assert.Equal(protomem.MessageSizeOf(l), alloc.InUse())
	assert.True(msg.AppendUnknown([]byte("trailing")))
	assert.Equal([]byte("trailing"), msg.Unknown())

	msg.Uninit(l)
	assert.Zero(alloc.InUse(), "uninit must release everything the message reserved")
}

func TestMessageAllocationFailure(t *testing.T) {
	t.Parallel()

	fd, reg := compileTestSchema(t)
	factory := protomem.NewFactory(reg)
	l := factory.Layout(prototest.Message(t, fd, "Outer"))

	assert.Nil(t, protomem.NewMessage(l, protomem.NewArena(1)))
}

func TestMessageUnknownGrowthFailure(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	fd, reg := compileTestSchema(t)
	factory := protomem.NewFactory(reg)
	l := factory.Layout(prototest.Message(t, fd, "Point"))

	alloc := protomem.NewArena(l.Size() + 16)
	msg := protomem.NewMessage(l, alloc)
	assert.NotNil(msg)

	assert.True(msg.AppendUnknown([]byte("0123456789")))
	ok := msg.AppendUnknown([]byte("this will not fit in the arena"))
	assert.False(ok)
	assert.Equal([]byte("0123456789"), msg.Unknown(), "failed growth leaves prior state")
}

func TestMessageWrongFieldPanics(t *testing.T) {
	t.Parallel()

	fd, reg := compileTestSchema(t)
	factory := protomem.NewFactory(reg)
	point := prototest.Message(t, fd, "Point")
	outer := prototest.Message(t, fd, "Outer")
	l := factory.Layout(point)
	msg := protomem.NewMessage(l, protomem.NewHeap())

	assert.Panics(t, func() { msg.Get(prototest.Field(t, outer, "origin"), l) })
	assert.Panics(t, func() {
		msg.Set(prototest.Field(t, point, "x"), protomem.String("not an int"), l)
	})
}
