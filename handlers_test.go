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

	"github.com/bufbuild/protomem"
	"github.com/bufbuild/protomem/internal/prototest"
)

func TestScalarHandlers(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	fd, reg := compileTestSchema(t)
	factory := protomem.NewFactory(reg)
	scalars := prototest.Message(t, fd, "Scalars")
	l := factory.Layout(scalars)
	h := factory.MergeHandlers(scalars)

	i32 := prototest.Field(t, scalars, "i32")
	tracked := prototest.Field(t, scalars, "tracked")
	s := prototest.Field(t, scalars, "s")

	// Primitive fields get the standard recognizable writer.
	typ, _, hasbit, ok := h.ScalarHandlerData(i32)
	require.True(t, ok)
	assert.Equal(protomem.TypeInt32, typ)
	assert.Equal(int32(-1), hasbit, "implicit-presence field writes no hasbit")

	_, _, hasbit, ok = h.ScalarHandlerData(tracked)
	require.True(t, ok)
	assert.GreaterOrEqual(hasbit, int32(0))

	// String fields are not scalar writers.
	_, _, _, ok = h.ScalarHandlerData(s)
	assert.False(ok)
	assert.Equal(protomem.HandlerString, h.Field(s).Kind)

	// Whatever the kind, Func performs the write.
	msg := protomem.NewMessage(l, protomem.NewHeap())
	assert.True(h.Field(i32).Func(msg, protomem.Int32(77)))
	assert.Equal(int32(77), msg.Get(i32, l).Int32())
	assert.True(h.Field(tracked).Func(msg, protomem.Int32(0)))
	assert.True(msg.Has(tracked, l))
	assert.True(h.Field(s).Func(msg, protomem.String("via handler")))
	assert.Equal("via handler", msg.Get(s, l).Str())
}

func TestScalarHandlerOneofMember(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	fd, reg := compileTestSchema(t)
	factory := protomem.NewFactory(reg)
	outer := prototest.Message(t, fd, "Outer")
	l := factory.Layout(outer)
	h := factory.MergeHandlers(outer)
	id := prototest.Field(t, outer, "id")
	choice := outer.Oneofs().ByName("choice")

	msg := protomem.NewMessage(l, protomem.NewHeap())
	assert.True(h.Field(id).Func(msg, protomem.Int64(5)))
	assert.Same(id, msg.OneofCase(choice, l), "scalar writer updates the oneof selector")
}

func TestSetScalarHandlerRejectsNonScalars(t *testing.T) {
	t.Parallel()

	fd, reg := compileTestSchema(t)
	factory := protomem.NewFactory(reg)
	outer := prototest.Message(t, fd, "Outer")
	h := factory.MergeHandlers(outer)

	assert.False(t, h.SetScalarHandler(prototest.Field(t, outer, "origin"), 0, -1))
	assert.False(t, h.SetScalarHandler(prototest.Field(t, outer, "samples"), 0, -1))
	assert.False(t, h.SetScalarHandler(prototest.Field(t, outer, "tags"), 0, -1))
}
