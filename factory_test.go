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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bufbuild/protomem"
	"github.com/bufbuild/protomem/internal/prototest"
)

func TestFactoryCachesByIdentity(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	fd, reg := compileTestSchema(t)
	factory := protomem.NewFactory(reg)
	point := prototest.Message(t, fd, "Point")

	l1 := factory.Layout(point)
	l2 := factory.Layout(point)
	assert.Same(l1, l2)
	assert.Same(factory, l1.Factory())
	assert.Same(point, l1.Descriptor())

	h1 := factory.MergeHandlers(point)
	assert.Same(h1, factory.MergeHandlers(point))

	vp1 := factory.VisitorPlan(h1)
	assert.Same(vp1, factory.VisitorPlan(h1))
	assert.Same(h1, vp1.Handlers())
}

func TestFactorySeparateFactoriesSeparateLayouts(t *testing.T) {
	t.Parallel()

	fd, reg := compileTestSchema(t)
	point := prototest.Message(t, fd, "Point")

	f1 := protomem.NewFactory(reg)
	f2 := protomem.NewFactory(reg)
	assert.NotSame(t, f1.Layout(point), f2.Layout(point))
}

func TestFactoryRecursiveSchema(t *testing.T) {
	t.Parallel()

	fd, reg := compileTestSchema(t)
	factory := protomem.NewFactory(reg)
	tree := prototest.Message(t, fd, "Tree")

	// A self-referential schema must terminate and link back to the
	// memoized layout.
	l := factory.Layout(tree)
	left := prototest.Field(t, tree, "left")
	assert.Same(t, l, l.Sublayout(left))
}

func TestFactorySublayouts(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	fd, reg := compileTestSchema(t)
	factory := protomem.NewFactory(reg)
	outer := prototest.Message(t, fd, "Outer")
	point := prototest.Message(t, fd, "Point")

	l := factory.Layout(outer)
	pointLayout := factory.Layout(point)
	assert.Same(pointLayout, l.Sublayout(prototest.Field(t, outer, "origin")))
	assert.Same(pointLayout, l.Sublayout(prototest.Field(t, outer, "points")))

	// A map field's sublayout is the layout of its value type; the
	// synthetic entry schema has no layout of its own.
	assert.Same(pointLayout, l.Sublayout(prototest.Field(t, outer, "index")))
	assert.Panics(func() { l.Sublayout(prototest.Field(t, outer, "tags")) })
}

func TestFactoryRejectsMapEntrySchema(t *testing.T) {
	t.Parallel()

	fd, reg := compileTestSchema(t)
	factory := protomem.NewFactory(reg)
	outer := prototest.Message(t, fd, "Outer")
	entry := prototest.Field(t, outer, "tags").Message()
	require.True(t, entry.IsMapEntry())

	assert.Panics(t, func() { factory.Layout(entry) })
}

func TestFactoryRejectsForeignSchema(t *testing.T) {
	t.Parallel()

	fd, _ := compileTestSchema(t)
	_, otherReg := prototest.CompileOne(t, `
syntax = "proto3";
package other;
message Lone { int32 n = 1; }
`)
	factory := protomem.NewFactory(otherReg)

	assert.Panics(t, func() { factory.Layout(prototest.Message(t, fd, "Point")) })
}

func TestFactoryFreeInvalidates(t *testing.T) {
	t.Parallel()

	fd, reg := compileTestSchema(t)
	factory := protomem.NewFactory(reg)
	point := prototest.Message(t, fd, "Point")
	factory.Layout(point)

	factory.Free()
	assert.Panics(t, func() { factory.Layout(point) })
	assert.Panics(t, func() { factory.MergeHandlers(point) })
}

func TestFactoryConcurrentWarmup(t *testing.T) {
	t.Parallel()

	fd, reg := compileTestSchema(t)
	factory := protomem.NewFactory(reg, protomem.WithConcurrentWarmup())
	outer := prototest.Message(t, fd, "Outer")

	const goroutines = 16
	layouts := make([]*protomem.Layout, goroutines)
	var wg sync.WaitGroup
	for i := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			layouts[i] = factory.Layout(outer)
		}()
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		assert.Same(t, layouts[0], layouts[i])
	}
}
