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

// Package protomem provides a reflective, schema-driven in-memory
// representation for protobuf messages.
//
// It differs from other common representations like dynamicpb in one key
// way: it does not prescribe any ownership between messages and their
// submessages, arrays, or maps. A [Message] knows its field layout but has
// no opinion about who allocates or frees the values its fields reference;
// the caller owns that responsibility entirely. Reading a message requires
// no knowledge of its ownership scheme, but creating or mutating one means
// the caller must manage memory themselves, typically by composing the
// [Allocator] primitives this package exposes (for example, [Arena]).
//
// The major pieces:
//
//   - [Value]: a tagged union holding any scalar, string view, or reference
//     to a [Message], [Array], or [Map]. A Value copied out of a container
//     is a view, never a transfer.
//   - [Layout]: a schema-derived description of one message shape, produced
//     and owned by a [Factory].
//   - [Message]: a fixed-size instance interpreted through its Layout, with
//     a generic get/set API over [protoreflect.FieldDescriptor] handles.
//   - [Array] and [Map]: dynamically sized repeated and associative field
//     storage, independently allocated and independently owned.
//   - [Factory]: a schema-scoped cache of Layouts, [Handlers], and
//     [VisitorPlan]s, lazily populated and keyed by schema identity.
//   - [Visitor]: schema-ordered traversal of a message tree, driving a
//     [Sink]'s per-field callbacks. This is the bridge to encoders, which
//     are out of scope for this package.
//
// Schemas come from the protoreflect API; any symbol table that can resolve
// descriptors by full name (such as [protoregistry.Files]) can back a
// Factory.
//
// Except where noted on [Factory], nothing in this package is safe for
// concurrent mutation; operations execute synchronously on the caller's
// goroutine.
//
// [protoregistry.Files]: google.golang.org/protobuf/reflect/protoregistry
package protomem
