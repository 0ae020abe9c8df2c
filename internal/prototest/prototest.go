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

// Package prototest compiles in-source .proto schemas into descriptors for
// tests.
package prototest

import (
	"context"
	"testing"

	"github.com/bufbuild/protocompile"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
)

// Compile compiles the given sources (path -> proto source) and returns
// the file descriptor for the first requested path, along with a registry
// covering every compiled file, for use as a factory's symbol table.
func Compile(t *testing.T, sources map[string]string, paths ...string) (protoreflect.FileDescriptor, *protoregistry.Files) {
	t.Helper()
	compiler := protocompile.Compiler{
		Resolver: protocompile.WithStandardImports(&protocompile.SourceResolver{
			Accessor: protocompile.SourceAccessorFromMap(sources),
		}),
	}
	files, err := compiler.Compile(context.Background(), paths...)
	require.NoError(t, err)

	reg := &protoregistry.Files{}
	for _, f := range files {
		require.NoError(t, reg.RegisterFile(f))
	}
	return files[0], reg
}

// CompileOne compiles a single unnamed source file and returns its
// descriptor and registry.
func CompileOne(t *testing.T, source string) (protoreflect.FileDescriptor, *protoregistry.Files) {
	t.Helper()
	return Compile(t, map[string]string{"test.proto": source}, "test.proto")
}

// Message finds a message descriptor by name within fd, failing the test
// if it does not exist.
func Message(t *testing.T, fd protoreflect.FileDescriptor, name protoreflect.Name) protoreflect.MessageDescriptor {
	t.Helper()
	md := fd.Messages().ByName(name)
	require.NotNil(t, md, "message %s not found in %s", name, fd.Path())
	return md
}

// Field finds a field descriptor by name within md, failing the test if
// it does not exist.
func Field(t *testing.T, md protoreflect.MessageDescriptor, name protoreflect.Name) protoreflect.FieldDescriptor {
	t.Helper()
	fd := md.Fields().ByName(name)
	require.NotNil(t, fd, "field %s not found in %s", name, md.FullName())
	return fd
}
