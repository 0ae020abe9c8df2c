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

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"

	"github.com/bufbuild/protomem/internal/prototest"
)

// testSchema is the schema most tests share: plain scalars, tracked
// presence, submessages, repeated fields, maps, a oneof, and a message
// that references itself.
const testSchema = `
syntax = "proto3";
package test;

message Point {
  int32 x = 1;
  int32 y = 2;
}

message Scalars {
  bool b = 1;
  int32 i32 = 2;
  int64 i64 = 3;
  uint32 u32 = 4;
  uint64 u64 = 5;
  float f = 6;
  double d = 7;
  string s = 8;
  bytes raw = 9;
  optional int32 tracked = 10;
}

message Tree {
  string label = 1;
  Tree left = 2;
  Tree right = 3;
}

message Outer {
  Point origin = 1;
  repeated int32 samples = 2;
  repeated Point points = 3;
  map<string, int32> tags = 4;
  map<int32, Point> index = 5;
  oneof choice {
    string name = 6;
    Point pos = 7;
    int64 id = 8;
  }
}
`

// compileTestSchema compiles testSchema once per test and returns its
// file descriptor and a registry usable as a factory symbol table.
func compileTestSchema(t *testing.T) (protoreflect.FileDescriptor, *protoregistry.Files) {
	t.Helper()
	return prototest.CompileOne(t, testSchema)
}
