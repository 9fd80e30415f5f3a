// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package eni

import "github.com/talismancer/eni-sandbox/internal/forkchild"

// Shape tags how the parent must measure and interpret the bytes an ENI
// callee writes back.
type Shape int32

const (
	// Fixed64 callees return a pointer to an 8-byte signed integer;
	// the result is always exactly 8 bytes.
	Fixed64 Shape = Shape(forkchild.ShapeFixed64)
	// CString callees return a pointer to a NUL-terminated byte
	// string; the result length is the byte count including the
	// terminating NUL.
	CString Shape = Shape(forkchild.ShapeCString)
)

func (s Shape) String() string {
	switch s {
	case Fixed64:
		return "Fixed64"
	case CString:
		return "CString"
	default:
		return "UnknownShape"
	}
}
