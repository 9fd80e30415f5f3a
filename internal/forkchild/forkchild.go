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

//go:build linux
// +build linux

// Package forkchild is the only package of the library (pkg/ and
// internal/) that crosses the cgo boundary. It owns Sandbox Setup and the Child Runner (spec §4.1,
// §4.2): the fork() call itself, the fd closure, the strict seccomp
// install, and the call into the callee's raw function pointer. All of it
// runs in C so the forked child never touches the Go scheduler, which is
// not safe to use in a process that only forked (rather than forked+exec).
package forkchild

/*
#include <stdlib.h>

#include "child.h"
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// Shape selects how the callee's return value is interpreted. It mirrors
// eni.Shape; kept distinct to avoid an import cycle with the public
// package.
type Shape int32

// The two shapes the callee may declare, matching ENI_SHAPE_* in child.h.
const (
	ShapeFixed64 Shape = C.ENI_SHAPE_FIXED64
	ShapeCString Shape = C.ENI_SHAPE_CSTRING
)

// The exit codes the child itself can determine and raw-exit with,
// matching ENI_STATUS_* and ENI_SECCOMP_FAIL_EXIT in child.h.
const (
	ExitSuccess      = int(C.ENI_STATUS_SUCCESS)
	ExitResourceBusy = int(C.ENI_STATUS_RESOURCE_BUSY)
	ExitSeccompFail  = int(C.ENI_SECCOMP_FAIL_EXIT)
	ExitNullResult   = int(C.ENI_STATUS_NULL_RESULT)
)

// ForkAndCall forks the calling process. In the parent it returns the
// child's pid. In the child, Sandbox Setup runs, then fn(args) is invoked
// per shape and its result is written to keepFD before the child
// raw-exits -- ForkAndCall never returns in the child.
//
// fn is an opaque native function address (e.g. resolved via dlsym); it is
// not Go-managed memory, so passing it across the cgo boundary retains no
// Go pointer. args must be NUL-terminated; it is copied into C-owned
// memory before the fork so the child's copy survives independently of
// whatever the Go garbage collector does to the original slice.
func ForkAndCall(shape Shape, fn unsafe.Pointer, args []byte, keepFD int) (pid int, err error) {
	if len(args) == 0 || args[len(args)-1] != 0 {
		return 0, fmt.Errorf("forkchild: args must be NUL-terminated")
	}

	cArgs := C.CBytes(args)
	defer C.free(cArgs)

	ret, errno := C.eni_fork_and_call(C.int(shape), fn, (*C.char)(cArgs), C.int(keepFD))
	if ret < 0 {
		return 0, fmt.Errorf("forkchild: fork failed: %w", errno)
	}
	return int(ret), nil
}
