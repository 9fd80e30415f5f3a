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

package main

/*
#cgo LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdlib.h>
*/
import "C"

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"
	"unsafe"

	"github.com/google/subcommands"

	"github.com/talismancer/eni-sandbox/internal/logging"
	"github.com/talismancer/eni-sandbox/pkg/eni"
)

// invokeCommand implements subcommands.Command for "invoke": dlopen a .so,
// dlsym a symbol out of it, and run it through an Executor exactly the way
// a real caller would.
type invokeCommand struct {
	soPath  string
	symbol  string
	shape   string
	args    string
	timeout time.Duration
}

func (*invokeCommand) Name() string     { return "invoke" }
func (*invokeCommand) Synopsis() string { return "invoke one ENI callee from a shared object" }
func (*invokeCommand) Usage() string {
	return `invoke -so <path> -symbol <name> -shape {fixed64,cstring} [-args <string>] [-timeout <duration>]:
  dlopen <path>, resolve <name>, and run it through pkg/eni.Executor.
`
}

func (c *invokeCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.soPath, "so", "", "path to a shared object (.so) containing the callee")
	f.StringVar(&c.symbol, "symbol", "", "exported symbol name of the callee")
	f.StringVar(&c.shape, "shape", "fixed64", "result shape: fixed64 or cstring")
	f.StringVar(&c.args, "args", "", "argument string passed to the callee (NUL-terminated automatically)")
	f.DurationVar(&c.timeout, "timeout", 3*time.Second, "invocation deadline")
}

func (c *invokeCommand) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if c.soPath == "" || c.symbol == "" {
		fmt.Fprintln(os.Stderr, "eniharness invoke: -so and -symbol are required")
		return subcommands.ExitUsageError
	}

	fn, closeLib, err := resolveSymbol(c.soPath, c.symbol)
	if err != nil {
		fmt.Fprintf(os.Stderr, "eniharness invoke: %v\n", err)
		return subcommands.ExitFailure
	}
	defer closeLib()

	e := eni.New(eni.WithDeadline(c.timeout), eni.WithLogger(logging.New(os.Stderr, "debug")))
	args := append([]byte(c.args), 0)

	switch c.shape {
	case "fixed64":
		v, status := e.InvokeFixed64(ctx, fn, args)
		fmt.Printf("status=%s value=%d\n", status, v)
		if status != eni.SUCCESS {
			return subcommands.ExitFailure
		}
	case "cstring":
		buf, status := e.InvokeCString(ctx, fn, args)
		fmt.Printf("status=%s value=%q\n", status, buf)
		if status != eni.SUCCESS {
			return subcommands.ExitFailure
		}
	default:
		fmt.Fprintf(os.Stderr, "eniharness invoke: unknown shape %q\n", c.shape)
		return subcommands.ExitUsageError
	}
	return subcommands.ExitSuccess
}

// resolveSymbol dlopens path and dlsyms name out of it, returning the raw
// function pointer and a closer that dlcloses the library. This opens a
// library handle on the harness's own behalf; it has no effect on the
// fds the core library itself closes or keeps (spec's fd invariants bind
// the per-invocation Sandbox Setup step, not this harness process).
func resolveSymbol(path, name string) (unsafe.Pointer, func(), error) {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	handle := C.dlopen(cPath, C.RTLD_NOW)
	if handle == nil {
		return nil, nil, fmt.Errorf("dlopen %q: %s", path, C.GoString(C.dlerror()))
	}

	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))

	sym := C.dlsym(handle, cName)
	if sym == nil {
		C.dlclose(handle)
		return nil, nil, fmt.Errorf("dlsym %q in %q: %s", name, path, C.GoString(C.dlerror()))
	}

	return unsafe.Pointer(sym), func() { C.dlclose(handle) }, nil
}
