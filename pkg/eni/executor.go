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

// Package eni is the sandboxed synchronous invocation primitive for ENI
// operations: it forks, sandboxes, runs and reaps one native function
// call per invocation, and classifies the outcome into a stable status
// taxonomy. See SPEC_FULL.md for the full component design.
package eni

import (
	"context"
	"encoding/binary"
	"os"
	"time"
	"unsafe"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"

	"github.com/talismancer/eni-sandbox/internal/forkchild"
	"github.com/talismancer/eni-sandbox/internal/logging"
	"github.com/talismancer/eni-sandbox/internal/reader"
	"github.com/talismancer/eni-sandbox/internal/reaper"
)

// defaultDeadline is the spec's literal 3-second deadline.
const defaultDeadline = 3 * time.Second

// conventionalFDCeiling is the fd-table size past which the environment
// is considered unusual enough to warn about (spec §6: "a conventional
// fd-table ceiling, FD_SETSIZE, typically 1024; a warning is logged if
// larger").
const conventionalFDCeiling = 1024

// Executor runs ENI invocations. It supports exactly one invocation in
// flight at a time (spec §1 Non-goals); separate Executors are fully
// independent and share no state.
type Executor struct {
	sem      *semaphore.Weighted
	deadline time.Duration
	log      *logging.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithDeadline overrides the default 3-second deadline. Tests use this to
// avoid paying the full deadline for the TLE scenario.
func WithDeadline(d time.Duration) Option {
	return func(e *Executor) { e.deadline = d }
}

// WithLogger overrides the default logger. Tests typically pass
// logging.Discard() to keep invocation diagnostics out of `go test -v`.
func WithLogger(l *logging.Logger) Option {
	return func(e *Executor) { e.log = l }
}

// New constructs an Executor with the given options.
func New(opts ...Option) *Executor {
	e := &Executor{
		sem:      semaphore.NewWeighted(1),
		deadline: defaultDeadline,
		log:      logging.New(os.Stderr, "info"),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.warnIfFDCeilingUnusual()
	return e
}

func (e *Executor) warnIfFDCeilingUnusual() {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return
	}
	if rlim.Cur > conventionalFDCeiling {
		e.log.Warningf("fd-table ceiling %d exceeds the conventional %d; sandbox setup's fd scan will take longer", rlim.Cur, conventionalFDCeiling)
	}
}

// InvokeFixed64 invokes fn, a function taking a NUL-terminated byte
// buffer and returning a pointer to an 8-byte signed integer. On SUCCESS
// value is the integer read from the pointee; on any non-success value
// is 0.
func (e *Executor) InvokeFixed64(ctx context.Context, fn unsafe.Pointer, args []byte) (int64, Status) {
	buf, status := e.invoke(ctx, Fixed64, fn, args)
	if status != SUCCESS {
		return 0, status
	}
	if len(buf) != 8 {
		e.log.Warningf("Fixed64 callee returned %d bytes, want 8", len(buf))
		return 0, FAILURE
	}
	return int64(binary.LittleEndian.Uint64(buf)), SUCCESS
}

// InvokeCString invokes fn, a function taking a NUL-terminated byte
// buffer and returning a NUL-terminated byte string. On SUCCESS value is
// the returned bytes including the terminator; on any non-success value
// is nil.
func (e *Executor) InvokeCString(ctx context.Context, fn unsafe.Pointer, args []byte) ([]byte, Status) {
	buf, status := e.invoke(ctx, CString, fn, args)
	if status != SUCCESS {
		return nil, status
	}
	return buf, SUCCESS
}

// invoke runs the full fork -> sandbox -> run -> read -> reap ->
// classify pipeline for one call. It is the Reaper & Classifier's
// top-level driver (spec §4.4) and owns every ephemeral resource's
// lifetime (spec §3's "Ephemeral resources per invocation").
func (e *Executor) invoke(ctx context.Context, shape Shape, fn unsafe.Pointer, args []byte) ([]byte, Status) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, FAILURE
	}
	defer e.sem.Release(1)

	if len(args) == 0 || args[len(args)-1] != 0 {
		args = append(append([]byte{}, args...), 0)
	}

	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC); err != nil {
		e.log.Warningf("pipe2: %v", err)
		return nil, RESOURCE_BUSY
	}
	readFD, writeFD := p[0], p[1]

	if err := unix.SetNonblock(readFD, true); err != nil {
		e.log.Warningf("set read end nonblocking: %v", err)
		unix.Close(readFD)
		unix.Close(writeFD)
		return nil, RESOURCE_BUSY
	}

	pid, err := forkchild.ForkAndCall(forkchild.Shape(shape), fn, args, writeFD)
	if err != nil {
		e.log.Warningf("fork: %v", err)
		unix.Close(readFD)
		unix.Close(writeFD)
		return nil, FAILURE
	}
	e.log.Debugf("forked pid %d for shape %s", pid, shape)

	// The write end is now owned by the child; the parent must close
	// its copy before reading, or it will never observe EOF.
	unix.Close(writeFD)
	defer unix.Close(readFD)

	buf, readErr := reader.Read(readFD, pid, e.deadline)

	// Any reader failure, not just a deadline, may leave the child still
	// running (e.g. epoll_create1/timerfd_create/epoll_ctl failing before
	// the child's own output or exit is observed). Reap must never block
	// on a child nothing has told to die, so every non-nil readErr gets
	// an unconditional SIGKILL first; this is harmless when the child has
	// already exited or was already killed by the reader.
	if readErr != nil {
		_ = unix.Kill(pid, unix.SIGKILL)
	}

	outcome, reapErr := reaper.Reap(pid)
	if reapErr != nil {
		e.log.Warningf("reap pid %d: %v", pid, reapErr)
		return nil, FAILURE
	}

	// The Reader's status is authoritative for TLE: it already sent
	// SIGKILL and set the status before the child was reaped, so a
	// timeout always wins regardless of how the child ultimately
	// terminated (spec §4.4 step 3).
	if readErr == reader.ErrDeadlineExceeded {
		e.log.Debugf("pid %d: deadline exceeded", pid)
		return nil, TLE
	}

	if readErr != nil {
		e.log.Warningf("read pid %d: %v", pid, readErr)
		return nil, FAILURE
	}

	switch {
	case outcome.Exited && outcome.ExitCode == 0:
		return buf, SUCCESS
	case outcome.Exited:
		return nil, Status(outcome.ExitCode)
	case outcome.Signaled && outcome.Signal == unix.SIGSEGV:
		return nil, SEGFAULT
	case outcome.Signaled && outcome.Signal == unix.SIGKILL:
		return nil, KILLED
	case outcome.Signaled:
		e.log.Warningf("pid %d: terminated by unexpected signal %v", pid, outcome.Signal)
		return nil, FAILURE
	default:
		return nil, FAILURE
	}
}

