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

// Package reaper implements the waitpid half of Reaper & Classifier: it
// reaps exactly one child and reports its raw termination cause. Mapping
// that cause onto the Status taxonomy is the caller's job (package eni),
// since Status is a public type this package must not depend on.
package reaper

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/sys/unix"
)

// Outcome is the raw termination cause of a reaped child.
type Outcome struct {
	// Exited is true if the child called exit/_exit (directly or via
	// raw-exit); ExitCode is then valid.
	Exited   bool
	ExitCode int
	// Signaled is true if a signal terminated the child; Signal is
	// then valid.
	Signaled bool
	Signal   unix.Signal
}

// maxReapWait bounds the "waitpid returning 0 transiently" retry the spec
// documents (the child may not be immediately reapable right after EOF on
// its write end). In every real invocation the child has already written
// and closed by the time Reap is called, so this ceiling is not expected
// to trigger; it exists so a genuine kernel-level wedge is reported as an
// error instead of hanging forever.
const maxReapWait = 5 * time.Second

const reapPollInterval = 2 * time.Millisecond

// Reap waits for pid to terminate, retrying WNOHANG==0 with a constant
// backoff instead of a bare spin loop.
func Reap(pid int) (Outcome, error) {
	var ws unix.WaitStatus

	ctx, cancel := context.WithTimeout(context.Background(), maxReapWait)
	defer cancel()

	op := func() error {
		wpid, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("reaper: wait4(%d): %w", pid, err))
		}
		if wpid == 0 {
			return fmt.Errorf("reaper: child %d not yet reapable", pid)
		}
		return nil
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(reapPollInterval), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return Outcome{}, err
	}

	switch {
	case ws.Exited():
		return Outcome{Exited: true, ExitCode: ws.ExitStatus()}, nil
	case ws.Signaled():
		return Outcome{Signaled: true, Signal: ws.Signal()}, nil
	default:
		return Outcome{}, fmt.Errorf("reaper: child %d terminated with unrecognized wait status %v", pid, ws)
	}
}
