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

// Package reader implements the Parent Reader with Deadline: it drains a
// non-blocking pipe read end until EOF or a one-shot deadline, using
// epoll to wait between reads rather than a busy loop.
package reader

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// ErrDeadlineExceeded is returned when the timer fires before the pipe
// reaches EOF. The child has already been sent SIGKILL by the time this
// is returned; reaping it is the caller's responsibility.
var ErrDeadlineExceeded = errors.New("reader: deadline exceeded")

const initialBufCap = 32

// Read drains fd (which must already be set O_NONBLOCK) until EOF,
// doubling a growable buffer as needed, bounded by deadline. pid is the
// child whose write end is the other end of fd; it is only used to send
// SIGKILL if the deadline fires.
func Read(fd int, pid int, deadline time.Duration) ([]byte, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reader: epoll_create1: %w", err)
	}
	defer unix.Close(epfd)

	timerFD, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reader: timerfd_create: %w", err)
	}
	defer unix.Close(timerFD)

	spec := &unix.ItimerSpec{Value: unix.NsecToTimespec(deadline.Nanoseconds())}
	if err := unix.TimerfdSettime(timerFD, 0, spec, nil); err != nil {
		return nil, fmt.Errorf("reader: timerfd_settime: %w", err)
	}

	// Level-triggered on the timer: once armed, it stays readable until
	// consumed, so an unlucky epoll_wait can never lose the deadline.
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, timerFD, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(timerFD),
	}); err != nil {
		return nil, fmt.Errorf("reader: epoll_ctl(timer): %w", err)
	}
	// Edge-triggered on the pipe: forces a full drain on every
	// notification, required because multiple writes from the child can
	// coalesce into a single edge.
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLET,
		Fd:     int32(fd),
	}); err != nil {
		return nil, fmt.Errorf("reader: epoll_ctl(pipe): %w", err)
	}

	buf := make([]byte, 0, initialBufCap)
	events := make([]unix.EpollEvent, 2)

	for {
		if len(buf) == cap(buf) {
			grown := make([]byte, len(buf), cap(buf)*2)
			copy(grown, buf)
			buf = grown
		}

		n, rerr := unix.Read(fd, buf[len(buf):cap(buf)])
		switch {
		case n > 0:
			buf = buf[:len(buf)+n]
			continue // edge-triggered: keep draining before waiting again.

		case n == 0:
			return buf, nil // clean EOF: child closed w and exited.

		case errors.Is(rerr, unix.EAGAIN):
			nev, werr := unix.EpollWait(epfd, events, -1)
			if werr != nil {
				if errors.Is(werr, unix.EINTR) {
					continue
				}
				return nil, fmt.Errorf("reader: epoll_wait: %w", werr)
			}
			if nev <= 0 {
				return nil, fmt.Errorf("reader: epoll_wait returned %d events", nev)
			}

			var timedOut, pipeReady bool
			for _, ev := range events[:nev] {
				switch int(ev.Fd) {
				case timerFD:
					timedOut = true
				case fd:
					pipeReady = true
				}
			}
			if timedOut {
				_ = unix.Kill(pid, unix.SIGKILL)
				return nil, ErrDeadlineExceeded
			}
			if !pipeReady {
				return nil, fmt.Errorf("reader: epoll reported neither pipe nor timer ready")
			}
			continue

		default:
			return nil, fmt.Errorf("reader: read: %w", rerr)
		}
	}
}
