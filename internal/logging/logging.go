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

// Package logging provides the executor's leveled diagnostics. It keeps
// the call-site shape used throughout the teacher codebase
// (log.Debugf/Infof/Warningf) but backs it with logrus rather than a
// hand-rolled internal logger, since tests want to silence it and callers
// may want structured (JSON) output in production.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logger is a thin leveled-logging facade. The zero value is not usable;
// construct one with New or Discard.
type Logger struct {
	entry *logrus.Entry
}

// New returns a Logger that writes text-formatted lines to w at the given
// level ("debug", "info", "warning", ...). An empty level defaults to
// "info", matching the teacher's default log verbosity.
func New(w io.Writer, level string) *Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return &Logger{entry: logrus.NewEntry(l)}
}

// Discard returns a Logger that drops every message; tests use it so
// invocation logs don't pollute `go test -v` output.
func Discard() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Logger{entry: logrus.NewEntry(l)}
}

// With returns a Logger that attaches the given fields to every
// subsequent message, e.g. log.With("pid", pid).Debugf("forked").
func (l *Logger) With(kv ...interface{}) *Logger {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			fields[key] = kv[i+1]
		}
	}
	return &Logger{entry: l.entry.WithFields(fields)}
}

// Debugf logs a per-state-machine-transition diagnostic.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// Infof logs a routine, user-visible event.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

// Warningf logs a host-attributable fault.
func (l *Logger) Warningf(format string, args ...interface{}) {
	l.entry.Warningf(format, args...)
}
