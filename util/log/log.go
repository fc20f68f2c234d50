// Copyright 2024 The RangeKV Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package log provides context-aware leveled logging. Context tags
// attached via logtags are rendered as a bracketed prefix on every line,
// and messages are formatted through redact so that unsafe values stay
// distinguishable from log metadata.
package log

import (
	"context"
	"io"
	stdlog "log"
	"os"
	"sync/atomic"

	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/redact"
)

// Severity labels a log entry.
type Severity int

const (
	// SeverityInfo is used for informational messages.
	SeverityInfo Severity = iota
	// SeverityWarning is used for situations which may require special
	// handling, where normal operation is expected to resume.
	SeverityWarning
	// SeverityError is used for internal errors.
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "I"
	case SeverityWarning:
		return "W"
	case SeverityError:
		return "E"
	}
	return "?"
}

var logger atomic.Pointer[stdlog.Logger]

func init() {
	logger.Store(stdlog.New(os.Stderr, "", stdlog.LstdFlags|stdlog.Lmicroseconds))
}

// SetOutput redirects log output, returning a function that restores the
// previous destination. Used by tests.
func SetOutput(w io.Writer) func() {
	prev := logger.Load()
	logger.Store(stdlog.New(w, "", 0))
	return func() { logger.Store(prev) }
}

// verbosity gates Eventf output.
var verbosity atomic.Int32

// SetVerbosity sets the verbosity level above which Eventf calls are
// dropped.
func SetVerbosity(v int) { verbosity.Store(int32(v)) }

// V returns true if the given verbosity level is currently enabled.
func V(level int) bool { return verbosity.Load() >= int32(level) }

func output(ctx context.Context, sev Severity, format string, args ...interface{}) {
	// Format through redact, then strip the markers: this sink is plain
	// text, but formatting redactably keeps %v of error chains stable
	// with the rest of the stack.
	msg := redact.Sprintf(format, args...).StripMarkers()
	if tags := logtags.FromContext(ctx); tags != nil {
		logger.Load().Printf("%s [%s] %s", sev, tags, msg)
		return
	}
	logger.Load().Printf("%s %s", sev, msg)
}

// Infof logs to the INFO level, formatting its arguments and attaching
// the context's log tags.
func Infof(ctx context.Context, format string, args ...interface{}) {
	output(ctx, SeverityInfo, format, args...)
}

// Warningf logs to the WARNING level.
func Warningf(ctx context.Context, format string, args ...interface{}) {
	output(ctx, SeverityWarning, format, args...)
}

// Errorf logs to the ERROR level.
func Errorf(ctx context.Context, format string, args ...interface{}) {
	output(ctx, SeverityError, format, args...)
}

// Eventf logs at the given verbosity level; entries are dropped unless
// V(level) is enabled. Used for high-volume trace output such as
// per-mutation catalog logging.
func Eventf(ctx context.Context, level int, format string, args ...interface{}) {
	if !V(level) {
		return
	}
	output(ctx, SeverityInfo, format, args...)
}
