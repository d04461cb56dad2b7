// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
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

package accurate

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TraceDirection is the side of the link a traced operation went.
type TraceDirection string

const (
	// TraceTX is data written to the device
	TraceTX TraceDirection = "TX"
	// TraceRX is data read back, or the lack of it
	TraceRX TraceDirection = "RX"
)

const traceClock = "15:04:05.000"

// TraceEntry is one wire operation.
type TraceEntry struct {
	Timestamp time.Time
	Direction TraceDirection
	Note      string
	Data      []byte
}

func (e TraceEntry) String() string {
	s := "[" + e.Timestamp.Format(traceClock) + "] " + string(e.Direction) + ": " + formatHexBytes(e.Data)
	if e.Note != "" {
		s += " (" + e.Note + ")"
	}
	return s
}

// TraceableError carries the wire operations that preceded a failure.
//
//	if te := accurate.GetTrace(err); te != nil {
//	    fmt.Println(te.FormatTrace())
//	}
type TraceableError struct {
	Err       error
	Transport string
	Port      string
	Trace     []TraceEntry
}

func (e *TraceableError) Error() string {
	return e.Err.Error()
}

func (e *TraceableError) Unwrap() error {
	return e.Err
}

// FormatTrace renders the trace one operation per line, ">" for writes
// and "<" for reads.
func (e *TraceableError) FormatTrace() string {
	if len(e.Trace) == 0 {
		return fmt.Sprintf("[%s:%s] (no trace data)", e.Transport, e.Port)
	}

	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "[%s:%s] Wire trace (%d entries):\n", e.Transport, e.Port, len(e.Trace))
	for _, entry := range e.Trace {
		arrow := "> "
		if entry.Direction == TraceRX {
			arrow = "< "
		}
		sb.WriteString("  " + arrow + formatHexBytes(entry.Data))
		if entry.Note != "" {
			sb.WriteString(" (" + entry.Note + ")")
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// GetTrace returns the trace attached to err, or nil.
func GetTrace(err error) *TraceableError {
	var te *TraceableError
	if errors.As(err, &te) {
		return te
	}
	return nil
}

const maxTraceBytes = 40

func formatHexBytes(data []byte) string {
	switch {
	case len(data) == 0:
		return "(empty)"
	case len(data) > maxTraceBytes:
		return fmt.Sprintf("% X ... (%d bytes total)", data[:maxTraceBytes], len(data))
	default:
		return fmt.Sprintf("% X", data)
	}
}

// TraceBuffer is a ring of the most recent wire operations of one writer.
//
// Thread Safety: TraceBuffer is NOT thread-safe.
type TraceBuffer struct {
	transport string
	port      string
	ring      []TraceEntry
	next      int
	full      bool
}

// NewTraceBuffer keeps the last size operations; size defaults to 16.
func NewTraceBuffer(transport, port string, size int) *TraceBuffer {
	if size <= 0 {
		size = 16
	}
	return &TraceBuffer{transport: transport, port: port, ring: make([]TraceEntry, size)}
}

// RecordTX records bytes written to the device.
func (tb *TraceBuffer) RecordTX(data []byte, note string) {
	tb.record(TraceTX, data, note)
}

// RecordRX records bytes read from the device.
func (tb *TraceBuffer) RecordRX(data []byte, note string) {
	tb.record(TraceRX, data, note)
}

// RecordTimeout records a read that got nothing.
func (tb *TraceBuffer) RecordTimeout(note string) {
	tb.record(TraceRX, nil, "TIMEOUT: "+note)
}

func (tb *TraceBuffer) record(dir TraceDirection, data []byte, note string) {
	tb.ring[tb.next] = TraceEntry{
		Timestamp: time.Now(),
		Direction: dir,
		Note:      note,
		Data:      append([]byte(nil), data...),
	}
	tb.next = (tb.next + 1) % len(tb.ring)
	if tb.next == 0 {
		tb.full = true
	}
}

// Entries returns the recorded operations, oldest first.
func (tb *TraceBuffer) Entries() []TraceEntry {
	if !tb.full {
		return append([]TraceEntry(nil), tb.ring[:tb.next]...)
	}
	out := make([]TraceEntry, 0, len(tb.ring))
	out = append(out, tb.ring[tb.next:]...)
	return append(out, tb.ring[:tb.next]...)
}

// WrapError attaches the current trace to err. A nil err stays nil.
func (tb *TraceBuffer) WrapError(err error) error {
	if err == nil {
		return nil
	}
	return &TraceableError{Err: err, Transport: tb.transport, Port: tb.port, Trace: tb.Entries()}
}

// Clear forgets every recorded operation.
func (tb *TraceBuffer) Clear() {
	clear(tb.ring)
	tb.next = 0
	tb.full = false
}
