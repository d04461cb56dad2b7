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

package capture

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	accurate "github.com/ZaparooProject/go-accurate"
	"github.com/ZaparooProject/go-accurate/internal/syncutil"
	"github.com/fxamacker/cbor/v2"
)

// Recorder appends records to a capture stream. It is safe for concurrent
// use: frames arrive from the control loop while commands come from the
// shell.
type Recorder struct {
	encoder *cbor.Encoder
	closer  io.Closer
	now     func() time.Time
	frames  int
	mu      syncutil.Mutex
	closed  bool
}

// NewRecorder starts a capture on w and writes the header record.
func NewRecorder(w io.Writer, revision string) (*Recorder, error) {
	r := &Recorder{encoder: encMode.NewEncoder(w), now: time.Now}
	if err := r.write(Record{
		Kind:     RecordHeader,
		Version:  FormatVersion,
		Revision: revision,
		Session:  accurate.GetSessionID(),
	}); err != nil {
		return nil, err
	}
	return r, nil
}

// Create starts a capture in a new file, truncating any existing one.
func Create(path, revision string) (*Recorder, error) {
	f, err := os.Create(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("create capture: %w", err)
	}
	r, err := NewRecorder(f, revision)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// RecordFrame stores a decoded frame. Frames without wire bytes are
// skipped since they could not be replayed.
func (r *Recorder) RecordFrame(frame accurate.DecodedFrame) error {
	if len(frame.Raw) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writeLocked(Record{
		Kind:      RecordFrame,
		FrameKind: uint8(frame.Kind),
		Address:   frame.Address,
		Raw:       frame.Raw,
		Counts:    frame.Counts,
	}); err != nil {
		return err
	}
	r.frames++
	return nil
}

// RecordCommand stores a host command line with its reply and error.
func (r *Recorder) RecordCommand(line, reply string, cmdErr error) error {
	rec := Record{Kind: RecordCommand, Command: line, Reply: reply}
	if cmdErr != nil {
		rec.Error = cmdErr.Error()
	}
	return r.write(rec)
}

// Frames returns the number of frames recorded so far.
func (r *Recorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Close stops recording and closes the file opened by Create.
// It is safe to call Close multiple times.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

func (r *Recorder) write(rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writeLocked(rec)
}

func (r *Recorder) writeLocked(rec Record) error {
	if r.closed {
		return errors.New("capture closed")
	}
	rec.Time = r.now()
	if err := r.encoder.Encode(rec); err != nil {
		return fmt.Errorf("write %s record: %w", rec.Kind, err)
	}
	return nil
}
