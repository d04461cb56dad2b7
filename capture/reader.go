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

	"github.com/fxamacker/cbor/v2"
)

// ErrNotCapture is returned when a stream does not open with a header.
var ErrNotCapture = errors.New("not a capture stream")

// Reader iterates over the records of a capture stream.
type Reader struct {
	decoder *cbor.Decoder
	closer  io.Closer
	header  Record
}

// NewReader reads the header record from r.
func NewReader(r io.Reader) (*Reader, error) {
	reader := &Reader{decoder: decMode.NewDecoder(r)}
	header, err := reader.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNotCapture
		}
		return nil, err
	}
	if header.Kind != RecordHeader {
		return nil, fmt.Errorf("%w: first record is %s", ErrNotCapture, header.Kind)
	}
	if header.Version > FormatVersion {
		return nil, fmt.Errorf("capture format %d is newer than supported %d", header.Version, FormatVersion)
	}
	reader.header = header
	return reader, nil
}

// Open opens a capture file.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	r, err := NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r.closer = f
	return r, nil
}

// Header returns the record that opened the stream.
func (r *Reader) Header() Record {
	return r.header
}

// Next returns the next record. Returns io.EOF at the end of the stream.
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.decoder.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("read capture record: %w", err)
	}
	return rec, nil
}

// Close closes the file opened by Open.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
