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
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	accurate "github.com/ZaparooProject/go-accurate"
	virt "github.com/ZaparooProject/go-accurate/internal/testing"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

// steppingClock returns epoch, then advances by step on every call.
func steppingClock(step time.Duration) func() time.Time {
	next := epoch
	return func() time.Time {
		t := next
		next = next.Add(step)
		return t
	}
}

// decodeAll decodes every frame a source holds.
func decodeAll(t *testing.T, src accurate.ByteSource) []accurate.DecodedFrame {
	t.Helper()
	dec, err := accurate.NewDecoder(accurate.RevisionB(), accurate.DefaultScaling())
	require.NoError(t, err)

	var frames []accurate.DecodedFrame
	for range 1000 {
		f, err := dec.TryDecode(src)
		if errors.Is(err, accurate.ErrIncomplete) {
			return frames
		}
		require.NoError(t, err)
		frames = append(frames, f)
	}
	t.Fatal("decoder did not run dry")
	return nil
}

// deviceFrames produces n decoded frames from the simulated device.
func deviceFrames(t *testing.T, n int) []accurate.DecodedFrame {
	t.Helper()
	sim := virt.NewVirtualAccurate(virt.DefaultDeviceConfig())
	for i := range n {
		require.True(t, sim.EmitCharge(uint64(1000*(i+1))))
	}
	frames := decodeAll(t, virt.NewSimulatorTransport(sim))
	require.Len(t, frames, n)
	return frames
}

func TestRecorder_RoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	rec, err := NewRecorder(&buf, "rev-b")
	require.NoError(t, err)
	rec.now = steppingClock(100 * time.Millisecond)

	frames := deviceFrames(t, 2)
	for _, f := range frames {
		require.NoError(t, rec.RecordFrame(f))
	}
	require.NoError(t, rec.RecordCommand("CONF:DAC:VOLT A,9", "Error: Invalid parameter", errors.New("out of range")))
	require.NoError(t, rec.RecordFrame(accurate.DecodedFrame{}), "frames without wire bytes are skipped")
	assert.Equal(t, 2, rec.Frames())
	require.NoError(t, rec.Close())

	r, err := NewReader(&buf)
	require.NoError(t, err)
	assert.Equal(t, RecordHeader, r.Header().Kind)
	assert.Equal(t, FormatVersion, r.Header().Version)
	assert.Equal(t, "rev-b", r.Header().Revision)

	for i, want := range frames {
		got, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, RecordFrame, got.Kind)
		assert.Equal(t, want.Raw, got.Raw)
		assert.Equal(t, want.Counts, got.Counts)
		assert.True(t, epoch.Add(time.Duration(i)*100*time.Millisecond).Equal(got.Time))

		frame := got.Frame()
		assert.Equal(t, want.Kind, frame.Kind)
		assert.Equal(t, uint64(1000*(i+1)), frame.Counts[accurate.FieldCharge])
	}

	cmd, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, RecordCommand, cmd.Kind)
	assert.Equal(t, "CONF:DAC:VOLT A,9", cmd.Command)
	assert.Equal(t, "Error: Invalid parameter", cmd.Reply)
	assert.Equal(t, "out of range", cmd.Error)

	_, err = r.Next()
	require.ErrorIs(t, err, io.EOF)
	require.NoError(t, r.Close())
}

func TestRecorder_Closed(t *testing.T) {
	t.Parallel()

	rec, err := NewRecorder(io.Discard, "rev-a")
	require.NoError(t, err)
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())
	require.Error(t, rec.RecordCommand("*IDN?", "", nil))
}

func TestCreateAndOpen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.cbor")
	rec, err := Create(path, "rev-b")
	require.NoError(t, err)
	for _, f := range deviceFrames(t, 3) {
		require.NoError(t, rec.RecordFrame(f))
	}
	require.NoError(t, rec.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, r.Close()) }()

	count := 0
	for {
		_, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, 3, count)
}

func TestNewReader_Errors(t *testing.T) {
	t.Parallel()

	_, err := NewReader(bytes.NewReader(nil))
	require.ErrorIs(t, err, ErrNotCapture)

	frameFirst, err := cbor.Marshal(Record{Kind: RecordFrame, Raw: []byte{1}})
	require.NoError(t, err)
	_, err = NewReader(bytes.NewReader(frameFirst))
	require.ErrorIs(t, err, ErrNotCapture)

	future, err := cbor.Marshal(Record{Kind: RecordHeader, Version: FormatVersion + 1})
	require.NoError(t, err)
	_, err = NewReader(bytes.NewReader(future))
	require.Error(t, err)

	_, err = Open(filepath.Join(t.TempDir(), "missing.cbor"))
	require.Error(t, err)
}

func TestRecordKind_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "header", RecordHeader.String())
	assert.Equal(t, "frame", RecordFrame.String())
	assert.Equal(t, "command", RecordCommand.String())
	assert.Equal(t, "kind(9)", RecordKind(9).String())
}
