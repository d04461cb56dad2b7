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
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Microsecond,
		MaxBackoff:        10 * time.Microsecond,
		BackoffMultiplier: 2.0,
		RetryTimeout:      time.Second,
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	inst, err := New(mock)
	require.NoError(t, err)

	assert.Equal(t, FixedMultiWord, inst.Decoder().Family().Kind)
	assert.Equal(t, FramingBare, inst.Writer().Config().Framing)
	assert.Equal(t, 33, inst.Registers().Len())
	assert.Equal(t, DefaultScaling(), inst.Scaling())
	assert.Same(t, mock, inst.Transport())
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	_, err := New(nil)
	require.Error(t, err)

	_, err = New(NewMockTransport(), WithScaling(Scaling{}))
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(NewMockTransport(), WithLayoutFamily(LayoutFamily{}))
	require.ErrorIs(t, err, ErrInvalidLayout)

	bad := DefaultWriterConfig()
	bad.AckLength = 2
	_, err = New(NewMockTransport(), WithWriterConfig(bad))
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(NewMockTransport(), WithRegisterOverrides(map[string]float64{"VTH1": 7}))
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestInstrument_ConfigurePushesTable(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	inst, err := New(mock, WithRegisterOverrides(map[string]float64{"VBIAS1": 1.5}))
	require.NoError(t, err)

	require.NoError(t, inst.Configure(context.Background()))

	written := mock.Written()
	require.Len(t, written, inst.Registers().Len())
	assert.Equal(t, []byte{RegStream, 0, 0, 0, 0}, written[0])
	assert.Equal(t, []byte{RegStream, 1, 0, 0, 0}, written[len(written)-1])
	assert.Contains(t, written, []byte{RegVBias1, 0x00, 0x08, 0x00, 0x00})
}

func TestInstrument_ConfigureRetriesTransientAcks(t *testing.T) {
	t.Parallel()

	cfg := DefaultWriterConfig()
	cfg.Framing = FramingStartByte
	cfg.AckLength = 1
	cfg.AckTimeout = 10 * time.Millisecond

	mock := NewMockTransport()
	refusals := 1
	mock.SetResponder(func(written []byte) []byte {
		if written[1] == RegVTh4 && refusals > 0 {
			refusals--
			return []byte{0x01}
		}
		return []byte{0x00}
	})

	inst, err := New(mock, WithWriterConfig(cfg), WithRetryConfig(fastRetry()))
	require.NoError(t, err)

	require.NoError(t, inst.Configure(context.Background()))
	assert.Equal(t, 0, refusals)
	assert.Empty(t, inst.Registers().Dirty())

	// The retry resends only the refused register inside a fresh stream
	// off/on bracket: 33 writes for the table, then 3 more.
	written := mock.Written()
	require.Len(t, written, 36)
	counts := map[byte]int{}
	for _, w := range written {
		counts[w[1]]++
	}
	assert.Equal(t, 2, counts[RegVTh4])
	assert.Equal(t, 4, counts[RegStream])
	assert.Equal(t, 1, counts[RegVBias1])
	assert.Equal(t, 1, counts[RegInitConfig])
}

func TestInstrument_ConfigureDoesNotRetryDrift(t *testing.T) {
	t.Parallel()

	cfg := DefaultWriterConfig()
	cfg.Framing = FramingStartByte
	cfg.AckLength = 1
	cfg.AckTimeout = 10 * time.Millisecond

	mock := NewMockTransport()
	mock.SetResponder(func(written []byte) []byte {
		switch {
		case written[1] == RegVTh5:
			return []byte{0x02}
		case written[1] == RegStream && written[2] == 1:
			return []byte{0x01}
		}
		return []byte{0x00}
	})

	inst, err := New(mock, WithWriterConfig(cfg), WithRetryConfig(fastRetry()))
	require.NoError(t, err)

	err = inst.Configure(context.Background())
	require.ErrorIs(t, err, ErrConfigurationDrift)
	assert.True(t, IsFatal(err))
	assert.False(t, IsRetryable(err))
	assert.Len(t, mock.Written(), 33, "a drifted device is not configured again")
}

func TestInstrument_ConfigureStopsOnPermanentFailure(t *testing.T) {
	t.Parallel()

	cfg := DefaultWriterConfig()
	cfg.Framing = FramingStartByte
	cfg.AckLength = 1
	cfg.AckTimeout = 10 * time.Millisecond

	mock := NewMockTransport()
	mock.SetResponder(ackWith(0x03))

	inst, err := New(mock, WithWriterConfig(cfg), WithRetryConfig(fastRetry()))
	require.NoError(t, err)

	err = inst.Configure(context.Background())
	require.ErrorIs(t, err, ErrAckHeader)
	assert.Len(t, mock.Written(), 1, "header errors are not retried")
}

func TestInstrument_Poll(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	inst, err := New(mock)
	require.NoError(t, err)

	mock.Feed(revBFrame(10)...)
	mock.Feed(0xEE, 0xEE)
	mock.Feed(revBFrame(20)...)
	mock.Feed(revBFrame(30)[:10]...)

	var frames []DecodedFrame
	var failures []error
	n, err := inst.Poll(
		func(f DecodedFrame) { frames = append(frames, f) },
		func(err error) { failures = append(failures, err) },
	)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, frames, 2)
	assert.Equal(t, uint64(20), frames[1].Counts[FieldCharge])
	require.Len(t, failures, 1)
	assert.True(t, errors.Is(failures[0], ErrMisaligned))

	n, err = inst.Poll(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestInstrument_PollReportsTransportLoss(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	inst, err := New(mock)
	require.NoError(t, err)

	mock.Feed(revBFrame(1)...)
	require.NoError(t, inst.Close())

	_, err = inst.Poll(nil, nil)
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestInstrument_Execute(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	inst, err := New(mock, WithIdentity(Identity{Manufacturer: "M", Model: "X", Serial: "1", Firmware: "2"}))
	require.NoError(t, err)

	reply, err := inst.Execute(context.Background(), "*IDN?")
	require.NoError(t, err)
	assert.Equal(t, "M, X, 1, 2", reply)

	_, err = inst.Execute(context.Background(), "CONF:DAC:VOLT A,1.6")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{0x04, 0x89, 0x08, 0x00, 0x00}}, mock.Written())
}
