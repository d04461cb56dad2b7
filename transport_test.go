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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockTransport_ByteSource(t *testing.T) {
	t.Parallel()

	m := NewMockTransport()
	_, ok := m.Peek()
	assert.False(t, ok)

	m.Feed(0x01, 0x02, 0x03)
	assert.Equal(t, 3, m.Available())

	b, ok := m.Peek()
	require.True(t, ok)
	assert.Equal(t, byte(0x01), b)
	assert.Equal(t, 3, m.Available(), "peek must not consume")

	b, ok = m.Read()
	require.True(t, ok)
	assert.Equal(t, byte(0x01), b)

	_, err := m.ReadExact(3)
	require.ErrorIs(t, err, ErrTransportNotReady)
	assert.Equal(t, 2, m.Available(), "short ReadExact consumes nothing")

	data, err := m.ReadExact(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x03}, data)
	assert.Zero(t, m.Available())
}

func TestMockTransport_WriteAndResponder(t *testing.T) {
	t.Parallel()

	m := NewMockTransport()
	m.SetResponder(func(written []byte) []byte {
		return []byte{byte(len(written))}
	})

	require.NoError(t, m.Write([]byte{0xAA, 0xBB}))
	require.NoError(t, m.Write([]byte{0xCC}))

	assert.Equal(t, [][]byte{{0xAA, 0xBB}, {0xCC}}, m.Written())
	data, err := m.ReadExact(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x01}, data)
}

func TestMockTransport_Errors(t *testing.T) {
	t.Parallel()

	m := NewMockTransport()
	boom := errors.New("boom")
	m.SetWriteError(boom)
	require.ErrorIs(t, m.Write([]byte{0x00}), boom)
	assert.Empty(t, m.Written())

	require.NoError(t, m.Close())
	assert.False(t, m.IsConnected())
	err := m.Write([]byte{0x00})
	require.ErrorIs(t, err, ErrTransportClosed)
	assert.True(t, IsFatal(err))
	_, err = m.ReadExact(1)
	require.ErrorIs(t, err, ErrTransportClosed)

	m.Reset()
	assert.True(t, m.IsConnected())
	require.NoError(t, m.Write([]byte{0x00}))
	assert.Equal(t, TransportMock, m.Type())
}
