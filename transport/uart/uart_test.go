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

package uart

import (
	"errors"
	"io"
	"sync"
	"syscall"
	"testing"
	"time"

	accurate "github.com/ZaparooProject/go-accurate"
	virt "github.com/ZaparooProject/go-accurate/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"
)

// errPortClosed is returned when operations are attempted on a closed port
var errPortClosed = errors.New("port is closed")

// mockPort backs Port with a byte-level simulator.
type mockPort struct {
	backend     io.ReadWriter
	readErr     error
	drainErrs   []error
	timeoutErr  error
	writeN      int
	readTimeout time.Duration
	mu          sync.Mutex
	closed      bool
}

func newMockPort(backend io.ReadWriter) *mockPort {
	return &mockPort{backend: backend, writeN: -1}
}

func (m *mockPort) Read(p []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, errPortClosed
	}
	if m.readErr != nil {
		err := m.readErr
		m.mu.Unlock()
		return 0, err
	}
	n, err := m.backend.Read(p)
	timeout := m.readTimeout
	m.mu.Unlock()
	if n == 0 && err == nil {
		// Serial reads return empty after the read timeout.
		time.Sleep(timeout)
	}
	return n, err
}

func (m *mockPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errPortClosed
	}
	n, err := m.backend.Write(p)
	if m.writeN >= 0 {
		return m.writeN, err
	}
	return n, err
}

func (m *mockPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockPort) SetReadTimeout(t time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timeoutErr != nil {
		return m.timeoutErr
	}
	m.readTimeout = t
	return nil
}

func (*mockPort) ResetInputBuffer() error { return nil }

func (m *mockPort) Drain() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.drainErrs) == 0 {
		return nil
	}
	err := m.drainErrs[0]
	m.drainErrs = m.drainErrs[1:]
	return err
}

func (m *mockPort) failReads(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
}

func testConfig() Config {
	return Config{ReadTimeout: time.Millisecond}
}

func newTestTransport(t *testing.T, config Config) (*Transport, *mockPort, *virt.VirtualAccurate) {
	t.Helper()
	sim := virt.NewVirtualAccurate(virt.DefaultDeviceConfig())
	port := newMockPort(sim)
	tr, err := newTransport(port, "/dev/ttyTEST", config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr, port, sim
}

func waitAvailable(t *testing.T, tr *Transport, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return tr.Available() >= n },
		time.Second, time.Millisecond, "expected %d buffered bytes", n)
}

func TestTransport_DecodesFrames(t *testing.T) {
	t.Parallel()

	tr, _, sim := newTestTransport(t, testConfig())
	for i := range 3 {
		require.True(t, sim.EmitCharge(uint64(1000*(i+1))))
	}
	waitAvailable(t, tr, 3*36)

	decoder, err := accurate.NewDecoder(accurate.RevisionB(), accurate.DefaultScaling())
	require.NoError(t, err)
	for i := range 3 {
		f, err := decoder.TryDecode(tr)
		require.NoError(t, err)
		assert.Equal(t, uint64(1000*(i+1)), f.Counts[accurate.FieldCharge])
	}
	_, err = decoder.TryDecode(tr)
	require.ErrorIs(t, err, accurate.ErrIncomplete)
}

func TestTransport_ByteSource(t *testing.T) {
	t.Parallel()

	tr, _, sim := newTestTransport(t, testConfig())
	sim.InjectNoise(0x10, 0x20, 0x30)
	waitAvailable(t, tr, 3)

	b, ok := tr.Peek()
	require.True(t, ok)
	assert.Equal(t, byte(0x10), b)
	b, ok = tr.Read()
	require.True(t, ok)
	assert.Equal(t, byte(0x10), b)

	_, err := tr.ReadExact(3)
	require.ErrorIs(t, err, accurate.ErrTransportNotReady)
	assert.True(t, accurate.IsRetryable(err))

	data, err := tr.ReadExact(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x20, 0x30}, data)

	_, ok = tr.Peek()
	assert.False(t, ok)
	_, ok = tr.Read()
	assert.False(t, ok)
}

func TestTransport_WriteReachesDevice(t *testing.T) {
	t.Parallel()

	tr, _, sim := newTestTransport(t, testConfig())
	require.NoError(t, tr.Write([]byte{accurate.RegVBias1, 0x89, 0x08, 0x00, 0x00}))

	value, ok := sim.Register(accurate.RegVBias1)
	require.True(t, ok)
	assert.Equal(t, uint32(2185), value)
}

func TestTransport_WriteErrors(t *testing.T) {
	t.Parallel()

	t.Run("short write", func(t *testing.T) {
		t.Parallel()
		tr, port, _ := newTestTransport(t, testConfig())
		port.writeN = 2
		err := tr.Write([]byte{0x01, 0x02, 0x03, 0x04, 0x05})
		require.ErrorIs(t, err, accurate.ErrTransportWrite)
		assert.True(t, accurate.IsRetryable(err))
	})

	t.Run("drain interrupted then succeeds", func(t *testing.T) {
		t.Parallel()
		tr, port, _ := newTestTransport(t, testConfig())
		port.drainErrs = []error{syscall.EINTR}
		require.NoError(t, tr.Write([]byte{0x01, 0x00, 0x00, 0x00, 0x00}))
	})

	t.Run("drain keeps failing", func(t *testing.T) {
		t.Parallel()
		tr, port, _ := newTestTransport(t, testConfig())
		port.drainErrs = []error{errors.New("interrupted system call"),
			errors.New("interrupted system call"), errors.New("interrupted system call")}
		err := tr.Write([]byte{0x01, 0x00, 0x00, 0x00, 0x00})
		require.Error(t, err)
		assert.True(t, accurate.IsRetryable(err))
	})
}

func TestTransport_ReadFailure(t *testing.T) {
	t.Parallel()

	tr, port, sim := newTestTransport(t, testConfig())
	require.True(t, sim.EmitCharge(1))
	waitAvailable(t, tr, 36)

	port.failReads(syscall.EIO)
	require.Eventually(t, func() bool { return !tr.IsConnected() }, time.Second, time.Millisecond)

	data, err := tr.ReadExact(36)
	require.NoError(t, err, "bytes received before the failure are still delivered")
	assert.Len(t, data, 36)

	_, err = tr.ReadExact(1)
	require.Error(t, err)
	assert.True(t, accurate.IsFatal(err))
	assert.ErrorIs(t, err, syscall.EIO)

	err = tr.Write([]byte{0x00})
	require.ErrorIs(t, err, accurate.ErrTransportClosed)
}

func TestTransport_Close(t *testing.T) {
	t.Parallel()

	tr, _, _ := newTestTransport(t, testConfig())
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close(), "close is idempotent")

	assert.False(t, tr.IsConnected())
	_, err := tr.ReadExact(1)
	require.ErrorIs(t, err, accurate.ErrTransportClosed)
	assert.True(t, accurate.IsFatal(err))
	assert.Equal(t, accurate.TransportUART, tr.Type())
	assert.Equal(t, "/dev/ttyTEST", tr.PortName())
}

func TestTransport_Overflow(t *testing.T) {
	t.Parallel()

	config := testConfig()
	config.MaxBuffered = 40
	tr, _, sim := newTestTransport(t, config)

	require.True(t, sim.EmitCharge(1))
	require.True(t, sim.EmitCharge(2))
	require.Eventually(t, func() bool { return tr.Dropped() == 32 }, time.Second, time.Millisecond)
	assert.Equal(t, 40, tr.Available())
}

func TestNewTransport_SetTimeoutFails(t *testing.T) {
	t.Parallel()

	port := newMockPort(virt.NewVirtualAccurate(virt.DefaultDeviceConfig()))
	port.timeoutErr = errors.New("unsupported")
	_, err := newTransport(port, "/dev/ttyTEST", testConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read timeout")
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	assert.Equal(t, 115200, config.BaudRate)
	assert.Positive(t, config.ReadTimeout)
	assert.Positive(t, config.MaxBuffered)
}

func TestIsInterruptedSystemCall(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "errno", err: syscall.EINTR, want: true},
		{name: "message", err: errors.New("read: Interrupted System Call"), want: true},
		{name: "other", err: errors.New("no such device"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, isInterruptedSystemCall(tt.err))
		})
	}
}

func TestPortInfos(t *testing.T) {
	t.Parallel()

	ports := portInfos([]*enumerator.PortDetails{
		{Name: "/dev/ttyS0"},
		nil,
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6010", Product: "Dual RS232-HS", SerialNumber: "FT1"},
		{Name: "/dev/ttyACM0", IsUSB: true, VID: "2e8a", PID: "000a"},
	})
	require.Len(t, ports, 3)

	assert.Equal(t, "/dev/ttyS0", ports[0].String())
	assert.Equal(t, "/dev/ttyUSB0 [0403:6010] Dual RS232-HS serial FT1", ports[1].String())
	assert.Equal(t, "2E8A", ports[2].VID)

	p, ok := FindUSB(ports, "2e8a", "")
	require.True(t, ok)
	assert.Equal(t, "/dev/ttyACM0", p.Name)

	p, ok = FindUSB(ports, "", "")
	require.True(t, ok)
	assert.Equal(t, "/dev/ttyUSB0", p.Name)

	_, ok = FindUSB(ports, "1234", "5678")
	assert.False(t, ok)
}
