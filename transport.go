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

import "github.com/ZaparooProject/go-accurate/internal/syncutil"

// ByteSource is the receive side of the serial channel. Every method is
// non-blocking; callers check Available before asking for bytes.
type ByteSource interface {
	// Available returns the number of buffered bytes
	Available() int

	// Peek returns the next byte without consuming it
	Peek() (byte, bool)

	// Read consumes and returns the next byte
	Read() (byte, bool)

	// ReadExact consumes exactly n bytes. It fails without consuming
	// anything when fewer than n bytes are buffered.
	ReadExact(n int) ([]byte, error)
}

// ByteSink is the transmit side of the serial channel.
type ByteSink interface {
	// Write sends data to the device. Partial writes are reported as errors.
	Write(data []byte) error
}

// Transport defines a full-duplex byte channel to the instrument.
// The serial port implementation lives in transport/uart.
type Transport interface {
	ByteSource
	ByteSink

	Close() error
	// IsConnected turns false once the link is gone for good.
	IsConnected() bool
	Type() TransportType
}

// TransportType names a Transport implementation in logs and captures.
type TransportType string

const (
	// TransportUART represents UART/serial transport.
	TransportUART TransportType = "uart"
	// TransportMock is the in-memory MockTransport.
	TransportMock TransportType = "mock"
)

// MockTransport is an in-memory Transport. Feed queues bytes for the
// receive side, every Write is kept, and an optional responder turns a
// write into reply bytes, which is how tests play the device's acks.
type MockTransport struct {
	writeErr  error
	responder func(written []byte) []byte
	rx        []byte
	written   [][]byte
	mu        syncutil.RWMutex
	connected bool
}

func NewMockTransport() *MockTransport {
	return &MockTransport{connected: true}
}

func (m *MockTransport) Available() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rx)
}

func (m *MockTransport) Peek() (byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.rx) == 0 {
		return 0, false
	}
	return m.rx[0], true
}

func (m *MockTransport) Read() (byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.rx) == 0 {
		return 0, false
	}
	b := m.rx[0]
	m.rx = m.rx[1:]
	return b, true
}

func (m *MockTransport) ReadExact(n int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case !m.connected:
		return nil, NewTransportClosedError("ReadExact", "mock")
	case n > len(m.rx):
		return nil, NewTransportNotReadyError("ReadExact", "mock")
	}
	out := append([]byte(nil), m.rx[:n]...)
	m.rx = m.rx[n:]
	return out, nil
}

func (m *MockTransport) Write(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case !m.connected:
		return NewTransportClosedError("Write", "mock")
	case m.writeErr != nil:
		return m.writeErr
	}
	m.written = append(m.written, append([]byte(nil), data...))
	if m.responder != nil {
		m.rx = append(m.rx, m.responder(data)...)
	}
	return nil
}

// Close marks the mock disconnected. Queued bytes stay readable.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	return nil
}

func (m *MockTransport) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

func (*MockTransport) Type() TransportType {
	return TransportMock
}

func (m *MockTransport) Feed(data ...byte) {
	m.mu.Lock()
	m.rx = append(m.rx, data...)
	m.mu.Unlock()
}

// SetResponder queues responder's result after every successful write.
func (m *MockTransport) SetResponder(responder func(written []byte) []byte) {
	m.mu.Lock()
	m.responder = responder
	m.mu.Unlock()
}

// SetWriteError fails every later Write with err. Nil clears it.
func (m *MockTransport) SetWriteError(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

// Written returns copies of all writes so far, oldest first.
func (m *MockTransport) Written() [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]byte, len(m.written))
	for i, w := range m.written {
		out[i] = append([]byte(nil), w...)
	}
	return out
}

// Reset empties both directions and reconnects.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	m.rx = nil
	m.written = nil
	m.writeErr = nil
	m.connected = true
	m.mu.Unlock()
}
