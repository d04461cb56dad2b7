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

package testing

import (
	"io"
	"time"

	accurate "github.com/ZaparooProject/go-accurate"
	"github.com/ZaparooProject/go-accurate/internal/syncutil"
)

// TransportSimulator identifies a SimulatorTransport.
const TransportSimulator accurate.TransportType = "simulator"

// SimulatorTransport adapts a byte-level backend, usually a VirtualAccurate
// optionally wrapped in a JitteryConnection, to accurate.Transport. Reads
// from the backend are buffered so the ByteSource methods never block.
type SimulatorTransport struct {
	backend   io.ReadWriter
	WriteLog  []WriteLogEntry
	rx        []byte
	mu        syncutil.Mutex
	connected bool
}

// WriteLogEntry records one write sent through the transport.
type WriteLogEntry struct {
	Timestamp time.Time
	Data      []byte
}

// NewSimulatorTransport creates a transport over backend.
func NewSimulatorTransport(backend io.ReadWriter) *SimulatorTransport {
	return &SimulatorTransport{
		backend:   backend,
		connected: true,
	}
}

// fill moves whatever the backend has ready into the receive buffer.
// Callers hold t.mu.
func (t *SimulatorTransport) fill() {
	if !t.connected {
		return
	}
	buf := make([]byte, 256)
	for {
		n, err := t.backend.Read(buf)
		if n > 0 {
			t.rx = append(t.rx, buf[:n]...)
		}
		if err != nil || n == 0 {
			return
		}
	}
}

// Available implements accurate.ByteSource.
func (t *SimulatorTransport) Available() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fill()
	return len(t.rx)
}

// Peek implements accurate.ByteSource.
func (t *SimulatorTransport) Peek() (byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fill()
	if len(t.rx) == 0 {
		return 0, false
	}
	return t.rx[0], true
}

// Read implements accurate.ByteSource.
func (t *SimulatorTransport) Read() (byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fill()
	if len(t.rx) == 0 {
		return 0, false
	}
	b := t.rx[0]
	t.rx = t.rx[1:]
	return b, true
}

// ReadExact implements accurate.ByteSource.
func (t *SimulatorTransport) ReadExact(n int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return nil, accurate.NewTransportClosedError("ReadExact", "simulator")
	}
	t.fill()
	if n > len(t.rx) {
		return nil, accurate.NewTransportNotReadyError("ReadExact", "simulator")
	}
	out := append([]byte(nil), t.rx[:n]...)
	t.rx = t.rx[n:]
	return out, nil
}

// Write implements accurate.ByteSink.
func (t *SimulatorTransport) Write(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return accurate.NewTransportClosedError("Write", "simulator")
	}
	t.WriteLog = append(t.WriteLog, WriteLogEntry{
		Timestamp: time.Now(),
		Data:      append([]byte(nil), data...),
	})
	n, err := t.backend.Write(data)
	if err != nil {
		return accurate.NewTransportError("Write", "simulator", err, accurate.ErrorTypeTransient)
	}
	if n != len(data) {
		return accurate.NewTransportWriteError("Write", "simulator")
	}
	return nil
}

// Close implements accurate.Transport.
func (t *SimulatorTransport) Close() error {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()
	return nil
}

// IsConnected implements accurate.Transport.
func (t *SimulatorTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Type implements accurate.Transport.
func (*SimulatorTransport) Type() accurate.TransportType {
	return TransportSimulator
}

// WriteCount returns the number of writes sent so far.
func (t *SimulatorTransport) WriteCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.WriteLog)
}

// ClearWriteLog forgets recorded writes.
func (t *SimulatorTransport) ClearWriteLog() {
	t.mu.Lock()
	t.WriteLog = nil
	t.mu.Unlock()
}

var _ accurate.Transport = (*SimulatorTransport)(nil)
