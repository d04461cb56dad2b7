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

// Package uart connects to the ACCURATE front-end over a serial port.
package uart

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"
	"time"

	accurate "github.com/ZaparooProject/go-accurate"
	"github.com/ZaparooProject/go-accurate/internal/syncutil"
	"go.bug.st/serial"
)

// Port is the part of serial.Port the transport uses.
type Port interface {
	io.ReadWriter
	Close() error
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	Drain() error
}

// Config holds serial port settings.
type Config struct {
	// BaudRate of the link; the gateware runs at 115200
	BaudRate int
	// ReadTimeout bounds each blocking read in the receive goroutine
	ReadTimeout time.Duration
	// MaxBuffered caps the receive buffer. The oldest bytes are dropped
	// when the host falls behind.
	MaxBuffered int
}

// DefaultConfig returns 115200 8N1 with a platform read timeout.
func DefaultConfig() Config {
	return Config{
		BaudRate:    accurate.DefaultBaudRate,
		ReadTimeout: readTimeout(),
		MaxBuffered: 64 * 1024,
	}
}

// readTimeout returns the platform read timeout. Windows USB-serial
// drivers need the longer value.
func readTimeout() time.Duration {
	if runtime.GOOS == "windows" {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// Transport implements accurate.Transport over a serial port.
//
// A background goroutine reads the port into a buffer so the ByteSource
// methods never block. The receive goroutine stops at Close or on the
// first read error, which is then reported by ReadExact.
type Transport struct {
	port     Port
	readErr  error
	done     chan struct{}
	portName string
	rx       []byte
	config   Config
	wg       sync.WaitGroup
	mu       syncutil.Mutex
	writeMu  syncutil.Mutex
	dropped  int
	closed   bool
}

// New opens portName and starts receiving.
func New(portName string, config Config) (*Transport, error) {
	if config.BaudRate <= 0 {
		config.BaudRate = accurate.DefaultBaudRate
	}
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: config.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}

	t, err := newTransport(port, portName, config)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return t, nil
}

// newTransport configures an open port and starts the receive goroutine.
func newTransport(port Port, portName string, config Config) (*Transport, error) {
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = readTimeout()
	}
	if config.MaxBuffered <= 0 {
		config.MaxBuffered = DefaultConfig().MaxBuffered
	}
	if err := port.SetReadTimeout(config.ReadTimeout); err != nil {
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		return nil, fmt.Errorf("failed to reset UART input buffer: %w", err)
	}

	t := &Transport{
		port:     port,
		portName: portName,
		config:   config,
		done:     make(chan struct{}),
	}
	t.wg.Add(1)
	go t.receive()
	return t, nil
}

func (t *Transport) receive() {
	defer t.wg.Done()
	buf := make([]byte, 512)
	for {
		select {
		case <-t.done:
			return
		default:
		}

		n, err := t.port.Read(buf)
		if n > 0 {
			t.append(buf[:n])
		}
		if err == nil {
			continue
		}
		if isInterruptedSystemCall(err) {
			continue
		}

		t.mu.Lock()
		if !t.closed {
			t.readErr = err
			accurate.Debugf("uart %s: receive stopped: %v", t.portName, err)
		}
		t.mu.Unlock()
		return
	}
}

func (t *Transport) append(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rx = append(t.rx, data...)
	if over := len(t.rx) - t.config.MaxBuffered; over > 0 {
		t.rx = t.rx[over:]
		t.dropped += over
		accurate.Debugf("uart %s: receive buffer full, dropped %d bytes", t.portName, over)
	}
}

// Available implements accurate.ByteSource.
func (t *Transport) Available() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rx)
}

// Peek implements accurate.ByteSource.
func (t *Transport) Peek() (byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.rx) == 0 {
		return 0, false
	}
	return t.rx[0], true
}

// Read implements accurate.ByteSource.
func (t *Transport) Read() (byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.rx) == 0 {
		return 0, false
	}
	b := t.rx[0]
	t.rx = t.rx[1:]
	return b, true
}

// ReadExact implements accurate.ByteSource. Buffered bytes are still
// delivered after the port failed; the failure is reported once they run
// out.
func (t *Transport) ReadExact(n int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, accurate.NewTransportClosedError("ReadExact", t.portName)
	}
	if n <= len(t.rx) {
		out := append([]byte(nil), t.rx[:n]...)
		t.rx = t.rx[n:]
		return out, nil
	}
	if t.readErr != nil {
		return nil, accurate.NewTransportError("ReadExact", t.portName, t.readErr, accurate.ErrorTypePermanent)
	}
	return nil, accurate.NewTransportNotReadyError("ReadExact", t.portName)
}

// Write implements accurate.ByteSink. The call returns once the bytes
// have left the host.
func (t *Transport) Write(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if !t.IsConnected() {
		return accurate.NewTransportClosedError("Write", t.portName)
	}

	n, err := t.port.Write(data)
	if err != nil {
		errType := accurate.ErrorTypeTransient
		if errors.Is(err, io.EOF) {
			errType = accurate.ErrorTypePermanent
		}
		return accurate.NewTransportError("Write", t.portName, err, errType)
	}
	if n != len(data) {
		return accurate.NewTransportWriteError("Write", t.portName)
	}
	return t.drainWithRetry("write")
}

// Close stops the receive goroutine and closes the port.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	t.mu.Unlock()

	err := t.port.Close()
	t.wg.Wait()
	if err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

// IsConnected returns true until Close or a receive failure.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed && t.readErr == nil
}

// Type returns the transport type
func (*Transport) Type() accurate.TransportType {
	return accurate.TransportUART
}

// PortName returns the port this transport was opened on.
func (t *Transport) PortName() string {
	return t.portName
}

// Dropped returns the number of received bytes discarded on overflow.
func (t *Transport) Dropped() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry performs port drain with retry logic for interrupted system calls
func (t *Transport) drainWithRetry(operation string) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := range maxRetries {
		err := t.port.Drain()
		if err == nil {
			return nil
		}
		if !isInterruptedSystemCall(err) {
			return accurate.NewTransportError(operation, t.portName, fmt.Errorf("drain: %w", err),
				accurate.ErrorTypeTransient)
		}
		if attempt < maxRetries-1 {
			time.Sleep(baseDelay * time.Duration(1<<attempt)) // 2ms, 4ms
		}
	}

	return accurate.NewTransportError(operation, t.portName,
		fmt.Errorf("drain interrupted %d times", maxRetries), accurate.ErrorTypeTransient)
}

// Ensure Transport implements accurate.Transport
var _ accurate.Transport = (*Transport)(nil)
