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
	"bytes"
	"fmt"

	accurate "github.com/ZaparooProject/go-accurate"
	"github.com/ZaparooProject/go-accurate/internal/frame"
	"github.com/ZaparooProject/go-accurate/internal/syncutil"
)

// RegisterWrite is one register write accepted by the simulator.
type RegisterWrite struct {
	Value   uint32
	Address byte
}

// DeviceConfig selects the gateware behavior the simulator reproduces.
type DeviceConfig struct {
	Family      accurate.LayoutFamily
	Framing     accurate.Framing
	ValueOrder  accurate.ByteOrder
	Acknowledge bool
}

// DefaultDeviceConfig matches the shipping revision B gateware: bare
// writes, no acknowledgement.
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		Family:     accurate.RevisionB(),
		Framing:    accurate.FramingBare,
		ValueOrder: accurate.LittleEndian,
	}
}

// AckingDeviceConfig matches gateware that frames writes with a start
// byte and answers each one with a single status byte.
func AckingDeviceConfig() DeviceConfig {
	return DeviceConfig{
		Family:      accurate.RevisionB(),
		Framing:     accurate.FramingStartByte,
		ValueOrder:  accurate.BigEndian,
		Acknowledge: true,
	}
}

// VirtualAccurate simulates the ACCURATE front-end at the byte level.
// It implements io.ReadWriter so it can sit behind a serial port mock or a
// SimulatorTransport.
//
// Writes from the host are parsed as register writes and applied to a
// register map. Telemetry is only emitted while the STREAM register is
// non-zero, as the gateware does.
type VirtualAccurate struct {
	registers   map[byte]uint32
	statusQueue []byte
	writes      []RegisterWrite
	rxBuffer    bytes.Buffer
	txBuffer    bytes.Buffer
	config      DeviceConfig
	mu          syncutil.Mutex
	dropNextAck bool
}

// NewVirtualAccurate creates a simulator with streaming enabled and no
// other register written.
func NewVirtualAccurate(config DeviceConfig) *VirtualAccurate {
	return &VirtualAccurate{
		config:    config,
		registers: map[byte]uint32{accurate.RegStream: 1},
	}
}

// Write implements io.Writer - receives register writes from the host.
func (v *VirtualAccurate) Write(data []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.rxBuffer.Write(data)
	v.processReceivedData()
	return len(data), nil
}

// Read implements io.Reader - returns acknowledgements and telemetry.
func (v *VirtualAccurate) Read(buf []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.txBuffer.Len() == 0 {
		return 0, nil
	}

	n, err := v.txBuffer.Read(buf)
	if err != nil {
		return n, fmt.Errorf("read from tx buffer: %w", err)
	}
	return n, nil
}

func (v *VirtualAccurate) processReceivedData() {
	if v.config.Framing == accurate.FramingStartByte {
		v.processStartByteWrites()
		return
	}
	for v.rxBuffer.Len() >= frame.BareWriteLen {
		msg := v.rxBuffer.Next(frame.BareWriteLen)
		v.apply(msg[0], uint32(frame.ComposeLE(msg[1:])))
	}
}

func (v *VirtualAccurate) processStartByteWrites() {
	for {
		data := v.rxBuffer.Bytes()
		start := bytes.IndexByte(data, frame.StartByte)
		if start < 0 {
			v.rxBuffer.Reset()
			return
		}
		if start > 0 {
			v.rxBuffer.Next(start)
			continue
		}
		if len(data) < frame.StartByteWriteLen {
			return
		}

		msg := v.rxBuffer.Next(frame.StartByteWriteLen)
		var value uint64
		if v.config.ValueOrder == accurate.BigEndian {
			value = frame.ComposeBE(msg[2:])
		} else {
			value = frame.ComposeLE(msg[2:])
		}

		status := byte(frame.AckOK)
		if len(v.statusQueue) > 0 {
			status = v.statusQueue[0]
			v.statusQueue = v.statusQueue[1:]
		}
		if status == frame.AckOK {
			v.apply(msg[1], uint32(value))
		}
		v.acknowledge(status)
	}
}

func (v *VirtualAccurate) apply(address byte, value uint32) {
	v.registers[address] = value
	v.writes = append(v.writes, RegisterWrite{Address: address, Value: value})
}

func (v *VirtualAccurate) acknowledge(status byte) {
	if !v.config.Acknowledge {
		return
	}
	if v.dropNextAck {
		v.dropNextAck = false
		return
	}
	v.txBuffer.WriteByte(status)
}

// EmitFrame queues one telemetry frame of the given kind built from raw
// field values. It reports false when streaming is off or the family has
// no such layout.
func (v *VirtualAccurate) EmitFrame(kind accurate.FrameKind, values map[string]uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.registers[accurate.RegStream] == 0 {
		return false
	}
	for _, layout := range v.config.Family.Layouts {
		if layout.Kind != kind {
			continue
		}
		if v.config.Family.Kind == accurate.AddressPrefixed {
			v.txBuffer.WriteByte(layout.Address)
		}
		v.txBuffer.Write(layout.Encode(values))
		return true
	}
	return false
}

// EmitCharge queues a measurement frame carrying charge. Revision B frames
// also carry a 25 °C / 56.5 %RH environment reading.
func (v *VirtualAccurate) EmitCharge(charge uint64) bool {
	return v.EmitFrame(accurate.FrameMeasurement, map[string]uint64{
		accurate.FieldCharge:      charge,
		accurate.FieldTemperature: 0x6666,
		accurate.FieldHumidity:    0x8000,
	})
}

// InjectNoise queues raw bytes ahead of the next frame.
func (v *VirtualAccurate) InjectNoise(data ...byte) {
	v.mu.Lock()
	v.txBuffer.Write(data)
	v.mu.Unlock()
}

// InjectAckStatus makes the next write answer with status instead of OK.
// A non-OK status leaves the register unchanged.
func (v *VirtualAccurate) InjectAckStatus(status byte) {
	v.mu.Lock()
	v.statusQueue = append(v.statusQueue, status)
	v.mu.Unlock()
}

// DropNextAck swallows the next acknowledgement so the host times out.
func (v *VirtualAccurate) DropNextAck() {
	v.mu.Lock()
	v.dropNextAck = true
	v.mu.Unlock()
}

// Register returns the last value written to address.
func (v *VirtualAccurate) Register(address byte) (uint32, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	value, ok := v.registers[address]
	return value, ok
}

// Streaming reports whether telemetry is enabled.
func (v *VirtualAccurate) Streaming() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.registers[accurate.RegStream] != 0
}

// Writes returns every accepted register write in arrival order.
func (v *VirtualAccurate) Writes() []RegisterWrite {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]RegisterWrite(nil), v.writes...)
}

// HasPendingOutput reports whether bytes are waiting to be read.
func (v *VirtualAccurate) HasPendingOutput() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.txBuffer.Len() > 0
}

// Reset returns the simulator to its power-on state.
func (v *VirtualAccurate) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.registers = map[byte]uint32{accurate.RegStream: 1}
	v.writes = nil
	v.statusQueue = nil
	v.dropNextAck = false
	v.rxBuffer.Reset()
	v.txBuffer.Reset()
}
