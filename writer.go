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
	"fmt"
	"time"

	"github.com/ZaparooProject/go-accurate/internal/frame"
)

// Framing selects the register write wire format.
type Framing int

const (
	// FramingBare sends [address][value u32 little-endian] with no reply
	FramingBare Framing = iota
	// FramingStartByte sends [0xDD][address][value u32], optionally acknowledged
	FramingStartByte
)

func (f Framing) String() string {
	if f == FramingStartByte {
		return "start-byte"
	}
	return "bare"
}

// AckStatus is the status nibble of a write acknowledgement.
type AckStatus int

const (
	// AckOK means the device applied the write
	AckOK AckStatus = iota
	// AckGenericError is an unspecified device failure
	AckGenericError
	// AckTimeout means the device, or the host waiting on it, timed out
	AckTimeout
	// AckHeaderError means the start byte or address was rejected
	AckHeaderError
	// AckMessageInvalid means the value was rejected
	AckMessageInvalid
	// AckUnknown covers every other status nibble
	AckUnknown
)

func (s AckStatus) String() string {
	switch s {
	case AckOK:
		return "ack"
	case AckGenericError:
		return "generic error"
	case AckTimeout:
		return "timeout"
	case AckHeaderError:
		return "header error"
	case AckMessageInvalid:
		return "message invalid"
	default:
		return "unknown error"
	}
}

func (s AckStatus) err() error {
	switch s {
	case AckOK:
		return nil
	case AckGenericError:
		return ErrAckGeneric
	case AckTimeout:
		return ErrAckTimeout
	case AckHeaderError:
		return ErrAckHeader
	case AckMessageInvalid:
		return ErrAckMessageInvalid
	default:
		return ErrAckUnknown
	}
}

// ParseAckStatus reads the status nibble from the leading acknowledgement byte.
func ParseAckStatus(lead byte) AckStatus {
	switch lead & 0x0F {
	case frame.AckOK:
		return AckOK
	case frame.AckGenericError:
		return AckGenericError
	case frame.AckTimeout:
		return AckTimeout
	case frame.AckHeaderError:
		return AckHeaderError
	case frame.AckMessageInvalid:
		return AckMessageInvalid
	default:
		return AckUnknown
	}
}

// WriterConfig describes how one deployment talks to its device.
type WriterConfig struct {
	// Framing selects bare or start-byte register writes
	Framing Framing
	// ValueOrder is the byte order of start-byte framed values.
	// Bare framing is always little-endian.
	ValueOrder ByteOrder
	// AckLength is the acknowledgement size; zero means fire-and-forget
	AckLength int
	// AckTimeout bounds the wait for an acknowledgement
	AckTimeout time.Duration
	// AckPollInterval is how often the source is checked while waiting
	AckPollInterval time.Duration
	// StreamRegister is toggled off around a bulk push
	StreamRegister byte
	// TraceSize is the number of wire operations kept for error reports
	TraceSize int
}

// DefaultWriterConfig returns bare framing without acknowledgement, the
// format the shipping gateware accepts.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		Framing:         FramingBare,
		ValueOrder:      LittleEndian,
		AckTimeout:      DefaultAckTimeout,
		AckPollInterval: DefaultAckPollInterval,
		StreamRegister:  RegStream,
		TraceSize:       32,
	}
}

// Validate checks the configuration is usable.
func (c WriterConfig) Validate() error {
	if c.AckLength < 0 {
		return fmt.Errorf("%w: negative acknowledgement length", ErrInvalidConfig)
	}
	if c.AckLength > 0 && c.Framing == FramingBare {
		return fmt.Errorf("%w: bare framing has no acknowledgement", ErrInvalidConfig)
	}
	if c.AckLength > 0 && c.AckTimeout <= 0 {
		return fmt.Errorf("%w: acknowledgement timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// DeviceWriter pushes register values to the device. It is the only
// component that writes to the sink.
//
// Thread Safety: DeviceWriter is NOT thread-safe.
type DeviceWriter struct {
	sink   ByteSink
	source ByteSource
	store  *RegisterStore
	trace  *TraceBuffer
	config WriterConfig
}

// NewDeviceWriter creates a writer. source is only read when the
// configuration expects acknowledgements and may be nil otherwise.
func NewDeviceWriter(sink ByteSink, source ByteSource, store *RegisterStore, config WriterConfig) (*DeviceWriter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.AckLength > 0 && source == nil {
		return nil, fmt.Errorf("%w: acknowledgements need a byte source", ErrInvalidConfig)
	}
	if config.AckPollInterval <= 0 {
		config.AckPollInterval = DefaultAckPollInterval
	}
	return &DeviceWriter{
		sink:   sink,
		source: source,
		store:  store,
		config: config,
		trace:  NewTraceBuffer("writer", config.Framing.String(), config.TraceSize),
	}, nil
}

// Config returns the writer configuration.
func (w *DeviceWriter) Config() WriterConfig {
	return w.config
}

// Trace returns the recent wire operations.
func (w *DeviceWriter) Trace() []TraceEntry {
	return w.trace.Entries()
}

// EncodeWrite builds the wire bytes for one register write.
func (w *DeviceWriter) EncodeWrite(address byte, value uint32) []byte {
	if w.config.Framing == FramingStartByte {
		buf := make([]byte, frame.StartByteWriteLen)
		buf[0] = frame.StartByte
		buf[1] = address
		w.config.ValueOrder.put(buf[2:], uint64(value))
		return buf
	}
	buf := make([]byte, frame.BareWriteLen)
	buf[0] = address
	frame.PutLE(buf[1:], uint64(value))
	return buf
}

// Push sends the current value of one register and clears its dirty flag
// on success. A failed push leaves the stored value in place.
//
// Acknowledged writes share the receive channel with telemetry, so they are
// refused while the device streams. Writing the stream register itself is
// always allowed.
func (w *DeviceWriter) Push(ctx context.Context, address byte) error {
	entry, err := w.store.Entry(address)
	if err != nil {
		return err
	}
	if entry.HostOnly {
		w.store.MarkClean(address)
		return nil
	}
	if w.config.AckLength > 0 && address != w.config.StreamRegister && w.streaming() {
		return fmt.Errorf("write register 0x%02X: %w", address, ErrStreamingActive)
	}
	value, err := w.store.Encode(address)
	if err != nil {
		return err
	}
	if err := w.send(ctx, address, value); err != nil {
		return w.trace.WrapError(err)
	}
	w.store.MarkClean(address)
	return nil
}

// PushDirty sends every register whose last push did not reach the device,
// with streaming switched off around the batch like PushSnapshot. It sends
// nothing when no register is pending.
func (w *DeviceWriter) PushDirty(ctx context.Context) error {
	if len(w.store.Dirty()) == 0 {
		return nil
	}
	return w.pushPending(ctx)
}

// PushSnapshot writes the whole register table in address order with
// device streaming switched off, then restores the stream register.
//
// Every entry is attempted even if an earlier one fails. Entries that fail
// stay dirty, so a following PushDirty sends only those. If the stream
// register cannot be restored the returned error wraps
// ErrConfigurationDrift: the device is left silent.
func (w *DeviceWriter) PushSnapshot(ctx context.Context) error {
	for _, rv := range w.store.Snapshot() {
		w.store.MarkDirty(rv.Address)
	}
	return w.pushPending(ctx)
}

func (w *DeviceWriter) pushPending(ctx context.Context) error {
	stream := w.config.StreamRegister
	streamValue, streamErr := w.store.Encode(stream)
	hasStream := streamErr == nil

	if hasStream {
		if err := w.send(ctx, stream, 0); err != nil {
			return w.trace.WrapError(fmt.Errorf("disable streaming: %w", err))
		}
	}

	var errs []error
	for _, addr := range w.store.Dirty() {
		if hasStream && addr == stream {
			continue
		}
		entry, _ := w.store.Entry(addr)
		if entry.HostOnly {
			w.store.MarkClean(addr)
			continue
		}
		value, err := w.store.Encode(addr)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := w.send(ctx, addr, value); err != nil {
			errs = append(errs, err)
			continue
		}
		w.store.MarkClean(addr)
	}

	if hasStream {
		if err := w.send(ctx, stream, streamValue); err != nil {
			Debugf("writer: failed to restore streaming: %v", err)
			errs = append(errs, fmt.Errorf("%w: %w", ErrConfigurationDrift, err))
		} else {
			w.store.MarkClean(stream)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return w.trace.WrapError(err)
	}
	return nil
}

func (w *DeviceWriter) streaming() bool {
	v, err := w.store.Get(w.config.StreamRegister)
	return err == nil && v != 0
}

func (w *DeviceWriter) send(ctx context.Context, address byte, value uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data := w.EncodeWrite(address, value)
	w.trace.RecordTX(data, fmt.Sprintf("reg 0x%02X = %d", address, value))
	if err := w.sink.Write(data); err != nil {
		return fmt.Errorf("write register 0x%02X: %w", address, err)
	}
	if w.config.AckLength == 0 {
		return nil
	}
	return w.awaitAck(ctx, address)
}

func (w *DeviceWriter) awaitAck(ctx context.Context, address byte) error {
	deadline := time.Now().Add(w.config.AckTimeout)
	for w.source.Available() < w.config.AckLength {
		if time.Now().After(deadline) {
			w.trace.RecordTimeout(fmt.Sprintf("ack for reg 0x%02X", address))
			return &WriteError{Address: address, Status: AckTimeout, Err: ErrAckTimeout}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.config.AckPollInterval):
		}
	}

	ack, err := w.source.ReadExact(w.config.AckLength)
	if err != nil {
		return fmt.Errorf("read acknowledgement: %w", err)
	}
	status := ParseAckStatus(ack[0])
	w.trace.RecordRX(ack, status.String())
	if status != AckOK {
		return &WriteError{Address: address, Status: status, Err: status.err()}
	}
	return nil
}
