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
)

// maxFramesPerPoll bounds one Poll pass so a flooding device cannot
// starve command handling.
const maxFramesPerPoll = 64

// Option configures an Instrument.
type Option func(*Instrument) error

// WithLayoutFamily selects the telemetry frame family the device emits.
func WithLayoutFamily(family LayoutFamily) Option {
	return func(i *Instrument) error {
		if err := family.Validate(); err != nil {
			return err
		}
		i.family = family
		return nil
	}
}

// WithWriterConfig sets the register write framing and acknowledgement policy.
func WithWriterConfig(config WriterConfig) Option {
	return func(i *Instrument) error {
		if err := config.Validate(); err != nil {
			return err
		}
		i.writerConfig = config
		return nil
	}
}

// WithScaling sets the unit conversion constants.
func WithScaling(scaling Scaling) Option {
	return func(i *Instrument) error {
		if err := scaling.Validate(); err != nil {
			return err
		}
		i.scaling = scaling
		return nil
	}
}

// WithIdentity sets the *IDN? response.
func WithIdentity(identity Identity) Option {
	return func(i *Instrument) error {
		i.identity = identity
		return nil
	}
}

// WithRetryConfig sets the retry policy used by Configure.
func WithRetryConfig(config *RetryConfig) Option {
	return func(i *Instrument) error {
		i.retry = config
		return nil
	}
}

// WithRegisterOverrides replaces default register values by name before
// the first push.
func WithRegisterOverrides(overrides map[string]float64) Option {
	return func(i *Instrument) error {
		i.overrides = overrides
		return nil
	}
}

// Instrument wires a transport to the decoder, register store, writer and
// command dispatcher of one device.
//
// Thread Safety: Instrument is NOT thread-safe. polling.Loop owns one from a
// single goroutine.
type Instrument struct {
	transport    Transport
	store        *RegisterStore
	decoder      *Decoder
	writer       *DeviceWriter
	dispatcher   *Dispatcher
	retry        *RetryConfig
	overrides    map[string]float64
	family       LayoutFamily
	identity     Identity
	writerConfig WriterConfig
	scaling      Scaling
}

// New creates an instrument on transport. Defaults are revision B frames,
// bare register writes and the reference scaling.
func New(transport Transport, opts ...Option) (*Instrument, error) {
	if transport == nil {
		return nil, errors.New("transport cannot be nil")
	}
	inst := &Instrument{
		transport:    transport,
		family:       RevisionB(),
		scaling:      DefaultScaling(),
		writerConfig: DefaultWriterConfig(),
		identity:     DefaultIdentity(),
		retry:        ConfigurationRetryConfig(),
	}

	for _, opt := range opts {
		if err := opt(inst); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	store, err := NewRegisterStore(DefaultRegisterTable(inst.scaling), inst.scaling)
	if err != nil {
		return nil, fmt.Errorf("failed to create register store: %w", err)
	}
	if len(inst.overrides) > 0 {
		if err := store.ApplyOverrides(inst.overrides); err != nil {
			return nil, fmt.Errorf("failed to apply register overrides: %w", err)
		}
	}
	inst.store = store

	inst.decoder, err = NewDecoder(inst.family, inst.scaling)
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	inst.writer, err = NewDeviceWriter(transport, transport, store, inst.writerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create writer: %w", err)
	}

	inst.dispatcher = NewDispatcher(store, inst.writer, inst.identity)
	return inst, nil
}

// Configure pushes the whole register table to the device, retrying
// transient failures. A retry only resends the registers the device did
// not accept, so each value is written once.
func (i *Instrument) Configure(ctx context.Context) error {
	attempt := 0
	push := i.writer.PushSnapshot
	err := RetryWithConfig(ctx, i.retry, func() error {
		attempt++
		err := push(ctx)
		push = i.writer.PushDirty
		if err != nil {
			Debugf("configure attempt %d failed: %v", attempt, err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("configure device: %w", err)
	}
	return nil
}

// Poll decodes every complete frame currently buffered, up to a fixed
// bound per call. Decode failures go to onFailure and do not end the pass;
// either callback may be nil. The returned error comes from the transport;
// a disconnected transport is reported once its buffered bytes are used up.
func (i *Instrument) Poll(onFrame func(DecodedFrame), onFailure func(error)) (int, error) {
	frames := 0
	for range maxFramesPerPoll {
		f, err := i.decoder.TryDecode(i.transport)
		switch {
		case err == nil:
			frames++
			if onFrame != nil {
				onFrame(f)
			}
		case errors.Is(err, ErrIncomplete):
			if !i.transport.IsConnected() {
				return frames, NewTransportClosedError("Poll", string(i.transport.Type()))
			}
			return frames, nil
		case IsDecodeFailure(err):
			if onFailure != nil {
				onFailure(err)
			}
		default:
			return frames, err
		}
	}
	return frames, nil
}

// Execute runs one host command line and returns its reply.
func (i *Instrument) Execute(ctx context.Context, line string) (string, error) {
	return i.dispatcher.Dispatch(ctx, line)
}

// Registers returns the register store.
func (i *Instrument) Registers() *RegisterStore {
	return i.store
}

// Decoder returns the frame decoder.
func (i *Instrument) Decoder() *Decoder {
	return i.decoder
}

// Writer returns the device writer.
func (i *Instrument) Writer() *DeviceWriter {
	return i.writer
}

// Dispatcher returns the command dispatcher.
func (i *Instrument) Dispatcher() *Dispatcher {
	return i.dispatcher
}

// Transport returns the underlying transport.
func (i *Instrument) Transport() Transport {
	return i.transport
}

// Scaling returns the unit conversion constants in use.
func (i *Instrument) Scaling() Scaling {
	return i.scaling
}

// Close closes the transport.
func (i *Instrument) Close() error {
	if err := i.transport.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	return nil
}
