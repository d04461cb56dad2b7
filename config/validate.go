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

package config

import (
	"fmt"
	"strconv"
	"strings"

	accurate "github.com/ZaparooProject/go-accurate"
)

// Framing and byte order spellings accepted in the file.
const (
	FramingBare      = "bare"
	FramingStartByte = "start-byte"
	OrderLittle      = "little-endian"
	OrderBig         = "big-endian"
)

// Validate checks configuration correctness.
// It performs declarative validation only and does not mutate cfg.
// Empty values are valid and mean "use the default".
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: nil config", accurate.ErrInvalidConfig)
	}

	if err := validateDevice(&cfg.Device); err != nil {
		return err
	}
	if err := validateWriter(&cfg.Writer); err != nil {
		return err
	}
	if err := validateScaling(&cfg.Scaling); err != nil {
		return err
	}

	if cfg.Poll.IntervalMs < 0 || cfg.Poll.CommandTimeoutMs < 0 {
		return fmt.Errorf("%w: poll: negative duration", accurate.ErrInvalidConfig)
	}

	for i := 0; i < len(cfg.Identity.Serial); i++ {
		if cfg.Identity.Serial[i] > 0x7F {
			return fmt.Errorf("%w: identity: serial must contain ASCII characters only",
				accurate.ErrInvalidConfig)
		}
	}

	return validateRegisters(cfg)
}

func validateDevice(d *DeviceConfig) error {
	if d.BaudRate < 0 || d.ReadTimeoutMs < 0 {
		return fmt.Errorf("%w: device: negative baud rate or timeout", accurate.ErrInvalidConfig)
	}
	if d.Revision != "" {
		if _, err := accurate.FamilyByName(strings.ToLower(d.Revision)); err != nil {
			return fmt.Errorf("device: %w", err)
		}
	}
	if (d.USB.VID == "") != (d.USB.PID == "") {
		return fmt.Errorf("%w: device: usb needs both vid and pid", accurate.ErrInvalidConfig)
	}
	for _, id := range []string{d.USB.VID, d.USB.PID} {
		if id == "" {
			continue
		}
		if _, err := strconv.ParseUint(id, 16, 16); err != nil {
			return fmt.Errorf("%w: device: usb id %q is not a 16-bit hex value",
				accurate.ErrInvalidConfig, id)
		}
	}
	return nil
}

func validateWriter(w *WriterConfig) error {
	framing := strings.ToLower(w.Framing)
	switch framing {
	case "", FramingBare, FramingStartByte:
	default:
		return fmt.Errorf("%w: writer: unknown framing %q", accurate.ErrInvalidConfig, w.Framing)
	}
	switch strings.ToLower(w.ValueOrder) {
	case "", OrderLittle, OrderBig:
	default:
		return fmt.Errorf("%w: writer: unknown value order %q", accurate.ErrInvalidConfig, w.ValueOrder)
	}
	if w.Ack && framing != FramingStartByte {
		return fmt.Errorf("%w: writer: acknowledgements need start-byte framing",
			accurate.ErrInvalidConfig)
	}
	if w.AckTimeoutMs < 0 {
		return fmt.Errorf("%w: writer: negative ack timeout", accurate.ErrInvalidConfig)
	}
	return nil
}

func validateScaling(s *ScalingConfig) error {
	if s.ReferenceVoltage < 0 || s.LSBCharge < 0 || s.Resolution < 0 || s.SamplingPeriodMs < 0 {
		return fmt.Errorf("%w: scaling: values must not be negative", accurate.ErrInvalidConfig)
	}
	return nil
}

// validateRegisters checks overrides against a store built with the
// configured scaling, so DAC voltages are checked against the right
// reference.
func validateRegisters(cfg *Config) error {
	if len(cfg.Registers) == 0 {
		return nil
	}
	scaling := scalingFor(&cfg.Scaling)
	store, err := accurate.NewRegisterStore(accurate.DefaultRegisterTable(scaling), scaling)
	if err != nil {
		return fmt.Errorf("registers: %w", err)
	}
	overrides := make(map[string]float64, len(cfg.Registers))
	for name, v := range cfg.Registers {
		overrides[strings.ToUpper(name)] = v
	}
	if err := store.ApplyOverrides(overrides); err != nil {
		return fmt.Errorf("%w: registers: %w", accurate.ErrInvalidConfig, err)
	}
	return nil
}
