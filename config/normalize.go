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
	"strings"

	accurate "github.com/ZaparooProject/go-accurate"
)

// Normalize fills defaults and canonical spellings. It mutates cfg and
// must be called only after Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	d := &cfg.Device
	if d.BaudRate == 0 {
		d.BaudRate = accurate.DefaultBaudRate
	}
	d.Revision = strings.ToLower(d.Revision)
	if d.Revision == "" {
		d.Revision = "rev-b"
	}
	d.USB.VID = strings.ToUpper(d.USB.VID)
	d.USB.PID = strings.ToUpper(d.USB.PID)

	w := &cfg.Writer
	w.Framing = strings.ToLower(w.Framing)
	if w.Framing == "" {
		w.Framing = FramingBare
	}
	w.ValueOrder = strings.ToLower(w.ValueOrder)
	if w.ValueOrder == "" || w.Framing == FramingBare {
		// bare writes are always little-endian
		w.ValueOrder = OrderLittle
	}
	if w.AckTimeoutMs == 0 {
		w.AckTimeoutMs = int(accurate.DefaultAckTimeout.Milliseconds())
	}

	s := &cfg.Scaling
	def := accurate.DefaultScaling()
	if s.ReferenceVoltage == 0 {
		s.ReferenceVoltage = float64(def.ReferenceVoltage) / float64(volt)
	}
	if s.Resolution == 0 {
		s.Resolution = def.Resolution
	}
	if s.LSBCharge == 0 {
		s.LSBCharge = def.LSBCharge
	}
	if s.SamplingPeriodMs == 0 {
		s.SamplingPeriodMs = int(def.SamplingPeriod.Milliseconds())
	}

	if cfg.Poll.IntervalMs == 0 {
		cfg.Poll.IntervalMs = int(accurate.DefaultPollInterval.Milliseconds())
	}

	if len(cfg.Registers) > 0 {
		upper := make(map[string]float64, len(cfg.Registers))
		for name, v := range cfg.Registers {
			upper[strings.ToUpper(strings.TrimSpace(name))] = v
		}
		cfg.Registers = upper
	}

	cfg.Identity.Manufacturer = strings.TrimSpace(cfg.Identity.Manufacturer)
	cfg.Identity.Model = strings.TrimSpace(cfg.Identity.Model)
	cfg.Identity.Serial = strings.TrimSpace(cfg.Identity.Serial)
	cfg.Identity.Firmware = strings.TrimSpace(cfg.Identity.Firmware)
}
