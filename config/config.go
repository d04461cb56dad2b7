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

// Package config loads the YAML deployment file that describes one
// instrument: its serial port, device revision, write framing, scaling
// constants and register overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is one deployment file: which port and device revision to talk
// to, how register writes are framed, and the register overrides pushed
// at start-up.
type Config struct {
	Registers map[string]float64 `yaml:"registers"`
	Identity  IdentityConfig     `yaml:"identity"`
	Device    DeviceConfig       `yaml:"device"`
	Writer    WriterConfig       `yaml:"writer"`
	Logging   LoggingConfig      `yaml:"logging"`
	Scaling   ScalingConfig      `yaml:"scaling"`
	Poll      PollConfig         `yaml:"poll"`
}

// DeviceConfig selects the serial port and the telemetry layout.
type DeviceConfig struct {
	// Port is the serial device path. Empty selects the port by USB id.
	Port          string    `yaml:"port"`
	Revision      string    `yaml:"revision"`
	USB           USBConfig `yaml:"usb"`
	BaudRate      int       `yaml:"baud_rate"`
	ReadTimeoutMs int       `yaml:"read_timeout_ms"`
}

// USBConfig matches a USB-UART bridge by hex vendor and product id.
type USBConfig struct {
	VID string `yaml:"vid"`
	PID string `yaml:"pid"`
}

// WriterConfig maps onto accurate.WriterConfig. Ack requires start-byte
// framing.
type WriterConfig struct {
	Framing      string `yaml:"framing"`
	ValueOrder   string `yaml:"value_order"`
	Ack          bool   `yaml:"ack"`
	AckTimeoutMs int    `yaml:"ack_timeout_ms"`
}

// ScalingConfig overrides the converter constants. Zero keeps the default.
type ScalingConfig struct {
	ReferenceVoltage float64 `yaml:"reference_voltage"`
	LSBCharge        float64 `yaml:"lsb_charge_ac"`
	Resolution       int     `yaml:"resolution"`
	SamplingPeriodMs int     `yaml:"sampling_period_ms"`
}

// IdentityConfig is reported by *IDN?.
type IdentityConfig struct {
	Manufacturer string `yaml:"manufacturer"`
	Model        string `yaml:"model"`
	Serial       string `yaml:"serial"`
	Firmware     string `yaml:"firmware"`
}

// PollConfig tunes the control loop.
type PollConfig struct {
	// ConfigureOnStart defaults to true when omitted
	ConfigureOnStart *bool `yaml:"configure_on_start"`
	IntervalMs       int   `yaml:"interval_ms"`
	CommandTimeoutMs int   `yaml:"command_timeout_ms"`
	SleepRecovery    *bool `yaml:"sleep_recovery"`
}

// LoggingConfig points the session and measurement logs at files.
type LoggingConfig struct {
	// SessionDir receives the debug session log
	SessionDir string `yaml:"session_dir"`
	// MeasurementLog is the CSV file measurements are appended to
	MeasurementLog string `yaml:"measurement_log"`
	Debug          bool   `yaml:"debug"`
	Verbose        bool   `yaml:"verbose"`
}

// Load reads and decodes a deployment file. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a deployment document. An empty document yields the zero
// Config, which Normalize turns into the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Marshal renders cfg as YAML, used to print the effective configuration.
func Marshal(cfg *Config) ([]byte, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return out, nil
}
