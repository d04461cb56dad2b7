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
	"context"
	"fmt"
	"strconv"
	"time"

	accurate "github.com/ZaparooProject/go-accurate"
	"github.com/ZaparooProject/go-accurate/polling"
	"github.com/ZaparooProject/go-accurate/transport/uart"
	"periph.io/x/conn/v3/physic"
)

const volt = physic.Volt

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func scalingFor(s *ScalingConfig) accurate.Scaling {
	scaling := accurate.DefaultScaling()
	if s.ReferenceVoltage > 0 {
		scaling.ReferenceVoltage = physic.ElectricPotential(s.ReferenceVoltage * float64(volt))
	}
	if s.Resolution > 0 {
		scaling.Resolution = s.Resolution
	}
	if s.LSBCharge > 0 {
		scaling.LSBCharge = s.LSBCharge
	}
	if s.SamplingPeriodMs > 0 {
		scaling.SamplingPeriod = millis(s.SamplingPeriodMs)
	}
	return scaling
}

// WriterConfig returns the register write policy described by the file.
func (c *Config) WriterConfig() accurate.WriterConfig {
	wc := accurate.DefaultWriterConfig()
	if c.Writer.Framing == FramingStartByte {
		wc.Framing = accurate.FramingStartByte
	}
	if c.Writer.ValueOrder == OrderBig {
		wc.ValueOrder = accurate.BigEndian
	}
	if c.Writer.Ack {
		wc.AckLength = 1
	}
	if c.Writer.AckTimeoutMs > 0 {
		wc.AckTimeout = millis(c.Writer.AckTimeoutMs)
	}
	return wc
}

// InstrumentIdentity returns the *IDN? identity, filling unset fields from the
// default.
func (c *Config) InstrumentIdentity() accurate.Identity {
	id := accurate.DefaultIdentity()
	if c.Identity.Manufacturer != "" {
		id.Manufacturer = c.Identity.Manufacturer
	}
	if c.Identity.Model != "" {
		id.Model = c.Identity.Model
	}
	if c.Identity.Serial != "" {
		id.Serial = c.Identity.Serial
	}
	if c.Identity.Firmware != "" {
		id.Firmware = c.Identity.Firmware
	}
	return id
}

// InstrumentOptions maps the file onto accurate.New options.
func (c *Config) InstrumentOptions() ([]accurate.Option, error) {
	family, err := accurate.FamilyByName(c.Device.Revision)
	if err != nil {
		return nil, err
	}
	opts := []accurate.Option{
		accurate.WithLayoutFamily(family),
		accurate.WithWriterConfig(c.WriterConfig()),
		accurate.WithScaling(scalingFor(&c.Scaling)),
		accurate.WithIdentity(c.InstrumentIdentity()),
	}
	if len(c.Registers) > 0 {
		opts = append(opts, accurate.WithRegisterOverrides(c.Registers))
	}
	return opts, nil
}

// PollingConfig returns the control loop settings.
func (c *Config) PollingConfig() *polling.Config {
	pc := polling.DefaultConfig()
	if c.Poll.IntervalMs > 0 {
		pc.PollInterval = millis(c.Poll.IntervalMs)
	}
	if c.Poll.CommandTimeoutMs > 0 {
		pc.CommandTimeout = millis(c.Poll.CommandTimeoutMs)
	}
	if c.Poll.ConfigureOnStart != nil {
		pc.ConfigureOnStart = *c.Poll.ConfigureOnStart
	}
	if c.Poll.SleepRecovery != nil {
		pc.SleepRecovery.Enabled = *c.Poll.SleepRecovery
	}
	return pc
}

// UARTConfig returns the serial port settings.
func (c *Config) UARTConfig() uart.Config {
	uc := uart.DefaultConfig()
	if c.Device.BaudRate > 0 {
		uc.BaudRate = c.Device.BaudRate
	}
	if c.Device.ReadTimeoutMs > 0 {
		uc.ReadTimeout = millis(c.Device.ReadTimeoutMs)
	}
	return uc
}

// ResolvePort returns the configured port, or the first USB serial port
// matching the configured vid/pid.
func (c *Config) ResolvePort() (string, error) {
	if c.Device.Port != "" {
		return c.Device.Port, nil
	}
	if c.Device.USB.VID == "" {
		return "", fmt.Errorf("%w: no serial port configured", accurate.ErrInvalidConfig)
	}
	ports, err := uart.ListPorts()
	if err != nil {
		return "", err
	}
	port, ok := uart.FindUSB(ports, c.Device.USB.VID, c.Device.USB.PID)
	if !ok {
		return "", fmt.Errorf("no serial port with USB id %s:%s", c.Device.USB.VID, c.Device.USB.PID)
	}
	return port.Name, nil
}

// Open resolves the port, opens it and builds the instrument on it.
func (c *Config) Open(_ context.Context) (*accurate.Instrument, error) {
	name, err := c.ResolvePort()
	if err != nil {
		return nil, err
	}
	opts, err := c.InstrumentOptions()
	if err != nil {
		return nil, err
	}
	transport, err := uart.New(name, c.UARTConfig())
	if err != nil {
		return nil, err
	}
	inst, err := accurate.New(transport, opts...)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}
	return inst, nil
}

// Summary is a one-line description for the console banner.
func (c *Config) Summary() string {
	return c.Device.Revision + ", " + c.Writer.Framing + " writes, " +
		strconv.Itoa(c.Device.BaudRate) + " baud"
}
