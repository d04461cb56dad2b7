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
	"fmt"
	"math"
	"time"

	"periph.io/x/conn/v3/physic"
)

// Scaling holds the constants that turn device codes into engineering units.
// The same values are used when encoding register writes and when decoding
// telemetry, so a conversion is applied once at the boundary and nowhere else.
type Scaling struct {
	// ReferenceVoltage is the DAC full-scale voltage
	ReferenceVoltage physic.ElectricPotential
	// Resolution is the number of DAC codes across the reference voltage
	Resolution int
	// LSBCharge is the charge of one count, in attocoulombs
	LSBCharge float64
	// SamplingPeriod is the gate window one charge reading integrates over
	SamplingPeriod time.Duration
}

// DefaultScaling returns the constants of the reference front-end.
func DefaultScaling() Scaling {
	return Scaling{
		ReferenceVoltage: 3 * physic.Volt,
		Resolution:       4096,
		LSBCharge:        39.339,
		SamplingPeriod:   100 * time.Millisecond,
	}
}

// Validate checks that the constants can be divided by.
func (s Scaling) Validate() error {
	switch {
	case s.ReferenceVoltage <= 0:
		return fmt.Errorf("%w: reference voltage must be positive", ErrInvalidConfig)
	case s.Resolution <= 0:
		return fmt.Errorf("%w: DAC resolution must be positive", ErrInvalidConfig)
	case s.LSBCharge <= 0:
		return fmt.Errorf("%w: LSB charge must be positive", ErrInvalidConfig)
	case s.SamplingPeriod <= 0:
		return fmt.Errorf("%w: sampling period must be positive", ErrInvalidConfig)
	}
	return nil
}

// ReferenceVolts returns the reference voltage as a float in volts.
func (s Scaling) ReferenceVolts() float64 {
	return Volts(s.ReferenceVoltage)
}

// MaxVolts is the highest voltage the DAC can produce, one code below the
// reference: vref * (resolution-1) / resolution.
func (s Scaling) MaxVolts() float64 {
	return s.ReferenceVolts() * float64(s.Resolution-1) / float64(s.Resolution)
}

// VoltsToCode converts a DAC voltage into the device code,
// round(v * resolution / vref). Voltages outside [0, MaxVolts] are rejected
// so the code always fits the converter.
func (s Scaling) VoltsToCode(volts float64) (uint32, error) {
	vmax := s.MaxVolts()
	if math.IsNaN(volts) || volts < 0 || volts > vmax {
		return 0, fmt.Errorf("%w: %g V outside [0, %g] V", ErrOutOfRange, volts, vmax)
	}
	return uint32(math.Round(volts * float64(s.Resolution) / s.ReferenceVolts())), nil
}

// CodeToVolts is the inverse of VoltsToCode.
func (s Scaling) CodeToVolts(code uint32) float64 {
	return float64(code) * s.ReferenceVolts() / float64(s.Resolution)
}

// CountsToFemtoamps converts accumulated charge counts into a current.
// counts * aC / ms yields femtoamperes directly.
func (s Scaling) CountsToFemtoamps(counts uint64) float64 {
	periodMs := float64(s.SamplingPeriod) / float64(time.Millisecond)
	return float64(counts) * s.LSBCharge / periodMs
}

// Volts converts a physic potential into a float in volts.
func Volts(p physic.ElectricPotential) float64 {
	return float64(p) / float64(physic.Volt)
}

// Potential converts volts into a physic potential.
func Potential(volts float64) physic.ElectricPotential {
	return physic.ElectricPotential(math.Round(volts * float64(physic.Volt)))
}

// TemperatureFromRaw applies the SHT4x transfer function, -45 + 175*raw/65535.
func TemperatureFromRaw(raw uint16) float64 {
	return -45 + 175*float64(raw)/65535
}

// HumidityFromRaw applies the SHT4x transfer function, -6 + 125*raw/65535,
// clamped to 0..100 %RH.
func HumidityFromRaw(raw uint16) float64 {
	rh := -6 + 125*float64(raw)/65535
	return math.Min(100, math.Max(0, rh))
}

// Environment packs a temperature and humidity reading into a physic.Env.
func Environment(celsius, percentRH float64) physic.Env {
	return physic.Env{
		Temperature: physic.ZeroCelsius + physic.Temperature(math.Round(celsius*float64(physic.Kelvin))),
		Humidity:    physic.RelativeHumidity(math.Round(percentRH * float64(physic.PercentRH))),
	}
}

// CurrentRange is a display range for a current reading.
type CurrentRange string

// Current display ranges.
const (
	RangeFemto CurrentRange = "fA"
	RangePico  CurrentRange = "pA"
	RangeNano  CurrentRange = "nA"
	RangeMicro CurrentRange = "uA"
)

// ScaleCurrent picks the display range for a current in femtoamperes.
func ScaleCurrent(femtoamps float64) (float64, CurrentRange) {
	magnitude := math.Abs(femtoamps)
	switch {
	case magnitude < 1e3:
		return femtoamps, RangeFemto
	case magnitude < 1e6:
		return femtoamps / 1e3, RangePico
	case magnitude < 1e9:
		return femtoamps / 1e6, RangeNano
	default:
		return femtoamps / 1e9, RangeMicro
	}
}

// FormatCurrent renders a current in femtoamperes in its display range.
func FormatCurrent(femtoamps float64) string {
	value, unit := ScaleCurrent(femtoamps)
	return fmt.Sprintf("%.3f %s", value, unit)
}
