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
	"periph.io/x/conn/v3/physic"
)

// FrameKind identifies what a decoded frame carries.
type FrameKind int

const (
	// FrameMeasurement carries charge accumulation data
	FrameMeasurement FrameKind = iota
	// FrameTempHumidity carries an SHT41 reading
	FrameTempHumidity
	// FrameIOStatus carries button and LED state
	FrameIOStatus
)

func (k FrameKind) String() string {
	switch k {
	case FrameMeasurement:
		return "measurement"
	case FrameTempHumidity:
		return "temp-humidity"
	case FrameIOStatus:
		return "io-status"
	default:
		return "unknown"
	}
}

// Field names shared by the layouts and their consumers.
const (
	FieldCharge           = "charge"
	FieldCP1Count         = "cp1_count"
	FieldCP2Count         = "cp2_count"
	FieldCP3Count         = "cp3_count"
	FieldCP1StartInterval = "cp1_start_interval"
	FieldCP1EndInterval   = "cp1_end_interval"
	FieldTemperature      = "temperature"
	FieldHumidity         = "humidity"
	FieldButtons          = "buttons"
	FieldLEDs             = "leds"
)

// DecodedFrame is a fully read, checksum-verified frame. Fields holds the
// engineering-unit value of each data field; Counts holds the composed
// integer it was derived from.
type DecodedFrame struct {
	Fields   map[string]float64
	Counts   map[string]uint64
	Raw      []byte
	Kind     FrameKind
	Address  byte
	CRCValid bool
}

// Value returns a field's engineering-unit value.
func (f DecodedFrame) Value(name string) (float64, bool) {
	v, ok := f.Fields[name]
	return v, ok
}

// Current returns the measured current in femtoamperes.
func (f DecodedFrame) Current() (float64, bool) {
	return f.Value(FieldCharge)
}

// Env returns the temperature and humidity carried by the frame.
func (f DecodedFrame) Env() (physic.Env, bool) {
	t, okT := f.Fields[FieldTemperature]
	h, okH := f.Fields[FieldHumidity]
	if !okT || !okH {
		return physic.Env{}, false
	}
	return Environment(t, h), true
}
