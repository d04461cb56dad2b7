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
	"strconv"
	"time"
)

// Register addresses understood by the gateware.
const (
	RegInitConfig  byte = 0x01
	RegGateLength  byte = 0x02
	RegRstDuration byte = 0x03
	RegVBias1      byte = 0x04
	RegVBias2      byte = 0x05
	RegVBias3      byte = 0x06
	RegVCM         byte = 0x07
	RegVCM1        byte = 0x08
	RegVTh1        byte = 0x09
	RegVTh2        byte = 0x0A
	RegVTh3        byte = 0x0B
	RegVTh4        byte = 0x0C
	RegVTh5        byte = 0x0D
	RegVTh6        byte = 0x0E
	RegVTh7        byte = 0x0F

	RegChargeCP1      byte = 0x10
	RegCooldownMinCP1 byte = 0x13
	RegCooldownMaxCP1 byte = 0x16
	RegResetOTA       byte = 0x19
	RegTCharge        byte = 0x1A
	RegTInjection     byte = 0x1B
	RegDisableCP1     byte = 0x1C
	RegSingly         byte = 0x1F
	RegStream         byte = 0x20
	RegRaw            byte = 0x21
)

// Gateware defaults.
const (
	DefaultInitConfig  = 0x4107
	DefaultRstDuration = 0x0708
	DefaultClockHz     = 100_000_000
)

// ChargePumps is the number of charge pumps on the front-end.
const ChargePumps = 3

// Charge quanta per pump, from the pump capacitances and Vcharge+ - Vcharge-.
var defaultChargeQuanta = [ChargePumps]float64{12710, 25420, 101680}

// GateLength returns the gate register value for a sampling window:
// window * clock - 1.
func GateLength(window time.Duration, clockHz int) uint32 {
	cycles := window.Seconds() * float64(clockHz)
	return uint32(cycles+0.5) - 1
}

// DefaultRegisterTable returns the register map with its power-on defaults.
// Voltage registers are bounded by the highest code the DAC accepts.
func DefaultRegisterTable(scaling Scaling) []RegisterEntry {
	vmax := scaling.MaxVolts()
	volt := func(addr byte, name string, v float64) RegisterEntry {
		return RegisterEntry{
			Address:  addr,
			Name:     name,
			Encoding: EncodingFloatScaled,
			Bounds:   Bounds{Min: 0, Max: vmax},
			Default:  v,
			Unit:     "V",
		}
	}
	flag := func(addr byte, name string, on bool) RegisterEntry {
		e := RegisterEntry{Address: addr, Name: name, Encoding: EncodingU8, Bounds: Bounds{Max: 1}}
		if on {
			e.Default = 1
		}
		return e
	}

	table := []RegisterEntry{
		{
			Address: RegInitConfig, Name: "INIT_CONFIG", Encoding: EncodingU32,
			Bounds: Bounds{Max: 0xFFFFFFFF}, Default: DefaultInitConfig,
		},
		{
			Address: RegGateLength, Name: "GATE_LENGTH", Encoding: EncodingU32,
			Bounds:  Bounds{Min: 1, Max: 0xFFFFFFFF},
			Default: float64(GateLength(scaling.SamplingPeriod, DefaultClockHz)),
			Unit:    "cycles",
		},
		{
			Address: RegRstDuration, Name: "RST_DURATION", Encoding: EncodingU32,
			Bounds: Bounds{Max: 0xFFFF}, Default: DefaultRstDuration, Unit: "cycles",
		},
		volt(RegVBias1, "VBIAS1", 1.6),
		volt(RegVBias2, "VBIAS2", 2.5),
		volt(RegVBias3, "VBIAS3", 1.18),
		volt(RegVCM, "VCM", 1.5),
		volt(RegVCM1, "VCM1", 1.5),
		volt(RegVTh1, "VTH1", 1.55),
		volt(RegVTh2, "VTH2", 1.7),
		volt(RegVTh3, "VTH3", 1.83),
		volt(RegVTh4, "VTH4", 2.5),
		volt(RegVTh5, "VTH5", 1.5),
		volt(RegVTh6, "VTH6", 1.5),
		volt(RegVTh7, "VTH7", 2.5),
	}

	for i := range byte(ChargePumps) {
		n := strconv.Itoa(int(i) + 1)
		table = append(table, RegisterEntry{
			Address: RegChargeCP1 + i, Name: "CHARGE_CP" + n, Encoding: EncodingU32,
			Bounds: Bounds{Max: 0xFFFFFF}, Default: defaultChargeQuanta[i],
		})
	}
	for i := range byte(ChargePumps) {
		n := strconv.Itoa(int(i) + 1)
		table = append(table, RegisterEntry{
			Address: RegCooldownMinCP1 + i, Name: "COOLDOWN_MIN_CP" + n, Encoding: EncodingU16,
			Bounds: Bounds{Max: 0xFFFF}, Default: 10, Unit: "cycles",
		})
	}
	for i := range byte(ChargePumps) {
		n := strconv.Itoa(int(i) + 1)
		table = append(table, RegisterEntry{
			Address: RegCooldownMaxCP1 + i, Name: "COOLDOWN_MAX_CP" + n, Encoding: EncodingU16,
			Bounds: Bounds{Max: 0xFFFF}, Default: 1000, Unit: "cycles",
		})
	}

	table = append(table,
		flag(RegResetOTA, "RESET_OTA", false),
		RegisterEntry{
			Address: RegTCharge, Name: "TCHARGE", Encoding: EncodingU8,
			Bounds: Bounds{Min: 1, Max: 255}, Default: 1, Unit: "cycles",
		},
		RegisterEntry{
			Address: RegTInjection, Name: "TINJECTION", Encoding: EncodingU8,
			Bounds: Bounds{Min: 1, Max: 255}, Default: 1, Unit: "cycles",
		},
	)
	for i := range byte(ChargePumps) {
		table = append(table, flag(RegDisableCP1+i, "DISABLE_CP"+strconv.Itoa(int(i)+1), false))
	}
	table = append(table,
		flag(RegSingly, "SINGLY", false),
		flag(RegStream, "STREAM", true),
	)

	raw := flag(RegRaw, "RAW", false)
	raw.HostOnly = true
	return append(table, raw)
}
