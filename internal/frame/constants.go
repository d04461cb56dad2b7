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

package frame

// Address bytes emitted by revision A gateware.
const (
	AddrTempHumidity = 0xA5 // SHT41 temperature + humidity words
	AddrIOStatus     = 0xA7 // button and LED state
	AddrMeasurement  = 0xAB // accumulated charge
)

// Payload lengths, excluding the address byte.
const (
	TempHumidityPayloadLen = 6
	IOStatusPayloadLen     = 3
	MeasurementPayloadLen  = 5
)

// Revision B frames are a fixed run of 32-bit words terminated by a stop word.
const (
	WordSize          = 4
	MultiWordCount    = 9
	MultiWordFrameLen = WordSize * MultiWordCount
	StopSentinel      = 0x5A
)

// Host to device framing.
const (
	StartByte         = 0xDD // leads every start-byte framed register write
	RegisterValueLen  = 4
	BareWriteLen      = 1 + RegisterValueLen
	StartByteWriteLen = 2 + RegisterValueLen
)

// Acknowledgement status nibble values.
const (
	AckOK             = 0x0
	AckGenericError   = 0x1
	AckTimeout        = 0x2
	AckHeaderError    = 0x3
	AckMessageInvalid = 0x4
)
