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

// CRC-8 parameters used by the SHT4x sensor family and by every
// address-prefixed frame the gateware emits.
const (
	CRCPolynomial = 0x31
	CRCInit       = 0xFF
)

// CalculateCRC8 computes the CRC-8 of data: polynomial 0x31, init 0xFF,
// MSB-first, no reflection and no final XOR.
func CalculateCRC8(data []byte) byte {
	crc := byte(CRCInit)
	for _, b := range data {
		crc ^= b
		for range 8 {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ CRCPolynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// ValidateCRC8 reports whether want matches the CRC-8 of data.
func ValidateCRC8(data []byte, want byte) bool {
	return CalculateCRC8(data) == want
}
