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

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateCRC8(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data []byte
		want byte
	}{
		{name: "empty data returns init", data: []byte{}, want: 0xFF},
		{name: "sensor reference vector", data: []byte{0xBE, 0xEF}, want: 0x92},
		{name: "zero word", data: []byte{0x00, 0x00}, want: 0x81},
		{name: "single zero byte", data: []byte{0x00}, want: 0xAC},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CalculateCRC8(tt.data))
		})
	}
}

func TestValidateCRC8(t *testing.T) {
	t.Parallel()
	assert.True(t, ValidateCRC8([]byte{0xBE, 0xEF}, 0x92))
	assert.False(t, ValidateCRC8([]byte{0xBE, 0xEF}, 0x93))
	assert.False(t, ValidateCRC8([]byte{0xBE, 0xEE}, 0x92))
}

func FuzzCalculateCRC8(f *testing.F) {
	f.Add([]byte{0xBE, 0xEF})
	f.Add([]byte{})
	f.Add([]byte{0xFF, 0xFF, 0xFF})

	// Appending the CRC to its own input leaves a zero remainder.
	f.Fuzz(func(t *testing.T, data []byte) {
		crc := CalculateCRC8(data)
		withCRC := append(append([]byte(nil), data...), crc)
		if got := CalculateCRC8(withCRC); got != 0 {
			t.Fatalf("remainder = 0x%02X for %X", got, withCRC)
		}
	})
}
