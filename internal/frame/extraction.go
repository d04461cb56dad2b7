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

// ComposeLE assembles up to eight bytes into an unsigned integer, least
// significant byte first.
func ComposeLE(data []byte) uint64 {
	var v uint64
	for i := len(data) - 1; i >= 0; i-- {
		v = v<<8 | uint64(data[i])
	}
	return v
}

// ComposeBE assembles up to eight bytes into an unsigned integer, most
// significant byte first.
func ComposeBE(data []byte) uint64 {
	var v uint64
	for _, b := range data {
		v = v<<8 | uint64(b)
	}
	return v
}

// PutLE writes the low len(dst) bytes of v into dst, least significant first.
func PutLE(dst []byte, v uint64) {
	for i := range dst {
		dst[i] = byte(v >> (8 * i))
	}
}

// PutBE writes the low len(dst) bytes of v into dst, most significant first.
func PutBE(dst []byte, v uint64) {
	n := len(dst)
	for i := range dst {
		dst[n-1-i] = byte(v >> (8 * i))
	}
}
