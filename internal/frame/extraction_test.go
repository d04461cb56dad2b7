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

func TestComposeLE(t *testing.T) {
	t.Parallel()
	assert.Equal(t, uint64(0x04030201), ComposeLE([]byte{0x01, 0x02, 0x03, 0x04}))
	assert.Equal(t, uint64(0x0504030201), ComposeLE([]byte{0x01, 0x02, 0x03, 0x04, 0x05}))
	assert.Equal(t, uint64(0), ComposeLE(nil))
}

func TestComposeBE(t *testing.T) {
	t.Parallel()
	assert.Equal(t, uint64(0x01020304), ComposeBE([]byte{0x01, 0x02, 0x03, 0x04}))
	assert.Equal(t, uint64(0x5A), ComposeBE([]byte{0x00, 0x00, 0x00, 0x5A}))
}

func TestPutRoundTrip(t *testing.T) {
	t.Parallel()

	le := make([]byte, 4)
	PutLE(le, 0x00000889)
	assert.Equal(t, []byte{0x89, 0x08, 0x00, 0x00}, le)

	be := make([]byte, 4)
	PutBE(be, 0x00000889)
	assert.Equal(t, []byte{0x00, 0x00, 0x08, 0x89}, be)

	assert.Equal(t, uint64(0x889), ComposeLE(le))
	assert.Equal(t, uint64(0x889), ComposeBE(be))
}
