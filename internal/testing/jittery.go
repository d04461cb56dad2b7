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

package testing

import (
	"io"
	"math/rand/v2"
	"time"
)

// JitterConfig shapes how a JitteryConnection mangles the byte stream.
// The zero value passes reads through untouched.
type JitterConfig struct {
	MaxLatency time.Duration
	// FragmentMinBytes is the floor for a fragmented read.
	FragmentMinBytes int
	// StallAfterBytes pauses the stream once, for StallDuration, after that
	// many bytes were handed out.
	StallAfterBytes int
	StallDuration   time.Duration
	// DropEvery loses every Nth byte read from the backend, as a lossy
	// USB-UART bridge would.
	DropEvery     int
	Seed          uint64
	FragmentReads bool
}

// DefaultJitterConfig splits reads at random points with up to 2ms of delay.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		MaxLatency:       2 * time.Millisecond,
		FragmentReads:    true,
		FragmentMinBytes: 1,
	}
}

// JitteryConnection sits between a transport and its backend and delivers
// frames the way a real serial link does: split across reads, late, and
// now and then short of a byte. Fragmenting never loses data.
type JitteryConnection struct {
	backend io.ReadWriter
	rng     *rand.Rand
	pending []byte
	config  JitterConfig
	handed  int
	seen    int
	dropped int
	stalled bool
}

// NewJitteryConnection wraps backend. A zero Seed picks a random one.
func NewJitteryConnection(backend io.ReadWriter, config JitterConfig) *JitteryConnection {
	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	config.FragmentMinBytes = max(config.FragmentMinBytes, 1)
	return &JitteryConnection{
		backend: backend,
		config:  config,
		rng:     rand.New(rand.NewPCG(seed, seed^0x5eed)), //nolint:gosec // test traffic shaping
		pending: make([]byte, 0, 1024),
	}
}

func (j *JitteryConnection) Write(data []byte) (int, error) {
	return j.backend.Write(data) //nolint:wrapcheck // pass-through
}

func (j *JitteryConnection) Read(buf []byte) (int, error) {
	j.delay()

	if err := j.pull(); err != nil {
		return 0, err
	}
	if len(j.pending) == 0 {
		return 0, nil
	}

	n := j.fragment(j.stall(min(len(j.pending), len(buf))))
	copy(buf, j.pending[:n])
	j.pending = j.pending[n:]
	j.handed += n
	return n, nil
}

func (j *JitteryConnection) delay() {
	if j.config.MaxLatency <= 0 {
		return
	}
	if d := time.Duration(j.rng.Int64N(int64(j.config.MaxLatency) + 1)); d > 0 {
		time.Sleep(d)
	}
}

// stall caps n so the stream stops exactly at StallAfterBytes, then sleeps
// on the first read past that point.
func (j *JitteryConnection) stall(n int) int {
	limit := j.config.StallAfterBytes
	if limit <= 0 || j.stalled {
		return n
	}
	if j.handed < limit {
		return min(n, limit-j.handed)
	}
	j.stalled = true
	if j.config.StallDuration > 0 {
		time.Sleep(j.config.StallDuration)
	}
	return n
}

func (j *JitteryConnection) fragment(n int) int {
	floor := j.config.FragmentMinBytes
	if !j.config.FragmentReads || n <= floor {
		return n
	}
	return floor + j.rng.IntN(n-floor+1)
}

// pull reads more from the backend once everything pending was handed out.
func (j *JitteryConnection) pull() error {
	if len(j.pending) > 0 {
		return nil
	}
	chunk := make([]byte, 1024)
	n, err := j.backend.Read(chunk)
	if err != nil {
		return err //nolint:wrapcheck // pass-through
	}
	for _, b := range chunk[:n] {
		j.seen++
		if j.config.DropEvery > 0 && j.seen%j.config.DropEvery == 0 {
			j.dropped++
			continue
		}
		j.pending = append(j.pending, b)
	}
	return nil
}

// Dropped counts bytes lost to DropEvery.
func (j *JitteryConnection) Dropped() int {
	return j.dropped
}

// ResetStallState re-arms the one-shot stall.
func (j *JitteryConnection) ResetStallState() {
	j.handed = 0
	j.stalled = false
}

// ClearBuffer discards bytes already pulled from the backend.
func (j *JitteryConnection) ClearBuffer() {
	j.pending = j.pending[:0]
}
