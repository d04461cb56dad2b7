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

package capture

import (
	"errors"
	"io"
	"time"

	accurate "github.com/ZaparooProject/go-accurate"
	"github.com/ZaparooProject/go-accurate/internal/syncutil"
)

// TransportReplay identifies a Player.
const TransportReplay accurate.TransportType = "replay"

// Player is a Transport that plays back the wire bytes of recorded frames.
// Writes are accepted and counted but go nowhere. Once every frame has
// been released and read, the player reports itself disconnected, which
// ends a control loop the same way an unplugged device does.
//
// With a positive speed, frames are released at their recorded spacing
// divided by speed. Zero releases everything immediately.
type Player struct {
	reader  *Reader
	now     func() time.Time
	pending *Record
	start   time.Time
	first   time.Time
	rx      []byte
	speed   float64
	writes  int
	mu      syncutil.Mutex
	eof     bool
	closed  bool
}

// NewPlayer plays back the frames of r.
func NewPlayer(r *Reader, speed float64) *Player {
	if speed < 0 {
		speed = 0
	}
	return &Player{reader: r, speed: speed, now: time.Now}
}

// fill moves due frames into rx. Caller must hold mu.
func (p *Player) fill() {
	if p.closed {
		return
	}
	for !p.eof {
		if p.pending == nil {
			rec, err := p.reader.Next()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					accurate.Debugf("replay: stopping on %v", err)
				}
				p.eof = true
				return
			}
			if rec.Kind != RecordFrame || len(rec.Raw) == 0 {
				continue
			}
			p.pending = &rec
		}

		if p.speed > 0 {
			now := p.now()
			if p.start.IsZero() {
				p.start = now
				p.first = p.pending.Time
			}
			offset := time.Duration(float64(p.pending.Time.Sub(p.first)) / p.speed)
			if now.Before(p.start.Add(offset)) {
				return
			}
		}
		p.rx = append(p.rx, p.pending.Raw...)
		p.pending = nil
	}
}

// Available implements accurate.ByteSource.
func (p *Player) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fill()
	return len(p.rx)
}

// Peek implements accurate.ByteSource.
func (p *Player) Peek() (byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fill()
	if len(p.rx) == 0 {
		return 0, false
	}
	return p.rx[0], true
}

// Read implements accurate.ByteSource.
func (p *Player) Read() (byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fill()
	if len(p.rx) == 0 {
		return 0, false
	}
	b := p.rx[0]
	p.rx = p.rx[1:]
	return b, true
}

// ReadExact implements accurate.ByteSource.
func (p *Player) ReadExact(n int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, accurate.NewTransportClosedError("ReadExact", string(TransportReplay))
	}
	p.fill()
	if n > len(p.rx) {
		return nil, accurate.NewTransportNotReadyError("ReadExact", string(TransportReplay))
	}
	out := append([]byte(nil), p.rx[:n]...)
	p.rx = p.rx[n:]
	return out, nil
}

// Write implements accurate.ByteSink.
func (p *Player) Write([]byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return accurate.NewTransportClosedError("Write", string(TransportReplay))
	}
	p.writes++
	return nil
}

// Writes returns how many register writes were discarded.
func (p *Player) Writes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes
}

// IsConnected is true until the capture is exhausted and drained.
func (p *Player) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	return !p.eof || p.pending != nil || len(p.rx) > 0
}

// Type implements accurate.Transport.
func (*Player) Type() accurate.TransportType {
	return TransportReplay
}

// Close closes the underlying capture.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.rx = nil
	return p.reader.Close()
}

var _ accurate.Transport = (*Player)(nil)
