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
	"bytes"
	"fmt"
)

// maxWindowFrames bounds how many frames' worth of bytes the fixed
// multi-word decoder buffers while hunting for the stop sentinel.
const maxWindowFrames = 3

// DecoderStats counts decode outcomes since the decoder was created.
type DecoderStats struct {
	Frames           int64
	Unrecognized     int64
	Misaligned       int64
	ChecksumFailures int64
	DiscardedBytes   int64
}

// Decoder turns a byte stream into frames of one LayoutFamily.
//
// TryDecode never blocks: when a frame is not fully buffered it returns
// ErrIncomplete without consuming anything from the source. The only state
// kept between calls is the fixed multi-word scan window and the payload
// length of the last recognized address-prefixed frame.
//
// Thread Safety: Decoder is NOT thread-safe. It is owned by the control loop.
type Decoder struct {
	family         LayoutFamily
	window         []byte
	stats          DecoderStats
	scaling        Scaling
	lastPayloadLen int
	resyncing      bool
}

// NewDecoder validates the family and scaling and returns a decoder.
func NewDecoder(family LayoutFamily, scaling Scaling) (*Decoder, error) {
	if err := family.Validate(); err != nil {
		return nil, err
	}
	if err := scaling.Validate(); err != nil {
		return nil, err
	}
	d := &Decoder{family: family, scaling: scaling}
	if family.Kind == FixedMultiWord {
		d.window = make([]byte, 0, maxWindowFrames*family.Layouts[0].PayloadLength())
	}
	return d, nil
}

// Family returns the layouts this decoder recognizes.
func (d *Decoder) Family() LayoutFamily {
	return d.family
}

// Stats returns a copy of the outcome counters.
func (d *Decoder) Stats() DecoderStats {
	return d.stats
}

// Buffered returns the number of bytes held in the scan window.
func (d *Decoder) Buffered() int {
	return len(d.window)
}

// Reset drops the scan window and forgets the previous frame kind.
func (d *Decoder) Reset() {
	d.window = d.window[:0]
	d.resyncing = false
	d.lastPayloadLen = 0
}

// TryDecode attempts to produce one frame from src.
//
// It returns ErrIncomplete when more bytes are needed, or a *DecodeError
// wrapping ErrUnrecognizedAddress, ErrMisaligned or ErrChecksumMismatch
// when bytes were discarded. Any other error comes from the source.
func (d *Decoder) TryDecode(src ByteSource) (DecodedFrame, error) {
	if d.family.Kind == FixedMultiWord {
		return d.decodeFixed(src)
	}
	return d.decodeAddressed(src)
}

func (d *Decoder) decodeAddressed(src ByteSource) (DecodedFrame, error) {
	address, ok := src.Peek()
	if !ok {
		return DecodedFrame{}, ErrIncomplete
	}

	layout := d.family.ByAddress(address)
	if layout == nil {
		_, _ = src.Read()
		discard := min(src.Available(), d.lastPayloadLen)
		if discard > 0 {
			if _, err := src.ReadExact(discard); err != nil {
				return DecodedFrame{}, fmt.Errorf("discard after address 0x%02X: %w", address, err)
			}
		}
		d.stats.Unrecognized++
		d.stats.DiscardedBytes += int64(1 + discard)
		Debugf("decoder: unrecognized address 0x%02X, discarded %d bytes", address, 1+discard)
		return DecodedFrame{}, &DecodeError{
			Failure:   ErrUnrecognizedAddress,
			Address:   address,
			Discarded: 1 + discard,
		}
	}

	total := 1 + layout.PayloadLength()
	if src.Available() < total {
		return DecodedFrame{}, ErrIncomplete
	}
	raw, err := src.ReadExact(total)
	if err != nil {
		return DecodedFrame{}, fmt.Errorf("read %s frame: %w", layout.Kind, err)
	}
	d.lastPayloadLen = layout.PayloadLength()

	payload := raw[1:]
	if !layout.checksumsValid(payload) {
		d.stats.ChecksumFailures++
		d.stats.DiscardedBytes += int64(total)
		Debugf("decoder: checksum mismatch in %s frame % X", layout.Kind, raw)
		return DecodedFrame{}, &DecodeError{
			Failure:   ErrChecksumMismatch,
			Kind:      layout.Kind,
			Address:   address,
			Discarded: total,
		}
	}

	d.stats.Frames++
	return d.assemble(layout, payload, raw), nil
}

func (d *Decoder) decodeFixed(src ByteSource) (DecodedFrame, error) {
	layout := d.family.Layouts[0]
	size := layout.PayloadLength()

	if !d.resyncing {
		if need := size - len(d.window); need > 0 {
			if src.Available() < need {
				return DecodedFrame{}, ErrIncomplete
			}
			if err := d.pull(src, need); err != nil {
				return DecodedFrame{}, err
			}
		}

		head := d.window[:size]
		if layout.terminalValid(head) {
			if !layout.checksumsValid(head) {
				d.drop(size)
				d.stats.ChecksumFailures++
				d.stats.DiscardedBytes += int64(size)
				return DecodedFrame{}, &DecodeError{
					Failure:   ErrChecksumMismatch,
					Kind:      layout.Kind,
					Discarded: size,
				}
			}
			raw := append([]byte(nil), head...)
			d.drop(size)
			d.stats.Frames++
			return d.assemble(layout, raw, raw), nil
		}
		Debugf("decoder: stop word mismatch, resynchronizing")
		d.resyncing = true
	}

	return d.resync(src, layout)
}

// resync runs with the window head already known to be misaligned.
func (d *Decoder) resync(src ByteSource, layout *FrameLayout) (DecodedFrame, error) {
	size := layout.PayloadLength()
	sentinel, _ := layout.Sentinel()

	if pull := min(cap(d.window)-len(d.window), src.Available()); pull > 0 {
		if err := d.pull(src, pull); err != nil {
			return DecodedFrame{}, err
		}
	}

	// A sentinel that closes a frame with a valid terminal wins: only the
	// bytes before that frame are garbage.
	for end := size; end < len(d.window); end++ {
		if d.window[end] != sentinel {
			continue
		}
		start := end - size + 1
		if layout.terminalValid(d.window[start : end+1]) {
			return d.misaligned(layout, start)
		}
	}

	// Otherwise discard through the first sentinel that has a full frame
	// buffered after it.
	for p, b := range d.window {
		if b == sentinel && len(d.window)-(p+1) >= size {
			return d.misaligned(layout, p+1)
		}
	}

	// Nothing to anchor on. Keep only what could still be the start of a frame.
	full := len(d.window) == cap(d.window)
	if (full || bytes.IndexByte(d.window, sentinel) < 0) && len(d.window) > size-1 {
		return d.misaligned(layout, len(d.window)-(size-1))
	}
	return DecodedFrame{}, ErrIncomplete
}

func (d *Decoder) misaligned(layout *FrameLayout, discard int) (DecodedFrame, error) {
	d.drop(discard)
	d.resyncing = false
	d.stats.Misaligned++
	d.stats.DiscardedBytes += int64(discard)
	Debugf("decoder: resynchronized, discarded %d bytes", discard)
	return DecodedFrame{}, &DecodeError{
		Failure:   ErrMisaligned,
		Kind:      layout.Kind,
		Discarded: discard,
	}
}

func (d *Decoder) pull(src ByteSource, n int) error {
	data, err := src.ReadExact(n)
	if err != nil {
		return fmt.Errorf("fill decode window: %w", err)
	}
	d.window = append(d.window, data...)
	return nil
}

func (d *Decoder) drop(n int) {
	d.window = append(d.window[:0], d.window[n:]...)
}

func (d *Decoder) assemble(layout *FrameLayout, payload, raw []byte) DecodedFrame {
	out := DecodedFrame{
		Kind:     layout.Kind,
		Address:  layout.Address,
		Fields:   make(map[string]float64, len(layout.Fields)),
		Counts:   make(map[string]uint64, len(layout.Fields)),
		Raw:      raw,
		CRCValid: true,
	}
	for _, f := range layout.Fields {
		if layout.isControl(f.Name) {
			continue
		}
		value := f.Order.compose(payload[f.offset : f.offset+f.Width])
		out.Counts[f.Name] = value
		out.Fields[f.Name] = d.convert(f.Unit, value)
	}
	return out
}

func (d *Decoder) convert(unit Unit, raw uint64) float64 {
	switch unit {
	case UnitCurrent:
		return d.scaling.CountsToFemtoamps(raw)
	case UnitCelsius:
		return TemperatureFromRaw(uint16(raw))
	case UnitRelativeHumidity:
		return HumidityFromRaw(uint16(raw))
	default:
		return float64(raw)
	}
}
