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
	"fmt"

	"github.com/ZaparooProject/go-accurate/internal/frame"
)

// ByteOrder is the order multi-byte fields are composed in.
type ByteOrder int

const (
	// LittleEndian composes the least significant byte first
	LittleEndian ByteOrder = iota
	// BigEndian composes the most significant byte first
	BigEndian
)

func (o ByteOrder) String() string {
	if o == BigEndian {
		return "big-endian"
	}
	return "little-endian"
}

func (o ByteOrder) compose(data []byte) uint64 {
	if o == BigEndian {
		return frame.ComposeBE(data)
	}
	return frame.ComposeLE(data)
}

func (o ByteOrder) put(dst []byte, v uint64) {
	if o == BigEndian {
		frame.PutBE(dst, v)
	} else {
		frame.PutLE(dst, v)
	}
}

// Unit selects the engineering-unit formula applied to a decoded field.
type Unit int

const (
	// UnitRaw leaves the composed integer as is
	UnitRaw Unit = iota
	// UnitCurrent converts charge counts to femtoamperes
	UnitCurrent
	// UnitCelsius applies the SHT4x temperature formula
	UnitCelsius
	// UnitRelativeHumidity applies the SHT4x humidity formula
	UnitRelativeHumidity
)

// Field is one contiguous run of payload bytes.
type Field struct {
	Name   string
	Width  int
	Order  ByteOrder
	Unit   Unit
	offset int
}

// Offset returns the field's position in the payload.
func (f Field) Offset() int {
	return f.offset
}

// Checksum declares a CRC-8 byte and the fields it covers.
type Checksum struct {
	Field  string
	Covers []string
}

// Terminal declares the field that closes a fixed multi-word frame and the
// value it must hold. The last byte of the field is the resync sentinel.
type Terminal struct {
	Field string
	Value uint64
}

// FrameLayout describes one kind of device frame. Fields are laid out in
// declaration order starting at payload offset zero.
type FrameLayout struct {
	Terminal  *Terminal
	index     map[string]int
	Fields    []Field
	Checksums []Checksum
	Kind      FrameKind
	Address   byte
	length    int
}

// NewFrameLayout declares a layout and assigns field offsets.
func NewFrameLayout(kind FrameKind, address byte, fields ...Field) *FrameLayout {
	l := &FrameLayout{
		Kind:    kind,
		Address: address,
		index:   make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		f.offset = l.length
		l.index[f.Name] = len(l.Fields)
		l.Fields = append(l.Fields, f)
		l.length += f.Width
	}
	return l
}

// WithChecksum adds a CRC-8 check over covers, stored in crcField.
func (l *FrameLayout) WithChecksum(crcField string, covers ...string) *FrameLayout {
	l.Checksums = append(l.Checksums, Checksum{Field: crcField, Covers: covers})
	return l
}

// WithTerminal declares the closing field and its required value.
func (l *FrameLayout) WithTerminal(field string, value uint64) *FrameLayout {
	l.Terminal = &Terminal{Field: field, Value: value}
	return l
}

// PayloadLength returns the payload size in bytes, excluding any address.
func (l *FrameLayout) PayloadLength() int {
	return l.length
}

// Field looks up a field by name.
func (l *FrameLayout) Field(name string) (Field, bool) {
	i, ok := l.index[name]
	if !ok {
		return Field{}, false
	}
	return l.Fields[i], true
}

// Sentinel returns the byte that ends a valid frame of this layout.
func (l *FrameLayout) Sentinel() (byte, bool) {
	if l.Terminal == nil {
		return 0, false
	}
	f, ok := l.Field(l.Terminal.Field)
	if !ok {
		return 0, false
	}
	buf := make([]byte, f.Width)
	f.Order.put(buf, l.Terminal.Value)
	return buf[len(buf)-1], true
}

// Encode builds a payload from raw field values. CRC fields are computed,
// the terminal field is filled in, and missing fields are zero.
func (l *FrameLayout) Encode(values map[string]uint64) []byte {
	payload := make([]byte, l.length)
	for _, f := range l.Fields {
		f.Order.put(payload[f.offset:f.offset+f.Width], values[f.Name])
	}
	if l.Terminal != nil {
		if f, ok := l.Field(l.Terminal.Field); ok {
			f.Order.put(payload[f.offset:f.offset+f.Width], l.Terminal.Value)
		}
	}
	for _, c := range l.Checksums {
		crcField, _ := l.Field(c.Field)
		payload[crcField.offset] = frame.CalculateCRC8(l.covered(payload, c))
	}
	return payload
}

func (l *FrameLayout) covered(payload []byte, c Checksum) []byte {
	var data []byte
	for _, name := range c.Covers {
		f := l.Fields[l.index[name]]
		data = append(data, payload[f.offset:f.offset+f.Width]...)
	}
	return data
}

func (l *FrameLayout) terminalValid(payload []byte) bool {
	if l.Terminal == nil {
		return true
	}
	f := l.Fields[l.index[l.Terminal.Field]]
	return f.Order.compose(payload[f.offset:f.offset+f.Width]) == l.Terminal.Value
}

func (l *FrameLayout) checksumsValid(payload []byte) bool {
	for _, c := range l.Checksums {
		f := l.Fields[l.index[c.Field]]
		if !frame.ValidateCRC8(l.covered(payload, c), payload[f.offset]) {
			return false
		}
	}
	return true
}

// isControl reports whether a field carries framing rather than data.
func (l *FrameLayout) isControl(name string) bool {
	if l.Terminal != nil && l.Terminal.Field == name {
		return true
	}
	for _, c := range l.Checksums {
		if c.Field == name {
			return true
		}
	}
	return false
}

func (l *FrameLayout) validate() error {
	if l.length == 0 {
		return fmt.Errorf("%w: %s layout has no fields", ErrInvalidLayout, l.Kind)
	}
	for _, f := range l.Fields {
		if f.Width < 1 || f.Width > 8 {
			return fmt.Errorf("%w: field %q width %d", ErrInvalidLayout, f.Name, f.Width)
		}
	}
	if len(l.index) != len(l.Fields) {
		return fmt.Errorf("%w: %s layout has duplicate field names", ErrInvalidLayout, l.Kind)
	}
	for _, c := range l.Checksums {
		f, ok := l.Field(c.Field)
		if !ok || f.Width != 1 {
			return fmt.Errorf("%w: checksum field %q must be one byte", ErrInvalidLayout, c.Field)
		}
		for _, name := range c.Covers {
			if _, ok := l.Field(name); !ok {
				return fmt.Errorf("%w: checksum covers unknown field %q", ErrInvalidLayout, name)
			}
		}
	}
	if l.Terminal != nil {
		if _, ok := l.Field(l.Terminal.Field); !ok {
			return fmt.Errorf("%w: unknown terminal field %q", ErrInvalidLayout, l.Terminal.Field)
		}
	}
	return nil
}

// LayoutKind selects how frames are delimited on the wire.
type LayoutKind int

const (
	// AddressPrefixed frames start with an address byte naming the layout
	AddressPrefixed LayoutKind = iota
	// FixedMultiWord frames have one layout and end with a terminal word
	FixedMultiWord
)

func (k LayoutKind) String() string {
	if k == FixedMultiWord {
		return "fixed-multi-word"
	}
	return "address-prefixed"
}

// LayoutFamily is the set of frame layouts one device revision emits.
type LayoutFamily struct {
	Name    string
	Layouts []*FrameLayout
	Kind    LayoutKind
}

// Validate checks the family can be decoded unambiguously.
func (f LayoutFamily) Validate() error {
	if len(f.Layouts) == 0 {
		return fmt.Errorf("%w: family %q has no layouts", ErrInvalidLayout, f.Name)
	}
	for _, l := range f.Layouts {
		if err := l.validate(); err != nil {
			return err
		}
	}

	switch f.Kind {
	case FixedMultiWord:
		if len(f.Layouts) != 1 {
			return fmt.Errorf("%w: fixed multi-word family needs exactly one layout", ErrInvalidLayout)
		}
		if _, ok := f.Layouts[0].Sentinel(); !ok {
			return fmt.Errorf("%w: fixed multi-word layout needs a terminal", ErrInvalidLayout)
		}
	case AddressPrefixed:
		seen := make(map[byte]bool, len(f.Layouts))
		for _, l := range f.Layouts {
			if seen[l.Address] {
				return fmt.Errorf("%w: duplicate address 0x%02X", ErrInvalidLayout, l.Address)
			}
			seen[l.Address] = true
		}
	}
	return nil
}

// ByAddress returns the layout for an address-prefixed frame.
func (f LayoutFamily) ByAddress(address byte) *FrameLayout {
	for _, l := range f.Layouts {
		if l.Address == address {
			return l
		}
	}
	return nil
}

// RevisionA is the address-prefixed family: one address byte, then a
// payload whose sensor words keep the SHT4x big-endian order and carry
// a CRC-8 per word. Charge counts are five bytes, little-endian.
func RevisionA() LayoutFamily {
	return LayoutFamily{
		Name: "rev-a",
		Kind: AddressPrefixed,
		Layouts: []*FrameLayout{
			NewFrameLayout(FrameMeasurement, frame.AddrMeasurement,
				Field{Name: FieldCharge, Width: 5, Order: LittleEndian, Unit: UnitCurrent},
			),
			NewFrameLayout(FrameTempHumidity, frame.AddrTempHumidity,
				Field{Name: FieldTemperature, Width: 2, Order: BigEndian, Unit: UnitCelsius},
				Field{Name: "temperature_crc", Width: 1},
				Field{Name: FieldHumidity, Width: 2, Order: BigEndian, Unit: UnitRelativeHumidity},
				Field{Name: "humidity_crc", Width: 1},
			).
				WithChecksum("temperature_crc", FieldTemperature).
				WithChecksum("humidity_crc", FieldHumidity),
			NewFrameLayout(FrameIOStatus, frame.AddrIOStatus,
				Field{Name: FieldButtons, Width: 1},
				Field{Name: FieldLEDs, Width: 1},
				Field{Name: "status_crc", Width: 1},
			).
				WithChecksum("status_crc", FieldButtons, FieldLEDs),
		},
	}
}

// RevisionB is the fixed multi-word family: nine 32-bit words carrying the
// charge accumulator, per-pump counters and the sensor words, all
// little-endian, closed by a big-endian stop word so the sentinel is the
// final byte on the wire.
func RevisionB() LayoutFamily {
	return LayoutFamily{
		Name: "rev-b",
		Kind: FixedMultiWord,
		Layouts: []*FrameLayout{
			NewFrameLayout(FrameMeasurement, 0,
				Field{Name: FieldCharge, Width: 8, Order: LittleEndian, Unit: UnitCurrent},
				Field{Name: FieldCP1Count, Width: 4, Order: LittleEndian},
				Field{Name: FieldCP2Count, Width: 4, Order: LittleEndian},
				Field{Name: FieldCP3Count, Width: 4, Order: LittleEndian},
				Field{Name: FieldCP1StartInterval, Width: 4, Order: LittleEndian},
				Field{Name: FieldCP1EndInterval, Width: 4, Order: LittleEndian},
				Field{Name: FieldTemperature, Width: 2, Order: LittleEndian, Unit: UnitCelsius},
				Field{Name: FieldHumidity, Width: 2, Order: LittleEndian, Unit: UnitRelativeHumidity},
				Field{Name: "stop", Width: frame.WordSize, Order: BigEndian},
			).
				WithTerminal("stop", frame.StopSentinel),
		},
	}
}

// FamilyByName resolves a device revision name.
func FamilyByName(name string) (LayoutFamily, error) {
	switch name {
	case "rev-a", "a", "A":
		return RevisionA(), nil
	case "rev-b", "b", "B":
		return RevisionB(), nil
	default:
		return LayoutFamily{}, fmt.Errorf("%w: unknown device revision %q", ErrInvalidConfig, name)
	}
}
