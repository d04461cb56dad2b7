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
	"math"
	"sort"
	"strings"
)

// Encoding is how a register value travels in the 4-byte write payload.
type Encoding int

const (
	// EncodingU8 is an integer in 0..255
	EncodingU8 Encoding = iota
	// EncodingU16 is an integer in 0..65535
	EncodingU16
	// EncodingU32 is an integer in 0..2^32-1
	EncodingU32
	// EncodingFloatScaled is a voltage sent as a DAC code
	EncodingFloatScaled
)

func (e Encoding) String() string {
	switch e {
	case EncodingU8:
		return "u8"
	case EncodingU16:
		return "u16"
	case EncodingU32:
		return "u32"
	case EncodingFloatScaled:
		return "float-scaled"
	default:
		return "unknown"
	}
}

func (e Encoding) limit() float64 {
	switch e {
	case EncodingU8:
		return math.MaxUint8
	case EncodingU16:
		return math.MaxUint16
	default:
		return math.MaxUint32
	}
}

// Bounds is an inclusive value range.
type Bounds struct {
	Min float64
	Max float64
}

// Contains reports whether v lies within the bounds.
func (b Bounds) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// RegisterEntry is one addressed device parameter. Current always lies
// within Bounds. HostOnly entries live in the store but are never pushed.
type RegisterEntry struct {
	Name     string
	Unit     string
	Bounds   Bounds
	Default  float64
	Current  float64
	Encoding Encoding
	Address  byte
	HostOnly bool
}

// RegisterValue is an entry's address and its encoded wire value.
type RegisterValue struct {
	Address byte
	Value   uint32
}

// RegisterStore owns the register table. It is populated once and never
// grows or shrinks. Set validates before writing, so a rejected value
// leaves the entry untouched.
//
// Thread Safety: RegisterStore is NOT thread-safe. It is owned by the
// control loop like the rest of the instrument state.
type RegisterStore struct {
	byAddr  map[byte]int
	byName  map[string]int
	dirty   map[byte]bool
	entries []RegisterEntry
	scaling Scaling
}

// NewRegisterStore builds a store from a table. Addresses and names must be
// unique and every default must satisfy its bounds and encoding.
func NewRegisterStore(table []RegisterEntry, scaling Scaling) (*RegisterStore, error) {
	if err := scaling.Validate(); err != nil {
		return nil, err
	}
	s := &RegisterStore{
		entries: make([]RegisterEntry, 0, len(table)),
		byAddr:  make(map[byte]int, len(table)),
		byName:  make(map[string]int, len(table)),
		dirty:   make(map[byte]bool),
		scaling: scaling,
	}
	for _, e := range table {
		if _, dup := s.byAddr[e.Address]; dup {
			return nil, fmt.Errorf("%w: duplicate register address 0x%02X", ErrInvalidConfig, e.Address)
		}
		name := strings.ToUpper(e.Name)
		if _, dup := s.byName[name]; dup {
			return nil, fmt.Errorf("%w: duplicate register name %q", ErrInvalidConfig, e.Name)
		}
		if err := s.check(e, e.Default); err != nil {
			return nil, fmt.Errorf("%w: default: %w", ErrInvalidConfig, err)
		}
		e.Current = e.Default
		s.byAddr[e.Address] = len(s.entries)
		s.byName[name] = len(s.entries)
		s.entries = append(s.entries, e)
	}
	return s, nil
}

// Scaling returns the conversion constants used for voltage registers.
func (s *RegisterStore) Scaling() Scaling {
	return s.scaling
}

// Len returns the number of registers.
func (s *RegisterStore) Len() int {
	return len(s.entries)
}

// Entry returns a copy of the entry at addr.
func (s *RegisterStore) Entry(addr byte) (RegisterEntry, error) {
	i, ok := s.byAddr[addr]
	if !ok {
		return RegisterEntry{}, &RegisterError{Op: "lookup", Address: addr, Err: ErrUnknownAddress}
	}
	return s.entries[i], nil
}

// Lookup finds an entry by name, ignoring case.
func (s *RegisterStore) Lookup(name string) (RegisterEntry, bool) {
	i, ok := s.byName[strings.ToUpper(name)]
	if !ok {
		return RegisterEntry{}, false
	}
	return s.entries[i], true
}

// Entries returns copies of all entries in declaration order.
func (s *RegisterStore) Entries() []RegisterEntry {
	return append([]RegisterEntry(nil), s.entries...)
}

// Get returns the current value at addr.
func (s *RegisterStore) Get(addr byte) (float64, error) {
	i, ok := s.byAddr[addr]
	if !ok {
		return 0, &RegisterError{Op: "get", Address: addr, Err: ErrUnknownAddress}
	}
	return s.entries[i].Current, nil
}

// Set validates value against the entry's bounds and encoding, then stores
// it and marks the entry dirty. Out-of-range values are rejected, never clamped.
func (s *RegisterStore) Set(addr byte, value float64) error {
	i, ok := s.byAddr[addr]
	if !ok {
		return &RegisterError{Op: "set", Address: addr, Value: value, Err: ErrUnknownAddress}
	}
	e := &s.entries[i]
	if err := s.check(*e, value); err != nil {
		return &RegisterError{
			Op:      "set",
			Address: addr,
			Name:    e.Name,
			Value:   value,
			Bounds:  e.Bounds,
			Err:     err,
		}
	}
	e.Current = value
	s.dirty[addr] = true
	return nil
}

// ResetToDefault restores the entry's default value and marks it dirty.
func (s *RegisterStore) ResetToDefault(addr byte) error {
	i, ok := s.byAddr[addr]
	if !ok {
		return &RegisterError{Op: "reset", Address: addr, Err: ErrUnknownAddress}
	}
	s.entries[i].Current = s.entries[i].Default
	s.dirty[addr] = true
	return nil
}

// ResetAll restores every default.
func (s *RegisterStore) ResetAll() {
	for i := range s.entries {
		s.entries[i].Current = s.entries[i].Default
		s.dirty[s.entries[i].Address] = true
	}
}

// Encode returns the wire value of the entry at addr.
func (s *RegisterStore) Encode(addr byte) (uint32, error) {
	i, ok := s.byAddr[addr]
	if !ok {
		return 0, &RegisterError{Op: "encode", Address: addr, Err: ErrUnknownAddress}
	}
	return s.encode(s.entries[i])
}

// Snapshot returns every pushable entry with its encoded value, ordered by address.
func (s *RegisterStore) Snapshot() []RegisterValue {
	out := make([]RegisterValue, 0, len(s.entries))
	for _, e := range s.entries {
		if e.HostOnly {
			continue
		}
		// Values were validated on the way in, so encoding cannot fail here.
		v, _ := s.encode(e)
		out = append(out, RegisterValue{Address: e.Address, Value: v})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Address < out[b].Address })
	return out
}

// Dirty returns the addresses changed since they were last marked clean.
func (s *RegisterStore) Dirty() []byte {
	out := make([]byte, 0, len(s.dirty))
	for addr := range s.dirty {
		out = append(out, addr)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

// IsDirty reports whether addr has an unpushed change.
func (s *RegisterStore) IsDirty(addr byte) bool {
	return s.dirty[addr]
}

// MarkDirty flags addr as not yet on the device.
func (s *RegisterStore) MarkDirty(addr byte) {
	if _, ok := s.byAddr[addr]; ok {
		s.dirty[addr] = true
	}
}

// MarkClean records that addr's current value reached the device.
func (s *RegisterStore) MarkClean(addr byte) {
	delete(s.dirty, addr)
}

// ApplyOverrides sets entries by name, typically from a deployment file.
// Every override is validated before any is applied.
func (s *RegisterStore) ApplyOverrides(overrides map[string]float64) error {
	for name, v := range overrides {
		e, ok := s.Lookup(name)
		if !ok {
			return fmt.Errorf("%w: unknown register %q", ErrInvalidConfig, name)
		}
		if err := s.check(e, v); err != nil {
			return fmt.Errorf("register %s: %w", e.Name, err)
		}
	}
	for name, v := range overrides {
		e, _ := s.Lookup(name)
		i := s.byAddr[e.Address]
		s.entries[i].Current = v
		s.entries[i].Default = v
	}
	return nil
}

func (s *RegisterStore) check(e RegisterEntry, v float64) error {
	if math.IsNaN(v) || !e.Bounds.Contains(v) {
		return fmt.Errorf("%w: %g not in [%g, %g]", ErrOutOfRange, v, e.Bounds.Min, e.Bounds.Max)
	}
	if e.Encoding == EncodingFloatScaled {
		_, err := s.scaling.VoltsToCode(v)
		return err
	}
	if v != math.Trunc(v) {
		return fmt.Errorf("%w: %s register needs an integer, got %g", ErrOutOfRange, e.Encoding, v)
	}
	if v < 0 || v > e.Encoding.limit() {
		return fmt.Errorf("%w: %g does not fit %s", ErrOutOfRange, v, e.Encoding)
	}
	return nil
}

func (s *RegisterStore) encode(e RegisterEntry) (uint32, error) {
	if e.Encoding == EncodingFloatScaled {
		return s.scaling.VoltsToCode(e.Current)
	}
	return uint32(e.Current), nil
}
