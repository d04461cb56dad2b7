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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *RegisterStore {
	t.Helper()
	s, err := NewRegisterStore(DefaultRegisterTable(DefaultScaling()), DefaultScaling())
	require.NoError(t, err)
	return s
}

func TestDefaultRegisterTable(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	assert.Equal(t, 33, s.Len())

	gate, err := s.Get(RegGateLength)
	require.NoError(t, err)
	assert.InDelta(t, 9999999, gate, 0)

	charge3, ok := s.Lookup("charge_cp3")
	require.True(t, ok)
	assert.Equal(t, RegChargeCP1+2, charge3.Address)
	assert.InDelta(t, 101680, charge3.Default, 0)

	stream, err := s.Entry(RegStream)
	require.NoError(t, err)
	assert.InDelta(t, 1, stream.Current, 0)

	raw, err := s.Entry(RegRaw)
	require.NoError(t, err)
	assert.True(t, raw.HostOnly)

	for _, e := range s.Entries() {
		assert.True(t, e.Bounds.Contains(e.Current), "%s default outside bounds", e.Name)
	}
}

func TestRegisterStore_Set(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		value   float64
		addr    byte
		wantErr error
	}{
		{name: "voltage in range", addr: RegVBias1, value: 1.6},
		{name: "voltage at top code", addr: RegVBias1, value: 3.0 * 4095 / 4096},
		{name: "voltage at reference", addr: RegVBias1, value: 3.0, wantErr: ErrOutOfRange},
		{name: "voltage above reference", addr: RegVBias1, value: 3.01, wantErr: ErrOutOfRange},
		{name: "negative voltage", addr: RegVTh1, value: -0.1, wantErr: ErrOutOfRange},
		{name: "NaN", addr: RegVTh1, value: math.NaN(), wantErr: ErrOutOfRange},
		{name: "flag on", addr: RegSingly, value: 1},
		{name: "flag out of range", addr: RegSingly, value: 2, wantErr: ErrOutOfRange},
		{name: "fractional integer register", addr: RegTCharge, value: 1.5, wantErr: ErrOutOfRange},
		{name: "tcharge zero", addr: RegTCharge, value: 0, wantErr: ErrOutOfRange},
		{name: "u8 limit", addr: RegTCharge, value: 255},
		{name: "unknown address", addr: 0x7F, value: 1, wantErr: ErrUnknownAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := newTestStore(t)
			before, _ := s.Get(tt.addr)

			err := s.Set(tt.addr, tt.value)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				var re *RegisterError
				require.ErrorAs(t, err, &re)
				assert.Equal(t, tt.addr, re.Address)

				after, _ := s.Get(tt.addr)
				assert.InDelta(t, before, after, 0, "rejected write must not change the value")
				assert.False(t, s.IsDirty(tt.addr))
				return
			}
			require.NoError(t, err)
			got, err := s.Get(tt.addr)
			require.NoError(t, err)
			assert.InDelta(t, tt.value, got, 0)
			assert.True(t, s.IsDirty(tt.addr))
		})
	}
}

func TestRegisterStore_EncodeVoltage(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	code, err := s.Encode(RegVBias1)
	require.NoError(t, err)
	assert.Equal(t, uint32(2185), code)

	require.NoError(t, s.Set(RegVBias1, 0))
	code, err = s.Encode(RegVBias1)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), code)

	code, err = s.Encode(RegInitConfig)
	require.NoError(t, err)
	assert.Equal(t, uint32(DefaultInitConfig), code)
}

func TestRegisterStore_ResetToDefault(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, s.Set(RegVCM, 2.0))
	s.MarkClean(RegVCM)

	require.NoError(t, s.ResetToDefault(RegVCM))
	v, err := s.Get(RegVCM)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, v, 0)
	assert.True(t, s.IsDirty(RegVCM))

	require.ErrorIs(t, s.ResetToDefault(0x7F), ErrUnknownAddress)
}

func TestRegisterStore_ResetToDefaultIsIdempotent(t *testing.T) {
	t.Parallel()

	w, _, s := newTestWriter(t, ackedConfig())
	require.NoError(t, s.Set(RegVTh3, 0.5))

	require.NoError(t, s.ResetToDefault(RegVTh3))
	v1, err := s.Get(RegVTh3)
	require.NoError(t, err)
	snap1 := s.Snapshot()
	code1, err := s.Encode(RegVTh3)
	require.NoError(t, err)
	wire1 := w.EncodeWrite(RegVTh3, code1)

	require.NoError(t, s.ResetToDefault(RegVTh3))
	v2, err := s.Get(RegVTh3)
	require.NoError(t, err)
	code2, err := s.Encode(RegVTh3)
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, snap1, s.Snapshot())
	assert.Equal(t, wire1, w.EncodeWrite(RegVTh3, code2))
	assert.Equal(t, []byte{0xDD, RegVTh3, 0x00, 0x00, 0x09, 0xC3}, wire1)
}

func TestRegisterStore_ResetAll(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, s.Set(RegTCharge, 20))
	require.NoError(t, s.Set(RegStream, 0))

	s.ResetAll()

	v, _ := s.Get(RegTCharge)
	assert.InDelta(t, 1, v, 0)
	v, _ = s.Get(RegStream)
	assert.InDelta(t, 1, v, 0)
	assert.Len(t, s.Dirty(), s.Len())
}

func TestRegisterStore_Snapshot(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	snap := s.Snapshot()

	assert.Len(t, snap, s.Len()-1, "host-only entries are not pushed")
	for i := 1; i < len(snap); i++ {
		assert.Less(t, snap[i-1].Address, snap[i].Address)
	}
	for _, rv := range snap {
		assert.NotEqual(t, RegRaw, rv.Address)
	}
}

func TestRegisterStore_DirtyTracking(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	assert.Empty(t, s.Dirty())

	require.NoError(t, s.Set(RegVTh3, 1.0))
	require.NoError(t, s.Set(RegVBias2, 1.0))
	assert.Equal(t, []byte{RegVBias2, RegVTh3}, s.Dirty())

	s.MarkClean(RegVBias2)
	assert.Equal(t, []byte{RegVTh3}, s.Dirty())
}

func TestRegisterStore_ApplyOverrides(t *testing.T) {
	t.Parallel()

	t.Run("valid overrides change defaults", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		require.NoError(t, s.ApplyOverrides(map[string]float64{"vbias1": 1.2, "TCHARGE": 4}))

		e, _ := s.Lookup("VBIAS1")
		assert.InDelta(t, 1.2, e.Current, 0)
		assert.InDelta(t, 1.2, e.Default, 0)

		require.NoError(t, s.Set(RegTCharge, 9))
		require.NoError(t, s.ResetToDefault(RegTCharge))
		v, _ := s.Get(RegTCharge)
		assert.InDelta(t, 4, v, 0)
	})

	t.Run("one bad override applies nothing", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		err := s.ApplyOverrides(map[string]float64{"VBIAS1": 1.2, "VTH1": 9})
		require.ErrorIs(t, err, ErrOutOfRange)

		e, _ := s.Lookup("VBIAS1")
		assert.InDelta(t, 1.6, e.Current, 0)
	})

	t.Run("unknown name", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		err := s.ApplyOverrides(map[string]float64{"NOPE": 1})
		require.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestNewRegisterStore_RejectsBadTables(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		table []RegisterEntry
	}{
		{
			name: "duplicate address",
			table: []RegisterEntry{
				{Address: 1, Name: "A", Bounds: Bounds{Max: 1}},
				{Address: 1, Name: "B", Bounds: Bounds{Max: 1}},
			},
		},
		{
			name: "duplicate name",
			table: []RegisterEntry{
				{Address: 1, Name: "A", Bounds: Bounds{Max: 1}},
				{Address: 2, Name: "a", Bounds: Bounds{Max: 1}},
			},
		},
		{
			name: "default out of bounds",
			table: []RegisterEntry{
				{Address: 1, Name: "A", Bounds: Bounds{Max: 1}, Default: 2},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewRegisterStore(tt.table, DefaultScaling())
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestGateLength(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint32(9999999), GateLength(100_000_000, DefaultClockHz))
	assert.Equal(t, uint32(99999), GateLength(1_000_000, DefaultClockHz))
}
