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

// Package capture records decoded telemetry and host commands to a CBOR
// stream and plays recorded telemetry back as a byte source, so a session
// can be decoded again without the device attached.
package capture

import (
	"fmt"
	"time"

	accurate "github.com/ZaparooProject/go-accurate"
	"github.com/fxamacker/cbor/v2"
)

// FormatVersion is written in every header record.
const FormatVersion = 1

// RecordKind tags each record in a capture stream.
type RecordKind uint8

const (
	// RecordHeader opens every capture
	RecordHeader RecordKind = iota + 1
	// RecordFrame holds one decoded frame with its wire bytes
	RecordFrame
	// RecordCommand holds one host command and its reply
	RecordCommand
)

func (k RecordKind) String() string {
	switch k {
	case RecordHeader:
		return "header"
	case RecordFrame:
		return "frame"
	case RecordCommand:
		return "command"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Record is one entry of a capture stream. Integer keys keep the
// encoding compact.
type Record struct {
	Time      time.Time         `cbor:"1,keyasint"`
	Counts    map[string]uint64 `cbor:"7,keyasint,omitempty"`
	Revision  string            `cbor:"4,keyasint,omitempty"`
	Session   string            `cbor:"5,keyasint,omitempty"`
	Command   string            `cbor:"10,keyasint,omitempty"`
	Reply     string            `cbor:"11,keyasint,omitempty"`
	Error     string            `cbor:"12,keyasint,omitempty"`
	Raw       []byte            `cbor:"6,keyasint,omitempty"`
	Version   int               `cbor:"3,keyasint,omitempty"`
	Kind      RecordKind        `cbor:"2,keyasint"`
	FrameKind uint8             `cbor:"8,keyasint,omitempty"`
	Address   byte              `cbor:"9,keyasint,omitempty"`
}

// Frame rebuilds the decoded frame held by a RecordFrame. Engineering
// values are not stored; decode Raw again to get them.
func (r Record) Frame() accurate.DecodedFrame {
	return accurate.DecodedFrame{
		Kind:     accurate.FrameKind(r.FrameKind),
		Address:  r.Address,
		Raw:      r.Raw,
		Counts:   r.Counts,
		CRCValid: true,
	}
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create capture CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create capture CBOR decoder mode: %v", err))
	}
}
