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
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// MaxLineLength is the longest command line the dispatcher accepts.
const MaxLineLength = 128

// Fixed replies.
const (
	ReplyNotImplemented  = "Command not implemented"
	ReplyInvalidArgCount = "Invalid number of parameters"
	ReplyInvalidChannel  = "Invalid channel number"
	ReplyInvalidParam    = "Invalid parameter"
	ReplyInvalidType     = "Invalid type parameter"
	ReplyVersion         = "NOT SCPI COMPLIANT"
)

// Error queue entries reported by SYSTem:ERRor?.
const (
	errorNone          = "0, No Error"
	errorUnknownVerb   = "-102, Unknown command received"
	errorOverflow      = "-100, Buffer overflow error"
	errorCommTimeout   = "-100, Communication timeout error"
	errorDeviceRefused = "-100, Device write failed"
)

// DispatchState is the dispatcher's position in handling one line.
type DispatchState int

const (
	// StateIdle waits for a line
	StateIdle DispatchState = iota
	// StateParsingVerb resolves the command header
	StateParsingVerb
	// StateParsingArgs splits and counts the arguments
	StateParsingArgs
	// StateDispatched runs the handler
	StateDispatched
)

func (s DispatchState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateParsingVerb:
		return "parsing-verb"
	case StateParsingArgs:
		return "parsing-args"
	case StateDispatched:
		return "dispatched"
	default:
		return "unknown"
	}
}

// Identity is reported by *IDN?.
type Identity struct {
	Manufacturer string
	Model        string
	Serial       string
	Firmware     string
}

// DefaultIdentity returns the reference instrument identity with a fresh
// random serial.
func DefaultIdentity() Identity {
	return Identity{
		Manufacturer: "CERN",
		Model:        "REV1",
		Serial:       strings.ReplaceAll(uuid.NewString(), "-", ""),
		Firmware:     "1.4.0",
	}
}

func (id Identity) String() string {
	return fmt.Sprintf("%s, %s, %s, %s", id.Manufacturer, id.Model, id.Serial, id.Firmware)
}

// RegisterPusher sends register values to the device. *DeviceWriter
// implements it.
type RegisterPusher interface {
	Push(ctx context.Context, address byte) error
	PushSnapshot(ctx context.Context) error
}

// Dispatcher maps text commands onto register reads and writes.
//
// Each call to Dispatch walks Idle, ParsingVerb, ParsingArgs, Dispatched and
// back to Idle. Lookup uses a static table built once; nothing is
// registered at runtime.
//
// Thread Safety: Dispatcher is NOT thread-safe.
type Dispatcher struct {
	store     *RegisterStore
	pusher    RegisterPusher
	observer  func(DispatchState)
	lastError string
	identity  Identity
	state     DispatchState
}

// NewDispatcher creates a dispatcher over store. pusher receives every
// accepted SET.
func NewDispatcher(store *RegisterStore, pusher RegisterPusher, identity Identity) *Dispatcher {
	return &Dispatcher{
		store:     store,
		pusher:    pusher,
		identity:  identity,
		lastError: errorNone,
	}
}

// State returns the current dispatch state.
func (d *Dispatcher) State() DispatchState {
	return d.state
}

// SetStateObserver installs a function called on every state transition.
func (d *Dispatcher) SetStateObserver(observer func(DispatchState)) {
	d.observer = observer
}

func (d *Dispatcher) setState(s DispatchState) {
	d.state = s
	if d.observer != nil {
		d.observer(s)
	}
}

// Dispatch handles one command line and returns the reply text. Failures
// are returned as *DispatchError carrying the same reply; none of them
// are fatal to the control loop.
func (d *Dispatcher) Dispatch(ctx context.Context, line string) (string, error) {
	defer d.setState(StateIdle)

	if len(line) > MaxLineLength {
		d.lastError = errorOverflow
		return "", &DispatchError{Err: ErrLineTooLong, Reply: errorOverflow}
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", nil
	}

	d.setState(StateParsingVerb)
	header, rest, _ := strings.Cut(line, " ")
	query := strings.HasSuffix(header, "?")
	header = strings.TrimSuffix(header, "?")
	cmd := lookupCommand(header, query)
	if cmd == nil {
		Debugf("dispatch: unknown command %q", line)
		d.lastError = errorUnknownVerb
		return ReplyNotImplemented, &DispatchError{Verb: header, Err: ErrUnknownVerb, Reply: ReplyNotImplemented}
	}

	d.setState(StateParsingArgs)
	args := splitArgs(rest)
	if len(args) < cmd.minArgs || len(args) > cmd.maxArgs {
		return d.fail(cmd, ReplyInvalidArgCount, ErrInvalidArgument)
	}

	d.setState(StateDispatched)
	reply, err := cmd.handler(ctx, d, args)
	if err != nil {
		var de *DispatchError
		if errors.As(err, &de) {
			if de.Verb == "" {
				de.Verb = cmd.pattern
			}
			return de.Reply, de
		}
		return d.fail(cmd, err.Error(), err)
	}
	return reply, nil
}

// LastError returns the pending SYSTem:ERRor? entry without clearing it.
func (d *Dispatcher) LastError() string {
	return d.lastError
}

// Help lists every command the dispatcher understands.
func (*Dispatcher) Help() string {
	return commandTree()
}

func (*Dispatcher) fail(cmd *commandSpec, reply string, err error) (string, error) {
	return reply, &DispatchError{Verb: cmd.pattern, Err: err, Reply: reply}
}

// splitArgs splits a comma-separated argument list.
func splitArgs(rest string) []string {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return nil
	}
	parts := strings.Split(rest, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// matchHeader compares a typed header with a pattern such as
// "CONFigure:DAC:VOLTage". Each node matches its full name or its
// upper-case short form, ignoring case.
func matchHeader(pattern, header string) bool {
	patternNodes := strings.Split(pattern, ":")
	headerNodes := strings.Split(strings.TrimPrefix(header, ":"), ":")
	if len(patternNodes) != len(headerNodes) {
		return false
	}
	for i, node := range patternNodes {
		if !matchNode(node, headerNodes[i]) {
			return false
		}
	}
	return true
}

func matchNode(node, token string) bool {
	if strings.EqualFold(node, token) {
		return true
	}
	short := strings.TrimRightFunc(node, func(r rune) bool { return r >= 'a' && r <= 'z' })
	return short != node && strings.EqualFold(short, token)
}
