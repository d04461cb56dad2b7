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
	"strconv"
	"strings"
)

type commandHandler func(ctx context.Context, d *Dispatcher, args []string) (string, error)

type commandSpec struct {
	handler commandHandler
	pattern string
	help    string
	minArgs int
	maxArgs int
	query   bool
}

// dacChannels maps DAC7578 output letters to the register they drive.
var dacChannels = map[byte]byte{
	'A': RegVBias1,
	'B': RegVCM,
	'C': RegVTh1,
	'D': RegVTh7,
	'E': RegVTh2,
	'F': RegVTh4,
	'G': RegVTh3,
	'H': RegVBias3,
}

var commandTable = []commandSpec{
	{pattern: "*IDN", query: true, handler: identify, help: "instrument identity"},
	{pattern: "*RST", handler: resetAll, help: "restore all registers to defaults"},
	{pattern: "HELP", query: true, help: "this list"},
	{pattern: "SYSTem:ERRor", query: true, handler: nextError, help: "pop the last error"},
	{pattern: "SYSTem:ERRor:NEXT", query: true, handler: nextError},
	{pattern: "SYSTem:VERSion", query: true, handler: version},

	{pattern: "CONFigure:DAC:VOLTage", minArgs: 2, maxArgs: 2, handler: setDAC, help: "<A-H>,<volts>"},
	{pattern: "CONFigure:DAC:VOLTage", query: true, minArgs: 1, maxArgs: 1, handler: getDAC, help: "<A-H>"},

	{pattern: "CONFigure:ACCUrate:CHARGE", minArgs: 2, maxArgs: 2, handler: setPumpRegister(RegChargeCP1), help: "<1-3>,<quanta>"},
	{pattern: "CONFigure:ACCUrate:CHARGE", query: true, minArgs: 1, maxArgs: 1, handler: getPumpRegister(RegChargeCP1), help: "<1-3>"},
	{pattern: "CONFigure:ACCUrate:COOLdown", minArgs: 3, maxArgs: 3, handler: setCooldown, help: "<MIN|MAX>,<1-3>,<cycles>"},
	{pattern: "CONFigure:ACCUrate:COOLdown", query: true, minArgs: 2, maxArgs: 2, handler: getCooldown, help: "<MIN|MAX>,<1-3>"},
	{pattern: "CONFigure:ACCUrate:RESET", minArgs: 1, maxArgs: 1, handler: setFlag(RegResetOTA), help: "<0|1>"},
	{pattern: "CONFigure:ACCUrate:RESET", query: true, handler: getRegister(RegResetOTA)},
	{pattern: "CONFigure:ACCUrate:TCHARGE", minArgs: 1, maxArgs: 1, handler: setRegister(RegTCharge), help: "<1-255>"},
	{pattern: "CONFigure:ACCUrate:TCHARGE", query: true, handler: getRegister(RegTCharge)},
	{pattern: "CONFigure:ACCUrate:TINJection", minArgs: 1, maxArgs: 1, handler: setRegister(RegTInjection), help: "<1-255>"},
	{pattern: "CONFigure:ACCUrate:TINJection", query: true, handler: getRegister(RegTInjection)},
	{pattern: "CONFigure:ACCUrate:DISABLE", minArgs: 2, maxArgs: 2, handler: setPumpFlag(RegDisableCP1), help: "<1-3>,<0|1>"},
	{pattern: "CONFigure:ACCUrate:DISABLE", query: true, minArgs: 1, maxArgs: 1, handler: getPumpRegister(RegDisableCP1), help: "<1-3>"},
	{pattern: "CONFigure:ACCUrate:SINGLY", minArgs: 1, maxArgs: 1, handler: setFlag(RegSingly), help: "<0|1>"},
	{pattern: "CONFigure:ACCUrate:SINGLY", query: true, handler: getRegister(RegSingly)},

	{pattern: "CONFigure:SERIal:STREAM", minArgs: 1, maxArgs: 1, handler: setFlag(RegStream), help: "<ON|OFF>"},
	{pattern: "CONFigure:SERIal:STREAM", query: true, handler: getRegister(RegStream)},
	{pattern: "CONFigure:SERIal:RAW", minArgs: 1, maxArgs: 1, handler: setFlag(RegRaw), help: "<ON|OFF>"},
	{pattern: "CONFigure:SERIal:RAW", query: true, handler: getRegister(RegRaw)},

	{pattern: "CONFigure:REGister", minArgs: 2, maxArgs: 2, handler: setByAddress, help: "<address>,<value>"},
	{pattern: "CONFigure:REGister", query: true, minArgs: 1, maxArgs: 1, handler: getByAddress, help: "<address>"},
	{pattern: "CONFigure:REGister:DEFault", minArgs: 1, maxArgs: 1, handler: defaultByAddress, help: "<address>"},
}

// Headers the instrument recognizes but does not act on.
var notImplemented = []string{
	"STATus:OPERation:CONDition?", "STATus:OPERation:ENABle", "STATus:OPERation:EVENt?",
	"STATus:QUEStionable:CONDition?", "STATus:QUEStionable:ENABle", "STATus:QUEStionable:EVENt?",
	"STATus:OPERation?", "STATus:QUEStionable?", "STATus:PRESet",
	"*CLS", "*ESE", "*ESE?", "*ESR", "*OPC", "*OPC?", "*SRE", "*SRE?", "*STB", "*TST?", "*WAI",
}

func init() {
	// HELP? lists the table itself, so it is bound here to avoid an
	// initialization cycle.
	for i := range commandTable {
		if commandTable[i].pattern == "HELP" {
			commandTable[i].handler = help
		}
	}
	for _, header := range notImplemented {
		commandTable = append(commandTable, commandSpec{
			pattern: strings.TrimSuffix(header, "?"),
			query:   strings.HasSuffix(header, "?"),
			maxArgs: 8,
			handler: func(context.Context, *Dispatcher, []string) (string, error) {
				return ReplyNotImplemented, nil
			},
		})
	}
}

func lookupCommand(header string, query bool) *commandSpec {
	for i := range commandTable {
		cmd := &commandTable[i]
		if cmd.query == query && matchHeader(cmd.pattern, header) {
			return cmd
		}
	}
	return nil
}

func commandTree() string {
	var sb strings.Builder
	for _, cmd := range commandTable {
		if cmd.help == "" {
			continue
		}
		header := cmd.pattern
		if cmd.query {
			header += "?"
		}
		_, _ = fmt.Fprintf(&sb, "%-32s %s\n", header, cmd.help)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// argError reports a malformed argument.
func argError(reply string) error {
	return &DispatchError{Err: ErrInvalidArgument, Reply: reply}
}

func identify(_ context.Context, d *Dispatcher, _ []string) (string, error) {
	return d.identity.String(), nil
}

func help(_ context.Context, d *Dispatcher, _ []string) (string, error) {
	return d.Help(), nil
}

func version(context.Context, *Dispatcher, []string) (string, error) {
	return ReplyVersion, nil
}

func nextError(_ context.Context, d *Dispatcher, _ []string) (string, error) {
	reply := d.lastError
	d.lastError = errorNone
	return reply, nil
}

func resetAll(ctx context.Context, d *Dispatcher, _ []string) (string, error) {
	d.store.ResetAll()
	if err := d.pusher.PushSnapshot(ctx); err != nil {
		return "", d.pushFailed(err)
	}
	return "", nil
}

func setDAC(ctx context.Context, d *Dispatcher, args []string) (string, error) {
	addr, err := dacChannel(args[0])
	if err != nil {
		return "", err
	}
	value, perr := strconv.ParseFloat(args[1], 64)
	if perr != nil {
		return "", argError(ReplyInvalidParam)
	}
	return d.write(ctx, addr, value)
}

func getDAC(_ context.Context, d *Dispatcher, args []string) (string, error) {
	addr, err := dacChannel(args[0])
	if err != nil {
		return "", err
	}
	return d.read(addr)
}

func dacChannel(arg string) (byte, error) {
	if len(arg) != 1 {
		return 0, argError(ReplyInvalidChannel)
	}
	addr, ok := dacChannels[strings.ToUpper(arg)[0]]
	if !ok {
		return 0, argError(ReplyInvalidChannel)
	}
	return addr, nil
}

func pumpChannel(arg string) (byte, error) {
	ch, err := strconv.Atoi(arg)
	if err != nil || ch < 1 || ch > ChargePumps {
		return 0, argError(ReplyInvalidChannel)
	}
	return byte(ch - 1), nil
}

func setPumpRegister(base byte) commandHandler {
	return func(ctx context.Context, d *Dispatcher, args []string) (string, error) {
		offset, err := pumpChannel(args[0])
		if err != nil {
			return "", err
		}
		value, perr := strconv.ParseFloat(args[1], 64)
		if perr != nil {
			return "", argError(ReplyInvalidParam)
		}
		return d.write(ctx, base+offset, value)
	}
}

func getPumpRegister(base byte) commandHandler {
	return func(_ context.Context, d *Dispatcher, args []string) (string, error) {
		offset, err := pumpChannel(args[0])
		if err != nil {
			return "", err
		}
		return d.read(base + offset)
	}
}

func setPumpFlag(base byte) commandHandler {
	return func(ctx context.Context, d *Dispatcher, args []string) (string, error) {
		offset, err := pumpChannel(args[0])
		if err != nil {
			return "", err
		}
		on, err := parseFlag(args[1])
		if err != nil {
			return "", err
		}
		return d.write(ctx, base+offset, on)
	}
}

func cooldownBase(arg string) (byte, error) {
	switch strings.ToUpper(arg) {
	case "MIN":
		return RegCooldownMinCP1, nil
	case "MAX":
		return RegCooldownMaxCP1, nil
	default:
		return 0, argError(ReplyInvalidType)
	}
}

func setCooldown(ctx context.Context, d *Dispatcher, args []string) (string, error) {
	base, err := cooldownBase(args[0])
	if err != nil {
		return "", err
	}
	return setPumpRegister(base)(ctx, d, args[1:])
}

func getCooldown(ctx context.Context, d *Dispatcher, args []string) (string, error) {
	base, err := cooldownBase(args[0])
	if err != nil {
		return "", err
	}
	return getPumpRegister(base)(ctx, d, args[1:])
}

func parseFlag(arg string) (float64, error) {
	switch strings.ToUpper(arg) {
	case "1", "ON":
		return 1, nil
	case "0", "OFF":
		return 0, nil
	default:
		return 0, argError(ReplyInvalidParam)
	}
}

func setFlag(addr byte) commandHandler {
	return func(ctx context.Context, d *Dispatcher, args []string) (string, error) {
		on, err := parseFlag(args[0])
		if err != nil {
			return "", err
		}
		return d.write(ctx, addr, on)
	}
}

func setRegister(addr byte) commandHandler {
	return func(ctx context.Context, d *Dispatcher, args []string) (string, error) {
		value, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return "", argError(ReplyInvalidParam)
		}
		return d.write(ctx, addr, value)
	}
}

func getRegister(addr byte) commandHandler {
	return func(_ context.Context, d *Dispatcher, _ []string) (string, error) {
		return d.read(addr)
	}
}

func parseAddress(arg string) (byte, error) {
	v, err := strconv.ParseUint(arg, 0, 8)
	if err != nil {
		return 0, argError(ReplyInvalidParam)
	}
	return byte(v), nil
}

func setByAddress(ctx context.Context, d *Dispatcher, args []string) (string, error) {
	addr, err := parseAddress(args[0])
	if err != nil {
		return "", err
	}
	value, perr := strconv.ParseFloat(args[1], 64)
	if perr != nil {
		return "", argError(ReplyInvalidParam)
	}
	return d.write(ctx, addr, value)
}

func getByAddress(_ context.Context, d *Dispatcher, args []string) (string, error) {
	addr, err := parseAddress(args[0])
	if err != nil {
		return "", err
	}
	return d.read(addr)
}

func defaultByAddress(ctx context.Context, d *Dispatcher, args []string) (string, error) {
	addr, err := parseAddress(args[0])
	if err != nil {
		return "", err
	}
	if err := d.store.ResetToDefault(addr); err != nil {
		return "", d.registerFailed(err)
	}
	if err := d.pusher.Push(ctx, addr); err != nil {
		return "", d.pushFailed(err)
	}
	return "", nil
}

// write validates and stores value, then pushes it. A failed push keeps
// the stored value; the register stays dirty until a later push succeeds.
func (d *Dispatcher) write(ctx context.Context, addr byte, value float64) (string, error) {
	if err := d.store.Set(addr, value); err != nil {
		return "", d.registerFailed(err)
	}
	if err := d.pusher.Push(ctx, addr); err != nil {
		return "", d.pushFailed(err)
	}
	return "", nil
}

func (d *Dispatcher) read(addr byte) (string, error) {
	entry, err := d.store.Entry(addr)
	if err != nil {
		return "", d.registerFailed(err)
	}
	if entry.Encoding == EncodingFloatScaled {
		return strconv.FormatFloat(entry.Current, 'f', 2, 64), nil
	}
	return strconv.FormatFloat(entry.Current, 'f', 0, 64), nil
}

func (*Dispatcher) registerFailed(err error) error {
	reply := ReplyInvalidParam
	var re *RegisterError
	if errors.As(err, &re) && errors.Is(err, ErrOutOfRange) {
		reply = fmt.Sprintf("Value out of range: %s accepts %g to %g", re.Name, re.Bounds.Min, re.Bounds.Max)
	} else if errors.Is(err, ErrUnknownAddress) {
		reply = "Unknown register"
	}
	return &DispatchError{Err: err, Reply: reply}
}

func (d *Dispatcher) pushFailed(err error) error {
	d.lastError = errorDeviceRefused
	if errors.Is(err, ErrAckTimeout) {
		d.lastError = errorCommTimeout
	}
	Debugf("dispatch: device write failed: %v", err)
	return &DispatchError{Err: err, Reply: "Device write failed: " + err.Error()}
}
