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
	"errors"
	"fmt"
	"io"
	"runtime"
	"slices"
	"syscall"
)

// Error categories for better error handling and retry logic
var (
	// Transport errors - potentially retryable
	ErrTransportTimeout  = errors.New("transport timeout")
	ErrTransportWrite    = errors.New("transport write failed")
	ErrTransportRead     = errors.New("transport read failed")
	ErrTransportClosed   = errors.New("transport is closed")
	ErrTransportNotReady = errors.New("transport not ready")

	// Decode outcomes - never fatal, the loop keeps scanning
	ErrIncomplete          = errors.New("incomplete frame")
	ErrUnrecognizedAddress = errors.New("unrecognized frame address")
	ErrMisaligned          = errors.New("frame misaligned")
	ErrChecksumMismatch    = errors.New("checksum mismatch")

	// Register errors - not retryable
	ErrUnknownAddress = errors.New("unknown register address")
	ErrOutOfRange     = errors.New("value out of range")

	// Device acknowledgement errors
	ErrAckGeneric         = errors.New("device reported generic error")
	ErrAckTimeout         = errors.New("device acknowledgement timeout")
	ErrAckHeader          = errors.New("device reported header error")
	ErrAckMessageInvalid  = errors.New("device reported invalid message")
	ErrAckUnknown         = errors.New("device reported unknown error")
	ErrConfigurationDrift = errors.New("device configuration drift: streaming not restored")
	ErrStreamingActive    = errors.New("acknowledged write refused while streaming")

	// Command errors - reported back to the host as text
	ErrUnknownVerb     = errors.New("command not implemented")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrLineTooLong     = errors.New("command line too long")

	// Data errors - not retryable
	ErrInvalidLayout = errors.New("invalid frame layout")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ErrorType represents the category of error for retry logic
type ErrorType int

const (
	// ErrorTypeTransient indicates a potentially retryable error
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent indicates a non-retryable error
	ErrorTypePermanent
	// ErrorTypeTimeout indicates a timeout error (special handling)
	ErrorTypeTimeout
)

// TransportError wraps transport-level errors with additional context
type TransportError struct {
	Err       error     // Underlying error
	Op        string    // Operation that failed
	Port      string    // Port or device identifier
	Type      ErrorType // Error category
	Retryable bool      // Whether the error is retryable
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError describes a frame the decoder could not turn into data.
// Failure is one of ErrUnrecognizedAddress, ErrMisaligned or
// ErrChecksumMismatch; Discarded counts the bytes dropped from the stream.
type DecodeError struct {
	Failure   error
	Kind      FrameKind
	Discarded int
	Address   byte
}

func (e *DecodeError) Error() string {
	switch {
	case errors.Is(e.Failure, ErrMisaligned):
		return fmt.Sprintf("%v: resynchronized after %d bytes", e.Failure, e.Discarded)
	case errors.Is(e.Failure, ErrChecksumMismatch):
		return fmt.Sprintf("%s frame 0x%02X: %v", e.Kind, e.Address, e.Failure)
	default:
		return fmt.Sprintf("%v 0x%02X: discarded %d bytes", e.Failure, e.Address, e.Discarded)
	}
}

func (e *DecodeError) Unwrap() error {
	return e.Failure
}

// RegisterError is returned by RegisterStore operations.
type RegisterError struct {
	Err     error
	Name    string
	Op      string
	Bounds  Bounds
	Value   float64
	Address byte
}

func (e *RegisterError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s %s (0x%02X): %v", e.Op, e.Name, e.Address, e.Err)
	}
	return fmt.Sprintf("%s 0x%02X: %v", e.Op, e.Address, e.Err)
}

func (e *RegisterError) Unwrap() error {
	return e.Err
}

// WriteError reports a register write the device did not accept.
type WriteError struct {
	Err     error
	Status  AckStatus
	Address byte
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write register 0x%02X: %s: %v", e.Address, e.Status, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// DispatchError carries the text reply alongside the failure that caused it.
type DispatchError struct {
	Err   error
	Verb  string
	Reply string
}

func (e *DispatchError) Error() string {
	if e.Verb == "" {
		return fmt.Sprintf("dispatch: %v", e.Err)
	}
	return fmt.Sprintf("dispatch %s: %v", e.Verb, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// IsDecodeFailure returns true for any outcome of TryDecode that consumed
// bytes without producing a frame.
func IsDecodeFailure(err error) bool {
	return errors.Is(err, ErrUnrecognizedAddress) ||
		errors.Is(err, ErrMisaligned) ||
		errors.Is(err, ErrChecksumMismatch)
}

// IsRetryable reports whether repeating the operation may succeed: a
// transient or timed out transport operation, or a write the device
// answered with a timeout or generic error status. Fatal errors are never
// retryable, even when joined with a transient one.
func IsRetryable(err error) bool {
	if err == nil || IsFatal(err) {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}
	var we *WriteError
	if errors.As(err, &we) {
		return we.Status == AckTimeout || we.Status == AckGenericError
	}

	for _, target := range retryableErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var retryableErrors = []error{
	ErrTransportTimeout,
	ErrTransportRead,
	ErrTransportWrite,
	ErrTransportNotReady,
	ErrChecksumMismatch,
}

// fatalErrors end the control loop: the port is gone or the device can no
// longer be assumed to hold the host's register values.
var fatalErrors = []error{
	ErrTransportClosed,
	ErrConfigurationDrift,
	io.EOF,
	io.ErrClosedPipe,
}

// IsFatal reports whether the device or its connection is lost. Unlike
// IsRetryable it judges the session, not a single operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) && te.Type == ErrorTypePermanent {
		return true
	}
	if isDeviceGoneError(err) {
		return true
	}
	for _, target := range fatalErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// deviceGoneErrnos are the errno values a USB serial bridge produces when
// it is unplugged mid-transfer. The Windows codes have no syscall
// constants on other platforms.
var deviceGoneErrnos = map[string][]syscall.Errno{
	"": {syscall.EIO, syscall.ENXIO, syscall.ENODEV},
	"windows": {
		5,   // ERROR_ACCESS_DENIED
		31,  // ERROR_GEN_FAILURE
		433, // ERROR_NO_SUCH_DEVICE
	},
}

func isDeviceGoneError(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	return slices.Contains(deviceGoneErrnos[""], errno) ||
		slices.Contains(deviceGoneErrnos[runtime.GOOS], errno)
}

// NewTransportError wraps err for operation op on port. Transient and
// timeout errors are retryable.
func NewTransportError(op, port string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Err:       err,
		Op:        op,
		Port:      port,
		Type:      errType,
		Retryable: errType != ErrorTypePermanent,
	}
}

// NewTimeoutError reports an operation that ran out of time.
func NewTimeoutError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportTimeout, ErrorTypeTimeout)
}

// NewTransportWriteError reports a failed or short write.
func NewTransportWriteError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportWrite, ErrorTypeTransient)
}

// NewTransportReadError reports a failed read.
func NewTransportReadError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportRead, ErrorTypeTransient)
}

// NewTransportNotReadyError reports a read asking for more bytes than are
// buffered.
func NewTransportNotReadyError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportNotReady, ErrorTypeTimeout)
}

// NewTransportClosedError reports use of a closed port. It is fatal.
func NewTransportClosedError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportClosed, ErrorTypePermanent)
}
