// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"errors"
	"fmt"
)

// Completion is an IPMI completion code, the first byte of every
// response payload.
type Completion uint8

// Completion codes this module consumes explicitly. The full IPMI table
// is much larger; anything else is carried opaquely in a CompletionError.
const (
	CompletionOK Completion = 0x00

	// CompletionFRUDeviceBusy is the FRU-command-specific busy code.
	// Write FRU Data returns it while the device commits a previous
	// write; the write engine retries the identical command.
	CompletionFRUDeviceBusy Completion = 0x81

	CompletionNodeBusy                  Completion = 0xC0
	CompletionInvalidCommand            Completion = 0xC1
	CompletionTimeout                   Completion = 0xC3
	CompletionOutOfSpace                Completion = 0xC4
	CompletionRequestDataLengthInvalid  Completion = 0xC7
	CompletionRequestedDataLengthExceed Completion = 0xC8
	CompletionParameterOutOfRange       Completion = 0xC9
	CompletionCannotReturnReqLength     Completion = 0xCA
	CompletionNotPresent                Completion = 0xCB
	CompletionUnknownError              Completion = 0xFF
)

func (c Completion) String() string {
	return fmt.Sprintf("%#02x", uint8(c))
}

// CompletionError reports a non-zero IPMI completion code. Callers can
// extract the code with errors.As:
//
//	var ce *wire.CompletionError
//	if errors.As(err, &ce) && ce.Code == wire.CompletionFRUDeviceBusy { ... }
type CompletionError struct {
	// Code is the completion code the device (or transport) returned.
	Code Completion
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("ipmi completion %s", e.Code)
}

// ErrorForCompletion maps a completion code to an error: nil for
// CompletionOK, a *CompletionError otherwise.
func ErrorForCompletion(code Completion) error {
	if code == CompletionOK {
		return nil
	}
	return &CompletionError{Code: code}
}

// IsCompletion reports whether err is a *CompletionError carrying the
// given code.
func IsCompletion(err error, code Completion) bool {
	var ce *CompletionError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}
