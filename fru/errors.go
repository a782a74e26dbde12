// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fru

import "errors"

var (
	// ErrCancelled reports a fetch interrupted by destruction of the
	// FRU. Only reads are cancelled; writes always run to completion.
	ErrCancelled = errors.New("fru: operation cancelled")

	// ErrBusy reports a write attempted while another operation holds
	// the object (a fetch still in flight, or another write).
	ErrBusy = errors.New("fru: operation already in progress")

	// ErrUnsupported reports that no registered decoder accepted the
	// inventory buffer.
	ErrUnsupported = errors.New("fru: unsupported inventory format")

	// ErrPermission reports a destroy through the wrong API: Destroy
	// on an untracked object, or DestroyInternal on a tracked one.
	ErrPermission = errors.New("fru: operation not permitted for this object")

	// ErrNotTracked reports a Destroy of a tracked object that has
	// already been removed from its registry.
	ErrNotTracked = errors.New("fru: object already removed from registry")

	// ErrInvalidResponse reports a structurally bad device response:
	// truncated payload, zero-length data, or a count that disagrees
	// with the bytes actually received.
	ErrInvalidResponse = errors.New("fru: invalid device response")

	// ErrMessageSize reports an advertised inventory smaller than the
	// 8-byte FRU common header.
	ErrMessageSize = errors.New("fru: inventory smaller than header")

	// ErrNotImplemented reports physical (non-logical) FRU access,
	// which awaits a physical-addressing protocol.
	ErrNotImplemented = errors.New("fru: physical FRU access not implemented")

	// ErrDecoderNotRegistered reports a DeregisterDecoder call for a
	// decoder that was never registered (or already removed).
	ErrDecoderNotRegistered = errors.New("fru: decoder not registered")
)
