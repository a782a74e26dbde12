// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fru

// Name returns the FRU's printable name (domain name plus a unique
// numeric suffix). Immutable after allocation; no lock needed.
func (f *FRU) Name() string {
	return f.name
}

// DiagnosticName returns the internal name carrying the full
// addressing tuple, used in log records.
func (f *FRU) DiagnosticName() string {
	return f.iname
}

// Domain returns the management context the FRU belongs to.
func (f *FRU) Domain() Domain {
	return f.dom
}

// IsLogical reports whether the FRU uses logical device access.
func (f *FRU) IsLogical() bool {
	return f.isLogical
}

// DeviceAddress returns the 7-bit bus address of the FRU's device.
func (f *FRU) DeviceAddress() uint8 {
	return f.deviceAddress
}

// DeviceID returns the FRU device id (0-255).
func (f *FRU) DeviceID() uint8 {
	return f.deviceID
}

// LUN returns the logical unit within the device.
func (f *FRU) LUN() uint8 {
	return f.lun
}

// PrivateBus returns the private bus number.
func (f *FRU) PrivateBus() uint8 {
	return f.privateBus
}

// Channel returns the channel the device's bus hangs off.
func (f *FRU) Channel() uint8 {
	return f.channel
}

// FetchMask returns the area mask supplied at allocation.
func (f *FRU) FetchMask() AreaMask {
	return f.fetchMask
}

// AccessByWords reports whether the device uses 16-bit word
// addressing. Valid once a fetch has captured the area info.
func (f *FRU) AccessByWords() bool {
	return f.wordShift != 0
}

// DataLength returns the inventory's total length in bytes: the
// device's advertised size, or the truncation point for devices that
// advertise more than they serve.
func (f *FRU) DataLength() int {
	return f.dataLen
}

// Data returns the raw image buffer. It is only non-nil inside decoder
// hooks (Decode during a fetch, Write/WriteComplete during a flush);
// the engine releases it when the operation completes. The slice
// aliases engine state — hooks may read and, in Write, fill it, but
// must not retain it.
func (f *FRU) Data() []byte {
	return f.data
}

// RecData returns the decoder-scratch slot: whatever the accepting
// decoder stored at decode time.
func (f *FRU) RecData() any {
	return f.recData
}

// SetRecData stores the decoder's result on the object. Called from a
// decoder's Decode hook.
func (f *FRU) SetRecData(v any) {
	f.recData = v
}

// SetOps installs the decoder's operation set. Called from a decoder's
// Decode hook on acceptance.
func (f *FRU) SetOps(ops Ops) {
	f.ops = ops
}

// IsNormalFRU reports whether the inventory decoded as a standard FRU
// image (set by decoders for compatibility with callers that only
// understand the standard layout).
func (f *FRU) IsNormalFRU() bool {
	return f.normalFRU
}

// SetNormalFRU marks the object as holding a standard FRU image.
func (f *FRU) SetNormalFRU(v bool) {
	f.normalFRU = v
}
