// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sim

import (
	"slices"
	"sync"

	"github.com/bureau-foundation/ipmi/wire"
)

// FRUConfig describes a simulated FRU storage and its quirks.
type FRUConfig struct {
	// Image is the initial inventory content. Its length is the real
	// storage size.
	Image []byte

	// AccessByWords switches the device to 16-bit word addressing:
	// on-wire offsets and counts are in words.
	AccessByWords bool

	// AdvertisedSize overrides the size reported by Get FRU Inventory
	// Area Info when non-zero. Some cards report more than they can
	// serve; reads past the real image then fail, exercising the
	// manager's tolerant-truncation path.
	AdvertisedSize int

	// MaxTransfer caps the byte count of a single read. A larger
	// request is answered according to DropOversize.
	MaxTransfer int

	// DropOversize makes over-large read requests time out (the
	// device "returns nothing at all") instead of failing with
	// cannot-return-requested-length.
	DropOversize bool

	// BusyWrites is how many initial Write FRU Data commands answer
	// with the FRU-device-busy code before the device accepts.
	BusyWrites int
}

// Device is one simulated IPMB device. Currently a device is only
// interesting for its FRU storage.
type Device struct {
	fru *fruStorage
}

// NewFRUDevice builds a device carrying FRU inventory storage.
func NewFRUDevice(cfg FRUConfig) *Device {
	return &Device{fru: &fruStorage{
		image:          slices.Clone(cfg.Image),
		accessByWords:  cfg.AccessByWords,
		advertisedSize: cfg.AdvertisedSize,
		maxTransfer:    cfg.MaxTransfer,
		dropOversize:   cfg.DropOversize,
		busyWrites:     cfg.BusyWrites,
	}}
}

// Image returns a copy of the device's current inventory content.
func (d *Device) Image() []byte {
	d.fru.mu.Lock()
	defer d.fru.mu.Unlock()
	return slices.Clone(d.fru.image)
}

// fruStorage implements the three FRU commands against an in-memory
// image.
type fruStorage struct {
	mu             sync.Mutex
	image          []byte
	accessByWords  bool
	advertisedSize int
	maxTransfer    int
	dropOversize   bool
	busyWrites     int
}

func (s *fruStorage) shift() uint {
	if s.accessByWords {
		return 1
	}
	return 0
}

func (s *fruStorage) areaInfo() wire.Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	size := len(s.image)
	if s.advertisedSize != 0 {
		size = s.advertisedSize
	}
	flags := uint8(0)
	if s.accessByWords {
		flags = 1
	}
	data := []byte{0, 0, 0, flags}
	wire.PutUint16(data[1:3], uint16(size))
	return wire.Response{Data: data}
}

// read serves Read FRU Data: device id, offset (2 bytes, device
// units), count (device units).
func (s *fruStorage) read(request []byte) wire.Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(request) < 4 {
		return wire.SyntheticResponse(wire.CompletionRequestDataLengthInvalid)
	}
	offset := int(wire.Uint16(request[1:3])) << s.shift()
	count := int(request[3]) << s.shift()

	if s.maxTransfer != 0 && count > s.maxTransfer {
		if s.dropOversize {
			// The device never answers; a real transport reports
			// this as a timeout.
			return wire.SyntheticResponse(wire.CompletionTimeout)
		}
		return wire.SyntheticResponse(wire.CompletionCannotReturnReqLength)
	}
	if offset >= len(s.image) {
		return wire.SyntheticResponse(wire.CompletionParameterOutOfRange)
	}
	if offset+count > len(s.image) {
		count = len(s.image) - offset
		if s.accessByWords {
			count &^= 1 // whole words only
		}
	}

	data := make([]byte, 2+count)
	data[1] = uint8(count >> s.shift())
	copy(data[2:], s.image[offset:offset+count])
	return wire.Response{Data: data}
}

// write serves Write FRU Data: device id, offset (2 bytes, device
// units), then payload.
func (s *fruStorage) write(request []byte) wire.Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(request) < 4 {
		return wire.SyntheticResponse(wire.CompletionRequestDataLengthInvalid)
	}
	if s.busyWrites > 0 {
		s.busyWrites--
		return wire.SyntheticResponse(wire.CompletionFRUDeviceBusy)
	}

	offset := int(wire.Uint16(request[1:3])) << s.shift()
	payload := request[3:]
	if offset+len(payload) > len(s.image) {
		return wire.SyntheticResponse(wire.CompletionParameterOutOfRange)
	}
	copy(s.image[offset:], payload)
	return wire.Response{Data: []byte{0, uint8(len(payload) >> s.shift())}}
}
