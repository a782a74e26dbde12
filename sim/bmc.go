// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sim

import (
	"fmt"
	"sync"

	"github.com/bureau-foundation/ipmi/domain"
	"github.com/bureau-foundation/ipmi/wire"
)

// DeviceID identifies a simulated controller, reported through Get
// Device ID. Managers use the manufacturer/product pair to pick OEM
// handling, so the mock lets both be configured.
type DeviceID struct {
	ManufacturerID uint32 // 20-bit IANA enterprise number
	ProductID      uint16
	FirmwareMajor  uint8
	FirmwareMinor  uint8
}

// BMC is a simulated board management controller: a set of devices
// keyed by IPMB address, each optionally carrying FRU inventory
// storage.
type BMC struct {
	mu      sync.Mutex
	id      DeviceID
	devices map[wire.AddressKey]*Device
}

// New creates an empty simulated BMC reporting the given identity.
func New(id DeviceID) *BMC {
	return &BMC{
		id:      id,
		devices: make(map[wire.AddressKey]*Device),
	}
}

// AddDevice attaches a device at the given address. Replaces any
// previous device at the same address.
func (b *BMC) AddDevice(addr wire.IPMB, dev *Device) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices[addr.Key()] = dev
}

// Device looks up the device at addr.
func (b *BMC) Device(addr wire.IPMB) (*Device, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	dev, ok := b.devices[addr.Key()]
	return dev, ok
}

// Send implements domain.Transport: the command is handled and its
// response delivered on a fresh goroutine, modelling the asynchronous
// dispatch of a real transport.
func (b *BMC) Send(addr wire.Address, msg wire.Message, handler domain.ResponseHandler) error {
	if handler == nil {
		return fmt.Errorf("sim: nil response handler")
	}
	response := b.Handle(addr, msg)
	go handler(addr, response)
	return nil
}

// Handle processes one command synchronously and returns its response.
// Serial frontends (the mock binary) call this directly.
func (b *BMC) Handle(addr wire.Address, msg wire.Message) wire.Response {
	b.mu.Lock()
	dev, haveDevice := b.devices[addr.Key()]
	id := b.id
	b.mu.Unlock()

	switch {
	case msg.NetFn == wire.NetFnApp && msg.Cmd == wire.CmdGetDeviceID:
		return deviceIDResponse(id)

	case msg.NetFn == wire.NetFnStorage:
		switch msg.Cmd {
		case wire.CmdGetFRUInventoryAreaInfo, wire.CmdReadFRUData, wire.CmdWriteFRUData:
		default:
			return wire.SyntheticResponse(wire.CompletionInvalidCommand)
		}
		if !haveDevice || dev.fru == nil {
			return wire.SyntheticResponse(wire.CompletionNotPresent)
		}
		switch msg.Cmd {
		case wire.CmdGetFRUInventoryAreaInfo:
			return dev.fru.areaInfo()
		case wire.CmdReadFRUData:
			return dev.fru.read(msg.Data)
		case wire.CmdWriteFRUData:
			return dev.fru.write(msg.Data)
		}
	}
	return wire.SyntheticResponse(wire.CompletionInvalidCommand)
}

// deviceIDResponse builds the Get Device ID response body: device id,
// revision, firmware, IPMI version, support flags, then the
// manufacturer and product identifiers managers key OEM handling on.
func deviceIDResponse(id DeviceID) wire.Response {
	data := make([]byte, 12)
	data[0] = 0    // completion
	data[1] = 0x20 // device id
	data[2] = 0x01 // device revision
	data[3] = id.FirmwareMajor
	data[4] = id.FirmwareMinor
	data[5] = 0x02 // IPMI 2.0
	data[6] = 0x08 // FRU inventory device support
	data[7] = uint8(id.ManufacturerID)
	data[8] = uint8(id.ManufacturerID >> 8)
	data[9] = uint8(id.ManufacturerID >> 16)
	data[10] = uint8(id.ProductID)
	data[11] = uint8(id.ProductID >> 8)
	return wire.Response{Data: data}
}

// ParseDeviceID extracts the identity fields from a Get Device ID
// response payload. Returns an error for a non-OK completion or a
// response too short to carry the identifiers — real controllers exist
// that do both.
func ParseDeviceID(response wire.Response) (DeviceID, error) {
	if cc := response.Completion(); cc != wire.CompletionOK {
		return DeviceID{}, wire.ErrorForCompletion(cc)
	}
	data := response.Data
	if len(data) < 12 {
		return DeviceID{}, fmt.Errorf("sim: device id response too short: %d bytes", len(data))
	}
	return DeviceID{
		FirmwareMajor:  data[3],
		FirmwareMinor:  data[4],
		ManufacturerID: uint32(data[7]) | uint32(data[8])<<8 | uint32(data[9])<<16,
		ProductID:      uint16(data[10]) | uint16(data[11])<<8,
	}, nil
}
