// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "fmt"

// Address identifies the destination of an IPMI command. The only
// concrete implementation in this module is IPMB; the interface exists
// so a transport can route other address types (system interface, LAN
// session) without the engine caring.
type Address interface {
	fmt.Stringer

	// Key returns a comparable routing key. Two addresses with the
	// same key reach the same device.
	Key() AddressKey
}

// AddressKey is the comparable form of an Address, usable as a map key
// by transports and the simulator.
type AddressKey struct {
	Channel uint8
	Slave   uint8
	LUN     uint8
}

// IPMB addresses a device on an IPMB bus: the channel the bus hangs off,
// the device's 7-bit slave address, and the logical unit within it.
type IPMB struct {
	Channel uint8
	Slave   uint8
	LUN     uint8
}

func (a IPMB) String() string {
	return fmt.Sprintf("ipmb %d.%#02x.%d", a.Channel, a.Slave, a.LUN)
}

// Key implements Address.
func (a IPMB) Key() AddressKey {
	return AddressKey{Channel: a.Channel, Slave: a.Slave, LUN: a.LUN}
}
