// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "fmt"

// NetFn is an IPMI network function code. Request network functions are
// even; the matching response sets the low bit.
type NetFn uint8

const (
	// NetFnApp carries application-level commands (Get Device ID).
	NetFnApp NetFn = 0x06
	// NetFnStorage carries the FRU inventory and SDR/SEL commands.
	NetFnStorage NetFn = 0x0a
)

// Response returns the response network function for a request NetFn.
func (n NetFn) Response() NetFn {
	return n | 1
}

// IsResponse reports whether the network function is a response code.
func (n NetFn) IsResponse() bool {
	return n&1 == 1
}

// Command codes used by this module.
const (
	// CmdGetDeviceID (NetFnApp) identifies the responding controller.
	CmdGetDeviceID = 0x01

	// CmdGetFRUInventoryAreaInfo (NetFnStorage) returns the declared
	// inventory size and the access-mode flags.
	CmdGetFRUInventoryAreaInfo = 0x10

	// CmdReadFRUData (NetFnStorage) reads a span of the inventory area.
	CmdReadFRUData = 0x11

	// CmdWriteFRUData (NetFnStorage) writes a span of the inventory area.
	CmdWriteFRUData = 0x12
)

// Message is an IPMI request: a network function, a command, and the
// command's payload bytes. The payload never includes addressing or
// checksums; framing is applied by the transport or a serial codec.
type Message struct {
	NetFn NetFn
	Cmd   uint8
	Data  []byte
}

func (m Message) String() string {
	return fmt.Sprintf("netfn=%#02x cmd=%#02x len=%d", uint8(m.NetFn), m.Cmd, len(m.Data))
}

// Response is an IPMI response payload. Data[0] is the completion code;
// the remaining bytes are command-specific. A Response always has at
// least the completion code: transports that cannot produce one (link
// loss, timer expiry) synthesize it via SyntheticResponse.
type Response struct {
	Data []byte
}

// Completion returns the response's completion code. A structurally
// empty response reports CompletionUnknownError rather than panicking;
// the engine treats both identically.
func (r Response) Completion() Completion {
	if len(r.Data) == 0 {
		return CompletionUnknownError
	}
	return Completion(r.Data[0])
}

// Payload returns the response bytes after the completion code.
func (r Response) Payload() []byte {
	if len(r.Data) < 2 {
		return nil
	}
	return r.Data[1:]
}

// SyntheticResponse builds a response carrying only a completion code.
// Transports use it to report conditions (timeout, link loss) for which
// the device produced no bytes, so response handlers see a uniform shape.
func SyntheticResponse(code Completion) Response {
	return Response{Data: []byte{uint8(code)}}
}

// PutUint16 stores v little-endian at b[0:2]. IPMI FRU offsets and sizes
// are 16-bit little-endian on the wire.
func PutUint16(b []byte, v uint16) {
	b[0] = uint8(v)
	b[1] = uint8(v >> 8)
}

// Uint16 reads a little-endian 16-bit value from b[0:2].
func Uint16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}
