// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"errors"
	"fmt"
)

// Errors returned by IPMB frame parsing.
var (
	// ErrFrameTooShort reports a frame below the 7-byte IPMB minimum
	// (two address bytes, two checksums, sequence, command, and at
	// least the completion code or an empty request body).
	ErrFrameTooShort = errors.New("wire: ipmb frame too short")

	// ErrBadChecksum reports an IPMB frame whose trailing checksum
	// does not zero the additive sum.
	ErrBadChecksum = errors.New("wire: ipmb checksum mismatch")
)

// Checksum returns the IPMB two's-complement checksum of data: the byte
// that makes the additive sum of data plus the checksum equal zero.
func Checksum(data []byte) uint8 {
	var sum uint8
	for _, b := range data {
		sum += b
	}
	return -sum
}

// IPMBFrame is a parsed IPMB message: the addressing header fields plus
// the command payload. The same shape serves requests and responses; for
// a response the payload begins with the completion code.
type IPMBFrame struct {
	// ResponderAddr and ResponderLUN identify the addressed device.
	ResponderAddr uint8
	ResponderLUN  uint8

	// RequesterAddr and RequesterLUN identify the sender.
	RequesterAddr uint8
	RequesterLUN  uint8

	// Seq is the 6-bit sequence number matching responses to requests.
	Seq uint8

	NetFn NetFn
	Cmd   uint8

	// Data is the command payload, without checksums.
	Data []byte
}

// UnpackIPMB parses a raw IPMB message. The full frame checksum must
// zero out and the frame must be at least 7 bytes. The returned frame's
// Data aliases raw.
func UnpackIPMB(raw []byte) (IPMBFrame, error) {
	if len(raw) < 7 {
		return IPMBFrame{}, fmt.Errorf("%w: %d bytes", ErrFrameTooShort, len(raw))
	}
	// The header checksum (raw[2]) is covered by the full-frame sum:
	// one pass over everything verifies both the header and the body.
	if Checksum(raw) != 0 {
		return IPMBFrame{}, ErrBadChecksum
	}

	frame := IPMBFrame{
		ResponderAddr: raw[0],
		NetFn:         NetFn(raw[1] >> 2),
		ResponderLUN:  raw[1] & 3,
		RequesterAddr: raw[3],
		Seq:           raw[4] >> 2,
		RequesterLUN:  raw[4] & 3,
		Cmd:           raw[5],
		Data:          raw[6 : len(raw)-1],
	}
	return frame, nil
}

// PackIPMB serializes an IPMB frame, inserting the header checksum after
// the first two bytes and the full checksum at the end. The checksums
// are computed over the packed output; the input frame is not modified.
func PackIPMB(frame IPMBFrame) []byte {
	packed := make([]byte, 0, len(frame.Data)+7)
	packed = append(packed,
		frame.ResponderAddr,
		uint8(frame.NetFn)<<2|frame.ResponderLUN&3)
	packed = append(packed, Checksum(packed))
	packed = append(packed,
		frame.RequesterAddr,
		frame.Seq<<2|frame.RequesterLUN&3,
		frame.Cmd)
	packed = append(packed, frame.Data...)
	packed = append(packed, Checksum(packed[3:]))
	return packed
}

// PackIPMBResponse builds the response frame for a request: addresses
// swapped, response network function, same sequence and command, with
// the given response payload (completion code first).
func PackIPMBResponse(request IPMBFrame, payload []byte) []byte {
	return PackIPMB(IPMBFrame{
		ResponderAddr: request.RequesterAddr,
		ResponderLUN:  request.RequesterLUN,
		RequesterAddr: request.ResponderAddr,
		RequesterLUN:  request.ResponderLUN,
		Seq:           request.Seq,
		NetFn:         request.NetFn.Response(),
		Cmd:           request.Cmd,
		Data:          payload,
	})
}
