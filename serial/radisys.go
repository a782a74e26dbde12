// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package serial

import (
	"log/slog"

	"github.com/bureau-foundation/ipmi/wire"
)

// radisysASCIICodec implements the Radisys ASCII framing: a full
// checksummed IPMB frame as bare hex pairs, terminated by a carriage
// return. Bridged IPMB traffic uses the same line format, re-framed
// through the standard IPMB packer before hex encoding.
type radisysASCIICodec struct{}

func (radisysASCIICodec) Name() string { return "RadisysAscii" }

func (radisysASCIICodec) Encode(frame wire.IPMBFrame) []byte {
	packed := wire.PackIPMB(frame)
	out := make([]byte, 0, len(packed)*2+1)
	for _, b := range packed {
		out = appendHexByte(out, b)
	}
	return append(out, 0x0d)
}

func (radisysASCIICodec) NewDecoder(logger *slog.Logger) Decoder {
	return &radisysASCIIDecoder{logger: logger}
}

type radisysASCIIDecoder struct {
	logger  *slog.Logger
	chars   []byte
	tooMany bool
}

func (d *radisysASCIIDecoder) Feed(data []byte, emit func(wire.IPMBFrame)) []byte {
	for _, c := range data {
		d.feedChar(c, emit)
	}
	return nil
}

func (d *radisysASCIIDecoder) feedChar(c byte, emit func(wire.IPMBFrame)) {
	if c == 0x0d {
		switch {
		case d.tooMany:
			d.logger.Warn("radisys frame overrun, dropped")
		case len(d.chars) == 0:
			// Blank line; ignore.
		default:
			if frame, ok := parseRadisysFrame(d.chars); ok {
				emit(frame)
			} else {
				d.logger.Warn("bad radisys frame, dropped")
			}
		}
		d.chars = d.chars[:0]
		d.tooMany = false
		return
	}

	if d.tooMany {
		return
	}
	if len(d.chars) >= maxLineSize {
		d.tooMany = true
		return
	}
	if isSpace(c) && (len(d.chars) == 0 || isSpace(d.chars[len(d.chars)-1])) {
		// Collapse leading and repeated whitespace.
		return
	}
	d.chars = append(d.chars, c)
}

func parseRadisysFrame(chars []byte) (wire.IPMBFrame, bool) {
	decoded, ok := decodeHexPairs(chars)
	if !ok {
		return wire.IPMBFrame{}, false
	}
	frame, err := wire.UnpackIPMB(decoded)
	if err != nil {
		return wire.IPMBFrame{}, false
	}
	return frame, true
}
