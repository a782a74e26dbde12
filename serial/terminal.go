// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package serial

import (
	"log/slog"

	"github.com/bureau-foundation/ipmi/wire"
)

// terminalModeCodec implements IPMI Terminal Mode: frames are bracketed
// hex text, "[" netfn/lun seq/bridge cmd data... "]". Addresses do not
// travel on the line (the peers are fixed), so decoded frames carry
// zero address fields.
type terminalModeCodec struct{}

func (terminalModeCodec) Name() string { return "TerminalMode" }

// Encode writes the header bytes packed (netfn<<2|lun, seq<<2, cmd)
// followed by the payload bytes separated by single spaces. Bridge
// bits are always zero.
func (terminalModeCodec) Encode(frame wire.IPMBFrame) []byte {
	out := make([]byte, 0, maxLineSize)
	out = append(out, '[')
	out = appendHexByte(out, uint8(frame.NetFn)<<2|frame.RequesterLUN&3)
	out = appendHexByte(out, frame.Seq<<2)
	out = appendHexByte(out, frame.Cmd)
	for _, b := range frame.Data {
		out = append(out, ' ')
		out = appendHexByte(out, b)
	}
	out = append(out, ']', 0x0a)
	return out
}

func (terminalModeCodec) NewDecoder(logger *slog.Logger) Decoder {
	return &terminalModeDecoder{logger: logger}
}

type terminalModeDecoder struct {
	logger  *slog.Logger
	chars   []byte
	inFrame bool
	tooMany bool
}

func (d *terminalModeDecoder) Feed(data []byte, emit func(wire.IPMBFrame)) []byte {
	for _, c := range data {
		d.feedChar(c, emit)
	}
	return nil
}

func (d *terminalModeDecoder) feedChar(c byte, emit func(wire.IPMBFrame)) {
	switch {
	case c == '[':
		// Start of a frame; one already in progress is abandoned.
		if d.inFrame && len(d.chars) > 0 {
			d.logger.Warn("terminal mode frame started inside another")
		}
		d.inFrame = true
		d.tooMany = false
		d.chars = d.chars[:0]

	case !d.inFrame:
		// Everything outside [ ] is ignored.

	case c == ']':
		if d.tooMany {
			d.logger.Warn("terminal mode frame overrun, dropped")
		} else if frame, ok := parseTerminalFrame(d.chars); ok {
			emit(frame)
		} else {
			d.logger.Warn("bad terminal mode frame, dropped")
		}
		d.inFrame = false
		d.tooMany = false
		d.chars = d.chars[:0]

	case d.tooMany:

	case len(d.chars) >= maxLineSize:
		d.tooMany = true

	case isSpace(c) && len(d.chars) > 0 && isSpace(d.chars[len(d.chars)-1]):
		// Collapse runs of whitespace.

	default:
		d.chars = append(d.chars, c)
	}
}

// parseTerminalFrame decodes the hex content between the brackets:
// at least netfn/lun, seq, and cmd, then the payload.
func parseTerminalFrame(chars []byte) (wire.IPMBFrame, bool) {
	decoded, ok := decodeHexPairs(chars)
	if !ok || len(decoded) < 3 {
		return wire.IPMBFrame{}, false
	}
	return wire.IPMBFrame{
		NetFn:        wire.NetFn(decoded[0] >> 2),
		RequesterLUN: decoded[0] & 3,
		Seq:          decoded[1] >> 2,
		Cmd:          decoded[2],
		Data:         decoded[3:],
	}, true
}
