// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package serial

import (
	"log/slog"

	"github.com/bureau-foundation/ipmi/wire"
)

// Direct Mode control characters. Payload bytes that collide with them
// travel escaped.
const (
	dmStart     = 0xA0
	dmStop      = 0xA5
	dmHandshake = 0xA6
	dmEscape    = 0xAA
)

// dmEscapes maps a control byte to its escaped form (and 0x1B, which
// Direct Mode also protects).
var dmEscapes = map[byte]byte{
	dmStart:     0xB0,
	dmStop:      0xB5,
	dmHandshake: 0xB6,
	dmEscape:    0xBA,
	0x1B:        0x3B,
}

// dmUnescapes is the reverse table.
var dmUnescapes = map[byte]byte{
	0xB0: dmStart,
	0xB5: dmStop,
	0xB6: dmHandshake,
	0xBA: dmEscape,
	0x3B: 0x1B,
}

// directModeCodec implements the binary Direct Mode framing: a full
// checksummed IPMB frame between start and stop characters, with
// collision bytes escaped. The receiver answers each frame with a
// handshake character.
type directModeCodec struct{}

func (directModeCodec) Name() string { return "Direct" }

func (directModeCodec) Encode(frame wire.IPMBFrame) []byte {
	packed := wire.PackIPMB(frame)
	out := make([]byte, 0, len(packed)*2+2)
	out = append(out, dmStart)
	for _, b := range packed {
		if escaped, ok := dmEscapes[b]; ok {
			out = append(out, dmEscape, escaped)
			continue
		}
		out = append(out, b)
	}
	out = append(out, dmStop)
	return out
}

func (directModeCodec) NewDecoder(logger *slog.Logger) Decoder {
	return &directModeDecoder{logger: logger}
}

type directModeDecoder struct {
	logger   *slog.Logger
	frame    []byte
	inFrame  bool
	inEscape bool
	tooMany  bool
}

func (d *directModeDecoder) Feed(data []byte, emit func(wire.IPMBFrame)) []byte {
	var ack []byte
	for _, c := range data {
		ack = d.feedChar(c, emit, ack)
	}
	return ack
}

func (d *directModeDecoder) feedChar(c byte, emit func(wire.IPMBFrame), ack []byte) []byte {
	switch c {
	case dmStart:
		if d.inFrame {
			d.logger.Warn("direct mode frame started inside another")
		}
		d.inFrame = true
		d.frame = d.frame[:0]
		d.tooMany = false
		d.inEscape = false

	case dmStop:
		switch {
		case !d.inFrame:
			d.logger.Warn("direct mode stop without a frame")
		case d.inEscape:
			d.logger.Warn("direct mode frame ended mid-escape, dropped")
		case d.tooMany:
			d.logger.Warn("direct mode frame overrun, dropped")
		default:
			if frame, err := wire.UnpackIPMB(d.frame); err != nil {
				d.logger.Warn("bad direct mode frame, dropped", "err", err)
			} else {
				// The frame data aliases the decode buffer; copy
				// before the buffer is reused.
				data := make([]byte, len(frame.Data))
				copy(data, frame.Data)
				frame.Data = data
				emit(frame)
			}
		}
		d.inFrame = false
		d.inEscape = false
		// Every stop is acknowledged, matching the peer's pacing.
		ack = append(ack, dmHandshake)

	case dmHandshake:
		d.inEscape = false

	case dmEscape:
		if !d.tooMany {
			d.inEscape = true
		}

	default:
		if !d.inFrame {
			// Noise between frames.
			return ack
		}
		if d.inEscape {
			d.inEscape = false
			unescaped, ok := dmUnescapes[c]
			if !ok {
				d.logger.Warn("invalid direct mode escape", "char", c)
				d.tooMany = true
				return ack
			}
			c = unescaped
		}
		if d.tooMany {
			return ack
		}
		if len(d.frame) >= maxFrameSize+7 {
			d.tooMany = true
			return ack
		}
		d.frame = append(d.frame, c)
	}
	return ack
}
