// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package serial

import (
	"log/slog"

	"github.com/bureau-foundation/ipmi/wire"
)

// maxFrameSize bounds the decoded size of one frame. IPMI messages are
// small; anything larger is line noise or an attack on the buffer.
const maxFrameSize = 64

// maxLineSize bounds the raw character count of one frame on the line
// (hex expansion plus framing and separators).
const maxLineSize = (maxFrameSize+1)*3 + 4

// Codec frames IPMB messages for a serial line.
type Codec interface {
	// Name is the configuration name of the codec ("TerminalMode",
	// "Direct", "RadisysAscii").
	Name() string

	// Encode produces the line bytes for one frame.
	Encode(frame wire.IPMBFrame) []byte

	// NewDecoder returns a fresh streaming decoder. Decoders hold
	// per-connection state and are not safe for concurrent use.
	NewDecoder(logger *slog.Logger) Decoder
}

// Decoder consumes raw line bytes. Completed frames are delivered to
// emit during the Feed call. The returned ack bytes, if any, are
// link-level acknowledgements the caller must write back to the line.
type Decoder interface {
	Feed(data []byte, emit func(wire.IPMBFrame)) (ack []byte)
}

// codecs is the codec table, in the order configuration names are
// tried.
var codecs = []Codec{
	terminalModeCodec{},
	directModeCodec{},
	radisysASCIICodec{},
}

// Lookup finds a codec by its configuration name. The boolean reports
// whether the name is known.
func Lookup(name string) (Codec, bool) {
	for _, c := range codecs {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// Names lists the available codec names in lookup order.
func Names() []string {
	names := make([]string, len(codecs))
	for i, c := range codecs {
		names[i] = c.Name()
	}
	return names
}

// hexDigits is the uppercase alphabet the ASCII codecs emit.
const hexDigits = "0123456789ABCDEF"

// appendHexByte appends the two hex characters for b.
func appendHexByte(dst []byte, b byte) []byte {
	return append(dst, hexDigits[b>>4], hexDigits[b&0xf])
}

// fromHex returns the value of one hex character, or -1.
func fromHex(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}

// isSpace reports ASCII whitespace, the only kind the line protocols
// use.
func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

// decodeHexPairs converts a hex-pair run (optionally space-separated
// between pairs) into bytes. Returns nil and false on a stray
// character or an odd-length pair.
func decodeHexPairs(chars []byte) ([]byte, bool) {
	out := make([]byte, 0, len(chars)/2)
	i := 0
	for i < len(chars) {
		if isSpace(chars[i]) {
			i++
			continue
		}
		hi := fromHex(chars[i])
		if hi < 0 || i+1 >= len(chars) {
			return nil, false
		}
		lo := fromHex(chars[i+1])
		if lo < 0 {
			return nil, false
		}
		out = append(out, byte(hi<<4|lo))
		i += 2
	}
	return out, true
}
