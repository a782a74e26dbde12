// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package serial

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/bureau-foundation/ipmi/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func sampleFrame(data []byte) wire.IPMBFrame {
	return wire.IPMBFrame{
		ResponderAddr: 0x20,
		ResponderLUN:  0,
		RequesterAddr: 0x81,
		RequesterLUN:  2,
		Seq:           9,
		NetFn:         wire.NetFnStorage,
		Cmd:           wire.CmdReadFRUData,
		Data:          data,
	}
}

// collectFrames feeds data in single-byte chunks (the worst case for
// streaming state) and gathers emitted frames and acks.
func collectFrames(t *testing.T, d Decoder, data []byte) ([]wire.IPMBFrame, []byte) {
	t.Helper()
	var frames []wire.IPMBFrame
	var acks []byte
	for _, b := range data {
		acks = append(acks, d.Feed([]byte{b}, func(frame wire.IPMBFrame) {
			frames = append(frames, frame)
		})...)
	}
	return frames, acks
}

func TestLookup(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"TerminalMode", "Direct", "RadisysAscii"} {
		codec, ok := Lookup(name)
		if !ok {
			t.Errorf("Lookup(%q) failed", name)
			continue
		}
		if codec.Name() != name {
			t.Errorf("Lookup(%q).Name() = %q", name, codec.Name())
		}
	}
	if _, ok := Lookup("Modem"); ok {
		t.Error("Lookup accepted an unknown codec name")
	}
}

func TestDirectModeRoundTrip(t *testing.T) {
	t.Parallel()
	codec, _ := Lookup("Direct")
	// Payload deliberately contains every control character Direct
	// Mode must escape.
	payload := []byte{0x00, dmStart, dmStop, dmHandshake, dmEscape, 0x1B, 0x42}
	frame := sampleFrame(payload)

	line := codec.Encode(frame)
	frames, acks := collectFrames(t, codec.NewDecoder(testLogger()), line)

	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	got := frames[0]
	if !bytes.Equal(got.Data, payload) {
		t.Errorf("payload: got % x, want % x", got.Data, payload)
	}
	if got.NetFn != frame.NetFn || got.Cmd != frame.Cmd || got.Seq != frame.Seq {
		t.Errorf("header mismatch: got %+v", got)
	}
	if got.ResponderAddr != frame.ResponderAddr || got.RequesterAddr != frame.RequesterAddr {
		t.Errorf("addresses: got %#02x/%#02x", got.ResponderAddr, got.RequesterAddr)
	}
	// Each completed frame is acknowledged with a handshake byte.
	if !bytes.Equal(acks, []byte{dmHandshake}) {
		t.Errorf("acks: got % x, want the handshake byte", acks)
	}
}

func TestDirectModeIgnoresInterFrameNoise(t *testing.T) {
	t.Parallel()
	codec, _ := Lookup("Direct")
	frame := sampleFrame([]byte{0x01, 0x02})

	var line []byte
	line = append(line, 0x55, 0xff, 0x00) // noise before
	line = append(line, codec.Encode(frame)...)
	line = append(line, 'j', 'u', 'n', 'k')
	line = append(line, codec.Encode(frame)...)

	frames, _ := collectFrames(t, codec.NewDecoder(testLogger()), line)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
}

func TestDirectModeDropsCorruptFrame(t *testing.T) {
	t.Parallel()
	codec, _ := Lookup("Direct")
	line := codec.Encode(sampleFrame([]byte{0x01, 0x02}))
	// Flip a bit of the header checksum byte inside the framing; the
	// IPMB checksum verification catches it.
	line[3] ^= 0x01

	frames, acks := collectFrames(t, codec.NewDecoder(testLogger()), line)
	if len(frames) != 0 {
		t.Fatalf("corrupt frame emitted: %+v", frames)
	}
	// The stop is still acknowledged.
	if !bytes.Equal(acks, []byte{dmHandshake}) {
		t.Errorf("acks: got % x, want handshake", acks)
	}
}

func TestDirectModeRestartMidFrame(t *testing.T) {
	t.Parallel()
	codec, _ := Lookup("Direct")
	frame := sampleFrame([]byte{0x0a})
	full := codec.Encode(frame)

	// A start character aborts the frame in progress; the following
	// complete frame still decodes.
	var line []byte
	line = append(line, full[:4]...) // truncated first attempt
	line = append(line, full...)

	frames, _ := collectFrames(t, codec.NewDecoder(testLogger()), line)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if !bytes.Equal(frames[0].Data, frame.Data) {
		t.Errorf("payload: got % x, want % x", frames[0].Data, frame.Data)
	}
}

func TestTerminalModeRoundTrip(t *testing.T) {
	t.Parallel()
	codec, _ := Lookup("TerminalMode")
	frame := sampleFrame([]byte{0x00, 0x10, 0x00, 0x20})

	line := codec.Encode(frame)
	frames, _ := collectFrames(t, codec.NewDecoder(testLogger()), line)

	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	got := frames[0]
	if got.NetFn != frame.NetFn || got.Cmd != frame.Cmd || got.Seq != frame.Seq {
		t.Errorf("header: got netfn=%#02x cmd=%#02x seq=%d", uint8(got.NetFn), got.Cmd, got.Seq)
	}
	if got.RequesterLUN != frame.RequesterLUN {
		t.Errorf("lun: got %d, want %d", got.RequesterLUN, frame.RequesterLUN)
	}
	if !bytes.Equal(got.Data, frame.Data) {
		t.Errorf("payload: got % x, want % x", got.Data, frame.Data)
	}
}

func TestTerminalModeEmptyPayload(t *testing.T) {
	t.Parallel()
	codec, _ := Lookup("TerminalMode")
	frame := sampleFrame(nil)
	frame.NetFn = wire.NetFnApp
	frame.Cmd = wire.CmdGetDeviceID

	line := codec.Encode(frame)
	frames, _ := collectFrames(t, codec.NewDecoder(testLogger()), line)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if len(frames[0].Data) != 0 {
		t.Errorf("payload: got % x, want empty", frames[0].Data)
	}
}

func TestTerminalModeToleratesSloppySpacing(t *testing.T) {
	t.Parallel()
	codec, _ := Lookup("TerminalMode")
	// Same frame as Encode would produce, but with doubled spaces
	// and text outside the brackets.
	line := []byte("ignored [2A  24   11 00 10  00 20] trailing")

	frames, _ := collectFrames(t, codec.NewDecoder(testLogger()), line)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	got := frames[0]
	if got.NetFn != wire.NetFnStorage || got.Cmd != wire.CmdReadFRUData || got.Seq != 9 {
		t.Errorf("header: got netfn=%#02x cmd=%#02x seq=%d", uint8(got.NetFn), got.Cmd, got.Seq)
	}
	if !bytes.Equal(got.Data, []byte{0x00, 0x10, 0x00, 0x20}) {
		t.Errorf("payload: got % x", got.Data)
	}
}

func TestTerminalModeDropsShortFrame(t *testing.T) {
	t.Parallel()
	codec, _ := Lookup("TerminalMode")
	frames, _ := collectFrames(t, codec.NewDecoder(testLogger()), []byte("[2A24]"))
	if len(frames) != 0 {
		t.Errorf("short frame emitted: %+v", frames)
	}
}

func TestTerminalModeDropsOversizedFrame(t *testing.T) {
	t.Parallel()
	codec, _ := Lookup("TerminalMode")
	line := []byte{'['}
	for i := 0; i < maxLineSize+16; i++ {
		line = append(line, 'A')
	}
	line = append(line, ']')
	// A valid frame afterwards still decodes.
	line = append(line, codec.Encode(sampleFrame([]byte{0x01}))...)

	frames, _ := collectFrames(t, codec.NewDecoder(testLogger()), line)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want only the valid one", len(frames))
	}
}

func TestRadisysRoundTrip(t *testing.T) {
	t.Parallel()
	codec, _ := Lookup("RadisysAscii")
	frame := sampleFrame([]byte{0x00, 0x04, 0x00, 0x08})

	line := codec.Encode(frame)
	frames, _ := collectFrames(t, codec.NewDecoder(testLogger()), line)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	got := frames[0]
	if got.NetFn != frame.NetFn || got.Cmd != frame.Cmd || got.Seq != frame.Seq {
		t.Errorf("header mismatch: %+v", got)
	}
	if !bytes.Equal(got.Data, frame.Data) {
		t.Errorf("payload: got % x, want % x", got.Data, frame.Data)
	}
}

func TestRadisysDropsBadHex(t *testing.T) {
	t.Parallel()
	codec, _ := Lookup("RadisysAscii")
	frames, _ := collectFrames(t, codec.NewDecoder(testLogger()), []byte("20ZZ11\r"))
	if len(frames) != 0 {
		t.Errorf("bad hex emitted a frame: %+v", frames)
	}
}

func TestRadisysDropsBadChecksum(t *testing.T) {
	t.Parallel()
	codec, _ := Lookup("RadisysAscii")
	line := codec.Encode(sampleFrame([]byte{0x01}))
	// Corrupt one hex digit of the body.
	if line[8] == '0' {
		line[8] = '1'
	} else {
		line[8] = '0'
	}
	frames, _ := collectFrames(t, codec.NewDecoder(testLogger()), line)
	if len(frames) != 0 {
		t.Errorf("corrupt frame emitted: %+v", frames)
	}
}

func TestRadisysBlankLinesIgnored(t *testing.T) {
	t.Parallel()
	codec, _ := Lookup("RadisysAscii")
	var line []byte
	line = append(line, '\r', '\r')
	line = append(line, codec.Encode(sampleFrame([]byte{0x01}))...)
	line = append(line, '\r')

	frames, _ := collectFrames(t, codec.NewDecoder(testLogger()), line)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
}

func TestEncodersStayWithinLineBudget(t *testing.T) {
	t.Parallel()
	payload := make([]byte, maxFrameSize)
	for _, codec := range codecs {
		line := codec.Encode(sampleFrame(payload))
		if len(line) > maxLineSize+7*3 {
			t.Errorf("%s: %d-byte payload encodes to %d line bytes", codec.Name(), len(payload), len(line))
		}
	}
}
