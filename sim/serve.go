// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sim

import (
	"errors"
	"io"
	"log/slog"

	"github.com/bureau-foundation/ipmi/serial"
	"github.com/bureau-foundation/ipmi/wire"
)

// ServeSerial runs the BMC side of a serial line: decode request
// frames through the codec, handle each command, and write the framed
// response back. Blocks until the line reports an error; io.EOF (the
// peer hung up) returns nil.
func ServeSerial(line io.ReadWriter, codec serial.Codec, bmc *BMC, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	decoder := codec.NewDecoder(logger)

	emit := func(frame wire.IPMBFrame) {
		addr := wire.IPMB{Slave: frame.ResponderAddr, LUN: frame.ResponderLUN}
		msg := wire.Message{NetFn: frame.NetFn, Cmd: frame.Cmd, Data: frame.Data}
		response := bmc.Handle(addr, msg)

		out := wire.IPMBFrame{
			ResponderAddr: frame.RequesterAddr,
			ResponderLUN:  frame.RequesterLUN,
			RequesterAddr: frame.ResponderAddr,
			RequesterLUN:  frame.ResponderLUN,
			Seq:           frame.Seq,
			NetFn:         frame.NetFn.Response(),
			Cmd:           frame.Cmd,
			Data:          response.Data,
		}
		if _, err := line.Write(codec.Encode(out)); err != nil {
			logger.Warn("writing response frame", "err", err)
		}
	}

	buffer := make([]byte, 4096)
	for {
		n, err := line.Read(buffer)
		if n > 0 {
			if ack := decoder.Feed(buffer[:n], emit); len(ack) > 0 {
				if _, err := line.Write(ack); err != nil {
					logger.Warn("writing link acknowledgement", "err", err)
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
