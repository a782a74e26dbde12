// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package serial

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/ipmi/domain"
	"github.com/bureau-foundation/ipmi/wire"
)

// ErrTransportClosed is returned by Send after the transport shuts
// down (Close, or a read error on the line).
var ErrTransportClosed = errors.New("serial: transport closed")

// DefaultResponseTimeout is how long a command waits for its response
// before the transport synthesizes a timeout completion.
const DefaultResponseTimeout = 2 * time.Second

// requesterAddr is the IPMB address the management side claims on the
// line (the conventional remote-console address).
const requesterAddr = 0x81

// Transport drives IPMB traffic over a serial line through a codec,
// implementing domain.Transport. Requests are matched to responses by
// the 6-bit IPMB sequence number; a response that never arrives is
// reported as a timeout completion so the engine's back-off paths see
// the same shape real transports produce.
type Transport struct {
	line    io.ReadWriter
	codec   Codec
	logger  *slog.Logger
	timeout time.Duration

	writeMu sync.Mutex // serializes line writes

	mu      sync.Mutex
	pending map[uint8]*pendingRequest
	nextSeq uint8
	closed  bool

	readerDone chan struct{}
}

type pendingRequest struct {
	addr    wire.Address
	handler domain.ResponseHandler
	timer   *time.Timer
}

// TransportConfig configures NewTransport. Zero values select the
// defaults.
type TransportConfig struct {
	// ResponseTimeout overrides DefaultResponseTimeout.
	ResponseTimeout time.Duration

	// Logger receives line-level diagnostics. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// NewTransport starts a transport on the given line. The reader
// goroutine runs until the line reports an error or Close is called.
func NewTransport(line io.ReadWriter, codec Codec, cfg TransportConfig) *Transport {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.ResponseTimeout
	if timeout == 0 {
		timeout = DefaultResponseTimeout
	}
	t := &Transport{
		line:       line,
		codec:      codec,
		logger:     logger.With("codec", codec.Name()),
		timeout:    timeout,
		pending:    make(map[uint8]*pendingRequest),
		readerDone: make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// Send implements domain.Transport.
func (t *Transport) Send(addr wire.Address, msg wire.Message, handler domain.ResponseHandler) error {
	key := addr.Key()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	seq, ok := t.allocSeqLocked()
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("serial: all %d sequence numbers in flight", 64)
	}
	request := &pendingRequest{addr: addr, handler: handler}
	request.timer = time.AfterFunc(t.timeout, func() { t.expire(seq) })
	t.pending[seq] = request
	t.mu.Unlock()

	frame := wire.IPMBFrame{
		ResponderAddr: key.Slave,
		ResponderLUN:  key.LUN,
		RequesterAddr: requesterAddr,
		Seq:           seq,
		NetFn:         msg.NetFn,
		Cmd:           msg.Cmd,
		Data:          msg.Data,
	}

	t.writeMu.Lock()
	_, err := t.line.Write(t.codec.Encode(frame))
	t.writeMu.Unlock()
	if err != nil {
		// The command never made it onto the line; the handler must
		// not fire.
		t.mu.Lock()
		if still, ok := t.pending[seq]; ok && still == request {
			delete(t.pending, seq)
			request.timer.Stop()
		}
		t.mu.Unlock()
		return fmt.Errorf("serial: writing command: %w", err)
	}
	return nil
}

// allocSeqLocked finds a free 6-bit sequence number.
func (t *Transport) allocSeqLocked() (uint8, bool) {
	for range 64 {
		seq := t.nextSeq
		t.nextSeq = (t.nextSeq + 1) & 0x3f
		if _, inFlight := t.pending[seq]; !inFlight {
			return seq, true
		}
	}
	return 0, false
}

// expire fires when a command's response never arrived.
func (t *Transport) expire(seq uint8) {
	t.mu.Lock()
	request, ok := t.pending[seq]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.pending, seq)
	t.mu.Unlock()

	t.logger.Warn("command timed out", "seq", seq)
	request.handler(request.addr, wire.SyntheticResponse(wire.CompletionTimeout))
}

func (t *Transport) readLoop() {
	defer close(t.readerDone)
	decoder := t.codec.NewDecoder(t.logger)
	buffer := make([]byte, 4096)
	for {
		n, err := t.line.Read(buffer)
		if n > 0 {
			ack := decoder.Feed(buffer[:n], t.handleFrame)
			if len(ack) > 0 {
				// Written off the read loop, so a peer that is itself
				// blocked writing to us cannot stall reading.
				go func() {
					t.writeMu.Lock()
					defer t.writeMu.Unlock()
					if _, err := t.line.Write(ack); err != nil {
						t.logger.Warn("writing link acknowledgement", "err", err)
					}
				}()
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.logger.Warn("serial read failed", "err", err)
			}
			t.shutdown()
			return
		}
	}
}

// handleFrame matches an incoming response to its pending request.
func (t *Transport) handleFrame(frame wire.IPMBFrame) {
	if !frame.NetFn.IsResponse() {
		t.logger.Warn("ignoring non-response frame", "netfn", uint8(frame.NetFn))
		return
	}

	t.mu.Lock()
	request, ok := t.pending[frame.Seq]
	if ok {
		delete(t.pending, frame.Seq)
		request.timer.Stop()
	}
	t.mu.Unlock()

	if !ok {
		t.logger.Warn("response with no pending request", "seq", frame.Seq)
		return
	}

	// Deliver on a fresh goroutine so a handler that takes engine
	// locks (and posts the next command from under them) can never
	// stall the read loop.
	data := make([]byte, len(frame.Data))
	copy(data, frame.Data)
	go request.handler(request.addr, wire.Response{Data: data})
}

// shutdown fails every pending request with a timeout completion and
// rejects future sends.
func (t *Transport) shutdown() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	orphans := make([]*pendingRequest, 0, len(t.pending))
	for seq, request := range t.pending {
		request.timer.Stop()
		orphans = append(orphans, request)
		delete(t.pending, seq)
	}
	t.mu.Unlock()

	for _, request := range orphans {
		go request.handler(request.addr, wire.SyntheticResponse(wire.CompletionTimeout))
	}
}

// Close stops accepting sends and fails everything in flight. The
// underlying line is not closed (the caller owns it), but closing the
// line is what unblocks the reader goroutine.
func (t *Transport) Close() {
	t.shutdown()
}
