// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fru_test

import (
	"errors"
	"log/slog"
	"slices"
	"sync"
	"testing"

	"github.com/bureau-foundation/ipmi/domain"
	"github.com/bureau-foundation/ipmi/fru"
	"github.com/bureau-foundation/ipmi/wire"
)

// autoTransport answers every command by calling respond and delivering
// the result on a fresh goroutine, modelling the asynchronous dispatch
// of a real transport. It logs every sent message.
type autoTransport struct {
	respond func(msg wire.Message) wire.Response

	mu   sync.Mutex
	sent []wire.Message
}

func (tr *autoTransport) Send(addr wire.Address, msg wire.Message, handler domain.ResponseHandler) error {
	tr.mu.Lock()
	tr.sent = append(tr.sent, wire.Message{NetFn: msg.NetFn, Cmd: msg.Cmd, Data: slices.Clone(msg.Data)})
	tr.mu.Unlock()
	response := tr.respond(msg)
	go handler(addr, response)
	return nil
}

// sentCommands returns a snapshot of every message sent so far.
func (tr *autoTransport) sentCommands() []wire.Message {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return slices.Clone(tr.sent)
}

// sentWithCmd filters the sent log by command code.
func (tr *autoTransport) sentWithCmd(cmd uint8) []wire.Message {
	var out []wire.Message
	for _, msg := range tr.sentCommands() {
		if msg.Cmd == cmd {
			out = append(out, msg)
		}
	}
	return out
}

// heldSend is one command captured by a manualTransport, waiting for
// the test to deliver its response.
type heldSend struct {
	addr    wire.Address
	msg     wire.Message
	handler domain.ResponseHandler
}

// respond delivers a response for the held command.
func (s heldSend) respond(data ...byte) {
	s.handler(s.addr, wire.Response{Data: data})
}

// manualTransport parks every sent command on a channel so tests can
// interleave responses with other events (destroys, second writes).
type manualTransport struct {
	sends chan heldSend
}

func newManualTransport() *manualTransport {
	return &manualTransport{sends: make(chan heldSend, 64)}
}

func (tr *manualTransport) Send(addr wire.Address, msg wire.Message, handler domain.ResponseHandler) error {
	tr.sends <- heldSend{
		addr:    addr,
		msg:     wire.Message{NetFn: msg.NetFn, Cmd: msg.Cmd, Data: slices.Clone(msg.Data)},
		handler: handler,
	}
	return nil
}

// newTestDomain builds a domain named after the test with a quiet
// logger, closed at cleanup. The per-test name lets test decoders
// recognize their own FRUs in the process-wide decoder registry.
func newTestDomain(t *testing.T, tr domain.Transport) *domain.Domain {
	t.Helper()
	d := domain.New(t.Name(), tr, slog.New(slog.DiscardHandler))
	t.Cleanup(d.Close)
	return d
}

// fruDevice is a scripted FRU device behind an autoTransport.
type fruDevice struct {
	image []byte
	words bool

	// advertisedSize overrides the real image length in the area
	// info response when non-zero.
	advertisedSize int

	// refuseReads maps a requested byte count to the completion code
	// the device returns instead of serving it.
	refuseReads map[int]wire.Completion

	// failReadAt returns a non-OK completion for reads at or beyond
	// this byte offset when set (>= 0).
	failReadAt int
	failReadCC wire.Completion

	// maxServe caps how many bytes a single read returns when
	// non-zero, regardless of the requested count.
	maxServe int

	// busyWrites makes the first n writes answer FRU-device-busy.
	busyWrites int

	// ackShort understates every write acknowledgement by this many
	// bytes.
	ackShort int

	mu sync.Mutex
}

func newFRUDevice(image []byte, words bool) *fruDevice {
	return &fruDevice{image: image, words: words, failReadAt: -1}
}

func (dev *fruDevice) shift() uint {
	if dev.words {
		return 1
	}
	return 0
}

func (dev *fruDevice) respond(msg wire.Message) wire.Response {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	switch msg.Cmd {
	case wire.CmdGetFRUInventoryAreaInfo:
		size := len(dev.image)
		if dev.advertisedSize != 0 {
			size = dev.advertisedSize
		}
		flags := uint8(0)
		if dev.words {
			flags = 1
		}
		data := []byte{0, 0, 0, flags}
		wire.PutUint16(data[1:3], uint16(size))
		return wire.Response{Data: data}

	case wire.CmdReadFRUData:
		offset := int(wire.Uint16(msg.Data[1:3])) << dev.shift()
		count := int(msg.Data[3]) << dev.shift()
		if cc, ok := dev.refuseReads[count]; ok {
			return wire.SyntheticResponse(cc)
		}
		if dev.failReadAt >= 0 && offset >= dev.failReadAt {
			return wire.SyntheticResponse(dev.failReadCC)
		}
		if dev.maxServe != 0 && count > dev.maxServe {
			count = dev.maxServe
		}
		if offset+count > len(dev.image) {
			return wire.SyntheticResponse(wire.CompletionParameterOutOfRange)
		}
		data := make([]byte, 2+count)
		data[1] = uint8(count >> dev.shift())
		copy(data[2:], dev.image[offset:offset+count])
		return wire.Response{Data: data}

	case wire.CmdWriteFRUData:
		if dev.busyWrites > 0 {
			dev.busyWrites--
			return wire.SyntheticResponse(wire.CompletionFRUDeviceBusy)
		}
		offset := int(wire.Uint16(msg.Data[1:3])) << dev.shift()
		payload := msg.Data[3:]
		if offset+len(payload) > len(dev.image) {
			return wire.SyntheticResponse(wire.CompletionParameterOutOfRange)
		}
		copy(dev.image[offset:], payload)
		acked := len(payload) - dev.ackShort
		return wire.Response{Data: []byte{0, uint8(acked >> dev.shift())}}
	}
	return wire.SyntheticResponse(wire.CompletionInvalidCommand)
}

// fakeOps is a scripted decoder operation set for write tests.
type fakeOps struct {
	// image is the serialized logical state Write copies into the
	// FRU's buffer.
	image []byte

	// spans are the (offset, length) update records Write queues.
	spans [][2]int

	writeErr error

	mu                 sync.Mutex
	writeCalls         int
	writeCompleteCalls int
	cleanupCalls       int
}

func (o *fakeOps) Write(f *fru.FRU) error {
	o.mu.Lock()
	o.writeCalls++
	o.mu.Unlock()
	if o.writeErr != nil {
		return o.writeErr
	}
	copy(f.Data(), o.image)
	for _, span := range o.spans {
		f.AddUpdateRecord(span[0], span[1])
	}
	return nil
}

func (o *fakeOps) WriteComplete(*fru.FRU) {
	o.mu.Lock()
	o.writeCompleteCalls++
	o.mu.Unlock()
}

func (o *fakeOps) CleanupRecords(*fru.FRU) {
	o.mu.Lock()
	o.cleanupCalls++
	o.mu.Unlock()
}

func (o *fakeOps) counts() (writes, completes, cleanups int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.writeCalls, o.writeCompleteCalls, o.cleanupCalls
}

// fakeDecoder accepts only FRUs belonging to the named domain, records
// a copy of each image it decodes, and installs ops when present.
type fakeDecoder struct {
	domainName string
	ops        *fakeOps

	mu     sync.Mutex
	images [][]byte
}

var errNotMine = errors.New("not this decoder's format")

func (d *fakeDecoder) Decode(f *fru.FRU) error {
	if f.Domain().Name() != d.domainName {
		return errNotMine
	}
	d.mu.Lock()
	d.images = append(d.images, slices.Clone(f.Data()))
	d.mu.Unlock()
	f.SetRecData(d)
	f.SetNormalFRU(true)
	if d.ops != nil {
		f.SetOps(d.ops)
	}
	return nil
}

func (d *fakeDecoder) decodedImages() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.images)
}

// registerTestDecoder registers dec for the duration of the test.
func registerTestDecoder(t *testing.T, dec fru.Decoder) {
	t.Helper()
	fru.RegisterDecoder(dec)
	t.Cleanup(func() {
		if err := fru.DeregisterDecoder(dec); err != nil {
			t.Errorf("deregistering test decoder: %v", err)
		}
	})
}

// fetchResult couples the two completion callback arguments tests care
// about.
type fetchResult struct {
	f   *fru.FRU
	err error
}
