// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fru

import (
	"github.com/bureau-foundation/ipmi/wire"
)

// updateRecord is one span of the image awaiting flush. The queue is
// append-at-tail, consume-at-head; streaming splits the head record in
// place when a command boundary lands inside it.
type updateRecord struct {
	offset int
	length int
}

// AddUpdateRecord queues a span for the next flush. Decoders call it
// from their Write hook (the FRU lock is already held there).
//
// On a word-access device byte alignment is impossible, so the span is
// widened to word boundaries at insertion: an odd offset moves back
// one, an odd length grows by one.
func (f *FRU) AddUpdateRecord(offset, length int) {
	if f.wordShift != 0 {
		if offset&1 != 0 {
			offset--
			length++
		}
		if length&1 != 0 {
			length++
		}
	}
	f.updateRecs = append(f.updateRecs, updateRecord{offset: offset, length: length})
}

// Write flushes the FRU's modified regions back to the device. The
// object must be idle: a fetch or write already in flight fails with
// ErrBusy and no side effect. The heavy lifting happens on the domain
// worker; done runs once the flush finishes (or immediately after the
// decoder reports nothing changed).
//
// A write is never cancelled by Destroy: a half-written inventory is
// worse than a delayed callback.
func Write(f *FRU, done DomainFetchedHandler) error {
	f.mu.Lock()
	if f.inUse {
		f.mu.Unlock()
		return ErrBusy
	}
	f.inUse = true
	f.completion = domainFetchedFunc(done)
	f.refcount++ // the write operation's reference
	f.mu.Unlock()

	if err := f.dom.Run(f.startWrite); err != nil {
		f.mu.Lock()
		f.inUse = false
		f.refcount--
		f.mu.Unlock()
		return err
	}
	return nil
}

// startWrite runs on the domain worker. The entire image is rebuilt
// into a fresh buffer: word access means writes cannot always be
// byte-aligned, so a flushed span may need the byte before or after
// the one actually modified, possibly from a different logical field.
func (f *FRU) startWrite() {
	f.mu.Lock()

	if f.ops == nil {
		f.writeFailedLocked(ErrUnsupported)
		return
	}

	f.data = make([]byte, f.dataLen)
	if err := f.ops.Write(f); err != nil {
		f.writeFailedLocked(err)
		return
	}

	if len(f.updateRecs) == 0 {
		// Nothing changed; success with no IPMI traffic. The
		// decoder's dirty state is already clean, so the
		// write-complete hook is not invoked.
		f.data = nil
		f.inUse = false
		completion := f.completion
		f.mu.Unlock()
		if completion != nil {
			completion.complete(f.dom, f, nil)
		}
		f.put()
		return
	}

	if err := f.nextWriteLocked(f.address()); err != nil {
		f.writeFailedLocked(err)
		return
	}
	f.mu.Unlock()
}

// nextWriteLocked builds and posts the next Write FRU Data command.
// Starting at the head record's offset it consumes queued spans while
// they stay contiguous and the 16-byte command payload has room; a
// partially consumed head record advances in place. Caller holds the
// FRU lock.
func (f *FRU) nextWriteLocked(addr wire.Address) error {
	start := f.updateRecs[0].offset
	cursor := start
	room := maxDataWrite
	length := 0

	for len(f.updateRecs) > 0 && room > 0 && f.updateRecs[0].offset == cursor {
		head := &f.updateRecs[0]
		take := head.length
		if take > room {
			take = room
		}
		cursor += take
		length += take
		room -= take
		if take < head.length {
			head.offset += take
			head.length -= take
		} else {
			f.updateRecs = f.updateRecs[1:]
		}
	}

	f.retryCount = 0
	cmd := make([]byte, 3+length)
	cmd[0] = f.deviceID
	wire.PutUint16(cmd[1:3], uint16(start>>f.wordShift))
	copy(cmd[3:], f.data[start:start+length])
	f.lastCmd = cmd

	msg := wire.Message{NetFn: wire.NetFnStorage, Cmd: wire.CmdWriteFRUData, Data: cmd}
	return f.dom.Send(addr, msg, f.handleWrite)
}

// handleWrite consumes one Write FRU Data response. Deletion does not
// stop a write; only errors and queue exhaustion do.
func (f *FRU) handleWrite(addr wire.Address, response wire.Response) {
	f.mu.Lock()

	data := response.Data
	cc := response.Completion()

	if cc == wire.CompletionFRUDeviceBusy {
		if f.retryCount >= maxWriteRetries {
			f.logger.Error("FRU write retries exhausted", "retries", f.retryCount)
			f.writeCompleteLocked(wire.ErrorForCompletion(cc))
			return
		}
		// Re-send the saved command verbatim.
		f.retryCount++
		msg := wire.Message{NetFn: wire.NetFnStorage, Cmd: wire.CmdWriteFRUData, Data: f.lastCmd}
		if err := f.dom.Send(addr, msg, f.handleWrite); err != nil {
			f.writeCompleteLocked(err)
			return
		}
		f.mu.Unlock()
		return
	}
	if cc != wire.CompletionOK {
		f.logger.Error("IPMI error writing FRU data", "cc", cc)
		f.writeCompleteLocked(wire.ErrorForCompletion(cc))
		return
	}

	if len(data) < 2 {
		f.logger.Error("FRU write response too small", "len", len(data))
		f.writeCompleteLocked(ErrInvalidResponse)
		return
	}

	written := int(data[1]) << f.wordShift
	if sent := len(f.lastCmd) - 3; written != sent {
		// Incomplete write; carry on, but let someone know.
		f.logger.Warn("incomplete FRU data write", "written", written, "expected", sent)
	}

	if len(f.updateRecs) > 0 {
		if err := f.nextWriteLocked(addr); err != nil {
			f.writeCompleteLocked(err)
			return
		}
		f.mu.Unlock()
		return
	}

	f.writeCompleteLocked(nil)
}

// writeCompleteLocked finishes a write: on success the decoder clears
// its dirty state through the write-complete hook; the buffer is
// released, the user callback runs with the lock dropped, and the
// write's reference is put. Caller holds the FRU lock; released here.
func (f *FRU) writeCompleteLocked(err error) {
	if err == nil {
		f.ops.WriteComplete(f)
	}

	f.data = nil
	f.inUse = false
	completion := f.completion
	f.mu.Unlock()

	if completion != nil {
		completion.complete(f.dom, f, err)
	}

	f.put()
}

// writeFailedLocked abandons a write before streaming started: queued
// records are discarded so a later write starts clean. Caller holds
// the FRU lock; released here.
func (f *FRU) writeFailedLocked(err error) {
	f.updateRecs = nil
	f.writeCompleteLocked(err)
}
