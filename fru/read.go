// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fru

import (
	"github.com/bureau-foundation/ipmi/wire"
)

// startLogicalFetchLocked posts the Get FRU Inventory Area Info command
// that begins a fetch. Caller holds the FRU lock.
func (f *FRU) startLogicalFetchLocked() error {
	msg := wire.Message{
		NetFn: wire.NetFnStorage,
		Cmd:   wire.CmdGetFRUInventoryAreaInfo,
		Data:  []byte{f.deviceID},
	}
	return f.dom.Send(f.address(), msg, f.handleAreaInfo)
}

// startPhysicalFetchLocked would fetch a physically-addressed FRU.
// There is no physical-addressing protocol specified yet; the status
// must stay not-implemented until there is one.
func (f *FRU) startPhysicalFetchLocked() error {
	return ErrNotImplemented
}

// handleAreaInfo consumes the Get FRU Inventory Area Info response:
// capture the declared size and access mode, validate, allocate the
// image buffer, and start the data reads.
func (f *FRU) handleAreaInfo(addr wire.Address, response wire.Response) {
	f.mu.Lock()

	if f.deleted {
		f.fetchCompleteLocked(ErrCancelled)
		return
	}

	data := response.Data
	if cc := response.Completion(); cc != wire.CompletionOK {
		f.logger.Error("IPMI error getting FRU inventory area", "cc", cc)
		f.fetchCompleteLocked(wire.ErrorForCompletion(cc))
		return
	}
	if len(data) < 4 {
		f.logger.Error("FRU inventory area response too small", "len", len(data))
		f.fetchCompleteLocked(ErrInvalidResponse)
		return
	}

	f.dataLen = int(wire.Uint16(data[1:3]))
	f.wordShift = uint(data[3] & 1)

	if f.dataLen < minimumImageSize {
		f.logger.Error("FRU space less than the header", "size", f.dataLen)
		f.fetchCompleteLocked(ErrMessageSize)
		return
	}

	f.data = make([]byte, f.dataLen)

	if err := f.requestNextDataLocked(addr); err != nil {
		f.logger.Error("error requesting FRU data", "err", err)
		f.fetchCompleteLocked(err)
		return
	}
	f.mu.Unlock()
}

// requestNextDataLocked posts the Read FRU Data command for the bytes
// at the cursor. Only as much as remains is requested; always asking
// for the maximum upsets some devices. Caller holds the FRU lock.
func (f *FRU) requestNextDataLocked(addr wire.Address) error {
	toRead := f.dataLen - f.currPos
	if toRead > f.fetchSize {
		toRead = f.fetchSize
	}

	cmd := make([]byte, 4)
	cmd[0] = f.deviceID
	wire.PutUint16(cmd[1:3], uint16(f.currPos>>f.wordShift))
	cmd[3] = uint8(toRead >> f.wordShift)

	msg := wire.Message{NetFn: wire.NetFnStorage, Cmd: wire.CmdReadFRUData, Data: cmd}
	return f.dom.Send(addr, msg, f.handleData)
}

// backoffCompletion reports whether a Read FRU Data completion code
// should trigger the fetch-size back-off. Timeout and unknown-error are
// included because some broken devices return nothing at all when the
// response would be too big.
func backoffCompletion(cc wire.Completion) bool {
	switch cc {
	case wire.CompletionCannotReturnReqLength,
		wire.CompletionRequestedDataLengthExceed,
		wire.CompletionRequestDataLengthInvalid,
		wire.CompletionTimeout,
		wire.CompletionUnknownError:
		return true
	}
	return false
}

// handleData consumes one Read FRU Data response: back off on
// capability errors, tolerate truncation once the header is in hand,
// reject structural nonsense, append the payload, and either request
// the next chunk or complete.
func (f *FRU) handleData(addr wire.Address, response wire.Response) {
	f.mu.Lock()

	if f.deleted {
		f.fetchCompleteLocked(ErrCancelled)
		return
	}

	data := response.Data
	cc := response.Completion()

	if backoffCompletion(cc) && f.fetchSize > minDataFetch {
		// The device couldn't serve this size; shrink and re-issue
		// the same read without advancing the cursor.
		f.fetchSize -= dataFetchDecrement
		if err := f.requestNextDataLocked(addr); err != nil {
			f.logger.Error("error requesting FRU data after back-off", "err", err)
			f.fetchCompleteLocked(err)
			return
		}
		f.mu.Unlock()
		return
	}

	if cc != wire.CompletionOK {
		if f.currPos >= minimumImageSize {
			// Some cards advertise more space than they can serve.
			// With the header already retrieved, treat what we have
			// as the whole inventory.
			f.logger.Warn("IPMI error getting FRU data, truncating", "cc", cc, "size", f.currPos)
			f.dataLen = f.currPos
			f.data = f.data[:f.currPos]
			f.fetchCompleteLocked(nil)
			return
		}
		f.logger.Error("IPMI error getting FRU data", "cc", cc)
		f.fetchCompleteLocked(wire.ErrorForCompletion(cc))
		return
	}

	if len(data) < 2 {
		f.logger.Error("FRU data response too small", "len", len(data))
		f.fetchCompleteLocked(ErrInvalidResponse)
		return
	}

	count := int(data[1]) << f.wordShift
	if count == 0 {
		// A zero-byte chunk would loop forever.
		f.logger.Error("FRU returned zero-sized data")
		f.fetchCompleteLocked(ErrInvalidResponse)
		return
	}
	if count > len(data)-2 {
		f.logger.Error("FRU data count mismatch", "count", count, "have", len(data)-2)
		f.fetchCompleteLocked(ErrInvalidResponse)
		return
	}
	if count > f.dataLen-f.currPos {
		// More bytes than the image has room for; the device and
		// its area info disagree.
		f.logger.Error("FRU data overruns declared size", "count", count, "remaining", f.dataLen-f.currPos)
		f.fetchCompleteLocked(ErrInvalidResponse)
		return
	}

	copy(f.data[f.currPos:], data[2:2+count])
	f.currPos += count

	if f.currPos < f.dataLen {
		if err := f.requestNextDataLocked(addr); err != nil {
			f.logger.Error("error requesting next FRU data", "err", err)
			f.fetchCompleteLocked(err)
			return
		}
		f.mu.Unlock()
		return
	}

	f.fetchCompleteLocked(nil)
}

// fetchCompleteLocked finishes a fetch: on success the decoder registry
// interprets the image, then the raw buffer is released, the user
// callback runs with the lock dropped, and the fetch's reference is
// put. Caller holds the FRU lock; it is released here.
func (f *FRU) fetchCompleteLocked(err error) {
	if err == nil {
		err = dispatchDecoders(f)
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
