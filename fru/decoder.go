// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fru

import "sync"

// Decoder recognizes and interprets a raw inventory image. Decode is
// called with the FRU lock held, immediately after a successful fetch;
// the raw image is available through Data. A decoder that accepts the
// format stores its result with SetRecData, installs its operations
// with SetOps, and returns nil. A decoder that does not recognize the
// format returns any non-nil error and the next one is tried.
type Decoder interface {
	Decode(f *FRU) error
}

// Ops is the operation set a successful decoder installs on the FRU.
// Write and WriteComplete are called with the FRU lock held;
// CleanupRecords runs after the lock is released at final teardown.
type Ops interface {
	// Write serializes the decoder's current logical state into the
	// FRU's fresh zero-filled buffer (via Data) and queues an update
	// record for every span that must reach the device (via
	// AddUpdateRecord). Queueing nothing means nothing changed.
	Write(f *FRU) error

	// WriteComplete runs after every queued span has been flushed,
	// so the decoder can clear its dirty state.
	WriteComplete(f *FRU)

	// CleanupRecords releases decoder state at final teardown.
	CleanupRecords(f *FRU)
}

// decoderRegistry is the process-wide ordered decoder list. Order is
// registration order; dispatch stops at the first decoder that
// accepts.
var decoderRegistry struct {
	mu   sync.Mutex
	list []Decoder
}

// RegisterDecoder appends a decoder to the process-wide registry.
func RegisterDecoder(d Decoder) {
	decoderRegistry.mu.Lock()
	defer decoderRegistry.mu.Unlock()
	decoderRegistry.list = append(decoderRegistry.list, d)
}

// DeregisterDecoder removes a previously registered decoder, compared
// by identity. Returns ErrDecoderNotRegistered if it is not present.
func DeregisterDecoder(d Decoder) error {
	decoderRegistry.mu.Lock()
	defer decoderRegistry.mu.Unlock()
	for i, registered := range decoderRegistry.list {
		if registered == d {
			decoderRegistry.list = append(decoderRegistry.list[:i], decoderRegistry.list[i+1:]...)
			return nil
		}
	}
	return ErrDecoderNotRegistered
}

// ShutdownDecoders empties the registry. Process shutdown hook; also
// used by tests to isolate registrations.
func ShutdownDecoders() {
	decoderRegistry.mu.Lock()
	defer decoderRegistry.mu.Unlock()
	decoderRegistry.list = nil
}

// dispatchDecoders offers the fetched image to each decoder in
// registration order. The first success wins; if every decoder
// declines, the format is unsupported. Called with the FRU lock held.
func dispatchDecoders(f *FRU) error {
	decoderRegistry.mu.Lock()
	candidates := make([]Decoder, len(decoderRegistry.list))
	copy(candidates, decoderRegistry.list)
	decoderRegistry.mu.Unlock()

	for _, d := range candidates {
		if err := d.Decode(f); err == nil {
			return nil
		}
	}
	return ErrUnsupported
}
