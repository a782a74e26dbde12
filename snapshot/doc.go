// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package snapshot archives raw FRU inventory images to disk.
//
// A snapshot file is a CBOR document (Core Deterministic Encoding, so
// identical captures produce identical bytes) carrying the image, the
// addressing of the device it came from, the capture time, and a
// BLAKE3 digest of the image verified on load. Snapshots exist for
// fleet auditing: capture a board's inventory before and after a swap
// and Diff tells you exactly which bytes moved.
package snapshot
