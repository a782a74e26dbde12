// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package domain provides the management context that IPMI engines hang
// off: a named domain that allocates unique numbers, owns a refcounted
// attribute registry, runs deferred work on a single serialized worker,
// and submits commands through a pluggable Transport.
//
// A domain does not know what IPMI commands mean. Engines (the FRU
// engine, sensor scanners, ...) register attributes to store per-domain
// state and submit commands with response handlers; the transport calls
// the handlers back on its own goroutines.
package domain
