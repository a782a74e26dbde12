// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fru reads and writes FRU (Field Replaceable Unit) inventory
// storage on IPMI-addressable devices.
//
// A FRU is allocated against a domain and immediately begins fetching
// its inventory: first the declared area size and access mode, then the
// data itself in adaptive chunks. The raw image is held in memory only
// while format decoders interpret it; registered decoders are consulted
// in order and the first to accept the buffer installs its operations
// on the object. Writing streams decoder-supplied dirty regions back to
// the device in coalesced 16-byte commands with bounded busy retry.
//
// FRU objects are reference counted and lockable. Tracked objects live
// in a per-domain registry so they can be iterated and survive the
// races between an iterator, an in-flight response handler, a user
// destroy request, and domain teardown. Operations never block on IPMI
// I/O: they post a command and complete later through a callback on a
// transport goroutine.
package fru
