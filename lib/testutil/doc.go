// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for asynchronous
// completion testing.
//
// The IPMI engines in this module never block: an operation posts a
// command and finishes later on a transport goroutine, reporting
// through a callback. Tests bridge callbacks into channels, and
// [RequireReceive], [RequireClosed], and [RequireNoReceive] encapsulate
// the timeout safety valve pattern (select with a time.After fallback)
// so individual tests do not need direct time.After calls.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since a missed completion is not recoverable mid-test.
//
// This package has no module-internal dependencies.
package testutil
