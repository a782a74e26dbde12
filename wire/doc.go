// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the IPMI message-level vocabulary shared by the
// rest of the module: network function and command constants, completion
// codes and their error mapping, IPMB addressing, the little-endian
// helpers used for on-wire offsets and sizes, and IPMB request/response
// framing with its additive checksum.
//
// The package is deliberately transport-agnostic. It describes what an
// IPMI message looks like, not how it travels; delivery belongs to the
// domain's Transport and to the serial codecs.
package wire
