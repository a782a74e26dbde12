// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package serial implements the serial-line IPMI codecs: Terminal
// Mode, Direct Mode, and Radisys ASCII. A codec turns IPMB frames into
// line bytes and back; it carries no I/O of its own, so the same codec
// serves a management client, the mock BMC, and tests feeding byte
// slices.
//
// Decoders are streaming and per-connection: bytes arrive in arbitrary
// chunks, frames are emitted as they complete, and malformed or
// oversized input drops the frame rather than the connection. Some
// codecs answer link-level acknowledgements (Direct Mode's handshake
// byte); Feed returns those for the caller to put on the line.
//
// OpenPort configures a Linux serial device for raw 8N1 operation.
package serial
