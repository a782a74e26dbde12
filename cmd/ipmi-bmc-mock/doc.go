// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Ipmi-bmc-mock serves a simulated BMC over a serial codec, for
// integration tests and for exercising ipmi-fru without hardware. The
// simulated devices come from the same config file the client reads,
// using the simulation fields (image, size, quirks).
//
// By default the mock speaks on stdin/stdout, which composes with
// socat-style plumbing; --listen serves one connection at a time on a
// unix socket instead.
//
//	ipmi-bmc-mock --config devices.yaml --codec Direct
//	ipmi-bmc-mock --config devices.yaml --codec RadisysAscii --listen /tmp/bmc.sock
//
// Serial lines carry no channel number, so devices are reachable at
// channel 0 regardless of the channel their config entry names.
package main
