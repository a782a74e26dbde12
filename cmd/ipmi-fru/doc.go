// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Ipmi-fru reads FRU inventories from the devices listed in a config
// file and prints what it found as a table or JSON, optionally
// archiving each raw image as a snapshot file.
//
// The BMC is reached either in process (--mock builds a simulated BMC
// from the config's simulation fields) or over a serial line
// (--serial /dev/ttyS1 --codec Direct). Startup probes the BMC with
// Get Device ID under exponential back-off, since BMCs routinely come
// up slower than the host that talks to them.
//
//	ipmi-fru --config devices.yaml --mock
//	ipmi-fru --config devices.yaml --serial /dev/ttyS1 --codec TerminalMode --json
//	ipmi-fru --config devices.yaml --mock --snapshot-dir /var/lib/fru
package main
