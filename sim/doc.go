// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sim provides an in-process simulated BMC for tests, mock
// deployments, and the ipmi-bmc-mock binary.
//
// A BMC routes commands by IPMB address to simulated devices. Each FRU
// device holds an inventory image and a set of quirks seen in real
// hardware: word addressing, advertising more space than it can serve,
// capping or refusing large transfers, silently dropping over-large
// responses, and answering writes with busy for a while. The BMC
// implements domain.Transport directly (responses delivered on fresh
// goroutines, as a real transport would) and also exposes a synchronous
// Handle for serving framed requests behind a serial codec.
package sim
