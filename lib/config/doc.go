// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the device inventory configuration used by the
// ipmi-fru and ipmi-bmc-mock binaries.
//
// Configuration comes from a single file passed explicitly with
// --config. There are no fallbacks or automatic discovery; what the
// flag names is what runs. The file is YAML: a domain name and a list
// of FRU device entries. Client-side fields describe how to address a
// device; the mock additionally reads the simulation fields (image
// file, size, quirks).
package config
