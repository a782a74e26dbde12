// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root of a device inventory file.
type Config struct {
	// Domain names the management domain; FRU names are derived
	// from it. Defaults to "ipmi".
	Domain string `yaml:"domain"`

	// Devices lists the FRU devices to read (client) or simulate
	// (mock).
	Devices []Device `yaml:"devices"`
}

// Device is one FRU device entry.
type Device struct {
	// Name labels the device in output. Required.
	Name string `yaml:"name"`

	// Address is the 7-bit IPMB slave address. Required.
	Address uint8 `yaml:"address"`

	// Channel, DeviceID, LUN, and PrivateBus complete the
	// addressing; all default to zero.
	Channel    uint8 `yaml:"channel"`
	DeviceID   uint8 `yaml:"device_id"`
	LUN        uint8 `yaml:"lun"`
	PrivateBus uint8 `yaml:"private_bus"`

	// Physical selects physical (non-logical) FRU access. The
	// engine reports it as not implemented; the option exists so a
	// config written for a future engine fails loudly, not
	// silently.
	Physical bool `yaml:"physical"`

	// Simulation fields, read only by the mock.

	// Image is a file whose bytes seed the simulated inventory.
	Image string `yaml:"image"`

	// Size zero-fills the simulated inventory to this many bytes
	// when no image file is given.
	Size int `yaml:"size"`

	// AccessByWords simulates a 16-bit word-addressed device.
	AccessByWords bool `yaml:"access_by_words"`

	// MaxTransfer caps single-read sizes on the simulated device.
	MaxTransfer int `yaml:"max_transfer"`

	// BusyWrites makes the simulated device answer that many
	// initial writes with device-busy.
	BusyWrites int `yaml:"busy_writes"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if cfg.Domain == "" {
		cfg.Domain = "ipmi"
	}
	if len(cfg.Devices) == 0 {
		return nil, fmt.Errorf("config: %s lists no devices", path)
	}

	seen := make(map[string]bool, len(cfg.Devices))
	for i, device := range cfg.Devices {
		if device.Name == "" {
			return nil, fmt.Errorf("config: device %d has no name", i)
		}
		if seen[device.Name] {
			return nil, fmt.Errorf("config: duplicate device name %q", device.Name)
		}
		seen[device.Name] = true
		if device.Address == 0 {
			return nil, fmt.Errorf("config: device %q has no address", device.Name)
		}
		if device.Address > 0x7f {
			return nil, fmt.Errorf("config: device %q address %#x exceeds 7 bits", device.Name, device.Address)
		}
		if device.LUN > 3 {
			return nil, fmt.Errorf("config: device %q lun %d exceeds 2 bits", device.Name, device.LUN)
		}
		if device.Image != "" && device.Size != 0 {
			return nil, fmt.Errorf("config: device %q sets both image and size", device.Name)
		}
	}
	return &cfg, nil
}
