// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/ipmi/lib/config"
	"github.com/bureau-foundation/ipmi/lib/version"
	"github.com/bureau-foundation/ipmi/serial"
	"github.com/bureau-foundation/ipmi/sim"
	"github.com/bureau-foundation/ipmi/wire"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ipmi-bmc-mock: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		codecName   string
		listenPath  string
		showVersion bool
	)
	pflag.StringVar(&configPath, "config", "", "device inventory file (required)")
	pflag.StringVar(&codecName, "codec", "Direct", "serial codec (TerminalMode, Direct, RadisysAscii)")
	pflag.StringVar(&listenPath, "listen", "", "serve on this unix socket instead of stdio")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		fmt.Println("ipmi-bmc-mock " + version.Info())
		return nil
	}
	if configPath == "" {
		return fmt.Errorf("--config is required")
	}
	codec, ok := serial.Lookup(codecName)
	if !ok {
		return fmt.Errorf("unknown codec %q (have %v)", codecName, serial.Names())
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	bmc, err := buildBMC(cfg, logger)
	if err != nil {
		return err
	}

	if listenPath == "" {
		logger.Info("serving on stdio", "codec", codec.Name())
		return sim.ServeSerial(stdio{}, codec, bmc, logger)
	}
	return serveSocket(listenPath, codec, bmc, logger)
}

// buildBMC assembles the simulated devices. The line protocol carries
// only the slave address and LUN, so every device lands on channel 0.
func buildBMC(cfg *config.Config, logger *slog.Logger) (*sim.BMC, error) {
	bmc := sim.New(sim.DeviceID{ManufacturerID: 0xbeef, ProductID: 1, FirmwareMajor: 0, FirmwareMinor: 1})
	for _, device := range cfg.Devices {
		image := make([]byte, device.Size)
		if device.Image != "" {
			loaded, err := os.ReadFile(device.Image)
			if err != nil {
				return nil, fmt.Errorf("loading image for %q: %w", device.Name, err)
			}
			image = loaded
		}
		if device.Channel != 0 {
			logger.Warn("serial lines have no channels; serving on channel 0",
				"device", device.Name, "configured_channel", device.Channel)
		}
		addr := wire.IPMB{Channel: 0, Slave: device.Address, LUN: device.LUN}
		bmc.AddDevice(addr, sim.NewFRUDevice(sim.FRUConfig{
			Image:         image,
			AccessByWords: device.AccessByWords,
			MaxTransfer:   device.MaxTransfer,
			BusyWrites:    device.BusyWrites,
		}))
		logger.Info("device attached", "name", device.Name, "addr", addr.String(), "bytes", len(image))
	}
	return bmc, nil
}

// serveSocket accepts connections one at a time; each gets a fresh
// codec decoder through ServeSerial.
func serveSocket(path string, codec serial.Codec, bmc *sim.BMC, logger *slog.Logger) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", path, err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", path, err)
	}
	defer listener.Close()
	logger.Info("serving", "socket", path, "codec", codec.Name())

	for {
		conn, err := listener.Accept()
		if err != nil {
			return fmt.Errorf("accepting: %w", err)
		}
		if err := sim.ServeSerial(conn, codec, bmc, logger); err != nil {
			logger.Warn("connection ended", "err", err)
		}
		conn.Close()
	}
}

// stdio glues stdin and stdout into one line.
type stdio struct{}

func (stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

var _ io.ReadWriter = stdio{}
