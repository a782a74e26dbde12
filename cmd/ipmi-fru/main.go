// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/ipmi/domain"
	"github.com/bureau-foundation/ipmi/fru"
	"github.com/bureau-foundation/ipmi/lib/config"
	"github.com/bureau-foundation/ipmi/lib/version"
	"github.com/bureau-foundation/ipmi/serial"
	"github.com/bureau-foundation/ipmi/sim"
	"github.com/bureau-foundation/ipmi/snapshot"
	"github.com/bureau-foundation/ipmi/wire"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ipmi-fru: %v\n", err)
		os.Exit(1)
	}
}

type params struct {
	configPath  string
	mock        bool
	serialPath  string
	baud        int
	codecName   string
	jsonOutput  bool
	snapshotDir string
	showVersion bool
}

func run() error {
	var p params
	pflag.StringVar(&p.configPath, "config", "", "device inventory file (required)")
	pflag.BoolVar(&p.mock, "mock", false, "use an in-process simulated BMC")
	pflag.StringVar(&p.serialPath, "serial", "", "serial device to reach the BMC through")
	pflag.IntVar(&p.baud, "baud", 115200, "serial line speed")
	pflag.StringVar(&p.codecName, "codec", "Direct", "serial codec (TerminalMode, Direct, RadisysAscii)")
	pflag.BoolVar(&p.jsonOutput, "json", false, "emit JSON instead of a table")
	pflag.StringVar(&p.snapshotDir, "snapshot-dir", "", "archive each raw image into this directory")
	pflag.BoolVar(&p.showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if p.showVersion {
		fmt.Println("ipmi-fru " + version.Info())
		return nil
	}
	if p.configPath == "" {
		return fmt.Errorf("--config is required")
	}
	if p.mock == (p.serialPath != "") {
		return fmt.Errorf("exactly one of --mock and --serial must be given")
	}

	cfg, err := config.Load(p.configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	transport, closeTransport, err := buildTransport(p, cfg, logger)
	if err != nil {
		return err
	}
	defer closeTransport()

	d := domain.New(cfg.Domain, transport, logger)
	defer d.Close()

	if err := probeBMC(d, cfg.Devices[0], logger); err != nil {
		return fmt.Errorf("probing BMC: %w", err)
	}

	decoder := &rawImageDecoder{}
	fru.RegisterDecoder(decoder)
	defer fru.DeregisterDecoder(decoder)

	results := fetchAll(d, cfg.Devices)

	if p.snapshotDir != "" {
		if err := saveSnapshots(p.snapshotDir, results); err != nil {
			return err
		}
	}

	if p.jsonOutput {
		return printJSON(os.Stdout, results)
	}
	printTable(os.Stdout, results)
	return nil
}

// buildTransport returns the configured transport and its cleanup.
func buildTransport(p params, cfg *config.Config, logger *slog.Logger) (domain.Transport, func(), error) {
	if p.mock {
		bmc := sim.New(sim.DeviceID{ManufacturerID: 0xbeef, ProductID: 1})
		for _, device := range cfg.Devices {
			simDevice, err := buildSimDevice(device)
			if err != nil {
				return nil, nil, err
			}
			addr := wire.IPMB{Channel: device.Channel, Slave: device.Address, LUN: device.LUN}
			bmc.AddDevice(addr, simDevice)
		}
		return bmc, func() {}, nil
	}

	codec, ok := serial.Lookup(p.codecName)
	if !ok {
		return nil, nil, fmt.Errorf("unknown codec %q (have %v)", p.codecName, serial.Names())
	}
	port, err := serial.OpenPort(p.serialPath, p.baud)
	if err != nil {
		return nil, nil, err
	}
	transport := serial.NewTransport(port, codec, serial.TransportConfig{Logger: logger})
	cleanup := func() {
		transport.Close()
		port.Close()
	}
	return transport, cleanup, nil
}

// buildSimDevice maps a config entry onto a simulated FRU device.
func buildSimDevice(device config.Device) (*sim.Device, error) {
	image := make([]byte, device.Size)
	if device.Image != "" {
		loaded, err := os.ReadFile(device.Image)
		if err != nil {
			return nil, fmt.Errorf("loading image for %q: %w", device.Name, err)
		}
		image = loaded
	}
	return sim.NewFRUDevice(sim.FRUConfig{
		Image:         image,
		AccessByWords: device.AccessByWords,
		MaxTransfer:   device.MaxTransfer,
		BusyWrites:    device.BusyWrites,
	}), nil
}

// probeBMC waits for the BMC to answer Get Device ID, retrying with
// exponential back-off. BMCs are regularly still booting when the
// host is up.
func probeBMC(d *domain.Domain, first config.Device, logger *slog.Logger) error {
	addr := wire.IPMB{Channel: first.Channel, Slave: first.Address, LUN: first.LUN}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 15 * time.Second

	return backoff.Retry(func() error {
		responses := make(chan wire.Response, 1)
		err := d.Send(addr, wire.Message{NetFn: wire.NetFnApp, Cmd: wire.CmdGetDeviceID},
			func(_ wire.Address, response wire.Response) { responses <- response })
		if err != nil {
			return err
		}
		select {
		case response := <-responses:
			id, err := sim.ParseDeviceID(response)
			if err != nil {
				return err
			}
			logger.Info("BMC answered",
				"manufacturer", fmt.Sprintf("%#x", id.ManufacturerID),
				"product", id.ProductID,
				"firmware", fmt.Sprintf("%d.%d", id.FirmwareMajor, id.FirmwareMinor))
			return nil
		case <-time.After(5 * time.Second):
			return fmt.Errorf("no Get Device ID response")
		}
	}, policy)
}

// deviceResult is the outcome of one device's fetch.
type deviceResult struct {
	device config.Device
	f      *fru.FRU
	image  []byte
	err    error
}

// fetchAll starts every fetch and waits for the completions.
func fetchAll(d *domain.Domain, devices []config.Device) []deviceResult {
	results := make([]deviceResult, len(devices))
	var wg sync.WaitGroup
	for i, device := range devices {
		results[i].device = device

		if device.Physical {
			// The engine keeps physical access unimplemented; the
			// config entry still surfaces as an explicit failure.
			_, err := fru.Alloc(d, false, device.Address, device.DeviceID,
				device.LUN, device.PrivateBus, device.Channel, nil)
			results[i].err = err
			continue
		}

		wg.Add(1)
		i := i
		f, err := fru.Alloc(d, true, device.Address, device.DeviceID,
			device.LUN, device.PrivateBus, device.Channel,
			func(f *fru.FRU, err error) {
				results[i].err = err
				if err == nil {
					results[i].image, _ = f.RecData().([]byte)
				}
				wg.Done()
			})
		if err != nil {
			results[i].err = err
			wg.Done()
			continue
		}
		results[i].f = f
	}
	wg.Wait()
	return results
}

// saveSnapshots archives every successful image.
func saveSnapshots(dir string, results []deviceResult) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	for _, result := range results {
		if result.err != nil || result.f == nil {
			continue
		}
		snap := snapshot.New(result.f.Name(), snapshot.Addressing{
			Channel:       result.device.Channel,
			DeviceAddress: result.device.Address,
			DeviceID:      result.device.DeviceID,
			LUN:           result.device.LUN,
		}, result.f.AccessByWords(), result.image)
		path := filepath.Join(dir, result.device.Name+".fru")
		if err := snap.Save(path); err != nil {
			return err
		}
	}
	return nil
}

func accessLabel(result deviceResult) string {
	if result.f == nil {
		return ""
	}
	if result.f.AccessByWords() {
		return "word"
	}
	return "byte"
}

func statusLabel(result deviceResult) string {
	if result.err != nil {
		return result.err.Error()
	}
	return "ok"
}
