// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/bureau-foundation/ipmi/fru"
)

// rawImageDecoder accepts every inventory and retains the raw bytes
// without interpreting them. Payload interpretation belongs to real
// format decoders; this tool only moves images around.
type rawImageDecoder struct{}

func (rawImageDecoder) Decode(f *fru.FRU) error {
	image := make([]byte, len(f.Data()))
	copy(image, f.Data())
	f.SetRecData(image)
	return nil
}

// printTable renders one row per configured device.
func printTable(w io.Writer, results []deviceResult) {
	table := tablewriter.NewTable(w)
	table.Header("NAME", "DEVICE", "BYTES", "ACCESS", "STATUS")
	for _, result := range results {
		device := fmt.Sprintf("%d.%#02x.%d", result.device.Channel, result.device.Address, result.device.LUN)
		bytes := ""
		if result.err == nil && result.f != nil {
			bytes = fmt.Sprintf("%d", result.f.DataLength())
		}
		table.Append(result.device.Name, device, bytes, accessLabel(result), statusLabel(result))
	}
	table.Render()
}

// resultJSON is the JSON shape of one device's outcome.
type resultJSON struct {
	Name          string `json:"name"`
	Channel       uint8  `json:"channel"`
	Address       uint8  `json:"address"`
	DeviceID      uint8  `json:"device_id"`
	LUN           uint8  `json:"lun"`
	Bytes         int    `json:"bytes,omitempty"`
	AccessByWords bool   `json:"access_by_words,omitempty"`
	Error         string `json:"error,omitempty"`
}

func printJSON(w io.Writer, results []deviceResult) error {
	out := make([]resultJSON, 0, len(results))
	for _, result := range results {
		row := resultJSON{
			Name:     result.device.Name,
			Channel:  result.device.Channel,
			Address:  result.device.Address,
			DeviceID: result.device.DeviceID,
			LUN:      result.device.LUN,
		}
		if result.err != nil {
			row.Error = result.err.Error()
		} else if result.f != nil {
			row.Bytes = result.f.DataLength()
			row.AccessByWords = result.f.AccessByWords()
		}
		out = append(out, row)
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}
