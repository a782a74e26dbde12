// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

// ErrDigestMismatch reports a snapshot whose image does not hash to
// its recorded digest: the file was corrupted or edited.
var ErrDigestMismatch = errors.New("snapshot: image digest mismatch")

// encMode is the CBOR encoder configured with Core Deterministic
// Encoding (RFC 8949 §4.2): sorted map keys, smallest integer
// encoding, no indefinite-length items.
var encMode cbor.EncMode

// decMode accepts standard CBOR, ignoring unknown fields for forward
// compatibility.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("snapshot: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("snapshot: CBOR decoder initialization failed: " + err.Error())
	}
}

// Addressing records where an image came from.
type Addressing struct {
	Channel       uint8 `cbor:"channel"`
	DeviceAddress uint8 `cbor:"device_address"`
	DeviceID      uint8 `cbor:"device_id"`
	LUN           uint8 `cbor:"lun"`
}

// Snapshot is one captured FRU inventory image.
type Snapshot struct {
	// Name is the FRU's printable name at capture time.
	Name string `cbor:"name"`

	// Device is the addressing the image was read through.
	Device Addressing `cbor:"device"`

	// CapturedAt is the capture timestamp, UTC.
	CapturedAt time.Time `cbor:"captured_at"`

	// AccessByWords records the device's addressing mode, needed to
	// write the image back faithfully.
	AccessByWords bool `cbor:"access_by_words"`

	// Data is the raw inventory image.
	Data []byte `cbor:"data"`

	// Digest is the BLAKE3-256 sum of Data.
	Digest [32]byte `cbor:"digest"`
}

// New builds a snapshot of image, stamping the digest and the capture
// time.
func New(name string, device Addressing, accessByWords bool, image []byte) Snapshot {
	data := make([]byte, len(image))
	copy(data, image)
	return Snapshot{
		Name:          name,
		Device:        device,
		CapturedAt:    time.Now().UTC(),
		AccessByWords: accessByWords,
		Data:          data,
		Digest:        blake3.Sum256(data),
	}
}

// Save writes the snapshot to path, mode 0644.
func (s Snapshot) Save(path string) error {
	encoded, err := encMode.Marshal(s)
	if err != nil {
		return fmt.Errorf("snapshot: encoding %s: %w", s.Name, err)
	}
	if err := os.WriteFile(path, encoded, 0644); err != nil {
		return fmt.Errorf("snapshot: writing %s: %w", path, err)
	}
	return nil
}

// Load reads a snapshot from path and verifies the image against its
// recorded digest.
func Load(path string) (Snapshot, error) {
	encoded, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: reading %s: %w", path, err)
	}
	var s Snapshot
	if err := decMode.Unmarshal(encoded, &s); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: decoding %s: %w", path, err)
	}
	if blake3.Sum256(s.Data) != s.Digest {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrDigestMismatch, path)
	}
	return s, nil
}

// Span is a contiguous byte range that differs between two images —
// the same shape the FRU write engine's update records use, so a diff
// can drive a targeted write-back.
type Span struct {
	Offset int
	Length int
}

// Diff returns the spans where after differs from before, in ascending
// offset order. Equal images produce no spans. If the images differ in
// length, the tail of the longer one is a single span.
func Diff(before, after []byte) []Span {
	shorter := len(before)
	if len(after) < shorter {
		shorter = len(after)
	}

	var spans []Span
	start := -1
	for i := 0; i < shorter; i++ {
		if before[i] != after[i] {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			spans = append(spans, Span{Offset: start, Length: i - start})
			start = -1
		}
	}
	if start >= 0 {
		spans = append(spans, Span{Offset: start, Length: shorter - start})
	}

	longer := len(before)
	if len(after) > longer {
		longer = len(after)
	}
	if longer > shorter {
		if len(spans) > 0 && spans[len(spans)-1].Offset+spans[len(spans)-1].Length == shorter {
			spans[len(spans)-1].Length += longer - shorter
		} else {
			spans = append(spans, Span{Offset: shorter, Length: longer - shorter})
		}
	}
	return spans
}
