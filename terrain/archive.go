// terrain/archive.go
// Copyright(c) 2025 jetsim contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package terrain

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Classified grids can be archived so that cities ship as small
// pre-classified files rather than full rasters. The archive format is
// msgpack-encoded rawArchive, compressed with zstd.

const ArchiveExtension = ".msgpack.zst"

type rawArchive struct {
	Width  int      `msgpack:"width"`
	Height int      `msgpack:"height"`
	Water  []uint64 `msgpack:"water"`
}

// Save writes the grid's classification to w.
func (g *Grid) Save(w io.Writer) error {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}

	raw := rawArchive{Width: g.Width, Height: g.Height, Water: g.water}
	if err := msgpack.NewEncoder(zw).Encode(raw); err != nil {
		zw.Close()
		return fmt.Errorf("failed to encode grid archive: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to close zstd writer: %w", err)
	}
	return nil
}

// LoadArchive reads a grid previously written by Save.
func LoadArchive(r io.Reader) (*Grid, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer zr.Close()

	var raw rawArchive
	if err := msgpack.NewDecoder(zr).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode grid archive: %w", err)
	}

	return makeGridFromBits(raw.Width, raw.Height, raw.Water)
}
