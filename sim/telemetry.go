// sim/telemetry.go
// Copyright(c) 2025 jetsim contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// TelemetryRecord is one tick's worth of fleet state, written after the
// tick's snapshot is published.
type TelemetryRecord struct {
	Tick      int64
	Time      time.Time
	Weather   Severity
	Agents    []AgentSnapshot
	Conflicts []Conflict
}

// TelemetrySink receives one record per tick. Implementations must not
// retain the record past the call; the Sim reuses nothing, but sinks
// that buffer should copy.
type TelemetrySink interface {
	Record(rec TelemetryRecord) error
	Close() error
}

// MsgpackSink streams records as zstd-compressed msgpack, the same
// framing the terrain archive uses.
type MsgpackSink struct {
	zw  *zstd.Encoder
	enc *msgpack.Encoder
	wc  io.WriteCloser
}

func NewMsgpackSink(w io.WriteCloser) (*MsgpackSink, error) {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	return &MsgpackSink{zw: zw, enc: msgpack.NewEncoder(zw), wc: w}, nil
}

func (s *MsgpackSink) Record(rec TelemetryRecord) error {
	return s.enc.Encode(rec)
}

func (s *MsgpackSink) Close() error {
	if err := s.zw.Close(); err != nil {
		s.wc.Close()
		return err
	}
	return s.wc.Close()
}

// ReadTelemetry decodes an entire stream written by MsgpackSink, mostly
// for tests and offline analysis.
func ReadTelemetry(r io.Reader) ([]TelemetryRecord, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var recs []TelemetryRecord
	dec := msgpack.NewDecoder(zr)
	for {
		var rec TelemetryRecord
		if err := dec.Decode(&rec); err == io.EOF {
			return recs, nil
		} else if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
}
