package codec

import (
	"bytes"
	"fmt"

	"github.com/ssargent/dsusage/pkg/stream"
	"github.com/ssargent/dsusage/pkg/transport"
)

// statsField is one entry of the wire layout. A field is on the wire only when
// the stream version is on or after every version in since.
type statsField struct {
	name  string
	since []transport.Version
	value func(*DataStreamStats) *uint64
}

func (f statsField) present(v transport.Version) bool {
	for _, threshold := range f.since {
		if v.Before(threshold) {
			return false
		}
	}
	return true
}

// statsFields is the wire layout, in wire order. Never reorder it.
var statsFields = []statsField{
	{
		name:  "total_data_stream_count",
		value: func(s *DataStreamStats) *uint64 { return &s.TotalDataStreamCount },
	},
	{
		name:  "indices_behind_data_stream",
		value: func(s *DataStreamStats) *uint64 { return &s.IndicesBehindDataStream },
	},
	{
		name:  "failure_store_explicitly_enabled_count",
		since: []transport.Version{transport.V8_15_0},
		value: func(s *DataStreamStats) *uint64 { return &s.FailureStoreExplicitlyEnabledCount },
	},
	{
		name:  "failure_store_effectively_enabled_count",
		since: []transport.Version{transport.V8_15_0, transport.FailureStoreEnabledByClusterSetting},
		value: func(s *DataStreamStats) *uint64 { return &s.FailureStoreEffectivelyEnabledCount },
	},
	{
		name:  "failure_store_indices_count",
		since: []transport.Version{transport.V8_15_0},
		value: func(s *DataStreamStats) *uint64 { return &s.FailureStoreIndicesCount },
	},
}

// StatsCodec reads and writes DataStreamStats on version aware streams
type StatsCodec struct{}

// NewStatsCodec creates a new stats codec instance
func NewStatsCodec() *StatsCodec {
	return &StatsCodec{}
}

// Encode writes the fields the stream's version knows about. Fields newer than
// the peer are left out; the peer decodes them as zero.
func (c *StatsCodec) Encode(w *stream.Writer, s DataStreamStats) error {
	for _, f := range statsFields {
		if !f.present(w.Version()) {
			continue
		}
		if err := w.WriteVLong(*f.value(&s)); err != nil {
			return fmt.Errorf("failed to encode %s: %w", f.name, err)
		}
	}
	return nil
}

// Decode reads stats written at the stream's version. Fields the version does
// not carry are zero. On error no partial stats are returned.
func (c *StatsCodec) Decode(r *stream.Reader) (DataStreamStats, error) {
	var s DataStreamStats
	for _, f := range statsFields {
		if !f.present(r.Version()) {
			continue
		}
		v, err := r.ReadVLong()
		if err != nil {
			return DataStreamStats{}, fmt.Errorf("failed to decode %s: %w", f.name, err)
		}
		*f.value(&s) = v
	}
	return s, nil
}

// Marshal encodes the stats for the given version into a new buffer
func (c *StatsCodec) Marshal(s DataStreamStats, version transport.Version) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Encode(stream.NewWriter(&buf, version), s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a buffer holding exactly one stats payload
func (c *StatsCodec) Unmarshal(data []byte, version transport.Version) (DataStreamStats, error) {
	r := stream.NewReader(bytes.NewReader(data), version)
	s, err := c.Decode(r)
	if err != nil {
		return DataStreamStats{}, err
	}
	if err := r.ExpectEOF(); err != nil {
		return DataStreamStats{}, err
	}
	return s, nil
}

// MaskForVersion returns s as a peer at version would see it after a round trip
func MaskForVersion(s DataStreamStats, version transport.Version) DataStreamStats {
	var out DataStreamStats
	for _, f := range statsFields {
		if f.present(version) {
			*f.value(&out) = *f.value(&s)
		}
	}
	return out
}
