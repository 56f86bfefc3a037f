package codec

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// DataStreamStats is a point in time summary of data stream usage.
// It is a comparable value type: two snapshots are equal when all counters are.
type DataStreamStats struct {
	TotalDataStreamCount                uint64 // Number of data streams
	IndicesBehindDataStream             uint64 // Backing indices across all data streams
	FailureStoreExplicitlyEnabledCount  uint64 // Streams with the failure store turned on explicitly
	FailureStoreEffectivelyEnabledCount uint64 // Streams with the failure store active, explicitly or by cluster setting
	FailureStoreIndicesCount            uint64 // Failure store indices across all data streams
}

// Hash returns a 64-bit hash of the counters, consistent with ==
func (s DataStreamStats) Hash() uint64 {
	var buf [5 * binary.MaxVarintLen64]byte
	b := buf[:0]
	for _, f := range statsFields {
		b = binary.AppendUvarint(b, *f.value(&s))
	}
	return xxhash.Sum64(b)
}

// String returns the rendered JSON form of the stats
func (s DataStreamStats) String() string {
	return RenderStats(s).String()
}
