// Package codec provides the wire encoding and the structured rendering of data
// stream usage statistics.
//
// # Wire Format
//
// Stats are a sequence of unsigned varints. Which counters are present depends on
// the transport version negotiated with the peer:
//
//	vlong total data stream count
//	vlong indices behind data streams
//	if version >= 8.15.0:
//	    vlong failure store explicitly enabled count
//	    if version >= 9.1.0:
//	        vlong failure store effectively enabled count
//	    vlong failure store indices count
//
// Counters a version does not carry are never written for it, and decode as zero.
// Encoding at version v and decoding at v therefore yields MaskForVersion(s, v).
// The field order is fixed and is the wire contract.
//
// The layout is a table (statsFields) walked in order by both Encode and Decode,
// so adding a counter for a future version means appending one entry.
//
// # Rendering
//
// RenderStats produces an ordered Document:
//
//	{
//	  "data_streams": 10,
//	  "indices_count": 25,
//	  "failure_store": {
//	    "explicitly_enabled_count": 3,
//	    "effectively_enabled_count": 2,
//	    "failure_indices_count": 7
//	  }
//	}
//
// Key names, nesting and order are consumed by reporting tools and must not change.
// Documents marshal to JSON and YAML with the same ordering, and ParseStatsJSON
// reads the JSON form back.
//
// # Usage
//
//	c := codec.NewStatsCodec()
//
//	data, err := c.Marshal(stats, transport.Current)
//	if err != nil {
//	    return err
//	}
//
//	decoded, err := c.Unmarshal(data, transport.Current)
//	if err != nil {
//	    return err // wraps stream.ErrMalformedStream on bad input
//	}
//
// # Thread Safety
//
// StatsCodec holds no state and is safe for concurrent use. DataStreamStats is a
// comparable value type, usable as a map key; Hash is consistent with ==.
package codec
