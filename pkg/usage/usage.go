// Package usage wraps data stream statistics in the feature usage envelope that
// usage reports are made of.
package usage

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/ssargent/dsusage/pkg/codec"
	"github.com/ssargent/dsusage/pkg/stream"
	"github.com/ssargent/dsusage/pkg/transport"
)

// DataStreamsFeature is the feature name data stream usage is reported under
const DataStreamsFeature = "data_streams"

// Rendered envelope keys
const (
	KeyAvailable = "available"
	KeyEnabled   = "enabled"
)

// FeatureUsage is the envelope common to every feature's usage
type FeatureUsage struct {
	Name      string
	Available bool
	Enabled   bool
}

// Encode writes the envelope: name, available, enabled
func (f FeatureUsage) Encode(w *stream.Writer) error {
	if err := w.WriteString(f.Name); err != nil {
		return fmt.Errorf("failed to write feature name: %w", err)
	}
	if err := w.WriteBool(f.Available); err != nil {
		return fmt.Errorf("failed to write available flag: %w", err)
	}
	if err := w.WriteBool(f.Enabled); err != nil {
		return fmt.Errorf("failed to write enabled flag: %w", err)
	}
	return nil
}

// DecodeFeatureUsage reads an envelope written by FeatureUsage.Encode
func DecodeFeatureUsage(r *stream.Reader) (FeatureUsage, error) {
	var f FeatureUsage
	var err error
	if f.Name, err = r.ReadString(); err != nil {
		return FeatureUsage{}, fmt.Errorf("failed to read feature name: %w", err)
	}
	if f.Available, err = r.ReadBool(); err != nil {
		return FeatureUsage{}, fmt.Errorf("failed to read available flag: %w", err)
	}
	if f.Enabled, err = r.ReadBool(); err != nil {
		return FeatureUsage{}, fmt.Errorf("failed to read enabled flag: %w", err)
	}
	return f, nil
}

// render appends the envelope fields to doc
func (f FeatureUsage) render(doc *codec.Document) *codec.Document {
	return doc.Field(KeyAvailable, f.Available).Field(KeyEnabled, f.Enabled)
}

// DataStreamsUsage is the usage report of the data streams feature
type DataStreamsUsage struct {
	FeatureUsage
	Stats codec.DataStreamStats
}

// NewDataStreamsUsage reports the given stats for an available, enabled feature
func NewDataStreamsUsage(stats codec.DataStreamStats) DataStreamsUsage {
	return DataStreamsUsage{
		FeatureUsage: FeatureUsage{Name: DataStreamsFeature, Available: true, Enabled: true},
		Stats:        stats,
	}
}

// MinimalSupportedVersion is the oldest transport version this report can be sent to
func (u DataStreamsUsage) MinimalSupportedVersion() transport.Version {
	return transport.Zero
}

// Encode writes the envelope followed by the stats
func (u DataStreamsUsage) Encode(w *stream.Writer) error {
	if err := u.FeatureUsage.Encode(w); err != nil {
		return err
	}
	return codec.NewStatsCodec().Encode(w, u.Stats)
}

// DecodeDataStreamsUsage reads a report written by DataStreamsUsage.Encode
func DecodeDataStreamsUsage(r *stream.Reader) (DataStreamsUsage, error) {
	env, err := DecodeFeatureUsage(r)
	if err != nil {
		return DataStreamsUsage{}, err
	}
	stats, err := codec.NewStatsCodec().Decode(r)
	if err != nil {
		return DataStreamsUsage{}, err
	}
	return DataStreamsUsage{FeatureUsage: env, Stats: stats}, nil
}

// Render returns the structured form: envelope flags, then the stats fields
func (u DataStreamsUsage) Render() *codec.Document {
	return codec.AppendStats(u.FeatureUsage.render(codec.NewDocument()), u.Stats)
}

// String returns the rendered JSON form
func (u DataStreamsUsage) String() string {
	return u.Render().String()
}

// Equal reports whether both reports carry the same stats.
// The envelope is not compared: it is fixed for a given feature.
func (u DataStreamsUsage) Equal(other DataStreamsUsage) bool {
	return u.Stats == other.Stats
}

// Hash is consistent with Equal
func (u DataStreamsUsage) Hash() uint64 {
	return u.Stats.Hash()
}

// Marshal encodes a report for the given version into a new buffer
func Marshal(u DataStreamsUsage, version transport.Version) ([]byte, error) {
	var buf bytes.Buffer
	if err := u.Encode(stream.NewWriter(&buf, version)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a buffer holding exactly one report
func Unmarshal(data []byte, version transport.Version) (DataStreamsUsage, error) {
	r := stream.NewReader(bytes.NewReader(data), version)
	u, err := DecodeDataStreamsUsage(r)
	if err != nil {
		return DataStreamsUsage{}, err
	}
	if err := r.ExpectEOF(); err != nil {
		return DataStreamsUsage{}, err
	}
	return u, nil
}

// ParseJSON reads a report back from its rendered JSON. Missing envelope flags
// default to true, as for any report built with NewDataStreamsUsage.
func ParseJSON(data []byte) (DataStreamsUsage, error) {
	stats, err := codec.ParseStatsJSON(data)
	if err != nil {
		return DataStreamsUsage{}, err
	}

	u := NewDataStreamsUsage(stats)
	for key, dst := range map[string]*bool{KeyAvailable: &u.Available, KeyEnabled: &u.Enabled} {
		res := gjson.GetBytes(data, key)
		if !res.Exists() {
			continue
		}
		if !res.IsBool() {
			return DataStreamsUsage{}, fmt.Errorf("%w: %s must be a boolean", codec.ErrInvalidDocument, key)
		}
		*dst = res.Bool()
	}
	return u, nil
}

// IsMalformed reports whether err was caused by bad input rather than by the transport
func IsMalformed(err error) bool {
	return errors.Is(err, stream.ErrMalformedStream) || errors.Is(err, codec.ErrInvalidDocument)
}
