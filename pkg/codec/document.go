package codec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"gopkg.in/yaml.v3"
)

// Keys of the rendered stats document. Reporting tools depend on these names.
const (
	KeyDataStreams             = "data_streams"
	KeyIndicesCount            = "indices_count"
	KeyFailureStore            = "failure_store"
	KeyExplicitlyEnabledCount  = "explicitly_enabled_count"
	KeyEffectivelyEnabledCount = "effectively_enabled_count"
	KeyFailureIndicesCount     = "failure_indices_count"
)

// ErrInvalidDocument is returned when a rendered document cannot be parsed back
var ErrInvalidDocument = errors.New("invalid stats document")

// Field is a single key of a Document. Value is a uint64, bool, string or *Document.
type Field struct {
	Key   string
	Value any
}

// Document is an ordered set of fields. Unlike a map it keeps insertion order,
// which is part of the rendered contract.
type Document struct {
	fields []Field
}

// NewDocument returns an empty document
func NewDocument() *Document {
	return &Document{}
}

// Field appends a scalar field
func (d *Document) Field(key string, value any) *Document {
	d.fields = append(d.fields, Field{Key: key, Value: value})
	return d
}

// Object appends a nested document built by fn
func (d *Document) Object(key string, fn func(*Document)) *Document {
	child := NewDocument()
	fn(child)
	d.fields = append(d.fields, Field{Key: key, Value: child})
	return d
}

// Fields returns the fields in order
func (d *Document) Fields() []Field {
	out := make([]Field, len(d.fields))
	copy(out, d.fields)
	return out
}

// Lookup returns the value of a top level key
func (d *Document) Lookup(key string) (any, bool) {
	for _, f := range d.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// MarshalJSON renders the document with keys in insertion order
func (d *Document) MarshalJSON() ([]byte, error) {
	out := []byte("{}")
	seen := make(map[string]struct{}, len(d.fields))
	for _, f := range d.fields {
		if _, dup := seen[f.Key]; dup {
			return nil, fmt.Errorf("failed to render field %q: duplicate key", f.Key)
		}
		seen[f.Key] = struct{}{}

		var err error
		path := escapePath(f.Key)
		switch v := f.Value.(type) {
		case *Document:
			var raw []byte
			if raw, err = v.MarshalJSON(); err == nil {
				out, err = sjson.SetRawBytes(out, path, raw)
			}
		case uint64, bool, string:
			out, err = sjson.SetBytes(out, path, v)
		default:
			err = fmt.Errorf("unsupported value type %T", f.Value)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to render field %q: %w", f.Key, err)
		}
	}
	return out, nil
}

// MarshalYAML renders the document as an ordered YAML mapping
func (d *Document) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, f := range d.fields {
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f.Key}

		var value *yaml.Node
		switch v := f.Value.(type) {
		case *Document:
			nested, err := v.MarshalYAML()
			if err != nil {
				return nil, err
			}
			value = nested.(*yaml.Node)
		case uint64:
			value = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatUint(v, 10)}
		case bool:
			value = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v)}
		case string:
			value = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
		default:
			return nil, fmt.Errorf("failed to render field %q: unsupported value type %T", f.Key, f.Value)
		}
		node.Content = append(node.Content, key, value)
	}
	return node, nil
}

// String returns the JSON rendering, or the error text if rendering fails
func (d *Document) String() string {
	b, err := d.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("{\"error\":%q}", err.Error())
	}
	return string(b)
}

// escapePath makes a key safe to use as an sjson path. A leading ':' would
// otherwise be read as sjson's force-key marker and stripped.
func escapePath(key string) string {
	path := gjson.Escape(key)
	if strings.HasPrefix(path, ":") {
		path = `\` + path
	}
	return path
}

// RenderStats builds the structured form of the stats
func RenderStats(s DataStreamStats) *Document {
	return AppendStats(NewDocument(), s)
}

// AppendStats adds the stats fields to an existing document, after its current fields
func AppendStats(d *Document, s DataStreamStats) *Document {
	return d.
		Field(KeyDataStreams, s.TotalDataStreamCount).
		Field(KeyIndicesCount, s.IndicesBehindDataStream).
		Object(KeyFailureStore, func(fs *Document) {
			fs.Field(KeyExplicitlyEnabledCount, s.FailureStoreExplicitlyEnabledCount)
			fs.Field(KeyEffectivelyEnabledCount, s.FailureStoreEffectivelyEnabledCount)
			fs.Field(KeyFailureIndicesCount, s.FailureStoreIndicesCount)
		})
}

// ParseStatsJSON reads stats back from their JSON rendering. The top level counters
// are required, failure store counters default to zero and unknown keys are ignored.
func ParseStatsJSON(data []byte) (DataStreamStats, error) {
	if !gjson.ValidBytes(data) {
		return DataStreamStats{}, fmt.Errorf("%w: not valid JSON", ErrInvalidDocument)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return DataStreamStats{}, fmt.Errorf("%w: expected a JSON object", ErrInvalidDocument)
	}

	var s DataStreamStats
	fields := []struct {
		path     string
		required bool
		dst      *uint64
	}{
		{KeyDataStreams, true, &s.TotalDataStreamCount},
		{KeyIndicesCount, true, &s.IndicesBehindDataStream},
		{KeyFailureStore + "." + KeyExplicitlyEnabledCount, false, &s.FailureStoreExplicitlyEnabledCount},
		{KeyFailureStore + "." + KeyEffectivelyEnabledCount, false, &s.FailureStoreEffectivelyEnabledCount},
		{KeyFailureStore + "." + KeyFailureIndicesCount, false, &s.FailureStoreIndicesCount},
	}
	for _, f := range fields {
		res := root.Get(f.path)
		if !res.Exists() {
			if f.required {
				return DataStreamStats{}, fmt.Errorf("%w: missing %s", ErrInvalidDocument, f.path)
			}
			continue
		}
		v, err := counter(res)
		if err != nil {
			return DataStreamStats{}, fmt.Errorf("%w: %s: %v", ErrInvalidDocument, f.path, err)
		}
		*f.dst = v
	}
	return s, nil
}

// counter accepts only non-negative integer literals
func counter(res gjson.Result) (uint64, error) {
	if res.Type != gjson.Number {
		return 0, fmt.Errorf("expected a number, got %s", res.Type)
	}
	v, err := strconv.ParseUint(res.Raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("expected a non-negative integer, got %s", res.Raw)
	}
	return v, nil
}
