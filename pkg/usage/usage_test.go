package usage

import (
	"bytes"
	"testing"

	"github.com/ssargent/dsusage/pkg/codec"
	"github.com/ssargent/dsusage/pkg/stream"
	"github.com/ssargent/dsusage/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sample = NewDataStreamsUsage(codec.DataStreamStats{
	TotalDataStreamCount:                10,
	IndicesBehindDataStream:             25,
	FailureStoreExplicitlyEnabledCount:  3,
	FailureStoreEffectivelyEnabledCount: 2,
	FailureStoreIndicesCount:            7,
})

func TestNewDataStreamsUsage(t *testing.T) {
	assert.Equal(t, DataStreamsFeature, sample.Name)
	assert.True(t, sample.Available)
	assert.True(t, sample.Enabled)
	assert.True(t, sample.MinimalSupportedVersion().IsZero())
}

func TestEncodeLayout(t *testing.T) {
	data, err := Marshal(sample, transport.Current)
	require.NoError(t, err)

	want := append([]byte{12}, []byte("data_streams")...)
	want = append(want, 1, 1)
	want = append(want, 10, 25, 3, 2, 7)
	assert.Equal(t, want, data)

	legacy, err := Marshal(sample, transport.Zero)
	require.NoError(t, err)
	assert.Equal(t, want[:len(want)-3], legacy)
}

func TestRoundTripPerVersion(t *testing.T) {
	versions := []transport.Version{
		transport.Zero,
		transport.MustParse("8.14.0"),
		transport.V8_15_0,
		transport.MustParse("8.19.0"),
		transport.FailureStoreEnabledByClusterSetting,
	}

	for _, v := range versions {
		t.Run(v.String(), func(t *testing.T) {
			data, err := Marshal(sample, v)
			require.NoError(t, err)

			got, err := Unmarshal(data, v)
			require.NoError(t, err)

			assert.Equal(t, sample.FeatureUsage, got.FeatureUsage)
			assert.Equal(t, codec.MaskForVersion(sample.Stats, v), got.Stats)
		})
	}
}

func TestEnvelopeFlagsSurvive(t *testing.T) {
	u := sample
	u.Available = false
	u.Enabled = false

	data, err := Marshal(u, transport.Current)
	require.NoError(t, err)
	got, err := Unmarshal(data, transport.Current)
	require.NoError(t, err)

	assert.False(t, got.Available)
	assert.False(t, got.Enabled)
	assert.Equal(t, u.Stats, got.Stats)
}

func TestDecodeMalformed(t *testing.T) {
	data, err := Marshal(sample, transport.Current)
	require.NoError(t, err)

	for cut := 0; cut < len(data); cut++ {
		_, err := Unmarshal(data[:cut], transport.Current)
		require.Error(t, err, "cut at %d", cut)
		assert.True(t, IsMalformed(err), "cut at %d: %v", cut, err)
	}

	badFlag := bytes.Clone(data)
	badFlag[13] = 7
	_, err = Unmarshal(badFlag, transport.Current)
	assert.ErrorIs(t, err, stream.ErrMalformedStream)
}

func TestRender(t *testing.T) {
	want := `{"available":true,"enabled":true,"data_streams":10,"indices_count":25,` +
		`"failure_store":{"explicitly_enabled_count":3,"effectively_enabled_count":2,"failure_indices_count":7}}`

	out, err := sample.Render().MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, want, string(out))
	assert.Equal(t, want, sample.String())
}

func TestEqualityIgnoresEnvelope(t *testing.T) {
	other := sample
	other.Enabled = false

	assert.True(t, sample.Equal(other))
	assert.Equal(t, sample.Hash(), other.Hash())

	different := NewDataStreamsUsage(codec.DataStreamStats{TotalDataStreamCount: 1})
	assert.False(t, sample.Equal(different))
}

func TestParseJSON(t *testing.T) {
	t.Run("rendered report", func(t *testing.T) {
		got, err := ParseJSON([]byte(sample.String()))
		require.NoError(t, err)
		assert.Equal(t, sample, got)
	})

	t.Run("bare stats", func(t *testing.T) {
		got, err := ParseJSON([]byte(sample.Stats.String()))
		require.NoError(t, err)
		assert.Equal(t, sample, got)
	})

	t.Run("flags are read", func(t *testing.T) {
		got, err := ParseJSON([]byte(`{"available":false,"enabled":true,"data_streams":1,"indices_count":2}`))
		require.NoError(t, err)
		assert.False(t, got.Available)
		assert.True(t, got.Enabled)
	})

	t.Run("non boolean flag", func(t *testing.T) {
		_, err := ParseJSON([]byte(`{"available":"yes","data_streams":1,"indices_count":2}`))
		assert.ErrorIs(t, err, codec.ErrInvalidDocument)
		assert.True(t, IsMalformed(err))
	})
}
