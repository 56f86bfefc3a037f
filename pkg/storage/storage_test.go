package storage

import (
	"errors"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/dsusage/pkg/codec"
	"github.com/ssargent/dsusage/pkg/stream"
	"github.com/ssargent/dsusage/pkg/transport"
	"github.com/ssargent/dsusage/pkg/usage"
)

func sampleUsage(total uint64) usage.DataStreamsUsage {
	return usage.NewDataStreamsUsage(codec.DataStreamStats{
		TotalDataStreamCount:                total,
		IndicesBehindDataStream:             25,
		FailureStoreExplicitlyEnabledCount:  3,
		FailureStoreEffectivelyEnabledCount: 2,
		FailureStoreIndicesCount:            7,
	})
}

func openStore(t *testing.T, version transport.Version) *SnapshotStore {
	t.Helper()
	store, err := NewSnapshotStore(t.TempDir(), version)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSnapshotStore_PutGet(t *testing.T) {
	store := openStore(t, transport.Current)

	id, err := store.Put(sampleUsage(10))
	require.NoError(t, err)
	assert.NotEqual(t, ksuid.Nil, id)

	snap, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, id, snap.ID)
	assert.True(t, snap.Version.Equal(transport.Current))
	assert.Equal(t, sampleUsage(10), snap.Usage)
	assert.False(t, snap.Time().IsZero())
}

func TestSnapshotStore_OlderVersionDropsFields(t *testing.T) {
	store := openStore(t, transport.V8_15_0)

	id, err := store.Put(sampleUsage(10))
	require.NoError(t, err)

	snap, err := store.Get(id)
	require.NoError(t, err)
	assert.True(t, snap.Version.Equal(transport.V8_15_0))
	assert.Equal(t, uint64(0), snap.Usage.Stats.FailureStoreEffectivelyEnabledCount)
	assert.Equal(t, uint64(7), snap.Usage.Stats.FailureStoreIndicesCount)
}

func TestSnapshotStore_NotFound(t *testing.T) {
	store := openStore(t, transport.Current)

	_, err := store.Get(ksuid.New())
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	_, err = store.Latest()
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	snaps, err := store.List(0)
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestSnapshotStore_ListNewestFirst(t *testing.T) {
	store := openStore(t, transport.Current)

	var ids []ksuid.KSUID
	for i := uint64(1); i <= 5; i++ {
		id, err := store.Put(sampleUsage(i))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	snaps, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, snaps, 5)
	for i, snap := range snaps {
		assert.Equal(t, ids[len(ids)-1-i], snap.ID)
		assert.Equal(t, uint64(5-i), snap.Usage.Stats.TotalDataStreamCount)
	}

	limited, err := store.List(2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, ids[4], limited[0].ID)
	assert.Equal(t, ids[3], limited[1].ID)

	latest, err := store.Latest()
	require.NoError(t, err)
	assert.Equal(t, ids[4], latest.ID)
}

func TestSnapshotStore_Prune(t *testing.T) {
	store := openStore(t, transport.Current)

	for i := uint64(1); i <= 6; i++ {
		_, err := store.Put(sampleUsage(i))
		require.NoError(t, err)
	}

	removed, err := store.Prune(2)
	require.NoError(t, err)
	assert.Equal(t, 4, removed)

	snaps, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, uint64(6), snaps[0].Usage.Stats.TotalDataStreamCount)
	assert.Equal(t, uint64(5), snaps[1].Usage.Stats.TotalDataStreamCount)

	removed, err = store.Prune(10)
	require.NoError(t, err)
	assert.Zero(t, removed)

	_, err = store.Prune(-1)
	assert.Error(t, err)
}

func TestSnapshotStore_ReopenKeepsOrder(t *testing.T) {
	dir := t.TempDir()

	store, err := NewSnapshotStore(dir, transport.Current)
	require.NoError(t, err)
	first, err := store.Put(sampleUsage(1))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = NewSnapshotStore(dir, transport.V8_15_0)
	require.NoError(t, err)
	defer store.Close()

	second, err := store.Put(sampleUsage(2))
	require.NoError(t, err)
	assert.Positive(t, ksuid.Compare(second, first))

	snaps, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.True(t, snaps[0].Version.Equal(transport.V8_15_0))
	assert.True(t, snaps[1].Version.Equal(transport.Current))
	assert.Equal(t, uint64(2), snaps[1].Usage.Stats.FailureStoreEffectivelyEnabledCount)
}

func TestSnapshotStore_CorruptValue(t *testing.T) {
	store := openStore(t, transport.Current)

	id := ksuid.New()
	require.NoError(t, store.db.Set(snapshotKey(id), []byte{0x05, 'x'}, pebble.Sync))

	_, err := store.Get(id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, stream.ErrMalformedStream))
}
