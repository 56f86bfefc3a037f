package collector

import "github.com/ssargent/dsusage/pkg/codec"

// FailureStoreExplicitlyEnabled reports whether the stream's own options turn the failure store on
func (ds DataStream) FailureStoreExplicitlyEnabled() bool {
	return ds.FailureStore != nil && ds.FailureStore.Enabled != nil && *ds.FailureStore.Enabled
}

// FailureStoreEffectivelyEnabled reports whether the failure store is active for
// the stream. Explicit options win; otherwise non-system streams follow the
// cluster setting.
func (ds DataStream) FailureStoreEffectivelyEnabled(settings Settings) bool {
	if ds.FailureStore != nil && ds.FailureStore.Enabled != nil {
		return *ds.FailureStore.Enabled
	}
	return !ds.System && settings.FailureStoreEnabledFor(ds.Name)
}

// Collect computes usage stats from the cluster state
func Collect(cs *ClusterState) codec.DataStreamStats {
	var stats codec.DataStreamStats
	if cs == nil {
		return stats
	}

	for _, ds := range cs.DataStreams {
		stats.TotalDataStreamCount++
		stats.IndicesBehindDataStream += uint64(len(ds.Indices))
		if ds.FailureStoreExplicitlyEnabled() {
			stats.FailureStoreExplicitlyEnabledCount++
		}
		if ds.FailureStoreEffectivelyEnabled(cs.Settings) {
			stats.FailureStoreEffectivelyEnabledCount++
		}
		stats.FailureStoreIndicesCount += uint64(len(ds.FailureIndices))
	}
	return stats
}
