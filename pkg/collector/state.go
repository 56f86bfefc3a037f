// Package collector computes data stream usage from a cluster state description.
package collector

import (
	"errors"
	"fmt"
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// ErrInvalidState is returned when a cluster state file cannot be used
var ErrInvalidState = errors.New("invalid cluster state")

// ClusterState is the part of the cluster metadata usage is computed from
type ClusterState struct {
	Settings    Settings     `yaml:"settings"`
	DataStreams []DataStream `yaml:"data_streams"`
}

// Settings are the cluster settings that affect data stream usage
type Settings struct {
	// FailureStoreEnabled lists name patterns of data streams that get a failure
	// store unless their own options say otherwise
	FailureStoreEnabled []string `yaml:"data_streams.failure_store.enabled"`
}

// DataStream describes one data stream
type DataStream struct {
	Name           string               `yaml:"name"`
	System         bool                 `yaml:"system"`
	Indices        []string             `yaml:"indices"`
	FailureIndices []string             `yaml:"failure_indices"`
	FailureStore   *FailureStoreOptions `yaml:"failure_store,omitempty"`
}

// FailureStoreOptions are the per data stream failure store options
type FailureStoreOptions struct {
	Enabled *bool `yaml:"enabled,omitempty"`
}

// FailureStoreEnabledFor reports whether the cluster setting turns the failure
// store on for the named data stream
func (s Settings) FailureStoreEnabledFor(name string) bool {
	for _, pattern := range s.FailureStoreEnabled {
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

// Validate checks the settings patterns and data stream names
func (cs *ClusterState) Validate() error {
	for _, pattern := range cs.Settings.FailureStoreEnabled {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("%w: bad failure store pattern %q", ErrInvalidState, pattern)
		}
	}

	seen := make(map[string]struct{}, len(cs.DataStreams))
	for i, ds := range cs.DataStreams {
		if ds.Name == "" {
			return fmt.Errorf("%w: data stream %d has no name", ErrInvalidState, i)
		}
		if _, dup := seen[ds.Name]; dup {
			return fmt.Errorf("%w: duplicate data stream %q", ErrInvalidState, ds.Name)
		}
		seen[ds.Name] = struct{}{}
	}
	return nil
}

// ParseState decodes and validates a YAML cluster state
func ParseState(data []byte) (*ClusterState, error) {
	var cs ClusterState
	if err := yaml.Unmarshal(data, &cs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if err := cs.Validate(); err != nil {
		return nil, err
	}
	return &cs, nil
}

// LoadState reads a YAML cluster state file
func LoadState(path string) (*ClusterState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cluster state: %w", err)
	}
	return ParseState(data)
}
