// Package transport defines the versions two peers negotiate before exchanging
// usage snapshots. Encoders and decoders only ever compare versions against the
// named thresholds declared here.
package transport

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-version"
)

// ErrInvalidVersion is returned when a version string cannot be parsed
var ErrInvalidVersion = errors.New("invalid transport version")

// Version is an opaque, totally ordered transport version.
// The zero value is equivalent to Zero.
type Version struct {
	v *version.Version
}

var (
	// Zero is the lowest possible version
	Zero = MustParse("0.0.0")

	// V8_15_0 introduced the extended failure store statistics
	V8_15_0 = MustParse("8.15.0")

	// FailureStoreEnabledByClusterSetting introduced the effectively enabled
	// failure store count, driven by the cluster level failure store setting
	FailureStoreEnabledByClusterSetting = MustParse("9.1.0")

	// Current is the version this build speaks
	Current = FailureStoreEnabledByClusterSetting
)

// Parse parses a dotted version string such as "8.15.0". A leading "v" is accepted.
func Parse(s string) (Version, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")
	if s == "" {
		return Version{}, fmt.Errorf("%w: empty string", ErrInvalidVersion)
	}

	v, err := version.NewVersion(s)
	if err != nil {
		return Version{}, fmt.Errorf("%w: %q: %v", ErrInvalidVersion, s, err)
	}

	return Version{v: v}, nil
}

// MustParse is like Parse but panics on error
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) raw() *version.Version {
	if v.v == nil {
		return Zero.v
	}
	return v.v
}

// Compare returns -1, 0 or 1 depending on whether v is lower than, equal to or
// higher than other
func (v Version) Compare(other Version) int {
	return v.raw().Compare(other.raw())
}

// OnOrAfter reports whether v >= other
func (v Version) OnOrAfter(other Version) bool {
	return v.Compare(other) >= 0
}

// Before reports whether v < other
func (v Version) Before(other Version) bool {
	return v.Compare(other) < 0
}

// Equal reports whether both versions denote the same point in the ordering
func (v Version) Equal(other Version) bool {
	return v.Compare(other) == 0
}

// IsZero reports whether v is the lowest possible version
func (v Version) IsZero() bool {
	return v.Equal(Zero)
}

func (v Version) String() string {
	return v.raw().String()
}

// MarshalText implements encoding.TextMarshaler
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Negotiate picks the version two peers use to talk to each other: the older
// of the two, so neither side ever sees fields it does not understand.
func Negotiate(local, remote Version) Version {
	if remote.Before(local) {
		return remote
	}
	return local
}
