// Package storage keeps a history of usage snapshots in a pebble database.
//
// Snapshots are keyed by KSUID, so key order is time order. Each value carries
// the transport version it was encoded with, followed by the encoded report, and
// stays readable after the node upgrades.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/segmentio/ksuid"

	"github.com/ssargent/dsusage/pkg/stream"
	"github.com/ssargent/dsusage/pkg/transport"
	"github.com/ssargent/dsusage/pkg/usage"
)

// ErrSnapshotNotFound is returned when no snapshot matches a lookup
var ErrSnapshotNotFound = errors.New("snapshot not found")

// idLen is the size of an encoded KSUID
const idLen = 20

var (
	snapshotPrefix = []byte("snap/")
	snapshotUpper  = []byte("snap0") // '0' sorts right after '/'
)

// Snapshot is one stored usage report
type Snapshot struct {
	ID      ksuid.KSUID
	Version transport.Version
	Usage   usage.DataStreamsUsage
}

// Time returns when the snapshot was taken
func (s Snapshot) Time() time.Time {
	return s.ID.Time()
}

// SnapshotStore persists usage snapshots
type SnapshotStore struct {
	db      *pebble.DB
	version transport.Version

	mu     sync.Mutex
	lastID ksuid.KSUID
}

// NewSnapshotStore opens (or creates) a snapshot store at path. New snapshots are
// encoded at the given transport version.
func NewSnapshotStore(path string, version transport.Version) (*SnapshotStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}

	s := &SnapshotStore{db: db, version: version}

	latest, err := s.Latest()
	switch {
	case err == nil:
		s.lastID = latest.ID
	case !errors.Is(err, ErrSnapshotNotFound):
		db.Close()
		return nil, err
	}

	return s, nil
}

// Put stores a snapshot and returns its id
func (s *SnapshotStore) Put(u usage.DataStreamsUsage) (ksuid.KSUID, error) {
	value, err := encodeSnapshot(u, s.version)
	if err != nil {
		return ksuid.Nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Ids must be strictly increasing, even within one second
	id := ksuid.New()
	if ksuid.Compare(id, s.lastID) <= 0 {
		id = s.lastID.Next()
	}

	if err := s.db.Set(snapshotKey(id), value, pebble.Sync); err != nil {
		return ksuid.Nil, fmt.Errorf("failed to store snapshot: %w", err)
	}
	s.lastID = id

	return id, nil
}

// Get returns the snapshot with the given id
func (s *SnapshotStore) Get(id ksuid.KSUID) (*Snapshot, error) {
	data, closer, err := s.db.Get(snapshotKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	defer closer.Close()

	return decodeSnapshot(id, data)
}

// Latest returns the most recent snapshot
func (s *SnapshotStore) Latest() (*Snapshot, error) {
	snaps, err := s.List(1)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, ErrSnapshotNotFound
	}
	return &snaps[0], nil
}

// List returns up to limit snapshots, newest first. A limit <= 0 returns all of them.
func (s *SnapshotStore) List(limit int) ([]Snapshot, error) {
	iter, err := s.newIter()
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []Snapshot
	for valid := iter.Last(); valid; valid = iter.Prev() {
		id, err := idFromKey(iter.Key())
		if err != nil {
			return nil, err
		}
		snap, err := decodeSnapshot(id, iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, *snap)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return out, nil
}

// Prune deletes all but the newest keep snapshots and returns how many were removed
func (s *SnapshotStore) Prune(keep int) (int, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep must not be negative: %d", keep)
	}

	iter, err := s.newIter()
	if err != nil {
		return 0, err
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	seen, removed := 0, 0
	for valid := iter.Last(); valid; valid = iter.Prev() {
		seen++
		if seen <= keep {
			continue
		}
		if err := batch.Delete(bytes.Clone(iter.Key()), nil); err != nil {
			iter.Close()
			return 0, fmt.Errorf("failed to prune snapshots: %w", err)
		}
		removed++
	}
	if err := iter.Close(); err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}

	if removed == 0 {
		return 0, nil
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return removed, nil
}

// Close closes the underlying database
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}

func (s *SnapshotStore) newIter() (*pebble.Iterator, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: snapshotPrefix,
		UpperBound: snapshotUpper,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot iterator: %w", err)
	}
	return iter, nil
}

func snapshotKey(id ksuid.KSUID) []byte {
	key := make([]byte, 0, len(snapshotPrefix)+idLen)
	key = append(key, snapshotPrefix...)
	return append(key, id.Bytes()...)
}

func idFromKey(key []byte) (ksuid.KSUID, error) {
	id, err := ksuid.FromBytes(bytes.TrimPrefix(key, snapshotPrefix))
	if err != nil {
		return ksuid.Nil, fmt.Errorf("corrupt snapshot key %x: %w", key, err)
	}
	return id, nil
}

// encodeSnapshot writes the version string and then the report encoded at that version
func encodeSnapshot(u usage.DataStreamsUsage, version transport.Version) ([]byte, error) {
	var buf bytes.Buffer
	w := stream.NewWriter(&buf, version)
	if err := w.WriteString(version.String()); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := u.Encode(w); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeSnapshot(id ksuid.KSUID, data []byte) (*Snapshot, error) {
	// The version prefix is readable at any version
	src := bytes.NewReader(data)
	raw, err := stream.NewReader(src, transport.Zero).ReadString()
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", id, err)
	}
	version, err := transport.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", id, err)
	}

	u, err := usage.Unmarshal(data[len(data)-src.Len():], version)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", id, err)
	}
	return &Snapshot{ID: id, Version: version, Usage: u}, nil
}
