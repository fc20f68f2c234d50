// Copyright 2024 The RangeKV Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package catpb holds the data types stored in and served from the
// catalog tables: partition identifiers, serving locations, partition
// records and lifecycle states. The serialized forms are a versioned
// binary contract; see marshal.go.
package catpb

import (
	"bytes"
	"fmt"

	"github.com/cockroachdb/errors"
)

// PartitionID identifies one partition (a contiguous key-range shard) of
// a table. It is immutable once assigned. Replica 0 is the primary; a
// nonzero Replica identifies a read replica of the same partition. Two
// partitions of the same table never share an identical (StartKey,
// Suffix) pair.
type PartitionID struct {
	// Table is the identifier of the table this partition belongs to.
	Table string
	// StartKey is the inclusive lower bound of the partition's key range.
	// The first partition of a table has an empty StartKey.
	StartKey []byte
	// Suffix is derived from the partition's creation timestamp and
	// disambiguates partitions that reuse a start key across splits.
	Suffix uint64
	// Replica is the replica index; 0 is the primary.
	Replica uint32
}

// Primary returns the identifier of the partition's primary replica. The
// catalog keeps one row per partition, keyed by the primary.
func (id PartitionID) Primary() PartitionID {
	id.Replica = 0
	return id
}

// IsPrimary returns true if the identifier names the primary replica.
func (id PartitionID) IsPrimary() bool {
	return id.Replica == 0
}

// Equal returns whether the two identifiers name the same replica of the
// same partition.
func (id PartitionID) Equal(o PartitionID) bool {
	return id.Table == o.Table &&
		bytes.Equal(id.StartKey, o.StartKey) &&
		id.Suffix == o.Suffix &&
		id.Replica == o.Replica
}

// String implements fmt.Stringer.
func (id PartitionID) String() string {
	if id.Replica == 0 {
		return fmt.Sprintf("%s/%q/%d", id.Table, id.StartKey, id.Suffix)
	}
	return fmt.Sprintf("%s/%q/%d/%d", id.Table, id.StartKey, id.Suffix, id.Replica)
}

// ServerLocation names a particular incarnation of a server process: the
// address it serves on and its generation (start code), which
// distinguishes restarts of the same address so that stale location
// claims are detectable.
type ServerLocation struct {
	Address    string
	Generation uint64
}

// IsEmpty returns true for the zero location, which is how a cleared or
// never-assigned replica slot reads back.
func (l ServerLocation) IsEmpty() bool {
	return l.Address == "" && l.Generation == 0
}

// String implements fmt.Stringer.
func (l ServerLocation) String() string {
	return fmt.Sprintf("%s@%d", l.Address, l.Generation)
}

// ReplicaLocation is one replica's slot in a partition record.
type ReplicaLocation struct {
	Location ServerLocation
	// OpenSeqNum is the sequence number obtained when the replica last
	// opened.
	OpenSeqNum uint64
}

// PartitionRecord is the decoded form of one partition's catalog row.
// Replica slots that have never been assigned (or were registered as
// empty placeholders) are absent from Replicas; that is a normal state,
// not an error.
type PartitionRecord struct {
	ID       PartitionID
	Replicas map[uint32]ReplicaLocation
	// SplitA and SplitB are set once, when the partition becomes the
	// parent of a split, and never cleared.
	SplitA *PartitionID
	SplitB *PartitionID
	State  PartitionState
}

// IsSplitParent returns true once both daughter identifiers have been
// recorded on the row.
func (r *PartitionRecord) IsSplitParent() bool {
	return r.SplitA != nil && r.SplitB != nil
}

// PartitionState is the lifecycle state of a partition.
type PartitionState int

// Lifecycle states, in the order a partition typically moves through
// them. A new partition is registered CLOSED.
const (
	PartitionClosed PartitionState = iota
	PartitionOpening
	PartitionOpen
	PartitionClosing
	PartitionSplitting
	PartitionMerging
	PartitionOffline
)

var partitionStateNames = map[PartitionState]string{
	PartitionClosed:    "CLOSED",
	PartitionOpening:   "OPENING",
	PartitionOpen:      "OPEN",
	PartitionClosing:   "CLOSING",
	PartitionSplitting: "SPLITTING",
	PartitionMerging:   "MERGING",
	PartitionOffline:   "OFFLINE",
}

// String implements fmt.Stringer.
func (s PartitionState) String() string {
	if n, ok := partitionStateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("PartitionState(%d)", int(s))
}

// ParsePartitionState is the inverse of PartitionState.String.
func ParsePartitionState(s string) (PartitionState, error) {
	for st, n := range partitionStateNames {
		if n == s {
			return st, nil
		}
	}
	return 0, errors.Errorf("unknown partition state %q", s)
}

// TableState is the lifecycle state of a table.
type TableState int

// Table lifecycle states.
const (
	TableEnabled TableState = iota
	TableDisabled
	TableEnabling
	TableDisabling
)

var tableStateNames = map[TableState]string{
	TableEnabled:   "ENABLED",
	TableDisabled:  "DISABLED",
	TableEnabling:  "ENABLING",
	TableDisabling: "DISABLING",
}

// String implements fmt.Stringer.
func (s TableState) String() string {
	if n, ok := tableStateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("TableState(%d)", int(s))
}
