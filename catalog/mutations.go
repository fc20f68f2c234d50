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

package catalog

import (
	"github.com/rangekv/rangekv/catpb"
	"github.com/rangekv/rangekv/keys"
	"github.com/rangekv/rangekv/storage"
)

// The builders below are pure: each produces a single-row mutation whose
// columns all share one timestamp, so applying it yields one
// point-in-time record and concurrent appliers converge column-wise to
// the latest write. Partition rows are always keyed by the primary
// replica's identifier.

func primaryKey(id catpb.PartitionID) (catpb.Key, error) {
	return keys.MakePartitionKey(id.Primary())
}

// RegisterPartition builds the mutation that registers a new partition:
// identifier, CLOSED state, and empty placeholder locations for replicas
// 1 through replicas-1.
func RegisterPartition(id catpb.PartitionID, replicas int, ts int64) (storage.Mutation, error) {
	key, err := primaryKey(id)
	if err != nil {
		return storage.Mutation{}, err
	}
	cols, err := RegistrationColumns(id, replicas)
	if err != nil {
		return storage.Mutation{}, err
	}
	return storage.Mutation{Key: key, Timestamp: ts, Puts: cols}, nil
}

// RecordSplit builds the mutation that records a split on the parent's
// row: both daughter identifiers plus the SPLITTING state, in one write.
// Daughter rows are registered separately; lineage lives on the parent
// only, so a reader that sees the daughters' rows but not the parent's
// split columns simply sees a not-yet-split parent.
func RecordSplit(parent, a, b catpb.PartitionID, ts int64) (storage.Mutation, error) {
	key, err := primaryKey(parent)
	if err != nil {
		return storage.Mutation{}, err
	}
	av, err := catpb.MarshalIdentifier(a.Primary())
	if err != nil {
		return storage.Mutation{}, err
	}
	bv, err := catpb.MarshalIdentifier(b.Primary())
	if err != nil {
		return storage.Mutation{}, err
	}
	return storage.Mutation{
		Key:       key,
		Timestamp: ts,
		Puts: []storage.ColumnValue{
			{Family: keys.PartitionFamily, Qualifier: keys.SplitAQualifier, Value: av},
			{Family: keys.PartitionFamily, Qualifier: keys.SplitBQualifier, Value: bv},
			{Family: keys.PartitionFamily, Qualifier: keys.StateQualifier,
				Value: []byte(catpb.PartitionSplitting.String())},
		},
	}, nil
}

// UpdateLocation builds the mutation that records where a replica is
// serving: the identifier (re-asserted so a location write can never
// produce an identifier-less row), the replica's server address,
// generation and open sequence number.
func UpdateLocation(id catpb.PartitionID, loc catpb.ServerLocation, openSeqNum uint64, ts int64) (storage.Mutation, error) {
	key, err := primaryKey(id)
	if err != nil {
		return storage.Mutation{}, err
	}
	ident, err := catpb.MarshalIdentifier(id.Primary())
	if err != nil {
		return storage.Mutation{}, err
	}
	r := id.Replica
	return storage.Mutation{
		Key:       key,
		Timestamp: ts,
		Puts: []storage.ColumnValue{
			{Family: keys.PartitionFamily, Qualifier: keys.IdentifierQualifier, Value: ident},
			{Family: keys.PartitionFamily, Qualifier: keys.ServerColumn(r), Value: []byte(loc.Address)},
			{Family: keys.PartitionFamily, Qualifier: keys.GenerationColumn(r), Value: marshalUint64(loc.Generation)},
			{Family: keys.PartitionFamily, Qualifier: keys.SeqNumColumn(r), Value: marshalUint64(openSeqNum)},
		},
	}, nil
}

// SetTransitioningTarget builds the mutation that marks a replica as
// moving to loc. Readers prefer this column over the steady-state server
// columns until the move completes and UpdateLocation rewrites them.
func SetTransitioningTarget(id catpb.PartitionID, loc catpb.ServerLocation, ts int64) (storage.Mutation, error) {
	key, err := primaryKey(id)
	if err != nil {
		return storage.Mutation{}, err
	}
	return storage.Mutation{
		Key:       key,
		Timestamp: ts,
		Puts: []storage.ColumnValue{
			{Family: keys.PartitionFamily, Qualifier: keys.TargetColumn(id.Replica),
				Value: marshalLocation(loc)},
		},
	}, nil
}

// ClearLocation builds the mutation that empties a replica's location
// slot. It writes empty placeholder values rather than deleting the
// columns, so the slot stays visible and a concurrent older location
// write cannot resurrect it.
func ClearLocation(id catpb.PartitionID, replica uint32, ts int64) (storage.Mutation, error) {
	key, err := primaryKey(id)
	if err != nil {
		return storage.Mutation{}, err
	}
	return storage.Mutation{
		Key:       key,
		Timestamp: ts,
		Puts: []storage.ColumnValue{
			{Family: keys.PartitionFamily, Qualifier: keys.ServerColumn(replica)},
			{Family: keys.PartitionFamily, Qualifier: keys.GenerationColumn(replica)},
			{Family: keys.PartitionFamily, Qualifier: keys.SeqNumColumn(replica)},
			{Family: keys.PartitionFamily, Qualifier: keys.TargetColumn(replica)},
		},
	}, nil
}

// SetPartitionState builds the mutation that moves a partition to the
// given lifecycle state.
func SetPartitionState(id catpb.PartitionID, state catpb.PartitionState, ts int64) (storage.Mutation, error) {
	key, err := primaryKey(id)
	if err != nil {
		return storage.Mutation{}, err
	}
	return storage.Mutation{
		Key:       key,
		Timestamp: ts,
		Puts: []storage.ColumnValue{
			{Family: keys.PartitionFamily, Qualifier: keys.StateQualifier,
				Value: []byte(state.String())},
		},
	}, nil
}

// DeletePartition builds the mutation that removes a partition's row
// entirely. Terminal; once applied, lookups answer
// PartitionNotFoundError.
func DeletePartition(id catpb.PartitionID, ts int64) (storage.Mutation, error) {
	key, err := primaryKey(id)
	if err != nil {
		return storage.Mutation{}, err
	}
	return storage.Mutation{
		Key:            key,
		Timestamp:      ts,
		DeleteFamilies: []string{keys.PartitionFamily},
	}, nil
}

// SetTableState builds the mutation that sets a table's lifecycle state.
func SetTableState(table string, state catpb.TableState, ts int64) storage.Mutation {
	return storage.Mutation{
		Key:       keys.TableStateKey(table),
		Timestamp: ts,
		Puts: []storage.ColumnValue{
			{Family: keys.TableFamily, Qualifier: keys.TableStateQualifier,
				Value: catpb.MarshalTableState(state)},
		},
	}
}

// ClearTableState builds the mutation that removes a table's state row.
func ClearTableState(table string, ts int64) storage.Mutation {
	return storage.Mutation{
		Key:            keys.TableStateKey(table),
		Timestamp:      ts,
		DeleteFamilies: []string{keys.TableFamily},
	}
}
