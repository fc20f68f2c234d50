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
	"github.com/cockroachdb/errors"

	"github.com/rangekv/rangekv/catpb"
	"github.com/rangekv/rangekv/keys"
	"github.com/rangekv/rangekv/storage"
	"github.com/rangekv/rangekv/util/encoding"
)

// marshalLocation serializes a server location for the
// transitioning-target column: the 8-byte big-endian generation followed
// by the address bytes. The empty location serializes to nil, the
// placeholder form.
func marshalLocation(loc catpb.ServerLocation) []byte {
	if loc.IsEmpty() {
		return nil
	}
	v := encoding.EncodeUint64Ascending(nil, loc.Generation)
	return append(v, loc.Address...)
}

func unmarshalLocation(v []byte) (catpb.ServerLocation, error) {
	if len(v) == 0 {
		return catpb.ServerLocation{}, nil
	}
	rest, gen, err := encoding.DecodeUint64Ascending(v)
	if err != nil {
		return catpb.ServerLocation{}, err
	}
	return catpb.ServerLocation{Address: string(rest), Generation: gen}, nil
}

func marshalUint64(v uint64) []byte {
	return encoding.EncodeUint64Ascending(nil, v)
}

func unmarshalUint64(v []byte) (uint64, error) {
	rest, n, err := encoding.DecodeUint64Ascending(v)
	if err != nil {
		return 0, err
	}
	if len(rest) != 0 {
		return 0, errors.Errorf("%d leftover bytes", len(rest))
	}
	return n, nil
}

// RegistrationColumns returns the column writes that register a new
// partition: its serialized identifier, the CLOSED lifecycle state, and
// empty placeholder location columns for replicas 1 through replicas-1.
// The placeholders make the replica slots visible to readers before any
// replica has opened.
func RegistrationColumns(id catpb.PartitionID, replicas int) ([]storage.ColumnValue, error) {
	ident, err := catpb.MarshalIdentifier(id.Primary())
	if err != nil {
		return nil, err
	}
	cols := []storage.ColumnValue{
		{Family: keys.PartitionFamily, Qualifier: keys.IdentifierQualifier, Value: ident},
		{Family: keys.PartitionFamily, Qualifier: keys.StateQualifier,
			Value: []byte(catpb.PartitionClosed.String())},
	}
	for r := uint32(1); r < uint32(replicas); r++ {
		cols = append(cols,
			storage.ColumnValue{Family: keys.PartitionFamily, Qualifier: keys.ServerColumn(r)},
			storage.ColumnValue{Family: keys.PartitionFamily, Qualifier: keys.GenerationColumn(r)},
			storage.ColumnValue{Family: keys.PartitionFamily, Qualifier: keys.SeqNumColumn(r)},
		)
	}
	return cols, nil
}

// Location extracts the serving location and open sequence number of the
// given replica from a partition row. A location mid-transition (the
// target column carries the destination server) takes precedence over
// the steady-state server columns, so readers chase the move instead of
// the stale assignment. ok is false when the replica slot is absent or
// an empty placeholder.
func Location(row storage.Row, replica uint32) (catpb.ServerLocation, uint64, bool, error) {
	if v, present := row.Value(keys.PartitionFamily, keys.TargetColumn(replica)); present && len(v) > 0 {
		loc, err := unmarshalLocation(v)
		if err != nil {
			return catpb.ServerLocation{}, 0, false,
				NewCorruptRecordError(err, row.Key, keys.PartitionFamily, keys.TargetColumn(replica))
		}
		seq, err := seqNum(row, replica)
		if err != nil {
			return catpb.ServerLocation{}, 0, false, err
		}
		return loc, seq, true, nil
	}

	addr, present := row.Value(keys.PartitionFamily, keys.ServerColumn(replica))
	if !present || len(addr) == 0 {
		return catpb.ServerLocation{}, 0, false, nil
	}
	loc := catpb.ServerLocation{Address: string(addr)}
	if v, ok := row.Value(keys.PartitionFamily, keys.GenerationColumn(replica)); ok && len(v) > 0 {
		gen, err := unmarshalUint64(v)
		if err != nil {
			return catpb.ServerLocation{}, 0, false,
				NewCorruptRecordError(err, row.Key, keys.PartitionFamily, keys.GenerationColumn(replica))
		}
		loc.Generation = gen
	}
	seq, err := seqNum(row, replica)
	if err != nil {
		return catpb.ServerLocation{}, 0, false, err
	}
	return loc, seq, true, nil
}

func seqNum(row storage.Row, replica uint32) (uint64, error) {
	v, ok := row.Value(keys.PartitionFamily, keys.SeqNumColumn(replica))
	if !ok || len(v) == 0 {
		return 0, nil
	}
	seq, err := unmarshalUint64(v)
	if err != nil {
		return 0, NewCorruptRecordError(err, row.Key, keys.PartitionFamily, keys.SeqNumColumn(replica))
	}
	return seq, nil
}

// DecodePartitionRecord decodes one partition's catalog row. An absent
// identifier column means the row holds no partition (a
// PartitionNotFoundError); an identifier that is present but undecodable
// is a CorruptRecordError. Absent replica location columns are a normal
// state and simply leave the slot out of Replicas.
func DecodePartitionRecord(row storage.Row) (catpb.PartitionRecord, error) {
	var rec catpb.PartitionRecord

	ident, ok := row.Value(keys.PartitionFamily, keys.IdentifierQualifier)
	if !ok || len(ident) == 0 {
		return rec, NewPartitionNotFoundError("", row.Key, "row has no identifier column")
	}
	id, err := catpb.UnmarshalIdentifier(ident)
	if err != nil {
		return rec, NewCorruptRecordError(err, row.Key, keys.PartitionFamily, keys.IdentifierQualifier)
	}
	rec.ID = id

	if v, ok := row.Value(keys.PartitionFamily, keys.StateQualifier); ok && len(v) > 0 {
		state, err := catpb.ParsePartitionState(string(v))
		if err != nil {
			return rec, NewCorruptRecordError(err, row.Key, keys.PartitionFamily, keys.StateQualifier)
		}
		rec.State = state
	}

	rec.SplitA, err = daughter(row, keys.SplitAQualifier)
	if err != nil {
		return rec, err
	}
	rec.SplitB, err = daughter(row, keys.SplitBQualifier)
	if err != nil {
		return rec, err
	}

	for _, r := range replicaSlots(row) {
		loc, seq, ok, err := Location(row, r)
		if err != nil {
			return rec, err
		}
		if !ok {
			continue
		}
		if rec.Replicas == nil {
			rec.Replicas = make(map[uint32]catpb.ReplicaLocation)
		}
		rec.Replicas[r] = catpb.ReplicaLocation{Location: loc, OpenSeqNum: seq}
	}
	return rec, nil
}

// replicaSlots returns the replica indexes that have any location column
// on the row, in no particular order.
func replicaSlots(row storage.Row) []uint32 {
	seen := map[uint32]bool{}
	var slots []uint32
	for _, c := range row.Cells {
		if c.Family != keys.PartitionFamily {
			continue
		}
		base, replica, ok := keys.DecodeReplicaColumn(c.Qualifier)
		if !ok {
			base, replica = c.Qualifier, 0
		}
		switch base {
		case keys.ServerQualifier, keys.TargetQualifier:
		default:
			continue
		}
		if !seen[replica] {
			seen[replica] = true
			slots = append(slots, replica)
		}
	}
	return slots
}

func daughter(row storage.Row, qualifier string) (*catpb.PartitionID, error) {
	v, ok := row.Value(keys.PartitionFamily, qualifier)
	if !ok || len(v) == 0 {
		return nil, nil
	}
	id, err := catpb.UnmarshalIdentifier(v)
	if err != nil {
		return nil, NewCorruptRecordError(err, row.Key, keys.PartitionFamily, qualifier)
	}
	return &id, nil
}

// DaughterPartitions returns the split daughters recorded on a parent
// row, if any. Nil means the corresponding daughter has not been
// recorded.
func DaughterPartitions(row storage.Row) (a, b *catpb.PartitionID, _ error) {
	a, err := daughter(row, keys.SplitAQualifier)
	if err != nil {
		return nil, nil, err
	}
	b, err = daughter(row, keys.SplitBQualifier)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

// DecodeTableState decodes the table lifecycle state from a table-state
// row. An absent state column is valid and reads back as (0, false,
// nil); a present but undecodable one is a CorruptRecordError.
func DecodeTableState(row storage.Row) (catpb.TableState, bool, error) {
	v, ok := row.Value(keys.TableFamily, keys.TableStateQualifier)
	if !ok || len(v) == 0 {
		return 0, false, nil
	}
	state, err := catpb.UnmarshalTableState(v)
	if err != nil {
		return 0, false, NewCorruptRecordError(err, row.Key, keys.TableFamily, keys.TableStateQualifier)
	}
	return state, true, nil
}
