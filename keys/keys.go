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

// Package keys constructs and decodes catalog row keys and computes the
// scan bounds that scope catalog reads to a single table. Row keys are
// built from order-preserving encodings so that a catalog table's rows
// group contiguously by table and sort by ascending partition start key;
// see util/encoding.
package keys

import (
	"github.com/rangekv/rangekv/catpb"
	"github.com/rangekv/rangekv/util/encoding"
)

// partitionSuffixLen is the fixed width of the encoded creation suffix.
const partitionSuffixLen = 8

// replicaSuffixLen is the fixed width of the optional encoded replica
// index.
const replicaSuffixLen = 4

// MakePartitionKey encodes a partition identifier into its catalog row
// key:
//
//	enc(table) ++ enc(startKey) ++ suffix8 [++ replica4]
//
// where enc is the escape-based bytes encoding and the numeric fields
// are fixed-width big-endian. The replica component is present only for
// replicas > 0, so the primary's key is the shortest key of its
// partition and sorts first.
//
// The encoding is deterministic and reversible (DecodePartitionKey), and
// its lexicographic order groups all rows of one table contiguously and
// orders them by ascending start key, even when one table identifier is
// a byte-prefix of another.
func MakePartitionKey(id catpb.PartitionID) (catpb.Key, error) {
	if len(id.Table) == 0 {
		return nil, NewMalformedKeyError("empty table identifier", nil)
	}
	if KeyMax.Equal(id.StartKey) {
		return nil, NewMalformedKeyError("start key is the reserved maximum key sentinel", id.StartKey)
	}
	k := make([]byte, 0, len(id.Table)+len(id.StartKey)+partitionSuffixLen+replicaSuffixLen+4)
	k = encoding.EncodeBytesAscending(k, []byte(id.Table))
	k = encoding.EncodeBytesAscending(k, id.StartKey)
	k = encoding.EncodeUint64Ascending(k, id.Suffix)
	if id.Replica != 0 {
		k = encoding.EncodeUint32Ascending(k, id.Replica)
	}
	return k, nil
}

// DecodePartitionKey decodes a catalog row key back into the partition
// identifier it was built from. It returns a MalformedKeyError if the
// delimiters or field lengths are inconsistent or if the key has
// leftover bytes.
func DecodePartitionKey(k catpb.Key) (catpb.PartitionID, error) {
	var id catpb.PartitionID
	b, table, err := encoding.DecodeBytesAscending(k, nil)
	if err != nil {
		return id, NewMalformedKeyError(err.Error(), k)
	}
	b, start, err := encoding.DecodeBytesAscending(b, nil)
	if err != nil {
		return id, NewMalformedKeyError(err.Error(), k)
	}
	b, suffix, err := encoding.DecodeUint64Ascending(b)
	if err != nil {
		return id, NewMalformedKeyError(err.Error(), k)
	}
	var replica uint32
	switch len(b) {
	case 0:
	case replicaSuffixLen:
		if _, replica, err = encoding.DecodeUint32Ascending(b); err != nil {
			return id, NewMalformedKeyError(err.Error(), k)
		}
	default:
		return id, NewMalformedKeyError("leftover bytes after decode", k)
	}
	id = catpb.PartitionID{
		Table:    string(table),
		StartKey: append([]byte(nil), start...),
		Suffix:   suffix,
		Replica:  replica,
	}
	return id, nil
}

// TableSpan returns the [start, end) row-key bounds of all partition
// rows of the given table. A scan over the span visits exactly that
// table's rows, in ascending start-key order, and nothing else. This
// holds for tables whose identifier is a byte-prefix of another table's
// identifier because encoded table identifiers are prefix-free.
func TableSpan(table string) (start, end catpb.Key) {
	start = encoding.EncodeBytesAscending(nil, []byte(table))
	end = encoding.PrefixEnd(start)
	return start, end
}

// PartitionKeyPrefix returns the row-key prefix shared by every replica
// row of partitions of table whose start key equals row. Every key with
// a larger start key sorts after it, so it serves as an inclusive lower
// bound for forward scans positioned at row.
func PartitionKeyPrefix(table string, row []byte) catpb.Key {
	prefix := encoding.EncodeBytesAscending(nil, []byte(table))
	return encoding.EncodeBytesAscending(prefix, row)
}

// ClosestPartitionBounds returns [start, end) bounds for a reverse scan
// that positions at the partition of the table that contains (or
// directly precedes) row. end is a synthetic probe key constructed from
// row with a suffix that sorts after every real suffix and replica
// component, so the last key below it belongs to the closest partition
// at or before row. If the reverse scan over these bounds yields
// nothing, no partition of the table contains or precedes row.
func ClosestPartitionBounds(table string, row []byte) (start, end catpb.Key, _ error) {
	if len(table) == 0 {
		return nil, nil, NewMalformedKeyError("empty table identifier", nil)
	}
	if KeyMax.Equal(row) {
		return nil, nil, NewMalformedKeyError("the reserved maximum key sentinel cannot be used as a probe", row)
	}
	start, _ = TableSpan(table)
	probe := PartitionKeyPrefix(table, row)
	// 0xff repeated beyond the widest possible suffix+replica component:
	// sorts after every real key sharing this (table, startKey) prefix
	// and, because encoded start keys continue with either a data byte or
	// the \x00\xff escape, before the keys of any larger start key.
	for i := 0; i < partitionSuffixLen+replicaSuffixLen+1; i++ {
		probe = append(probe, 0xff)
	}
	return start, probe, nil
}

// TableStateKey returns the row key of a table's state row: the raw
// table identifier. Table-state rows live in TableFamily and do not
// collide with encoded partition keys.
func TableStateKey(table string) catpb.Key {
	return catpb.Key(table)
}

// CatalogFor resolves which catalog table is authoritative for the given
// table identifier. The root catalog is authoritative only for the main
// catalog's own metadata; the main catalog is authoritative for every
// other table. Asking for the catalog of the root catalog itself is an
// InvalidCatalogOperationError: the bootstrap hierarchy has exactly two
// levels and the root has no parent.
func CatalogFor(table string) (CatalogTable, error) {
	switch table {
	case RootCatalogName:
		return 0, NewInvalidCatalogOperationError("the root catalog %s has no parent catalog", RootCatalogName)
	case MainCatalogName:
		return RootCatalog, nil
	default:
		return MainCatalog, nil
	}
}

// IsCatalogTable returns true if the identifier names one of the two
// catalog tables.
func IsCatalogTable(table string) bool {
	return table == RootCatalogName || table == MainCatalogName
}
