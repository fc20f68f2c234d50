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

// Package storage defines the boundary to the sorted key-value store
// that physically holds the catalog tables: rows of timestamped cells
// under named column families, single-row atomic mutations, and bounded
// range scans. The catalog layer depends on the store's single-row write
// atomicity for its concurrency correctness and assumes nothing across
// rows.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/rangekv/rangekv/catpb"
	"github.com/rangekv/rangekv/keys"
)

// ConsistencyLevel selects how catalog reads are served.
type ConsistencyLevel int

const (
	// Strong reads are served by the primary and always current.
	Strong ConsistencyLevel = iota
	// Stale reads may be served by any replica of the catalog itself,
	// trading staleness for latency.
	Stale
)

// Cell is one column value of a row.
type Cell struct {
	Family    string
	Qualifier string
	Value     []byte
	Timestamp int64
}

// Row is the unit of catalog reads: a key and the cells visible under
// the requested families.
type Row struct {
	Key   catpb.Key
	Cells []Cell
}

// IsEmpty returns true if the row carries no data: no cells, or only
// placeholder cells with empty values. Empty rows are skipped by the
// scanning engine without being shown to visitors.
func (r Row) IsEmpty() bool {
	for _, c := range r.Cells {
		if len(c.Value) > 0 {
			return false
		}
	}
	return true
}

// Cell returns the cell under (family, qualifier), if present.
func (r Row) Cell(family, qualifier string) (Cell, bool) {
	for _, c := range r.Cells {
		if c.Family == family && c.Qualifier == qualifier {
			return c, true
		}
	}
	return Cell{}, false
}

// Value returns the value under (family, qualifier). ok distinguishes an
// absent column from a present-but-empty one.
func (r Row) Value(family, qualifier string) (value []byte, ok bool) {
	c, ok := r.Cell(family, qualifier)
	return c.Value, ok
}

// ColumnValue is one column write within a mutation.
type ColumnValue struct {
	Family    string
	Qualifier string
	Value     []byte
}

// Column names one column within a mutation's delete set.
type Column struct {
	Family    string
	Qualifier string
}

// Mutation is an atomic multi-column write and/or delete against a
// single row. Every column shares the mutation's timestamp, so applying
// it produces a single point-in-time record; the store's single-row
// atomicity makes concurrent mutations converge column-wise to
// last-write-wins without tearing the record.
type Mutation struct {
	Key       catpb.Key
	Timestamp int64
	Puts      []ColumnValue
	Deletes   []Column
	// DeleteFamilies removes every column under the named families.
	DeleteFamilies []string
}

// String implements fmt.Stringer; used for catalog mutation logging.
func (m Mutation) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "mutation{key=%s ts=%d", m.Key, m.Timestamp)
	for _, p := range m.Puts {
		fmt.Fprintf(&sb, " put=%s:%s/%d", p.Family, p.Qualifier, len(p.Value))
	}
	for _, d := range m.Deletes {
		fmt.Fprintf(&sb, " del=%s:%s", d.Family, d.Qualifier)
	}
	for _, f := range m.DeleteFamilies {
		fmt.Fprintf(&sb, " delfam=%s", f)
	}
	sb.WriteString("}")
	return sb.String()
}

// ScanOptions bounds and tunes a range read. Start and End are row-key
// bounds, [Start, End); nil means unbounded on that side. Families nil
// means all families.
type ScanOptions struct {
	Start    catpb.Key
	End      catpb.Key
	Families []string
	Reverse  bool
	// CachingHint suggests how many rows the store should fetch per
	// round trip; stores may ignore it.
	CachingHint int
	Consistency ConsistencyLevel
}

// Iterator yields rows of a range scan in key order (reverse key order
// for reverse scans). The caller must Close it on every path.
type Iterator interface {
	// Next advances to the next row, returning false at the end of the
	// scan or on error.
	Next() bool
	// Row returns the current row. Valid only after Next returned true,
	// and until the following Next call.
	Row() Row
	// Error returns the error that terminated iteration, if any.
	Error() error
	// Close releases the scan.
	Close() error
}

// Catalog is a scoped handle to one physical catalog table. Callers must
// Close it when done.
type Catalog interface {
	// Get reads one row, restricted to the given families (nil for all).
	// A missing row comes back as an empty Row with a nil error.
	Get(ctx context.Context, key catpb.Key, families []string) (Row, error)
	// Apply atomically applies each mutation to its row. Atomicity holds
	// per row only; no promise is made across mutations.
	Apply(ctx context.Context, muts ...Mutation) error
	// NewIterator opens a bounded range scan.
	NewIterator(ctx context.Context, opts ScanOptions) (Iterator, error)
	// Close releases the handle.
	Close() error
}

// Engine provides access to the physical catalog tables.
type Engine interface {
	// Catalog acquires a handle to the given catalog table.
	Catalog(ref keys.CatalogTable) (Catalog, error)
}
