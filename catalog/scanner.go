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
	"context"

	"github.com/rangekv/rangekv/catpb"
	"github.com/rangekv/rangekv/keys"
	"github.com/rangekv/rangekv/storage"
)

// QueryKind selects which column families a catalog scan reads.
type QueryKind int

const (
	// PartitionsQuery reads partition rows only.
	PartitionsQuery QueryKind = iota
	// TablesQuery reads table-state rows only.
	TablesQuery
	// AllQuery reads everything.
	AllQuery
)

func (q QueryKind) families() []string {
	switch q {
	case PartitionsQuery:
		return []string{keys.PartitionFamily}
	case TablesQuery:
		return []string{keys.TableFamily}
	}
	return nil
}

// RowFilter decides whether a scanned row is shown to the visitor. Rows
// it rejects do not count toward MaxRows.
type RowFilter func(storage.Row) bool

// ScanOptions bounds and tunes one catalog scan. Start and Stop are row
// key bounds, [Start, Stop); nil means unbounded on that side.
type ScanOptions struct {
	Start catpb.Key
	Stop  catpb.Key
	Query QueryKind
	// Filter, when set, is applied before the visitor.
	Filter RowFilter
	// MaxRows caps how many rows the visitor sees; 0 means no cap.
	MaxRows int
	Reverse bool
	// CachingHint and Consistency are plumbed through to the store;
	// the accessor fills them from its Config.
	CachingHint int
	Consistency storage.ConsistencyLevel
}

// Visitor receives scanned rows. Visit returning false stops the scan
// without error; an error from Visit aborts it and propagates. Release,
// if set, is called exactly once when the scan finishes, on every exit
// path.
type Visitor struct {
	Visit   func(ctx context.Context, row storage.Row) (bool, error)
	Release func()
}

// ScanOutcome reports how a scan ended.
type ScanOutcome int

const (
	// ScanCompleted means the scan ran to its bound (or MaxRows).
	ScanCompleted ScanOutcome = iota
	// ScanAborted means the visitor stopped the scan early.
	ScanAborted
)

// String implements fmt.Stringer.
func (o ScanOutcome) String() string {
	if o == ScanAborted {
		return "aborted"
	}
	return "completed"
}

// Scan runs one bounded scan over a catalog table, delivering rows to
// the visitor in key order (reverse key order when opts.Reverse). Empty
// rows are skipped without being shown or counted. Each surviving row is
// visited at most once. Store failures surface as
// CatalogUnavailableError; visitor errors propagate as-is.
func Scan(
	ctx context.Context,
	eng storage.Engine,
	ref keys.CatalogTable,
	opts ScanOptions,
	vis Visitor,
) (ScanOutcome, error) {
	released := false
	release := func() {
		if !released {
			released = true
			if vis.Release != nil {
				vis.Release()
			}
		}
	}
	defer release()

	cat, err := eng.Catalog(ref)
	if err != nil {
		return ScanCompleted, NewCatalogUnavailableError(err, ref.Name())
	}
	defer func() { _ = cat.Close() }()

	it, err := cat.NewIterator(ctx, storage.ScanOptions{
		Start:       opts.Start,
		End:         opts.Stop,
		Families:    opts.Query.families(),
		Reverse:     opts.Reverse,
		CachingHint: opts.CachingHint,
		Consistency: opts.Consistency,
	})
	if err != nil {
		return ScanCompleted, NewCatalogUnavailableError(err, ref.Name())
	}
	defer func() { _ = it.Close() }()

	outcome := ScanCompleted
	visited := 0
	for it.Next() {
		row := it.Row()
		if row.IsEmpty() {
			continue
		}
		if opts.Filter != nil && !opts.Filter(row) {
			continue
		}
		cont, err := vis.Visit(ctx, row)
		if err != nil {
			return ScanAborted, err
		}
		if !cont {
			outcome = ScanAborted
			break
		}
		visited++
		if opts.MaxRows > 0 && visited >= opts.MaxRows {
			break
		}
	}
	if err := it.Error(); err != nil {
		return outcome, NewCatalogUnavailableError(err, ref.Name())
	}
	release()
	return outcome, nil
}
