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
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/rangekv/rangekv/catpb"
	"github.com/rangekv/rangekv/keys"
	"github.com/rangekv/rangekv/storage"
)

// collectStarts scans table t and returns the start keys of the visited
// partition rows.
func collectStarts(t *testing.T, eng storage.Engine, table string, opts ScanOptions) []string {
	t.Helper()
	var starts []string
	start, end := keys.TableSpan(table)
	opts.Start, opts.Stop = start, end
	opts.Query = PartitionsQuery
	outcome, err := Scan(context.Background(), eng, keys.MainCatalog, opts, Visitor{
		Visit: func(_ context.Context, r storage.Row) (bool, error) {
			rec, err := DecodePartitionRecord(r)
			if err != nil {
				return false, err
			}
			starts = append(starts, string(rec.ID.StartKey))
			return true, nil
		},
	})
	require.NoError(t, err)
	require.Equal(t, ScanCompleted, outcome)
	return starts
}

func TestScanScoping(t *testing.T) {
	eng := newTestEngine(t)
	for i, start := range []string{"", "m", "z"} {
		register(t, eng, pid("t", start, uint64(i+1)), 1, 10)
	}
	// Tables whose identifiers are byte-prefixes or extensions of "t"
	// must stay invisible to a scan of "t".
	register(t, eng, pid("tx", "q", 9), 1, 10)
	register(t, eng, pid("t\x00", "q", 9), 1, 10)

	require.Equal(t, []string{"", "m", "z"}, collectStarts(t, eng, "t", ScanOptions{}))
	require.Equal(t, []string{"q"}, collectStarts(t, eng, "tx", ScanOptions{}))
}

func TestScanReverse(t *testing.T) {
	eng := newTestEngine(t)
	for i, start := range []string{"", "m", "z"} {
		register(t, eng, pid("t", start, uint64(i+1)), 1, 10)
	}
	require.Equal(t, []string{"z", "m", ""},
		collectStarts(t, eng, "t", ScanOptions{Reverse: true}))
}

func TestScanMaxRows(t *testing.T) {
	eng := newTestEngine(t)
	for i, start := range []string{"", "m", "z"} {
		register(t, eng, pid("t", start, uint64(i+1)), 1, 10)
	}
	require.Equal(t, []string{"", "m"},
		collectStarts(t, eng, "t", ScanOptions{MaxRows: 2}))
}

func TestScanVisitorAbort(t *testing.T) {
	eng := newTestEngine(t)
	for i, start := range []string{"", "m", "z"} {
		register(t, eng, pid("t", start, uint64(i+1)), 1, 10)
	}
	start, end := keys.TableSpan("t")
	seen := 0
	outcome, err := Scan(context.Background(), eng, keys.MainCatalog, ScanOptions{
		Start: start, Stop: end, Query: PartitionsQuery,
	}, Visitor{
		Visit: func(context.Context, storage.Row) (bool, error) {
			seen++
			return seen < 2, nil
		},
	})
	require.NoError(t, err)
	require.Equal(t, ScanAborted, outcome)
	require.Equal(t, 2, seen)
}

func TestScanVisitorError(t *testing.T) {
	eng := newTestEngine(t)
	register(t, eng, pid("t", "", 1), 1, 10)
	start, end := keys.TableSpan("t")
	boom := errors.New("boom")
	_, err := Scan(context.Background(), eng, keys.MainCatalog, ScanOptions{
		Start: start, Stop: end, Query: PartitionsQuery,
	}, Visitor{
		Visit: func(context.Context, storage.Row) (bool, error) {
			return false, boom
		},
	})
	require.ErrorIs(t, err, boom)
	require.False(t, IsCatalogUnavailable(err))
}

func TestScanStoreFailure(t *testing.T) {
	boom := errors.New("store down")
	eng := failingEngine{err: boom}
	released := 0
	_, err := Scan(context.Background(), eng, keys.MainCatalog, ScanOptions{
		Query: PartitionsQuery,
	}, Visitor{
		Visit:   func(context.Context, storage.Row) (bool, error) { return true, nil },
		Release: func() { released++ },
	})
	require.True(t, IsCatalogUnavailable(err))
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, released)
}

func TestScanSkipsEmptyRows(t *testing.T) {
	eng := newTestEngine(t)
	register(t, eng, pid("t", "m", 1), 1, 10)
	// A row carrying only empty placeholder cells must be invisible.
	empty, err := ClearLocation(pid("t", "a", 2), 0, 10)
	require.NoError(t, err)
	applyAll(t, eng, keys.MainCatalog, empty)

	require.Equal(t, []string{"m"}, collectStarts(t, eng, "t", ScanOptions{}))
	// It must not count toward MaxRows either.
	require.Equal(t, []string{"m"}, collectStarts(t, eng, "t", ScanOptions{MaxRows: 1}))
}

func TestScanFilter(t *testing.T) {
	eng := newTestEngine(t)
	for i, start := range []string{"", "m", "z"} {
		register(t, eng, pid("t", start, uint64(i+1)), 1, 10)
	}
	onlySuffixTwo := func(r storage.Row) bool {
		v, ok := r.Value(keys.PartitionFamily, keys.IdentifierQualifier)
		if !ok {
			return false
		}
		id, err := catpb.UnmarshalIdentifier(v)
		return err == nil && id.Suffix == 2
	}
	// Filtered rows do not count toward MaxRows.
	require.Equal(t, []string{"m"},
		collectStarts(t, eng, "t", ScanOptions{Filter: onlySuffixTwo, MaxRows: 1}))
}

func TestScanReleaseExactlyOnce(t *testing.T) {
	eng := newTestEngine(t)
	for i, start := range []string{"", "m"} {
		register(t, eng, pid("t", start, uint64(i+1)), 1, 10)
	}
	start, end := keys.TableSpan("t")

	run := func(vis func(context.Context, storage.Row) (bool, error)) int {
		released := 0
		_, _ = Scan(context.Background(), eng, keys.MainCatalog, ScanOptions{
			Start: start, Stop: end, Query: PartitionsQuery,
		}, Visitor{
			Visit:   vis,
			Release: func() { released++ },
		})
		return released
	}

	// Completion, abort, and visitor error each release exactly once.
	require.Equal(t, 1, run(func(context.Context, storage.Row) (bool, error) {
		return true, nil
	}))
	require.Equal(t, 1, run(func(context.Context, storage.Row) (bool, error) {
		return false, nil
	}))
	require.Equal(t, 1, run(func(context.Context, storage.Row) (bool, error) {
		return false, errors.New("boom")
	}))
}
