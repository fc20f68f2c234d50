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

package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rangekv/rangekv/catpb"
	"github.com/rangekv/rangekv/keys"
)

func newTestCatalog(t *testing.T) Catalog {
	t.Helper()
	eng, err := NewMemEngine()
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, eng.Close()) })
	cat, err := eng.Catalog(keys.MainCatalog)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, cat.Close()) })
	return cat
}

func put(key string, ts int64, cols ...ColumnValue) Mutation {
	return Mutation{Key: catpb.Key(key), Timestamp: ts, Puts: cols}
}

func col(family, qualifier, value string) ColumnValue {
	return ColumnValue{Family: family, Qualifier: qualifier, Value: []byte(value)}
}

func TestPebbleGetPut(t *testing.T) {
	ctx := context.Background()
	cat := newTestCatalog(t)

	require.NoError(t, cat.Apply(ctx,
		put("row1", 10, col("part", "identifier", "id1"), col("part", "state", "CLOSED")),
	))

	row, err := cat.Get(ctx, catpb.Key("row1"), nil)
	require.NoError(t, err)
	require.False(t, row.IsEmpty())
	v, ok := row.Value("part", "identifier")
	require.True(t, ok)
	require.Equal(t, []byte("id1"), v)
	c, ok := row.Cell("part", "state")
	require.True(t, ok)
	require.Equal(t, int64(10), c.Timestamp)

	// Family filter.
	row, err = cat.Get(ctx, catpb.Key("row1"), []string{"table"})
	require.NoError(t, err)
	require.True(t, row.IsEmpty())

	// Missing row reads back empty, not an error.
	row, err = cat.Get(ctx, catpb.Key("nope"), nil)
	require.NoError(t, err)
	require.True(t, row.IsEmpty())
}

func TestPebbleLastWriteWins(t *testing.T) {
	ctx := context.Background()
	cat := newTestCatalog(t)

	require.NoError(t, cat.Apply(ctx, put("r", 20, col("part", "server", "a:1"))))
	// An older write must not clobber a newer cell.
	require.NoError(t, cat.Apply(ctx, put("r", 10, col("part", "server", "stale:1"))))
	row, err := cat.Get(ctx, catpb.Key("r"), nil)
	require.NoError(t, err)
	v, _ := row.Value("part", "server")
	require.Equal(t, []byte("a:1"), v)

	// Same timestamp re-apply is idempotent.
	require.NoError(t, cat.Apply(ctx, put("r", 20, col("part", "server", "a:1"))))
	row, err = cat.Get(ctx, catpb.Key("r"), nil)
	require.NoError(t, err)
	v, _ = row.Value("part", "server")
	require.Equal(t, []byte("a:1"), v)

	// A newer write replaces.
	require.NoError(t, cat.Apply(ctx, put("r", 30, col("part", "server", "b:2"))))
	row, err = cat.Get(ctx, catpb.Key("r"), nil)
	require.NoError(t, err)
	v, _ = row.Value("part", "server")
	require.Equal(t, []byte("b:2"), v)
}

func TestPebbleLastWriteWinsWithinBatch(t *testing.T) {
	ctx := context.Background()
	cat := newTestCatalog(t)

	// Both writes land in one Apply. The older one must lose even though
	// neither is visible to reads until the batch commits.
	require.NoError(t, cat.Apply(ctx,
		put("r", 20, col("part", "server", "a:1")),
		put("r", 10, col("part", "server", "stale:1")),
	))
	row, err := cat.Get(ctx, catpb.Key("r"), nil)
	require.NoError(t, err)
	v, _ := row.Value("part", "server")
	require.Equal(t, []byte("a:1"), v)
	c, _ := row.Cell("part", "server")
	require.Equal(t, int64(20), c.Timestamp)

	// The other order keeps the newer write too.
	require.NoError(t, cat.Apply(ctx,
		put("r", 30, col("part", "server", "b:2")),
		put("r", 40, col("part", "server", "c:3")),
	))
	row, err = cat.Get(ctx, catpb.Key("r"), nil)
	require.NoError(t, err)
	v, _ = row.Value("part", "server")
	require.Equal(t, []byte("c:3"), v)
}

func TestPebbleDeletes(t *testing.T) {
	ctx := context.Background()
	cat := newTestCatalog(t)

	require.NoError(t, cat.Apply(ctx, put("r", 1,
		col("part", "identifier", "x"),
		col("part", "server", "a:1"),
		col("table", "state", "y"),
	)))
	require.NoError(t, cat.Apply(ctx, Mutation{
		Key: catpb.Key("r"), Timestamp: 2,
		Deletes: []Column{{Family: "part", Qualifier: "server"}},
	}))
	row, err := cat.Get(ctx, catpb.Key("r"), nil)
	require.NoError(t, err)
	_, ok := row.Value("part", "server")
	require.False(t, ok)
	_, ok = row.Value("part", "identifier")
	require.True(t, ok)

	require.NoError(t, cat.Apply(ctx, Mutation{
		Key: catpb.Key("r"), Timestamp: 3,
		DeleteFamilies: []string{"part"},
	}))
	row, err = cat.Get(ctx, catpb.Key("r"), nil)
	require.NoError(t, err)
	_, ok = row.Value("part", "identifier")
	require.False(t, ok)
	_, ok = row.Value("table", "state")
	require.True(t, ok)
}

func TestPebbleScan(t *testing.T) {
	ctx := context.Background()
	cat := newTestCatalog(t)

	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, cat.Apply(ctx, put(k, 1, col("part", "state", "OPEN"))))
	}

	collect := func(opts ScanOptions) []string {
		it, err := cat.NewIterator(ctx, opts)
		require.NoError(t, err)
		defer func() { require.NoError(t, it.Close()) }()
		var got []string
		for it.Next() {
			got = append(got, string(it.Row().Key))
		}
		require.NoError(t, it.Error())
		return got
	}

	require.Equal(t, []string{"a", "b", "c", "d"}, collect(ScanOptions{}))
	require.Equal(t, []string{"b", "c"},
		collect(ScanOptions{Start: catpb.Key("b"), End: catpb.Key("d")}))
	require.Equal(t, []string{"d", "c", "b", "a"}, collect(ScanOptions{Reverse: true}))
	require.Equal(t, []string{"c", "b"},
		collect(ScanOptions{Start: catpb.Key("b"), End: catpb.Key("d"), Reverse: true}))
}

func TestPebbleScanMultiCellRows(t *testing.T) {
	ctx := context.Background()
	cat := newTestCatalog(t)

	require.NoError(t, cat.Apply(ctx, put("r1", 1,
		col("part", "identifier", "x"),
		col("part", "server", "a:1"),
		col("part", "state", "OPEN"),
	)))
	require.NoError(t, cat.Apply(ctx, put("r2", 1, col("part", "state", "CLOSED"))))

	for _, reverse := range []bool{false, true} {
		it, err := cat.NewIterator(ctx, ScanOptions{Reverse: reverse})
		require.NoError(t, err)
		var rows []Row
		for it.Next() {
			rows = append(rows, it.Row())
		}
		require.NoError(t, it.Error())
		require.NoError(t, it.Close())
		require.Len(t, rows, 2)
		r1 := rows[0]
		if reverse {
			r1 = rows[1]
		}
		require.Equal(t, catpb.Key("r1"), r1.Key)
		require.Len(t, r1.Cells, 3)
		// Cells come back in qualifier order regardless of direction.
		require.Equal(t, "identifier", r1.Cells[0].Qualifier)
	}
}

func TestPebbleEnginePrefixIsolation(t *testing.T) {
	ctx := context.Background()
	eng, err := NewMemEngine()
	require.NoError(t, err)
	defer func() { require.NoError(t, eng.Close()) }()

	root, err := eng.Catalog(keys.RootCatalog)
	require.NoError(t, err)
	main, err := eng.Catalog(keys.MainCatalog)
	require.NoError(t, err)

	require.NoError(t, root.Apply(ctx, put("k", 1, col("part", "state", "root"))))
	require.NoError(t, main.Apply(ctx, put("k", 1, col("part", "state", "main"))))

	row, err := root.Get(ctx, catpb.Key("k"), nil)
	require.NoError(t, err)
	v, _ := row.Value("part", "state")
	require.Equal(t, []byte("root"), v)

	row, err = main.Get(ctx, catpb.Key("k"), nil)
	require.NoError(t, err)
	v, _ = row.Value("part", "state")
	require.Equal(t, []byte("main"), v)
}
