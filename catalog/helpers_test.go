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

	"github.com/stretchr/testify/require"

	"github.com/rangekv/rangekv/catpb"
	"github.com/rangekv/rangekv/keys"
	"github.com/rangekv/rangekv/storage"
)

// failingEngine refuses every catalog handle, standing in for a store
// that is down.
type failingEngine struct {
	err error
}

func (e failingEngine) Catalog(keys.CatalogTable) (storage.Catalog, error) {
	return nil, e.err
}

func newTestEngine(t *testing.T) storage.Engine {
	t.Helper()
	eng, err := storage.NewMemEngine()
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, eng.Close()) })
	return eng
}

func applyAll(t *testing.T, eng storage.Engine, ref keys.CatalogTable, muts ...storage.Mutation) {
	t.Helper()
	cat, err := eng.Catalog(ref)
	require.NoError(t, err)
	defer func() { require.NoError(t, cat.Close()) }()
	require.NoError(t, cat.Apply(context.Background(), muts...))
}

func pid(table, start string, suffix uint64) catpb.PartitionID {
	return catpb.PartitionID{Table: table, StartKey: []byte(start), Suffix: suffix}
}

// register writes a fresh partition record straight through the builder.
func register(t *testing.T, eng storage.Engine, id catpb.PartitionID, replicas int, ts int64) {
	t.Helper()
	ref, err := keys.CatalogFor(id.Table)
	require.NoError(t, err)
	m, err := RegisterPartition(id, replicas, ts)
	require.NoError(t, err)
	applyAll(t, eng, ref, m)
}

func readRow(t *testing.T, eng storage.Engine, ref keys.CatalogTable, id catpb.PartitionID) storage.Row {
	t.Helper()
	key, err := keys.MakePartitionKey(id.Primary())
	require.NoError(t, err)
	cat, err := eng.Catalog(ref)
	require.NoError(t, err)
	defer func() { require.NoError(t, cat.Close()) }()
	row, err := cat.Get(context.Background(), key, nil)
	require.NoError(t, err)
	return row
}
