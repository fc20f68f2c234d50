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

// Package catalog reads and writes the catalog tables that map every
// table's key space to its partitions and their serving locations. It
// layers the row and column contract of the keys package over the plain
// storage boundary: scans that deliver decoded partition records,
// single-row mutations that keep the catalog convergent under concurrent
// writers, and typed errors that keep absence, corruption and store
// unavailability distinct.
package catalog

import (
	"context"

	"github.com/cockroachdb/logtags"

	"github.com/rangekv/rangekv/catpb"
	"github.com/rangekv/rangekv/keys"
	"github.com/rangekv/rangekv/storage"
	"github.com/rangekv/rangekv/util/log"
)

// Accessor is the entry point for catalog reads and writes. It is
// stateless apart from its cache and safe for concurrent use.
type Accessor struct {
	eng   storage.Engine
	cfg   Config
	cache *PartitionCache
}

// NewAccessor returns an Accessor over the given engine.
func NewAccessor(eng storage.Engine, cfg Config) *Accessor {
	return &Accessor{eng: eng, cfg: cfg, cache: NewPartitionCache()}
}

func (a *Accessor) readConsistency() storage.ConsistencyLevel {
	if a.cfg.UseCatalogReplicas {
		return storage.Stale
	}
	return storage.Strong
}

func (a *Accessor) scanOpts(opts ScanOptions) ScanOptions {
	opts.CachingHint = a.cfg.ScannerCaching
	opts.Consistency = a.readConsistency()
	return opts
}

// Partition reads and decodes one partition's record by identifier.
func (a *Accessor) Partition(ctx context.Context, id catpb.PartitionID) (catpb.PartitionRecord, error) {
	ref, err := keys.CatalogFor(id.Table)
	if err != nil {
		return catpb.PartitionRecord{}, err
	}
	key, err := keys.MakePartitionKey(id.Primary())
	if err != nil {
		return catpb.PartitionRecord{}, err
	}
	cat, err := a.eng.Catalog(ref)
	if err != nil {
		return catpb.PartitionRecord{}, NewCatalogUnavailableError(err, ref.Name())
	}
	defer func() { _ = cat.Close() }()
	row, err := cat.Get(ctx, key, []string{keys.PartitionFamily})
	if err != nil {
		return catpb.PartitionRecord{}, NewCatalogUnavailableError(err, ref.Name())
	}
	if row.IsEmpty() {
		return catpb.PartitionRecord{}, NewPartitionNotFoundError(
			id.Table, key, "no record for %s", id.Primary())
	}
	return DecodePartitionRecord(row)
}

// PartitionLocation reads the serving location of one replica. The
// location is empty when the replica's slot is an unassigned
// placeholder; a missing row is a PartitionNotFoundError.
func (a *Accessor) PartitionLocation(ctx context.Context, id catpb.PartitionID) (catpb.ServerLocation, uint64, error) {
	ref, err := keys.CatalogFor(id.Table)
	if err != nil {
		return catpb.ServerLocation{}, 0, err
	}
	key, err := keys.MakePartitionKey(id.Primary())
	if err != nil {
		return catpb.ServerLocation{}, 0, err
	}
	cat, err := a.eng.Catalog(ref)
	if err != nil {
		return catpb.ServerLocation{}, 0, NewCatalogUnavailableError(err, ref.Name())
	}
	defer func() { _ = cat.Close() }()
	row, err := cat.Get(ctx, key, []string{keys.PartitionFamily})
	if err != nil {
		return catpb.ServerLocation{}, 0, NewCatalogUnavailableError(err, ref.Name())
	}
	if row.IsEmpty() {
		return catpb.ServerLocation{}, 0, NewPartitionNotFoundError(
			id.Table, key, "no record for %s", id.Primary())
	}
	loc, seq, _, err := Location(row, id.Replica)
	return loc, seq, err
}

// LocatePartition finds the partition of table that contains (or
// directly precedes) row, by a bounded reverse scan from a probe
// position just past row. It fails closed: if nothing precedes the
// probe, it returns PartitionNotFoundError rather than guessing.
func (a *Accessor) LocatePartition(ctx context.Context, table string, row []byte) (catpb.PartitionRecord, error) {
	ref, err := keys.CatalogFor(table)
	if err != nil {
		return catpb.PartitionRecord{}, err
	}
	start, probe, err := keys.ClosestPartitionBounds(table, row)
	if err != nil {
		return catpb.PartitionRecord{}, err
	}
	var rec catpb.PartitionRecord
	found := false
	_, err = Scan(ctx, a.eng, ref, a.scanOpts(ScanOptions{
		Start:   start,
		Stop:    probe,
		Query:   PartitionsQuery,
		Reverse: true,
	}), Visitor{
		Visit: func(_ context.Context, r storage.Row) (bool, error) {
			var decErr error
			rec, decErr = DecodePartitionRecord(r)
			if decErr != nil {
				return false, decErr
			}
			found = true
			return false, nil
		},
	})
	if err != nil {
		return catpb.PartitionRecord{}, err
	}
	if !found {
		return catpb.PartitionRecord{}, NewPartitionNotFoundError(
			table, row, "no partition at or before row")
	}
	return rec, nil
}

// LocatePartitionCached answers LocatePartition from the partition
// cache when it can, filling the cache on a miss. Callers that discover
// a cached answer is stale evict it with EvictPartition and look up
// again.
func (a *Accessor) LocatePartitionCached(ctx context.Context, table string, row []byte) (catpb.PartitionRecord, error) {
	if rec, ok := a.cache.LookupFloor(table, row); ok {
		return rec, nil
	}
	rec, err := a.LocatePartition(ctx, table, row)
	if err != nil {
		return catpb.PartitionRecord{}, err
	}
	// The lookup proved rec covers everything from its start key to row.
	if err := a.cache.Add(rec, row); err != nil {
		return catpb.PartitionRecord{}, err
	}
	return rec, nil
}

// EvictPartition drops a partition from the cache, reporting whether it
// was cached.
func (a *Accessor) EvictPartition(id catpb.PartitionID) bool {
	return a.cache.Evict(id)
}

// ListPartitions returns every partition record of table in start-key
// order. With excludeSplitParents, rows that have both daughters
// recorded and have left the serving states are dropped, so the result
// tiles the table's key space without overlap.
func (a *Accessor) ListPartitions(ctx context.Context, table string, excludeSplitParents bool) ([]catpb.PartitionRecord, error) {
	var recs []catpb.PartitionRecord
	_, err := a.ScanPartitions(ctx, table, Visitor{
		Visit: func(_ context.Context, r storage.Row) (bool, error) {
			rec, err := DecodePartitionRecord(r)
			if err != nil {
				return false, err
			}
			if excludeSplitParents && rec.IsSplitParent() &&
				(rec.State == catpb.PartitionSplitting || rec.State == catpb.PartitionOffline) {
				return true, nil
			}
			recs = append(recs, rec)
			return true, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// ScanPartitions scans every partition row of table in start-key order.
func (a *Accessor) ScanPartitions(ctx context.Context, table string, vis Visitor) (ScanOutcome, error) {
	ref, err := keys.CatalogFor(table)
	if err != nil {
		return ScanCompleted, err
	}
	start, end := keys.TableSpan(table)
	return Scan(ctx, a.eng, ref, a.scanOpts(ScanOptions{
		Start: start,
		Stop:  end,
		Query: PartitionsQuery,
	}), vis)
}

// ScanFrom scans the partition rows of table whose start key is at or
// after row, delivering at most limit rows (0 for no cap).
func (a *Accessor) ScanFrom(ctx context.Context, table string, row []byte, limit int, vis Visitor) (ScanOutcome, error) {
	ref, err := keys.CatalogFor(table)
	if err != nil {
		return ScanCompleted, err
	}
	_, end := keys.TableSpan(table)
	return Scan(ctx, a.eng, ref, a.scanOpts(ScanOptions{
		Start:   keys.PartitionKeyPrefix(table, row),
		Stop:    end,
		Query:   PartitionsQuery,
		MaxRows: limit,
	}), vis)
}

// FindPartitionBySuffix finds the partition whose identifier carries the
// given suffix, searching the main catalog first and the root catalog
// second. Linear in catalog size; intended for tooling, not the serving
// path.
func (a *Accessor) FindPartitionBySuffix(ctx context.Context, suffix uint64) (catpb.PartitionRecord, error) {
	matches := func(r storage.Row) bool {
		v, ok := r.Value(keys.PartitionFamily, keys.IdentifierQualifier)
		if !ok {
			return false
		}
		id, err := catpb.UnmarshalIdentifier(v)
		return err == nil && id.Suffix == suffix
	}
	for _, ref := range []keys.CatalogTable{keys.MainCatalog, keys.RootCatalog} {
		var rec catpb.PartitionRecord
		found := false
		_, err := Scan(ctx, a.eng, ref, a.scanOpts(ScanOptions{
			Query:   PartitionsQuery,
			Filter:  matches,
			MaxRows: 1,
		}), Visitor{
			Visit: func(_ context.Context, r storage.Row) (bool, error) {
				var decErr error
				rec, decErr = DecodePartitionRecord(r)
				if decErr != nil {
					return false, decErr
				}
				found = true
				return false, nil
			},
		})
		if err != nil {
			return catpb.PartitionRecord{}, err
		}
		if found {
			return rec, nil
		}
	}
	return catpb.PartitionRecord{}, NewPartitionNotFoundError(
		"", nil, "no partition with suffix %d", suffix)
}

// TableState reads a table's lifecycle state. The catalog tables
// themselves are implicitly ENABLED and carry no state row. present is
// false when the table has no state row, which is valid.
func (a *Accessor) TableState(ctx context.Context, table string) (state catpb.TableState, present bool, _ error) {
	if keys.IsCatalogTable(table) {
		return catpb.TableEnabled, true, nil
	}
	ref, err := keys.CatalogFor(table)
	if err != nil {
		return 0, false, err
	}
	cat, err := a.eng.Catalog(ref)
	if err != nil {
		return 0, false, NewCatalogUnavailableError(err, ref.Name())
	}
	defer func() { _ = cat.Close() }()
	row, err := cat.Get(ctx, keys.TableStateKey(table), []string{keys.TableFamily})
	if err != nil {
		return 0, false, NewCatalogUnavailableError(err, ref.Name())
	}
	return DecodeTableState(row)
}

// TableStates reads the state of every table that has a state row, in
// one scan of the main catalog.
func (a *Accessor) TableStates(ctx context.Context) (map[string]catpb.TableState, error) {
	states := make(map[string]catpb.TableState)
	_, err := Scan(ctx, a.eng, keys.MainCatalog, a.scanOpts(ScanOptions{
		Query: TablesQuery,
	}), Visitor{
		Visit: func(_ context.Context, r storage.Row) (bool, error) {
			state, present, err := DecodeTableState(r)
			if err != nil {
				return false, err
			}
			if present {
				states[string(r.Key)] = state
			}
			return true, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return states, nil
}

// applyMutations applies the given mutations to one catalog table,
// debug-logging each one.
func (a *Accessor) applyMutations(ctx context.Context, ref keys.CatalogTable, muts ...storage.Mutation) error {
	ctx = logtags.AddTag(ctx, "catalog", ref.Name())
	cat, err := a.eng.Catalog(ref)
	if err != nil {
		return NewCatalogUnavailableError(err, ref.Name())
	}
	defer func() { _ = cat.Close() }()
	for _, m := range muts {
		log.Eventf(ctx, 2, "apply %s", m)
	}
	if err := cat.Apply(ctx, muts...); err != nil {
		return NewCatalogUnavailableError(err, ref.Name())
	}
	return nil
}

// RegisterPartitions registers new partitions, each with the given
// replica count, all at one timestamp. The records are written CLOSED
// with empty placeholder locations; locations arrive later through
// SetLocation.
func (a *Accessor) RegisterPartitions(ctx context.Context, ids []catpb.PartitionID, replicas int, ts int64) error {
	byRef := make(map[keys.CatalogTable][]storage.Mutation)
	for _, id := range ids {
		ref, err := keys.CatalogFor(id.Table)
		if err != nil {
			return err
		}
		m, err := RegisterPartition(id, replicas, ts)
		if err != nil {
			return err
		}
		byRef[ref] = append(byRef[ref], m)
	}
	for ref, muts := range byRef {
		if err := a.applyMutations(ctx, ref, muts...); err != nil {
			return err
		}
	}
	return nil
}

// ApplySplit records a split: the daughters registered as new CLOSED
// partitions and the parent's row stamped with their identifiers, all at
// one timestamp. Atomicity is per row, so a reader may briefly see the
// daughters before the parent's split columns; lineage remains
// unambiguous because it lives on the parent row alone.
func (a *Accessor) ApplySplit(ctx context.Context, parent, da, db catpb.PartitionID, replicas int, ts int64) error {
	ref, err := keys.CatalogFor(parent.Table)
	if err != nil {
		return err
	}
	split, err := RecordSplit(parent, da, db, ts)
	if err != nil {
		return err
	}
	ra, err := RegisterPartition(da, replicas, ts)
	if err != nil {
		return err
	}
	rb, err := RegisterPartition(db, replicas, ts)
	if err != nil {
		return err
	}
	if err := a.applyMutations(ctx, ref, split, ra, rb); err != nil {
		return err
	}
	a.cache.Evict(parent)
	return nil
}

// SetLocation records where a replica is serving.
func (a *Accessor) SetLocation(ctx context.Context, id catpb.PartitionID, loc catpb.ServerLocation, openSeqNum uint64, ts int64) error {
	ref, err := keys.CatalogFor(id.Table)
	if err != nil {
		return err
	}
	m, err := UpdateLocation(id, loc, openSeqNum, ts)
	if err != nil {
		return err
	}
	if err := a.applyMutations(ctx, ref, m); err != nil {
		return err
	}
	a.cache.Evict(id)
	return nil
}

// RemovePartition deletes a partition's row. Terminal.
func (a *Accessor) RemovePartition(ctx context.Context, id catpb.PartitionID, ts int64) error {
	ref, err := keys.CatalogFor(id.Table)
	if err != nil {
		return err
	}
	m, err := DeletePartition(id, ts)
	if err != nil {
		return err
	}
	if err := a.applyMutations(ctx, ref, m); err != nil {
		return err
	}
	a.cache.Evict(id)
	return nil
}

// SetTableState sets a table's lifecycle state. Catalog tables carry no
// state row and cannot be disabled.
func (a *Accessor) SetTableState(ctx context.Context, table string, state catpb.TableState, ts int64) error {
	if keys.IsCatalogTable(table) {
		return keys.NewInvalidCatalogOperationError(
			"cannot set the state of catalog table %q", table)
	}
	ref, err := keys.CatalogFor(table)
	if err != nil {
		return err
	}
	return a.applyMutations(ctx, ref, SetTableState(table, state, ts))
}

// RemoveTableState deletes a table's state row.
func (a *Accessor) RemoveTableState(ctx context.Context, table string, ts int64) error {
	if keys.IsCatalogTable(table) {
		return keys.NewInvalidCatalogOperationError(
			"cannot clear the state of catalog table %q", table)
	}
	ref, err := keys.CatalogFor(table)
	if err != nil {
		return err
	}
	return a.applyMutations(ctx, ref, ClearTableState(table, ts))
}

// DumpCatalog logs every row of both catalog tables, decoded where
// possible. Diagnostic aid; the output goes through the catalog logger.
func (a *Accessor) DumpCatalog(ctx context.Context) error {
	for _, ref := range []keys.CatalogTable{keys.RootCatalog, keys.MainCatalog} {
		refCtx := logtags.AddTag(ctx, "catalog", ref.Name())
		_, err := Scan(ctx, a.eng, ref, a.scanOpts(ScanOptions{
			Query: AllQuery,
		}), Visitor{
			Visit: func(_ context.Context, r storage.Row) (bool, error) {
				if rec, err := DecodePartitionRecord(r); err == nil {
					log.Infof(refCtx, "%s state=%s replicas=%d splitParent=%t",
						rec.ID, rec.State, len(rec.Replicas), rec.IsSplitParent())
					return true, nil
				}
				if state, present, err := DecodeTableState(r); err == nil && present {
					log.Infof(refCtx, "table %s state=%s", r.Key, state)
					return true, nil
				}
				log.Infof(refCtx, "row %s (%d cells)", r.Key, len(r.Cells))
				return true, nil
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}
