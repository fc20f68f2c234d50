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
	"bytes"
	"context"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/rangekv/rangekv/catpb"
	"github.com/rangekv/rangekv/keys"
	"github.com/rangekv/rangekv/util/encoding"
)

// PebbleEngine implements Engine on a Pebble store. Both catalog tables
// share one keyspace; every cell is stored under
//
//	enc(catalogName) ++ enc(rowKey) ++ enc(family) ++ enc(qualifier)
//
// with the value prefixed by its 8-byte timestamp. Because the bytes
// encoding is prefix-free, row-key scan bounds translate directly into
// cell-key bounds.
type PebbleEngine struct {
	db *pebble.DB
}

var _ Engine = (*PebbleEngine)(nil)

// NewPebbleEngine opens (or creates) a Pebble store at the given path.
func NewPebbleEngine(path string, fs vfs.FS) (*PebbleEngine, error) {
	db, err := pebble.Open(path, &pebble.Options{FS: fs})
	if err != nil {
		return nil, errors.Wrapf(err, "opening pebble store at %q", path)
	}
	return &PebbleEngine{db: db}, nil
}

// NewMemEngine returns an engine backed by an in-memory filesystem.
// Used by tests.
func NewMemEngine() (*PebbleEngine, error) {
	return NewPebbleEngine("", vfs.NewMem())
}

// Close closes the underlying store.
func (e *PebbleEngine) Close() error {
	return e.db.Close()
}

// Catalog implements Engine.
func (e *PebbleEngine) Catalog(ref keys.CatalogTable) (Catalog, error) {
	switch ref {
	case keys.RootCatalog, keys.MainCatalog:
	default:
		return nil, errors.Errorf("unknown catalog table reference %d", int(ref))
	}
	return &pebbleCatalog{
		db:     e.db,
		prefix: encoding.EncodeBytesAscending(nil, []byte(ref.Name())),
	}, nil
}

type pebbleCatalog struct {
	db     *pebble.DB
	prefix []byte
}

var _ Catalog = (*pebbleCatalog)(nil)

func (c *pebbleCatalog) cellKey(row catpb.Key, family, qualifier string) []byte {
	k := append([]byte(nil), c.prefix...)
	k = encoding.EncodeBytesAscending(k, row)
	k = encoding.EncodeBytesAscending(k, []byte(family))
	k = encoding.EncodeBytesAscending(k, []byte(qualifier))
	return k
}

func (c *pebbleCatalog) rowPrefix(row catpb.Key) []byte {
	return encoding.EncodeBytesAscending(append([]byte(nil), c.prefix...), row)
}

// decodeCellKey splits a full cell key into its row key, family and
// qualifier.
func (c *pebbleCatalog) decodeCellKey(k []byte) (row catpb.Key, family, qualifier string, _ error) {
	if !bytes.HasPrefix(k, c.prefix) {
		return nil, "", "", errors.Errorf("cell key %q outside catalog prefix", k)
	}
	b, rowB, err := encoding.DecodeBytesAscending(k[len(c.prefix):], nil)
	if err != nil {
		return nil, "", "", err
	}
	b, famB, err := encoding.DecodeBytesAscending(b, nil)
	if err != nil {
		return nil, "", "", err
	}
	b, qualB, err := encoding.DecodeBytesAscending(b, nil)
	if err != nil {
		return nil, "", "", err
	}
	if len(b) != 0 {
		return nil, "", "", errors.Errorf("cell key %q has leftover bytes", k)
	}
	return append(catpb.Key(nil), rowB...), string(famB), string(qualB), nil
}

func encodeCellValue(ts int64, value []byte) []byte {
	v := make([]byte, 8, 8+len(value))
	binary.BigEndian.PutUint64(v, uint64(ts))
	return append(v, value...)
}

func decodeCellValue(v []byte) (int64, []byte, error) {
	if len(v) < 8 {
		return 0, nil, errors.Errorf("cell value too short: %d bytes", len(v))
	}
	ts := int64(binary.BigEndian.Uint64(v))
	val := append([]byte(nil), v[8:]...)
	return ts, val, nil
}

func familyAllowed(families []string, family string) bool {
	if families == nil {
		return true
	}
	for _, f := range families {
		if f == family {
			return true
		}
	}
	return false
}

// Get implements Catalog.
func (c *pebbleCatalog) Get(ctx context.Context, key catpb.Key, families []string) (Row, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, err
	}
	lower := c.rowPrefix(key)
	it, err := c.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: encoding.PrefixEnd(lower),
	})
	if err != nil {
		return Row{}, err
	}
	row := Row{Key: append(catpb.Key(nil), key...)}
	for valid := it.First(); valid; valid = it.Next() {
		_, family, qualifier, err := c.decodeCellKey(it.Key())
		if err != nil {
			_ = it.Close()
			return Row{}, err
		}
		if !familyAllowed(families, family) {
			continue
		}
		ts, val, err := decodeCellValue(it.Value())
		if err != nil {
			_ = it.Close()
			return Row{}, err
		}
		row.Cells = append(row.Cells, Cell{
			Family: family, Qualifier: qualifier, Value: val, Timestamp: ts,
		})
	}
	if err := it.Error(); err != nil {
		_ = it.Close()
		return Row{}, err
	}
	if err := it.Close(); err != nil {
		return Row{}, err
	}
	if len(row.Cells) == 0 {
		return Row{Key: row.Key}, nil
	}
	return row, nil
}

// Apply implements Catalog. Each column write is last-write-wins against
// the cell's existing timestamp; a put carrying an older timestamp than
// the stored cell is dropped.
func (c *pebbleCatalog) Apply(ctx context.Context, muts ...Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	batch := c.db.NewBatch()
	defer func() { _ = batch.Close() }()
	// Timestamps of cells already written by this batch. Writes buffered
	// here shadow the stored cell, so later puts compare against these.
	pending := make(map[string]int64)
	for _, m := range muts {
		for _, p := range m.Puts {
			ck := c.cellKey(m.Key, p.Family, p.Qualifier)
			if ts, ok := pending[string(ck)]; ok {
				if ts > m.Timestamp {
					continue
				}
			} else if old, closer, err := c.db.Get(ck); err == nil {
				oldTS, _, decErr := decodeCellValue(old)
				_ = closer.Close()
				if decErr == nil && oldTS > m.Timestamp {
					continue
				}
			} else if !errors.Is(err, pebble.ErrNotFound) {
				return err
			}
			if err := batch.Set(ck, encodeCellValue(m.Timestamp, p.Value), nil); err != nil {
				return err
			}
			pending[string(ck)] = m.Timestamp
		}
		for _, d := range m.Deletes {
			if err := batch.Delete(c.cellKey(m.Key, d.Family, d.Qualifier), nil); err != nil {
				return err
			}
		}
		for _, fam := range m.DeleteFamilies {
			famPrefix := encoding.EncodeBytesAscending(c.rowPrefix(m.Key), []byte(fam))
			it, err := c.db.NewIter(&pebble.IterOptions{
				LowerBound: famPrefix,
				UpperBound: encoding.PrefixEnd(famPrefix),
			})
			if err != nil {
				return err
			}
			for valid := it.First(); valid; valid = it.Next() {
				if err := batch.Delete(append([]byte(nil), it.Key()...), nil); err != nil {
					_ = it.Close()
					return err
				}
			}
			if err := it.Close(); err != nil {
				return err
			}
		}
	}
	return batch.Commit(pebble.Sync)
}

// NewIterator implements Catalog.
func (c *pebbleCatalog) NewIterator(ctx context.Context, opts ScanOptions) (Iterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lower := append([]byte(nil), c.prefix...)
	if opts.Start != nil {
		lower = c.rowPrefix(opts.Start)
	}
	upper := encoding.PrefixEnd(c.prefix)
	if opts.End != nil {
		upper = c.rowPrefix(opts.End)
	}
	it, err := c.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: upper,
	})
	if err != nil {
		return nil, err
	}
	return &pebbleIterator{cat: c, it: it, opts: opts}, nil
}

// Close implements Catalog. Handles share the engine's store; there is
// nothing to release per handle.
func (c *pebbleCatalog) Close() error { return nil }

type pebbleIterator struct {
	cat         *pebbleCatalog
	it          *pebble.Iterator
	opts        ScanOptions
	cur         Row
	err         error
	initialized bool
	exhausted   bool
}

var _ Iterator = (*pebbleIterator)(nil)

// Next assembles the next row from consecutive cells sharing a row key.
// The pebble iterator is left positioned on the first cell of the
// following row (or invalid at the end).
func (i *pebbleIterator) Next() bool {
	if i.err != nil || i.exhausted {
		return false
	}
	if !i.initialized {
		i.initialized = true
		var valid bool
		if i.opts.Reverse {
			valid = i.it.Last()
		} else {
			valid = i.it.First()
		}
		if !valid {
			return i.finish()
		}
	}
	if !i.it.Valid() {
		return i.finish()
	}
	rowKey, row, ok := i.assembleRow()
	if !ok {
		return false
	}
	i.cur = Row{Key: rowKey, Cells: row}
	return true
}

// assembleRow collects every cell of the row under the current position
// and steps past it.
func (i *pebbleIterator) assembleRow() (catpb.Key, []Cell, bool) {
	rowKey, family, qualifier, err := i.cat.decodeCellKey(i.it.Key())
	if err != nil {
		i.err = err
		return nil, nil, false
	}
	var cells []Cell
	for {
		if familyAllowed(i.opts.Families, family) {
			ts, val, err := decodeCellValue(i.it.Value())
			if err != nil {
				i.err = err
				return nil, nil, false
			}
			cells = append(cells, Cell{
				Family: family, Qualifier: qualifier, Value: val, Timestamp: ts,
			})
		}
		var valid bool
		if i.opts.Reverse {
			valid = i.it.Prev()
		} else {
			valid = i.it.Next()
		}
		if !valid {
			if err := i.it.Error(); err != nil {
				i.err = err
				return nil, nil, false
			}
			i.exhausted = true
			break
		}
		var nextRow catpb.Key
		nextRow, family, qualifier, err = i.cat.decodeCellKey(i.it.Key())
		if err != nil {
			i.err = err
			return nil, nil, false
		}
		if !nextRow.Equal(rowKey) {
			break
		}
	}
	if i.opts.Reverse {
		// Cells were collected in reverse qualifier order.
		for l, r := 0, len(cells)-1; l < r; l, r = l+1, r-1 {
			cells[l], cells[r] = cells[r], cells[l]
		}
	}
	return rowKey, cells, true
}

func (i *pebbleIterator) finish() bool {
	if err := i.it.Error(); err != nil {
		i.err = err
	}
	i.exhausted = true
	return false
}

// Row implements Iterator.
func (i *pebbleIterator) Row() Row { return i.cur }

// Error implements Iterator.
func (i *pebbleIterator) Error() error { return i.err }

// Close implements Iterator.
func (i *pebbleIterator) Close() error { return i.it.Close() }
