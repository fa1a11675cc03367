// Copyright 2026 The Corestate Authors
// This file is part of Corestate.
//
// Corestate is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Corestate is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Corestate. If not, see <http://www.gnu.org/licenses/>.

// Package memdb is a reference, in-process implementation of the kv
// contract (package kv), backed by google/btree instead of mdbx. mdbx
// itself is out of scope for this module; memdb exists so
// the Mutation Buffer and the staged execution loop are runnable and
// testable in-process, the same role erigon-lib's own memdb package
// plays in that project's test suite.
//
// memdb applies writes to its tables immediately: it does not model
// mdbx's copy-on-write MVCC rollback, since that belongs to the embedded
// engine this module treats as an external collaborator. Rollback is
// therefore a no-op; callers that need "discard on failure" semantics get
// them from the Mutation Buffer layered on top, not from memdb itself.
package memdb

import (
	"bytes"

	"github.com/google/btree"
	"github.com/pkg/errors"

	"github.com/erigon-akula/corestate/kv"
)

type entry struct {
	key   []byte
	value []byte
}

// lessSimple orders a simple table's single entry per key.
func lessSimple(a, b entry) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// lessDup orders a dup-sort table's entries by key, then by value, so that
// all values under one key are contiguous and themselves ordered.
func lessDup(a, b entry) bool {
	if c := bytes.Compare(a.key, b.key); c != 0 {
		return c < 0
	}
	return bytes.Compare(a.value, b.value) < 0
}

type table struct {
	dupSort bool
	tree    *btree.BTreeG[entry]
}

// Store is the root, always-committed table set. It is not safe for
// concurrent use, matching every other type in this module.
type Store struct {
	cfg    kv.TableCfg
	tables map[string]*table
	seq    map[string]uint64
}

// NewStore builds an empty Store whose tables are exactly those named in
// cfg, each configured simple or dup-sort per cfg.
func NewStore(cfg kv.TableCfg) *Store {
	s := &Store{
		cfg:    cfg,
		tables: make(map[string]*table, len(cfg)),
		seq:    make(map[string]uint64),
	}
	for name, item := range cfg {
		dupSort := item.IsDupSort()
		less := lessSimple
		if dupSort {
			less = lessDup
		}
		s.tables[name] = &table{
			dupSort: dupSort,
			tree:    btree.NewG(32, less),
		}
	}
	return s
}

// BeginRw opens a transaction over the store. All writes through the
// returned Tx are visible immediately (see package doc).
func (s *Store) BeginRw() *Tx {
	return &Tx{store: s}
}

// Dump returns every (key, value) pair in table, in ascending key order
// (and, for dup-sort tables, ascending value order within a key). It is
// meant for tests asserting exact post-commit contents.
func (s *Store) Dump(tableName string) ([][2][]byte, error) {
	t, ok := s.tables[tableName]
	if !ok {
		return nil, errors.Wrapf(kv.ErrTableNotFound, "table %q", tableName)
	}
	var out [][2][]byte
	t.tree.Ascend(func(e entry) bool {
		out = append(out, [2][]byte{e.key, e.value})
		return true
	})
	return out, nil
}

func (s *Store) mustTable(name string) (*table, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, errors.Wrapf(kv.ErrTableNotFound, "table %q", name)
	}
	return t, nil
}

// Tx implements kv.RwTx over a Store.
type Tx struct {
	store *Store
}

var _ kv.RwTx = (*Tx)(nil)

func (tx *Tx) GetOne(tableName string, key []byte) ([]byte, error) {
	t, err := tx.store.mustTable(tableName)
	if err != nil {
		return nil, err
	}
	if t.dupSort {
		var found []byte
		t.tree.AscendGreaterOrEqual(entry{key: key}, func(e entry) bool {
			if !bytes.Equal(e.key, key) {
				return false
			}
			found = e.value
			return false
		})
		return found, nil
	}
	if e, ok := t.tree.Get(entry{key: key}); ok {
		return e.value, nil
	}
	return nil, nil
}

func (tx *Tx) Put(tableName string, k, v []byte) error {
	t, err := tx.store.mustTable(tableName)
	if err != nil {
		return err
	}
	if t.dupSort {
		return errors.Wrapf(kv.ErrWrongTableKind, "Put on dup-sort table %q", tableName)
	}
	t.tree.ReplaceOrInsert(entry{key: append([]byte(nil), k...), value: append([]byte(nil), v...)})
	return nil
}

func (tx *Tx) Delete(tableName string, k []byte) error {
	t, err := tx.store.mustTable(tableName)
	if err != nil {
		return err
	}
	if t.dupSort {
		return errors.Wrapf(kv.ErrWrongTableKind, "Delete on dup-sort table %q", tableName)
	}
	t.tree.Delete(entry{key: k})
	return nil
}

func (tx *Tx) ReadSequence(tableName string) (uint64, error) {
	if _, err := tx.store.mustTable(tableName); err != nil {
		return 0, err
	}
	return tx.store.seq[tableName], nil
}

func (tx *Tx) IncrementSequence(tableName string, amount uint64) (uint64, error) {
	if _, err := tx.store.mustTable(tableName); err != nil {
		return 0, err
	}
	prior := tx.store.seq[tableName]
	tx.store.seq[tableName] = prior + amount
	return prior, nil
}

func (tx *Tx) RwCursor(tableName string) (kv.RwCursor, error) {
	t, err := tx.store.mustTable(tableName)
	if err != nil {
		return nil, err
	}
	if t.dupSort {
		return nil, errors.Wrapf(kv.ErrWrongTableKind, "RwCursor on dup-sort table %q", tableName)
	}
	return &cursor{t: t}, nil
}

func (tx *Tx) RwCursorDupSort(tableName string) (kv.RwCursorDupSort, error) {
	t, err := tx.store.mustTable(tableName)
	if err != nil {
		return nil, err
	}
	if !t.dupSort {
		return nil, errors.Wrapf(kv.ErrWrongTableKind, "RwCursorDupSort on simple table %q", tableName)
	}
	return &cursor{t: t}, nil
}

func (tx *Tx) Commit() error { return nil }
func (tx *Tx) Rollback()     {}

// cursor implements kv.RwCursor and kv.RwCursorDupSort.
type cursor struct {
	t          *table
	currentKey []byte
}

func (c *cursor) SeekExact(key []byte) (k, v []byte, err error) {
	if c.t.dupSort {
		var fk, fv []byte
		c.t.tree.AscendGreaterOrEqual(entry{key: key}, func(e entry) bool {
			if !bytes.Equal(e.key, key) {
				return false
			}
			fk, fv = e.key, e.value
			return false
		})
		c.currentKey = key
		return fk, fv, nil
	}
	if e, ok := c.t.tree.Get(entry{key: key}); ok {
		c.currentKey = key
		return e.key, e.value, nil
	}
	c.currentKey = key
	return nil, nil, nil
}

func (c *cursor) SeekBothExact(key, value []byte) (k, v []byte, err error) {
	if e, ok := c.t.tree.Get(entry{key: key, value: value}); ok {
		c.currentKey = key
		return e.key, e.value, nil
	}
	c.currentKey = key
	return nil, nil, nil
}

func (c *cursor) SeekBothRange(key, value []byte) (v []byte, err error) {
	var found []byte
	c.t.tree.AscendGreaterOrEqual(entry{key: key, value: value}, func(e entry) bool {
		if !bytes.Equal(e.key, key) {
			return false
		}
		found = e.value
		return false
	})
	c.currentKey = key
	return found, nil
}

func (c *cursor) AllDupValues(key []byte) ([][]byte, error) {
	var out [][]byte
	c.t.tree.AscendGreaterOrEqual(entry{key: key}, func(e entry) bool {
		if !bytes.Equal(e.key, key) {
			return false
		}
		out = append(out, e.value)
		return true
	})
	c.currentKey = key
	return out, nil
}

func (c *cursor) Put(k, v []byte) error {
	c.t.tree.ReplaceOrInsert(entry{key: append([]byte(nil), k...), value: append([]byte(nil), v...)})
	c.currentKey = k
	return nil
}

func (c *cursor) Delete(k, v []byte) error {
	c.t.tree.Delete(entry{key: k, value: v})
	return nil
}

func (c *cursor) DeleteExact(k, v []byte) error {
	c.t.tree.Delete(entry{key: k, value: v})
	return nil
}

func (c *cursor) DeleteCurrentDuplicates() error {
	var toDelete []entry
	c.t.tree.AscendGreaterOrEqual(entry{key: c.currentKey}, func(e entry) bool {
		if !bytes.Equal(e.key, c.currentKey) {
			return false
		}
		toDelete = append(toDelete, e)
		return true
	})
	for _, e := range toDelete {
		c.t.tree.Delete(e)
	}
	return nil
}

func (c *cursor) Close() {}
