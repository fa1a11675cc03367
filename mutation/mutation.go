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

// Package mutation implements the write-through overlay staged above a
// parent kv.RwTx: it accumulates pending inserts/deletes
// across many tables, including dup-sort tables, inside one logical
// transaction, answers reads as if those writes were already applied, and
// flushes them atomically into the parent on Commit.
//
// Mutation is not safe for concurrent use: one logical transaction is
// owned and used serially by a single goroutine, the same contract kv.RwTx
// itself carries.
package mutation

import (
	"bytes"
	"sort"

	"github.com/pkg/errors"

	"github.com/erigon-akula/corestate/kv"
)

// simpleBucket is an ordered map from key bytes to either a pending value
// (insert/overwrite) or a tombstone (delete). Keys are kept in maps;
// Commit sorts them so it can walk them in ascending byte order, matching
// mdbx's own cursor order.
type simpleBucket struct {
	values map[string][]byte // key -> value; absent from tombstoned when inserted
	tomb   map[string]bool   // key -> true if tombstoned
}

func newSimpleBucket() *simpleBucket {
	return &simpleBucket{values: make(map[string][]byte), tomb: make(map[string]bool)}
}

// dupBucket is the dup-sort counterpart: per key, a set of values to
// insert and a set of values to delete. deleteAll marks a key whose every
// parent pair must be removed on commit.
type dupBucket struct {
	insert    map[string]map[string][]byte // key -> value-string -> value bytes
	delete    map[string]map[string][]byte // key -> value-string -> value bytes
	deleteAll map[string]bool
}

func newDupBucket() *dupBucket {
	return &dupBucket{
		insert:    make(map[string]map[string][]byte),
		delete:    make(map[string]map[string][]byte),
		deleteAll: make(map[string]bool),
	}
}

// Mutation is a write-through overlay over a parent transaction, letting
// reads see pending writes before they are ever flushed.
type Mutation struct {
	parent  kv.RwTx
	cfg     kv.TableCfg
	simple  map[string]*simpleBucket
	dup     map[string]*dupBucket
	seqDiff map[string]uint64
}

// New opens a Mutation over parent, using cfg to decide each table's kind.
func New(parent kv.RwTx, cfg kv.TableCfg) *Mutation {
	return &Mutation{
		parent:  parent,
		cfg:     cfg,
		simple:  make(map[string]*simpleBucket),
		dup:     make(map[string]*dupBucket),
		seqDiff: make(map[string]uint64),
	}
}

func (m *Mutation) lookup(table string) (kv.TableCfgItem, error) {
	item, ok := m.cfg.Lookup(table)
	if !ok {
		return kv.TableCfgItem{}, errors.Wrapf(kv.ErrTableNotFound, "table %q", table)
	}
	return item, nil
}

func (m *Mutation) simpleFor(table string) *simpleBucket {
	b, ok := m.simple[table]
	if !ok {
		b = newSimpleBucket()
		m.simple[table] = b
	}
	return b
}

func (m *Mutation) dupFor(table string) *dupBucket {
	b, ok := m.dup[table]
	if !ok {
		b = newDupBucket()
		m.dup[table] = b
	}
	return b
}

// Get returns the overlay's view of table/key: if the overlay holds an
// opinion about key (set, tombstoned, or dup-deleted), that opinion wins;
// otherwise the parent is consulted. For dup-sort tables "the value" of a
// key is not well defined in general (many values may exist); Get returns
// one arbitrary surviving parent value when the overlay is silent on key,
// matching what a plain GetOne against a dup-sort table returns.
func (m *Mutation) Get(table string, key []byte) ([]byte, error) {
	item, err := m.lookup(table)
	if err != nil {
		return nil, err
	}
	k := string(key)
	if item.IsDupSort() {
		b, ok := m.dup[table]
		if ok {
			if b.deleteAll[k] {
				if len(b.insert[k]) == 0 {
					return nil, nil
				}
			}
			for v := range b.insert[k] {
				return []byte(v), nil
			}
			if len(b.delete[k]) > 0 {
				vals, err := m.GetAllDup(table, key)
				if err != nil {
					return nil, err
				}
				if len(vals) == 0 {
					return nil, nil
				}
				return vals[0], nil
			}
		}
		return m.parent.GetOne(table, key)
	}

	b, ok := m.simple[table]
	if ok {
		if b.tomb[k] {
			return nil, nil
		}
		if v, present := b.values[k]; present {
			return v, nil
		}
	}
	return m.parent.GetOne(table, key)
}

// Set writes key/value to the overlay. On a simple table this overwrites
// any prior tombstone or value. On a dup-sort table value is added to the
// insert set for key and removed from its delete set.
func (m *Mutation) Set(table string, key, value []byte) error {
	item, err := m.lookup(table)
	if err != nil {
		return err
	}
	k := string(key)
	if item.IsDupSort() {
		b := m.dupFor(table)
		if b.insert[k] == nil {
			b.insert[k] = make(map[string][]byte)
		}
		b.insert[k][string(value)] = append([]byte(nil), value...)
		delete(b.delete[k], string(value))
		return nil
	}
	b := m.simpleFor(table)
	b.values[k] = append([]byte(nil), value...)
	delete(b.tomb, k)
	return nil
}

// DeleteKey removes every value under key. On a simple table this writes
// a tombstone. On a dup-sort table every pending insert for key is
// dropped and key is marked so that, on Commit, every parent pair under
// key is removed too.
func (m *Mutation) DeleteKey(table string, key []byte) error {
	item, err := m.lookup(table)
	if err != nil {
		return err
	}
	k := string(key)
	if item.IsDupSort() {
		b := m.dupFor(table)
		delete(b.insert, k)
		delete(b.delete, k)
		b.deleteAll[k] = true
		return nil
	}
	b := m.simpleFor(table)
	delete(b.values, k)
	b.tomb[k] = true
	return nil
}

// DeletePair removes one (key, value) pair. On a simple table this
// tombstones key only if the overlay currently maps key to exactly value;
// otherwise it is a no-op (it must not tombstone an unrelated overlay
// entry). On a dup-sort table value is dropped from the insert set for
// key and added to the delete set.
func (m *Mutation) DeletePair(table string, key, value []byte) error {
	item, err := m.lookup(table)
	if err != nil {
		return err
	}
	k := string(key)
	if item.IsDupSort() {
		b := m.dupFor(table)
		delete(b.insert[k], string(value))
		if b.delete[k] == nil {
			b.delete[k] = make(map[string][]byte)
		}
		b.delete[k][string(value)] = append([]byte(nil), value...)
		return nil
	}
	b := m.simple[table]
	if b == nil {
		return nil
	}
	if current, present := b.values[k]; present && bytes.Equal(current, value) {
		delete(b.values, k)
		b.tomb[k] = true
	}
	return nil
}

// GetBothRange returns the smallest value under key in a dup-sort table
// that is lexicographically >= valuePrefix, folding in the overlay's
// pending inserts/deletes for key. It is the dup-sort counterpart of Get,
// needed because a dup-sort key maps to many values and callers (e.g. a
// storage-slot lookup keyed by address|incarnation, searching for one
// slot among many) must pick a specific one rather than an arbitrary one.
func (m *Mutation) GetBothRange(table string, key, valuePrefix []byte) ([]byte, error) {
	item, err := m.lookup(table)
	if err != nil {
		return nil, err
	}
	if !item.IsDupSort() {
		return nil, errors.Wrapf(kv.ErrWrongTableKind, "GetBothRange on simple table %q", table)
	}
	k := string(key)

	var candidates [][]byte
	b, ok := m.dup[table]
	deletedAll := ok && b.deleteAll[k]
	deletedVals := map[string]bool{}
	if ok {
		for v := range b.delete[k] {
			deletedVals[v] = true
		}
		for v := range b.insert[k] {
			if bytes.Compare([]byte(v), valuePrefix) >= 0 {
				candidates = append(candidates, []byte(v))
			}
		}
	}

	if !deletedAll {
		cursor, err := m.parent.RwCursorDupSort(table)
		if err != nil {
			return nil, errors.Wrapf(err, "open dup cursor for table %q", table)
		}
		defer cursor.Close()
		v, err := cursor.SeekBothRange(key, valuePrefix)
		// Skip parent values pending delete: the next value strictly
		// greater than v is the smallest one >= v||0x00.
		for err == nil && v != nil && deletedVals[string(v)] {
			v, err = cursor.SeekBothRange(key, append(append([]byte(nil), v...), 0))
		}
		if err != nil {
			return nil, errors.Wrapf(err, "seek-both-range table %q", table)
		}
		if v != nil && !deletedVals[string(v)] {
			candidates = append(candidates, v)
		}
	}

	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return bytes.Compare(candidates[i], candidates[j]) < 0 })
	return candidates[0], nil
}

// GetAllDup returns every surviving value under key in a dup-sort table,
// folding the overlay's pending inserts/deletes into the parent's values.
// Used by callers that must walk a whole change-set entry (e.g. unwind).
func (m *Mutation) GetAllDup(table string, key []byte) ([][]byte, error) {
	item, err := m.lookup(table)
	if err != nil {
		return nil, err
	}
	if !item.IsDupSort() {
		return nil, errors.Wrapf(kv.ErrWrongTableKind, "GetAllDup on simple table %q", table)
	}
	k := string(key)
	result := make(map[string][]byte)

	b, ok := m.dup[table]
	deletedAll := ok && b.deleteAll[k]
	if !deletedAll {
		cursor, err := m.parent.RwCursorDupSort(table)
		if err != nil {
			return nil, errors.Wrapf(err, "open dup cursor for table %q", table)
		}
		defer cursor.Close()
		values, err := cursor.AllDupValues(key)
		if err != nil {
			return nil, errors.Wrapf(err, "walk dup table %q", table)
		}
		for _, v := range values {
			result[string(v)] = v
		}
	}
	if ok {
		for v := range b.delete[k] {
			delete(result, v)
		}
		for v, raw := range b.insert[k] {
			result[v] = raw
		}
	}

	keys := make([]string, 0, len(result))
	for v := range result {
		keys = append(keys, v)
	}
	sort.Strings(keys)
	out := make([][]byte, len(keys))
	for i, v := range keys {
		out[i] = result[v]
	}
	return out, nil
}

// ReadSequence returns the effective sequence for table: the parent's
// current value plus this overlay's accumulated, uncommitted delta.
// Sequence increments made through the overlay are additive over the
// parent's value rather than overwriting it.
func (m *Mutation) ReadSequence(table string) (uint64, error) {
	parentVal, err := m.parent.ReadSequence(table)
	if err != nil {
		return 0, err
	}
	return parentVal + m.seqDiff[table], nil
}

// IncrementSequence adds n to table's effective sequence and returns the
// pre-increment value.
func (m *Mutation) IncrementSequence(table string, n uint64) (uint64, error) {
	current, err := m.ReadSequence(table)
	if err != nil {
		return 0, err
	}
	m.seqDiff[table] += n
	return current, nil
}

// Commit flushes every pending write into the parent transaction and
// consumes the Mutation. Tables are processed in the order given by
// tableOrder (the caller's table registry order); within
// a table, simple-table keys are applied in ascending byte order and
// dup-sort deletes are applied before inserts per key.
//
// A failure mid-commit leaves the parent transaction partially applied;
// the caller is expected to abort (Rollback) the parent transaction.
func (m *Mutation) Commit(tableOrder []string) error {
	for _, table := range tableOrder {
		if err := m.commitSimple(table); err != nil {
			return err
		}
		if err := m.commitDup(table); err != nil {
			return err
		}
	}
	for table, n := range m.seqDiff {
		if n == 0 {
			continue
		}
		if _, err := m.parent.IncrementSequence(table, n); err != nil {
			return errors.Wrapf(err, "increment sequence for table %q", table)
		}
	}
	return nil
}

func (m *Mutation) commitSimple(table string) error {
	b, ok := m.simple[table]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(b.values)+len(b.tomb))
	seen := make(map[string]bool, len(b.values)+len(b.tomb))
	for k := range b.values {
		if !seen[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	for k := range b.tomb {
		if !seen[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	sort.Strings(keys)

	cursor, err := m.parent.RwCursor(table)
	if err != nil {
		return errors.Wrapf(err, "open cursor for table %q", table)
	}
	defer cursor.Close()

	for _, k := range keys {
		key := []byte(k)
		if v, present := b.values[k]; present {
			if err := cursor.Put(key, v); err != nil {
				return errors.Wrapf(err, "put table %q", table)
			}
			continue
		}
		// Tombstone: tolerate the key being absent from the parent.
		foundKey, foundVal, err := cursor.SeekExact(key)
		if err != nil {
			return errors.Wrapf(err, "seek table %q", table)
		}
		if foundKey != nil {
			if err := cursor.Delete(foundKey, foundVal); err != nil {
				return errors.Wrapf(err, "delete table %q", table)
			}
		}
	}
	return nil
}

func (m *Mutation) commitDup(table string) error {
	b, ok := m.dup[table]
	if !ok {
		return nil
	}
	keys := make(map[string]bool)
	for k := range b.insert {
		keys[k] = true
	}
	for k := range b.delete {
		keys[k] = true
	}
	for k := range b.deleteAll {
		keys[k] = true
	}
	sortedKeys := make([]string, 0, len(keys))
	for k := range keys {
		sortedKeys = append(sortedKeys, k)
	}
	sort.Strings(sortedKeys)

	cursor, err := m.parent.RwCursorDupSort(table)
	if err != nil {
		return errors.Wrapf(err, "open dup cursor for table %q", table)
	}
	defer cursor.Close()

	for _, k := range sortedKeys {
		key := []byte(k)

		// Deletes before inserts, so a value moved between keys in the
		// same overlay never collides with its own stale copy.
		if b.deleteAll[k] {
			if foundKey, _, err := cursor.SeekExact(key); err != nil {
				return errors.Wrapf(err, "seek dup table %q", table)
			} else if foundKey != nil {
				if err := cursor.DeleteCurrentDuplicates(); err != nil {
					return errors.Wrapf(err, "delete-all dup table %q", table)
				}
			}
		} else {
			values := make([]string, 0, len(b.delete[k]))
			for v := range b.delete[k] {
				values = append(values, v)
			}
			sort.Strings(values)
			for _, v := range values {
				if err := cursor.DeleteExact(key, b.delete[k][v]); err != nil {
					return errors.Wrapf(err, "delete dup table %q", table)
				}
			}
		}

		insValues := make([]string, 0, len(b.insert[k]))
		for v := range b.insert[k] {
			insValues = append(insValues, v)
		}
		sort.Strings(insValues)
		for _, v := range insValues {
			if err := cursor.Put(key, b.insert[k][v]); err != nil {
				return errors.Wrapf(err, "put dup table %q", table)
			}
		}
	}
	return nil
}
