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

package mutation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigon-akula/corestate/kv"
	"github.com/erigon-akula/corestate/kv/memdb"
)

var testCfg = kv.TableCfg{
	"T1": {Flags: kv.Default},
	"D1": {Flags: kv.DupSort},
}

var testTableOrder = []string{"T1", "D1"}

// S1: set a, set b, delete_key a, commit. Parent ends with only b.
func TestScenarioS1(t *testing.T) {
	store := memdb.NewStore(testCfg)
	parent := store.BeginRw()
	m := New(parent, testCfg)

	require.NoError(t, m.Set("T1", []byte("a"), []byte("1")))
	require.NoError(t, m.Set("T1", []byte("b"), []byte("2")))
	require.NoError(t, m.DeleteKey("T1", []byte("a")))
	require.NoError(t, m.Commit(testTableOrder))

	dump, err := store.Dump("T1")
	require.NoError(t, err)
	require.Equal(t, [][2][]byte{{[]byte("b"), []byte("2")}}, dump)
}

// S2: parent already has a=x; overlay reads it, overwrites with y, commits.
func TestScenarioS2(t *testing.T) {
	store := memdb.NewStore(testCfg)
	parent := store.BeginRw()
	require.NoError(t, parent.Put("T1", []byte("a"), []byte("x")))

	m := New(parent, testCfg)
	v, err := m.Get("T1", []byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("x"), v)

	require.NoError(t, m.Set("T1", []byte("a"), []byte("y")))
	v, err = m.Get("T1", []byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("y"), v)

	require.NoError(t, m.Commit(testTableOrder))
	dump, err := store.Dump("T1")
	require.NoError(t, err)
	require.Equal(t, [][2][]byte{{[]byte("a"), []byte("y")}}, dump)
}

// Invariant 1: get after set/delete_key/neither.
func TestGetReflectsOverlayThenParent(t *testing.T) {
	store := memdb.NewStore(testCfg)
	parent := store.BeginRw()
	require.NoError(t, parent.Put("T1", []byte("k"), []byte("parent-value")))

	m := New(parent, testCfg)

	v, err := m.Get("T1", []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("parent-value"), v)

	require.NoError(t, m.Set("T1", []byte("k"), []byte("overlay-value")))
	v, err = m.Get("T1", []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("overlay-value"), v)

	require.NoError(t, m.DeleteKey("T1", []byte("k")))
	v, err = m.Get("T1", []byte("k"))
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestDeletePairDoesNotTombstoneUnrelatedValue(t *testing.T) {
	store := memdb.NewStore(testCfg)
	parent := store.BeginRw()
	m := New(parent, testCfg)

	require.NoError(t, m.Set("T1", []byte("k"), []byte("actual")))
	require.NoError(t, m.DeletePair("T1", []byte("k"), []byte("not-the-value")))

	v, err := m.Get("T1", []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("actual"), v)
}

func TestDupSortSetAndDeletePair(t *testing.T) {
	store := memdb.NewStore(testCfg)
	parent := store.BeginRw()
	m := New(parent, testCfg)

	require.NoError(t, m.Set("D1", []byte("k"), []byte("v1")))
	require.NoError(t, m.Set("D1", []byte("k"), []byte("v2")))
	require.NoError(t, m.DeletePair("D1", []byte("k"), []byte("v1")))
	require.NoError(t, m.Commit(testTableOrder))

	dump, err := store.Dump("D1")
	require.NoError(t, err)
	require.Equal(t, [][2][]byte{{[]byte("k"), []byte("v2")}}, dump)
}

func TestDupSortDeleteKeyRemovesEveryParentPair(t *testing.T) {
	store := memdb.NewStore(testCfg)
	parent := store.BeginRw()

	dupParentCursor, err := parent.RwCursorDupSort("D1")
	require.NoError(t, err)
	require.NoError(t, dupParentCursor.Put([]byte("k"), []byte("a")))
	require.NoError(t, dupParentCursor.Put([]byte("k"), []byte("b")))
	dupParentCursor.Close()

	m := New(parent, testCfg)
	require.NoError(t, m.DeleteKey("D1", []byte("k")))
	require.NoError(t, m.Commit(testTableOrder))

	dump, err := store.Dump("D1")
	require.NoError(t, err)
	require.Empty(t, dump)
}

// Invariant 2: after commit, parent reflects exactly W with no extraneous changes.
func TestCommitReflectsExactlyTheOverlay(t *testing.T) {
	store := memdb.NewStore(testCfg)
	parent := store.BeginRw()
	require.NoError(t, parent.Put("T1", []byte("untouched"), []byte("stays")))

	m := New(parent, testCfg)
	require.NoError(t, m.Set("T1", []byte("new"), []byte("added")))
	require.NoError(t, m.Commit(testTableOrder))

	dump, err := store.Dump("T1")
	require.NoError(t, err)
	require.Equal(t, [][2][]byte{
		{[]byte("new"), []byte("added")},
		{[]byte("untouched"), []byte("stays")},
	}, dump)
}

func TestSequenceIsAdditiveOverParent(t *testing.T) {
	store := memdb.NewStore(testCfg)
	parent := store.BeginRw()
	_, err := parent.IncrementSequence("T1", 5)
	require.NoError(t, err)

	m := New(parent, testCfg)
	v, err := m.ReadSequence("T1")
	require.NoError(t, err)
	require.Equal(t, uint64(5), v)

	prior, err := m.IncrementSequence("T1", 3)
	require.NoError(t, err)
	require.Equal(t, uint64(5), prior)

	v, err = m.ReadSequence("T1")
	require.NoError(t, err)
	require.Equal(t, uint64(8), v)

	require.NoError(t, m.Commit(testTableOrder))
	v, err = parent.ReadSequence("T1")
	require.NoError(t, err)
	require.Equal(t, uint64(8), v)
}
