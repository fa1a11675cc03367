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

package state_test

import (
	"testing"

	"github.com/erigontech/erigon-lib/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/erigon-akula/corestate/kv"
	"github.com/erigon-akula/corestate/kv/memdb"
	"github.com/erigon-akula/corestate/mutation"
	"github.com/erigon-akula/corestate/state"
)

func newTestBuffer(t *testing.T) (*state.Buffer, *mutation.Mutation) {
	t.Helper()
	store := memdb.NewStore(kv.ChaindataTablesCfg)
	parent := store.BeginRw()
	m := mutation.New(parent, kv.ChaindataTablesCfg)
	buf, err := state.NewBuffer(m, 16)
	require.NoError(t, err)
	return buf, m
}

func TestBufferAccountRoundTrip(t *testing.T) {
	buf, _ := newTestBuffer(t)
	addr := common.HexToAddress("0x0000000000000000000000000000000000000001")

	acc, err := buf.ReadAccount(addr)
	require.NoError(t, err)
	require.Nil(t, acc)

	buf.BeginBlock(1)
	current := &state.Account{Nonce: 1, Balance: *uint256.NewInt(100), CodeHash: state.EmptyCodeHash}
	require.NoError(t, buf.UpdateAccount(addr, nil, current))

	got, err := buf.ReadAccount(addr)
	require.NoError(t, err)
	require.True(t, got.Equal(current))
}

func TestBufferStorageRoundTrip(t *testing.T) {
	buf, _ := newTestBuffer(t)
	addr := common.HexToAddress("0x0000000000000000000000000000000000000002")
	slot := common.HexToHash("0x01")
	value := common.HexToHash("0x2a")

	buf.BeginBlock(1)
	require.NoError(t, buf.UpdateStorage(addr, 1, slot, common.Hash{}, value))

	got, err := buf.ReadStorage(addr, 1, slot)
	require.NoError(t, err)
	require.Equal(t, value, got)

	// Overwriting the same slot must not leave a stale duplicate behind.
	require.NoError(t, buf.UpdateStorage(addr, 1, slot, value, common.HexToHash("0x2b")))
	got, err = buf.ReadStorage(addr, 1, slot)
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0x2b"), got)

	// A zero value deletes the slot.
	require.NoError(t, buf.UpdateStorage(addr, 1, slot, common.HexToHash("0x2b"), common.Hash{}))
	got, err = buf.ReadStorage(addr, 1, slot)
	require.NoError(t, err)
	require.Equal(t, common.Hash{}, got)
}

func TestBufferUnwindRestoresAccountAndStorage(t *testing.T) {
	buf, _ := newTestBuffer(t)
	addr := common.HexToAddress("0x0000000000000000000000000000000000000003")
	slot := common.HexToHash("0x01")

	initialAccount := &state.Account{Nonce: 0, Balance: *uint256.NewInt(50), CodeHash: state.EmptyCodeHash}
	buf.BeginBlock(1)
	require.NoError(t, buf.UpdateAccount(addr, nil, initialAccount))
	require.NoError(t, buf.UpdateStorage(addr, 0, slot, common.Hash{}, common.HexToHash("0x01")))

	buf.BeginBlock(2)
	updatedAccount := &state.Account{Nonce: 1, Balance: *uint256.NewInt(10), CodeHash: state.EmptyCodeHash}
	require.NoError(t, buf.UpdateAccount(addr, initialAccount, updatedAccount))
	require.NoError(t, buf.UpdateStorage(addr, 0, slot, common.HexToHash("0x01"), common.HexToHash("0x02")))

	require.NoError(t, buf.UnwindStateChanges(2))

	acc, err := buf.ReadAccount(addr)
	require.NoError(t, err)
	require.True(t, acc.Equal(initialAccount))

	slotVal, err := buf.ReadStorage(addr, 0, slot)
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0x01"), slotVal)
}

func TestBufferCanonicalChain(t *testing.T) {
	buf, _ := newTestBuffer(t)
	hash1 := common.HexToHash("0xaa")

	require.NoError(t, buf.CanonizeBlock(1, hash1))
	got, err := buf.CanonicalHash(1)
	require.NoError(t, err)
	require.Equal(t, hash1, got)

	head, err := buf.CurrentCanonicalBlock()
	require.NoError(t, err)
	require.Equal(t, uint64(1), head)

	require.NoError(t, buf.DecanonizeBlock(1))
	_, err = buf.CanonicalHash(1)
	require.ErrorIs(t, err, state.ErrMissingCanonicalData)
}
