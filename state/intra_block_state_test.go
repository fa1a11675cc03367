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

func newTestIBS(t *testing.T) *state.IntraBlockState {
	t.Helper()
	store := memdb.NewStore(kv.ChaindataTablesCfg)
	parent := store.BeginRw()
	m := mutation.New(parent, kv.ChaindataTablesCfg)
	buf, err := state.NewBuffer(m, 16)
	require.NoError(t, err)
	return state.New(buf)
}

var addrA = common.HexToAddress("0x0000000000000000000000000000000000000001")

// S3: snapshot/revert restores balance and nonce exactly.
func TestScenarioS3SnapshotRevert(t *testing.T) {
	ibs := newTestIBS(t)

	require.NoError(t, ibs.SetBalance(addrA, *uint256.NewInt(100)))
	require.NoError(t, ibs.SetBalance(addrA, *uint256.NewInt(30)))
	require.NoError(t, ibs.SetNonce(addrA, 1))

	snap := ibs.TakeSnapshot()
	require.NoError(t, ibs.SetBalance(addrA, *uint256.NewInt(0)))
	ibs.RevertToSnapshot(snap)

	balance, err := ibs.GetBalance(addrA)
	require.NoError(t, err)
	require.Equal(t, *uint256.NewInt(30), balance)

	nonce, err := ibs.GetNonce(addrA)
	require.NoError(t, err)
	require.Equal(t, uint64(1), nonce)
}

// S4: create_contract on a fresh address gets incarnation 1 and a
// StorageCreate delta; a second create_contract after destruct gets
// incarnation 2, and also a StorageCreate delta — Destruct already
// removed the address's storage map, so there is nothing left for the
// later CreateContract to wipe. We observe the deltas indirectly
// through snapshot/revert, since the delta kind itself is unexported.
func TestScenarioS4CreateContractIncarnation(t *testing.T) {
	ibs := newTestIBS(t)

	snap := ibs.TakeSnapshot()
	require.NoError(t, ibs.CreateContract(addrA))
	nonce, err := ibs.GetNonce(addrA)
	require.NoError(t, err)
	require.Equal(t, uint64(0), nonce)

	exists, err := ibs.Exists(addrA)
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, ibs.SetStorage(addrA, common.HexToHash("0x01"), common.HexToHash("0x02")))

	require.NoError(t, ibs.Destruct(addrA))
	require.NoError(t, ibs.CreateContract(addrA))

	v, err := ibs.GetCurrentStorage(addrA, common.HexToHash("0x01"))
	require.NoError(t, err)
	require.Equal(t, common.Hash{}, v, "storage from the prior incarnation must not leak into the new one")

	// Reverting all the way back removes the address entirely.
	ibs.RevertToSnapshot(snap)
	exists, err = ibs.Exists(addrA)
	require.NoError(t, err)
	require.False(t, exists)
}

// S5: set_storage then finalize_transaction then set_storage again:
// current reflects the latest write, original still reflects the value
// as of the start of the (new) transaction.
func TestScenarioS5OriginalVsCurrentStorage(t *testing.T) {
	ibs := newTestIBS(t)
	key := common.HexToHash("0x01")

	require.NoError(t, ibs.SetStorage(addrA, key, common.HexToHash("0x01")))
	ibs.FinalizeTransaction()
	require.NoError(t, ibs.SetStorage(addrA, key, common.HexToHash("0x02")))

	current, err := ibs.GetCurrentStorage(addrA, key)
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0x02"), current)

	original, err := ibs.GetOriginalStorage(addrA, key)
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0x01"), original)
}

// Invariant 6: access_account is Cold once, Warm thereafter, unless a
// revert has passed through the access.
func TestAccessAccountColdWarm(t *testing.T) {
	ibs := newTestIBS(t)

	require.Equal(t, state.ColdAccess, ibs.AccessAccount(addrA))
	require.Equal(t, state.WarmAccess, ibs.AccessAccount(addrA))

	snap := ibs.TakeSnapshot()
	require.Equal(t, state.ColdAccess, ibs.AccessAccount(common.HexToAddress("0x02")))
	ibs.RevertToSnapshot(snap)
	require.Equal(t, state.ColdAccess, ibs.AccessAccount(common.HexToAddress("0x02")))
}

// Invariant 7: touch never journals an entry for the RIPEMD precompile.
// The touched set is not exported, so this only checks that touching the
// precompile and reverting past it leaves no account behind.
func TestTouchRipemdException(t *testing.T) {
	ibs := newTestIBS(t)
	ripemd := common.HexToAddress("0x0000000000000000000000000000000000000003")

	snap := ibs.TakeSnapshot()
	ibs.Touch(ripemd)
	ibs.RevertToSnapshot(snap)

	exists, err := ibs.Exists(ripemd)
	require.NoError(t, err)
	require.False(t, exists) // unrelated to touched-ness, just confirms no panic/side effect
}

func TestWriteToDBPersistsAccountsAndStorage(t *testing.T) {
	store := memdb.NewStore(kv.ChaindataTablesCfg)
	parent := store.BeginRw()
	m := mutation.New(parent, kv.ChaindataTablesCfg)
	buf, err := state.NewBuffer(m, 16)
	require.NoError(t, err)
	ibs := state.New(buf)

	require.NoError(t, ibs.SetBalance(addrA, *uint256.NewInt(42)))
	require.NoError(t, ibs.SetStorage(addrA, common.HexToHash("0x01"), common.HexToHash("0x05")))
	ibs.FinalizeTransaction()

	require.NoError(t, ibs.WriteToDB(1))
	require.NoError(t, m.Commit(kv.ChaindataTables))

	fresh, err := state.NewBuffer(m, 16)
	require.NoError(t, err)
	acc, err := fresh.ReadAccount(addrA)
	require.NoError(t, err)
	require.Equal(t, *uint256.NewInt(42), acc.Balance)

	slot, err := fresh.ReadStorage(addrA, 0, common.HexToHash("0x01"))
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0x05"), slot)
}
