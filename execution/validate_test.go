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

package execution_test

import (
	"testing"

	"github.com/erigontech/erigon-lib/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/erigon-akula/corestate/execution"
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

var sender = common.HexToAddress("0x0000000000000000000000000000000000000009")

// S6: balance exactly covering gas_limit*max_fee_per_gas+value passes;
// one wei short fails with ErrInsufficientFunds.
func TestScenarioS6ValidateInsufficientFundsBoundary(t *testing.T) {
	ibs := newTestIBS(t)

	tx := execution.Transaction{
		Sender:       sender,
		Nonce:        0,
		GasLimit:     21000,
		MaxFeePerGas: *uint256.NewInt(10),
		Value:        *uint256.NewInt(5),
	}
	cost := tx.GasLimit*10 + 5

	require.NoError(t, ibs.SetBalance(sender, *uint256.NewInt(cost)))
	require.NoError(t, execution.ValidateTransaction(ibs, tx, tx.GasLimit))

	require.NoError(t, ibs.SetBalance(sender, *uint256.NewInt(cost-1)))
	require.ErrorIs(t, execution.ValidateTransaction(ibs, tx, tx.GasLimit), state.ErrInsufficientFunds)
}

func TestValidateInvalidNonce(t *testing.T) {
	ibs := newTestIBS(t)
	require.NoError(t, ibs.SetNonce(sender, 3))

	tx := execution.Transaction{Sender: sender, Nonce: 2, GasLimit: 21000}
	require.ErrorIs(t, execution.ValidateTransaction(ibs, tx, tx.GasLimit), state.ErrInvalidNonce)
}

func TestValidateBlockGasLimitExceeded(t *testing.T) {
	ibs := newTestIBS(t)
	require.NoError(t, ibs.SetBalance(sender, *uint256.NewInt(1_000_000)))

	tx := execution.Transaction{Sender: sender, Nonce: 0, GasLimit: 21000}
	require.ErrorIs(t, execution.ValidateTransaction(ibs, tx, 20999), state.ErrBlockGasLimitExceeded)
}
