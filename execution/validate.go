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

package execution

import (
	"math/big"

	"github.com/erigon-akula/corestate/state"
)

// ValidateTransaction checks tx against sender's current nonce and
// balance and the block's remaining gas pool. The
// cost check is done in wide arithmetic: gas_limit * max_fee_per_gas
// can already saturate a 256-bit word, so the product plus tx.Value must
// not be computed mod 2^256 without overflow detection. No 256-or-wider
// unsigned integer type that also supports a plain, checked multiply
// into a wider result is available in the module's dependency set, so
// this one check uses math/big rather than holiman/uint256 (see
// DESIGN.md).
func ValidateTransaction(ibs *state.IntraBlockState, tx Transaction, gasPool uint64) error {
	nonce, err := ibs.GetNonce(tx.Sender)
	if err != nil {
		return err
	}
	if nonce != tx.Nonce {
		return state.ErrInvalidNonce
	}

	balance, err := ibs.GetBalance(tx.Sender)
	if err != nil {
		return err
	}
	cost := new(big.Int).Mul(new(big.Int).SetUint64(tx.GasLimit), tx.MaxFeePerGas.ToBig())
	cost.Add(cost, tx.Value.ToBig())
	if balance.ToBig().Cmp(cost) < 0 {
		return state.ErrInsufficientFunds
	}

	if gasPool < tx.GasLimit {
		return state.ErrBlockGasLimitExceeded
	}
	return nil
}
