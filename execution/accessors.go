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

// Package execution drives the staged, per-block loop: for each pending
// block it resolves canonical data, validates and executes every
// transaction against an Intra-Block State, and flushes the result to a
// State Buffer.
package execution

import (
	"github.com/erigontech/erigon-lib/common"
	"github.com/holiman/uint256"

	"github.com/erigon-akula/corestate/state"
)

// Transaction is the slice of an Ethereum transaction this loop's
// validation step needs. Sender is filled in by the caller from the
// accessors' pre-computed senders list, not recovered from a signature
// here (signature recovery belongs to an external collaborator).
type Transaction struct {
	Sender       common.Address
	Nonce        uint64
	GasLimit     uint64
	MaxFeePerGas uint256.Int
	Value        uint256.Int
}

// Accessors resolves canonical chain data by block height. It is an
// external collaborator: this package only declares the
// contract it needs, not an implementation.
type Accessors interface {
	CanonicalHash(blockNum uint64) (common.Hash, error)
	Header(blockNum uint64, hash common.Hash) (*state.Header, error)
	Body(blockNum uint64, hash common.Hash) (*state.Body, error)
	GasLimit(blockNum uint64, hash common.Hash) (uint64, error)
	Transactions(blockNum uint64, hash common.Hash) ([]Transaction, error)
	Senders(blockNum uint64, hash common.Hash) ([]common.Address, error)
}
