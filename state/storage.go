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

package state

import "github.com/erigontech/erigon-lib/common"

// CommittedValue holds a storage slot's value at two points: Initial is
// the value at the start of the current block, Original at the start of
// the current transaction (EIP-2200).
type CommittedValue struct {
	Initial  common.Hash
	Original common.Hash
}

// Storage is the per-address slot cache: Committed tracks values already
// resolved against the State Buffer this block, Current tracks writes made
// within the in-flight transaction. A slot present in Committed but absent
// from Current means "unchanged within this tx".
type Storage struct {
	Committed map[common.Hash]CommittedValue
	Current   map[common.Hash]common.Hash
}

func newStorage() *Storage {
	return &Storage{
		Committed: make(map[common.Hash]CommittedValue),
		Current:   make(map[common.Hash]common.Hash),
	}
}

// Clone deep-copies s for journaling (StorageWipe records the full prior
// Storage so it can be restored verbatim on revert).
func (s *Storage) Clone() *Storage {
	if s == nil {
		return nil
	}
	cp := &Storage{
		Committed: make(map[common.Hash]CommittedValue, len(s.Committed)),
		Current:   make(map[common.Hash]common.Hash, len(s.Current)),
	}
	for k, v := range s.Committed {
		cp.Committed[k] = v
	}
	for k, v := range s.Current {
		cp.Current[k] = v
	}
	return cp
}
