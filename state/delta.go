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

// deltaKind tags the variant a Delta carries. Deltas are modelled as one
// tagged sum rather than one type per variant: it avoids a heap allocation
// per journal entry and reverts via a single jump table instead of
// dynamic dispatch.
type deltaKind uint8

const (
	deltaCreate deltaKind = iota
	deltaUpdate
	deltaSelfdestruct
	deltaTouch
	deltaStorageChange
	deltaStorageWipe
	deltaStorageCreate
	deltaStorageAccess
	deltaAccountAccess
)

// Delta is one reversible mutation recorded on IntraBlockState's journal.
// Deltas are pushed before the mutation they record, so the "previous"
// field they carry is always authoritative.
type Delta struct {
	kind    deltaKind
	address common.Address
	key     common.Hash

	prevObject  Object
	prevHash    common.Hash
	prevStorage *Storage
}

func createDelta(addr common.Address) Delta {
	return Delta{kind: deltaCreate, address: addr}
}

func updateDelta(addr common.Address, prev Object) Delta {
	return Delta{kind: deltaUpdate, address: addr, prevObject: prev}
}

func selfdestructDelta(addr common.Address) Delta {
	return Delta{kind: deltaSelfdestruct, address: addr}
}

func touchDelta(addr common.Address) Delta {
	return Delta{kind: deltaTouch, address: addr}
}

func storageChangeDelta(addr common.Address, key common.Hash, prev common.Hash) Delta {
	return Delta{kind: deltaStorageChange, address: addr, key: key, prevHash: prev}
}

func storageWipeDelta(addr common.Address, prev *Storage) Delta {
	return Delta{kind: deltaStorageWipe, address: addr, prevStorage: prev}
}

func storageCreateDelta(addr common.Address) Delta {
	return Delta{kind: deltaStorageCreate, address: addr}
}

func storageAccessDelta(addr common.Address, key common.Hash) Delta {
	return Delta{kind: deltaStorageAccess, address: addr, key: key}
}

func accountAccessDelta(addr common.Address) Delta {
	return Delta{kind: deltaAccountAccess, address: addr}
}

// revert applies d's inverse effect to s.
func (d Delta) revert(s *IntraBlockState) {
	switch d.kind {
	case deltaCreate:
		delete(s.objects, d.address)
	case deltaUpdate:
		s.objects[d.address] = d.prevObject
	case deltaSelfdestruct:
		delete(s.selfDestructs, d.address)
	case deltaTouch:
		delete(s.touched, d.address)
	case deltaStorageChange:
		s.ensureStorage(d.address).Current[d.key] = d.prevHash
	case deltaStorageWipe:
		s.storage[d.address] = d.prevStorage
	case deltaStorageCreate:
		delete(s.storage, d.address)
	case deltaStorageAccess:
		delete(s.accessedStorageKeys[d.address], d.key)
	case deltaAccountAccess:
		delete(s.accessedAddresses, d.address)
	}
}
