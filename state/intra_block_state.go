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

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/erigontech/erigon-lib/common"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

// ripemdAddress is the RIPEMD-160 precompile. The Yellow Paper, Appendix
// K, exempts it from the usual empty-account pruning rules; Touch must
// never journal an entry for it.
var ripemdAddress = common.HexToAddress("0x0000000000000000000000000000000000000003")

// AccessStatus is the EIP-2929 warm/cold outcome of an access_account or
// access_storage call.
type AccessStatus uint8

const (
	ColdAccess AccessStatus = iota
	WarmAccess
)

// Log is an EVM event log entry. The EVM that drives IntraBlockState
// constructs these; this package only stores and replays them.
type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// Snapshot is an opaque marker returned by TakeSnapshot and consumed by
// RevertToSnapshot.
type Snapshot struct {
	journalSize int
	logSize     int
	refund      uint64
}

// IntraBlockState is the EVM-facing API. It holds a
// mutable reference to a Buffer plus the journal and substate accumulated
// across the block currently executing.
type IntraBlockState struct {
	db *Buffer

	objects map[common.Address]Object
	storage map[common.Address]*Storage

	// destructedIncarnation remembers the incarnation an address carried
	// at the moment Destruct cleared its current image. Destruct itself
	// does not journal, so this survives reverts by
	// design; CreateContract consults it when recreating an address
	// destructed earlier in the same block, since the State Buffer's own
	// previous_incarnation is only updated by a later write_to_db, not
	// mid-block.
	destructedIncarnation map[common.Address]uint64

	// existingCode caches code already read through from db; newCode
	// holds code written this block via SetCode, not yet persisted.
	// Both are plain []byte maps: a Go slice is a header pointing at a
	// stable backing array, so growing either map never invalidates a
	// previously returned slice.
	existingCode map[common.Hash][]byte
	newCode      map[common.Hash][]byte

	journal []Delta

	selfDestructs       map[common.Address]bool
	touched             map[common.Address]bool
	accessedAddresses   map[common.Address]bool
	accessedStorageKeys map[common.Address]map[common.Hash]bool

	logs   []Log
	refund uint64
}

// New returns an IntraBlockState with empty journal and substate, backed
// by db.
func New(db *Buffer) *IntraBlockState {
	return &IntraBlockState{
		db:                    db,
		objects:               make(map[common.Address]Object),
		storage:               make(map[common.Address]*Storage),
		destructedIncarnation: make(map[common.Address]uint64),
		existingCode:          make(map[common.Hash][]byte),
		newCode:               make(map[common.Hash][]byte),
		selfDestructs:         make(map[common.Address]bool),
		touched:               make(map[common.Address]bool),
		accessedAddresses:     make(map[common.Address]bool),
		accessedStorageKeys:   make(map[common.Address]map[common.Hash]bool),
	}
}

func keccak256(data []byte) common.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	var out common.Hash
	h.Sum(out[:0])
	return out
}

func (s *IntraBlockState) pushDelta(d Delta) {
	s.journal = append(s.journal, d)
}

// loadObject returns addr's Object, lazily reading it from the State
// Buffer and caching it in objects on first touch.
func (s *IntraBlockState) loadObject(addr common.Address) (Object, error) {
	if obj, ok := s.objects[addr]; ok {
		return obj, nil
	}
	acc, err := s.db.ReadAccount(addr)
	if err != nil {
		return Object{}, err
	}
	obj := Object{Initial: acc, Current: acc.Clone()}
	s.objects[addr] = obj
	return obj, nil
}

func (s *IntraBlockState) ensureStorage(addr common.Address) *Storage {
	st, ok := s.storage[addr]
	if !ok {
		st = newStorage()
		s.storage[addr] = st
	}
	return st
}

// Exists reports whether addr currently carries a live account image.
func (s *IntraBlockState) Exists(addr common.Address) (bool, error) {
	obj, err := s.loadObject(addr)
	if err != nil {
		return false, err
	}
	return obj.Exists(), nil
}

// IsDead reports the EIP-161 dead-account predicate for addr.
func (s *IntraBlockState) IsDead(addr common.Address) (bool, error) {
	obj, err := s.loadObject(addr)
	if err != nil {
		return false, err
	}
	return obj.IsDead(), nil
}

// GetBalance returns addr's balance, or zero if addr has no current image.
func (s *IntraBlockState) GetBalance(addr common.Address) (uint256.Int, error) {
	obj, err := s.loadObject(addr)
	if err != nil {
		return uint256.Int{}, err
	}
	if obj.Current == nil {
		return uint256.Int{}, nil
	}
	return obj.Current.Balance, nil
}

// GetNonce returns addr's nonce, or zero if addr has no current image.
func (s *IntraBlockState) GetNonce(addr common.Address) (uint64, error) {
	obj, err := s.loadObject(addr)
	if err != nil {
		return 0, err
	}
	if obj.Current == nil {
		return 0, nil
	}
	return obj.Current.Nonce, nil
}

// GetCodeHash returns addr's code hash, or EmptyCodeHash if addr has no
// current image or no code.
func (s *IntraBlockState) GetCodeHash(addr common.Address) (common.Hash, error) {
	obj, err := s.loadObject(addr)
	if err != nil {
		return common.Hash{}, err
	}
	if obj.Current == nil {
		return EmptyCodeHash, nil
	}
	return obj.Current.CodeHash, nil
}

// GetCode returns addr's code bytes, reading through to the State Buffer
// and caching the result on first touch.
func (s *IntraBlockState) GetCode(addr common.Address) ([]byte, error) {
	obj, err := s.loadObject(addr)
	if err != nil {
		return nil, err
	}
	if obj.Current == nil || obj.Current.CodeHash == EmptyCodeHash {
		return nil, nil
	}
	codeHash := obj.Current.CodeHash
	if code, ok := s.newCode[codeHash]; ok {
		return code, nil
	}
	if code, ok := s.existingCode[codeHash]; ok {
		return code, nil
	}
	code, err := s.db.ReadCode(codeHash)
	if err != nil {
		return nil, err
	}
	s.existingCode[codeHash] = code
	return code, nil
}

// mutateAccount journals an Update delta carrying addr's current Object,
// materializing an empty Account first if none exists, applies mutate to
// the live Account, then touches addr.
func (s *IntraBlockState) mutateAccount(addr common.Address, mutate func(cur *Account)) error {
	obj, err := s.loadObject(addr)
	if err != nil {
		return err
	}
	prev := obj.Clone()
	if obj.Current == nil {
		obj.Current = &Account{CodeHash: EmptyCodeHash}
	}
	s.pushDelta(updateDelta(addr, prev))
	mutate(obj.Current)
	s.objects[addr] = obj
	s.Touch(addr)
	return nil
}

// SetBalance overwrites addr's balance.
func (s *IntraBlockState) SetBalance(addr common.Address, v uint256.Int) error {
	return s.mutateAccount(addr, func(cur *Account) { cur.Balance = v })
}

// AddToBalance adds v to addr's balance.
func (s *IntraBlockState) AddToBalance(addr common.Address, v uint256.Int) error {
	return s.mutateAccount(addr, func(cur *Account) { cur.Balance.Add(&cur.Balance, &v) })
}

// SubtractFromBalance subtracts v from addr's balance.
func (s *IntraBlockState) SubtractFromBalance(addr common.Address, v uint256.Int) error {
	return s.mutateAccount(addr, func(cur *Account) { cur.Balance.Sub(&cur.Balance, &v) })
}

// SetNonce overwrites addr's nonce.
func (s *IntraBlockState) SetNonce(addr common.Address, n uint64) error {
	return s.mutateAccount(addr, func(cur *Account) { cur.Nonce = n })
}

// SetCode hashes code and sets it as addr's code, retaining the raw bytes
// under new_code so write_to_db can find them without re-hashing.
func (s *IntraBlockState) SetCode(addr common.Address, code []byte) error {
	codeHash := EmptyCodeHash
	if len(code) > 0 {
		codeHash = keccak256(code)
	}
	if err := s.mutateAccount(addr, func(cur *Account) { cur.CodeHash = codeHash }); err != nil {
		return err
	}
	if _, ok := s.newCode[codeHash]; !ok {
		s.newCode[codeHash] = code
	}
	return nil
}

// CreateContract builds a fresh Object at addr, inheriting any prior
// balance, with incarnation bumped past whatever incarnation addr last
// used (in memory, or in the State Buffer if this is the first time addr
// is touched this block). Prior storage is wiped.
func (s *IntraBlockState) CreateContract(addr common.Address) error {
	obj, err := s.loadObject(addr)
	if err != nil {
		return err
	}

	var priorBalance uint256.Int
	var priorIncarnation uint64
	existed := obj.Current != nil
	if existed {
		priorBalance = obj.Current.Balance
		priorIncarnation = obj.Current.Incarnation
	}
	if priorIncarnation == 0 {
		if inc, ok := s.destructedIncarnation[addr]; ok {
			priorIncarnation = inc
		} else {
			priorIncarnation, err = s.db.PreviousIncarnation(addr)
			if err != nil {
				return err
			}
		}
	}

	if existed {
		s.pushDelta(updateDelta(addr, obj.Clone()))
	} else {
		s.pushDelta(createDelta(addr))
	}
	obj.Current = &Account{CodeHash: EmptyCodeHash, Balance: priorBalance, Incarnation: priorIncarnation + 1}
	s.objects[addr] = obj

	if st, hasStorage := s.storage[addr]; hasStorage {
		s.pushDelta(storageWipeDelta(addr, st.Clone()))
	} else {
		s.pushDelta(storageCreateDelta(addr))
	}
	s.storage[addr] = newStorage()
	return nil
}

// Destruct irrevocably wipes addr's storage and clears its current
// image. Not journalled: callers invoke it only once revert decisions
// for the surrounding transaction are already final.
func (s *IntraBlockState) Destruct(addr common.Address) error {
	obj, err := s.loadObject(addr)
	if err != nil {
		return err
	}
	if obj.Current != nil {
		s.destructedIncarnation[addr] = obj.Current.Incarnation
	}
	delete(s.storage, addr)
	obj.Current = nil
	s.objects[addr] = obj
	return nil
}

// RecordSelfdestruct adds addr to the self-destruct set, journalling a
// Selfdestruct delta only on the first insertion.
func (s *IntraBlockState) RecordSelfdestruct(addr common.Address) {
	if s.selfDestructs[addr] {
		return
	}
	s.selfDestructs[addr] = true
	s.pushDelta(selfdestructDelta(addr))
}

// DestructSelfdestructs destructs every address recorded via
// RecordSelfdestruct, over a snapshot of the set taken at call time.
func (s *IntraBlockState) DestructSelfdestructs() error {
	addrs := make([]common.Address, 0, len(s.selfDestructs))
	for addr := range s.selfDestructs {
		addrs = append(addrs, addr)
	}
	for _, addr := range addrs {
		if err := s.Destruct(addr); err != nil {
			return err
		}
	}
	return nil
}

// DestructTouchedDead destructs every touched address that is dead,
// re-checking IsDead at the point each address is visited: an earlier
// destruct in this same loop can change a later address's outcome only
// if they share storage bookkeeping, and this iterates a snapshot of
// touched while re-checking exactly this way.
func (s *IntraBlockState) DestructTouchedDead() error {
	addrs := make([]common.Address, 0, len(s.touched))
	for addr := range s.touched {
		addrs = append(addrs, addr)
	}
	for _, addr := range addrs {
		dead, err := s.IsDead(addr)
		if err != nil {
			return err
		}
		if dead {
			if err := s.Destruct(addr); err != nil {
				return err
			}
		}
	}
	return nil
}

// Touch adds addr to the touched set, journalling a Touch delta only on
// first insertion, except for the RIPEMD precompile.
func (s *IntraBlockState) Touch(addr common.Address) {
	if s.touched[addr] {
		return
	}
	s.touched[addr] = true
	if addr != ripemdAddress {
		s.pushDelta(touchDelta(addr))
	}
}

// AccessAccount records an EIP-2929 account access, returning Cold on
// the first call for addr and Warm thereafter (until a revert undoes it).
func (s *IntraBlockState) AccessAccount(addr common.Address) AccessStatus {
	if s.accessedAddresses[addr] {
		return WarmAccess
	}
	s.accessedAddresses[addr] = true
	s.pushDelta(accountAccessDelta(addr))
	return ColdAccess
}

// AccessStorage records an EIP-2929 storage-slot access.
func (s *IntraBlockState) AccessStorage(addr common.Address, key common.Hash) AccessStatus {
	keys, ok := s.accessedStorageKeys[addr]
	if !ok {
		keys = make(map[common.Hash]bool)
		s.accessedStorageKeys[addr] = keys
	}
	if keys[key] {
		return WarmAccess
	}
	keys[key] = true
	s.pushDelta(storageAccessDelta(addr, key))
	return ColdAccess
}

// getStorage resolves key for addr: current (unless original is
// requested), then the committed cache, else a read-through to the
// State Buffer. Once a slot is cached in Committed, both current and
// original reads resolve to cv.Original: the only thing distinguishing
// "current" from "original" is whether storage.current still holds a
// newer, in-flight write for the key. cv.Initial is not a read-path value
// at all — it exists purely so WriteToDB/UpdateStorage can record the
// block-start value into the change set. A slot whose object has been
// recreated this block (its live incarnation differs from the
// incarnation it was loaded under) always reads as zero, since it
// belongs to a prior incarnation.
func (s *IntraBlockState) getStorage(addr common.Address, key common.Hash, original bool) (common.Hash, error) {
	obj, err := s.loadObject(addr)
	if err != nil {
		return common.Hash{}, err
	}
	st := s.ensureStorage(addr)

	if !original {
		if v, ok := st.Current[key]; ok {
			return v, nil
		}
	}
	if cv, ok := st.Committed[key]; ok {
		return cv.Original, nil
	}

	if obj.Initial != nil && obj.Current != nil && obj.Initial.Incarnation != obj.Current.Incarnation {
		st.Committed[key] = CommittedValue{}
		return common.Hash{}, nil
	}

	var incarnation uint64
	if obj.Current != nil {
		incarnation = obj.Current.Incarnation
	}
	v, err := s.db.ReadStorage(addr, incarnation, key)
	if err != nil {
		return common.Hash{}, err
	}
	st.Committed[key] = CommittedValue{Initial: v, Original: v}
	return v, nil
}

// GetCurrentStorage returns key's value as of right now, within the
// in-flight transaction.
func (s *IntraBlockState) GetCurrentStorage(addr common.Address, key common.Hash) (common.Hash, error) {
	return s.getStorage(addr, key, false)
}

// GetOriginalStorage returns key's value as of the start of the current
// transaction (EIP-2200).
func (s *IntraBlockState) GetOriginalStorage(addr common.Address, key common.Hash) (common.Hash, error) {
	return s.getStorage(addr, key, true)
}

// SetStorage writes value to key, journalling a StorageChange delta
// unless value already equals the current value.
func (s *IntraBlockState) SetStorage(addr common.Address, key, value common.Hash) error {
	current, err := s.GetCurrentStorage(addr, key)
	if err != nil {
		return err
	}
	if current == value {
		return nil
	}
	s.pushDelta(storageChangeDelta(addr, key, current))
	st := s.ensureStorage(addr)
	st.Current[key] = value
	return nil
}

// TakeSnapshot returns a marker that RevertToSnapshot can later restore
// to.
func (s *IntraBlockState) TakeSnapshot() Snapshot {
	return Snapshot{journalSize: len(s.journal), logSize: len(s.logs), refund: s.refund}
}

// RevertToSnapshot pops and reverts journal entries down to snap's
// journal size, truncates logs to snap's log size, and restores refund.
func (s *IntraBlockState) RevertToSnapshot(snap Snapshot) {
	for len(s.journal) > snap.journalSize {
		last := s.journal[len(s.journal)-1]
		s.journal = s.journal[:len(s.journal)-1]
		last.revert(s)
	}
	s.logs = s.logs[:snap.logSize]
	s.refund = snap.refund
}

// FinalizeTransaction propagates current storage values into
// committed.original and clears current, marking the end of a
// transaction. It does not clear the journal: a block-level unwind may
// still need to revert an entire already-finalized transaction.
func (s *IntraBlockState) FinalizeTransaction() {
	for _, st := range s.storage {
		for key, value := range st.Current {
			cv := st.Committed[key]
			cv.Original = value
			st.Committed[key] = cv
		}
		st.Current = make(map[common.Hash]common.Hash)
	}
}

// ClearJournalAndSubstate drops the journal and every substate
// accumulator. Call only after the snapshot windows that reference the
// current journal are no longer needed.
func (s *IntraBlockState) ClearJournalAndSubstate() {
	s.journal = nil
	s.selfDestructs = make(map[common.Address]bool)
	s.logs = nil
	s.touched = make(map[common.Address]bool)
	s.refund = 0
	s.accessedAddresses = make(map[common.Address]bool)
	s.accessedStorageKeys = make(map[common.Address]map[common.Hash]bool)
}

// AddLog appends a log entry to the substate.
func (s *IntraBlockState) AddLog(log Log) { s.logs = append(s.logs, log) }

// Logs returns the substate's accumulated log entries.
func (s *IntraBlockState) Logs() []Log { return s.logs }

// AddRefund increases the gas refund counter.
func (s *IntraBlockState) AddRefund(n uint64) { s.refund += n }

// SubtractRefund decreases the gas refund counter. It panics if n
// exceeds the current refund, matching the invariant the EVM gas
// accounting relies on: the refund counter must never go negative.
func (s *IntraBlockState) SubtractRefund(n uint64) {
	if n > s.refund {
		panic(fmt.Sprintf("state: refund counter underflow: %d > %d", n, s.refund))
	}
	s.refund -= n
}

// GetRefund returns the current gas refund counter.
func (s *IntraBlockState) GetRefund() uint64 { return s.refund }

// WriteToDB flushes every accumulated Object and storage slot to the
// State Buffer for blockNumber, in deterministic (address-sorted) order:
// storage first, then accounts, then any freshly-set code.
func (s *IntraBlockState) WriteToDB(blockNumber uint64) error {
	s.db.BeginBlock(blockNumber)

	addrs := make([]common.Address, 0, len(s.objects))
	for addr := range s.objects {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return bytes.Compare(addrs[i].Bytes(), addrs[j].Bytes()) < 0 })

	for _, addr := range addrs {
		obj := s.objects[addr]
		st, hasStorage := s.storage[addr]
		if !hasStorage || obj.Current == nil || len(st.Committed) == 0 {
			continue
		}
		keys := make([]common.Hash, 0, len(st.Committed))
		for key := range st.Committed {
			keys = append(keys, key)
		}
		sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i].Bytes(), keys[j].Bytes()) < 0 })
		for _, key := range keys {
			cv := st.Committed[key]
			if err := s.db.UpdateStorage(addr, obj.Current.Incarnation, key, cv.Initial, cv.Original); err != nil {
				return err
			}
		}
	}

	for _, addr := range addrs {
		obj := s.objects[addr]
		if err := s.db.UpdateAccount(addr, obj.Initial, obj.Current); err != nil {
			return err
		}
		if obj.Current == nil || obj.Current.CodeHash == EmptyCodeHash {
			continue
		}
		var initialIncarnation uint64
		if obj.Initial != nil {
			initialIncarnation = obj.Initial.Incarnation
		}
		if obj.Current.Incarnation == initialIncarnation {
			continue
		}
		if code, ok := s.newCode[obj.Current.CodeHash]; ok {
			if err := s.db.UpdateAccountCode(addr, obj.Current.Incarnation, obj.Current.CodeHash, code); err != nil {
				return err
			}
		}
	}
	return nil
}
