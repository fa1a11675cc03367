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
	"math/big"

	"github.com/erigontech/erigon-lib/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/erigon-akula/corestate/kv"
)

// KV is the slice of the Mutation Buffer's public API the State Buffer
// depends on. *mutation.Mutation satisfies it; Buffer is written against
// the interface, not the concrete type, so tests can swap in a fake.
type KV interface {
	Get(table string, key []byte) ([]byte, error)
	Set(table string, key, value []byte) error
	DeleteKey(table string, key []byte) error
	DeletePair(table string, key, value []byte) error
	GetBothRange(table string, key, valuePrefix []byte) ([]byte, error)
	GetAllDup(table string, key []byte) ([][]byte, error)
}

type storageTouch struct {
	addr        common.Address
	incarnation uint64
}

// Buffer is a block-scoped cache: typed reads
// and writes for Ethereum entities, layered over the Mutation Buffer.
//
// blockStorageTouches indexes, per block number, the (address,
// incarnation) pairs UpdateStorage has written a change-set entry for.
// It exists because the persisted StorageChangeSet key is
// block_number||address||incarnation: unwinding a block
// needs to know which compound keys to revisit, and this contract's KV
// layer deliberately has no range scan over keys to discover them.
// Buffer is explicitly block-scoped (this component, not the
// persistent store, is the cache), so keeping this index in memory for
// the Buffer's lifetime is consistent with that scoping, not a
// durability gap on top of it.
type Buffer struct {
	kv        KV
	codeCache *lru.Cache[common.Hash, []byte]

	blockActive         bool
	activeBlockNum      uint64
	blockStorageTouches map[uint64]map[storageTouch]bool

	canonicalKnown bool
	canonicalHead  uint64
}

// NewBuffer builds a Buffer over kv, caching up to codeCacheSize distinct
// code blobs (hashicorp/golang-lru, bounded so a long sync cannot grow the
// cache unboundedly).
func NewBuffer(store KV, codeCacheSize int) (*Buffer, error) {
	cache, err := lru.New[common.Hash, []byte](codeCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "state: construct code cache")
	}
	return &Buffer{
		kv:                  store,
		codeCache:           cache,
		blockStorageTouches: make(map[uint64]map[storageTouch]bool),
	}, nil
}

// ReadAccount returns the account stored at addr, or nil if absent.
func (b *Buffer) ReadAccount(addr common.Address) (*Account, error) {
	enc, err := b.kv.Get(kv.PlainState, addr.Bytes())
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, nil
	}
	return DecodeFromStorage(enc)
}

// ReadCode returns the code bytes for codeHash, or nil if codeHash is the
// empty-code hash or absent.
func (b *Buffer) ReadCode(codeHash common.Hash) ([]byte, error) {
	if codeHash == EmptyCodeHash {
		return nil, nil
	}
	if code, ok := b.codeCache.Get(codeHash); ok {
		return code, nil
	}
	code, err := b.kv.Get(kv.Code, codeHash.Bytes())
	if err != nil {
		return nil, err
	}
	if code != nil {
		b.codeCache.Add(codeHash, code)
	}
	return code, nil
}

// ReadStorage returns the value at slot for (addr, incarnation), or the
// zero hash if unset.
func (b *Buffer) ReadStorage(addr common.Address, incarnation uint64, slot common.Hash) (common.Hash, error) {
	key := addrIncarnationKey(addr, incarnation)
	v, err := b.kv.GetBothRange(kv.PlainStateStorage, key, slot.Bytes())
	if err != nil {
		return common.Hash{}, err
	}
	if v == nil || len(v) < 32 || !bytes.Equal(v[:32], slot.Bytes()) {
		return common.Hash{}, nil
	}
	return fromZeroless(v[32:]), nil
}

// PreviousIncarnation returns the incarnation addr had when it was last
// deleted, or 0 if it has never been deleted.
func (b *Buffer) PreviousIncarnation(addr common.Address) (uint64, error) {
	v, err := b.kv.Get(kv.IncarnationMap, addr.Bytes())
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, nil
	}
	return beUint64FromTrimmed(v), nil
}

// ReadHeader returns the header at (num, hash).
func (b *Buffer) ReadHeader(num uint64, hash common.Hash) (*Header, error) {
	v, err := b.kv.Get(kv.Headers, headerKey(num, hash))
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, errors.Wrapf(ErrMissingCanonicalData, "header %d/%x", num, hash)
	}
	return DecodeHeader(num, v), nil
}

// ReadBody returns the body at (num, hash).
func (b *Buffer) ReadBody(num uint64, hash common.Hash) (*Body, error) {
	v, err := b.kv.Get(kv.BlockBody, headerKey(num, hash))
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, errors.Wrapf(ErrMissingCanonicalData, "body %d/%x", num, hash)
	}
	return DecodeBody(v), nil
}

// TotalDifficulty returns the cumulative difficulty recorded for (num, hash).
func (b *Buffer) TotalDifficulty(num uint64, hash common.Hash) (*big.Int, error) {
	v, err := b.kv.Get(kv.HeaderTD, headerKey(num, hash))
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, errors.Wrapf(ErrMissingCanonicalData, "total difficulty %d/%x", num, hash)
	}
	return new(big.Int).SetBytes(v), nil
}

// StateRootHash returns the state root carried by the header at (num, hash).
func (b *Buffer) StateRootHash(num uint64, hash common.Hash) (common.Hash, error) {
	h, err := b.ReadHeader(num, hash)
	if err != nil {
		return common.Hash{}, err
	}
	return h.Root, nil
}

// CurrentCanonicalBlock returns the highest block number CanonizeBlock has
// recorded since this Buffer was constructed, lowered by one each time
// DecanonizeBlock removes the current head.
func (b *Buffer) CurrentCanonicalBlock() (uint64, error) {
	if !b.canonicalKnown {
		return 0, errors.Wrap(ErrMissingCanonicalData, "no canonical block recorded")
	}
	return b.canonicalHead, nil
}

// CanonicalHash returns the canonical hash recorded for block num.
func (b *Buffer) CanonicalHash(num uint64) (common.Hash, error) {
	v, err := b.kv.Get(kv.HeaderCanonical, beUint64(num))
	if err != nil {
		return common.Hash{}, err
	}
	if v == nil {
		return common.Hash{}, errors.Wrapf(ErrMissingCanonicalData, "canonical hash for block %d", num)
	}
	return common.BytesToHash(v), nil
}

// InsertBlock persists a header, its body, and (if known) its total
// difficulty, keyed by (num, hash). It does not make the block canonical;
// call CanonizeBlock separately.
func (b *Buffer) InsertBlock(hash common.Hash, h *Header, body *Body, td *big.Int) error {
	key := headerKey(h.Number, hash)
	if err := b.kv.Set(kv.Headers, key, EncodeHeader(h)); err != nil {
		return err
	}
	if err := b.kv.Set(kv.BlockBody, key, EncodeBody(body)); err != nil {
		return err
	}
	if td != nil {
		if err := b.kv.Set(kv.HeaderTD, key, td.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// CanonizeBlock marks (num, hash) as the canonical block at height num.
func (b *Buffer) CanonizeBlock(num uint64, hash common.Hash) error {
	if err := b.kv.Set(kv.HeaderCanonical, beUint64(num), hash.Bytes()); err != nil {
		return err
	}
	if !b.canonicalKnown || num > b.canonicalHead {
		b.canonicalHead = num
		b.canonicalKnown = true
	}
	return nil
}

// DecanonizeBlock removes num's canonical-hash mapping.
func (b *Buffer) DecanonizeBlock(num uint64) error {
	if err := b.kv.DeleteKey(kv.HeaderCanonical, beUint64(num)); err != nil {
		return err
	}
	if b.canonicalKnown && num == b.canonicalHead && num > 0 {
		b.canonicalHead = num - 1
	}
	return nil
}

// InsertReceipts persists the receipts produced by block num.
func (b *Buffer) InsertReceipts(num uint64, receipts []Receipt) error {
	return b.kv.Set(kv.Receipts, beUint64(num), EncodeReceipts(receipts))
}

// RecordStageProgress persists the staged execution loop's progress
// marker for stageName.
func (b *Buffer) RecordStageProgress(stageName string, blockNum uint64) error {
	return b.kv.Set(kv.SyncStageProgress, []byte(stageName), beUint64(blockNum))
}

// ReadStageProgress returns the last progress blockNum recorded for
// stageName, or 0 if none has been recorded yet.
func (b *Buffer) ReadStageProgress(stageName string) (uint64, error) {
	v, err := b.kv.Get(kv.SyncStageProgress, []byte(stageName))
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, nil
	}
	return beUint64FromTrimmed(v), nil
}

// BeginBlock must be called before any Update* call for block num; it
// opens that block's change-set accumulation.
func (b *Buffer) BeginBlock(num uint64) {
	b.blockActive = true
	b.activeBlockNum = num
	if _, ok := b.blockStorageTouches[num]; !ok {
		b.blockStorageTouches[num] = make(map[storageTouch]bool)
	}
}

// UpdateAccount writes current to plain state (or deletes it, if current
// is nil, i.e. the account is gone, recording initial's non-zero
// incarnation in IncarnationMap) and records initial into the active
// block's account change-set, but only if initial and current differ.
func (b *Buffer) UpdateAccount(addr common.Address, initial, current *Account) error {
	if !b.blockActive {
		return errors.New("state: update_account called before begin_block")
	}
	if current == nil {
		if err := b.kv.DeleteKey(kv.PlainState, addr.Bytes()); err != nil {
			return err
		}
		if initial != nil && initial.Incarnation > 0 {
			if err := b.kv.Set(kv.IncarnationMap, addr.Bytes(), beUint64(initial.Incarnation)); err != nil {
				return err
			}
		}
	} else if err := b.kv.Set(kv.PlainState, addr.Bytes(), EncodeForStorage(current)); err != nil {
		return err
	}

	if initial.Equal(current) {
		return nil
	}
	var initialEnc []byte
	if initial != nil {
		initialEnc = EncodeForStorage(initial)
	}
	val := append(append([]byte(nil), addr.Bytes()...), initialEnc...)
	return b.kv.Set(kv.AccountChangeSet, beUint64(b.activeBlockNum), val)
}

// UpdateAccountCode writes code keyed by its hash (idempotently: an
// existing blob under the same hash is left untouched) and records the
// (addr, incarnation) -> code_hash mapping.
func (b *Buffer) UpdateAccountCode(addr common.Address, incarnation uint64, codeHash common.Hash, code []byte) error {
	existing, err := b.kv.Get(kv.Code, codeHash.Bytes())
	if err != nil {
		return err
	}
	if existing == nil {
		if err := b.kv.Set(kv.Code, codeHash.Bytes(), code); err != nil {
			return err
		}
	}
	b.codeCache.Add(codeHash, code)
	return b.kv.Set(kv.PlainContractCode, addrIncarnationKey(addr, incarnation), codeHash.Bytes())
}

// UpdateStorage writes current to plain storage at (addr, incarnation,
// slot) — a zero value deletes the slot — and records initial into the
// active block's storage change-set, but only if initial and current
// differ.
func (b *Buffer) UpdateStorage(addr common.Address, incarnation uint64, slot, initial, current common.Hash) error {
	if !b.blockActive {
		return errors.New("state: update_storage called before begin_block")
	}
	key := addrIncarnationKey(addr, incarnation)
	if err := b.removeStorageValue(key, slot); err != nil {
		return err
	}
	if current != (common.Hash{}) {
		val := append(append([]byte(nil), slot.Bytes()...), zeroless(current)...)
		if err := b.kv.Set(kv.PlainStateStorage, key, val); err != nil {
			return err
		}
	}
	if initial == current {
		return nil
	}
	touches := b.blockStorageTouches[b.activeBlockNum]
	touches[storageTouch{addr: addr, incarnation: incarnation}] = true

	csVal := append(append([]byte(nil), slot.Bytes()...), zeroless(initial)...)
	return b.kv.Set(kv.StorageChangeSet, storageChangeSetKey(b.activeBlockNum, addr, incarnation), csVal)
}

func (b *Buffer) removeStorageValue(key []byte, slot common.Hash) error {
	existing, err := b.kv.GetBothRange(kv.PlainStateStorage, key, slot.Bytes())
	if err != nil {
		return err
	}
	if existing != nil && len(existing) >= 32 && bytes.Equal(existing[:32], slot.Bytes()) {
		return b.kv.DeletePair(kv.PlainStateStorage, key, existing)
	}
	return nil
}

// UnwindStateChanges restores plain state from block num's change sets,
// then removes them. Per-table sequences are left untouched: an unwind
// restores the state these tables describe, not the sequence counters
// that happen to have been consumed while reaching it.
func (b *Buffer) UnwindStateChanges(num uint64) error {
	accountVals, err := b.kv.GetAllDup(kv.AccountChangeSet, beUint64(num))
	if err != nil {
		return err
	}
	for _, v := range accountVals {
		if len(v) < 20 {
			return errors.Errorf("state: malformed account change-set entry for block %d", num)
		}
		addr := common.BytesToAddress(v[:20])
		initialEnc := v[20:]
		if len(initialEnc) == 0 {
			if err := b.kv.DeleteKey(kv.PlainState, addr.Bytes()); err != nil {
				return err
			}
			continue
		}
		if err := b.kv.Set(kv.PlainState, addr.Bytes(), initialEnc); err != nil {
			return err
		}
	}
	if err := b.kv.DeleteKey(kv.AccountChangeSet, beUint64(num)); err != nil {
		return err
	}

	for touch := range b.blockStorageTouches[num] {
		csKey := storageChangeSetKey(num, touch.addr, touch.incarnation)
		storageVals, err := b.kv.GetAllDup(kv.StorageChangeSet, csKey)
		if err != nil {
			return err
		}
		plainKey := addrIncarnationKey(touch.addr, touch.incarnation)
		for _, v := range storageVals {
			if len(v) < 32 {
				return errors.Errorf("state: malformed storage change-set entry for block %d", num)
			}
			slot := common.BytesToHash(v[:32])
			initial := fromZeroless(v[32:])
			if err := b.removeStorageValue(plainKey, slot); err != nil {
				return err
			}
			if initial != (common.Hash{}) {
				val := append(append([]byte(nil), slot.Bytes()...), zeroless(initial)...)
				if err := b.kv.Set(kv.PlainStateStorage, plainKey, val); err != nil {
					return err
				}
			}
		}
		if err := b.kv.DeleteKey(kv.StorageChangeSet, csKey); err != nil {
			return err
		}
	}
	delete(b.blockStorageTouches, num)
	return nil
}

func addrIncarnationKey(addr common.Address, incarnation uint64) []byte {
	return append(append([]byte(nil), addr.Bytes()...), beUint64(incarnation)...)
}

func headerKey(num uint64, hash common.Hash) []byte {
	return append(beUint64(num), hash.Bytes()...)
}

func storageChangeSetKey(num uint64, addr common.Address, incarnation uint64) []byte {
	key := beUint64(num)
	key = append(key, addr.Bytes()...)
	key = append(key, beUint64(incarnation)...)
	return key
}
