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

	"github.com/erigontech/erigon-lib/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// EmptyCodeHash is keccak256 of the empty byte string. code_hash ==
// EmptyCodeHash means the account has no code.
var EmptyCodeHash = common.HexToHash("c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470")

// Account is the world-state record for one address.
//
// Root is carried for interop with a trie-root-computing caller (out of
// scope for this package) and is left zero unless a caller sets it
// explicitly; nothing in this package computes it.
type Account struct {
	Nonce       uint64
	Balance     uint256.Int
	Root        common.Hash
	CodeHash    common.Hash
	Incarnation uint64
}

// empty reports whether a is the EIP-161 "empty" account: zero
// nonce, zero balance, no code.
func (a *Account) empty() bool {
	return a.Nonce == 0 && a.Balance.IsZero() && a.CodeHash == EmptyCodeHash
}

// Clone returns a deep copy of a, suitable for journaling as a delta's
// "previous" value.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}

// Equal reports field-wise equality.
func (a *Account) Equal(b *Account) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Nonce == b.Nonce && a.Balance.Eq(&b.Balance) && a.Root == b.Root &&
		a.CodeHash == b.CodeHash && a.Incarnation == b.Incarnation
}

// Object is the pre/post image pair backing one address for the duration
// of one Intra-Block State.
type Object struct {
	Initial *Account
	Current *Account
}

// Clone deep-copies o, used to snapshot the "previous" value of an Update
// delta before mutating Current in place.
func (o Object) Clone() Object {
	return Object{Initial: o.Initial.Clone(), Current: o.Current.Clone()}
}

// Exists reports whether o carries a live (non-destructed) account image.
func (o Object) Exists() bool { return o.Current != nil }

// IsDead reports the EIP-161 "dead" predicate: no current image, or a
// current image that is itself EIP-161-empty.
func (o Object) IsDead() bool {
	if o.Current == nil {
		return true
	}
	return o.Current.empty()
}

const (
	flagNonce       = 1 << 0
	flagBalance     = 1 << 1
	flagCodeHash    = 1 << 2
	flagIncarnation = 1 << 3
)

// EncodeForStorage produces the PlainState-table encoding of an account: a
// leading bit-field byte naming which fields are non-default, followed by
// only those fields in the order nonce, balance, code hash, incarnation.
// Nonce, balance and incarnation are stripped of leading zero bytes and
// prefixed with a one-byte length; the code hash is written as its full
// 32 bytes. Root is not part of the encoding. This is the
// compact "set of non-default fields" strategy real erigon accounts use;
// the exact bit layout here is this module's own, since the pack does not
// carry accounts.Account's source.
func EncodeForStorage(a *Account) []byte {
	var fieldSet byte
	var nonceBytes, balanceBytes []byte

	if a.Nonce != 0 {
		fieldSet |= flagNonce
		nonceBytes = trimLeadingZeros(beUint64(a.Nonce))
	}
	if !a.Balance.IsZero() {
		fieldSet |= flagBalance
		balanceBytes = trimLeadingZeros(a.Balance.Bytes())
	}
	if a.CodeHash != EmptyCodeHash {
		fieldSet |= flagCodeHash
	}
	var incarnationBytes []byte
	if a.Incarnation != 0 {
		fieldSet |= flagIncarnation
		incarnationBytes = trimLeadingZeros(beUint64(a.Incarnation))
	}

	buf := make([]byte, 0, 1+1+len(nonceBytes)+1+len(balanceBytes)+32+1+len(incarnationBytes))
	buf = append(buf, fieldSet)
	if fieldSet&flagNonce != 0 {
		buf = append(buf, byte(len(nonceBytes)))
		buf = append(buf, nonceBytes...)
	}
	if fieldSet&flagBalance != 0 {
		buf = append(buf, byte(len(balanceBytes)))
		buf = append(buf, balanceBytes...)
	}
	if fieldSet&flagCodeHash != 0 {
		buf = append(buf, a.CodeHash.Bytes()...)
	}
	if fieldSet&flagIncarnation != 0 {
		buf = append(buf, byte(len(incarnationBytes)))
		buf = append(buf, incarnationBytes...)
	}
	return buf
}

// DecodeFromStorage parses the output of EncodeForStorage.
func DecodeFromStorage(enc []byte) (*Account, error) {
	if len(enc) == 0 {
		return nil, errors.New("state: empty account encoding")
	}
	a := &Account{CodeHash: EmptyCodeHash}
	fieldSet := enc[0]
	pos := 1

	if fieldSet&flagNonce != 0 {
		n, next, err := readLenPrefixed(enc, pos)
		if err != nil {
			return nil, err
		}
		a.Nonce = beUint64FromTrimmed(n)
		pos = next
	}
	if fieldSet&flagBalance != 0 {
		b, next, err := readLenPrefixed(enc, pos)
		if err != nil {
			return nil, err
		}
		a.Balance.SetBytes(b)
		pos = next
	}
	if fieldSet&flagCodeHash != 0 {
		if pos+32 > len(enc) {
			return nil, errors.New("state: truncated code hash in account encoding")
		}
		a.CodeHash = common.BytesToHash(enc[pos : pos+32])
		pos += 32
	}
	if fieldSet&flagIncarnation != 0 {
		n, next, err := readLenPrefixed(enc, pos)
		if err != nil {
			return nil, err
		}
		a.Incarnation = beUint64FromTrimmed(n)
		pos = next
	}
	return a, nil
}

func readLenPrefixed(enc []byte, pos int) (val []byte, next int, err error) {
	if pos >= len(enc) {
		return nil, 0, errors.New("state: truncated account encoding")
	}
	l := int(enc[pos])
	pos++
	if pos+l > len(enc) {
		return nil, 0, errors.New("state: truncated account encoding field")
	}
	return enc[pos : pos+l], pos + l, nil
}

func beUint64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

func beUint64FromTrimmed(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func trimLeadingZeros(b []byte) []byte {
	i := 0
	for i < len(b) && b[i] == 0 {
		i++
	}
	return b[i:]
}

// zeroless is the "zeroless(value)" transform applied to
// storage slot values before persisting: leading zero bytes are trimmed.
func zeroless(h common.Hash) []byte {
	return trimLeadingZeros(bytes.Clone(h.Bytes()))
}

// fromZeroless reconstructs a 32-byte slot value from its zeroless form.
func fromZeroless(b []byte) common.Hash {
	var h common.Hash
	copy(h[32-len(b):], b)
	return h
}
