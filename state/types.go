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

// Header, Body and Receipt are intentionally minimal: the persisted
// layout treats them as opaque encoded blobs keyed by block
// number and hash. Only Raw is persisted: a decoded Header carries Raw
// and the Number taken from its key, a decoded Body carries Raw alone,
// and ParentHash, Root and TxHashes are set only by callers that build
// these values themselves (such as an Accessors implementation feeding
// the staged execution loop). Encode/Decode stand in for the real RLP
// codec, absent from the retrieved pack.
type Header struct {
	Number     uint64
	ParentHash common.Hash
	Root       common.Hash
	Raw        []byte // opaque encoded header, as persisted
}

// Body is the per-block list of transaction hashes this module tracks;
// transaction bodies themselves are an external collaborator's concern.
type Body struct {
	TxHashes []common.Hash
	Raw      []byte
}

// Receipt is the opaque per-transaction execution outcome persisted for
// a block; this module never constructs or inspects one, only stores and
// retrieves it as a blob alongside its block.
type Receipt struct {
	Raw []byte
}

// EncodeHeader/DecodeHeader and EncodeBody/DecodeBody round-trip through
// Raw: this module is agnostic to the wire format, so callers populate
// Raw themselves (e.g. via RLP) and these helpers only carry it through
// the KV layer. EncodeReceipts concatenates the receipts' Raw blobs; there
// is no decoder for the result.
func EncodeHeader(h *Header) []byte { return h.Raw }

func DecodeHeader(num uint64, raw []byte) *Header {
	return &Header{Number: num, Raw: raw}
}

func EncodeBody(b *Body) []byte { return b.Raw }

func DecodeBody(raw []byte) *Body {
	return &Body{Raw: raw}
}

func EncodeReceipts(rs []Receipt) []byte {
	var out []byte
	for _, r := range rs {
		out = append(out, r.Raw...)
	}
	return out
}
