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

package kv

// Table names. Naming and the dictionary below follow erigon's own
// dbutils/tables.go: "Plain State" means keys are not hashed (used during
// block execution); "incarnation" namespaces storage across a contract's
// self-destruct/recreate cycles.
const (
	// PlainState: key = address (20 bytes), value = encoded account.
	PlainState = "PlainState"

	// PlainStateStorage: key = address || incarnation (u64 BE), dup-sort
	// values = slot (32 bytes) || zeroless(value).
	PlainStateStorage = "PlainStateStorage"

	// PlainContractCode: key = address || incarnation, value = code hash.
	PlainContractCode = "PlainContractCode"

	// Code: key = code hash, value = code bytes.
	Code = "Code"

	// AccountChangeSet: key = block_number (u64 BE), dup-sort values =
	// address || encoded(initial account).
	AccountChangeSet = "AccountChangeSet"

	// StorageChangeSet: key = block_number || address || incarnation,
	// dup-sort values = slot || zeroless(initial value).
	StorageChangeSet = "StorageChangeSet"

	// Headers: key = block_num_u64 || hash, value = encoded header.
	Headers = "Headers"

	// HeaderCanonical: key = block_num_u64, value = canonical hash.
	HeaderCanonical = "HeaderCanonical"

	// HeaderTD: key = block_num_u64 || hash, value = encoded total difficulty.
	HeaderTD = "HeaderTD"

	// BlockBody: key = block_num_u64 || hash, value = encoded body.
	BlockBody = "BlockBody"

	// Receipts: key = block_num_u64, value = encoded receipts for the block.
	Receipts = "Receipts"

	// IncarnationMap: key = address, value = incarnation of the account
	// when it was last deleted. See erigon-lib/kv/tables.go's own comment
	// on IncarnationMap, which this is grounded on verbatim.
	IncarnationMap = "IncarnationMap"

	// Sequence: key = table name, value = u64 BE sequence counter.
	// Private to the KV contract's implementation.
	Sequence = "Sequence"

	// SyncStageProgress: key = stage name, value = encoded progress.
	SyncStageProgress = "SyncStage"
)

// TableFlags mirrors erigon-lib/kv/tables.go's TableFlags, trimmed to the
// one bit this module's contract cares about.
type TableFlags uint8

const (
	Default TableFlags = 0x00
	DupSort TableFlags = 0x04
)

// TableCfgItem is the per-table configuration the registry carries.
type TableCfgItem struct {
	Flags TableFlags
}

// IsDupSort reports whether the table permits multiple values per key.
func (t TableCfgItem) IsDupSort() bool { return t.Flags&DupSort != 0 }

// TableCfg is a static mapping from table name to configuration. An unknown
// table name is a caller error (ErrTableNotFound).
type TableCfg map[string]TableCfgItem

// ChaindataTablesCfg is the registry used throughout this module: the
// static table-definitions registry the Mutation Buffer reads each
// bucket's dup-sort flag from.
var ChaindataTablesCfg = TableCfg{
	PlainState:        {Flags: Default},
	PlainStateStorage: {Flags: DupSort},
	PlainContractCode: {Flags: Default},
	Code:              {Flags: Default},
	AccountChangeSet:  {Flags: DupSort},
	StorageChangeSet:  {Flags: DupSort},
	Headers:           {Flags: Default},
	HeaderCanonical:   {Flags: Default},
	HeaderTD:          {Flags: Default},
	BlockBody:         {Flags: Default},
	Receipts:          {Flags: Default},
	IncarnationMap:    {Flags: Default},
	Sequence:          {Flags: Default},
	SyncStageProgress: {Flags: Default},
}

// Lookup returns table's configuration, or false if table is unknown.
func (c TableCfg) Lookup(table string) (TableCfgItem, bool) {
	item, ok := c[table]
	return item, ok
}

// ChaindataTables lists every registered table name, in the fixed order
// the Mutation Buffer's commit path iterates tables: insertion order of
// the table registry.
var ChaindataTables = []string{
	PlainState,
	PlainStateStorage,
	PlainContractCode,
	Code,
	AccountChangeSet,
	StorageChangeSet,
	Headers,
	HeaderCanonical,
	HeaderTD,
	BlockBody,
	Receipts,
	IncarnationMap,
	Sequence,
	SyncStageProgress,
}
