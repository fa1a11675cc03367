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
	"context"
	"fmt"

	"github.com/erigontech/erigon-lib/log/v3"
	"github.com/pkg/errors"

	"github.com/erigon-akula/corestate/state"
)

// StageInput names the half-open block range [FromBlock, ToBlock) a Run
// call should advance through.
type StageInput struct {
	FromBlock uint64
	ToBlock   uint64
}

// ExecOutput reports how far the loop actually got.
type ExecOutput struct {
	StageProgress uint64
}

// ExecuteFn delegates one transaction to the EVM (out of scope here);
// it returns the gas the transaction consumed.
// The EVM is expected to drive ibs through AccessAccount/AccessStorage,
// SetStorage, TakeSnapshot/RevertToSnapshot, and so on as it runs.
type ExecuteFn func(ibs *state.IntraBlockState, tx Transaction) (gasUsed uint64, err error)

// Run advances the staged execution loop across input's block range,
// validating and executing every transaction in every block, writing
// each block's resulting state to buf and invoking flush afterward (the
// caller's hook for committing the Mutation Buffer's batch). logPrefix
// names this invocation in log output, matching the "[stageName] ..."
// idiom staged-sync loops use throughout the pack.
func Run(
	ctx context.Context,
	logPrefix string,
	buf *state.Buffer,
	accessors Accessors,
	input StageInput,
	execute ExecuteFn,
	flush func(blockNum uint64) error,
	logger log.Logger,
) (ExecOutput, error) {
	progress := input.FromBlock

	for blockNum := input.FromBlock; blockNum < input.ToBlock; blockNum++ {
		if err := ctx.Err(); err != nil {
			return ExecOutput{StageProgress: progress}, err
		}

		hash, err := accessors.CanonicalHash(blockNum)
		if err != nil {
			return ExecOutput{}, errors.Wrapf(err, "%s: canonical hash for block %d", logPrefix, blockNum)
		}
		header, err := accessors.Header(blockNum, hash)
		if err != nil {
			return ExecOutput{}, errors.Wrapf(err, "%s: header for block %d", logPrefix, blockNum)
		}
		body, err := accessors.Body(blockNum, hash)
		if err != nil {
			return ExecOutput{}, errors.Wrapf(err, "%s: body for block %d", logPrefix, blockNum)
		}
		txs, err := accessors.Transactions(blockNum, hash)
		if err != nil {
			return ExecOutput{}, errors.Wrapf(err, "%s: transactions for block %d", logPrefix, blockNum)
		}
		senders, err := accessors.Senders(blockNum, hash)
		if err != nil {
			return ExecOutput{}, errors.Wrapf(err, "%s: senders for block %d", logPrefix, blockNum)
		}

		txAmount := len(body.TxHashes)
		if len(txs) != txAmount || len(senders) != txAmount {
			return ExecOutput{}, errors.Wrapf(state.ErrMissingCanonicalData,
				"%s: block %d: tx_amount=%d body_txs=%d senders=%d", logPrefix, blockNum, txAmount, len(txs), len(senders))
		}

		gasPool, err := accessors.GasLimit(blockNum, hash)
		if err != nil {
			return ExecOutput{}, errors.Wrapf(err, "%s: gas limit for block %d", logPrefix, blockNum)
		}

		ibs := state.New(buf)
		for i := 0; i < txAmount; i++ {
			tx := txs[i]
			tx.Sender = senders[i]

			if err := ValidateTransaction(ibs, tx, gasPool); err != nil {
				logger.Warn(fmt.Sprintf("[%s] Invalid transaction", logPrefix), "block", blockNum, "tx", i, "err", err)
				return ExecOutput{}, errors.Wrapf(err, "%s: block %d tx %d", logPrefix, blockNum, i)
			}

			snap := ibs.TakeSnapshot()
			gasUsed, err := execute(ibs, tx)
			if err != nil {
				ibs.RevertToSnapshot(snap)
				return ExecOutput{}, errors.Wrapf(err, "%s: block %d tx %d", logPrefix, blockNum, i)
			}
			gasPool -= gasUsed

			ibs.FinalizeTransaction()
			ibs.ClearJournalAndSubstate()
		}

		if err := ibs.WriteToDB(blockNum); err != nil {
			return ExecOutput{}, errors.Wrapf(err, "%s: write_to_db block %d", logPrefix, blockNum)
		}
		if flush != nil {
			if err := flush(blockNum); err != nil {
				return ExecOutput{}, errors.Wrapf(err, "%s: flush block %d", logPrefix, blockNum)
			}
		}
		progress = blockNum + 1
		if err := buf.RecordStageProgress(logPrefix, progress); err != nil {
			return ExecOutput{}, err
		}

		logger.Info(fmt.Sprintf("[%s] Executed block", logPrefix), "block", blockNum, "txs", txAmount, "header", header.Number)
	}

	return ExecOutput{StageProgress: progress}, nil
}
