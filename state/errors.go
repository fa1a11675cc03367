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

import "errors"

// Error kinds used by the core. Transaction-validation
// failures abort the current block and are not retried.
var (
	ErrInvalidNonce          = errors.New("state: invalid nonce")
	ErrInsufficientFunds     = errors.New("state: insufficient funds")
	ErrBlockGasLimitExceeded = errors.New("state: block gas limit exceeded")
	ErrMissingCanonicalData  = errors.New("state: missing canonical data")
)
