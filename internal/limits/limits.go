// Copyright 2025 The Recordsplit Authors
// This file is part of Recordsplit.
//
// Recordsplit is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Recordsplit is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Recordsplit. If not, see <http://www.gnu.org/licenses/>.

// Package limits holds the handful of integer-bound helpers the codec needs:
// overflow-safe accumulation for StoredSizes counters, and chunk-count
// arithmetic for the Writer's split path.
//
// Adapted from erigon-lib/common/math/integer.go: only the bound constants,
// CeilDiv (used to compute the split-chunk count) and SafeAdd (used by
// StoredSizes accumulation) survive here. The hex/decimal JSON marshaling
// types and the EVM-specific helpers in the original file have no reader
// in this codebase and were dropped.
package limits

import "math/bits"

// Integer limit values.
const (
	MaxInt64 = 1<<63 - 1
	MinInt64 = -1 << 63
)

// CeilDiv returns ceil(x/y), or 0 if y == 0.
func CeilDiv(x, y int) int {
	if y == 0 {
		return 0
	}
	return (x + y - 1) / y
}

// SafeAdd returns x+y and reports whether the addition overflowed.
func SafeAdd(x, y uint64) (uint64, bool) {
	sum, carryOut := bits.Add64(x, y, 0)
	return sum, carryOut != 0
}
