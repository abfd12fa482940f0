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

package memkv

import (
	"context"

	"github.com/turbokv/recordsplit"
)

// cursor is a recordsplit.RangeCursor over a pre-materialized snapshot of
// entries. memkv has no genuine suspension points, so HasNext/Next never
// actually block on ctx; they still honor cancellation so callers that
// exercise recordsplit's cancellation path against memkv see it behave.
type cursor struct {
	entries []recordsplit.Entry
	idx     int
	reason  recordsplit.NoNextReason
	closed  bool
}

func (c *cursor) HasNext(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if c.closed {
		return false, nil
	}
	if c.idx >= len(c.entries) {
		c.reason = recordsplit.NoNextReasonExhausted
		return false, nil
	}
	return true, nil
}

func (c *cursor) Next(ctx context.Context) (recordsplit.Entry, error) {
	if err := ctx.Err(); err != nil {
		return recordsplit.Entry{}, err
	}
	e := c.entries[c.idx]
	c.idx++
	return e, nil
}

func (c *cursor) Continuation() ([]byte, error) {
	if c.idx == 0 {
		return nil, nil
	}
	return c.entries[c.idx-1].Key, nil
}

func (c *cursor) NoNextReason() recordsplit.NoNextReason { return c.reason }

func (c *cursor) Close() { c.closed = true }
