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

package recordsplit

import (
	"context"

	"github.com/erigontech/erigon-lib/log/v3"
)

// SingleKeyReaderOptions selects which of the three format generations
// recordPrefix was (or should be assumed to have been) written under.
// spec.md §4.4.
type SingleKeyReaderOptions struct {
	SplitLongRecords           bool
	MissingUnsplitRecordSuffix bool
	// OldVersionFormat, if true, means this record's generation never
	// carried version entries at all; one observed during the general-path
	// scan is a hard failure (OldVersionFormatViolation).
	OldVersionFormat bool
}

// SingleKeyReader reassembles exactly one logical record. spec.md §4.4.
type SingleKeyReader struct {
	kvs   KVS
	local TransactionLocal
	trace bool
}

// NewSingleKeyReader builds a SingleKeyReader over kvs and local, borrowed
// for the duration of each call.
func NewSingleKeyReader(kvs KVS, local TransactionLocal) *SingleKeyReader {
	return &SingleKeyReader{kvs: kvs, local: local}
}

// SetTrace toggles verbose per-call structured logging.
func (r *SingleKeyReader) SetTrace(trace bool) { r.trace = trace }

// Load reassembles the logical record at recordPrefix, or returns (nil,
// nil) if none exists. spec.md §4.4.
func (r *SingleKeyReader) Load(ctx context.Context, recordPrefix []byte, opts SingleKeyReaderOptions) (*LogicalRecord, error) {
	if !opts.SplitLongRecords && opts.MissingUnsplitRecordSuffix {
		return r.loadLegacy(ctx, recordPrefix)
	}
	return r.loadGeneral(ctx, recordPrefix, opts)
}

func (r *SingleKeyReader) loadLegacy(ctx context.Context, recordPrefix []byte) (*LogicalRecord, error) {
	value, err := r.kvs.Get(ctx, recordPrefix)
	if err != nil {
		return nil, wrapKVSError(err, "SingleKeyReader.Load: legacy point read")
	}
	if value == nil {
		return nil, nil
	}
	var sizes StoredSizes
	sizes.Set(recordPrefix, value)
	return &LogicalRecord{PrimaryKey: recordPrefix, Payload: value, Sizes: sizes}, nil
}

func (r *SingleKeyReader) loadGeneral(ctx context.Context, recordPrefix []byte, opts SingleKeyReaderOptions) (*LogicalRecord, error) {
	cur := r.kvs.GetRange(ctx, recordPrefix, prefixRangeEnd(recordPrefix), RangeOptions{})
	defer cur.Close()

	acc := newAccumulator(false, opts.OldVersionFormat)
	for {
		has, err := cur.HasNext(ctx)
		if err != nil {
			return nil, wrapKVSError(err, "SingleKeyReader.Load: range scan")
		}
		if !has {
			break
		}
		entry, err := cur.Next(ctx)
		if err != nil {
			return nil, wrapKVSError(err, "SingleKeyReader.Load: range scan")
		}
		suffix, err := parseSuffix(entry.Key, recordPrefix)
		if err != nil {
			return nil, err
		}
		if _, err := acc.observe(entry.Key, suffix, entry.Value); err != nil {
			return nil, err
		}
	}

	injectLocalVersion(r.local, acc, recordPrefix)
	if !acc.hasAnyData() {
		return nil, nil
	}
	rec, err := acc.finalize(recordPrefix)
	if err != nil {
		return nil, err
	}
	if r.trace {
		log.Info("recordsplit.SingleKeyReader.Load", "prefix", recordPrefix, "sizes", rec.Sizes.String())
	}
	return &rec, nil
}

// Exists reports whether a logical record is stored at recordPrefix,
// without reassembling it. spec.md §4.4.
func (r *SingleKeyReader) Exists(ctx context.Context, recordPrefix []byte, opts SingleKeyReaderOptions) (bool, error) {
	if !opts.SplitLongRecords && opts.MissingUnsplitRecordSuffix {
		value, err := r.kvs.Get(ctx, recordPrefix)
		if err != nil {
			return false, wrapKVSError(err, "SingleKeyReader.Exists: legacy point read")
		}
		return value != nil, nil
	}
	cur := r.kvs.GetRange(ctx, recordPrefix, prefixRangeEnd(recordPrefix), RangeOptions{RowLimit: 1})
	defer cur.Close()
	has, err := cur.HasNext(ctx)
	if err != nil {
		return false, wrapKVSError(err, "SingleKeyReader.Exists: range scan")
	}
	return has, nil
}
