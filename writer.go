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
	"github.com/turbokv/recordsplit/internal/limits"
)

// SaveOptions configures a Writer.Save call. A plain struct rather than
// functional options, matching the KVS collaborator's RangeOptions and the
// teacher's kv.RangeOptions-style call configuration. spec.md §4.2.
type SaveOptions struct {
	// SplitLongRecords allows payload.len > ChunkSize, chunking it across
	// multiple split entries. If false and the payload is oversize, Save
	// fails with RecordTooLong.
	SplitLongRecords bool
	// OmitUnsplitSuffix writes a single entry at recordPrefix with no
	// suffix at all, for backward compatibility with the oldest format
	// generation. Requires SplitLongRecords=false and version=nil.
	OmitUnsplitSuffix bool
	// ClearBasedOnPreviousSizeInfo, together with PreviousSizes, lets Save
	// compute a minimal clear instead of always clearing the full
	// sub-range. See "minimal overwrite" in spec.md §4.2.
	ClearBasedOnPreviousSizeInfo bool
	PreviousSizes                *StoredSizes
}

// DeleteOptions configures a Writer.Delete call. spec.md §4.2.
type DeleteOptions struct {
	SplitLongRecords             bool
	MissingUnsplitRecordSuffix   bool
	ClearBasedOnPreviousSizeInfo bool
	PreviousSizes                *StoredSizes
}

// Writer implements save/delete against a KVS and TransactionLocal
// collaborator pair. spec.md §4.2.
//
// Trace logging mirrors core/state/history_reader_v3.go's trace-bool
// pattern, generalized from ad hoc fmt.Printf calls to structured
// erigon-lib/log/v3 key=value logging (spec.md §9 ambient stack).
type Writer struct {
	kvs   KVS
	local TransactionLocal
	trace bool
}

// NewWriter builds a Writer over kvs and local. The Writer holds both for
// its own lifetime and uses them on every call.
func NewWriter(kvs KVS, local TransactionLocal) *Writer {
	return &Writer{kvs: kvs, local: local}
}

// SetTrace toggles verbose per-call structured logging.
func (w *Writer) SetTrace(trace bool) { w.trace = trace }

// Save writes a logical record under recordPrefix, returning the counters
// describing what was physically written. spec.md §4.2.
func (w *Writer) Save(ctx context.Context, recordPrefix, payload []byte, version *VersionStamp, opts SaveOptions) (StoredSizes, error) {
	if opts.OmitUnsplitSuffix {
		if opts.SplitLongRecords {
			return StoredSizes{}, newError(InvalidArgument, "omitUnsplitSuffix requires splitLongRecords=false", map[string]any{
				"prefix": recordPrefix,
			})
		}
		if version != nil {
			return StoredSizes{}, newError(InvalidArgument, "legacy format cannot carry a version", map[string]any{
				"prefix": recordPrefix,
			})
		}
	}

	oversize := len(payload) > ChunkSize
	if oversize && !opts.SplitLongRecords {
		return StoredSizes{}, newError(RecordTooLong, "payload exceeds the chunk threshold with splitting disabled", map[string]any{
			"prefix": recordPrefix, "length": len(payload),
		})
	}

	var sizes StoredSizes
	switch {
	case oversize:
		if err := w.minimalOverwriteClear(ctx, recordPrefix, opts.ClearBasedOnPreviousSizeInfo, opts.PreviousSizes); err != nil {
			return StoredSizes{}, err
		}
		if err := w.writeSplitChunks(ctx, recordPrefix, payload, &sizes); err != nil {
			return StoredSizes{}, err
		}
	default:
		doClear := !opts.ClearBasedOnPreviousSizeInfo || opts.SplitLongRecords || opts.PreviousSizes == nil || opts.PreviousSizes.VersionedInline
		if doClear {
			if err := w.minimalOverwriteClear(ctx, recordPrefix, opts.ClearBasedOnPreviousSizeInfo, opts.PreviousSizes); err != nil {
				return StoredSizes{}, err
			}
		}
		dataKey := recordPrefix
		if !opts.OmitUnsplitSuffix {
			dataKey = packDataKey(recordPrefix, UnsplitSuffix)
		}
		if err := w.kvs.Set(ctx, dataKey, payload); err != nil {
			return StoredSizes{}, wrapKVSError(err, "Writer.Save: set unsplit entry")
		}
		sizes.Set(dataKey, payload)
		sizes.Split = false
	}

	if err := w.writeVersion(ctx, recordPrefix, version, &sizes); err != nil {
		return StoredSizes{}, err
	}

	if w.trace {
		log.Info("recordsplit.Writer.Save", "prefix", recordPrefix, "sizes", sizes.String())
	}
	return sizes, nil
}

func (w *Writer) writeSplitChunks(ctx context.Context, recordPrefix, payload []byte, sizes *StoredSizes) error {
	if w.trace {
		log.Info("recordsplit.Writer.writeSplitChunks", "prefix", recordPrefix, "expectedChunks", limits.CeilDiv(len(payload), ChunkSize))
	}
	for offset, index := 0, StartSplitSuffix; offset < len(payload); offset, index = offset+ChunkSize, index+1 {
		end := offset + ChunkSize
		if end > len(payload) {
			end = len(payload)
		}
		chunk := payload[offset:end]
		chunkKey := packDataKey(recordPrefix, index)
		if err := w.kvs.Set(ctx, chunkKey, chunk); err != nil {
			return wrapKVSError(err, "Writer.Save: set split chunk")
		}
		if offset == 0 {
			sizes.Set(chunkKey, chunk)
			sizes.Split = true
		} else {
			sizes.Add(chunkKey, chunk)
		}
	}
	return nil
}

func (w *Writer) writeVersion(ctx context.Context, recordPrefix []byte, version *VersionStamp, sizes *StoredSizes) error {
	if version == nil {
		sizes.VersionedInline = false
		return nil
	}
	versionKey := packVersionKey(recordPrefix)
	value := packVersion(*version)
	if version.IsComplete() {
		if err := w.kvs.Set(ctx, versionKey, value); err != nil {
			return wrapKVSError(err, "Writer.Save: set version entry")
		}
	} else {
		if err := w.kvs.AddVersionstampedValue(ctx, versionKey, value); err != nil {
			return wrapKVSError(err, "Writer.Save: add versionstamped value")
		}
		w.local.AddLocalVersion(recordPrefix, version.LocalVersion())
	}
	durable := value[:durableVersionValueSize(*version)]
	sizes.Add(versionKey, durable)
	sizes.VersionedInline = true
	return nil
}

// Delete removes a logical record previously written under recordPrefix.
// spec.md §4.2.
func (w *Writer) Delete(ctx context.Context, recordPrefix []byte, opts DeleteOptions) error {
	if !opts.SplitLongRecords && opts.MissingUnsplitRecordSuffix {
		if err := w.kvs.Clear(ctx, recordPrefix); err != nil {
			return wrapKVSError(err, "Writer.Delete: clear legacy entry")
		}
		if w.trace {
			log.Info("recordsplit.Writer.Delete", "prefix", recordPrefix, "legacy", true)
		}
		return nil
	}
	if err := w.minimalOverwriteClear(ctx, recordPrefix, opts.ClearBasedOnPreviousSizeInfo, opts.PreviousSizes); err != nil {
		return err
	}
	if w.trace {
		log.Info("recordsplit.Writer.Delete", "prefix", recordPrefix, "legacy", false)
	}
	return nil
}

// minimalOverwriteClear implements spec.md §4.2 "Minimal overwrite": clear
// just enough of the KVS to remove whatever record previously occupied
// recordPrefix, and always unregister any cached incomplete-version
// mutation targeting it (it is about to be superseded either way).
func (w *Writer) minimalOverwriteClear(ctx context.Context, recordPrefix []byte, clearBasedOnPreviousSizeInfo bool, previousSizes *StoredSizes) error {
	w.local.RemoveVersionMutation(packVersionKey(recordPrefix))
	w.local.RemoveLocalVersion(recordPrefix)

	if !clearBasedOnPreviousSizeInfo {
		return w.clearSubrange(ctx, recordPrefix)
	}
	if previousSizes == nil {
		return nil
	}
	if previousSizes.Split || previousSizes.VersionedInline {
		return w.clearSubrange(ctx, recordPrefix)
	}
	if err := w.kvs.Clear(ctx, packDataKey(recordPrefix, UnsplitSuffix)); err != nil {
		return wrapKVSError(err, "Writer: clear previous unsplit entry")
	}
	return nil
}

func (w *Writer) clearSubrange(ctx context.Context, recordPrefix []byte) error {
	end := prefixRangeEnd(recordPrefix)
	if err := w.kvs.ClearRange(ctx, recordPrefix, end); err != nil {
		return wrapKVSError(err, "Writer: clear previous sub-range")
	}
	return nil
}

// prefixRangeEnd returns the smallest key that is not prefixed by prefix,
// i.e. the conventional exclusive upper bound for "every key starting with
// prefix" (the standard ordered-KVS "increment the last non-0xFF byte"
// idiom). Returns nil — meaning "no finite successor, scan to the end of
// the keyspace" — only for a prefix made entirely of 0xFF bytes (or
// empty), which recordsplit's callers never pass in practice.
func prefixRangeEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] != 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
