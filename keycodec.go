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
	"bytes"

	"github.com/turbokv/recordsplit/tuple"
)

// packDataKey appends the signed-int tuple element for suffix to prefix.
// spec.md §4.1. The returned slice never aliases prefix's backing array.
func packDataKey(prefix []byte, suffix int64) []byte {
	encoded := tuple.PackInt(suffix)
	out := make([]byte, 0, len(prefix)+len(encoded))
	out = append(out, prefix...)
	out = append(out, encoded...)
	return out
}

// packVersionKey is packDataKey(prefix, VersionSuffix).
func packVersionKey(prefix []byte) []byte {
	return packDataKey(prefix, VersionSuffix)
}

// parseSuffix strips prefix from fullKey and decodes the single tuple
// integer that must make up the remainder, failing with
// SubkeyShapeViolation if more or less than one element remains.
func parseSuffix(fullKey, prefix []byte) (int64, error) {
	if !bytes.HasPrefix(fullKey, prefix) {
		return 0, newError(SubkeyShapeViolation, "key does not start with expected prefix", map[string]any{
			"key":    fullKey,
			"prefix": prefix,
		})
	}
	rest := fullKey[len(prefix):]
	suffix, n, err := tuple.UnpackInt(rest)
	if err != nil || n != len(rest) {
		return 0, newError(SubkeyShapeViolation, "suffix did not decode to exactly one tuple integer", map[string]any{
			"key":    fullKey,
			"prefix": prefix,
		})
	}
	return suffix, nil
}

// splitTrailingSuffix splits fullKey into (recordPrefix, suffix) without
// requiring the caller to already know where recordPrefix ends — needed
// by StreamingReader, which discovers record boundaries while scanning an
// entire subspace rather than one known prefix at a time (spec.md §4.5).
//
// It works by exploiting that tuple.PackInt's encoded length is a
// deterministic function of its own leading type-code byte: try every
// candidate trailing length from 1 to 9 bytes, shortest first, and accept
// the first one whose leading byte decodes to an int that consumes
// exactly that many bytes.
//
// This is a best-effort approximation, not a proof: a pathological
// recordPrefix whose own trailing bytes happen to look like a shorter
// valid PackInt encoding could be split at the wrong point. Resolving
// that in general requires decoding recordPrefix's own tuple structure
// forward from byte 0, which needs the general tuple codec spec.md §1
// places out of scope. In exchange, any record prefix built by ordinary
// tuple-packed primary keys (bytes/strings/nested tuples all use type
// codes well outside PackInt's narrow 0x0c-0x1c band) will not collide
// in practice.
func splitTrailingSuffix(fullKey []byte) ([]byte, int64, error) {
	for length := 1; length <= tuple.MaxIntTupleLength && length <= len(fullKey); length++ {
		candidate := fullKey[len(fullKey)-length:]
		v, n, err := tuple.UnpackInt(candidate)
		if err == nil && n == length {
			return fullKey[:len(fullKey)-length], v, nil
		}
	}
	return nil, 0, newError(SubkeyShapeViolation, "key does not end with a valid suffix tuple element", map[string]any{
		"key": fullKey,
	})
}

// packVersion encodes a VersionStamp as its durable or
// mutation-submission tuple value. For a complete stamp this is the
// durable on-disk form; for an incomplete stamp it is the
// mutation-submission form carrying the non-durable trailing offset
// (spec.md §4.1).
func packVersion(v VersionStamp) []byte {
	if v.IsComplete() {
		return tuple.PackVersionstamp(v.Stamp())
	}
	return tuple.PackIncompleteVersionstamp(v.UserBytes())
}

// unpackVersion decodes a durable version entry value. The stamp read
// back is always complete: by the time a reader observes it, the KVS has
// resolved it at commit. spec.md §4.1.
func unpackVersion(value []byte) (VersionStamp, error) {
	stamp, err := tuple.UnpackVersionstamp(value)
	if err != nil {
		return VersionStamp{}, newError(SubkeyShapeViolation, "version entry value did not decode", map[string]any{
			"error": err.Error(),
		})
	}
	return CompleteVersionStamp(stamp), nil
}

// durableVersionValueSize returns the number of bytes of v's packed value
// that will actually land durably in the KVS — i.e. excluding the 4-byte
// trailing offset an incomplete versionstamp's mutation-submission form
// carries. spec.md §9's resolution of the "durable vs submitted" open
// question: StoredSizes reports durable bytes.
func durableVersionValueSize(v VersionStamp) uint64 {
	// Complete and incomplete stamps both land as 1 (type code) +
	// VersionstampLength durable bytes; only the incomplete mutation's
	// submission form carries the extra 4-byte offset, and that offset
	// never reaches disk.
	return uint64(1 + VersionstampLength)
}
