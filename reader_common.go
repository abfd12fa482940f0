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

import "fmt"

// accumulator is the reassembly state machine shared by SingleKeyReader and
// StreamingReader (spec.md §4.3). One instance accumulates exactly one
// logical record's worth of Entry values, fed one at a time via observe, in
// scan order (ascending for forward, descending for reverse).
//
// The forward and reverse tables in spec.md §4.3 are implemented
// authoritatively here as a single direction-parameterized function rather
// than two hand-written guard chains — see DESIGN.md's Open Question #2 on
// why the source's two chains drifted out of sync with each other.
type accumulator struct {
	reverse          bool
	oldVersionFormat bool

	haveResult bool
	result     []byte

	haveVersion bool
	version     VersionStamp

	haveLastIndex bool
	lastIndex     int64

	split           bool
	sizesStarted    bool
	sizes           StoredSizes
}

func newAccumulator(reverse, oldVersionFormat bool) *accumulator {
	return &accumulator{reverse: reverse, oldVersionFormat: oldVersionFormat}
}

func (a *accumulator) reset() {
	*a = accumulator{reverse: a.reverse, oldVersionFormat: a.oldVersionFormat}
}

// observe processes one Entry (already split into key/suffix/value) for
// the record currently being accumulated. It returns complete=true exactly
// when the table in spec.md §4.3 says this suffix terminates the record on
// its own (forward: UNSPLIT; reverse: VERSION). Any other end-of-record
// condition (prefix boundary, inner cursor exhaustion) is the caller's
// responsibility to detect and then call finalize/validateBoundary.
func (a *accumulator) observe(key []byte, suffix int64, value []byte) (complete bool, err error) {
	if a.sizesStarted {
		a.sizes.Add(key, value)
	} else {
		a.sizes.Set(key, value)
		a.sizesStarted = true
	}

	switch {
	case suffix == VersionSuffix:
		return a.observeVersion(key, value)
	case suffix == UnsplitSuffix:
		return a.observeUnsplit(value)
	case suffix >= StartSplitSuffix:
		return a.observeSplitChunk(suffix, value)
	default:
		return false, newError(SubkeyShapeViolation, fmt.Sprintf("suffix %d is outside the valid range", suffix), map[string]any{
			"key": key, "suffix": suffix,
		})
	}
}

func (a *accumulator) observeVersion(key, value []byte) (bool, error) {
	if a.oldVersionFormat {
		return false, newError(OldVersionFormatViolation, "version entry observed under legacy (no-version) format", map[string]any{
			"key": key,
		})
	}
	if a.haveVersion {
		return false, newError(FoundSplitWithoutStart, "duplicate version entry for one prefix", map[string]any{
			"key": key, "index": VersionSuffix, "reverse": a.reverse,
		})
	}
	if !a.reverse && (a.haveResult || a.haveLastIndex) {
		return false, newError(SplitSegmentsOutOfOrder, "version entry observed after data in forward scan", map[string]any{
			"key": key, "reverse": a.reverse,
		})
	}
	if a.reverse && !a.haveResult {
		// VERSION sorts before all data; in reverse scan order it is the
		// last entry for a prefix, so seeing it with nothing accumulated
		// means this prefix carried a version and no data at all.
		return false, newError(FoundSplitWithoutStart, "version observed with no data in record", map[string]any{
			"key": key, "index": VersionSuffix, "reverse": a.reverse,
		})
	}
	if a.reverse && a.haveLastIndex && a.lastIndex != StartSplitSuffix {
		// VERSION ends the record in reverse, so the split chain must
		// already have descended to StartSplitSuffix.
		return false, newError(FoundSplitWithoutStart, fmt.Sprintf("version observed after split chain ended at index %d without reaching the start", a.lastIndex), map[string]any{
			"key": key, "index": a.lastIndex, "reverse": a.reverse,
		})
	}
	v, err := unpackVersion(value)
	if err != nil {
		return false, err
	}
	a.haveVersion = true
	a.version = v
	a.sizes.VersionedInline = true
	if a.reverse {
		return true, nil // reverse: VERSION is always the terminal entry.
	}
	return false, nil // forward: VERSION observed first, data must still follow.
}

func (a *accumulator) observeUnsplit(value []byte) (bool, error) {
	if a.haveLastIndex {
		return false, newError(UnsplitFollowedBySplit, "unsplit entry observed while split entries were already accumulating", map[string]any{
			"reverse": a.reverse,
		})
	}
	if a.haveResult {
		return false, newError(MoreThanOneUnsplitValue, "more than one unsplit entry for one prefix", map[string]any{
			"reverse": a.reverse,
		})
	}
	a.result = append([]byte(nil), value...)
	a.haveResult = true
	a.split = false
	a.sizes.Split = false
	if a.reverse {
		// A VERSION entry may still follow (reverse: it sorts last).
		return false, nil
	}
	return true, nil
}

func (a *accumulator) observeSplitChunk(suffix int64, value []byte) (bool, error) {
	if a.haveResult && !a.haveLastIndex {
		return false, newError(UnsplitFollowedBySplit, "split entry observed after an unsplit entry for the same prefix", map[string]any{
			"reverse": a.reverse,
		})
	}
	if !a.haveLastIndex {
		if !a.reverse && suffix != StartSplitSuffix {
			return false, newError(FoundSplitWithoutStart, "split chunk observed without a preceding start", map[string]any{
				"index": suffix, "reverse": a.reverse,
			})
		}
		a.result = append([]byte(nil), value...)
		a.haveResult = true
		a.split = true
		a.sizes.Split = true
		a.lastIndex = suffix
		a.haveLastIndex = true
		return false, nil
	}

	var expected int64
	if a.reverse {
		expected = a.lastIndex - 1
	} else {
		expected = a.lastIndex + 1
	}
	if suffix != expected {
		return false, newError(SplitSegmentsOutOfOrder, fmt.Sprintf("expected %d, found %d", expected, suffix), map[string]any{
			"expected": expected, "found": suffix, "reverse": a.reverse,
		})
	}
	if a.reverse {
		a.result = append(append([]byte(nil), value...), a.result...)
	} else {
		a.result = append(a.result, value...)
	}
	a.lastIndex = suffix
	return false, nil
}

// validateBoundary checks the invariant that only applies when a record's
// entries end because the scan moved past its prefix (or the scan ended)
// rather than because observe reported complete: in reverse, a split chain
// that stopped before reaching StartSplitSuffix is malformed. spec.md
// §4.5 "reverse validation".
func (a *accumulator) validateBoundary() error {
	if a.reverse && a.haveLastIndex && a.lastIndex != StartSplitSuffix {
		return newError(FoundSplitWithoutStart, fmt.Sprintf("split chain ended at index %d without reaching the start", a.lastIndex), map[string]any{
			"index": a.lastIndex, "reverse": true,
		})
	}
	return nil
}

// finalize produces the LogicalRecord for primaryKey from whatever has
// been accumulated, enforcing "a bare version with no data is not a valid
// record" (spec.md §4.3).
func (a *accumulator) finalize(primaryKey []byte) (LogicalRecord, error) {
	if a.haveVersion && !a.haveResult {
		return LogicalRecord{}, newError(FoundSplitWithoutStart, "version present with no data", map[string]any{
			"index": VersionSuffix, "reverse": a.reverse,
		})
	}
	rec := LogicalRecord{
		PrimaryKey: primaryKey,
		Payload:    a.result,
		Sizes:      a.sizes,
	}
	if a.haveVersion {
		v := a.version
		rec.Version = &v
	}
	return rec, nil
}

// hasAnyData reports whether any entry has been observed yet.
func (a *accumulator) hasAnyData() bool {
	return a.haveResult || a.haveVersion
}

// injectLocalVersion implements spec.md §4.3 "Injecting transaction-local
// incomplete versions": if no durable version entry was read and the
// reader isn't pinned to the legacy no-version format, consult local for
// a pending incomplete version registered against recordPrefix and, if
// found, fold it into the accumulator as if it had been read.
//
// The synthesized VersionStamp carries zero user bytes: TransactionLocal
// only remembers the local ordinal a Writer registered, not the 2
// caller-supplied bytes — those are only ever known to whoever built the
// original VersionStamp passed to Writer.Save.
func injectLocalVersion(local TransactionLocal, acc *accumulator, recordPrefix []byte) {
	if acc.oldVersionFormat || acc.haveVersion {
		return
	}
	lv, ok := local.LocalVersion(recordPrefix)
	if !ok {
		return
	}
	acc.haveVersion = true
	acc.version = IncompleteVersionStamp(lv, [2]byte{})
	versionKey := packVersionKey(recordPrefix)
	acc.sizes.Add(versionKey, make([]byte, 1+VersionstampLength))
	acc.sizes.VersionedInline = true
}
