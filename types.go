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
	"fmt"

	"github.com/c2h5oh/datasize"
	"github.com/turbokv/recordsplit/internal/limits"
	"github.com/turbokv/recordsplit/tuple"
)

// Suffix sentinels, spec.md §4.1/§6.
const (
	VersionSuffix    int64 = -1
	UnsplitSuffix    int64 = 0
	StartSplitSuffix int64 = 1
)

// ChunkSize is the fixed threshold above which a payload is split across
// multiple entries. spec.md §3 invariant 1.
const ChunkSize = 100_000

// VersionstampLength is the wire length of a resolved versionstamp.
const VersionstampLength = tuple.VersionstampLength

// VersionStamp is a 12-byte value that is either complete (fully known) or
// incomplete (10 bytes filled in by the KVS at commit time, plus a 16-bit
// local ordinal identifying it within the writing transaction).
type VersionStamp struct {
	// Complete versionstamps carry Stamp fully populated.
	complete bool
	stamp    [VersionstampLength]byte

	// Incomplete versionstamps instead carry the ordinal the writer
	// registered in transaction-local state and the caller-supplied user
	// bytes that will occupy the last 2 bytes of Stamp once resolved.
	localVersion uint16
	userBytes    [2]byte
}

// CompleteVersionStamp builds a fully-known VersionStamp, e.g. one just
// read back durably from the KVS.
func CompleteVersionStamp(stamp [VersionstampLength]byte) VersionStamp {
	return VersionStamp{complete: true, stamp: stamp}
}

// IncompleteVersionStamp builds a VersionStamp not yet resolved by the
// KVS, identified within its transaction by localVersion, with the given
// caller-supplied low 2 bytes.
func IncompleteVersionStamp(localVersion uint16, userBytes [2]byte) VersionStamp {
	return VersionStamp{localVersion: localVersion, userBytes: userBytes}
}

// IsComplete reports whether the stamp's 12 bytes are fully known.
func (v VersionStamp) IsComplete() bool { return v.complete }

// Stamp returns the resolved 12 bytes. It panics if the stamp is
// incomplete — callers must check IsComplete first.
func (v VersionStamp) Stamp() [VersionstampLength]byte {
	if !v.complete {
		panic("recordsplit: Stamp() called on an incomplete VersionStamp")
	}
	return v.stamp
}

// LocalVersion returns the transaction-local ordinal of an incomplete
// stamp. It panics if the stamp is complete.
func (v VersionStamp) LocalVersion() uint16 {
	if v.complete {
		panic("recordsplit: LocalVersion() called on a complete VersionStamp")
	}
	return v.localVersion
}

// UserBytes returns the caller-supplied low 2 bytes of an incomplete
// stamp. It panics if the stamp is complete.
func (v VersionStamp) UserBytes() [2]byte {
	if v.complete {
		panic("recordsplit: UserBytes() called on a complete VersionStamp")
	}
	return v.userBytes
}

func (v VersionStamp) String() string {
	if v.complete {
		return fmt.Sprintf("complete(%x)", v.stamp)
	}
	return fmt.Sprintf("incomplete(local=%d)", v.localVersion)
}

// StoredSizes are purely observational counters describing what a Writer
// wrote or a Reader read. spec.md §3.
type StoredSizes struct {
	KeyCount        uint32
	KeySize         uint64
	ValueSize       uint64
	Split           bool
	VersionedInline bool
}

// Reset zeroes the counters in place, keeping the same backing struct the
// caller may have supplied as an out-parameter (spec.md §3 Ownership
// semantics).
func (s *StoredSizes) Reset() { *s = StoredSizes{} }

// Set overwrites the key/value counters to reflect a single (key, value)
// entry, discarding whatever was accumulated before. Used for the first
// chunk of a new record (spec.md §4.2).
func (s *StoredSizes) Set(key, value []byte) {
	s.KeyCount = 1
	s.KeySize = uint64(len(key))
	s.ValueSize = uint64(len(value))
}

// Add accumulates one more (key, value) entry's size into the counters.
// Used for subsequent chunks of a split record.
func (s *StoredSizes) Add(key, value []byte) {
	s.KeyCount++
	if v, ok := limits.SafeAdd(s.KeySize, uint64(len(key))); ok {
		s.KeySize = limits.MaxInt64 // saturate rather than wrap
	} else {
		s.KeySize = v
	}
	if v, ok := limits.SafeAdd(s.ValueSize, uint64(len(value))); ok {
		s.ValueSize = limits.MaxInt64
	} else {
		s.ValueSize = v
	}
}

// String renders sizes with human-readable byte counts, e.g. for log lines
// and cmd/recordwalk summaries.
func (s StoredSizes) String() string {
	return fmt.Sprintf("keys=%d keySize=%s valueSize=%s split=%t versionedInline=%t",
		s.KeyCount,
		datasize.ByteSize(s.KeySize).HumanReadable(),
		datasize.ByteSize(s.ValueSize).HumanReadable(),
		s.Split, s.VersionedInline)
}

// LogicalRecord is the unit of storage recordsplit round-trips through the
// KVS: an opaque payload, an optional version stamp, and the primary key
// it was stored under. spec.md §3.
type LogicalRecord struct {
	PrimaryKey []byte
	Payload    []byte
	Version    *VersionStamp
	Sizes      StoredSizes
}

// Entry is one physical KVS pair belonging to a logical record:
// prefix(primaryKey) ∥ packInt(suffix) -> value. spec.md §3.
type Entry struct {
	Key   []byte
	Value []byte
}
