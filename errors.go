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

	pkgerrors "github.com/pkg/errors"
)

// Kind identifies the meaning of an *Error, independent of its message.
// spec.md §7.
type Kind int

const (
	// InvalidArgument marks a caller bug: e.g. a version supplied to a
	// legacy-format save.
	InvalidArgument Kind = iota
	// RecordTooLong marks a payload over ChunkSize with splitting disabled.
	RecordTooLong
	// SplitSegmentsOutOfOrder marks non-contiguous or non-monotonic split
	// indices observed during reassembly.
	SplitSegmentsOutOfOrder
	// FoundSplitWithoutStart marks a split chunk (or a bare VERSION)
	// observed without a reachable START_SPLIT in the scan direction.
	FoundSplitWithoutStart
	// MoreThanOneUnsplitValue marks a duplicate UNSPLIT entry for one prefix.
	MoreThanOneUnsplitValue
	// UnsplitFollowedBySplit marks an UNSPLIT entry followed by split
	// entries for the same prefix.
	UnsplitFollowedBySplit
	// SubkeyShapeViolation marks a key suffix that didn't decode to
	// exactly one tuple integer.
	SubkeyShapeViolation
	// OldVersionFormatViolation marks a VERSION entry observed under a
	// reader configured for the legacy (no-version) format.
	OldVersionFormatViolation
	// IllegalContinuationAccess marks a continuation requested outside
	// the permitted window.
	IllegalContinuationAccess
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "InvalidArgument"
	case RecordTooLong:
		return "RecordTooLong"
	case SplitSegmentsOutOfOrder:
		return "SplitSegmentsOutOfOrder"
	case FoundSplitWithoutStart:
		return "FoundSplitWithoutStart"
	case MoreThanOneUnsplitValue:
		return "MoreThanOneUnsplitValue"
	case UnsplitFollowedBySplit:
		return "UnsplitFollowedBySplit"
	case SubkeyShapeViolation:
		return "SubkeyShapeViolation"
	case OldVersionFormatViolation:
		return "OldVersionFormatViolation"
	case IllegalContinuationAccess:
		return "IllegalContinuationAccess"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is recordsplit's tagged error variant: a Kind plus a message plus
// structured fields (primary key, prefix, offending key/index, scan
// direction, version) a caller or a log sink can inspect without parsing a
// string. spec.md §7/§9.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("recordsplit: %s: %s", e.Kind, e.Message)
}

// newError builds an *Error, copying fields so later mutation of the
// caller's map doesn't retroactively change a returned error.
func newError(kind Kind, message string, fields map[string]any) *Error {
	cp := make(map[string]any, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return &Error{Kind: kind, Message: message, Fields: cp}
}

// wrapKVSError wraps a failure returned by the injected KVS collaborator
// with a stack trace. These are not recordsplit.Error values: they are I/O
// failures from a dependency, not reassembly/validation faults localized
// by structured fields, so github.com/pkg/errors carries the ambient
// "where did this actually originate" context instead. spec.md §9.
func wrapKVSError(err error, op string) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrapf(err, "recordsplit: %s", op)
}
