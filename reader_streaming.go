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
	"context"

	"github.com/erigontech/erigon-lib/log/v3"
)

// StreamingReaderOptions configures a StreamingReader. spec.md §4.5.
type StreamingReaderOptions struct {
	OldVersionFormat bool
	Reverse          bool
}

// StreamingReader reassembles a lazy sequence of LogicalRecords from an
// inner cursor yielding Entry values in scan order, grouping adjacent
// entries sharing a prefix and stopping only at record boundaries once
// its budget is exceeded. spec.md §4.5.
type StreamingReader struct {
	inner  RangeCursor
	local  TransactionLocal
	budget ScanBudget

	oldVersionFormat bool
	reverse          bool
	trace            bool

	done       bool
	doneReason NoNextReason

	pending           *Entry
	pendingContinuation []byte

	continuation      []byte
	continuationValid bool
}

// NewStreamingReader builds a StreamingReader over inner, reading
// transaction-local version state from local and consulting budget
// between records. All three are borrowed for the reader's lifetime.
func NewStreamingReader(inner RangeCursor, local TransactionLocal, budget ScanBudget, opts StreamingReaderOptions) *StreamingReader {
	return &StreamingReader{
		inner:            inner,
		local:            local,
		budget:           budget,
		oldVersionFormat: opts.OldVersionFormat,
		reverse:          opts.Reverse,
	}
}

// SetTrace toggles verbose per-record structured logging.
func (s *StreamingReader) SetTrace(trace bool) { s.trace = trace }

// Close releases the inner cursor.
func (s *StreamingReader) Close() { s.inner.Close() }

// NoNextReason reports why Next most recently returned (nil, nil).
func (s *StreamingReader) NoNextReason() NoNextReason { return s.doneReason }

// Continuation returns a token sufficient to resume immediately after the
// record most recently returned by Next. Valid only immediately after a
// call to Next — any other access is a programming error. spec.md §5
// "Continuation discipline".
func (s *StreamingReader) Continuation() ([]byte, error) {
	if !s.continuationValid {
		return nil, newError(IllegalContinuationAccess, "continuation requested outside the permitted window", nil)
	}
	return s.continuation, nil
}

// Next returns the next reassembled record, or (nil, nil) once the scan
// has no more to give (see NoNextReason for why).
func (s *StreamingReader) Next(ctx context.Context) (*LogicalRecord, error) {
	s.continuationValid = false
	rec, err := s.next(ctx)
	s.continuationValid = err == nil
	return rec, err
}

func (s *StreamingReader) next(ctx context.Context) (*LogicalRecord, error) {
	if s.done {
		return nil, nil
	}
	// Budget is consulted only between records (spec.md §4.5 "Budget
	// semantics") — never while a record is mid-accumulation below.
	if s.budget.IsStopped() {
		s.done = true
		s.doneReason = NoNextReasonBudgetExceeded
		return nil, nil
	}

	acc := newAccumulator(s.reverse, s.oldVersionFormat)
	var recordPrefix []byte

	if s.pending != nil {
		entry := *s.pending
		s.pending = nil
		s.continuation = s.pendingContinuation

		prefix, suffix, err := splitTrailingSuffix(entry.Key)
		if err != nil {
			return nil, err
		}
		recordPrefix = prefix
		complete, err := acc.observe(entry.Key, suffix, entry.Value)
		if err != nil {
			return nil, err
		}
		if complete {
			return s.finishComplete(acc, recordPrefix)
		}
	}

	for {
		has, err := s.inner.HasNext(ctx)
		if err != nil {
			return nil, err
		}
		if !has {
			s.done = true
			s.doneReason = innerDoneReason(s.inner.NoNextReason(), s.budget)
			if recordPrefix == nil {
				cont, cerr := s.inner.Continuation()
				if cerr != nil {
					return nil, cerr
				}
				s.continuation = cont
				return nil, nil
			}
			return s.finishAtBoundary(acc, recordPrefix)
		}

		entry, err := s.inner.Next(ctx)
		if err != nil {
			return nil, err
		}
		s.budget.TryRecord()

		if recordPrefix == nil {
			prefix, suffix, err := splitTrailingSuffix(entry.Key)
			if err != nil {
				return nil, err
			}
			recordPrefix = prefix
			complete, err := acc.observe(entry.Key, suffix, entry.Value)
			if err != nil {
				return nil, err
			}
			if cont, cerr := s.inner.Continuation(); cerr == nil {
				s.continuation = cont
			}
			if complete {
				return s.finishComplete(acc, recordPrefix)
			}
			continue
		}

		if !bytes.HasPrefix(entry.Key, recordPrefix) {
			s.pending = &entry
			if cont, cerr := s.inner.Continuation(); cerr == nil {
				s.pendingContinuation = cont
			}
			return s.finishAtBoundary(acc, recordPrefix)
		}

		suffix, err := parseSuffix(entry.Key, recordPrefix)
		if err != nil {
			return nil, err
		}
		complete, err := acc.observe(entry.Key, suffix, entry.Value)
		if err != nil {
			return nil, err
		}
		if cont, cerr := s.inner.Continuation(); cerr == nil {
			s.continuation = cont
		}
		if complete {
			return s.finishComplete(acc, recordPrefix)
		}
	}
}

// finishComplete emits a record whose accumulator self-terminated (forward
// UNSPLIT, or reverse VERSION) — no boundary validation needed.
func (s *StreamingReader) finishComplete(acc *accumulator, recordPrefix []byte) (*LogicalRecord, error) {
	return s.emit(acc, recordPrefix)
}

// finishAtBoundary emits a record that ended because the scan moved past
// its prefix or the inner cursor was exhausted, applying the reverse
// split-chain validation spec.md §4.5 requires in that case.
func (s *StreamingReader) finishAtBoundary(acc *accumulator, recordPrefix []byte) (*LogicalRecord, error) {
	if err := acc.validateBoundary(); err != nil {
		return nil, err
	}
	return s.emit(acc, recordPrefix)
}

func (s *StreamingReader) emit(acc *accumulator, recordPrefix []byte) (*LogicalRecord, error) {
	injectLocalVersion(s.local, acc, recordPrefix)
	rec, err := acc.finalize(recordPrefix)
	if err != nil {
		return nil, err
	}
	if s.trace {
		log.Info("recordsplit.StreamingReader.Next", "prefix", recordPrefix, "reverse", s.reverse, "sizes", rec.Sizes.String())
	}
	return &rec, nil
}

// innerDoneReason implements spec.md §4.5's no-next-reason priority: inner
// exhaustion always wins (there is nothing left regardless of budget);
// otherwise the budget's stop, if any; otherwise whatever the inner
// cursor itself reports.
func innerDoneReason(inner NoNextReason, budget ScanBudget) NoNextReason {
	if inner == NoNextReasonExhausted {
		return NoNextReasonExhausted
	}
	if budget.IsStopped() {
		return NoNextReasonBudgetExceeded
	}
	return inner
}
