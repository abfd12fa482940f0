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

package recordsplit_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/turbokv/recordsplit"
	"github.com/turbokv/recordsplit/memkv"
	"pgregory.net/rapid"
)

func prefixFor(t *testing.T, name string) []byte {
	t.Helper()
	return []byte("records/" + name + "/")
}

// S1: small unversioned payload.
func TestSave_S1_SmallUnsplit(t *testing.T) {
	ctx := context.Background()
	store := memkv.NewStore()
	w := recordsplit.NewWriter(store, store)
	prefix := prefixFor(t, "s1")

	sizes, err := w.Save(ctx, prefix, []byte("hello"), nil, recordsplit.SaveOptions{SplitLongRecords: true})
	require.NoError(t, err)
	require.False(t, sizes.Split)
	require.False(t, sizes.VersionedInline)

	r := recordsplit.NewSingleKeyReader(store, store)
	rec, err := r.Load(ctx, prefix, recordsplit.SingleKeyReaderOptions{SplitLongRecords: true})
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, []byte("hello"), rec.Payload)
	require.Nil(t, rec.Version)
	require.False(t, rec.Sizes.Split)
}

// S2: oversize payload chunked at 100_000 bytes.
func TestSave_S2_Oversize(t *testing.T) {
	ctx := context.Background()
	store := memkv.NewStore()
	w := recordsplit.NewWriter(store, store)
	prefix := prefixFor(t, "s2")

	payload := bytes.Repeat([]byte{'A'}, 250_000)
	sizes, err := w.Save(ctx, prefix, payload, nil, recordsplit.SaveOptions{SplitLongRecords: true})
	require.NoError(t, err)
	require.True(t, sizes.Split)
	require.EqualValues(t, 3, sizes.KeyCount)

	r := recordsplit.NewSingleKeyReader(store, store)
	rec, err := r.Load(ctx, prefix, recordsplit.SingleKeyReaderOptions{SplitLongRecords: true})
	require.NoError(t, err)
	require.Len(t, rec.Payload, 250_000)
	require.True(t, rec.Sizes.Split)
}

// S3: incomplete version visible pre-commit via transaction-local state.
func TestSave_S3_IncompleteVersionPreCommit(t *testing.T) {
	ctx := context.Background()
	store := memkv.NewStore()
	w := recordsplit.NewWriter(store, store)
	prefix := prefixFor(t, "s3")

	v := recordsplit.IncompleteVersionStamp(7, [2]byte{0, 0})
	_, err := w.Save(ctx, prefix, []byte("x"), &v, recordsplit.SaveOptions{SplitLongRecords: true})
	require.NoError(t, err)

	r := recordsplit.NewSingleKeyReader(store, store)
	rec, err := r.Load(ctx, prefix, recordsplit.SingleKeyReaderOptions{SplitLongRecords: true})
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, []byte("x"), rec.Payload)
	require.NotNil(t, rec.Version)
	require.False(t, rec.Version.IsComplete())
	require.EqualValues(t, 7, rec.Version.LocalVersion())
}

// S4: legacy format with no suffix; rejects a version.
func TestSave_S4_Legacy(t *testing.T) {
	ctx := context.Background()
	store := memkv.NewStore()
	w := recordsplit.NewWriter(store, store)
	prefix := prefixFor(t, "s4")

	_, err := w.Save(ctx, prefix, []byte("legacy"), nil, recordsplit.SaveOptions{
		SplitLongRecords: false, OmitUnsplitSuffix: true,
	})
	require.NoError(t, err)

	value, err := store.Get(ctx, prefix)
	require.NoError(t, err)
	require.Equal(t, []byte("legacy"), value)

	r := recordsplit.NewSingleKeyReader(store, store)
	rec, err := r.Load(ctx, prefix, recordsplit.SingleKeyReaderOptions{
		SplitLongRecords: false, MissingUnsplitRecordSuffix: true,
	})
	require.NoError(t, err)
	require.Equal(t, []byte("legacy"), rec.Payload)

	v := recordsplit.CompleteVersionStamp([12]byte{})
	_, err = w.Save(ctx, prefix, []byte("legacy"), &v, recordsplit.SaveOptions{
		SplitLongRecords: false, OmitUnsplitSuffix: true,
	})
	require.Error(t, err)
	var rsErr *recordsplit.Error
	require.ErrorAs(t, err, &rsErr)
	require.Equal(t, recordsplit.InvalidArgument, rsErr.Kind)
}

func TestSave_RecordTooLongWithoutSplitting(t *testing.T) {
	ctx := context.Background()
	store := memkv.NewStore()
	w := recordsplit.NewWriter(store, store)
	prefix := prefixFor(t, "toolong")

	_, err := w.Save(ctx, prefix, bytes.Repeat([]byte{'z'}, recordsplit.ChunkSize+1), nil, recordsplit.SaveOptions{SplitLongRecords: false})
	require.Error(t, err)
	var rsErr *recordsplit.Error
	require.ErrorAs(t, err, &rsErr)
	require.Equal(t, recordsplit.RecordTooLong, rsErr.Kind)
}

// Property 2: save(save(x)) is observationally identical when previousSizes
// is threaded through correctly.
func TestSave_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := memkv.NewStore()
	w := recordsplit.NewWriter(store, store)
	prefix := prefixFor(t, "idempotent")
	payload := []byte(strings.Repeat("z", 42))

	sizes1, err := w.Save(ctx, prefix, payload, nil, recordsplit.SaveOptions{SplitLongRecords: true})
	require.NoError(t, err)

	sizes2, err := w.Save(ctx, prefix, payload, nil, recordsplit.SaveOptions{
		SplitLongRecords: true, ClearBasedOnPreviousSizeInfo: true, PreviousSizes: &sizes1,
	})
	require.NoError(t, err)
	if diff := cmp.Diff(sizes1, sizes2); diff != "" {
		t.Fatalf("StoredSizes mismatch across the idempotent save (-first +second):\n%s", diff)
	}
}

// Property 3: minimal overwrite leaves zero residual entries from the
// prior record, across randomly generated (L1, L2) length pairs spanning
// unsplit, single-chunk, and multi-chunk sizes.
func TestSave_MinimalOverwriteLeavesNoResidue(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		lengthGen := rapid.IntRange(0, 3*recordsplit.ChunkSize)
		l1 := lengthGen.Draw(t, "l1")
		l2 := lengthGen.Draw(t, "l2")

		store := memkv.NewStore()
		w := recordsplit.NewWriter(store, store)
		prefix := []byte("records/overwrite/")

		sizes1, err := w.Save(ctx, prefix, bytes.Repeat([]byte{'a'}, l1), nil, recordsplit.SaveOptions{SplitLongRecords: true})
		require.NoError(t, err)

		_, err = w.Save(ctx, prefix, bytes.Repeat([]byte{'b'}, l2), nil, recordsplit.SaveOptions{
			SplitLongRecords: true, ClearBasedOnPreviousSizeInfo: true, PreviousSizes: &sizes1,
		})
		require.NoError(t, err)

		r := recordsplit.NewSingleKeyReader(store, store)
		rec, err := r.Load(ctx, prefix, recordsplit.SingleKeyReaderOptions{SplitLongRecords: true})
		require.NoError(t, err)
		require.Len(t, rec.Payload, l2, "L1=%d L2=%d", l1, l2)
		for _, b := range rec.Payload {
			require.Equal(t, byte('b'), b)
		}
	})
}

// An overwrite that drops a record's version must also drop the
// transaction-local bookkeeping for the version it replaced, or a later
// read sees a phantom incomplete version belonging to no entry in the
// store (spec.md §3 invariant 5, round-trip property 1).
func TestSave_OverwriteClearsStaleLocalVersion(t *testing.T) {
	ctx := context.Background()
	store := memkv.NewStore()
	w := recordsplit.NewWriter(store, store)
	prefix := prefixFor(t, "stale-local-version")

	v := recordsplit.IncompleteVersionStamp(9, [2]byte{0, 0})
	_, err := w.Save(ctx, prefix, []byte("first"), &v, recordsplit.SaveOptions{SplitLongRecords: true})
	require.NoError(t, err)

	_, err = w.Save(ctx, prefix, []byte("second"), nil, recordsplit.SaveOptions{SplitLongRecords: true})
	require.NoError(t, err)

	r := recordsplit.NewSingleKeyReader(store, store)
	rec, err := r.Load(ctx, prefix, recordsplit.SingleKeyReaderOptions{SplitLongRecords: true})
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, []byte("second"), rec.Payload)
	require.Nil(t, rec.Version, "overwrite must not leave a phantom local version behind")
}

func TestDelete_Legacy(t *testing.T) {
	ctx := context.Background()
	store := memkv.NewStore()
	w := recordsplit.NewWriter(store, store)
	prefix := prefixFor(t, "delete-legacy")

	_, err := w.Save(ctx, prefix, []byte("x"), nil, recordsplit.SaveOptions{SplitLongRecords: false, OmitUnsplitSuffix: true})
	require.NoError(t, err)
	require.NoError(t, w.Delete(ctx, prefix, recordsplit.DeleteOptions{SplitLongRecords: false, MissingUnsplitRecordSuffix: true}))

	value, err := store.Get(ctx, prefix)
	require.NoError(t, err)
	require.Nil(t, value)
}

func TestDelete_Split(t *testing.T) {
	ctx := context.Background()
	store := memkv.NewStore()
	w := recordsplit.NewWriter(store, store)
	prefix := prefixFor(t, "delete-split")

	sizes, err := w.Save(ctx, prefix, bytes.Repeat([]byte{'c'}, 3*recordsplit.ChunkSize), nil, recordsplit.SaveOptions{SplitLongRecords: true})
	require.NoError(t, err)
	require.NoError(t, w.Delete(ctx, prefix, recordsplit.DeleteOptions{
		SplitLongRecords: true, ClearBasedOnPreviousSizeInfo: true, PreviousSizes: &sizes,
	}))

	r := recordsplit.NewSingleKeyReader(store, store)
	rec, err := r.Load(ctx, prefix, recordsplit.SingleKeyReaderOptions{SplitLongRecords: true})
	require.NoError(t, err)
	require.Nil(t, rec)
}
