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

package tuple

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestPackIntRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := rapid.Int64().Draw(t, "v")
		encoded := PackInt(v)
		decoded, n, err := UnpackInt(encoded)
		require.NoError(t, err)
		require.Equal(t, len(encoded), n)
		require.Equal(t, v, decoded)
	})
}

func TestPackIntPreservesOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.Int64().Draw(t, "a")
		b := rapid.Int64().Draw(t, "b")
		cmpInts := 0
		if a < b {
			cmpInts = -1
		} else if a > b {
			cmpInts = 1
		}
		cmpBytes := bytes.Compare(PackInt(a), PackInt(b))
		if cmpBytes < 0 {
			cmpBytes = -1
		} else if cmpBytes > 0 {
			cmpBytes = 1
		}
		require.Equal(t, cmpInts, cmpBytes, "PackInt(%d) vs PackInt(%d)", a, b)
	})
}

func TestSuffixOrdering(t *testing.T) {
	// The invariant the whole codec depends on: VERSION(-1) < UNSPLIT(0) < START_SPLIT(1) < 2 < ...
	version := PackInt(-1)
	unsplit := PackInt(0)
	split1 := PackInt(1)
	split2 := PackInt(2)
	require.True(t, bytes.Compare(version, unsplit) < 0)
	require.True(t, bytes.Compare(unsplit, split1) < 0)
	require.True(t, bytes.Compare(split1, split2) < 0)
}

func TestVersionstampRoundTrip(t *testing.T) {
	var stamp [VersionstampLength]byte
	for i := range stamp {
		stamp[i] = byte(i + 1)
	}
	packed := PackVersionstamp(stamp)
	got, err := UnpackVersionstamp(packed)
	require.NoError(t, err)
	require.Equal(t, stamp, got)
}

func TestIncompleteVersionstampLayout(t *testing.T) {
	userBytes := [2]byte{0xAA, 0xBB}
	packed := PackIncompleteVersionstamp(userBytes)
	// type code + 12 placeholder/user bytes + 4 byte trailing offset
	require.Len(t, packed, 1+VersionstampLength+4)
	require.Equal(t, versionstampCode, packed[0])
	require.Equal(t, userBytes[:], packed[1+timestampPlaceholderLength:1+VersionstampLength])
	offset := packed[1+VersionstampLength:]
	require.Equal(t, byte(1), offset[0])
	require.Equal(t, byte(0), offset[1])
	require.Equal(t, byte(0), offset[2])
	require.Equal(t, byte(0), offset[3])
}

func TestUnpackVersionstampRejectsWrongLength(t *testing.T) {
	_, err := UnpackVersionstamp([]byte{versionstampCode, 1, 2, 3})
	require.Error(t, err)
}

func TestUnpackIntRejectsEmpty(t *testing.T) {
	_, _, err := UnpackInt(nil)
	require.Error(t, err)
}
