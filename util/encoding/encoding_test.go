// Copyright 2024 The RangeKV Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package encoding

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeBytesAscending(t *testing.T) {
	testCases := [][]byte{
		{},
		{0x00},
		{0x00, 0x00},
		{0x00, 0x01},
		{0x00, 0xff},
		{0x01},
		{0x01, 0x00},
		[]byte("hello"),
		[]byte("hello\x00world"),
		{0xff},
		{0xff, 0x00},
		{0xff, 0xff},
	}
	var lastEnc []byte
	for i, tc := range testCases {
		enc := EncodeBytesAscending(nil, tc)
		if i > 0 {
			require.Negative(t, bytes.Compare(lastEnc, enc),
				"expected %q < %q", lastEnc, enc)
		}
		rem, dec, err := DecodeBytesAscending(enc, nil)
		require.NoError(t, err)
		require.Empty(t, rem)
		require.Equal(t, tc, append([]byte{}, dec...))
		lastEnc = enc
	}
}

func TestDecodeBytesAscendingMalformed(t *testing.T) {
	for _, b := range [][]byte{
		nil,
		{0x01, 0x02},       // no terminator
		{0x00},             // dangling escape
		{0x01, 0x00},       // dangling escape after data
		{0x00, 0x02},       // unknown escape sequence
		{0x01, 0x00, 0x7f}, // unknown escape sequence after data
	} {
		_, _, err := DecodeBytesAscending(b, nil)
		require.Error(t, err, "input %q", b)
	}
}

func TestEncodedBytesAreNotPrefixes(t *testing.T) {
	// No encoded value may be a prefix of another encoded value; this is
	// what keeps concatenated key fields from producing false overlaps.
	vals := [][]byte{{}, {0x00}, []byte("a"), []byte("ab"), []byte("a\x00"), []byte("a\x00b")}
	for _, a := range vals {
		for _, b := range vals {
			if bytes.Equal(a, b) {
				continue
			}
			encA := EncodeBytesAscending(nil, a)
			encB := EncodeBytesAscending(nil, b)
			require.False(t, bytes.HasPrefix(encB, encA),
				"encoding of %q is a prefix of encoding of %q", a, b)
		}
	}
}

func TestEncodeDecodeUint(t *testing.T) {
	for _, v := range []uint64{0, 1, 255, 256, 1<<32 - 1, 1 << 32, 1<<64 - 1} {
		enc := EncodeUint64Ascending(nil, v)
		require.Len(t, enc, 8)
		rem, dec, err := DecodeUint64Ascending(enc)
		require.NoError(t, err)
		require.Empty(t, rem)
		require.Equal(t, v, dec)
	}
	for _, v := range []uint32{0, 1, 1<<16 + 7, 1<<32 - 1} {
		enc := EncodeUint32Ascending(nil, v)
		require.Len(t, enc, 4)
		rem, dec, err := DecodeUint32Ascending(enc)
		require.NoError(t, err)
		require.Empty(t, rem)
		require.Equal(t, v, dec)
	}
	_, _, err := DecodeUint64Ascending([]byte{1, 2, 3})
	require.Error(t, err)
	_, _, err = DecodeUint32Ascending([]byte{1})
	require.Error(t, err)
}

func TestUintOrdering(t *testing.T) {
	vals := []uint64{0, 1, 2, 255, 256, 1 << 20, 1<<63 - 1, 1 << 63, 1<<64 - 1}
	for i := 1; i < len(vals); i++ {
		a := EncodeUint64Ascending(nil, vals[i-1])
		b := EncodeUint64Ascending(nil, vals[i])
		require.Negative(t, bytes.Compare(a, b))
	}
}

func TestPrefixEnd(t *testing.T) {
	testCases := []struct {
		in, out []byte
	}{
		{[]byte{0x00}, []byte{0x01}},
		{[]byte{0x01}, []byte{0x02}},
		{[]byte{0x01, 0xff}, []byte{0x02}},
		{[]byte{0xab, 0xcd}, []byte{0xab, 0xce}},
		{[]byte{0xff, 0xff}, nil},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.out, PrefixEnd(tc.in))
	}
	// The input must not be mutated.
	in := []byte{0x01, 0x02}
	_ = PrefixEnd(in)
	require.Equal(t, []byte{0x01, 0x02}, in)
}
