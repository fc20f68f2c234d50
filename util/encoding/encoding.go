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

// Package encoding provides order-preserving encodings of the primitive
// values used to build catalog row keys. Encoded values compare
// byte-lexicographically in the same order as the source values, and the
// variable-length encodings are prefix-free so that concatenated fields
// never produce false range overlaps.
package encoding

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

const (
	// Escaping of variable-length byte strings:
	//   <term> -> \x00\x01
	//   \x00   -> \x00\xff
	escape      byte = 0x00
	escapedTerm byte = 0x01
	escaped00   byte = 0xff
)

// EncodeUint32Ascending encodes the uint32 value using a big-endian 4 byte
// representation. The bytes are appended to the supplied buffer and the
// final buffer is returned.
func EncodeUint32Ascending(b []byte, v uint32) []byte {
	return append(b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// DecodeUint32Ascending decodes a uint32 from the input buffer, treating
// the input as a big-endian 4 byte uint32 representation. The remainder
// of the input buffer and the decoded uint32 are returned.
func DecodeUint32Ascending(b []byte) ([]byte, uint32, error) {
	if len(b) < 4 {
		return nil, 0, errors.Errorf("insufficient bytes to decode uint32 int value: %q", b)
	}
	v := binary.BigEndian.Uint32(b)
	return b[4:], v, nil
}

// EncodeUint64Ascending encodes the uint64 value using a big-endian 8 byte
// representation. The bytes are appended to the supplied buffer and the
// final buffer is returned.
func EncodeUint64Ascending(b []byte, v uint64) []byte {
	return append(b,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// DecodeUint64Ascending decodes a uint64 from the input buffer, treating
// the input as a big-endian 8 byte uint64 representation. The remainder
// of the input buffer and the decoded uint64 are returned.
func DecodeUint64Ascending(b []byte) ([]byte, uint64, error) {
	if len(b) < 8 {
		return nil, 0, errors.Errorf("insufficient bytes to decode uint64 int value: %q", b)
	}
	v := binary.BigEndian.Uint64(b)
	return b[8:], v, nil
}

// EncodeBytesAscending encodes the []byte value using an escape-based
// encoding. The encoded value is terminated with the sequence "\x00\x01"
// which is guaranteed to not occur elsewhere in the encoded value. The
// encoded bytes are appended to the supplied buffer and the resulting
// buffer is returned.
//
// Because the terminator cannot occur inside an encoded value, no encoded
// value is a prefix of another encoded value, and the encoding preserves
// the lexicographic order of the source values.
func EncodeBytesAscending(b []byte, data []byte) []byte {
	for {
		// IndexByte is implemented by the go runtime in assembly and is
		// much faster than looping over the bytes in the slice.
		i := bytes.IndexByte(data, escape)
		if i == -1 {
			break
		}
		b = append(b, data[:i]...)
		b = append(b, escape, escaped00)
		data = data[i+1:]
	}
	b = append(b, data...)
	return append(b, escape, escapedTerm)
}

// DecodeBytesAscending decodes a []byte value from the input buffer which
// was encoded using EncodeBytesAscending. The decoded bytes are appended
// to r. The remainder of the input buffer and the decoded []byte are
// returned.
func DecodeBytesAscending(b []byte, r []byte) ([]byte, []byte, error) {
	for {
		i := bytes.IndexByte(b, escape)
		if i == -1 {
			return nil, nil, errors.Errorf("did not find terminator %#x in buffer %#x", escape, b)
		}
		if i+1 >= len(b) {
			return nil, nil, errors.Errorf("malformed escape in buffer %#x", b)
		}
		v := b[i+1]
		if v == escapedTerm {
			if r == nil {
				r = b[:i]
			} else {
				r = append(r, b[:i]...)
			}
			return b[i+2:], r, nil
		}
		if v != escaped00 {
			return nil, nil, errors.Errorf("unknown escape sequence: %#x %#x", escape, v)
		}
		r = append(r, b[:i]...)
		r = append(r, escape)
		b = b[i+2:]
	}
}

// PrefixEnd determines the smallest key that does not have the given key
// as a prefix, which is the exclusive end of the range of all keys
// prefixed by it. The input is not modified. If the key is entirely 0xff
// bytes there is no such key and nil is returned, which callers treat as
// an unbounded upper limit.
func PrefixEnd(b []byte) []byte {
	end := append([]byte(nil), b...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] != 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
