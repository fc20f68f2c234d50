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

package catpb

import (
	"bytes"
	"fmt"
)

// Key is a raw row key as stored in a catalog table. Keys compare
// byte-lexicographically.
type Key []byte

// Equal returns whether two keys are identical.
func (k Key) Equal(o Key) bool {
	return bytes.Equal(k, o)
}

// Compare returns -1, 0 or 1 comparing the two keys byte-wise.
func (k Key) Compare(o Key) int {
	return bytes.Compare(k, o)
}

// Less returns whether k sorts before o.
func (k Key) Less(o Key) bool {
	return bytes.Compare(k, o) < 0
}

// String returns a printable form of the key: printable ASCII is kept,
// everything else is hex-escaped.
func (k Key) String() string {
	var buf bytes.Buffer
	for _, b := range k {
		if b >= 0x20 && b < 0x7f {
			buf.WriteByte(b)
		} else {
			fmt.Fprintf(&buf, `\x%02x`, b)
		}
	}
	return buf.String()
}
