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

package keys

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/rangekv/rangekv/catpb"
)

// MalformedKeyError indicates that a row key or serialized record could
// not be parsed: data corruption or a format version mismatch. It is
// never retried and is surfaced to the caller as is.
type MalformedKeyError struct {
	Msg string
	Key catpb.Key
}

// NewMalformedKeyError returns a MalformedKeyError wrapping the given
// key.
func NewMalformedKeyError(msg string, key catpb.Key) error {
	return &MalformedKeyError{Msg: msg, Key: append(catpb.Key(nil), key...)}
}

// Error implements the error interface.
func (e *MalformedKeyError) Error() string {
	return fmt.Sprintf("malformed key %s: %s", e.Key, e.Msg)
}

// IsMalformedKey returns true if the error is a MalformedKeyError.
func IsMalformedKey(err error) bool {
	return errors.HasType(err, (*MalformedKeyError)(nil))
}

// InvalidCatalogOperationError indicates a programmer error in catalog
// addressing, such as asking for the catalog that locates the root
// catalog. It is fatal and never retried.
type InvalidCatalogOperationError struct {
	Msg string
}

// NewInvalidCatalogOperationError returns an
// InvalidCatalogOperationError.
func NewInvalidCatalogOperationError(format string, args ...interface{}) error {
	return &InvalidCatalogOperationError{Msg: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *InvalidCatalogOperationError) Error() string {
	return "invalid catalog operation: " + e.Msg
}

// IsInvalidCatalogOperation returns true if the error is an
// InvalidCatalogOperationError.
func IsInvalidCatalogOperation(err error) bool {
	return errors.HasType(err, (*InvalidCatalogOperationError)(nil))
}
