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

package catalog

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/rangekv/rangekv/catpb"
)

// PartitionNotFoundError reports that no partition record answers the
// lookup. It reflects catalog contents at read time, not a transient
// store condition; retrying only helps once the catalog has been
// repopulated.
type PartitionNotFoundError struct {
	// Table is the table the lookup targeted.
	Table string
	// Row is the row key or probe position the lookup asked about, when
	// the lookup was positional.
	Row []byte
	// Msg describes what was looked up and missed.
	Msg string
}

// NewPartitionNotFoundError returns a PartitionNotFoundError.
func NewPartitionNotFoundError(table string, row []byte, format string, args ...interface{}) error {
	return &PartitionNotFoundError{
		Table: table,
		Row:   append([]byte(nil), row...),
		Msg:   fmt.Sprintf(format, args...),
	}
}

// Error implements error.
func (e *PartitionNotFoundError) Error() string {
	if e.Row != nil {
		return fmt.Sprintf("partition not found: table %q row %s: %s",
			e.Table, catpb.Key(e.Row), e.Msg)
	}
	return fmt.Sprintf("partition not found: table %q: %s", e.Table, e.Msg)
}

// IsPartitionNotFound returns true if err indicates a missing partition
// record.
func IsPartitionNotFound(err error) bool {
	return errors.HasType(err, (*PartitionNotFoundError)(nil))
}

// CorruptRecordError reports that a catalog cell exists but cannot be
// decoded. Unlike PartitionNotFoundError, the data is present and wrong;
// the row needs operator attention, not a retry.
type CorruptRecordError struct {
	Key       catpb.Key
	Family    string
	Qualifier string
	Cause     error
}

// NewCorruptRecordError returns a CorruptRecordError wrapping the decode
// failure.
func NewCorruptRecordError(cause error, key catpb.Key, family, qualifier string) error {
	return &CorruptRecordError{
		Key:       append(catpb.Key(nil), key...),
		Family:    family,
		Qualifier: qualifier,
		Cause:     cause,
	}
}

// Error implements error.
func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("corrupt catalog record at %s %s:%s: %v",
		e.Key, e.Family, e.Qualifier, e.Cause)
}

// Unwrap exposes the decode failure.
func (e *CorruptRecordError) Unwrap() error { return e.Cause }

// IsCorruptRecord returns true if err indicates an undecodable catalog
// cell.
func IsCorruptRecord(err error) bool {
	return errors.HasType(err, (*CorruptRecordError)(nil))
}

// CatalogUnavailableError wraps a failure of the underlying store while
// reading or writing a catalog table. It is the retryable class of the
// taxonomy; callers may retry once the store recovers.
type CatalogUnavailableError struct {
	Catalog string
	Cause   error
}

// NewCatalogUnavailableError wraps cause as a CatalogUnavailableError
// for the named catalog table.
func NewCatalogUnavailableError(cause error, catalog string) error {
	if cause == nil {
		return nil
	}
	return &CatalogUnavailableError{Catalog: catalog, Cause: cause}
}

// Error implements error.
func (e *CatalogUnavailableError) Error() string {
	return fmt.Sprintf("catalog %s unavailable: %v", e.Catalog, e.Cause)
}

// Unwrap exposes the store failure.
func (e *CatalogUnavailableError) Unwrap() error { return e.Cause }

// IsCatalogUnavailable returns true if err indicates a store failure
// under a catalog operation.
func IsCatalogUnavailable(err error) bool {
	return errors.HasType(err, (*CatalogUnavailableError)(nil))
}
