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
	"strconv"
	"strings"

	"github.com/rangekv/rangekv/catpb"
)

// Names of the two physical catalog tables. The root catalog locates the
// main catalog; the main catalog locates everything else. There are
// exactly two levels.
const (
	RootCatalogName = "system.root"
	MainCatalogName = "system.catalog"
)

// CatalogTable identifies one of the two physical catalog tables.
type CatalogTable int

// The two catalog tables.
const (
	RootCatalog CatalogTable = iota + 1
	MainCatalog
)

// Name returns the table identifier of the catalog table.
func (c CatalogTable) Name() string {
	switch c {
	case RootCatalog:
		return RootCatalogName
	case MainCatalog:
		return MainCatalogName
	}
	return fmt.Sprintf("CatalogTable(%d)", int(c))
}

// String implements fmt.Stringer.
func (c CatalogTable) String() string { return c.Name() }

// Column families and qualifiers of catalog rows. These names are a
// versioned binary contract: renaming any of them is a breaking format
// change requiring a migration.
const (
	// PartitionFamily holds per-partition metadata, keyed by encoded
	// partition key.
	PartitionFamily = "part"
	// TableFamily holds per-table metadata, keyed by the raw table
	// identifier.
	TableFamily = "table"

	// IdentifierQualifier holds the serialized identifier of the primary
	// replica.
	IdentifierQualifier = "identifier"
	// ServerQualifier holds the replica's steady-state server address.
	ServerQualifier = "server"
	// GenerationQualifier holds the serving process generation (start
	// code).
	GenerationQualifier = "generation"
	// SeqNumQualifier holds the sequence number obtained when the replica
	// opened.
	SeqNumQualifier = "seqnum"
	// TargetQualifier holds the address of the server a replica is
	// currently transitioning to, if a move is in flight.
	TargetQualifier = "target"
	// SplitAQualifier and SplitBQualifier hold the serialized identifiers
	// of the two split daughters, written into the parent's row.
	SplitAQualifier = "split_a"
	SplitBQualifier = "split_b"
	// StateQualifier holds the partition lifecycle state.
	StateQualifier = "state"

	// TableStateQualifier holds the table lifecycle state, under
	// TableFamily.
	TableStateQualifier = "state"
)

// KeyMax is the reserved maximum key sentinel. No partition may be
// registered with it as a start key, and it is rejected as a proximity
// probe.
var KeyMax = catpb.Key{0xff, 0xff}

// replicaSep separates a column qualifier base from the hex replica
// index for replicas > 0, e.g. "server_0002".
const replicaSep = "_"

func replicaColumn(base string, replica uint32) string {
	if replica == 0 {
		return base
	}
	return fmt.Sprintf("%s%s%04x", base, replicaSep, replica)
}

// ServerColumn returns the server-address qualifier for a replica.
func ServerColumn(replica uint32) string { return replicaColumn(ServerQualifier, replica) }

// GenerationColumn returns the generation qualifier for a replica.
func GenerationColumn(replica uint32) string { return replicaColumn(GenerationQualifier, replica) }

// SeqNumColumn returns the open-sequence-number qualifier for a replica.
func SeqNumColumn(replica uint32) string { return replicaColumn(SeqNumQualifier, replica) }

// TargetColumn returns the transitioning-target qualifier for a replica.
func TargetColumn(replica uint32) string { return replicaColumn(TargetQualifier, replica) }

// DecodeReplicaColumn splits a replica-suffixed qualifier into its base
// name and replica index. Qualifiers without a suffix decode as replica
// 0. ok is false if the qualifier is not well formed.
func DecodeReplicaColumn(qualifier string) (base string, replica uint32, ok bool) {
	i := strings.LastIndex(qualifier, replicaSep)
	if i == -1 {
		return qualifier, 0, true
	}
	// split_a and split_b contain the separator but carry no replica.
	if qualifier == SplitAQualifier || qualifier == SplitBQualifier {
		return qualifier, 0, true
	}
	v, err := strconv.ParseUint(qualifier[i+1:], 16, 32)
	if err != nil {
		return "", 0, false
	}
	return qualifier[:i], uint32(v), true
}
