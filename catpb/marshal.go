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

	"github.com/cockroachdb/errors"
	"github.com/gogo/protobuf/proto"
)

// identifierMagic prefixes every serialized PartitionID stored in the
// catalog. Readers use it to reject values written by incompatible
// versions; the trailing byte is the format version.
var identifierMagic = []byte{'R', 'K', 'i', 0x01}

// Protobuf field tags of the serialized PartitionID message. Changing
// any of these is a breaking format change requiring a migration.
const (
	idFieldTable    = 1 // string
	idFieldStartKey = 2 // bytes
	idFieldSuffix   = 3 // varint
	idFieldReplica  = 4 // varint
)

const (
	wireVarint = 0
	wireBytes  = 2
)

// Marshal implements the gogoproto Marshaler interface, encoding the
// identifier as a protobuf message. Zero-valued fields are omitted, per
// proto3 semantics.
func (id PartitionID) Marshal() ([]byte, error) {
	var buf []byte
	if len(id.Table) > 0 {
		buf = append(buf, idFieldTable<<3|wireBytes)
		buf = append(buf, proto.EncodeVarint(uint64(len(id.Table)))...)
		buf = append(buf, id.Table...)
	}
	if len(id.StartKey) > 0 {
		buf = append(buf, idFieldStartKey<<3|wireBytes)
		buf = append(buf, proto.EncodeVarint(uint64(len(id.StartKey)))...)
		buf = append(buf, id.StartKey...)
	}
	if id.Suffix != 0 {
		buf = append(buf, idFieldSuffix<<3|wireVarint)
		buf = append(buf, proto.EncodeVarint(id.Suffix)...)
	}
	if id.Replica != 0 {
		buf = append(buf, idFieldReplica<<3|wireVarint)
		buf = append(buf, proto.EncodeVarint(uint64(id.Replica))...)
	}
	return buf, nil
}

// Unmarshal implements the gogoproto Unmarshaler interface.
func (id *PartitionID) Unmarshal(b []byte) error {
	*id = PartitionID{}
	for len(b) > 0 {
		tag, n := proto.DecodeVarint(b)
		if n == 0 {
			return errors.New("invalid field tag varint")
		}
		b = b[n:]
		field, wire := tag>>3, tag&0x7
		switch wire {
		case wireVarint:
			v, n := proto.DecodeVarint(b)
			if n == 0 {
				return errors.Errorf("invalid varint for field %d", field)
			}
			b = b[n:]
			switch field {
			case idFieldSuffix:
				id.Suffix = v
			case idFieldReplica:
				id.Replica = uint32(v)
			default:
				return errors.Errorf("unknown varint field %d", field)
			}
		case wireBytes:
			l, n := proto.DecodeVarint(b)
			if n == 0 || uint64(len(b)-n) < l {
				return errors.Errorf("truncated bytes for field %d", field)
			}
			v := b[n : n+int(l)]
			b = b[n+int(l):]
			switch field {
			case idFieldTable:
				id.Table = string(v)
			case idFieldStartKey:
				id.StartKey = append([]byte(nil), v...)
			default:
				return errors.Errorf("unknown bytes field %d", field)
			}
		default:
			return errors.Errorf("unsupported wire type %d for field %d", wire, field)
		}
	}
	return nil
}

// MarshalIdentifier produces the magic-prefixed serialized form of a
// partition identifier as stored in the catalog's identifier column.
func MarshalIdentifier(id PartitionID) ([]byte, error) {
	buf, err := id.Marshal()
	if err != nil {
		return nil, err
	}
	return append(append([]byte(nil), identifierMagic...), buf...), nil
}

// UnmarshalIdentifier is the inverse of MarshalIdentifier.
func UnmarshalIdentifier(b []byte) (PartitionID, error) {
	if !bytes.HasPrefix(b, identifierMagic) {
		return PartitionID{}, errors.Errorf("serialized identifier lacks magic prefix: %q", b)
	}
	var id PartitionID
	if err := id.Unmarshal(b[len(identifierMagic):]); err != nil {
		return PartitionID{}, err
	}
	return id, nil
}

// tableStateVersion versions the serialized table-state column value.
const tableStateVersion = 0x01

// MarshalTableState produces the table-state column value.
func MarshalTableState(s TableState) []byte {
	return []byte{tableStateVersion, byte(s)}
}

// UnmarshalTableState is the inverse of MarshalTableState.
func UnmarshalTableState(b []byte) (TableState, error) {
	if len(b) != 2 || b[0] != tableStateVersion {
		return 0, errors.Errorf("invalid serialized table state: %q", b)
	}
	s := TableState(b[1])
	if _, ok := tableStateNames[s]; !ok {
		return 0, errors.Errorf("unknown table state value %d", b[1])
	}
	return s, nil
}
