package fsblob

import (
	"strings"
	"time"

	"github.com/oneconcern/cryptfs/pkg/blockstore"
	"google.golang.org/protobuf/encoding/protowire"
)

// EntryType is the kind of a directory entry
type EntryType uint8

// Entry types. Other values may be read from a corrupt directory: check them with Valid.
const (
	EntryDir     EntryType = EntryType(TypeDir)
	EntryFile    EntryType = EntryType(TypeFile)
	EntrySymlink EntryType = EntryType(TypeSymlink)
)

// Valid tells if the entry type is known
func (t EntryType) Valid() bool {
	switch t {
	case EntryDir, EntryFile, EntrySymlink:
		return true
	default:
		return false
	}
}

func (t EntryType) String() string {
	return BlobType(t).String()
}

// Entry is a child of a directory
type Entry struct {
	Name string
	Type EntryType
	Key  blockstore.Key

	Mode uint32
	UID  uint32
	GID  uint32

	LastAccess         time.Time
	LastModification   time.Time
	LastMetadataChange time.Time
}

// ValidateName checks that a name may be used for a directory entry
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return ErrInvalidName.Wrapf("%q", name)
	case strings.ContainsAny(name, "/\x00"):
		return ErrInvalidName.Wrapf("%q contains a forbidden character", name)
	default:
		return nil
	}
}

// Directory entries are encoded as protobuf messages, each embedded as field 1 of the entry table:
//
//	1: type (varint)
//	2: name (bytes)
//	3: key (bytes)
//	4: mode, 5: uid, 6: gid (varint)
//	7: last access, 8: last modification, 9: last metadata change (zigzag varint, unix nanoseconds)
const (
	fieldEntry protowire.Number = 1

	fieldType  protowire.Number = 1
	fieldName  protowire.Number = 2
	fieldKey   protowire.Number = 3
	fieldMode  protowire.Number = 4
	fieldUID   protowire.Number = 5
	fieldGID   protowire.Number = 6
	fieldAtime protowire.Number = 7
	fieldMtime protowire.Number = 8
	fieldCtime protowire.Number = 9
)

func appendTime(b []byte, num protowire.Number, t time.Time) []byte {
	if t.IsZero() {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(t.UnixNano()))
}

func (e Entry) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Type))
	b = protowire.AppendTag(b, fieldName, protowire.BytesType)
	b = protowire.AppendString(b, e.Name)
	b = protowire.AppendTag(b, fieldKey, protowire.BytesType)
	b = protowire.AppendBytes(b, e.Key[:])
	b = protowire.AppendTag(b, fieldMode, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Mode))
	b = protowire.AppendTag(b, fieldUID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.UID))
	b = protowire.AppendTag(b, fieldGID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.GID))
	b = appendTime(b, fieldAtime, e.LastAccess)
	b = appendTime(b, fieldMtime, e.LastModification)
	b = appendTime(b, fieldCtime, e.LastMetadataChange)
	return b
}

func unmarshalEntry(b []byte) (Entry, error) {
	var e Entry
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Entry{}, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == fieldName && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return Entry{}, protowire.ParseError(m)
			}
			e.Name = v
			n = m
		case num == fieldKey && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return Entry{}, protowire.ParseError(m)
			}
			k, err := blockstore.NewKey(v)
			if err != nil {
				return Entry{}, err
			}
			e.Key = k
			n = m
		case typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return Entry{}, protowire.ParseError(m)
			}
			e.setVarint(num, v)
			n = m
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return Entry{}, protowire.ParseError(m)
			}
			n = m
		}
		b = b[n:]
	}
	return e, nil
}

func (e *Entry) setVarint(num protowire.Number, v uint64) {
	switch num {
	case fieldType:
		e.Type = EntryType(v)
	case fieldMode:
		e.Mode = uint32(v)
	case fieldUID:
		e.UID = uint32(v)
	case fieldGID:
		e.GID = uint32(v)
	case fieldAtime:
		e.LastAccess = time.Unix(0, protowire.DecodeZigZag(v))
	case fieldMtime:
		e.LastModification = time.Unix(0, protowire.DecodeZigZag(v))
	case fieldCtime:
		e.LastMetadataChange = time.Unix(0, protowire.DecodeZigZag(v))
	}
}

func marshalEntries(entries []Entry) []byte {
	var b []byte
	for _, e := range entries {
		b = protowire.AppendTag(b, fieldEntry, protowire.BytesType)
		b = protowire.AppendBytes(b, e.marshal())
	}
	return b
}

func unmarshalEntries(b []byte) ([]Entry, error) {
	var entries []Entry
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		if num != fieldEntry || typ != protowire.BytesType {
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return nil, protowire.ParseError(m)
			}
			b = b[m:]
			continue
		}
		raw, m := protowire.ConsumeBytes(b)
		if m < 0 {
			return nil, protowire.ParseError(m)
		}
		e, err := unmarshalEntry(raw)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
		b = b[m:]
	}
	return entries, nil
}
