// Package fsblob gives filesystem meaning to blobs: directories, files and symlinks.
//
// Every filesystem blob starts with a header:
//
//	[0:2]  format version (uint16, little endian)
//	[2]    blob type: 0x00 directory, 0x01 file, 0x02 symlink
//	[3:19] key of the parent directory blob (zero for the root directory)
package fsblob

import (
	"context"
	"encoding/binary"
	"io"

	"github.com/oneconcern/cryptfs/pkg/blobstore"
	"github.com/oneconcern/cryptfs/pkg/blockstore"
	"github.com/oneconcern/cryptfs/pkg/errors"
)

const (
	formatVersion uint16 = 1
	headerSize           = 2 + 1 + blockstore.KeySize
)

// BlobType tells what a filesystem blob holds
type BlobType byte

// Blob types
const (
	TypeDir     BlobType = 0x00
	TypeFile    BlobType = 0x01
	TypeSymlink BlobType = 0x02
)

func (t BlobType) String() string {
	switch t {
	case TypeDir:
		return "directory"
	case TypeFile:
		return "file"
	case TypeSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

var (
	// ErrNotADirectory is returned when a directory is expected
	ErrNotADirectory = errors.New("not a directory")

	// ErrNotAFile is returned when a regular file is expected
	ErrNotAFile = errors.New("not a file")

	// ErrNotASymlink is returned when a symlink is expected
	ErrNotASymlink = errors.New("not a symlink")

	// ErrExists is returned when adding an entry with a name already taken
	ErrExists = errors.New("entry exists already")

	// ErrInvalidName is returned for entry names which cannot be used in a directory
	ErrInvalidName = errors.New("invalid entry name")

	// ErrCorruptBlob is returned when a blob does not hold a valid filesystem blob
	ErrCorruptBlob = errors.New("corrupt filesystem blob")
)

type header struct {
	typ    BlobType
	parent blockstore.Key
}

func (h header) encode() []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint16(buf, formatVersion)
	buf[2] = byte(h.typ)
	copy(buf[3:], h.parent[:])
	return buf
}

func readHeader(ctx context.Context, b blobstore.Blob) (header, error) {
	buf := make([]byte, headerSize)
	n, err := b.ReadAt(ctx, buf, 0)
	if err != nil && err != io.EOF {
		return header{}, err
	}
	return decodeHeader(b.Key(), buf[:n])
}

func decodeHeader(key blockstore.Key, buf []byte) (header, error) {
	if len(buf) < headerSize {
		return header{}, ErrCorruptBlob.Wrapf("blob %v is too short to hold a header", key)
	}
	if v := binary.LittleEndian.Uint16(buf); v != formatVersion {
		return header{}, ErrCorruptBlob.Wrapf("blob %v has unsupported format version %d", key, v)
	}
	h := header{typ: BlobType(buf[2])}
	copy(h.parent[:], buf[3:headerSize])
	return h, nil
}

// writeContent replaces the whole content of a blob with a header followed by the payload
func writeContent(ctx context.Context, b blobstore.Blob, h header, payload []byte) error {
	content := append(h.encode(), payload...)
	if err := b.WriteAt(ctx, content, 0); err != nil {
		return err
	}
	return b.Resize(ctx, uint64(len(content)))
}

// TypeOf reads the type and parent recorded in the header of a filesystem blob
func TypeOf(ctx context.Context, b blobstore.Blob) (BlobType, blockstore.Key, error) {
	h, err := readHeader(ctx, b)
	if err != nil {
		return 0, blockstore.Key{}, err
	}
	return h.typ, h.parent, nil
}
