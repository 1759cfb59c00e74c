package fsblob

import (
	"context"

	"github.com/oneconcern/cryptfs/pkg/blobstore"
	"github.com/oneconcern/cryptfs/pkg/blockstore"
)

// SymlinkBlob holds the target of a symbolic link
type SymlinkBlob struct {
	blob   blobstore.Blob
	parent blockstore.Key
	target string
}

// InitializeSymlink turns a blob into a symlink pointing to target
func InitializeSymlink(ctx context.Context, b blobstore.Blob, parent blockstore.Key, target string) (*SymlinkBlob, error) {
	if err := writeContent(ctx, b, header{typ: TypeSymlink, parent: parent}, []byte(target)); err != nil {
		return nil, err
	}
	return &SymlinkBlob{blob: b, parent: parent, target: target}, nil
}

// LoadSymlinkBlob reads a symlink. It fails with ErrNotASymlink when the blob holds something else.
func LoadSymlinkBlob(ctx context.Context, b blobstore.Blob) (*SymlinkBlob, error) {
	content, err := b.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	h, err := decodeHeader(b.Key(), content)
	if err != nil {
		return nil, err
	}
	if h.typ != TypeSymlink {
		return nil, ErrNotASymlink.Wrapf("blob %v is a %v", b.Key(), h.typ)
	}
	return &SymlinkBlob{blob: b, parent: h.parent, target: string(content[headerSize:])}, nil
}

// Key of the symlink blob
func (s *SymlinkBlob) Key() blockstore.Key {
	return s.blob.Key()
}

// Parent is the key of the directory holding the symlink
func (s *SymlinkBlob) Parent() blockstore.Key {
	return s.parent
}

// Target of the link
func (s *SymlinkBlob) Target() string {
	return s.target
}
