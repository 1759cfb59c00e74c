package fsblob

import (
	"context"

	"github.com/oneconcern/cryptfs/pkg/blobstore"
	"github.com/oneconcern/cryptfs/pkg/blockstore"
)

// FileBlob is the content of a regular file. Offsets are relative to the file content, past the header.
type FileBlob struct {
	blob   blobstore.Blob
	parent blockstore.Key
}

// InitializeEmptyFile turns a blob into an empty file
func InitializeEmptyFile(ctx context.Context, b blobstore.Blob, parent blockstore.Key) (*FileBlob, error) {
	if err := writeContent(ctx, b, header{typ: TypeFile, parent: parent}, nil); err != nil {
		return nil, err
	}
	return &FileBlob{blob: b, parent: parent}, nil
}

// LoadFileBlob checks that a blob holds a file. It fails with ErrNotAFile otherwise.
func LoadFileBlob(ctx context.Context, b blobstore.Blob) (*FileBlob, error) {
	h, err := readHeader(ctx, b)
	if err != nil {
		return nil, err
	}
	if h.typ != TypeFile {
		return nil, ErrNotAFile.Wrapf("blob %v is a %v", b.Key(), h.typ)
	}
	return &FileBlob{blob: b, parent: h.parent}, nil
}

// Key of the file blob
func (f *FileBlob) Key() blockstore.Key {
	return f.blob.Key()
}

// Parent is the key of the directory holding the file
func (f *FileBlob) Parent() blockstore.Key {
	return f.parent
}

// Size of the file content
func (f *FileBlob) Size(ctx context.Context) (uint64, error) {
	size, err := f.blob.Size(ctx)
	if err != nil {
		return 0, err
	}
	if size < headerSize {
		return 0, ErrCorruptBlob.Wrapf("file %v is too short to hold a header", f.Key())
	}
	return size - headerSize, nil
}

// Resize truncates or zero-extends the file
func (f *FileBlob) Resize(ctx context.Context, size uint64) error {
	return f.blob.Resize(ctx, size+headerSize)
}

// ReadAt follows the io.ReaderAt conventions
func (f *FileBlob) ReadAt(ctx context.Context, p []byte, off uint64) (int, error) {
	return f.blob.ReadAt(ctx, p, off+headerSize)
}

// WriteAt writes p at offset off, growing the file if needed
func (f *FileBlob) WriteAt(ctx context.Context, p []byte, off uint64) error {
	return f.blob.WriteAt(ctx, p, off+headerSize)
}

// ReadAll returns the whole file content
func (f *FileBlob) ReadAll(ctx context.Context) ([]byte, error) {
	content, err := f.blob.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(content) < headerSize {
		return nil, ErrCorruptBlob.Wrapf("file %v is too short to hold a header", f.Key())
	}
	return content[headerSize:], nil
}
