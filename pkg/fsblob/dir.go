package fsblob

import (
	"context"
	"sync/atomic"

	iradix "github.com/hashicorp/go-immutable-radix"
	"github.com/im7mortal/kmutex"
	"github.com/oneconcern/cryptfs/pkg/blobstore"
	"github.com/oneconcern/cryptfs/pkg/blockstore"
)

// DirBlob is a directory: a table of named entries stored in a blob.
//
// Lookups read an immutable snapshot of the table and never wait for writers.
// Mutations are serialized per directory blob, even across handles loaded separately,
// and persisted before they become visible. A handle sees changes made through other
// handles from its next mutation on.
type DirBlob struct {
	blob    blobstore.Blob
	parent  blockstore.Key
	entries atomic.Pointer[iradix.Tree]
}

// serializes mutations of a directory across all its handles
var dirLocks = kmutex.New()

// InitializeEmptyDir turns a blob into an empty directory
func InitializeEmptyDir(ctx context.Context, b blobstore.Blob, parent blockstore.Key) (*DirBlob, error) {
	h := header{typ: TypeDir, parent: parent}
	if err := writeContent(ctx, b, h, nil); err != nil {
		return nil, err
	}
	d := &DirBlob{blob: b, parent: parent}
	d.entries.Store(iradix.New())
	return d, nil
}

// LoadDirBlob reads the entry table held by a blob.
// It fails with ErrNotADirectory when the blob holds another kind of filesystem blob.
func LoadDirBlob(ctx context.Context, b blobstore.Blob) (*DirBlob, error) {
	h, tree, err := readTable(ctx, b)
	if err != nil {
		return nil, err
	}
	d := &DirBlob{blob: b, parent: h.parent}
	d.entries.Store(tree)
	return d, nil
}

func readTable(ctx context.Context, b blobstore.Blob) (header, *iradix.Tree, error) {
	content, err := b.ReadAll(ctx)
	if err != nil {
		return header{}, nil, err
	}
	h, err := decodeHeader(b.Key(), content)
	if err != nil {
		return header{}, nil, err
	}
	if h.typ != TypeDir {
		return header{}, nil, ErrNotADirectory.Wrapf("blob %v is a %v", b.Key(), h.typ)
	}

	entries, err := unmarshalEntries(content[headerSize:])
	if err != nil {
		return header{}, nil, ErrCorruptBlob.Wrapf("directory %v: %v", b.Key(), err)
	}
	txn := iradix.New().Txn()
	for _, e := range entries {
		txn.Insert([]byte(e.Name), e)
	}
	return h, txn.Commit(), nil
}

// Key of the directory blob
func (d *DirBlob) Key() blockstore.Key {
	return d.blob.Key()
}

// Parent is the key of the parent directory. It is zero for the root directory.
func (d *DirBlob) Parent() blockstore.Key {
	return d.parent
}

// Blob exposes the underlying blob
func (d *DirBlob) Blob() blobstore.Blob {
	return d.blob
}

// GetChild looks up an entry by name
func (d *DirBlob) GetChild(name string) (Entry, bool) {
	v, ok := d.entries.Load().Get([]byte(name))
	if !ok {
		return Entry{}, false
	}
	return v.(Entry), true
}

// GetChildByKey looks up an entry by the key of its blob
func (d *DirBlob) GetChildByKey(key blockstore.Key) (Entry, bool) {
	var (
		found Entry
		ok    bool
	)
	d.entries.Load().Root().Walk(func(_ []byte, v interface{}) bool {
		e := v.(Entry)
		if e.Key == key {
			found, ok = e, true
			return true
		}
		return false
	})
	return found, ok
}

// Children lists the entries, ordered by name
func (d *DirBlob) Children() []Entry {
	tree := d.entries.Load()
	children := make([]Entry, 0, tree.Len())
	tree.Root().Walk(func(_ []byte, v interface{}) bool {
		children = append(children, v.(Entry))
		return false
	})
	return children
}

// NumChildren counts the entries
func (d *DirBlob) NumChildren() int {
	return d.entries.Load().Len()
}

// AddChild adds an entry. It fails with ErrExists when the name is taken.
func (d *DirBlob) AddChild(ctx context.Context, e Entry) error {
	if err := ValidateName(e.Name); err != nil {
		return err
	}
	return d.mutate(ctx, func(tree *iradix.Tree) (*iradix.Tree, error) {
		if _, taken := tree.Get([]byte(e.Name)); taken {
			return nil, ErrExists.Wrapf("%q", e.Name)
		}
		next, _, _ := tree.Insert([]byte(e.Name), e)
		return next, nil
	})
}

// RemoveChild removes an entry by name. It returns false when there is no such entry.
func (d *DirBlob) RemoveChild(ctx context.Context, name string) (bool, error) {
	var removed bool
	err := d.mutate(ctx, func(tree *iradix.Tree) (*iradix.Tree, error) {
		next, _, ok := tree.Delete([]byte(name))
		if !ok {
			return nil, nil
		}
		removed = true
		return next, nil
	})
	return removed, err
}

// RenameChild changes the name of an entry. It fails with ErrExists when the new name is taken.
func (d *DirBlob) RenameChild(ctx context.Context, oldName, newName string) (bool, error) {
	if err := ValidateName(newName); err != nil {
		return false, err
	}
	var renamed bool
	err := d.mutate(ctx, func(tree *iradix.Tree) (*iradix.Tree, error) {
		v, ok := tree.Get([]byte(oldName))
		if !ok {
			return nil, nil
		}
		if oldName == newName {
			renamed = true
			return nil, nil
		}
		if _, taken := tree.Get([]byte(newName)); taken {
			return nil, ErrExists.Wrapf("%q", newName)
		}
		e := v.(Entry)
		e.Name = newName
		txn := tree.Txn()
		txn.Delete([]byte(oldName))
		txn.Insert([]byte(newName), e)
		renamed = true
		return txn.Commit(), nil
	})
	return renamed, err
}

// UpdateChild modifies the metadata of an entry. The name, type and key of the entry cannot be changed.
func (d *DirBlob) UpdateChild(ctx context.Context, name string, update func(*Entry)) (bool, error) {
	var updated bool
	err := d.mutate(ctx, func(tree *iradix.Tree) (*iradix.Tree, error) {
		v, ok := tree.Get([]byte(name))
		if !ok {
			return nil, nil
		}
		e := v.(Entry)
		update(&e)
		e.Name, e.Type, e.Key = name, v.(Entry).Type, v.(Entry).Key
		next, _, _ := tree.Insert([]byte(name), e)
		updated = true
		return next, nil
	})
	return updated, err
}

// mutate applies a change to the entry table. A nil tree returned by change means there is nothing to persist.
//
// Several handles may be open on the same directory blob: the table is reloaded from the blob
// under a lock held per blob key, so that a change never drops entries written through another handle.
func (d *DirBlob) mutate(ctx context.Context, change func(*iradix.Tree) (*iradix.Tree, error)) error {
	key := d.blob.Key()
	dirLocks.Lock(key)
	defer dirLocks.Unlock(key)

	_, current, err := readTable(ctx, d.blob)
	if err != nil {
		return err
	}
	d.entries.Store(current)

	next, err := change(current)
	if err != nil || next == nil {
		return err
	}
	if err = d.persist(ctx, next); err != nil {
		return err
	}
	d.entries.Store(next)
	return nil
}

func (d *DirBlob) persist(ctx context.Context, tree *iradix.Tree) error {
	entries := make([]Entry, 0, tree.Len())
	tree.Root().Walk(func(_ []byte, v interface{}) bool {
		entries = append(entries, v.(Entry))
		return false
	})
	h := header{typ: TypeDir, parent: d.parent}
	return writeContent(ctx, d.blob, h, marshalEntries(entries))
}
