// Copyright © 2018 One Concern

package device

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/oneconcern/cryptfs/pkg/blockstore"
	"github.com/oneconcern/cryptfs/pkg/errors"
	"github.com/oneconcern/cryptfs/pkg/fsblob"
	"go.uber.org/zap"
)

// splitPath checks that p is absolute and returns its components. The root has no component.
//
// Paths are cleaned lexically: "/a/../b" resolves as "/b".
func splitPath(p string) ([]string, error) {
	if !strings.HasPrefix(p, "/") {
		return nil, ErrRelativePath.Wrapf("%q", p)
	}
	clean := path.Clean(p)
	if clean == "/" {
		return nil, nil
	}
	return strings.Split(clean[1:], "/"), nil
}

// Load resolves an absolute path.
//
// A path which does not exist is reported with a false flag. Resolution fails with ErrNotADirectory
// when going through something else than a directory, and with ErrIO when the file system is inconsistent.
//
// Resolution takes no lock: concurrent changes to the directories on the path may or may not be seen.
func (d *Device) Load(ctx context.Context, p string) (n Node, found bool, err error) {
	if d.MetricsEnabled() {
		defer func(t0 time.Time) { d.m.IORecord(t0, "resolve")(err) }(time.Now())
	}

	components, err := splitPath(p)
	if err != nil {
		return Node{}, false, err
	}
	if len(components) == 0 {
		return Node{Kind: KindRoot, Key: d.root}, true, nil
	}

	last := len(components) - 1
	parent, found, err := d.loadDir(ctx, components[:last])
	if err != nil || !found {
		return Node{}, false, err
	}

	entry, ok := parent.GetChild(components[last])
	if !ok {
		return Node{}, false, nil
	}
	kind, ok := kindOf(entry.Type)
	if !ok {
		return Node{}, false, d.unknownEntry(p, entry)
	}
	return Node{Kind: kind, Key: entry.Key, Entry: entry, Parent: parent}, true, nil
}

// LoadDirBlob resolves an absolute path to a directory, walking down from the root.
//
// A path which does not exist is reported with a false flag. A missing root directory is an ErrIO fault.
func (d *Device) LoadDirBlob(ctx context.Context, p string) (*fsblob.DirBlob, bool, error) {
	components, err := splitPath(p)
	if err != nil {
		return nil, false, err
	}
	return d.loadDir(ctx, components)
}

func (d *Device) loadDir(ctx context.Context, components []string) (*fsblob.DirBlob, bool, error) {
	b, found, err := d.blobs.Load(ctx, d.root)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, ErrIO.Wrapf("root directory blob %v is missing", d.root)
	}
	dir, err := fsblob.LoadDirBlob(ctx, b)
	if err != nil {
		return nil, false, ErrIO.Wrapf("root directory blob %v: %v", d.root, err)
	}

	for i, name := range components {
		entry, ok := dir.GetChild(name)
		if !ok {
			return nil, false, nil
		}

		current := "/" + strings.Join(components[:i+1], "/")
		switch entry.Type {
		case fsblob.EntryDir:
		case fsblob.EntryFile, fsblob.EntrySymlink:
			return nil, false, ErrNotADirectory.Wrapf("%s is a %v", current, entry.Type)
		default:
			return nil, false, d.unknownEntry(current, entry)
		}

		b, found, err = d.blobs.Load(ctx, entry.Key)
		if err != nil {
			return nil, false, err
		}
		if !found {
			d.l.Debug("directory entry points to a missing blob", zap.String("path", current), zap.Stringer("blob", entry.Key))
			return nil, false, nil
		}
		if dir, err = fsblob.LoadDirBlob(ctx, b); err != nil {
			return nil, false, d.inconsistent(current, entry.Key, err)
		}
	}
	return dir, true, nil
}

// inconsistent reports a blob which does not hold what its directory entry says as an I/O fault.
// Other errors are returned unchanged.
func (d *Device) inconsistent(p string, key blockstore.Key, err error) error {
	if !errors.Is(err, fsblob.ErrNotADirectory) && !errors.Is(err, fsblob.ErrNotAFile) &&
		!errors.Is(err, fsblob.ErrNotASymlink) && !errors.Is(err, fsblob.ErrCorruptBlob) {
		return err
	}
	d.l.Error("directory entry does not match its blob",
		zap.String("path", p),
		zap.Stringer("blob", key),
		zap.Error(err),
	)
	return ErrIO.Wrapf("%s: %v", p, err)
}

func (d *Device) unknownEntry(p string, entry fsblob.Entry) error {
	d.l.Error("directory entry with an unknown type",
		zap.String("path", p),
		zap.Uint8("type", uint8(entry.Type)),
		zap.Stringer("blob", entry.Key),
	)
	return ErrIO.Wrapf("%s has unknown entry type %d", p, entry.Type)
}

// LoadDir resolves an absolute path to a directory. It fails with ErrNotADirectory if the path points to something else.
func (d *Device) LoadDir(ctx context.Context, p string) (*fsblob.DirBlob, bool, error) {
	n, found, err := d.Load(ctx, p)
	if err != nil || !found {
		return nil, false, err
	}
	if !n.IsDir() {
		return nil, false, ErrNotADirectory.Wrapf("%s is a %v", p, n.Kind)
	}
	if n.Kind == KindRoot {
		return d.loadDir(ctx, nil)
	}

	b, found, err := d.blobs.Load(ctx, n.Key)
	if err != nil || !found {
		return nil, false, err
	}
	dir, err := fsblob.LoadDirBlob(ctx, b)
	if err != nil {
		return nil, false, d.inconsistent(p, n.Key, err)
	}
	return dir, true, nil
}

// LoadFile resolves an absolute path to a regular file. It fails with ErrNotAFile if the path points to something else.
func (d *Device) LoadFile(ctx context.Context, p string) (*fsblob.FileBlob, bool, error) {
	n, found, err := d.Load(ctx, p)
	if err != nil || !found {
		return nil, false, err
	}
	if n.Kind != KindFile {
		return nil, false, ErrNotAFile.Wrapf("%s is a %v", p, n.Kind)
	}

	b, found, err := d.blobs.Load(ctx, n.Key)
	if err != nil || !found {
		return nil, false, err
	}
	f, err := fsblob.LoadFileBlob(ctx, b)
	if err != nil {
		return nil, false, d.inconsistent(p, n.Key, err)
	}
	return f, true, nil
}

// LoadSymlink resolves an absolute path to a symlink. It fails with ErrNotASymlink if the path points to something else.
func (d *Device) LoadSymlink(ctx context.Context, p string) (*fsblob.SymlinkBlob, bool, error) {
	n, found, err := d.Load(ctx, p)
	if err != nil || !found {
		return nil, false, err
	}
	if n.Kind != KindSymlink {
		return nil, false, ErrNotASymlink.Wrapf("%s is a %v", p, n.Kind)
	}

	b, found, err := d.blobs.Load(ctx, n.Key)
	if err != nil || !found {
		return nil, false, err
	}
	s, err := fsblob.LoadSymlinkBlob(ctx, b)
	if err != nil {
		return nil, false, d.inconsistent(p, n.Key, err)
	}
	return s, true, nil
}
