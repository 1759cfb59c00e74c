// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"os"
	"path"
	"time"

	"github.com/oneconcern/cryptfs/pkg/blobstore"
	"github.com/oneconcern/cryptfs/pkg/blockstore"
	"github.com/oneconcern/cryptfs/pkg/device"
	"github.com/oneconcern/cryptfs/pkg/errors"
	"github.com/oneconcern/cryptfs/pkg/fsblob"
	"go.uber.org/zap"
)

var errNotFound = errors.New("no such file or directory")

// addEntry creates a blob, initializes it, then links it into the parent directory of p.
// The name, key and unset times of the entry are filled in.
func addEntry(ctx context.Context, d *device.Device, p string, e fsblob.Entry, initialize func(blobstore.Blob, blockstore.Key) error) (fsblob.Entry, error) {
	parentPath, name := path.Split(path.Clean(p))
	if err := fsblob.ValidateName(name); err != nil {
		return fsblob.Entry{}, err
	}

	parent, found, err := d.LoadDirBlob(ctx, parentPath)
	if err != nil {
		return fsblob.Entry{}, err
	}
	if !found {
		return fsblob.Entry{}, errNotFound.Wrapf("%s", parentPath)
	}
	if _, exists := parent.GetChild(name); exists {
		return fsblob.Entry{}, fsblob.ErrExists.Wrapf("%s", p)
	}

	b, err := d.CreateBlob(ctx)
	if err != nil {
		return fsblob.Entry{}, err
	}
	discard := func() {
		if rerr := d.RemoveBlob(ctx, b.Key()); rerr != nil {
			logger.Warn("could not remove orphan blob", zap.Stringer("blob", b.Key()), zap.Error(rerr))
		}
	}
	if err = initialize(b, parent.Key()); err != nil {
		discard()
		return fsblob.Entry{}, err
	}

	now := time.Now()
	e.Name, e.Key = name, b.Key()
	e.UID, e.GID = uint32(os.Getuid()), uint32(os.Getgid())
	for _, t := range []*time.Time{&e.LastAccess, &e.LastModification, &e.LastMetadataChange} {
		if t.IsZero() {
			*t = now
		}
	}
	if err = parent.AddChild(ctx, e); err != nil {
		discard()
		return fsblob.Entry{}, err
	}
	return e, nil
}

func makeDir(ctx context.Context, d *device.Device, p string) (fsblob.Entry, error) {
	return addEntry(ctx, d, p, fsblob.Entry{Type: fsblob.EntryDir, Mode: 0755},
		func(b blobstore.Blob, parent blockstore.Key) error {
			_, err := fsblob.InitializeEmptyDir(ctx, b, parent)
			return err
		})
}

func putFile(ctx context.Context, d *device.Device, p string, content []byte, mode os.FileMode, modified time.Time) (fsblob.Entry, error) {
	return addEntry(ctx, d, p, fsblob.Entry{Type: fsblob.EntryFile, Mode: uint32(mode.Perm()), LastModification: modified},
		func(b blobstore.Blob, parent blockstore.Key) error {
			f, err := fsblob.InitializeEmptyFile(ctx, b, parent)
			if err != nil {
				return err
			}
			return f.WriteAt(ctx, content, 0)
		})
}

func makeSymlink(ctx context.Context, d *device.Device, p, target string) (fsblob.Entry, error) {
	return addEntry(ctx, d, p, fsblob.Entry{Type: fsblob.EntrySymlink, Mode: 0777},
		func(b blobstore.Blob, parent blockstore.Key) error {
			_, err := fsblob.InitializeSymlink(ctx, b, parent, target)
			return err
		})
}
