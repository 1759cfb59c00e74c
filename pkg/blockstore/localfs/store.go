// Copyright © 2018 One Concern

// Package localfs stores blocks as files on an afero file system.
//
// Each block is a file named after the hex representation of its key,
// nested under a directory named after the first 3 hex digits.
package localfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/oneconcern/cryptfs/pkg/blockstore"
	"github.com/spf13/afero"
)

const (
	prefixLen = 3

	// blocks are staged there then renamed into place
	putStageName = ".put-stage"
)

// New creates a block store on a local file system.
//
// When fs is nil, blocks are stored on the OS file system, under ".cryptfs/blocks".
func New(fs afero.Fs) (blockstore.BlockStore, error) {
	if fs == nil {
		fs = afero.NewBasePathFs(afero.NewOsFs(), filepath.Join(".cryptfs", "blocks"))
	}
	if err := fs.MkdirAll(putStageName, 0700); err != nil {
		return nil, fmt.Errorf("ensuring put staging directory for %q: %v", putStageName, err)
	}
	return &localFS{fs: fs}, nil
}

type localFS struct {
	fs afero.Fs

	// serializes exclusive creations, which are a Stat+Rename sequence
	createMx sync.Mutex
}

func blockPath(key blockstore.Key) string {
	s := key.String()
	return filepath.Join(s[:prefixLen], s[prefixLen:])
}

func (l *localFS) Exists(_ context.Context, key blockstore.Key) (bool, error) {
	fi, err := l.fs.Stat(blockPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !fi.IsDir(), nil
}

func (l *localFS) Create(ctx context.Context, data []byte) (blockstore.Key, error) {
	return blockstore.CreateWithRandomKey(ctx, l, data)
}

func (l *localFS) TryCreate(ctx context.Context, key blockstore.Key, data []byte) (bool, error) {
	l.createMx.Lock()
	defer l.createMx.Unlock()

	has, err := l.Exists(ctx, key)
	if err != nil {
		return false, err
	}
	if has {
		return false, nil
	}
	return true, l.put(key, data)
}

func (l *localFS) Store(_ context.Context, key blockstore.Key, data []byte) error {
	return l.put(key, data)
}

// put writes a block in the staging area, then renames it into place
func (l *localFS) put(key blockstore.Key, data []byte) error {
	stage, err := afero.TempFile(l.fs, putStageName, key.String())
	if err != nil {
		return fmt.Errorf("create staged block for %v: %v", key, err)
	}
	stageName := stage.Name()
	if _, err = stage.Write(data); err != nil {
		_ = stage.Close()
		_ = l.fs.Remove(stageName)
		return fmt.Errorf("write block %v: %v", key, err)
	}
	if err = stage.Close(); err != nil {
		_ = l.fs.Remove(stageName)
		return err
	}

	target := blockPath(key)
	// Rename() doesn't create directories automatically
	if err = l.fs.MkdirAll(filepath.Dir(target), 0700); err != nil {
		return fmt.Errorf("ensuring directories for %q: %v", target, err)
	}
	return l.fs.Rename(stageName, target)
}

func (l *localFS) Load(_ context.Context, key blockstore.Key) ([]byte, bool, error) {
	f, err := l.fs.Open(blockPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, false, fmt.Errorf("read block %v: %v", key, err)
	}
	return data, true, nil
}

func (l *localFS) Remove(_ context.Context, key blockstore.Key) (bool, error) {
	if err := l.fs.Remove(blockPath(key)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("removing %v: %v", key, err)
	}
	return true, nil
}

func (l *localFS) NumBlocks(_ context.Context) (uint64, error) {
	const root = "."
	var count uint64
	err := afero.Walk(l.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == putStageName {
				return filepath.SkipDir
			}
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (l *localFS) BlockSizeFromPhysicalBlockSize(blockSize uint64) uint64 {
	return blockSize
}

func (l *localFS) Close() error {
	return nil
}

func (l *localFS) String() string {
	const localfs = "localfs"
	switch fs := l.fs.(type) {
	case *afero.BasePathFs:
		pp, err := fs.RealPath("")
		if err != nil {
			return localfs
		}
		return localfs + "@" + pp
	default:
		return localfs
	}
}
