// Package onblocks implements blobs as trees of fixed-size blocks.
//
// Leaves hold data, inner nodes hold the keys of their children. All leaves
// are at the same depth and all of them but the last one are full. The block
// holding the root of the tree is never moved: its key is the blob key.
package onblocks

import (
	"context"

	"github.com/im7mortal/kmutex"
	"github.com/oneconcern/cryptfs/pkg/blobstore"
	"github.com/oneconcern/cryptfs/pkg/blockstore"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// New builds a blob store on top of a block store. The blob store owns base.
func New(base blockstore.BlockStore, opts ...Option) (blobstore.BlobStore, error) {
	s := &blobStore{
		base:              base,
		physicalBlockSize: DefaultBlockSize,
		concurrency:       defaultConcurrency,
		l:                 zap.NewNop(),
		locks:             kmutex.New(),
	}
	for _, apply := range opts {
		apply(s)
	}

	var err error
	s.layout, err = newLayout(base.BlockSizeFromPhysicalBlockSize(s.physicalBlockSize))
	if err != nil {
		return nil, err
	}
	s.l.Debug("blob store ready",
		zap.Uint64("physicalBlockSize", s.physicalBlockSize),
		zap.Uint64("maxLeafBytes", s.layout.maxLeafBytes),
		zap.Uint64("maxChildren", s.layout.maxChildren),
	)
	return s, nil
}

type blobStore struct {
	base              blockstore.BlockStore
	physicalBlockSize uint64
	layout            layout
	concurrency       int
	l                 *zap.Logger

	// per-blob locks
	locks *kmutex.Kmutex
}

func (s *blobStore) Create(ctx context.Context) (blobstore.Blob, error) {
	root := &node{}
	key, err := s.base.Create(ctx, s.layout.encode(root))
	if err != nil {
		return nil, err
	}
	s.l.Debug("blob created", zap.Stringer("blob", key))
	return &blob{store: s, key: key}, nil
}

func (s *blobStore) Load(ctx context.Context, key blockstore.Key) (blobstore.Blob, bool, error) {
	if _, found, err := s.loadNode(ctx, key); err != nil || !found {
		return nil, found, err
	}
	return &blob{store: s, key: key}, true, nil
}

func (s *blobStore) Remove(ctx context.Context, b blobstore.Blob) error {
	key := b.Key()
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	root, found, err := s.loadNode(ctx, key)
	if err != nil {
		return err
	}
	if !found {
		return blobstore.ErrBlobNotFound.Wrapf("blob %v", key)
	}
	return s.removeTree(ctx, root)
}

func (s *blobStore) NumBlocks(ctx context.Context) (uint64, error) {
	return s.base.NumBlocks(ctx)
}

func (s *blobStore) Close() error {
	return s.base.Close()
}

func (s *blobStore) String() string {
	return "blobs(" + s.base.String() + ")"
}

func (s *blobStore) loadNode(ctx context.Context, key blockstore.Key) (*node, bool, error) {
	data, found, err := s.base.Load(ctx, key)
	if err != nil || !found {
		return nil, found, err
	}
	n, err := s.layout.decode(key, data)
	if err != nil {
		return nil, false, err
	}
	return n, true, nil
}

// mustLoadNode loads a node which is referenced by the tree
func (s *blobStore) mustLoadNode(ctx context.Context, key blockstore.Key) (*node, error) {
	n, found, err := s.loadNode(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, blobstore.ErrCorruptTree.Wrapf("missing block %v", key)
	}
	return n, nil
}

func (s *blobStore) storeNode(ctx context.Context, n *node) error {
	return s.base.Store(ctx, n.key, s.layout.encode(n))
}

func (s *blobStore) createNode(ctx context.Context, n *node) error {
	key, err := s.base.Create(ctx, s.layout.encode(n))
	if err != nil {
		return err
	}
	n.key = key
	return nil
}

// removeTree removes all the blocks of a tree, level by level
func (s *blobStore) removeTree(ctx context.Context, root *node) error {
	keys := []blockstore.Key{root.key}
	level := []*node{root}
	for len(level) > 0 && !level[0].isLeaf() {
		var children []blockstore.Key
		for _, n := range level {
			children = append(children, n.children()...)
		}
		keys = append(keys, children...)
		if level[0].depth == 1 {
			// children are leaves: no need to load them
			break
		}

		next := make([]*node, len(children))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.concurrency)
		for i, k := range children {
			i, k := i, k
			g.Go(func() error {
				n, err := s.mustLoadNode(gctx, k)
				next[i] = n
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		level = next
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, k := range keys {
		k := k
		g.Go(func() error {
			_, err := s.base.Remove(gctx, k)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	s.l.Debug("blob removed", zap.Stringer("blob", root.key), zap.Int("blocks", len(keys)))
	return nil
}
