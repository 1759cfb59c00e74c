package onblocks

import (
	"context"
	"io"

	"github.com/oneconcern/cryptfs/pkg/blobstore"
)

// rightmost walks down the right edge of the tree: it returns the number of leaves and the last leaf
func (s *blobStore) rightmost(ctx context.Context, root *node) (uint64, *node, error) {
	var leaves uint64
	n := root
	for !n.isLeaf() {
		leaves += uint64(n.size-1) * s.layout.leavesPerChild(n.depth)
		child, err := s.loadChild(ctx, n, uint64(n.size)-1)
		if err != nil {
			return 0, nil, err
		}
		n = child
	}
	return leaves + 1, n, nil
}

func (s *blobStore) loadChild(ctx context.Context, parent *node, i uint64) (*node, error) {
	child, err := s.mustLoadNode(ctx, parent.child(i))
	if err != nil {
		return nil, err
	}
	if child.depth != parent.depth-1 {
		return nil, blobstore.ErrCorruptTree.Wrapf("block %v at depth %d has a child %v at depth %d",
			parent.key, parent.depth, child.key, child.depth)
	}
	return child, nil
}

func (s *blobStore) size(ctx context.Context, root *node) (uint64, error) {
	leaves, last, err := s.rightmost(ctx, root)
	if err != nil {
		return 0, err
	}
	return (leaves-1)*s.layout.maxLeafBytes + uint64(last.size), nil
}

// pathToLeaf returns the nodes from the root down to leaf i
func (s *blobStore) pathToLeaf(ctx context.Context, root *node, i uint64) ([]*node, error) {
	path := []*node{root}
	n := root
	for !n.isLeaf() {
		per := s.layout.leavesPerChild(n.depth)
		idx := i / per
		i %= per
		if idx >= uint64(n.size) {
			return nil, blobstore.ErrCorruptTree.Wrapf("leaf is out of the range of block %v", n.key)
		}
		child, err := s.loadChild(ctx, n, idx)
		if err != nil {
			return nil, err
		}
		path = append(path, child)
		n = child
	}
	return path, nil
}

func (s *blobStore) leaf(ctx context.Context, root *node, i uint64) (*node, error) {
	path, err := s.pathToLeaf(ctx, root, i)
	if err != nil {
		return nil, err
	}
	return path[len(path)-1], nil
}

// addLeaf appends a new leaf to a tree holding the given number of leaves
func (s *blobStore) addLeaf(ctx context.Context, root *node, leaves uint64, data []byte) error {
	if leaves == s.layout.capacity(root.depth) {
		// the tree is full: move the root content to a new block, which becomes the only child of the root
		moved := &node{}
		moved.takeContent(root)
		if err := s.createNode(ctx, moved); err != nil {
			return err
		}
		root.depth++
		root.size = 0
		root.payload = nil
		root.appendChild(moved.key)
	}

	n := root
	i := leaves
	for {
		per := s.layout.leavesPerChild(n.depth)
		idx := i / per
		i %= per
		if idx < uint64(n.size) {
			child, err := s.loadChild(ctx, n, idx)
			if err != nil {
				return err
			}
			n = child
			continue
		}

		// build the new rightmost subtree bottom-up, then link it
		sub := &node{size: uint32(len(data)), payload: data}
		if err := s.createNode(ctx, sub); err != nil {
			return err
		}
		for d := uint8(1); d < n.depth; d++ {
			parent := &node{depth: d}
			parent.appendChild(sub.key)
			if err := s.createNode(ctx, parent); err != nil {
				return err
			}
			sub = parent
		}
		n.appendChild(sub.key)
		return s.storeNode(ctx, n)
	}
}

// removeLastLeaf removes the last leaf of a tree holding more than one leaf, with the inner nodes left empty
func (s *blobStore) removeLastLeaf(ctx context.Context, root *node, leaves uint64) error {
	path, err := s.pathToLeaf(ctx, root, leaves-1)
	if err != nil {
		return err
	}
	for j := len(path) - 2; j >= 0; j-- {
		p := path[j]
		p.removeLastChild()
		if p.size > 0 || j == 0 {
			if err = s.storeNode(ctx, p); err != nil {
				return err
			}
			break
		}
	}
	for j := len(path) - 1; j > 0; j-- {
		if !path[j].isLeaf() && path[j].size > 0 {
			break
		}
		if _, err = s.base.Remove(ctx, path[j].key); err != nil {
			return err
		}
	}
	return nil
}

// collapse shrinks the depth of the tree while the root has a single child
func (s *blobStore) collapse(ctx context.Context, root *node) error {
	for !root.isLeaf() && root.size == 1 {
		child, err := s.loadChild(ctx, root, 0)
		if err != nil {
			return err
		}
		root.takeContent(child)
		if err = s.storeNode(ctx, root); err != nil {
			return err
		}
		if _, err = s.base.Remove(ctx, child.key); err != nil {
			return err
		}
	}
	return nil
}

func (s *blobStore) resize(ctx context.Context, root *node, newSize uint64) error {
	leaves, last, err := s.rightmost(ctx, root)
	if err != nil {
		return err
	}
	maxLeaf := s.layout.maxLeafBytes
	current := (leaves-1)*maxLeaf + uint64(last.size)
	if newSize == current {
		return nil
	}
	target := s.layout.leavesFor(newSize)

	if newSize > current {
		if target == leaves {
			last.resizeLeaf(newSize - (leaves-1)*maxLeaf)
			return s.storeNode(ctx, last)
		}
		last.resizeLeaf(maxLeaf)
		if err = s.storeNode(ctx, last); err != nil {
			return err
		}
		for ; leaves < target; leaves++ {
			size := maxLeaf
			if leaves == target-1 {
				size = newSize - (target-1)*maxLeaf
			}
			if err = s.addLeaf(ctx, root, leaves, make([]byte, size)); err != nil {
				return err
			}
		}
		return nil
	}

	for ; leaves > target; leaves-- {
		if err = s.removeLastLeaf(ctx, root, leaves); err != nil {
			return err
		}
	}
	if err = s.collapse(ctx, root); err != nil {
		return err
	}
	_, last, err = s.rightmost(ctx, root)
	if err != nil {
		return err
	}
	last.resizeLeaf(newSize - (target-1)*maxLeaf)
	return s.storeNode(ctx, last)
}

func (s *blobStore) readAt(ctx context.Context, root *node, p []byte, off uint64) (int, error) {
	size, err := s.size(ctx, root)
	if err != nil {
		return 0, err
	}
	if off >= size {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := uint64(len(p))
	if n > size-off {
		n = size - off
	}

	maxLeaf := s.layout.maxLeafBytes
	var done uint64
	for done < n {
		pos := off + done
		inLeaf := pos % maxLeaf
		leaf, err := s.leaf(ctx, root, pos/maxLeaf)
		if err != nil {
			return int(done), err
		}
		if inLeaf >= uint64(len(leaf.payload)) {
			return int(done), blobstore.ErrCorruptTree.Wrapf("leaf %v is shorter than expected", leaf.key)
		}
		done += uint64(copy(p[done:n], leaf.payload[inLeaf:]))
	}
	if n < uint64(len(p)) {
		return int(n), io.EOF
	}
	return int(n), nil
}

func (s *blobStore) writeAt(ctx context.Context, root *node, p []byte, off uint64) error {
	if len(p) == 0 {
		return nil
	}
	end := off + uint64(len(p))
	size, err := s.size(ctx, root)
	if err != nil {
		return err
	}
	if end > size {
		if err = s.resize(ctx, root, end); err != nil {
			return err
		}
	}

	maxLeaf := s.layout.maxLeafBytes
	var done uint64
	for done < uint64(len(p)) {
		pos := off + done
		inLeaf := pos % maxLeaf
		leaf, err := s.leaf(ctx, root, pos/maxLeaf)
		if err != nil {
			return err
		}
		if inLeaf >= uint64(len(leaf.payload)) {
			return blobstore.ErrCorruptTree.Wrapf("leaf %v is shorter than expected", leaf.key)
		}
		done += uint64(copy(leaf.payload[inLeaf:], p[done:]))
		if err = s.storeNode(ctx, leaf); err != nil {
			return err
		}
	}
	return nil
}
