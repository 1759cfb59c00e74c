package onblocks

import (
	"encoding/binary"
	"fmt"

	"github.com/oneconcern/cryptfs/pkg/blobstore"
	"github.com/oneconcern/cryptfs/pkg/blockstore"
)

// Every block of a blob starts with a header:
//
//	[0:2] format version (uint16, little endian)
//	[2]   depth: 0 for a leaf, the height of the subtree otherwise
//	[3]   reserved
//	[4:8] size (uint32, little endian): number of data bytes for a leaf, number of children otherwise
//
// The header is followed by the payload (data bytes or child keys), then zero padding up to the block size.
const (
	nodeFormatVersion uint16 = 1
	nodeHeaderSize           = 8
)

type node struct {
	key     blockstore.Key
	depth   uint8
	size    uint32
	payload []byte
}

func (n *node) isLeaf() bool {
	return n.depth == 0
}

func (n *node) child(i uint64) blockstore.Key {
	var k blockstore.Key
	copy(k[:], n.payload[i*blockstore.KeySize:])
	return k
}

func (n *node) lastChild() blockstore.Key {
	return n.child(uint64(n.size) - 1)
}

func (n *node) children() []blockstore.Key {
	keys := make([]blockstore.Key, n.size)
	for i := range keys {
		keys[i] = n.child(uint64(i))
	}
	return keys
}

func (n *node) appendChild(k blockstore.Key) {
	n.payload = append(n.payload, k[:]...)
	n.size++
}

func (n *node) removeLastChild() {
	n.size--
	n.payload = n.payload[:uint64(n.size)*blockstore.KeySize]
}

// resizeLeaf truncates or zero-extends the data held by a leaf
func (n *node) resizeLeaf(size uint64) {
	if size <= uint64(len(n.payload)) {
		n.payload = n.payload[:size]
	} else {
		n.payload = append(n.payload, make([]byte, size-uint64(len(n.payload)))...)
	}
	n.size = uint32(size)
}

// takeContent makes n hold the content of other, keeping its own key
func (n *node) takeContent(other *node) {
	n.depth = other.depth
	n.size = other.size
	n.payload = append([]byte(nil), other.payload...)
}

// layout holds the geometry of the tree for a given block size
type layout struct {
	blockSize    uint64
	maxLeafBytes uint64
	maxChildren  uint64
}

func newLayout(blockSize uint64) (layout, error) {
	if blockSize < nodeHeaderSize+2*blockstore.KeySize {
		return layout{}, fmt.Errorf("usable block size %d is too small to hold a blob tree", blockSize)
	}
	return layout{
		blockSize:    blockSize,
		maxLeafBytes: blockSize - nodeHeaderSize,
		maxChildren:  (blockSize - nodeHeaderSize) / blockstore.KeySize,
	}, nil
}

// leavesPerChild is the number of leaves held by a full child of a node at some depth
func (l layout) leavesPerChild(depth uint8) uint64 {
	n := uint64(1)
	for i := uint8(1); i < depth; i++ {
		n *= l.maxChildren
	}
	return n
}

// capacity is the number of leaves held by a full node at some depth
func (l layout) capacity(depth uint8) uint64 {
	n := uint64(1)
	for i := uint8(0); i < depth; i++ {
		n *= l.maxChildren
	}
	return n
}

// leavesFor is the number of leaves needed to hold size bytes. A blob always has at least one leaf.
func (l layout) leavesFor(size uint64) uint64 {
	if size == 0 {
		return 1
	}
	return (size + l.maxLeafBytes - 1) / l.maxLeafBytes
}

func (l layout) encode(n *node) []byte {
	buf := make([]byte, l.blockSize)
	binary.LittleEndian.PutUint16(buf, nodeFormatVersion)
	buf[2] = n.depth
	binary.LittleEndian.PutUint32(buf[4:], n.size)
	copy(buf[nodeHeaderSize:], n.payload)
	return buf
}

func (l layout) decode(key blockstore.Key, data []byte) (*node, error) {
	if len(data) < nodeHeaderSize {
		return nil, blobstore.ErrCorruptTree.Wrapf("block %v is too short: %d bytes", key, len(data))
	}
	if v := binary.LittleEndian.Uint16(data); v != nodeFormatVersion {
		return nil, blobstore.ErrCorruptTree.Wrapf("block %v has unsupported format version %d", key, v)
	}
	n := &node{
		key:   key,
		depth: data[2],
		size:  binary.LittleEndian.Uint32(data[4:]),
	}
	payloadLen := uint64(n.size)
	maxPayload := l.maxLeafBytes
	if !n.isLeaf() {
		if n.size == 0 {
			return nil, blobstore.ErrCorruptTree.Wrapf("inner block %v has no children", key)
		}
		payloadLen *= blockstore.KeySize
		maxPayload = l.maxChildren * blockstore.KeySize
	}
	if payloadLen > maxPayload || nodeHeaderSize+payloadLen > uint64(len(data)) {
		return nil, blobstore.ErrCorruptTree.Wrapf("block %v declares %d bytes of payload", key, payloadLen)
	}
	n.payload = append([]byte(nil), data[nodeHeaderSize:nodeHeaderSize+payloadLen]...)
	return n, nil
}
