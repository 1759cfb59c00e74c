package device

import (
	"github.com/oneconcern/cryptfs/pkg/blockstore"
	"github.com/oneconcern/cryptfs/pkg/fsblob"
)

// Kind of a resolved node
type Kind uint8

// Node kinds
const (
	KindRoot Kind = iota
	KindDir
	KindFile
	KindSymlink
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindDir:
		return "directory"
	case KindFile:
		return "file"
	case KindSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// Node is the result of resolving a path
type Node struct {
	Kind Kind
	Key  blockstore.Key

	// Entry describes the node in its parent directory. It is empty for the root.
	Entry fsblob.Entry

	// Parent is the directory holding the node. It is nil for the root.
	Parent *fsblob.DirBlob
}

// IsDir tells if the node is a directory, the root included
func (n Node) IsDir() bool {
	return n.Kind == KindRoot || n.Kind == KindDir
}

// Name of the node in its parent directory
func (n Node) Name() string {
	if n.Kind == KindRoot {
		return "/"
	}
	return n.Entry.Name
}

func kindOf(t fsblob.EntryType) (Kind, bool) {
	switch t {
	case fsblob.EntryDir:
		return KindDir, true
	case fsblob.EntryFile:
		return KindFile, true
	case fsblob.EntrySymlink:
		return KindSymlink, true
	default:
		return 0, false
	}
}
