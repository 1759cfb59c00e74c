package device

import (
	"github.com/oneconcern/cryptfs/pkg/blockstore/status"
	"github.com/oneconcern/cryptfs/pkg/errors"
	"github.com/oneconcern/cryptfs/pkg/fsblob"
)

var (
	// ErrIO reports an inconsistency in persisted data, such as an unknown directory entry type
	// or a root directory which cannot be found
	ErrIO = errors.New("I/O error: inconsistent file system")

	// ErrRelativePath is returned when resolving a path which does not start with a slash
	ErrRelativePath = errors.New("path is not absolute")

	// ErrDecode is returned when the configuration holds a malformed key or root identifier
	ErrDecode = errors.New("cannot decode configuration")

	// ErrNotSupported is returned by operations the device does not implement
	ErrNotSupported = status.ErrNotSupported

	// ErrNotADirectory is returned when a path goes through, or points to, something else than a directory
	ErrNotADirectory = fsblob.ErrNotADirectory

	// ErrNotAFile is returned when a path does not point to a regular file
	ErrNotAFile = fsblob.ErrNotAFile

	// ErrNotASymlink is returned when a path does not point to a symlink
	ErrNotASymlink = fsblob.ErrNotASymlink
)
