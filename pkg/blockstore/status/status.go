// Copyright © 2018 One Concern

// Package status declares error constants returned by
// implementations of the BlockStore interface.
//
// NOTE: such constants are located in a separate package to avoid
// creating undue cyclical dependencies between pkg/blockstore and one
// of its implementations.
package status

import "github.com/oneconcern/cryptfs/pkg/errors"

var (
	// Sentinel errors returned by implementations of the interface defined by blockstore.
	//
	// A missing block is never reported as an error: lookups return a found flag instead.

	// ErrUnauthorized indicates that you don't provided correct credentials to the API
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates that the backend API forbids access to the target resource
	ErrForbidden = errors.New("forbidden")

	// ErrNotSupported indicates that the backend does not support this call
	ErrNotSupported = errors.New("not supported")

	// ErrKeyCollision indicates that no free block key could be found
	ErrKeyCollision = errors.New("could not find a free block key")

	// ErrBlockTooLarge indicates that a block does not fit in the physical block size
	ErrBlockTooLarge = errors.New("block too large")

	// ErrInvalidResource indicates that the storage resource has an invalid name
	ErrInvalidResource = errors.New("invalid storage resource name")

	// ErrStorageAPI indicates any other storage API error
	ErrStorageAPI = errors.New("storage API error")

	// ErrDecryption indicates that a block could not be authenticated by the cipher
	ErrDecryption = errors.New("block decryption failed")

	// ErrCorruptBlock indicates that a block holds unexpected content
	ErrCorruptBlock = errors.New("corrupt block")

	// ErrClosed indicates that the store has been closed
	ErrClosed = errors.New("block store closed")
)
