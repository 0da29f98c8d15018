// Package blobstore abstracts access to the bytes behind a FileDescriptor's
// sourceRef. It is the client-side collaborator the upload engine reads
// from; file pickers, permission prompts, and the underlying platform file
// API are out of scope and live on the other side of this interface.
package blobstore

import (
	"errors"
	"fmt"
	"os"
)

// ErrSourceMissing is returned when the underlying file is gone between
// enqueue and upload (spec.md §4.1, §7).
var ErrSourceMissing = errors.New("blobstore: source missing")

// Info reports existence and size for a sourceRef.
type Info struct {
	Exists bool
	Size   int64
}

// Reader abstracts access to a user-selected file. Implementations are not
// required to support streaming range reads — the upload engine caches the
// full decoded byte buffer per session and slices it in memory (spec.md §9
// "Byte-slice efficiency"). Implementers with range-capable file APIs may
// add a streaming variant; it is not required by this contract.
type Reader interface {
	// Stat probes existence and size without reading content.
	Stat(sourceRef string) (Info, error)
	// ReadAll reads the full content of sourceRef. Returns ErrSourceMissing
	// if the file no longer exists.
	ReadAll(sourceRef string) ([]byte, error)
}

// LocalFS is a Reader backed by the local filesystem, where sourceRef is an
// absolute or relative file path. It exists primarily for tests and for
// desktop-class callers; mobile/web hosts supply their own Reader.
type LocalFS struct{}

// NewLocalFS creates a filesystem-backed Reader.
func NewLocalFS() *LocalFS {
	return &LocalFS{}
}

// Stat implements Reader.
func (LocalFS) Stat(sourceRef string) (Info, error) {
	fi, err := os.Stat(sourceRef)
	if errors.Is(err, os.ErrNotExist) {
		return Info{Exists: false}, nil
	}

	if err != nil {
		return Info{}, fmt.Errorf("blobstore: stat %s: %w", sourceRef, err)
	}

	return Info{Exists: true, Size: fi.Size()}, nil
}

// ReadAll implements Reader.
func (LocalFS) ReadAll(sourceRef string) ([]byte, error) {
	data, err := os.ReadFile(sourceRef)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrSourceMissing
	}

	if err != nil {
		return nil, fmt.Errorf("blobstore: read %s: %w", sourceRef, err)
	}

	return data, nil
}
