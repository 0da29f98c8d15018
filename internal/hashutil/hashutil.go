// Package hashutil computes a deterministic fingerprint of a blob's
// contents for server-side dedup keying (spec.md §4.2). MD5 is used as a
// fingerprint, not a security primitive.
package hashutil

import (
	"crypto/md5" //nolint:gosec // fingerprint for dedup keying, not a security primitive
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/tonimelisma/chunkupload/internal/blobstore"
)

// ErrHashFailed wraps read failures encountered while hashing.
var ErrHashFailed = errors.New("hashutil: hash failed")

// defaultWindowSize is the largest slice of content fed to the digest in
// one write.
const defaultWindowSize = 2 * 1024 * 1024

// Hasher computes MD5 digests over blobs read through a blobstore.Reader,
// feeding the content to the digest in bounded windows.
type Hasher struct {
	reader     blobstore.Reader
	windowSize int64
}

// New creates a Hasher that reads through the given blobstore.Reader.
// windowSize bounds each write into the digest; 0 selects the 2MiB default.
func New(reader blobstore.Reader, windowSize int64) *Hasher {
	if windowSize <= 0 {
		windowSize = defaultWindowSize
	}

	return &Hasher{reader: reader, windowSize: windowSize}
}

// Hash returns the hex-encoded MD5 digest of sourceRef's content, fed to
// the digest in ≤windowSize windows; the same bytes always yield the same
// digest. The content is first read whole through Reader.ReadAll, so memory
// use grows with the blob's size and is not bounded by the window.
func (h *Hasher) Hash(sourceRef string) (string, error) {
	data, err := h.reader.ReadAll(sourceRef)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrHashFailed, err)
	}

	digest := md5.New() //nolint:gosec // see package doc

	for off := int64(0); off < int64(len(data)); off += h.windowSize {
		end := min(off+h.windowSize, int64(len(data)))
		_, _ = digest.Write(data[off:end])
	}

	return hex.EncodeToString(digest.Sum(nil)), nil
}
