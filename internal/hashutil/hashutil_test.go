package hashutil

import (
	"crypto/md5" //nolint:gosec // test fixture parity with package under test
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/chunkupload/internal/blobstore"
)

type fakeReader struct {
	data map[string][]byte
}

func (f fakeReader) Stat(ref string) (blobstore.Info, error) {
	data, ok := f.data[ref]
	if !ok {
		return blobstore.Info{}, nil
	}

	return blobstore.Info{Exists: true, Size: int64(len(data))}, nil
}

func (f fakeReader) ReadAll(ref string) ([]byte, error) {
	data, ok := f.data[ref]
	if !ok {
		return nil, errors.New("missing")
	}

	return data, nil
}

func TestHash_Deterministic(t *testing.T) {
	payload := make([]byte, 5*1024*1024+7) // spans several 2MiB windows
	for i := range payload {
		payload[i] = byte(i % 251)
	}

	reader := fakeReader{data: map[string][]byte{"f": payload}}
	h := New(reader, 0)

	d1, err := h.Hash("f")
	require.NoError(t, err)

	d2, err := h.Hash("f")
	require.NoError(t, err)

	assert.Equal(t, d1, d2)

	want := md5.Sum(payload) //nolint:gosec // test expectation only
	assert.Equal(t, hex.EncodeToString(want[:]), d1)
}

func TestHash_SmallWindowStillCorrect(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog")
	reader := fakeReader{data: map[string][]byte{"f": payload}}
	h := New(reader, 4) // tiny window forces many digest writes

	got, err := h.Hash("f")
	require.NoError(t, err)

	want := md5.Sum(payload) //nolint:gosec // test expectation only
	assert.Equal(t, hex.EncodeToString(want[:]), got)
}

func TestHash_MissingSourceFails(t *testing.T) {
	reader := fakeReader{data: map[string][]byte{}}
	h := New(reader, 0)

	_, err := h.Hash("missing")
	require.ErrorIs(t, err, ErrHashFailed)
}
