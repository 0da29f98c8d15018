package sessionstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceRefs_SaveLoadClear(t *testing.T) {
	store := newTestStore(t)

	refs := map[string]string{"f1": "/tmp/f1.bin", "f2": "content://f2"}
	require.NoError(t, store.SaveSourceRefs(refs))

	loaded, err := store.LoadSourceRefs()
	require.NoError(t, err)
	assert.Equal(t, refs, loaded)

	require.NoError(t, store.ClearSourceRefs())

	loaded, err = store.LoadSourceRefs()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestSourceRefs_SaveReplacesPriorSnapshot(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SaveSourceRefs(map[string]string{"f1": "a"}))
	require.NoError(t, store.SaveSourceRefs(map[string]string{"f2": "b"}))

	loaded, err := store.LoadSourceRefs()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"f2": "b"}, loaded)
}
