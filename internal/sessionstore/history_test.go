package sessionstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/chunkupload/internal/uploadmodel"
)

func TestHistory_AppendAndLoadNewestFirst(t *testing.T) {
	store := newTestStore(t)
	base := time.Now()

	require.NoError(t, store.AppendHistory(uploadmodel.HistoryEntry{
		ID: "a", Name: "a.bin", Size: 1, MimeType: "application/octet-stream", CompletedAt: base,
	}))
	require.NoError(t, store.AppendHistory(uploadmodel.HistoryEntry{
		ID: "b", Name: "b.bin", Size: 2, MimeType: "application/octet-stream", CompletedAt: base.Add(time.Minute),
	}))

	loaded, err := store.LoadHistory()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "b", loaded[0].ID, "newest entry must come first")
	assert.Equal(t, "a", loaded[1].ID)
}

func TestHistory_PruneBeforeCutoffRemovesOldEntries(t *testing.T) {
	store := newTestStore(t)
	base := time.Now()

	require.NoError(t, store.AppendHistory(uploadmodel.HistoryEntry{ID: "old", Name: "old", Size: 1, CompletedAt: base.Add(-48 * time.Hour)}))
	require.NoError(t, store.AppendHistory(uploadmodel.HistoryEntry{ID: "new", Name: "new", Size: 1, CompletedAt: base}))

	require.NoError(t, store.PruneHistoryBefore(base.Add(-time.Hour).Unix()))

	loaded, err := store.LoadHistory()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "new", loaded[0].ID)
}

func TestHistory_ClearRemovesAllEntries(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.AppendHistory(uploadmodel.HistoryEntry{ID: "a", Name: "a", Size: 1, CompletedAt: time.Now()}))

	require.NoError(t, store.ClearHistory())

	loaded, err := store.LoadHistory()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
