package sessionstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/chunkupload/internal/uploadmodel"
)

func TestSaveAggregate_DropsCompletedAndIdleItems(t *testing.T) {
	store := newTestStore(t)

	state := uploadmodel.AggregateState{Items: []uploadmodel.UploadItem{
		{File: uploadmodel.FileDescriptor{ID: "a"}, Status: uploadmodel.StatusUploading, Progress: uploadmodel.NewProgress(1, 2)},
		{File: uploadmodel.FileDescriptor{ID: "b"}, Status: uploadmodel.StatusCompleted, Progress: uploadmodel.NewProgress(2, 2)},
		{File: uploadmodel.FileDescriptor{ID: "c"}, Status: uploadmodel.StatusIdle},
	}}

	require.NoError(t, store.SaveAggregate(state))

	loaded, err := store.LoadAggregate()
	require.NoError(t, err)
	require.Len(t, loaded.Items, 1)
	assert.Equal(t, "a", loaded.Items[0].File.ID)
}

func TestLoadAggregate_EmptyBeforeAnySave(t *testing.T) {
	store := newTestStore(t)

	loaded, err := store.LoadAggregate()
	require.NoError(t, err)
	assert.Empty(t, loaded.Items)
}

func TestClearAggregate_RemovesSnapshot(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveAggregate(uploadmodel.AggregateState{Items: []uploadmodel.UploadItem{
		{File: uploadmodel.FileDescriptor{ID: "a"}, Status: uploadmodel.StatusQueued},
	}}))

	require.NoError(t, store.ClearAggregate())

	loaded, err := store.LoadAggregate()
	require.NoError(t, err)
	assert.Empty(t, loaded.Items)
}
