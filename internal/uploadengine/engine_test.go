package uploadengine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/chunkupload/internal/apiclient"
	"github.com/tonimelisma/chunkupload/internal/uploadmodel"
)

const testChunkSize = 1048576

func newTestEngine(t *testing.T, client APIClient, blobs *fakeBlobs, store *fakeStore, cfg Config) (*Engine, *recorder) {
	t.Helper()

	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = testChunkSize
	}

	if cfg.MaxConcurrentChunks == 0 {
		cfg.MaxConcurrentChunks = 3
	}

	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}

	if cfg.InitialRetryDelay == 0 {
		cfg.InitialRetryDelay = 20 * time.Millisecond
	}

	rec := newRecorder()
	eng := New(client, blobs, fakeHasher{}, store, cfg, rec.callbacks(), nil)

	go eng.Run()
	t.Cleanup(eng.Close)

	return eng, rec
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 2*time.Millisecond)
}

// Scenario 1: happy path, spec.md §8.
func TestEngine_HappyPath(t *testing.T) {
	blobs := newFakeBlobs()
	blobs.put("ref1", 2621440)

	client := &fakeAPIClient{
		initiateResp: &apiclient.InitiateResponse{UploadID: "u1", ChunkSize: testChunkSize, TotalChunks: 3},
		finalizeResp: &apiclient.FinalizeResponse{Success: true, UploadID: "u1", FileID: "file-xyz"},
	}
	store := newFakeStore()

	eng, rec := newTestEngine(t, client, blobs, store, Config{})

	eng.Start("ref1", uploadmodel.FileDescriptor{ID: "f1", Name: "clip.mp4", MimeType: "video/mp4"})

	eventually(t, func() bool { return rec.hasStatus("f1", uploadmodel.StatusCompleted) })

	assert.ElementsMatch(t, []int{0, 1, 2}, client.chunkIndices())

	last, ok := rec.lastProgress("f1")
	require.True(t, ok)
	assert.Equal(t, int64(2621440), last.uploaded)
	assert.Equal(t, int64(2621440), last.total)

	assert.Equal(t, 1, client.finalizeCalls)
}

// Scenario 2: pause aborts in-flight chunks; resume re-uploads only the
// incomplete ones; eventual completion.
func TestEngine_PauseResume(t *testing.T) {
	blobs := newFakeBlobs()
	blobs.put("ref2", 2*testChunkSize)

	block := make(chan struct{})

	client := &fakeAPIClient{
		initiateResp: &apiclient.InitiateResponse{UploadID: "u2", ChunkSize: testChunkSize, TotalChunks: 2},
		finalizeResp: &apiclient.FinalizeResponse{Success: true, UploadID: "u2", FileID: "file-2"},
		chunkHandler: func(ctx context.Context, req apiclient.UploadChunkRequest) (*apiclient.UploadChunkResponse, error) {
			select {
			case <-block:
				return &apiclient.UploadChunkResponse{Success: true, UploadID: req.UploadID, ChunkIndex: req.ChunkIndex}, nil
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: aborted", apiclient.ErrCancelled)
			}
		},
	}
	store := newFakeStore()

	eng, rec := newTestEngine(t, client, blobs, store, Config{})

	eng.Start("ref2", uploadmodel.FileDescriptor{ID: "f2", Name: "big.bin", MimeType: "application/octet-stream"})

	eventually(t, func() bool { return client.chunkCallCount() >= 2 })

	eng.Pause("f2")

	eventually(t, func() bool { return rec.hasStatus("f2", uploadmodel.StatusPaused) })

	close(block) // subsequent (post-resume) attempts succeed immediately

	eng.Resume("f2")

	eventually(t, func() bool { return rec.hasStatus("f2", uploadmodel.StatusCompleted) })

	last, ok := rec.lastProgress("f2")
	require.True(t, ok)
	assert.Equal(t, int64(2*testChunkSize), last.uploaded)
}

// Scenario 3: cancel mid-upload prevents finalize and completion.
func TestEngine_CancelDuringUpload(t *testing.T) {
	blobs := newFakeBlobs()
	blobs.put("ref3", testChunkSize)

	client := &fakeAPIClient{
		initiateResp: &apiclient.InitiateResponse{UploadID: "u3", ChunkSize: testChunkSize, TotalChunks: 1},
		finalizeResp: &apiclient.FinalizeResponse{Success: true, UploadID: "u3", FileID: "file-3"},
		chunkHandler: func(ctx context.Context, req apiclient.UploadChunkRequest) (*apiclient.UploadChunkResponse, error) {
			<-ctx.Done()
			return nil, fmt.Errorf("%w: aborted", apiclient.ErrCancelled)
		},
	}
	store := newFakeStore()

	eng, rec := newTestEngine(t, client, blobs, store, Config{})

	eng.Start("ref3", uploadmodel.FileDescriptor{ID: "f3", Name: "one-chunk.bin", MimeType: "application/octet-stream"})

	eventually(t, func() bool { return client.chunkCallCount() >= 1 })

	eng.Cancel("f3")

	eventually(t, func() bool { return !store.has("f3") })

	// Give any stray completion path a moment to (incorrectly) fire.
	time.Sleep(50 * time.Millisecond)

	assert.False(t, rec.hasStatus("f3", uploadmodel.StatusCompleted))
	assert.Equal(t, 0, client.finalizeCalls)
}

// Scenario 4: server dedup hit skips chunking entirely.
func TestEngine_ServerDedup(t *testing.T) {
	blobs := newFakeBlobs()
	blobs.put("ref4", 500)

	fileID := "existing"
	client := &fakeAPIClient{
		initiateResp: &apiclient.InitiateResponse{UploadID: "u4", TotalChunks: 0, FileID: &fileID},
	}
	store := newFakeStore()

	eng, rec := newTestEngine(t, client, blobs, store, Config{})

	eng.Start("ref4", uploadmodel.FileDescriptor{ID: "f4", Name: "dup.bin", MimeType: "application/octet-stream"})

	eventually(t, func() bool { return rec.hasStatus("f4", uploadmodel.StatusCompleted) })

	assert.Equal(t, 0, client.chunkCallCount())
	assert.Equal(t, 1, rec.countStatus("f4", uploadmodel.StatusCompleted))

	last, ok := rec.lastProgress("f4")
	require.True(t, ok)
	assert.Equal(t, int64(500), last.uploaded)
	assert.Equal(t, int64(500), last.total)
}

// Scenario 5: a chunk fails twice with a network error, then succeeds.
func TestEngine_RetrySuccess(t *testing.T) {
	blobs := newFakeBlobs()
	blobs.put("ref5", testChunkSize)

	var attempts int

	client := &fakeAPIClient{
		initiateResp: &apiclient.InitiateResponse{UploadID: "u5", ChunkSize: testChunkSize, TotalChunks: 1},
		finalizeResp: &apiclient.FinalizeResponse{Success: true, UploadID: "u5", FileID: "file-5"},
		chunkHandler: func(_ context.Context, req apiclient.UploadChunkRequest) (*apiclient.UploadChunkResponse, error) {
			attempts++
			if attempts < 3 {
				return nil, fmt.Errorf("%w: flaky", apiclient.ErrNetworkUnavailable)
			}

			return &apiclient.UploadChunkResponse{Success: true, UploadID: req.UploadID, ChunkIndex: req.ChunkIndex}, nil
		},
	}
	store := newFakeStore()

	eng, rec := newTestEngine(t, client, blobs, store, Config{})

	eng.Start("ref5", uploadmodel.FileDescriptor{ID: "f5", Name: "flaky.bin", MimeType: "application/octet-stream"})

	eventually(t, func() bool { return rec.hasStatus("f5", uploadmodel.StatusCompleted) })

	assert.Equal(t, 3, client.chunkCallCount())
	assert.Equal(t, 0, rec.countStatus("f5", uploadmodel.StatusError))
}

// Scenario 6: restart recovery — a session persisted with one of three
// chunks already uploaded resumes and uploads only the remainder.
func TestEngine_RestartRecovery(t *testing.T) {
	blobs := newFakeBlobs()
	blobs.put("ref6", 3*testChunkSize)

	client := &fakeAPIClient{
		finalizeResp: &apiclient.FinalizeResponse{Success: true, UploadID: "u6", FileID: "file-6"},
	}
	store := newFakeStore()
	store.preload("f6", uploadmodel.Session{
		ServerUploadID: "u6",
		SourceRef:      "ref6",
		Descriptor:     uploadmodel.FileDescriptor{ID: "f6", Name: "resumed.bin", Size: 3 * testChunkSize},
		TotalChunks:    3,
		ChunkSize:      testChunkSize,
		UploadedChunks: map[int]struct{}{0: {}},
		UploadedBytes:  testChunkSize,
		Status:         uploadmodel.StatusUploading,
		CreatedAt:      time.Now(),
	})

	eng, rec := newTestEngine(t, client, blobs, store, Config{})

	eng.RestoreSessions()

	eventually(t, func() bool { return rec.hasStatus("f6", uploadmodel.StatusCompleted) })

	assert.ElementsMatch(t, []int{1, 2}, client.chunkIndices())
	assert.Equal(t, 1, client.finalizeCalls)
}

// Idempotence law (spec.md §8): start(ref, d) is a no-op once d.id has a
// session.
func TestEngine_StartIsIdempotent(t *testing.T) {
	blobs := newFakeBlobs()
	blobs.put("ref7", testChunkSize)

	client := &fakeAPIClient{
		initiateResp: &apiclient.InitiateResponse{UploadID: "u7", ChunkSize: testChunkSize, TotalChunks: 1},
		finalizeResp: &apiclient.FinalizeResponse{Success: true, UploadID: "u7", FileID: "file-7"},
	}
	store := newFakeStore()

	eng, rec := newTestEngine(t, client, blobs, store, Config{})

	descriptor := uploadmodel.FileDescriptor{ID: "f7", Name: "one.bin", MimeType: "application/octet-stream"}
	eng.Start("ref7", descriptor)
	eng.Start("ref7", descriptor)

	eventually(t, func() bool { return rec.hasStatus("f7", uploadmodel.StatusCompleted) })

	assert.Equal(t, 1, len(client.initiateCalls))
}

// classifyErr is exercised indirectly above; this checks it surfaces the
// server's own message for an APIError.
func TestClassifyErr_PrefersAPIErrorMessage(t *testing.T) {
	err := &apiclient.APIError{StatusCode: 500, Message: "upstream exploded", Err: apiclient.ErrServerError}
	assert.Equal(t, "upstream exploded", classifyErr(err))

	assert.Equal(t, "network unavailable", classifyErr(apiclient.ErrNetworkUnavailable))
	assert.Equal(t, "cancelled", classifyErr(apiclient.ErrCancelled))
	assert.Equal(t, "", classifyErr(nil))
}
