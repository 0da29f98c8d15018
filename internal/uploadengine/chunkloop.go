package uploadengine

import (
	"context"
	"encoding/base64"
	"errors"

	"github.com/tonimelisma/chunkupload/internal/apiclient"
	"github.com/tonimelisma/chunkupload/internal/uploadmodel"
)

// scanAndDispatch is spec.md §4.5 step 5. It scans chunk indices in
// ascending order and spawns a worker for each one that is neither
// uploaded nor already in flight, up to the global MAX_CONCURRENT_CHUNKS
// cap (spec.md §5, "chunks are started in ascending index order").
func (e *Engine) scanAndDispatch(id string) {
	sess, ok := e.sessions[id]
	if !ok || sess.isPaused || sess.isCancelled || sess.model.Status == uploadmodel.StatusError {
		return
	}

	if sess.cachedBytes == nil {
		if !sess.loadingBytes {
			sess.loadingBytes = true
			go e.loadBytes(id, sess.model.SourceRef)
		}

		return
	}

	for idx := 0; idx < sess.model.TotalChunks; idx++ {
		if _, done := sess.model.UploadedChunks[idx]; done {
			continue
		}

		if _, active := sess.activeChunkUploads[idx]; active {
			continue
		}

		if !e.sem.TryAcquire(1) {
			break
		}

		ctx, cancel := context.WithCancel(e.ctx)
		token := &abortToken{cancel: cancel}

		sess.activeChunkUploads[idx] = struct{}{}
		sess.chunkAbortControllers[idx] = token

		go e.runChunkWorker(id, idx, token, ctx, sess.cachedBytes,
			sess.model.ServerUploadID, sess.model.ChunkSize, sess.model.Descriptor.Size)
	}
}

// loadBytes performs the one-time readAll described in spec.md §4.5 step 6
// ("on first chunk per session, readAll into a cached byte buffer") off the
// actor goroutine, then resumes dispatch.
func (e *Engine) loadBytes(id, sourceRef string) {
	data, err := e.blobs.ReadAll(sourceRef)

	e.enqueue(func(en *Engine) {
		sess, ok := en.sessions[id]
		if !ok {
			return
		}

		sess.loadingBytes = false

		if err != nil {
			en.failSession(id, "source missing")
			return
		}

		sess.cachedBytes = data
		en.scanAndDispatch(id)
	})
}

// runChunkWorker uploads one chunk with retry, per spec.md §4.5 steps 6-7.
// It never touches session state directly; every outcome is reported back
// as a command so mutation stays on the actor goroutine.
func (e *Engine) runChunkWorker(
	id string, idx int, token *abortToken, ctx context.Context,
	data []byte, uploadID string, chunkSize, totalSize int64,
) {
	defer e.sem.Release(1)

	start, end := chunkRange(idx, chunkSize, totalSize)
	encoded := base64.StdEncoding.EncodeToString(data[start:end])
	chunkLen := end - start

	var lastErr error

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, backoffDelay(e.initialRetryDelay, attempt)); err != nil {
				e.enqueue(func(en *Engine) { en.handleChunkAborted(id, idx, token) })
				return
			}
		}

		resp, err := e.client.UploadChunk(ctx, apiclient.UploadChunkRequest{
			UploadID: uploadID, ChunkIndex: idx, ChunkData: encoded,
		})

		switch {
		case err == nil && resp.Success:
			e.enqueue(func(en *Engine) { en.handleChunkSucceeded(id, idx, token, chunkLen) })
			return
		case err != nil && errors.Is(err, apiclient.ErrCancelled):
			e.enqueue(func(en *Engine) { en.handleChunkAborted(id, idx, token) })
			return
		case err != nil:
			lastErr = err
		default:
			lastErr = errors.New("apiclient: chunk upload rejected")
		}
	}

	e.enqueue(func(en *Engine) { en.handleChunkFailed(id, idx, token, lastErr) })
}

// releaseToken deletes the session's abort-token entry for idx only if it
// is still the exact token the caller installed (spec.md §4.5 "Abort/retry
// race discipline"); a stale handler finds a different current value and
// leaves it alone.
func releaseToken(sess *session, idx int, token *abortToken) {
	delete(sess.activeChunkUploads, idx)

	if current, exists := sess.chunkAbortControllers[idx]; exists && current == token {
		delete(sess.chunkAbortControllers, idx)
	}
}

func (e *Engine) handleChunkSucceeded(id string, idx int, token *abortToken, chunkLen int64) {
	sess, ok := e.sessions[id]
	if !ok {
		return
	}

	releaseToken(sess, idx, token)

	if sess.isCancelled {
		return
	}

	if sess.model.UploadedChunks == nil {
		sess.model.UploadedChunks = make(map[int]struct{})
	}

	sess.model.UploadedChunks[idx] = struct{}{}
	sess.model.UploadedBytes += chunkLen
	delete(sess.retryCounts, idx)

	uploaded := sess.model.UploadedBytes
	if uploaded > sess.model.Descriptor.Size {
		uploaded = sess.model.Descriptor.Size
	}

	e.callbacks.progress(id, uploaded, sess.model.Descriptor.Size)
	e.persistAll()

	e.pumpAll()

	if sess.isPaused || sess.model.Status == uploadmodel.StatusError {
		return
	}

	e.maybeFinalize(id)
}

// handleChunkAborted is the pause/cancel outcome: the chunk is simply
// un-reserved and remains eligible for re-upload (spec.md §4.5
// "Pause/Resume/Cancel semantics"). A freed slot here also re-pumps every
// session, not just this one: a Resume racing ahead of this very command
// can find the slot still marked active and dispatch nothing, so clearing
// it must itself retrigger dispatch (see pumpAll doc).
func (e *Engine) handleChunkAborted(id string, idx int, token *abortToken) {
	sess, ok := e.sessions[id]
	if !ok {
		return
	}

	releaseToken(sess, idx, token)
	e.pumpAll()
}

// handleChunkFailed is reached once MAX_RETRIES is exhausted on a
// non-cancellation error (spec.md §4.5 step 7). It stops the scheduler from
// spawning further work for this session; already in-flight sibling chunks
// are left to finish but handleChunkSucceeded checks Status before
// re-dispatching, so nothing new starts once this fires.
func (e *Engine) handleChunkFailed(id string, idx int, token *abortToken, err error) {
	sess, ok := e.sessions[id]
	if !ok {
		return
	}

	releaseToken(sess, idx, token)

	if sess.isCancelled || sess.isPaused {
		e.pumpAll()
		return
	}

	sess.model.Status = uploadmodel.StatusError
	e.pumpAll()

	e.callbacks.statusChange(id, uploadmodel.StatusError, classifyErr(err))
	e.persistAll()
}

// pumpAll re-scans every live session for dispatchable chunks. A released
// global semaphore slot should be available to whichever session is
// waiting for it, not only the session whose chunk just finished — so any
// chunk outcome pumps every session, not just its own.
func (e *Engine) pumpAll() {
	for id := range e.sessions {
		e.scanAndDispatch(id)
	}
}

// maybeFinalize is spec.md §4.5 step 8's trigger condition.
func (e *Engine) maybeFinalize(id string) {
	sess, ok := e.sessions[id]
	if !ok || sess.finalizing || sess.model.Status == uploadmodel.StatusError {
		return
	}

	if len(sess.model.UploadedChunks) != sess.model.TotalChunks {
		return
	}

	if len(sess.activeChunkUploads) != 0 {
		return
	}

	sess.finalizing = true
	uploadID := sess.model.ServerUploadID

	go e.runFinalize(id, uploadID)
}

func (e *Engine) runFinalize(id, uploadID string) {
	resp, err := e.client.Finalize(e.ctx, apiclient.FinalizeRequest{UploadID: uploadID})

	e.enqueue(func(en *Engine) { en.handleFinalizeResult(id, resp, err) })
}

func (e *Engine) handleFinalizeResult(id string, resp *apiclient.FinalizeResponse, err error) {
	sess, ok := e.sessions[id]
	if !ok {
		return
	}

	sess.finalizing = false

	if sess.isCancelled {
		return
	}

	if err != nil {
		sess.model.Status = uploadmodel.StatusError
		e.callbacks.statusChange(id, uploadmodel.StatusError, classifyErr(err))
		e.persistAll()

		return
	}

	sess.model.FileID = resp.FileID

	size := sess.model.Descriptor.Size
	e.callbacks.progress(id, size, size)
	e.callbacks.statusChange(id, uploadmodel.StatusCompleted, "")
	delete(e.sessions, id)
	e.persistAll()
}
