package uploadengine

import (
	"github.com/tonimelisma/chunkupload/internal/apiclient"
	"github.com/tonimelisma/chunkupload/internal/uploadmodel"
)

// bootstrapSession runs steps 1-4 of spec.md §4.5's lifecycle (Init, Hash,
// Initiate, Persist) on a helper goroutine. It is sequential and blocking
// by nature — Initiate needs the hash, which needs the full blob read — so
// there is no concurrency to express here; only the actor-visible state
// transitions at the start and end are posted back as commands.
func (e *Engine) bootstrapSession(id, sourceRef string, descriptor uploadmodel.FileDescriptor) {
	info, err := e.blobs.Stat(sourceRef)
	if err != nil || !info.Exists || info.Size == 0 {
		e.enqueue(func(en *Engine) { en.failSession(id, "source missing") })
		return
	}

	descriptor.Size = info.Size

	totalChunks := int((info.Size + e.chunkSize - 1) / e.chunkSize)
	if totalChunks == 0 {
		totalChunks = 1
	}

	e.enqueue(func(en *Engine) {
		sess, ok := en.sessions[id]
		if !ok {
			return
		}

		sess.model.Descriptor = descriptor
		sess.model.ChunkSize = en.chunkSize
		sess.model.TotalChunks = totalChunks
		sess.model.Status = uploadmodel.StatusUploading

		en.callbacks.statusChange(id, uploadmodel.StatusUploading, "")
	})

	hash, err := e.hasher.Hash(sourceRef)
	if err != nil {
		e.enqueue(func(en *Engine) { en.failSession(id, "hash failed") })
		return
	}

	resp, err := e.client.Initiate(e.ctx, apiclient.InitiateRequest{
		FileName: descriptor.Name,
		FileSize: descriptor.Size,
		MimeType: descriptor.MimeType,
		FileHash: hash,
	})
	if err != nil {
		e.enqueue(func(en *Engine) { en.failSession(id, classifyErr(err)) })
		return
	}

	e.enqueue(func(en *Engine) { en.completeBootstrap(id, hash, resp) })
}

// completeBootstrap runs on the actor goroutine. It handles the dedup
// shortcut (spec.md §4.5 step 3, §8 "Dedup") or, on a normal session,
// records the server's authoritative chunkSize/totalChunks, persists, and
// enters the chunk loop.
func (e *Engine) completeBootstrap(id, hash string, resp *apiclient.InitiateResponse) {
	sess, ok := e.sessions[id]
	if !ok {
		return
	}

	sess.model.FileHash = hash
	sess.model.ServerUploadID = resp.UploadID

	if resp.FileID != nil && resp.TotalChunks == 0 {
		sess.model.FileID = *resp.FileID

		size := sess.model.Descriptor.Size
		e.callbacks.progress(id, size, size)
		e.callbacks.statusChange(id, uploadmodel.StatusCompleted, "")
		delete(e.sessions, id)
		e.persistAll()

		return
	}

	if resp.ChunkSize > 0 {
		sess.model.ChunkSize = resp.ChunkSize
	}

	if resp.TotalChunks > 0 {
		sess.model.TotalChunks = resp.TotalChunks
	}

	e.persistAll()
	e.pumpAll()
}

// failSession marks id Errored and notifies the caller. It leaves the
// session installed so a Coordinator-driven retry (Reset then Start) has
// something to tear down, matching the finalize-failure handling in
// spec.md §4.5 step 8 and §7 "finalize failures preserve uploaded chunks".
func (e *Engine) failSession(id, msg string) {
	sess, ok := e.sessions[id]
	if !ok || sess.isCancelled {
		return
	}

	sess.model.Status = uploadmodel.StatusError

	e.callbacks.statusChange(id, uploadmodel.StatusError, msg)
	e.persistAll()
}
