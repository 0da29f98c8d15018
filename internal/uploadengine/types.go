package uploadengine

import (
	"context"
	"time"

	"github.com/tonimelisma/chunkupload/internal/uploadmodel"
)

// Callbacks lets the engine report state changes without knowing who is
// listening (spec.md §4.5, §9 "Cyclic references"). The Coordinator is the
// only intended caller, but the engine never imports it.
type Callbacks struct {
	OnProgress     func(id string, uploadedBytes, totalBytes int64)
	OnStatusChange func(id string, status uploadmodel.Status, errMsg string)
}

func (c Callbacks) progress(id string, uploaded, total int64) {
	if c.OnProgress != nil {
		c.OnProgress(id, uploaded, total)
	}
}

func (c Callbacks) statusChange(id string, status uploadmodel.Status, errMsg string) {
	if c.OnStatusChange != nil {
		c.OnStatusChange(id, status, errMsg)
	}
}

// abortToken is a cancellable handle for one chunk attempt (spec.md §9
// "Abort tokens and retry identity"). Each dispatch of a chunk allocates a
// fresh token and replaces the map entry; the retry attempts made inside
// one dispatch reuse that dispatch's token. Cleanup only deletes an entry
// when the current value is this exact pointer, so a stale dispatch's
// completion can never clobber a newer dispatch's bookkeeping. Pointer identity, not a counter,
// gives us the "currentToken === mine" comparison — Go func values aren't
// comparable, so the token is the thing we compare, not the CancelFunc.
type abortToken struct {
	cancel context.CancelFunc
}

// session is the engine's runtime record for one in-flight upload. It wraps
// the durable uploadmodel.Session with the transient state that never gets
// persisted: the cached byte buffer, in-flight bookkeeping, and abort
// tokens all die with the process, matching spec.md §9's "Byte-slice
// efficiency" note and §5's "cachedBytes ... mutated only by the owning
// session; freed with the session."
type session struct {
	model uploadmodel.Session

	cachedBytes  []byte
	loadingBytes bool

	activeChunkUploads    map[int]struct{}
	chunkAbortControllers map[int]*abortToken
	retryCounts           map[int]int

	isPaused    bool
	isCancelled bool

	finalizing bool
}

func newSession(model uploadmodel.Session) *session {
	return &session{
		model:                 model,
		activeChunkUploads:    make(map[int]struct{}),
		chunkAbortControllers: make(map[int]*abortToken),
		retryCounts:           make(map[int]int),
	}
}

// toPersisted returns the durable snapshot SessionStore sees: no transient
// fields leak out (spec.md §9 "Byte-slice efficiency").
func (s *session) toPersisted() uploadmodel.Session {
	uploaded := make(map[int]struct{}, len(s.model.UploadedChunks))
	for idx := range s.model.UploadedChunks {
		uploaded[idx] = struct{}{}
	}

	m := s.model
	m.UploadedChunks = uploaded

	return m
}

// chunkRange returns the byte offsets of chunk idx within a file of the
// given total size (spec.md GLOSSARY "Chunk").
func chunkRange(idx int, chunkSize, totalSize int64) (start, end int64) {
	start = int64(idx) * chunkSize
	end = start + chunkSize

	if end > totalSize {
		end = totalSize
	}

	return start, end
}

// backoffDelay implements spec.md §4.5 step 7: INITIAL_RETRY_DELAY * 2^(attempt-1)
// for attempt in [1, maxRetries]; attempt 0 is the first try and has no delay.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	return base * time.Duration(uint64(1)<<uint(attempt-1))
}
