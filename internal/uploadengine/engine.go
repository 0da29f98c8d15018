// Package uploadengine implements the per-file chunk scheduler: retry
// policy, pause/resume/cancel, and finalize (spec.md §4.5).
//
// The reference implementation is a single JS event loop; the Go-native
// expression of that is one actor goroutine owning every session mutation,
// fed by a channel of closures, with blocking I/O (stat, hash, HTTP,
// backoff sleeps) done on short-lived helper goroutines that report back
// through the same channel (spec.md §5 "single-threaded cooperative").
package uploadengine

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tonimelisma/chunkupload/internal/apiclient"
	"github.com/tonimelisma/chunkupload/internal/blobstore"
	"github.com/tonimelisma/chunkupload/internal/uploadmodel"
)

// command is a closure executed on the actor goroutine; it is the only way
// session state is ever mutated (spec.md §9 "Global mutable counters").
type command func(e *Engine)

// APIClient is the engine's view of apiclient.Client — a consumer-defined
// interface so tests can supply a fake instead of an httptest.Server.
type APIClient interface {
	Initiate(ctx context.Context, req apiclient.InitiateRequest) (*apiclient.InitiateResponse, error)
	UploadChunk(ctx context.Context, req apiclient.UploadChunkRequest) (*apiclient.UploadChunkResponse, error)
	Finalize(ctx context.Context, req apiclient.FinalizeRequest) (*apiclient.FinalizeResponse, error)
}

// Hasher is the engine's view of hashutil.Hasher.
type Hasher interface {
	Hash(sourceRef string) (string, error)
}

// SessionStore is the engine's view of sessionstore.Store.
type SessionStore interface {
	SaveAll(sessions map[string]uploadmodel.Session)
	LoadAll() (map[string]uploadmodel.Session, error)
}

// Engine is the process-wide upload scheduler. One Engine is constructed at
// startup and shared by every session; globalActiveChunks (spec.md §4.5,
// §5) is enforced by sem across all of them.
type Engine struct {
	client APIClient
	blobs  blobstore.Reader
	hasher Hasher
	store  SessionStore
	logger *slog.Logger
	clock  func() time.Time

	callbacks Callbacks

	chunkSize         int64
	maxRetries        int
	initialRetryDelay time.Duration

	sem *semaphore.Weighted

	commands chan command
	sessions map[string]*session

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Config carries the tunables an Engine needs from config.EngineConfig
// without importing the config package's validation/parsing surface.
type Config struct {
	ChunkSize           int64
	MaxConcurrentChunks int
	MaxRetries          int
	InitialRetryDelay   time.Duration
}

// New constructs an Engine. Callers must call Run in a goroutine before
// issuing any operation, and Close when shutting down.
func New(
	client APIClient, blobs blobstore.Reader, hasher Hasher,
	store SessionStore, cfg Config, callbacks Callbacks, logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	maxConcurrent := cfg.MaxConcurrentChunks
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		client:            client,
		blobs:             blobs,
		hasher:            hasher,
		store:             store,
		logger:            logger,
		clock:             time.Now,
		callbacks:         callbacks,
		chunkSize:         cfg.ChunkSize,
		maxRetries:        cfg.MaxRetries,
		initialRetryDelay: cfg.InitialRetryDelay,
		sem:               semaphore.NewWeighted(int64(maxConcurrent)),
		commands:          make(chan command, 64),
		sessions:          make(map[string]*session),
		ctx:               ctx,
		cancel:            cancel,
		done:              make(chan struct{}),
	}
}

// Run executes the actor loop until Close is called. It must be started in
// its own goroutine; it is the sole mutator of e.sessions.
func (e *Engine) Run() {
	defer close(e.done)

	for {
		select {
		case cmd := <-e.commands:
			cmd(e)
		case <-e.ctx.Done():
			return
		}
	}
}

// Close stops the actor loop. In-flight chunk workers observe e.ctx
// cancellation at their next suspension point and exit; they do not block
// shutdown.
func (e *Engine) Close() {
	e.cancel()
	<-e.done
}

// enqueue posts a command to the actor loop. Safe to call from any
// goroutine, including from within a running command (re-entrant posts are
// processed on the next loop iteration, never inline).
func (e *Engine) enqueue(cmd command) {
	select {
	case e.commands <- cmd:
	case <-e.ctx.Done():
	}
}

// Start begins uploading descriptor read through sourceRef. Idempotent on
// descriptor.ID (spec.md §4.5, §8 "Idempotence").
func (e *Engine) Start(sourceRef string, descriptor uploadmodel.FileDescriptor) {
	e.enqueue(func(en *Engine) {
		if _, exists := en.sessions[descriptor.ID]; exists {
			return
		}

		// Reserve the slot immediately so a second Start racing in behind
		// this one (before Init's async stat returns) still no-ops.
		en.sessions[descriptor.ID] = newSession(uploadmodel.Session{
			SourceRef:  sourceRef,
			Descriptor: descriptor,
			Status:     uploadmodel.StatusQueued,
			CreatedAt:  en.clock(),
		})

		go en.bootstrapSession(descriptor.ID, sourceRef, descriptor)
	})
}

// Pause aborts in-flight chunk I/O for id without discarding progress
// (spec.md §4.5 "Pause/Resume/Cancel semantics").
func (e *Engine) Pause(id string) {
	e.enqueue(func(en *Engine) {
		sess, ok := en.sessions[id]
		if !ok || sess.isCancelled {
			return
		}

		sess.isPaused = true
		sess.model.Status = uploadmodel.StatusPaused

		for _, token := range sess.chunkAbortControllers {
			token.cancel()
		}

		en.callbacks.statusChange(id, uploadmodel.StatusPaused, "")
		en.persistAll()
	})
}

// Resume re-enters the chunk loop for a paused session. No-op unless the
// session is currently paused (spec.md §9, open question on foreground
// restoration calling Resume unconditionally).
func (e *Engine) Resume(id string) {
	e.enqueue(func(en *Engine) {
		sess, ok := en.sessions[id]
		if !ok || !sess.isPaused || sess.isCancelled {
			return
		}

		sess.isPaused = false
		sess.model.Status = uploadmodel.StatusUploading

		en.callbacks.statusChange(id, uploadmodel.StatusUploading, "")
		en.pumpAll()
		en.persistAll()
	})
}

// Cancel aborts and discards a session entirely.
func (e *Engine) Cancel(id string) {
	e.enqueue(func(en *Engine) {
		en.teardown(id)
	})
}

// Reset tears a session down exactly like Cancel; it exists as a distinct
// name because it is a documented retry precondition (spec.md §4.5), not a
// user-facing cancellation.
func (e *Engine) Reset(id string) {
	e.enqueue(func(en *Engine) {
		en.teardown(id)
	})
}

// teardown is the shared Cancel/Reset body: abort tokens, drop the session,
// persist removal. Safe to call for an id with no session.
func (e *Engine) teardown(id string) {
	sess, ok := e.sessions[id]
	if !ok {
		return
	}

	sess.isCancelled = true

	for _, token := range sess.chunkAbortControllers {
		token.cancel()
	}

	delete(e.sessions, id)
	e.persistAll()
}

// persistAll snapshots every live session into SessionStore.SaveAll, which
// debounces the actual write (spec.md §4.4, §4.5 step 4, step 6).
func (e *Engine) persistAll() {
	snapshot := make(map[string]uploadmodel.Session, len(e.sessions))
	for id, sess := range e.sessions {
		snapshot[id] = sess.toPersisted()
	}

	e.store.SaveAll(snapshot)
}
