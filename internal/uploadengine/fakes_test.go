package uploadengine

import (
	"context"
	"fmt"
	"sync"

	"github.com/tonimelisma/chunkupload/internal/apiclient"
	"github.com/tonimelisma/chunkupload/internal/blobstore"
	"github.com/tonimelisma/chunkupload/internal/uploadmodel"
)

// chunkHandlerFunc lets a test script per-chunk-call behavior: retries,
// blocking until cancelled, dedup, etc.
type chunkHandlerFunc func(ctx context.Context, req apiclient.UploadChunkRequest) (*apiclient.UploadChunkResponse, error)

type fakeAPIClient struct {
	mu sync.Mutex

	initiateResp  *apiclient.InitiateResponse
	initiateErr   error
	initiateCalls []apiclient.InitiateRequest

	chunkHandler chunkHandlerFunc
	chunkCalls   []apiclient.UploadChunkRequest

	finalizeResp  *apiclient.FinalizeResponse
	finalizeErr   error
	finalizeCalls int
}

func (f *fakeAPIClient) Initiate(_ context.Context, req apiclient.InitiateRequest) (*apiclient.InitiateResponse, error) {
	f.mu.Lock()
	f.initiateCalls = append(f.initiateCalls, req)
	f.mu.Unlock()

	return f.initiateResp, f.initiateErr
}

func (f *fakeAPIClient) UploadChunk(ctx context.Context, req apiclient.UploadChunkRequest) (*apiclient.UploadChunkResponse, error) {
	f.mu.Lock()
	f.chunkCalls = append(f.chunkCalls, req)
	handler := f.chunkHandler
	f.mu.Unlock()

	if handler != nil {
		return handler(ctx, req)
	}

	return &apiclient.UploadChunkResponse{Success: true, UploadID: req.UploadID, ChunkIndex: req.ChunkIndex}, nil
}

func (f *fakeAPIClient) Finalize(_ context.Context, req apiclient.FinalizeRequest) (*apiclient.FinalizeResponse, error) {
	f.mu.Lock()
	f.finalizeCalls++
	f.mu.Unlock()

	if f.finalizeErr != nil {
		return nil, f.finalizeErr
	}

	return f.finalizeResp, nil
}

func (f *fakeAPIClient) chunkCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.chunkCalls)
}

func (f *fakeAPIClient) chunkIndices() []int {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]int, len(f.chunkCalls))
	for i, c := range f.chunkCalls {
		out[i] = c.ChunkIndex
	}

	return out
}

type fakeBlobs struct {
	mu      sync.Mutex
	data    map[string][]byte
	missing map[string]bool
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{data: map[string][]byte{}, missing: map[string]bool{}}
}

func (f *fakeBlobs) put(ref string, size int64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.data[ref] = make([]byte, size)
}

func (f *fakeBlobs) Stat(ref string) (blobstore.Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.missing[ref] {
		return blobstore.Info{}, nil
	}

	data, ok := f.data[ref]
	if !ok {
		return blobstore.Info{}, nil
	}

	return blobstore.Info{Exists: true, Size: int64(len(data))}, nil
}

func (f *fakeBlobs) ReadAll(ref string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.data[ref]
	if !ok {
		return nil, blobstore.ErrSourceMissing
	}

	return data, nil
}

type fakeHasher struct{}

func (fakeHasher) Hash(sourceRef string) (string, error) {
	return fmt.Sprintf("hash-%s", sourceRef), nil
}

type fakeStore struct {
	mu        sync.Mutex
	sessions  map[string]uploadmodel.Session
	saveCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: map[string]uploadmodel.Session{}}
}

func (f *fakeStore) SaveAll(sessions map[string]uploadmodel.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.saveCalls++
	cp := make(map[string]uploadmodel.Session, len(sessions))

	for id, s := range sessions {
		cp[id] = s
	}

	f.sessions = cp
}

func (f *fakeStore) LoadAll() (map[string]uploadmodel.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := make(map[string]uploadmodel.Session, len(f.sessions))
	for id, s := range f.sessions {
		cp[id] = s
	}

	return cp, nil
}

func (f *fakeStore) preload(id string, s uploadmodel.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sessions[id] = s
}

func (f *fakeStore) has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.sessions[id]

	return ok
}

// recorder collects the callbacks an Engine emits, in order, for assertion.
type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	kind            string // "progress" | "status"
	id              string
	uploaded, total int64
	status          uploadmodel.Status
	errMsg          string
}

func newRecorder() *recorder {
	return &recorder{}
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnProgress: func(id string, uploaded, total int64) {
			r.mu.Lock()
			defer r.mu.Unlock()

			r.events = append(r.events, recordedEvent{kind: "progress", id: id, uploaded: uploaded, total: total})
		},
		OnStatusChange: func(id string, status uploadmodel.Status, errMsg string) {
			r.mu.Lock()
			defer r.mu.Unlock()

			r.events = append(r.events, recordedEvent{kind: "status", id: id, status: status, errMsg: errMsg})
		},
	}
}

func (r *recorder) snapshot() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]recordedEvent, len(r.events))
	copy(out, r.events)

	return out
}

func (r *recorder) hasStatus(id string, status uploadmodel.Status) bool {
	for _, e := range r.snapshot() {
		if e.kind == "status" && e.id == id && e.status == status {
			return true
		}
	}

	return false
}

func (r *recorder) countStatus(id string, status uploadmodel.Status) int {
	count := 0

	for _, e := range r.snapshot() {
		if e.kind == "status" && e.id == id && e.status == status {
			count++
		}
	}

	return count
}

func (r *recorder) lastProgress(id string) (recordedEvent, bool) {
	events := r.snapshot()

	for i := len(events) - 1; i >= 0; i-- {
		if events[i].kind == "progress" && events[i].id == id {
			return events[i], true
		}
	}

	return recordedEvent{}, false
}
