package coordinator

import (
	"sync"

	"github.com/tonimelisma/chunkupload/internal/uploadengine"
	"github.com/tonimelisma/chunkupload/internal/uploadmodel"
)

// fakeEngine records every call the coordinator makes and lets tests drive
// callbacks synchronously, standing in for uploadengine.Engine plus its
// actor goroutine.
type fakeEngine struct {
	mu sync.Mutex

	callbacks uploadengine.Callbacks

	startCalls   []string
	pauseCalls   []string
	resumeCalls  []string
	cancelCalls  []string
	resetCalls   []string
	restoreCalls int
}

func (f *fakeEngine) Start(sourceRef string, descriptor uploadmodel.FileDescriptor) {
	f.mu.Lock()
	f.startCalls = append(f.startCalls, descriptor.ID)
	f.mu.Unlock()
}

func (f *fakeEngine) Pause(id string) {
	f.mu.Lock()
	f.pauseCalls = append(f.pauseCalls, id)
	f.mu.Unlock()
}

func (f *fakeEngine) Resume(id string) {
	f.mu.Lock()
	f.resumeCalls = append(f.resumeCalls, id)
	f.mu.Unlock()
}

func (f *fakeEngine) Cancel(id string) {
	f.mu.Lock()
	f.cancelCalls = append(f.cancelCalls, id)
	f.mu.Unlock()
}

func (f *fakeEngine) Reset(id string) {
	f.mu.Lock()
	f.resetCalls = append(f.resetCalls, id)
	f.mu.Unlock()
}

func (f *fakeEngine) RestoreSessions() {
	f.mu.Lock()
	f.restoreCalls++
	f.mu.Unlock()
}

func (f *fakeEngine) emitProgress(id string, uploaded, total int64) {
	f.callbacks.OnProgress(id, uploaded, total)
}

func (f *fakeEngine) emitStatus(id string, status uploadmodel.Status, errMsg string) {
	f.callbacks.OnStatusChange(id, status, errMsg)
}

func (f *fakeEngine) starts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, len(f.startCalls))
	copy(out, f.startCalls)

	return out
}

type fakeCoordStore struct {
	mu         sync.Mutex
	aggregate  uploadmodel.AggregateState
	sourceRefs map[string]string
	history    []uploadmodel.HistoryEntry
}

func newFakeCoordStore() *fakeCoordStore {
	return &fakeCoordStore{sourceRefs: map[string]string{}}
}

func (s *fakeCoordStore) SaveAggregate(state uploadmodel.AggregateState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.aggregate = state

	return nil
}

func (s *fakeCoordStore) LoadAggregate() (uploadmodel.AggregateState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.aggregate, nil
}

func (s *fakeCoordStore) SaveSourceRefs(refs map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make(map[string]string, len(refs))
	for k, v := range refs {
		cp[k] = v
	}

	s.sourceRefs = cp

	return nil
}

func (s *fakeCoordStore) LoadSourceRefs() (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make(map[string]string, len(s.sourceRefs))
	for k, v := range s.sourceRefs {
		cp[k] = v
	}

	return cp, nil
}

func (s *fakeCoordStore) AppendHistory(entry uploadmodel.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, entry)

	return nil
}

func (s *fakeCoordStore) LoadHistory() ([]uploadmodel.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]uploadmodel.HistoryEntry, len(s.history))
	copy(out, s.history)

	return out, nil
}

type fakeEmitter struct {
	mu      sync.Mutex
	emitted []uploadmodel.HistoryEntry
}

func (e *fakeEmitter) Emit(entry uploadmodel.HistoryEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.emitted = append(e.emitted, entry)
}

func (e *fakeEmitter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.emitted)
}
