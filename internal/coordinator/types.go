package coordinator

import (
	"time"

	"github.com/tonimelisma/chunkupload/internal/uploadengine"
	"github.com/tonimelisma/chunkupload/internal/uploadmodel"
)

// Engine is the coordinator's view of uploadengine.Engine — a
// consumer-defined interface (spec.md §9 "avoid cyclic references") so
// tests can supply a fake instead of a real Engine plus its goroutine.
type Engine interface {
	Start(sourceRef string, descriptor uploadmodel.FileDescriptor)
	Pause(id string)
	Resume(id string)
	Cancel(id string)
	Reset(id string)
	RestoreSessions()
}

// Store is the coordinator's view of sessionstore.Store for the aggregate,
// source-ref, and history tables.
type Store interface {
	SaveAggregate(state uploadmodel.AggregateState) error
	LoadAggregate() (uploadmodel.AggregateState, error)
	SaveSourceRefs(refs map[string]string) error
	LoadSourceRefs() (map[string]string, error)
	AppendHistory(entry uploadmodel.HistoryEntry) error
	LoadHistory() ([]uploadmodel.HistoryEntry, error)
}

// HistoryEmitter is the external collaborator that renders/forwards
// completed-upload records (spec.md §1 "Out of scope ... history-list
// rendering"). The coordinator calls it after durably recording the entry.
type HistoryEmitter interface {
	Emit(entry uploadmodel.HistoryEntry)
}

// LifecycleSource is the external OS-level hook registrar (spec.md §1
// "background-task OS registration"). Attach wires the coordinator's own
// background/foreground handling to whatever the host platform calls them.
type LifecycleSource interface {
	OnForeground(fn func())
	OnBackground(fn func())
}

// Callbacks lets a caller (typically the CLI) observe coordinator-level
// events without polling Snapshot. All fields are optional.
type Callbacks struct {
	OnItemStatus   func(id string, status uploadmodel.Status, errMsg string)
	OnItemProgress func(id string, progress uploadmodel.Progress)
	OnHistory      func(entry uploadmodel.HistoryEntry)
}

func (c Callbacks) itemStatus(id string, status uploadmodel.Status, errMsg string) {
	if c.OnItemStatus != nil {
		c.OnItemStatus(id, status, errMsg)
	}
}

func (c Callbacks) itemProgress(id string, p uploadmodel.Progress) {
	if c.OnItemProgress != nil {
		c.OnItemProgress(id, p)
	}
}

func (c Callbacks) history(entry uploadmodel.HistoryEntry) {
	if c.OnHistory != nil {
		c.OnHistory(entry)
	}
}

// Config carries the coordinator's tunables.
type Config struct {
	ProgressDebounce    time.Duration
	MaxFilesPerBatch    int
	MaxFileSize         int64
	AllowedMimePrefixes []string // empty disables the wrongType check
}

// EngineFactory builds the Engine once the coordinator can hand it a
// Callbacks record wired back to itself — mirrors the teacher's
// engineFactoryFunc injection point in internal/sync/orchestrator.go,
// which exists for exactly the same reason (real factory in production,
// fake in tests).
type EngineFactory func(uploadengine.Callbacks) Engine
