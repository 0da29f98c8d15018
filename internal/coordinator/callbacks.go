package coordinator

import (
	"log/slog"
	"time"

	"github.com/tonimelisma/chunkupload/internal/debounce"
	"github.com/tonimelisma/chunkupload/internal/uploadmodel"
)

// handleEngineProgress is uploadengine.Callbacks.OnProgress. It runs on the
// Engine's own actor goroutine, so it only ever posts a command here and
// fires the per-id debouncer; the actual item mutation happens in
// flushProgress, on this coordinator's own actor goroutine.
func (c *Coordinator) handleEngineProgress(id string, uploadedBytes, totalBytes int64) {
	c.enqueue(func(co *Coordinator) {
		co.progressPending[id] = uploadmodel.NewProgress(uploadedBytes, totalBytes)

		trigger, ok := co.progressDebouncers[id]
		if !ok {
			period := co.cfg.ProgressDebounce
			if period <= 0 {
				period = 100 * time.Millisecond
			}

			trigger = debounce.New(period, func() {
				co.enqueue(func(co2 *Coordinator) { co2.flushProgress(id) })
			})
			co.progressDebouncers[id] = trigger
		}

		trigger.Fire()
	})
}

// flushProgress applies the most recently pending progress value for id and
// persists the aggregate (spec.md §4.6 "schedules a trailing-edge update
// that writes progress into the item and persists AggregateState").
func (c *Coordinator) flushProgress(id string) {
	progress, ok := c.progressPending[id]
	if !ok {
		return
	}

	delete(c.progressPending, id)

	item, ok := c.items[id]
	if !ok {
		return
	}

	item.Progress = progress
	c.items[id] = item

	c.callbacks.itemProgress(id, progress)
	c.persistNow()
}

// handleEngineStatusChange is uploadengine.Callbacks.OnStatusChange.
func (c *Coordinator) handleEngineStatusChange(id string, status uploadmodel.Status, errMsg string) {
	c.enqueue(func(co *Coordinator) { co.applyStatus(id, status, errMsg) })
}

// applyStatus implements spec.md §4.6's onStatusChange: cancel any pending
// debounced progress for id, update status/error, and on completed force
// progress to (total,total) synchronously so a dropped final progress event
// can never leave the item short of 100%.
func (c *Coordinator) applyStatus(id string, status uploadmodel.Status, errMsg string) {
	item, ok := c.items[id]
	if !ok {
		return
	}

	if trigger, ok := c.progressDebouncers[id]; ok {
		trigger.Stop()
		delete(c.progressDebouncers, id)
	}

	delete(c.progressPending, id)

	// Open question (spec.md §9): the reference can emit two back-to-back
	// identical statuses (coordinator's optimistic mirror + the engine's own
	// callback). Resolved here by deduping: an unchanged status/message pair
	// is still applied and persisted but notifies no observer a second time.
	unchanged := item.Status == status && item.ErrorMessage == errMsg
	item.Status = status
	item.ErrorMessage = errMsg

	if status == uploadmodel.StatusCompleted {
		item.Progress = uploadmodel.NewProgress(item.Progress.TotalBytes, item.Progress.TotalBytes)
	}

	c.items[id] = item

	if !unchanged {
		c.callbacks.itemStatus(id, status, errMsg)
	}

	c.evictStartedID(id, status)

	if status == uploadmodel.StatusCompleted {
		c.maybeEmitHistory(item)
	}

	c.persistNow()
	c.autoStart()
}

// maybeEmitHistory implements spec.md §4.6 "History emission": the ≥99%
// rounding tolerance avoids losing an entry to an off-by-one percent.
func (c *Coordinator) maybeEmitHistory(item uploadmodel.UploadItem) {
	if _, seen := c.historySeen[item.File.ID]; seen {
		return
	}

	total := item.Progress.TotalBytes
	if total <= 0 {
		return
	}

	if item.Progress.Percent < 99 && item.Progress.UploadedBytes < total {
		return
	}

	entry := uploadmodel.HistoryEntry{
		ID:          item.File.ID,
		Name:        item.File.Name,
		Size:        item.File.Size,
		MimeType:    item.File.MimeType,
		CompletedAt: c.now(),
	}

	if err := c.store.AppendHistory(entry); err != nil {
		c.logger.Error("coordinator: appending history failed", slog.String("error", err.Error()))
		return
	}

	c.historySeen[item.File.ID] = struct{}{}

	if c.emitter != nil {
		c.emitter.Emit(entry)
	}

	c.callbacks.history(entry)
}

// autoStart implements spec.md §4.6: every queued item with a known source
// ref that hasn't been started yet is started exactly once.
func (c *Coordinator) autoStart() {
	for _, id := range c.order {
		if _, started := c.startedIds[id]; started {
			continue
		}

		item, ok := c.items[id]
		if !ok || item.Status != uploadmodel.StatusQueued {
			continue
		}

		ref, known := c.sourceRefs[id]
		if !known || ref == "" {
			continue
		}

		c.startedIds[id] = struct{}{}
		c.engine.Start(ref, item.File)
	}
}

// evictStartedID drops id from startedIds once it leaves the
// queued/uploading window, per spec.md §4.6 "items no longer queued (or
// removed) are evicted from startedIds". On failure (error) the spec
// explicitly calls for eviction so a later retry can re-enter auto-start.
func (c *Coordinator) evictStartedID(id string, status uploadmodel.Status) {
	if status == uploadmodel.StatusQueued || status == uploadmodel.StatusUploading {
		return
	}

	delete(c.startedIds, id)
}

func (c *Coordinator) now() time.Time {
	return time.Now()
}
