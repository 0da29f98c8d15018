package coordinator

import (
	"strings"

	"github.com/tonimelisma/chunkupload/internal/uploadmodel"
)

// Enqueue validates and appends descriptors in queued status (spec.md §4.6
// "enqueue(descriptors, sourceRefs?) — appends items in queued status").
// Validation runs entirely before any mutation; on the first violation the
// whole batch is rejected and nothing is installed (spec.md §7 "Validation
// errors are returned to the caller of enqueue and never reach the
// engine").
func (c *Coordinator) Enqueue(descriptors []uploadmodel.FileDescriptor, sourceRefs map[string]string) error {
	errCh := make(chan error, 1)

	c.enqueue(func(co *Coordinator) {
		errCh <- co.enqueueLocked(descriptors, sourceRefs)
	})

	select {
	case err := <-errCh:
		return err
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

func (c *Coordinator) enqueueLocked(descriptors []uploadmodel.FileDescriptor, sourceRefs map[string]string) error {
	if c.cfg.MaxFilesPerBatch > 0 && len(descriptors) > c.cfg.MaxFilesPerBatch {
		return &ValidationError{Kind: ValidationTooManyFiles, Detail: "batch exceeds max files per batch"}
	}

	for _, d := range descriptors {
		if _, exists := c.items[d.ID]; exists {
			return &ValidationError{Kind: ValidationDuplicate, FileID: d.ID, Detail: "id already tracked"}
		}

		if c.cfg.MaxFileSize > 0 && d.Size > c.cfg.MaxFileSize {
			return &ValidationError{Kind: ValidationTooLarge, FileID: d.ID, Detail: "exceeds max file size"}
		}

		if !c.mimeAllowed(d.MimeType) {
			return &ValidationError{Kind: ValidationWrongType, FileID: d.ID, Detail: "mime type not permitted"}
		}
	}

	for _, d := range descriptors {
		c.items[d.ID] = uploadmodel.UploadItem{
			File:     d,
			Status:   uploadmodel.StatusQueued,
			Progress: uploadmodel.NewProgress(0, d.Size),
		}
		c.order = append(c.order, d.ID)

		if ref, ok := sourceRefs[d.ID]; ok {
			c.sourceRefs[d.ID] = ref
		}
	}

	c.persistNow()
	c.autoStart()

	return nil
}

func (c *Coordinator) mimeAllowed(mimeType string) bool {
	if len(c.cfg.AllowedMimePrefixes) == 0 {
		return true
	}

	for _, prefix := range c.cfg.AllowedMimePrefixes {
		if strings.HasPrefix(mimeType, prefix) {
			return true
		}
	}

	return false
}

// Pause delegates to the engine and mirrors the status locally without
// waiting for the engine's own callback (spec.md §4.6 "Controller
// surface").
func (c *Coordinator) Pause(id string) {
	c.enqueue(func(co *Coordinator) {
		co.mirrorStatus(id, uploadmodel.StatusPaused, "")
		co.engine.Pause(id)
	})
}

// Resume delegates to the engine and mirrors the status locally.
func (c *Coordinator) Resume(id string) {
	c.enqueue(func(co *Coordinator) {
		co.mirrorStatus(id, uploadmodel.StatusUploading, "")
		co.engine.Resume(id)
	})
}

// Cancel delegates to the engine and removes the item (spec.md §8 "After
// cancel(id), the item is absent from AggregateState").
func (c *Coordinator) Cancel(id string) {
	c.enqueue(func(co *Coordinator) {
		co.engine.Cancel(id)
		co.removeItem(id)
		co.persistNow()
	})
}

// Retry resets and restarts a failed item (spec.md §4.6 "retry(id) — calls
// engine.reset(id), resets the item to {queued, retries+1, progress=0},
// then re-enters engine.start(sourceRef, descriptor)").
func (c *Coordinator) Retry(id string) {
	c.enqueue(func(co *Coordinator) {
		item, ok := co.items[id]
		if !ok {
			return
		}

		co.engine.Reset(id)

		item.Status = uploadmodel.StatusQueued
		item.Retries++
		item.Progress = uploadmodel.NewProgress(0, item.File.Size)
		item.ErrorMessage = ""
		co.items[id] = item

		ref, known := co.sourceRefs[id]
		if !known || ref == "" {
			co.persistNow()
			return
		}

		co.startedIds[id] = struct{}{}
		co.engine.Start(ref, item.File)
		co.persistNow()
	})
}

// ClearCompleted removes every completed item and its source ref (spec.md
// §4.6 "clearCompleted()").
func (c *Coordinator) ClearCompleted() {
	c.enqueue(func(co *Coordinator) {
		kept := co.order[:0:0]

		for _, id := range co.order {
			item := co.items[id]
			if item.Status == uploadmodel.StatusCompleted {
				delete(co.items, id)
				delete(co.sourceRefs, id)
				delete(co.startedIds, id)

				continue
			}

			kept = append(kept, id)
		}

		co.order = kept
		co.persistNow()
	})
}

// Snapshot returns the current AggregateState.
func (c *Coordinator) Snapshot() uploadmodel.AggregateState {
	respCh := make(chan uploadmodel.AggregateState, 1)

	c.enqueue(func(co *Coordinator) { respCh <- co.aggregateLocked() })

	select {
	case s := <-respCh:
		return s
	case <-c.ctx.Done():
		return uploadmodel.AggregateState{}
	}
}

func (c *Coordinator) mirrorStatus(id string, status uploadmodel.Status, errMsg string) {
	item, ok := c.items[id]
	if !ok {
		return
	}

	item.Status = status
	item.ErrorMessage = errMsg
	c.items[id] = item

	c.callbacks.itemStatus(id, status, errMsg)
	c.persistNow()
}

func (c *Coordinator) removeItem(id string) {
	delete(c.items, id)
	delete(c.sourceRefs, id)
	delete(c.startedIds, id)

	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
