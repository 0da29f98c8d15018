package uploadengine

import (
	"log/slog"

	"github.com/tonimelisma/chunkupload/internal/uploadmodel"
)

// RestoreSessions implements spec.md §4.5 "Restoration". It reloads
// persisted sessions, drops any whose blob is no longer reachable, and
// resumes or marks paused the rest depending on their last known status.
func (e *Engine) RestoreSessions() {
	e.enqueue(func(en *Engine) {
		persisted, err := en.store.LoadAll()
		if err != nil {
			en.logger.Warn("restore sessions failed", slog.Any("error", err))
			return
		}

		for id, model := range persisted {
			if _, exists := en.sessions[id]; exists {
				continue
			}

			info, statErr := en.blobs.Stat(model.SourceRef)
			if statErr != nil || !info.Exists {
				en.logger.Debug("restore: source unreachable, dropping", slog.String("id", id))
				continue
			}

			sess := newSession(model)
			en.sessions[id] = sess

			if model.Status == uploadmodel.StatusUploading {
				en.callbacks.statusChange(id, uploadmodel.StatusUploading, "")
				continue
			}

			sess.isPaused = true
			sess.model.Status = uploadmodel.StatusPaused
			en.callbacks.statusChange(id, uploadmodel.StatusPaused, "")
		}

		en.pumpAll()
		en.persistAll()
	})
}
