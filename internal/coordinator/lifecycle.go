package coordinator

import "github.com/tonimelisma/chunkupload/internal/uploadmodel"

// Attach wires the coordinator's background/foreground handling to an
// external LifecycleSource (spec.md §1 "background-task OS registration").
func (c *Coordinator) Attach(src LifecycleSource) {
	src.OnForeground(c.OnForeground)
	src.OnBackground(c.OnBackground)
}

// OnBackground persists AggregateState and source refs immediately
// (spec.md §4.6 "Lifecycle hooks").
func (c *Coordinator) OnBackground() {
	c.enqueue(func(co *Coordinator) { co.persistNow() })
}

// OnForeground restores engine sessions and resumes every item that was
// uploading or queued with a known source ref. Calling resume on a session
// the restore just put back into uploading is a documented, harmless
// redundancy (spec.md §9 open question) — resume no-ops unless the session
// is paused, so no special-casing is needed here.
func (c *Coordinator) OnForeground() {
	c.enqueue(func(co *Coordinator) {
		co.engine.RestoreSessions()

		for _, id := range co.order {
			item := co.items[id]
			if item.Status != uploadmodel.StatusUploading && item.Status != uploadmodel.StatusQueued {
				continue
			}

			if ref, known := co.sourceRefs[id]; known && ref != "" {
				co.engine.Resume(id)
			}
		}
	})
}
