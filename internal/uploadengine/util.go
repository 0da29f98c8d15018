package uploadengine

import (
	"context"
	"errors"
	"time"

	"github.com/tonimelisma/chunkupload/internal/apiclient"
)

// sleepCtx is the engine's setTimeout-equivalent suspension point (spec.md
// §5). It returns ctx.Err() the moment ctx is cancelled, which is how a
// paused or cancelled chunk's backoff wait exits without a separate
// isPaused/isCancelled poll — Pause and Cancel both cancel every registered
// abort token, so ctx.Done() firing here and the session being paused or
// cancelled are the same event.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// classifyErr reduces an apiclient error into the short message that ends
// up as an item's errorMessage (spec.md §7 error kinds are conceptual; the
// wire contract only carries a string).
func classifyErr(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *apiclient.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Message
	case errors.Is(err, apiclient.ErrNetworkUnavailable):
		return "network unavailable"
	case errors.Is(err, apiclient.ErrCancelled):
		return "cancelled"
	default:
		return err.Error()
	}
}
